// Package engine is the boundary to the external speech-recognition engine.
//
// The engine is a black box: it takes an audio path and a local model
// directory and returns transcript segments with word timestamps, or fails.
// CommandEngine drives the mlx_whisper CLI and reads back its JSON output;
// tests substitute a Func or a custom command runner.
package engine
