package engine

import (
	"context"
	"errors"

	"ccgen/internal/transcript"
)

// ErrNoAudio is returned when a request has no audio path.
var ErrNoAudio = errors.New("engine: audio path required")

// Request describes one transcription call.
type Request struct {
	AudioPath string
	// ModelDir is the resolved local model directory. When it does not exist
	// the engine is given Model instead and may resolve it from its own cache.
	ModelDir       string
	Model          string
	WordTimestamps bool
	Language       string
}

// Engine turns an audio file into transcript segments.
type Engine interface {
	Transcribe(ctx context.Context, req Request) ([]transcript.Segment, error)
}

// Func adapts a function to the Engine interface.
type Func func(ctx context.Context, req Request) ([]transcript.Segment, error)

// Transcribe calls f.
func (f Func) Transcribe(ctx context.Context, req Request) ([]transcript.Segment, error) {
	return f(ctx, req)
}
