// Package subtitles turns timed transcripts into SubRip (.srt) caption files.
//
// The segmenter walks the flattened word stream and closes a cue on a natural
// pause, terminal punctuation, a character budget, or a word budget. When the
// engine produced no word timing, each segment becomes one cue as-is. The
// writer serializes cues in order and the reader parses files back for
// validation and tests.
package subtitles
