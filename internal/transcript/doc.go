// Package transcript defines the word and segment records produced by the
// speech-recognition engine and the helpers that decode engine output.
//
// Records are immutable once decoded. Words inside a segment are assumed to
// be time-ordered and non-overlapping; that is the engine's contract and is
// not re-validated here.
package transcript
