package runner

import (
	"errors"
	"fmt"
)

// Stage names a step of a task pipeline.
type Stage string

const (
	StageInitializing   Stage = "initializing"
	StageResolvingModel Stage = "resolving_model"
	StageLoading        Stage = "loading"
	StageTranscribing   Stage = "transcribing"
	StageWriting        Stage = "writing"
	StageCleaningUp     Stage = "cleaning_up"
	StageDownloading    Stage = "downloading"
)

// ErrInterrupted marks a task stopped because the runner was shut down.
var ErrInterrupted = errors.New("interrupted")

// StageError records which stage a task failed in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// FailedStage extracts the stage from err, or "" when err carries none.
func FailedStage(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
