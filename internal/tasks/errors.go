package tasks

import "errors"

var (
	// ErrNotFound is returned for queries against an unknown task id.
	ErrNotFound = errors.New("task not found")
	// ErrTerminal is returned when mutating a task that already finished.
	ErrTerminal = errors.New("task already finished")
	// ErrDuplicateID is returned when a generated id is already registered.
	ErrDuplicateID = errors.New("task id already registered")
)
