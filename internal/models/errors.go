package models

import "errors"

var (
	// ErrUnknownModel is returned for keys that are neither catalog keys nor repo ids.
	ErrUnknownModel = errors.New("unknown model")
	// ErrNotDownloaded is returned when deleting a model with no local files.
	ErrNotDownloaded = errors.New("model files not found locally")
)
