package tasks

import (
	"strings"
	"time"

	"ccgen/internal/transcript"
)

// Status is the coarse lifecycle state of a task.
type Status string

const (
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// Kind distinguishes the work a task performs.
type Kind string

const (
	KindTranscription Kind = "transcription"
	KindDownload      Kind = "download"
)

// Progress sentinels and terminal log markers.
const (
	ProgressError = -1
	MarkerDone    = "Done!"
	MarkerError   = "ERROR"
	ErrorPrefix   = "ERROR: "
	WarningPrefix = "WARNING: "
)

// Terminal reports whether the status can no longer change.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError
}

// Task is a point-in-time copy of one task record.
type Task struct {
	ID        string               `json:"id"`
	Kind      Kind                 `json:"kind"`
	Status    Status               `json:"status"`
	Progress  int                  `json:"progress"`
	Logs      []string             `json:"logs"`
	Result    []transcript.Segment `json:"result,omitempty"`
	Output    string               `json:"output,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// LastLog returns the most recent log entry or an empty string.
func (t Task) LastLog() string {
	if len(t.Logs) == 0 {
		return ""
	}
	return t.Logs[len(t.Logs)-1]
}

// IsTerminalLine reports whether a log entry carries a terminal marker.
func IsTerminalLine(line string) bool {
	return strings.Contains(line, MarkerDone) || strings.Contains(line, MarkerError)
}

var markerReplacer = strings.NewReplacer(MarkerDone, "Done", MarkerError, "error")

// StripMarkers defuses terminal markers inside free text (file names, error
// details) so a non-terminal log line cannot end an observer's stream.
func StripMarkers(s string) string {
	return markerReplacer.Replace(s)
}

// Summary is the lightweight listing view of a task.
type Summary struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Status    Status    `json:"status"`
	Progress  int       `json:"progress"`
	LastLog   string    `json:"last_log,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
