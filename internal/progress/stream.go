package progress

import (
	"context"
	"errors"
	"time"

	"ccgen/internal/tasks"
)

// DefaultInterval is the fallback wake interval when none is configured.
const DefaultInterval = 500 * time.Millisecond

// EventKind names the two event types on the wire.
type EventKind string

const (
	EventLog      EventKind = "log"
	EventProgress EventKind = "progress"
)

// Event is one item delivered to an observer.
type Event struct {
	Kind     EventKind
	Line     string
	Progress int
}

// Source is the read-only registry view the stream needs.
type Source interface {
	Snapshot(id string) (tasks.Task, <-chan struct{}, error)
}

// EmitFunc delivers one event. A non-nil error ends the stream.
type EmitFunc func(Event) error

// Stream tails task id until it is terminal, ctx ends, or emit fails.
// Unknown ids report progress 0 with no logs and keep waiting; the stream
// returns nil once a terminal line has been delivered.
func Stream(ctx context.Context, src Source, id string, interval time.Duration, emit EmitFunc) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sent := 0
	for {
		task, changed, err := src.Snapshot(id)
		switch {
		case err == nil:
		case errors.Is(err, tasks.ErrNotFound):
			task = tasks.Task{ID: id}
			changed = nil
		default:
			return err
		}

		for sent < len(task.Logs) {
			if err := emit(Event{Kind: EventLog, Line: task.Logs[sent]}); err != nil {
				return err
			}
			sent++
		}
		if err := emit(Event{Kind: EventProgress, Progress: task.Progress}); err != nil {
			return err
		}
		if tasks.IsTerminalLine(task.LastLog()) {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		case <-ticker.C:
		}
	}
}
