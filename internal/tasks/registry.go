package tasks

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"ccgen/internal/logging"
	"ccgen/internal/transcript"
)

// Registry owns every task record for the lifetime of the process.
type Registry struct {
	tasks  sync.Map // id -> *record
	now    func() time.Time
	logger *slog.Logger
}

type record struct {
	mu      sync.RWMutex
	task    Task
	changed chan struct{}
}

// Option customizes a Registry.
type Option func(*Registry)

// WithClock overrides the time source used for ids and log stamps.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRegistry constructs an empty registry. Log entries are mirrored to logger.
func NewRegistry(logger *slog.Logger, opts ...Option) *Registry {
	r := &Registry{
		now:    time.Now,
		logger: logging.NewComponentLogger(logger, "tasks"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create registers a running task with progress 0 and returns its id.
func (r *Registry) Create(kind Kind, name string) (string, error) {
	now := r.now()
	id := NewID(name, now)
	rec := &record{
		task: Task{
			ID:        id,
			Kind:      kind,
			Status:    StatusRunning,
			Logs:      []string{},
			CreatedAt: now.UTC(),
			UpdatedAt: now.UTC(),
		},
		changed: make(chan struct{}),
	}
	if _, loaded := r.tasks.LoadOrStore(id, rec); loaded {
		return "", fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	return id, nil
}

// AppendLog appends a "[HH:MM:SS] message" entry. Entries are the only way logs grow.
func (r *Registry) AppendLog(id, message string) error {
	rec, err := r.lookup(id)
	if err != nil {
		return err
	}
	now := r.now()
	entry := logEntry(now, message)

	rec.mu.Lock()
	rec.task.Logs = append(rec.task.Logs, entry)
	rec.task.UpdatedAt = now.UTC()
	rec.notifyLocked()
	rec.mu.Unlock()

	r.mirror(id, message)
	return nil
}

// SetProgress records the current progress value.
func (r *Registry) SetProgress(id string, value int) error {
	if value != ProgressError && (value < 0 || value > 100) {
		return fmt.Errorf("progress %d out of range", value)
	}
	return r.mutate(id, func(t *Task) {
		t.Progress = value
	})
}

// SetResult stores the engine segments produced by a transcription.
func (r *Registry) SetResult(id string, segments []transcript.Segment) error {
	return r.mutate(id, func(t *Task) {
		t.Result = segments
	})
}

// SetOutput records the artifact path produced by the task.
func (r *Registry) SetOutput(id, path string) error {
	return r.mutate(id, func(t *Task) {
		t.Output = path
	})
}

// Finish moves a task to a terminal status and appends its terminal log line
// under the same lock, so an observer that sees the line also sees the
// status. It succeeds exactly once per task.
func (r *Registry) Finish(id string, status Status, message string) error {
	if !status.Terminal() {
		return fmt.Errorf("finish: %q is not a terminal status", status)
	}
	rec, err := r.lookup(id)
	if err != nil {
		return err
	}
	now := r.now()
	rec.mu.Lock()
	if rec.task.Status.Terminal() {
		rec.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTerminal, id)
	}
	rec.task.Status = status
	if status == StatusError {
		rec.task.Progress = ProgressError
	}
	if message != "" {
		rec.task.Logs = append(rec.task.Logs, logEntry(now, message))
	}
	rec.task.UpdatedAt = now.UTC()
	rec.notifyLocked()
	rec.mu.Unlock()

	if message != "" {
		r.mirror(id, message)
	}
	return nil
}

// Get returns a snapshot of a task.
func (r *Registry) Get(id string) (Task, error) {
	task, _, err := r.Snapshot(id)
	return task, err
}

// Snapshot returns a copy of the task together with a channel that is closed
// on the next mutation. Reading both under one lock means no update can slip
// between the copy and the wait.
func (r *Registry) Snapshot(id string) (Task, <-chan struct{}, error) {
	rec, err := r.lookup(id)
	if err != nil {
		return Task{}, nil, err
	}
	rec.mu.RLock()
	defer rec.mu.RUnlock()
	return rec.task.clone(), rec.changed, nil
}

// List returns summaries of every task, newest first.
func (r *Registry) List() []Summary {
	var out []Summary
	r.tasks.Range(func(_, value any) bool {
		rec := value.(*record)
		rec.mu.RLock()
		out = append(out, Summary{
			ID:        rec.task.ID,
			Kind:      rec.task.Kind,
			Status:    rec.task.Status,
			Progress:  rec.task.Progress,
			LastLog:   rec.task.LastLog(),
			CreatedAt: rec.task.CreatedAt,
		})
		rec.mu.RUnlock()
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (r *Registry) lookup(id string) (*record, error) {
	value, ok := r.tasks.Load(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return value.(*record), nil
}

func (r *Registry) mutate(id string, fn func(*Task)) error {
	rec, err := r.lookup(id)
	if err != nil {
		return err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	fn(&rec.task)
	rec.task.UpdatedAt = r.now().UTC()
	rec.notifyLocked()
	return nil
}

func (r *Registry) mirror(id, message string) {
	attrs := logging.Args(logging.String(logging.FieldTaskID, id))
	switch {
	case strings.HasPrefix(message, ErrorPrefix):
		r.logger.Error(message, attrs...)
	case strings.HasPrefix(message, WarningPrefix):
		r.logger.Warn(message, attrs...)
	default:
		r.logger.Info(message, attrs...)
	}
}

func logEntry(now time.Time, message string) string {
	return fmt.Sprintf("[%s] %s", now.Format("15:04:05"), message)
}

func (rec *record) notifyLocked() {
	close(rec.changed)
	rec.changed = make(chan struct{})
}

func (t Task) clone() Task {
	out := t
	out.Logs = make([]string, len(t.Logs))
	copy(out.Logs, t.Logs)
	return out
}
