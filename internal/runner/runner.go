package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"ccgen/internal/config"
	"ccgen/internal/engine"
	"ccgen/internal/logging"
	"ccgen/internal/metrics"
	"ccgen/internal/models"
	"ccgen/internal/subtitles"
	"ccgen/internal/tasks"
)

// ModelStore is the subset of models.Store the runner depends on.
type ModelStore interface {
	LocalDir(m models.Model) string
	IsDownloaded(m models.Model) bool
	Download(ctx context.Context, m models.Model) (models.DownloadResult, error)
}

// Options tunes a Runner.
type Options struct {
	MaxConcurrent int
	CleanupDelay  time.Duration
	DefaultModel  string
	Language      string
	Metrics       *metrics.Metrics
}

// OptionsFromConfig maps the runner, engine and metrics sections of cfg.
func OptionsFromConfig(cfg *config.Config, m *metrics.Metrics) Options {
	if cfg == nil {
		return Options{Metrics: m}
	}
	return Options{
		MaxConcurrent: cfg.Runner.MaxConcurrent,
		CleanupDelay:  cfg.CleanupDelay(),
		DefaultModel:  cfg.Runner.DefaultModel,
		Language:      cfg.Engine.Language,
		Metrics:       m,
	}
}

// Submission describes one transcription request.
type Submission struct {
	// FilePath is the audio file to transcribe. The runner deletes it after
	// a successful run.
	FilePath string
	// Model is a catalog key or repo id; empty selects the default model.
	Model string
	// Name labels the task; defaults to the base name of FilePath.
	Name string
}

// Runner dispatches tasks onto a bounded worker pool.
type Runner struct {
	registry  *tasks.Registry
	store     ModelStore
	engine    engine.Engine
	segmenter *subtitles.Segmenter
	metrics   *metrics.Metrics
	logger    *slog.Logger

	cleanupDelay time.Duration
	defaultModel string
	language     string

	slots  chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	stopped bool

	sleep  func(ctx context.Context, d time.Duration)
	remove func(path string) error
}

// New builds a Runner. A nil segmenter uses the default caption thresholds.
func New(registry *tasks.Registry, store ModelStore, eng engine.Engine, segmenter *subtitles.Segmenter, logger *slog.Logger, opts Options) *Runner {
	if segmenter == nil {
		segmenter = subtitles.NewSegmenter(subtitles.DefaultOptions())
	}
	workers := opts.MaxConcurrent
	if workers < 1 {
		workers = 1
	}
	defaultModel := strings.TrimSpace(opts.DefaultModel)
	if defaultModel == "" {
		defaultModel = models.DefaultKey
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		registry:     registry,
		store:        store,
		engine:       eng,
		segmenter:    segmenter,
		metrics:      opts.Metrics,
		logger:       logging.NewComponentLogger(logger, "runner"),
		cleanupDelay: opts.CleanupDelay,
		defaultModel: defaultModel,
		language:     strings.TrimSpace(opts.Language),
		slots:        make(chan struct{}, workers),
		ctx:          ctx,
		cancel:       cancel,
		sleep:        sleepContext,
		remove:       os.Remove,
	}
}

// Registry exposes the registry tasks are recorded in.
func (r *Runner) Registry() *tasks.Registry {
	return r.registry
}

// Submit registers a transcription task and starts it in the background.
func (r *Runner) Submit(sub Submission) (string, error) {
	path := strings.TrimSpace(sub.FilePath)
	if path == "" {
		return "", errors.New("submission file path required")
	}
	name := strings.TrimSpace(sub.Name)
	if name == "" {
		name = filepath.Base(path)
	}
	sub.FilePath = path
	sub.Name = name

	id, err := r.start(tasks.KindTranscription, name, func(ctx context.Context, p *pipeline) error {
		return r.transcribe(ctx, p, sub)
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// SubmitDownload registers a task that fetches the catalog model key.
func (r *Runner) SubmitDownload(key string) (string, error) {
	m, ok := models.Lookup(key)
	if !ok {
		return "", fmt.Errorf("%w: %q", models.ErrUnknownModel, key)
	}
	return r.start(tasks.KindDownload, "download_"+m.Key, func(ctx context.Context, p *pipeline) error {
		return r.download(ctx, p, m)
	})
}

// Wait blocks until every submitted task has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Stop cancels running tasks between stages, rejects new submissions and
// waits for the workers to exit.
func (r *Runner) Stop() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
	r.cancel()
	r.wg.Wait()
}

type pipelineFunc func(ctx context.Context, p *pipeline) error

func (r *Runner) start(kind tasks.Kind, name string, run pipelineFunc) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return "", errors.New("runner stopped")
	}
	id, err := r.registry.Create(kind, name)
	if err != nil {
		return "", fmt.Errorf("create task: %w", err)
	}
	if kind == tasks.KindTranscription {
		_ = r.registry.AppendLog(id, "Received file: "+tasks.StripMarkers(name))
	}
	r.wg.Add(1)
	go r.work(id, kind, run)
	return id, nil
}

func (r *Runner) work(id string, kind tasks.Kind, run pipelineFunc) {
	defer r.wg.Done()

	ctx := logging.WithTaskID(r.ctx, id)
	p := &pipeline{
		runner: r,
		id:     id,
		kind:   kind,
		logger: logging.WithContext(ctx, r.logger),
	}

	r.metrics.TaskStarted(context.WithoutCancel(ctx), string(kind))
	select {
	case r.slots <- struct{}{}:
	case <-ctx.Done():
		p.stage = StageInitializing
		p.finish(ctx, &StageError{Stage: StageInitializing, Err: fmt.Errorf("%w: %v", ErrInterrupted, ctx.Err())})
		return
	}
	defer func() { <-r.slots }()

	p.logger.Info("task started", logging.String(logging.FieldEventType, "task_start"), logging.String("kind", string(kind)))

	var err error
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				p.logger.Error("task panicked",
					logging.String(logging.FieldEventType, "task_panic"),
					logging.Any("panic", rec),
					logging.String("stack", string(debug.Stack())),
				)
				err = &StageError{Stage: p.stage, Err: fmt.Errorf("panic: %v", rec)}
			}
		}()
		err = run(ctx, p)
	}()
	p.finish(ctx, err)
}

func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
