package runner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"ccgen/internal/engine"
	"ccgen/internal/logging"
	"ccgen/internal/models"
	"ccgen/internal/subtitles"
	"ccgen/internal/tasks"
	"ccgen/internal/textutil"
)

// pipeline is the single writer for one task record.
type pipeline struct {
	runner     *Runner
	id         string
	kind       tasks.Kind
	logger     *slog.Logger
	stage      Stage
	stageStart time.Time
}

// enter closes the current stage and moves to next unless the runner is
// shutting down.
func (p *pipeline) enter(ctx context.Context, next Stage) error {
	p.closeStage(ctx)
	if err := ctx.Err(); err != nil {
		return &StageError{Stage: next, Err: fmt.Errorf("%w: %v", ErrInterrupted, err)}
	}
	p.setStage(next)
	return nil
}

func (p *pipeline) setStage(next Stage) {
	p.stage = next
	p.stageStart = time.Now()
	p.logger.Debug("stage entered", logging.String(logging.FieldStage, string(next)))
}

func (p *pipeline) closeStage(ctx context.Context) {
	if p.stage == "" || p.stageStart.IsZero() {
		return
	}
	p.runner.metrics.StageCompleted(context.WithoutCancel(ctx), string(p.stage), time.Since(p.stageStart))
	p.stageStart = time.Time{}
}

// log appends a progress line. Terminal markers in the text are defused;
// only finish writes them.
func (p *pipeline) log(message string) {
	if err := p.runner.registry.AppendLog(p.id, tasks.StripMarkers(message)); err != nil {
		p.logger.Warn("task log append failed", logging.Error(err))
	}
}

func (p *pipeline) warn(message string) {
	p.log(tasks.WarningPrefix + message)
}

func (p *pipeline) progress(value int) {
	if err := p.runner.registry.SetProgress(p.id, value); err != nil {
		p.logger.Warn("task progress update failed", logging.Error(err), logging.Int("progress", value))
	}
}

func (p *pipeline) fail(err error) error {
	return &StageError{Stage: p.stage, Err: err}
}

// finish writes the terminal marker and status. On failure progress is set
// to -1 before the ERROR line so observers see the sentinel first.
func (p *pipeline) finish(ctx context.Context, err error) {
	p.closeStage(ctx)
	r := p.runner
	status, line := tasks.StatusDone, tasks.MarkerDone
	if err != nil {
		status, line = tasks.StatusError, tasks.ErrorPrefix+err.Error()
		p.progress(tasks.ProgressError)
		logging.ErrorWithContext(p.logger, "task failed", "task_failure",
			logging.String(logging.FieldStage, string(FailedStage(err))),
			logging.String(logging.FieldErrorHint, failureHint(err)),
			logging.Error(err),
		)
	} else {
		p.logger.Info("task finished", logging.String(logging.FieldEventType, "task_complete"))
	}
	// Status and terminal line change under one lock.
	if ferr := r.registry.Finish(p.id, status, line); ferr != nil {
		p.logger.Warn("task finish failed", logging.Error(ferr))
	}
	r.metrics.TaskFinished(context.WithoutCancel(ctx), string(p.kind), string(status))
}

func failureHint(err error) string {
	if errors.Is(err, ErrInterrupted) {
		return "the service was shutting down; resubmit the file"
	}
	switch FailedStage(err) {
	case StageInitializing:
		return "check the model name and that the uploaded file still exists"
	case StageTranscribing:
		return "check engine.command and the engine output above"
	case StageWriting:
		return "check that paths.uploads_dir is writable"
	case StageDownloading:
		return "check network access, downloader.command and HF_TOKEN"
	default:
		return "check logs for details"
	}
}

func (r *Runner) transcribe(ctx context.Context, p *pipeline, sub Submission) error {
	if err := p.enter(ctx, StageInitializing); err != nil {
		return err
	}
	ref := sub.Model
	if ref == "" {
		ref = r.defaultModel
	}
	m, err := models.Resolve(ref)
	if err != nil {
		return p.fail(err)
	}
	p.logger = p.logger.With(logging.String(logging.FieldModel, m.RepoID))
	p.log("Initializing transcription with model: " + m.RepoID)
	p.progress(5)
	if _, err := os.Stat(sub.FilePath); err != nil {
		return p.fail(fmt.Errorf("source file: %w", err))
	}

	if err := p.enter(ctx, StageResolvingModel); err != nil {
		return err
	}
	modelDir := r.resolveModel(ctx, p, m)
	p.progress(20)

	if err := p.enter(ctx, StageLoading); err != nil {
		return err
	}
	p.log("Loading model into memory...")
	p.log("TIP: Initial load may be slow. Subsequent calls will be faster.")
	p.progress(30)
	p.log("Model loaded. Starting inference...")

	if err := p.enter(ctx, StageTranscribing); err != nil {
		return err
	}
	// An inference call in flight is not interrupted by shutdown.
	segments, err := r.engine.Transcribe(context.WithoutCancel(ctx), engine.Request{
		AudioPath:      sub.FilePath,
		ModelDir:       modelDir,
		Model:          m.RepoID,
		WordTimestamps: true,
		Language:       r.language,
	})
	if err != nil {
		return p.fail(err)
	}
	p.progress(80)
	p.log("Inference complete. Formatting SRT file...")

	if err := p.enter(ctx, StageWriting); err != nil {
		return err
	}
	cues := r.segmenter.Cues(segments)
	output := textutil.ReplaceExt(sub.FilePath, subtitles.Extension)
	if err := subtitles.WriteFile(output, cues); err != nil {
		return p.fail(err)
	}
	if err := r.registry.SetResult(p.id, segments); err != nil {
		return p.fail(err)
	}
	if err := r.registry.SetOutput(p.id, output); err != nil {
		return p.fail(err)
	}
	p.progress(100)
	p.log("SUCCESS: Generated " + filepath.Base(output))
	p.logger.Info("subtitles written",
		logging.String(logging.FieldEventType, "subtitles_written"),
		logging.String("output", output),
		logging.Int("segments", len(segments)),
		logging.Int("cues", len(cues)),
	)

	// The subtitles exist; a shutdown from here on still ends in Done.
	p.closeStage(ctx)
	p.setStage(StageCleaningUp)
	r.cleanup(ctx, p, sub.FilePath)
	return nil
}

// resolveModel returns the directory handed to the engine. Download failures
// are reported and otherwise ignored: the engine may still find the model in
// its own cache.
func (r *Runner) resolveModel(ctx context.Context, p *pipeline, m models.Model) string {
	dir := r.store.LocalDir(m)
	if r.store.IsDownloaded(m) {
		p.log("Using local model found at: " + dir)
		return dir
	}

	p.log(fmt.Sprintf("Model not found in %s. Starting download from Hugging Face...", dir))
	p.log(fmt.Sprintf("This may take a while depending on your internet speed (%s is %s).", m.Name, m.SizeHint()))
	p.progress(10)

	res, err := r.store.Download(ctx, m)
	if err != nil {
		r.metrics.ModelDownload(context.WithoutCancel(ctx), m.Key, "failed")
		p.warn(fmt.Sprintf("Model download failed: %s. Attempting to use the engine's default cache...", err))
		logging.WarnWithContext(p.logger, "model resolution failed", "model_resolution_failure",
			logging.Error(err),
			logging.String("model_dir", dir),
			logging.String(logging.FieldErrorHint, "check network access or run `ccgen models download "+m.Key+"`"),
			logging.String(logging.FieldImpact, "engine falls back to its own cache; transcription may fail later"),
		)
		return dir
	}
	result := "downloaded"
	if res.AlreadyPresent {
		result = "present"
	}
	r.metrics.ModelDownload(context.WithoutCancel(ctx), m.Key, result)
	p.log("Download complete!")
	p.log("Using local model found at: " + res.Dir)
	return res.Dir
}

// cleanup removes the source audio after a grace delay so the engine can
// release its file handles. Failures only warn.
func (r *Runner) cleanup(ctx context.Context, p *pipeline, path string) {
	r.sleep(ctx, r.cleanupDelay)
	if err := r.remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			p.logger.Debug("source file already gone", logging.String("path", path))
			return
		}
		p.warn("Failed to delete source file: " + err.Error())
		logging.WarnWithContext(p.logger, "source cleanup failed", "cleanup_failure",
			logging.Error(err),
			logging.String("path", path),
			logging.String(logging.FieldErrorHint, "remove the file manually"),
			logging.String(logging.FieldImpact, "uploaded audio stays on disk"),
		)
		return
	}
	p.log("Cleaned up source file: " + filepath.Base(path))
}

func (r *Runner) download(ctx context.Context, p *pipeline, m models.Model) error {
	if err := p.enter(ctx, StageDownloading); err != nil {
		return err
	}
	p.logger = p.logger.With(logging.String(logging.FieldModel, m.RepoID))
	p.log(fmt.Sprintf("Starting download of %s...", m.RepoID))
	p.progress(10)

	res, err := r.store.Download(ctx, m)
	if err != nil {
		r.metrics.ModelDownload(context.WithoutCancel(ctx), m.Key, "failed")
		return p.fail(err)
	}
	result := "downloaded"
	if res.AlreadyPresent {
		result = "present"
		p.log("Model already present at " + res.Dir)
	}
	r.metrics.ModelDownload(context.WithoutCancel(ctx), m.Key, result)
	p.progress(100)
	p.log("Successfully downloaded " + m.RepoID)
	return nil
}
