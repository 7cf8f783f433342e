package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"ccgen/internal/engine"
	"ccgen/internal/logging"
	"ccgen/internal/models"
	"ccgen/internal/progress"
	"ccgen/internal/subtitles"
	"ccgen/internal/tasks"
	"ccgen/internal/transcript"
)

type harness struct {
	runner   *Runner
	registry *tasks.Registry
	store    *models.Store
	uploads  string

	mu       sync.Mutex
	requests []engine.Request
}

type harnessOptions struct {
	transcribe    engine.Func
	downloader    models.DownloaderFunc
	maxConcurrent int
}

func newHarness(t *testing.T, opts harnessOptions) *harness {
	t.Helper()
	base := t.TempDir()
	h := &harness{
		registry: tasks.NewRegistry(logging.NewNop()),
		uploads:  filepath.Join(base, "uploads"),
	}
	if err := os.MkdirAll(h.uploads, 0o755); err != nil {
		t.Fatalf("mkdir uploads: %v", err)
	}
	downloader := opts.downloader
	if downloader == nil {
		downloader = func(_ context.Context, _ string, dir string) error {
			return writeWeights(dir)
		}
	}
	h.store = models.NewStore(filepath.Join(base, "models"), downloader, logging.NewNop(), models.WithMinFreeBytes(1))

	run := opts.transcribe
	if run == nil {
		run = func(context.Context, engine.Request) ([]transcript.Segment, error) {
			return sampleSegments(), nil
		}
	}
	recording := engine.Func(func(ctx context.Context, req engine.Request) ([]transcript.Segment, error) {
		h.mu.Lock()
		h.requests = append(h.requests, req)
		h.mu.Unlock()
		return run(ctx, req)
	})
	h.runner = New(h.registry, h.store, recording, nil, logging.NewNop(), Options{
		MaxConcurrent: opts.maxConcurrent,
		DefaultModel:  "tiny",
	})
	return h
}

func (h *harness) upload(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(h.uploads, name)
	if err := os.WriteFile(path, []byte("RIFF....WAVE"), 0o644); err != nil {
		t.Fatalf("write upload: %v", err)
	}
	return path
}

func (h *harness) task(t *testing.T, id string) tasks.Task {
	t.Helper()
	task, err := h.registry.Get(id)
	if err != nil {
		t.Fatalf("get task %s: %v", id, err)
	}
	return task
}

func writeWeights(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "weights.npz"), []byte("weights"), 0o644)
}

func sampleSegments() []transcript.Segment {
	return []transcript.Segment{
		{Start: 0, End: 1.2, Text: " Hello world.", Words: []transcript.Word{
			{Text: " Hello", Start: 0, End: 0.5},
			{Text: " world.", Start: 0.6, End: 1.2},
		}},
		{Start: 2.5, End: 3.4, Text: " Second line", Words: []transcript.Word{
			{Text: " Second", Start: 2.5, End: 2.9},
			{Text: " line", Start: 3.0, End: 3.4},
		}},
	}
}

func containsLog(logs []string, fragment string) bool {
	for _, line := range logs {
		if strings.Contains(line, fragment) {
			return true
		}
	}
	return false
}

func TestSubmitHappyPath(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	audio := h.upload(t, "talk.wav")
	m, _ := models.Lookup("tiny")
	if err := writeWeights(h.store.LocalDir(m)); err != nil {
		t.Fatalf("seed model: %v", err)
	}

	id, err := h.runner.Submit(Submission{FilePath: audio})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !strings.HasPrefix(id, "talk_wav_") {
		t.Fatalf("unexpected id %q", id)
	}
	h.runner.Wait()

	task := h.task(t, id)
	if task.Status != tasks.StatusDone || task.Progress != 100 {
		t.Fatalf("expected done/100, got %s/%d (logs %v)", task.Status, task.Progress, task.Logs)
	}
	if len(task.Result) != 2 {
		t.Fatalf("expected 2 result segments, got %d", len(task.Result))
	}
	if !strings.HasSuffix(task.LastLog(), tasks.MarkerDone) {
		t.Fatalf("last log should be the done marker, got %q", task.LastLog())
	}
	for _, want := range []string{
		"Received file: talk.wav",
		"Initializing transcription with model: mlx-community/whisper-tiny",
		"Using local model found at: " + h.store.LocalDir(m),
		"Inference complete. Formatting SRT file...",
		"SUCCESS: Generated talk.srt",
		"Cleaned up source file: talk.wav",
	} {
		if !containsLog(task.Logs, want) {
			t.Errorf("missing log %q in %v", want, task.Logs)
		}
	}

	output := filepath.Join(h.uploads, "talk.srt")
	if task.Output != output {
		t.Fatalf("expected output %s, got %s", output, task.Output)
	}
	cues, err := subtitles.ParseFile(output)
	if err != nil {
		t.Fatalf("parse output: %v", err)
	}
	want := subtitles.NewSegmenter(subtitles.DefaultOptions()).Cues(sampleSegments())
	if len(cues) != len(want) {
		t.Fatalf("expected %d cues, got %d", len(want), len(cues))
	}
	if _, err := os.Stat(audio); !os.IsNotExist(err) {
		t.Fatalf("expected source audio removed, stat err=%v", err)
	}

	if len(h.requests) != 1 {
		t.Fatalf("expected one engine call, got %d", len(h.requests))
	}
	req := h.requests[0]
	if req.AudioPath != audio || req.ModelDir != h.store.LocalDir(m) || !req.WordTimestamps {
		t.Fatalf("unexpected engine request %+v", req)
	}
}

func TestSubmitEngineFailure(t *testing.T) {
	h := newHarness(t, harnessOptions{
		transcribe: func(context.Context, engine.Request) ([]transcript.Segment, error) {
			return nil, errors.New("model weights corrupt")
		},
	})
	audio := h.upload(t, "broken.wav")

	id, err := h.runner.Submit(Submission{FilePath: audio, Model: "tiny"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	h.runner.Wait()

	task := h.task(t, id)
	if task.Status != tasks.StatusError || task.Progress != tasks.ProgressError {
		t.Fatalf("expected error/-1, got %s/%d", task.Status, task.Progress)
	}
	last := task.LastLog()
	if !strings.Contains(last, "ERROR: transcribing: model weights corrupt") {
		t.Fatalf("unexpected last log %q", last)
	}
	if _, err := os.Stat(audio); err != nil {
		t.Fatalf("source must be kept after a failure: %v", err)
	}
	if task.Output != "" {
		t.Fatalf("no output expected, got %q", task.Output)
	}
}

func TestSubmitDownloadFailureIsNotFatal(t *testing.T) {
	h := newHarness(t, harnessOptions{
		downloader: func(context.Context, string, string) error {
			return errors.New("network unreachable: ERROR 503")
		},
	})
	audio := h.upload(t, "offline.wav")

	id, err := h.runner.Submit(Submission{FilePath: audio, Model: "small"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	h.runner.Wait()

	task := h.task(t, id)
	if task.Status != tasks.StatusDone {
		t.Fatalf("expected done, got %s: %v", task.Status, task.Logs)
	}
	if !containsLog(task.Logs, "Model not found in") {
		t.Fatalf("expected download announcement in %v", task.Logs)
	}
	var warning string
	for _, line := range task.Logs {
		if strings.Contains(line, "WARNING: Model download failed") {
			warning = line
		}
	}
	if warning == "" {
		t.Fatalf("expected model resolution warning in %v", task.Logs)
	}
	if tasks.IsTerminalLine(warning) {
		t.Fatalf("warning must not read as terminal: %q", warning)
	}
	m, _ := models.Lookup("small")
	if got := h.requests[0].ModelDir; got != h.store.LocalDir(m) {
		t.Fatalf("engine should receive the expected model dir, got %q", got)
	}
	if h.requests[0].Model != m.RepoID {
		t.Fatalf("engine should receive the repo id, got %q", h.requests[0].Model)
	}
}

func TestSubmitDownloadsMissingModel(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	audio := h.upload(t, "fresh.wav")

	id, err := h.runner.Submit(Submission{FilePath: audio, Model: "base"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	h.runner.Wait()

	task := h.task(t, id)
	if task.Status != tasks.StatusDone {
		t.Fatalf("expected done, got %s: %v", task.Status, task.Logs)
	}
	if !containsLog(task.Logs, "Download complete!") {
		t.Fatalf("expected download completion in %v", task.Logs)
	}
	m, _ := models.Lookup("base")
	if !h.store.IsDownloaded(m) {
		t.Fatal("model should be on disk after the task")
	}
}

func TestMarkersInModelNamesDoNotEndTheStream(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	audio := h.upload(t, "clip.wav")

	id, err := h.runner.Submit(Submission{FilePath: audio, Model: "acme/ERROR-Done!-whisper"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	h.runner.Wait()

	task := h.task(t, id)
	if task.Status != tasks.StatusDone {
		t.Fatalf("expected done, got %s: %v", task.Status, task.Logs)
	}
	for i, line := range task.Logs[:len(task.Logs)-1] {
		if tasks.IsTerminalLine(line) {
			t.Fatalf("log %d looks terminal: %q", i, line)
		}
	}
	if !containsLog(task.Logs, "Initializing transcription with model: acme/error-Done-whisper") {
		t.Fatalf("expected defused model id in %v", task.Logs)
	}
	if h.requests[0].Model != "acme/ERROR-Done!-whisper" {
		t.Fatalf("engine should receive the repo id unchanged, got %q", h.requests[0].Model)
	}
}

func TestCleanupFailureKeepsTaskDone(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	h.runner.remove = func(string) error { return errors.New("file busy") }
	audio := h.upload(t, "locked.wav")

	id, err := h.runner.Submit(Submission{FilePath: audio, Model: "tiny"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	h.runner.Wait()

	task := h.task(t, id)
	if task.Status != tasks.StatusDone || task.Progress != 100 {
		t.Fatalf("expected done/100, got %s/%d", task.Status, task.Progress)
	}
	if !containsLog(task.Logs, "WARNING: Failed to delete source file: file busy") {
		t.Fatalf("expected cleanup warning in %v", task.Logs)
	}
	if !strings.HasSuffix(task.LastLog(), tasks.MarkerDone) {
		t.Fatalf("expected done marker last, got %q", task.LastLog())
	}
}

func TestCleanupWaitsForGraceDelay(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	h.runner.cleanupDelay = 750 * time.Millisecond
	var slept time.Duration
	h.runner.sleep = func(_ context.Context, d time.Duration) { slept = d }
	audio := h.upload(t, "grace.wav")

	if _, err := h.runner.Submit(Submission{FilePath: audio, Model: "tiny"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	h.runner.Wait()
	if slept != 750*time.Millisecond {
		t.Fatalf("expected grace delay before delete, got %v", slept)
	}
}

func TestSubmitRecoversPanic(t *testing.T) {
	h := newHarness(t, harnessOptions{
		transcribe: func(context.Context, engine.Request) ([]transcript.Segment, error) {
			panic("segfault in decoder")
		},
	})
	audio := h.upload(t, "panic.wav")

	id, err := h.runner.Submit(Submission{FilePath: audio, Model: "tiny"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	h.runner.Wait()

	task := h.task(t, id)
	if task.Status != tasks.StatusError {
		t.Fatalf("expected error, got %s", task.Status)
	}
	if !strings.Contains(task.LastLog(), "ERROR: transcribing: panic: segfault in decoder") {
		t.Fatalf("unexpected last log %q", task.LastLog())
	}
}

func TestSubmitRejectsUnknownModelAsTaskError(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	audio := h.upload(t, "odd.wav")

	id, err := h.runner.Submit(Submission{FilePath: audio, Model: "not-a-model"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	h.runner.Wait()

	task := h.task(t, id)
	if task.Status != tasks.StatusError || !strings.Contains(task.LastLog(), "ERROR: initializing:") {
		t.Fatalf("unexpected final state %s %q", task.Status, task.LastLog())
	}
	if len(h.requests) != 0 {
		t.Fatal("engine must not run for an unknown model")
	}
}

func TestSubmitRequiresPath(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	if _, err := h.runner.Submit(Submission{}); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestSubmitDownloadTask(t *testing.T) {
	h := newHarness(t, harnessOptions{})

	id, err := h.runner.SubmitDownload("tiny")
	if err != nil {
		t.Fatalf("SubmitDownload: %v", err)
	}
	if !strings.HasPrefix(id, "download_tiny_") {
		t.Fatalf("unexpected id %q", id)
	}
	h.runner.Wait()

	task := h.task(t, id)
	if task.Kind != tasks.KindDownload || task.Status != tasks.StatusDone || task.Progress != 100 {
		t.Fatalf("unexpected task %+v", task)
	}
	for _, want := range []string{
		"Starting download of mlx-community/whisper-tiny...",
		"Successfully downloaded mlx-community/whisper-tiny",
		tasks.MarkerDone,
	} {
		if !containsLog(task.Logs, want) {
			t.Errorf("missing log %q in %v", want, task.Logs)
		}
	}

	if _, err := h.runner.SubmitDownload("gpt-9"); !errors.Is(err, models.ErrUnknownModel) {
		t.Fatalf("expected ErrUnknownModel, got %v", err)
	}
}

func TestSubmitDownloadFailure(t *testing.T) {
	h := newHarness(t, harnessOptions{
		downloader: func(context.Context, string, string) error { return errors.New("401 unauthorized") },
	})
	id, err := h.runner.SubmitDownload("base")
	if err != nil {
		t.Fatalf("SubmitDownload: %v", err)
	}
	h.runner.Wait()

	task := h.task(t, id)
	if task.Status != tasks.StatusError || task.Progress != tasks.ProgressError {
		t.Fatalf("expected error/-1, got %s/%d", task.Status, task.Progress)
	}
	if !strings.Contains(task.LastLog(), "ERROR: downloading: 401 unauthorized") {
		t.Fatalf("unexpected last log %q", task.LastLog())
	}
}

func TestStopInterruptsBetweenStages(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	h := newHarness(t, harnessOptions{
		maxConcurrent: 1,
		transcribe: func(context.Context, engine.Request) ([]transcript.Segment, error) {
			close(started)
			<-release
			return sampleSegments(), nil
		},
	})

	first, err := h.runner.Submit(Submission{FilePath: h.upload(t, "first.wav"), Model: "tiny"})
	if err != nil {
		t.Fatalf("Submit first: %v", err)
	}
	<-started
	second, err := h.runner.Submit(Submission{FilePath: h.upload(t, "second.wav"), Model: "tiny"})
	if err != nil {
		t.Fatalf("Submit second: %v", err)
	}

	stopped := make(chan struct{})
	go func() {
		h.runner.Stop()
		close(stopped)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for h.task(t, second).Status != tasks.StatusError {
		if time.Now().After(deadline) {
			t.Fatal("queued task was not interrupted")
		}
		time.Sleep(10 * time.Millisecond)
	}
	close(release)
	<-stopped

	for _, id := range []string{first, second} {
		task := h.task(t, id)
		if task.Status != tasks.StatusError || !strings.Contains(task.LastLog(), "interrupted") {
			t.Fatalf("task %s: expected interrupted error, got %s %q", id, task.Status, task.LastLog())
		}
	}
	if len(h.requests) != 1 {
		t.Fatalf("queued task must not reach the engine, got %d calls", len(h.requests))
	}
	if _, err := h.runner.Submit(Submission{FilePath: "x.wav"}); err == nil {
		t.Fatal("Submit after Stop should fail")
	}
}

func TestConcurrentTasksAreIndependent(t *testing.T) {
	h := newHarness(t, harnessOptions{maxConcurrent: 3})
	ids := make([]string, 0, 6)
	for _, name := range []string{"a.wav", "b.wav", "c.wav", "d.wav", "e.wav", "f.wav"} {
		id, err := h.runner.Submit(Submission{FilePath: h.upload(t, name), Model: "tiny"})
		if err != nil {
			t.Fatalf("Submit %s: %v", name, err)
		}
		ids = append(ids, id)
	}
	h.runner.Wait()
	for _, id := range ids {
		if task := h.task(t, id); task.Status != tasks.StatusDone {
			t.Fatalf("task %s ended %s: %v", id, task.Status, task.Logs)
		}
	}
}

func TestProgressStreamObservesRunToCompletion(t *testing.T) {
	release := make(chan struct{})
	h := newHarness(t, harnessOptions{
		transcribe: func(context.Context, engine.Request) ([]transcript.Segment, error) {
			<-release
			return sampleSegments(), nil
		},
	})
	id, err := h.runner.Submit(Submission{FilePath: h.upload(t, "live.wav"), Model: "tiny"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	var events []progress.Event
	done := make(chan error, 1)
	go func() {
		done <- progress.Stream(context.Background(), h.registry, id, 20*time.Millisecond, func(evt progress.Event) error {
			events = append(events, evt)
			return nil
		})
	}()
	close(release)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Stream: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not end after the task finished")
	}
	h.runner.Wait()

	last := events[len(events)-1]
	if last.Kind != progress.EventProgress || last.Progress != 100 {
		t.Fatalf("expected final progress 100, got %+v", last)
	}
	var lastLog string
	for _, evt := range events {
		if evt.Kind == progress.EventLog {
			lastLog = evt.Line
		}
	}
	if !strings.HasSuffix(lastLog, tasks.MarkerDone) {
		t.Fatalf("expected done marker as final log event, got %q", lastLog)
	}
}
