package tasks

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"ccgen/internal/logging"
	"ccgen/internal/transcript"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	clock := time.Date(2026, 3, 1, 14, 5, 9, 0, time.Local)
	return NewRegistry(logging.NewNop(), WithClock(func() time.Time { return clock }))
}

func TestCreateInitialState(t *testing.T) {
	reg := newTestRegistry(t)
	id, err := reg.Create(KindTranscription, "Interview.wav")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !strings.HasPrefix(id, "interview_wav_") {
		t.Fatalf("unexpected id %q", id)
	}
	task, err := reg.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if task.Status != StatusRunning || task.Progress != 0 || len(task.Logs) != 0 || task.Result != nil {
		t.Fatalf("unexpected initial task: %+v", task)
	}
	if task.Kind != KindTranscription {
		t.Fatalf("unexpected kind %q", task.Kind)
	}
}

func TestAppendLogFormatsTimestamp(t *testing.T) {
	reg := newTestRegistry(t)
	id, _ := reg.Create(KindTranscription, "clip")
	if err := reg.AppendLog(id, "Received clip.wav"); err != nil {
		t.Fatalf("AppendLog: %v", err)
	}
	task, _ := reg.Get(id)
	if got := task.LastLog(); got != "[14:05:09] Received clip.wav" {
		t.Fatalf("unexpected log entry %q", got)
	}
}

func TestUnknownTaskIsNotFound(t *testing.T) {
	reg := newTestRegistry(t)
	checks := map[string]error{
		"get":      func() error { _, err := reg.Get("nope"); return err }(),
		"log":      reg.AppendLog("nope", "x"),
		"progress": reg.SetProgress("nope", 5),
		"result":   reg.SetResult("nope", nil),
		"finish":   reg.Finish("nope", StatusDone, MarkerDone),
	}
	for name, err := range checks {
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("%s: expected ErrNotFound, got %v", name, err)
		}
	}
}

func TestConcurrentAppendLogLosesNothing(t *testing.T) {
	reg := NewRegistry(logging.NewNop())
	id, _ := reg.Create(KindTranscription, "concurrent")

	const n = 200
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			if err := reg.AppendLog(id, fmt.Sprintf("message %03d", i)); err != nil {
				t.Errorf("AppendLog: %v", err)
			}
		}(i)
	}

	// Readers running alongside writers must only ever see well-formed entries.
	entry := regexp.MustCompile(`^\[\d{2}:\d{2}:\d{2}\] message \d{3}$`)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			task, err := reg.Get(id)
			if err != nil {
				t.Errorf("Get: %v", err)
				return
			}
			for _, line := range task.Logs {
				if !entry.MatchString(line) {
					t.Errorf("torn log entry %q", line)
				}
			}
		}
	}()
	wg.Wait()
	<-done

	task, _ := reg.Get(id)
	if len(task.Logs) != n {
		t.Fatalf("expected %d entries, got %d", n, len(task.Logs))
	}
	seen := make(map[string]bool, n)
	for _, line := range task.Logs {
		seen[line[len("[00:00:00] "):]] = true
	}
	for i := 0; i < n; i++ {
		if msg := fmt.Sprintf("message %03d", i); !seen[msg] {
			t.Fatalf("missing %q", msg)
		}
	}
}

func TestSnapshotsAreCopies(t *testing.T) {
	reg := newTestRegistry(t)
	id, _ := reg.Create(KindTranscription, "copy")
	_ = reg.AppendLog(id, "one")

	task, _ := reg.Get(id)
	task.Logs[0] = "tampered"
	task.Logs = append(task.Logs, "extra")

	again, _ := reg.Get(id)
	if len(again.Logs) != 1 || again.Logs[0] != "[14:05:09] one" {
		t.Fatalf("registry state changed through a snapshot: %v", again.Logs)
	}
}

func TestFinishExactlyOnce(t *testing.T) {
	reg := newTestRegistry(t)
	id, _ := reg.Create(KindTranscription, "once")
	if err := reg.Finish(id, StatusRunning, ""); err == nil {
		t.Fatal("expected non-terminal status to be rejected")
	}
	if err := reg.Finish(id, StatusError, ErrorPrefix+"boom"); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if err := reg.Finish(id, StatusDone, MarkerDone); !errors.Is(err, ErrTerminal) {
		t.Fatalf("expected ErrTerminal, got %v", err)
	}
	task, _ := reg.Get(id)
	if task.Status != StatusError || task.Progress != ProgressError {
		t.Fatalf("unexpected terminal state: status=%s progress=%d", task.Status, task.Progress)
	}
	if len(task.Logs) != 1 || task.Logs[0] != "[14:05:09] ERROR: boom" {
		t.Fatalf("rejected finishes must not append lines: %v", task.Logs)
	}
}

func TestFinishLineAndStatusChangeTogether(t *testing.T) {
	reg := newTestRegistry(t)
	id, _ := reg.Create(KindTranscription, "atomic")
	_, changed, err := reg.Snapshot(id)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if err := reg.Finish(id, StatusDone, MarkerDone); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	select {
	case <-changed:
	default:
		t.Fatal("finish should notify watchers")
	}
	task, _ := reg.Get(id)
	if !IsTerminalLine(task.LastLog()) || task.Status != StatusDone {
		t.Fatalf("terminal line and status out of step: status=%s logs=%v", task.Status, task.Logs)
	}
}

func TestSetProgressRange(t *testing.T) {
	reg := newTestRegistry(t)
	id, _ := reg.Create(KindTranscription, "p")
	for _, v := range []int{0, 5, 100, ProgressError} {
		if err := reg.SetProgress(id, v); err != nil {
			t.Fatalf("SetProgress(%d): %v", v, err)
		}
	}
	for _, v := range []int{-2, 101} {
		if err := reg.SetProgress(id, v); err == nil {
			t.Fatalf("expected SetProgress(%d) to fail", v)
		}
	}
}

func TestSetResultAndOutput(t *testing.T) {
	reg := newTestRegistry(t)
	id, _ := reg.Create(KindTranscription, "r")
	segs := []transcript.Segment{{Start: 0, End: 1, Text: "hi"}}
	if err := reg.SetResult(id, segs); err != nil {
		t.Fatalf("SetResult: %v", err)
	}
	if err := reg.SetOutput(id, "/tmp/r.srt"); err != nil {
		t.Fatalf("SetOutput: %v", err)
	}
	task, _ := reg.Get(id)
	if len(task.Result) != 1 || task.Result[0].Text != "hi" || task.Output != "/tmp/r.srt" {
		t.Fatalf("unexpected task: %+v", task)
	}
}

func TestSnapshotChannelClosesOnChange(t *testing.T) {
	reg := newTestRegistry(t)
	id, _ := reg.Create(KindTranscription, "notify")
	_, changed, err := reg.Snapshot(id)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	select {
	case <-changed:
		t.Fatal("channel closed before any change")
	default:
	}

	go func() { _ = reg.SetProgress(id, 30) }()

	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("change channel was not closed")
	}
	task, next, _ := reg.Snapshot(id)
	if task.Progress != 30 {
		t.Fatalf("expected progress 30, got %d", task.Progress)
	}
	if next == changed {
		t.Fatal("expected a fresh change channel")
	}
}

func TestListNewestFirst(t *testing.T) {
	now := time.Unix(1000, 0)
	reg := NewRegistry(logging.NewNop(), WithClock(func() time.Time { return now }))
	first, _ := reg.Create(KindTranscription, "a")
	now = now.Add(time.Second)
	second, _ := reg.Create(KindDownload, "download_tiny")
	_ = reg.AppendLog(second, "Starting download")

	list := reg.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(list))
	}
	if list[0].ID != second || list[1].ID != first {
		t.Fatalf("unexpected order: %v, %v", list[0].ID, list[1].ID)
	}
	if !strings.HasSuffix(list[0].LastLog, "Starting download") {
		t.Fatalf("unexpected last log %q", list[0].LastLog)
	}
}

func TestNewIDUniqueWithinSameSecond(t *testing.T) {
	now := time.Unix(1700000000, 0)
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewID("same.wav", now)
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
		if !strings.HasPrefix(id, "same_wav_1700000000_") {
			t.Fatalf("unexpected id shape %q", id)
		}
	}
}

func TestIsTerminalLine(t *testing.T) {
	cases := map[string]bool{
		"[10:00:00] Done!":                true,
		"[10:00:00] ERROR: engine failed": true,
		"[10:00:00] Transcribing...":      false,
		"":                                false,
	}
	for line, want := range cases {
		if got := IsTerminalLine(line); got != want {
			t.Errorf("IsTerminalLine(%q) = %v, want %v", line, got, want)
		}
	}
}

func TestStripMarkers(t *testing.T) {
	got := StripMarkers("hf: ERROR 404 for Done!.wav")
	if IsTerminalLine(got) {
		t.Fatalf("StripMarkers left a marker: %q", got)
	}
	if got != "hf: error 404 for Done.wav" {
		t.Fatalf("unexpected output %q", got)
	}
}
