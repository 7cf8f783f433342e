package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ccgen/internal/config"
	"ccgen/internal/progress"
	"ccgen/internal/testsupport"
)

const enginePayload = `{"text":"Hello world. Bye.","language":"en","segments":[` +
	`{"start":0,"end":1.0,"text":" Hello world.","words":[{"word":" Hello","start":0,"end":0.4},{"word":" world.","start":0.5,"end":1.0}]},` +
	`{"start":2.0,"end":2.5,"text":" Bye.","words":[{"word":" Bye.","start":2.0,"end":2.5}]}]}`

const downloaderScript = `#!/bin/sh
dir=""
while [ $# -gt 0 ]; do
  case "$1" in
    --local-dir) dir="$2"; shift ;;
  esac
  shift
done
mkdir -p "$dir"
printf 'weights' > "$dir/weights.npz"
`

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func setupConfig(t *testing.T, opts ...testsupport.ConfigOption) (*config.Config, string) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	cfg := testsupport.NewConfig(t, opts...)
	cfg.Metrics.Enabled = false
	cfg.Downloader.MinFreeGiB = 0
	return cfg, testsupport.WriteConfigFile(t, cfg)
}

func TestConfigInitAndValidate(t *testing.T) {
	_, configPath := setupConfig(t)

	out, _, err := runCLI(t, []string{"config", "validate"}, configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Config path: "+configPath)
	requireContains(t, out, "Configuration valid")

	target := filepath.Join(t.TempDir(), "ccgen.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, _, _, err := config.Load(target); err != nil {
		t.Fatalf("sample config should load: %v", err)
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected init to refuse overwriting without --overwrite")
	}
}

func TestInvalidConfigIsRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("[captions]\nmax_chars = 0\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, _, err := runCLI(t, []string{"config", "validate"}, path)
	if err == nil || !strings.Contains(err.Error(), "captions.max_chars") {
		t.Fatalf("expected validation error naming the field, got %v", err)
	}
}

func TestModelsListDownloadDelete(t *testing.T) {
	cfg, configPath := setupConfig(t)
	stub := filepath.Join(t.TempDir(), "fake-hf")
	if err := os.WriteFile(stub, []byte(downloaderScript), 0o755); err != nil {
		t.Fatalf("write downloader stub: %v", err)
	}
	cfg.Downloader.Command = stub
	configPath = testsupport.WriteConfigFile(t, cfg)

	out, _, err := runCLI(t, []string{"models", "list"}, configPath)
	if err != nil {
		t.Fatalf("models list: %v", err)
	}
	requireContains(t, out, "large-v3-turbo *")
	requireContains(t, out, "distil-large-v3")

	out, _, err = runCLI(t, []string{"models", "download", "tiny"}, configPath)
	if err != nil {
		t.Fatalf("models download: %v\n%s", err, out)
	}
	requireContains(t, out, "Downloading mlx-community/whisper-tiny")
	requireContains(t, out, "done")
	if _, err := os.Stat(filepath.Join(cfg.Paths.ModelsDir, "whisper-tiny", "weights.npz")); err != nil {
		t.Fatalf("expected model files: %v", err)
	}

	out, _, err = runCLI(t, []string{"models", "download", "tiny"}, configPath)
	if err != nil {
		t.Fatalf("second download: %v", err)
	}
	requireContains(t, out, "already present")

	out, _, err = runCLI(t, []string{"models", "list", "--json"}, configPath)
	if err != nil {
		t.Fatalf("models list --json: %v", err)
	}
	requireContains(t, out, `"downloaded": true`)

	if _, _, err := runCLI(t, []string{"models", "download", "huge"}, configPath); err == nil {
		t.Fatal("expected unknown model error")
	}

	out, _, err = runCLI(t, []string{"models", "delete", "tiny"}, configPath)
	if err != nil {
		t.Fatalf("models delete: %v", err)
	}
	requireContains(t, out, "Deleted model tiny")
	if _, _, err := runCLI(t, []string{"models", "delete", "tiny"}, configPath); err == nil {
		t.Fatal("expected error deleting a model that is not downloaded")
	}
}

func TestTranscribeWritesSubtitlesNextToInput(t *testing.T) {
	cfg, _ := setupConfig(t,
		testsupport.WithEngineScript(testsupport.EngineScript(enginePayload)),
		testsupport.WithDefaultModel("tiny"),
	)
	// The model is "present" so no downloader runs.
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.ModelsDir, "whisper-tiny", "weights.npz"), 16)
	configPath := testsupport.WriteConfigFile(t, cfg)

	input := filepath.Join(t.TempDir(), "Interview Take 1.wav")
	testsupport.WriteFile(t, input, 64)

	out, _, err := runCLI(t, []string{"transcribe", input}, configPath)
	if err != nil {
		t.Fatalf("transcribe: %v\n%s", err, out)
	}
	requireContains(t, out, "Received file: Interview Take 1.wav")
	requireContains(t, out, "100%")
	requireContains(t, out, "Done!")

	srt := filepath.Join(filepath.Dir(input), "Interview Take 1.srt")
	data, err := os.ReadFile(srt)
	if err != nil {
		t.Fatalf("read srt: %v", err)
	}
	want := "1\n00:00:00,000 --> 00:00:01,000\nHello world.\n\n2\n00:00:02,000 --> 00:00:02,500\nBye.\n\n"
	if string(data) != want {
		t.Fatalf("unexpected srt:\n%s", data)
	}
	if _, err := os.Stat(input); err != nil {
		t.Fatalf("the original input must be kept: %v", err)
	}
	entries, _ := os.ReadDir(cfg.Paths.UploadsDir)
	if len(entries) != 0 {
		t.Fatalf("uploads dir should be empty after the run, found %d entries", len(entries))
	}
}

func TestTranscribeReportsEngineFailure(t *testing.T) {
	cfg, _ := setupConfig(t,
		testsupport.WithEngineScript("#!/bin/sh\necho 'decoder exploded' >&2\nexit 3\n"),
		testsupport.WithDefaultModel("tiny"),
	)
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.ModelsDir, "whisper-tiny", "weights.npz"), 16)
	configPath := testsupport.WriteConfigFile(t, cfg)

	input := filepath.Join(t.TempDir(), "clip.wav")
	testsupport.WriteFile(t, input, 64)

	out, _, err := runCLI(t, []string{"transcribe", input}, configPath)
	if err == nil {
		t.Fatalf("expected failure, output:\n%s", out)
	}
	requireContains(t, err.Error(), "transcribing")
	requireContains(t, out, "ERROR: transcribing")
	if _, statErr := os.Stat(filepath.Join(filepath.Dir(input), "clip.srt")); !os.IsNotExist(statErr) {
		t.Fatalf("no subtitles expected, stat err=%v", statErr)
	}
}

func TestStatusCommand(t *testing.T) {
	_, configPath := setupConfig(t, testsupport.WithStubbedBinaries())

	out, _, err := runCLI(t, []string{"status"}, configPath)
	if err != nil {
		t.Fatalf("status: %v\n%s", err, out)
	}
	requireContains(t, out, "Speech engine")
	requireContains(t, out, "[OK]")
	requireContains(t, out, "Default model")
}

func TestTaskViewPrintsProgressOnChange(t *testing.T) {
	var buf bytes.Buffer
	view := newTaskView(&buf, false)
	events := []progress.Event{
		{Kind: progress.EventLog, Line: "[10:00:00] Received file: a.wav"},
		{Kind: progress.EventProgress, Progress: 0},
		{Kind: progress.EventProgress, Progress: 0},
		{Kind: progress.EventProgress, Progress: 30},
		{Kind: progress.EventLog, Line: "[10:00:01] ERROR: boom"},
		{Kind: progress.EventProgress, Progress: -1},
	}
	for _, evt := range events {
		if err := view.emit(evt); err != nil {
			t.Fatalf("emit: %v", err)
		}
	}
	out := buf.String()
	if strings.Count(out, "  0%") != 1 {
		t.Fatalf("progress 0 should print once:\n%s", out)
	}
	requireContains(t, out, " 30%")
	requireContains(t, out, "ERROR: boom")
	if strings.Contains(out, "-1") {
		t.Fatalf("error sentinel should not render as a percentage:\n%s", out)
	}
}
