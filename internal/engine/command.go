package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"ccgen/internal/config"
	"ccgen/internal/logging"
	"ccgen/internal/textutil"
	"ccgen/internal/transcript"
)

// CommandRunner executes an external command. Tests replace it.
type CommandRunner func(ctx context.Context, name string, args ...string) error

// CommandEngine runs the configured whisper CLI and parses its JSON output.
type CommandEngine struct {
	cfg    config.Engine
	runner CommandRunner
	logger *slog.Logger
}

// NewCommandEngine builds an engine from the [engine] config section.
func NewCommandEngine(cfg config.Engine, logger *slog.Logger) *CommandEngine {
	e := &CommandEngine{cfg: cfg, logger: logging.NewComponentLogger(logger, "engine")}
	e.runner = e.exec
	return e
}

// WithCommandRunner sets a custom command runner (for testing).
func (e *CommandEngine) WithCommandRunner(runner CommandRunner) {
	if runner != nil {
		e.runner = runner
	}
}

// Binary returns the configured executable name.
func (e *CommandEngine) Binary() string {
	return e.cfg.Command
}

// Transcribe runs the engine into a scratch directory and decodes the result.
// The context is passed to the child process; cancelling it kills the process.
func (e *CommandEngine) Transcribe(ctx context.Context, req Request) ([]transcript.Segment, error) {
	if strings.TrimSpace(req.AudioPath) == "" {
		return nil, ErrNoAudio
	}
	outDir, err := os.MkdirTemp("", "ccgen-engine-*")
	if err != nil {
		return nil, fmt.Errorf("engine: create output dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	name := textutil.SanitizeToken(textutil.BaseName(req.AudioPath))
	args := e.buildArgs(req, outDir, name)
	e.logger.Debug("running engine",
		logging.String("command", e.cfg.Command),
		logging.String("args", strings.Join(args, " ")),
	)
	if err := e.runner(ctx, e.cfg.Command, args...); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	payload, err := transcript.LoadFile(filepath.Join(outDir, name+".json"))
	if err != nil {
		return nil, fmt.Errorf("engine: read output: %w", err)
	}
	return payload.Segments, nil
}

func (e *CommandEngine) buildArgs(req Request, outDir, name string) []string {
	model := req.ModelDir
	if model == "" || !dirExists(model) {
		model = req.Model
	}
	args := []string{
		req.AudioPath,
		"--output-dir", outDir,
		"--output-name", name,
		"--output-format", e.cfg.OutputFormat,
	}
	if model != "" {
		args = append(args, "--model", model)
	}
	if req.WordTimestamps {
		args = append(args, "--word-timestamps", "True")
	}
	language := req.Language
	if language == "" {
		language = e.cfg.Language
	}
	if language != "" {
		args = append(args, "--language", language)
	}
	return append(args, e.cfg.ExtraArgs...)
}

func (e *CommandEngine) exec(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, tailOutput(string(output), 20))
	}
	return nil
}

func tailOutput(output string, lines int) string {
	parts := strings.Split(strings.TrimSpace(output), "\n")
	if len(parts) > lines {
		parts = parts[len(parts)-lines:]
	}
	return strings.Join(parts, "\n")
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
