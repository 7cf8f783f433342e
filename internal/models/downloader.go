package models

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Downloader fetches a repository snapshot into a local directory.
type Downloader interface {
	Download(ctx context.Context, repoID, dir string) error
}

// DownloaderFunc adapts a function to Downloader.
type DownloaderFunc func(ctx context.Context, repoID, dir string) error

func (f DownloaderFunc) Download(ctx context.Context, repoID, dir string) error {
	return f(ctx, repoID, dir)
}

// CommandRunner executes an external command with extra environment entries.
type CommandRunner func(ctx context.Context, env []string, name string, args ...string) error

// HFDownloader runs the Hugging Face CLI:
//
//	hf download <repo> --local-dir <dir>
type HFDownloader struct {
	Command string
	Token   string
	Timeout time.Duration
	runner  CommandRunner
}

// NewHFDownloader builds a downloader for the given CLI binary.
func NewHFDownloader(command, token string, timeout time.Duration) *HFDownloader {
	if strings.TrimSpace(command) == "" {
		command = "hf"
	}
	return &HFDownloader{Command: command, Token: token, Timeout: timeout, runner: runCommand}
}

// WithCommandRunner sets a custom command runner (for testing).
func (d *HFDownloader) WithCommandRunner(runner CommandRunner) {
	if runner != nil {
		d.runner = runner
	}
}

// Download runs the CLI, bounded by Timeout when set.
func (d *HFDownloader) Download(ctx context.Context, repoID, dir string) error {
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}
	var env []string
	if d.Token != "" {
		env = append(env, "HF_TOKEN="+d.Token)
	}
	args := []string{"download", repoID, "--local-dir", dir}
	if err := d.runner(ctx, env, d.Command, args...); err != nil {
		return fmt.Errorf("download %s: %w", repoID, err)
	}
	return nil
}

func runCommand(ctx context.Context, env []string, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	cmd.Env = append(os.Environ(), env...)
	if output, err := cmd.CombinedOutput(); err != nil {
		msg := strings.TrimSpace(string(output))
		if idx := strings.LastIndex(msg, "\n"); idx >= 0 {
			msg = msg[idx+1:]
		}
		return fmt.Errorf("%s: %w: %s", name, err, msg)
	}
	return nil
}
