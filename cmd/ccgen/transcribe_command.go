package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"ccgen/internal/fileutil"
	"ccgen/internal/logging"
	"ccgen/internal/progress"
	"ccgen/internal/runner"
	"ccgen/internal/subtitles"
	"ccgen/internal/tasks"
	"ccgen/internal/textutil"
)

func newTranscribeCommand(ctx *commandContext) *cobra.Command {
	var (
		model  string
		output string
	)

	cmd := &cobra.Command{
		Use:   "transcribe <audio-file>",
		Short: "Transcribe one audio file and write subtitles next to it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			source, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve input: %w", err)
			}
			target := strings.TrimSpace(output)
			if target == "" {
				target = textutil.ReplaceExt(source, subtitles.Extension)
			}

			// Task logs are rendered on stdout; structured logs go to the file only.
			logger, err := logging.New(logging.Options{
				Level:       cfg.Logging.Level,
				Format:      cfg.Logging.Format,
				OutputPaths: []string{filepath.Join(cfg.Paths.LogDir, "ccgen.log")},
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			// The runner deletes its input, so it works on a copy in the uploads dir.
			in, err := os.Open(source)
			if err != nil {
				return fmt.Errorf("open input: %w", err)
			}
			staged, _, err := fileutil.SaveUpload(cfg.Paths.UploadsDir, filepath.Base(source), in)
			_ = in.Close()
			if err != nil {
				return fmt.Errorf("stage input: %w", err)
			}

			a, err := newApp(cfg, logger)
			if err != nil {
				_ = os.Remove(staged)
				return err
			}
			defer a.close()

			id, err := a.runner.Submit(runner.Submission{FilePath: staged, Model: model, Name: filepath.Base(source)})
			if err != nil {
				_ = os.Remove(staged)
				return err
			}

			out := cmd.OutOrStdout()
			view := newTaskView(out, shouldColorize(out))
			if err := progress.Stream(signalCtx, a.registry, id, cfg.PollInterval(), view.emit); err != nil {
				return err
			}
			a.runner.Wait()

			task, err := a.registry.Get(id)
			if err != nil {
				return err
			}
			if task.Status != tasks.StatusDone {
				return fmt.Errorf("transcription failed: %s", strings.TrimPrefix(lastErrorLine(task.Logs), tasks.ErrorPrefix))
			}
			if err := moveOutput(task.Output, target); err != nil {
				return err
			}
			fmt.Fprintf(out, "Subtitles written to %s\n", target)
			return nil
		},
	}

	cmd.Flags().StringVarP(&model, "model", "m", "", "Model key or Hugging Face repo id (default runner.default_model)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Subtitle destination (default: next to the input)")
	return cmd
}

// taskView renders progress events as plain lines, printing progress only
// when it changes.
type taskView struct {
	w        io.Writer
	colorize bool
	last     int
}

func newTaskView(w io.Writer, colorize bool) *taskView {
	return &taskView{w: w, colorize: colorize, last: -2}
}

func (v *taskView) emit(evt progress.Event) error {
	switch evt.Kind {
	case progress.EventLog:
		_, err := fmt.Fprintln(v.w, renderTaskLine(evt.Line, v.colorize))
		return err
	case progress.EventProgress:
		if evt.Progress == v.last {
			return nil
		}
		v.last = evt.Progress
		if evt.Progress == tasks.ProgressError {
			return nil
		}
		_, err := fmt.Fprintln(v.w, renderProgress(evt.Progress, v.colorize))
		return err
	}
	return nil
}

func lastErrorLine(logs []string) string {
	for i := len(logs) - 1; i >= 0; i-- {
		if _, msg, ok := strings.Cut(logs[i], "] "); ok && strings.HasPrefix(msg, tasks.ErrorPrefix) {
			return msg
		}
	}
	return "unknown error"
}

func moveOutput(from, to string) error {
	if from == "" {
		return errors.New("task finished without an output file")
	}
	if filepath.Clean(from) == filepath.Clean(to) {
		return nil
	}
	if err := fileutil.CopyFile(from, to); err != nil {
		return fmt.Errorf("write subtitles: %w", err)
	}
	_ = os.Remove(from)
	return nil
}
