package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"ccgen/internal/models"
	"ccgen/internal/preflight"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check directories, external tools and the default model",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			lines := renderSectionHeader("Configuration", colorize)
			configDetail := ctx.configPath
			if !ctx.configExists {
				configDetail += " (not found, using defaults)"
			}
			lines = append(lines,
				renderStatusLine("Config", statusInfo, configDetail, colorize),
				renderStatusLine("API bind", statusInfo, cfg.Paths.APIBind, colorize),
			)

			lines = append(lines, "")
			lines = append(lines, renderSectionHeader("Checks", colorize)...)
			results := preflight.RunAll(cfg)
			for _, r := range results {
				kind := statusOK
				switch {
				case !r.Passed:
					kind = statusError
				case strings.HasSuffix(r.Detail, "(optional)"):
					kind = statusWarn
				}
				lines = append(lines, renderStatusLine(r.Name, kind, r.Detail, colorize))
			}

			lines = append(lines, "")
			lines = append(lines, renderSectionHeader("Models", colorize)...)
			defaultModel, resolveErr := models.Resolve(cfg.Runner.DefaultModel)
			if resolveErr != nil {
				lines = append(lines, renderStatusLine("Default model", statusError, resolveErr.Error(), colorize))
			} else {
				store := models.NewStore(cfg.Paths.ModelsDir, nil, nil)
				kind, detail := statusWarn, "not downloaded; first task will fetch "+defaultModel.SizeHint()
				if store.IsDownloaded(defaultModel) {
					kind, detail = statusOK, store.LocalDir(defaultModel)
				}
				lines = append(lines, renderStatusLine("Default model", kind, defaultModel.Key+": "+detail, colorize))
			}

			fmt.Fprintln(out, strings.Join(lines, "\n"))
			if failed := preflight.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d check(s) failed", len(failed))
			}
			return nil
		},
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	return []string{paint(line, ansiBlue, colorize), paint(rule, ansiBlue, colorize)}
}
