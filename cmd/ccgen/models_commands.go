package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"ccgen/internal/logging"
	"ccgen/internal/models"
	"ccgen/internal/preflight"
)

func newModelsCommand(ctx *commandContext) *cobra.Command {
	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "List, download and delete speech models",
	}
	modelsCmd.AddCommand(newModelsListCommand(ctx))
	modelsCmd.AddCommand(newModelsDownloadCommand(ctx))
	modelsCmd.AddCommand(newModelsDeleteCommand(ctx))
	return modelsCmd
}

// withModelStore builds the app for model commands with a quiet logger.
func withModelStore(ctx *commandContext, fn func(a *app) error) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{filepath.Join(cfg.Paths.LogDir, "ccgen.log")},
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(a)
}

func newModelsListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show the model catalog and what is downloaded",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withModelStore(ctx, func(a *app) error {
				list, err := a.store.List(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if asJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(list)
				}
				rows := make([][]string, 0, len(list))
				for _, st := range list {
					local := "-"
					if st.Record != nil {
						local = preflight.FormatBytes(uint64(st.Record.Bytes))
					}
					key := st.Key
					if key == models.DefaultKey {
						key += " *"
					}
					rows = append(rows, []string{key, st.Name, st.SizeHint(), st.Speed, st.Accuracy, st.MinRAM, yesNo(st.Downloaded), local})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Key", "Name", "Download", "Speed", "Accuracy", "Min RAM", "Downloaded", "On disk"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignRight},
				))
				fmt.Fprintf(out, "Models directory: %s\n", a.store.Dir())
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newModelsDownloadCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "download [key|all]",
		Short: "Pre-fetch a model (default " + models.DefaultKey + ") or every catalog model",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := models.DefaultKey
			if len(args) == 1 {
				target = strings.TrimSpace(args[0])
			}
			var selected []models.Model
			if strings.EqualFold(target, "all") {
				selected = models.Catalog()
			} else {
				m, ok := models.Lookup(target)
				if !ok {
					return fmt.Errorf("unknown model %q (available: %s, all)", target, strings.Join(models.Keys(), ", "))
				}
				selected = []models.Model{m}
			}

			return withModelStore(ctx, func(a *app) error {
				out := cmd.OutOrStdout()
				var errs []error
				for _, m := range selected {
					fmt.Fprintf(out, "Downloading %s (%s) to %s...\n", m.RepoID, m.SizeHint(), a.store.LocalDir(m))
					res, err := a.store.Download(cmd.Context(), m)
					if err != nil {
						fmt.Fprintf(out, "  failed: %v\n", err)
						errs = append(errs, fmt.Errorf("%s: %w", m.Key, err))
						continue
					}
					if res.AlreadyPresent {
						fmt.Fprintf(out, "  already present\n")
						continue
					}
					fmt.Fprintf(out, "  done (%s)\n", preflight.FormatBytes(uint64(res.Bytes)))
				}
				return errors.Join(errs...)
			})
		},
	}
}

func newModelsDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Remove a downloaded model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := strings.TrimSpace(args[0])
			return withModelStore(ctx, func(a *app) error {
				if err := a.store.Delete(cmd.Context(), key); err != nil {
					if errors.Is(err, models.ErrNotDownloaded) {
						return fmt.Errorf("model %s is not downloaded", key)
					}
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted model %s\n", key)
				return nil
			})
		},
	}
}
