package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"ccgen/internal/logging"
	"ccgen/internal/preflight"
	"ccgen/internal/server"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP transcription service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if strings.TrimSpace(bind) != "" {
				cfg.Paths.APIBind = strings.TrimSpace(bind)
			}
			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			for _, failed := range preflight.Failed(preflight.RunAll(cfg)) {
				logging.WarnWithContext(logger, "preflight check failed", "preflight_failure",
					logging.String("check", failed.Name),
					logging.String("detail", failed.Detail),
					logging.String(logging.FieldErrorHint, "run `ccgen status` for details"),
					logging.String(logging.FieldImpact, "transcriptions may fail until this is fixed"),
				)
			}

			a, err := newApp(cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()

			srv := server.New(server.OptionsFromConfig(cfg, a.metricsHandler()), a.registry, a.runner, a.store, logger)
			logger.Info("ccgen service starting",
				logging.String("bind", cfg.Paths.APIBind),
				logging.String("uploads_dir", cfg.Paths.UploadsDir),
				logging.String("models_dir", cfg.Paths.ModelsDir),
				logging.Int("max_concurrent", cfg.Runner.MaxConcurrent),
			)
			return srv.Serve(signalCtx)
		},
	}

	cmd.Flags().StringVar(&bind, "bind", "", "Listen address (overrides paths.api_bind)")
	return cmd
}
