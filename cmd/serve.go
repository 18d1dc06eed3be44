package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newServeCmd creates the 'serve' subcommand.
func newServeCmd(f factories) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Runs the HTTP API, refresh workers and scheduler",
		Long: `Starts the HTTP API together with the refresh queue workers and, when
refresh.interval is set, the periodic refresh scheduler. SIGINT or SIGTERM
drains in-flight work and shuts down cleanly.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			app, err := f.newApp(cmd.Context(), env.cfg, env.logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			if err := app.Run(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("run server: %w", err)
			}
			env.logger.Info("serve command finished", zap.Int("port", env.cfg.Server.Port))
			return nil
		},
	}
}
