package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newMigrateCmd creates the 'migrate' subcommand and its up/down children.
func newMigrateCmd(f factories) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Applies or reverts the embedded database schema",
		Long: `Runs the embedded schema migrations against the configured relational
backend (storage.backend postgres or sqlite).`,
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Applies all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			if err := f.migrateUp(cmd.Context(), env.cfg, env.logger); err != nil {
				return fmt.Errorf("migrate up: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Reverts the most recent migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if steps <= 0 {
				return fmt.Errorf("--steps must be positive, got %d", steps)
			}
			env, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			if err := f.migrateDown(cmd.Context(), env.cfg, steps, env.logger); err != nil {
				return fmt.Errorf("migrate down: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rolled back %d migration(s)\n", steps)
			return nil
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to revert")

	cmd.AddCommand(up, down)
	return cmd
}
