// Package cmd defines and implements the CLI commands for the hnxtracker
// executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/hnx-restricted-tracker/internal/clock/system"
	"github.com/JakeFAU/hnx-restricted-tracker/internal/config"
	"github.com/JakeFAU/hnx-restricted-tracker/internal/logging"
	"github.com/JakeFAU/hnx-restricted-tracker/internal/refresh"
	"github.com/JakeFAU/hnx-restricted-tracker/internal/scraper"
	"github.com/JakeFAU/hnx-restricted-tracker/internal/server"
)

// envKeyType is the key for storing the loaded environment in the context.
type envKeyType string

const envKey envKeyType = "env"

// runtimeEnv is what PersistentPreRunE prepares for every subcommand.
type runtimeEnv struct {
	cfg    config.Config
	logger *zap.Logger
}

// App is the service graph the commands drive.
type App interface {
	Run(ctx context.Context) error
	Close(ctx context.Context) error
	Refresh(ctx context.Context) (refresh.Summary, error)
}

// Extractor runs one listing extraction without touching storage.
type Extractor interface {
	ScrapeRestrictedStocks(ctx context.Context) (scraper.Result, error)
	CloseSession()
}

// factories build the services behind the commands. Tests swap them for fakes.
type factories struct {
	newApp       func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error)
	newExtractor func(cfg config.Config, logger *zap.Logger) (Extractor, error)
	migrateUp    func(ctx context.Context, cfg config.Config, logger *zap.Logger) error
	migrateDown  func(ctx context.Context, cfg config.Config, steps int, logger *zap.Logger) error
}

func defaultFactories() factories {
	return factories{
		newApp: func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
			return server.Build(ctx, cfg, logger)
		},
		newExtractor: func(cfg config.Config, logger *zap.Logger) (Extractor, error) {
			return server.NewScraper(cfg, system.New(), logger.Named("scraper"))
		},
		migrateUp:   server.Migrate,
		migrateDown: server.Rollback,
	}
}

// newRootCmd creates and configures the root command.
func newRootCmd(f factories) *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "hnxtracker",
		Short: "Tracks restricted and suspended stocks listed on the Hanoi Stock Exchange.",
		Long: `hnxtracker scrapes the HNX restricted-securities page, keeps the result in
a stock store and serves it, with a watchlist and financial reports, over HTTP.`,
		SilenceUsage: true,

		// Runs before every subcommand: configuration and logging first.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development, logging.WithLevel(cfg.Logging.Level))
			if err != nil {
				return fmt.Errorf("logger init: %w", err)
			}
			zap.ReplaceGlobals(logger)
			cmd.SetContext(context.WithValue(cmd.Context(), envKey, &runtimeEnv{cfg: cfg, logger: logger}))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if env, err := resolveEnv(cmd.Context()); err == nil {
				_ = env.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); HNX_* environment variables override it")

	cmd.AddCommand(newServeCmd(f))
	cmd.AddCommand(newScrapeCmd(f))
	cmd.AddCommand(newMigrateCmd(f))

	return cmd
}

func resolveEnv(ctx context.Context) (*runtimeEnv, error) {
	env, ok := ctx.Value(envKey).(*runtimeEnv)
	if !ok || env == nil {
		return nil, errors.New("configuration not loaded")
	}
	return env, nil
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd(defaultFactories()).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
