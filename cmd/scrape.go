package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/hnx-restricted-tracker/internal/refresh"
	"github.com/JakeFAU/hnx-restricted-tracker/internal/scraper"
)

// Output formats accepted by --format.
const (
	formatJSON = "json"
	formatYAML = "yaml"
)

// scrapeOutput is printed by a dry scrape.
type scrapeOutput struct {
	Outcome    scraper.Outcome    `json:"outcome" yaml:"outcome"`
	Confidence scraper.Confidence `json:"confidence" yaml:"confidence"`
	Accepted   int                `json:"accepted" yaml:"accepted"`
	Rejected   int                `json:"rejected" yaml:"rejected"`
	SourceURL  string             `json:"source_url,omitempty" yaml:"source_url,omitempty"`
	Records    []scraper.Record   `json:"records" yaml:"records"`
}

// persistOutput is printed by a scrape that stored its records.
type persistOutput struct {
	Message     string             `json:"message" yaml:"message"`
	Updated     int                `json:"updated" yaml:"updated"`
	Outcome     scraper.Outcome    `json:"outcome" yaml:"outcome"`
	Confidence  scraper.Confidence `json:"confidence" yaml:"confidence"`
	SnapshotURI string             `json:"snapshot_uri,omitempty" yaml:"snapshot_uri,omitempty"`
	Symbols     []string           `json:"symbols" yaml:"symbols"`
}

// newScrapeCmd creates the 'scrape' subcommand.
func newScrapeCmd(f factories) *cobra.Command {
	var (
		persist bool
		format  string
	)
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Extracts the restricted-stock list once and prints it",
		Long: `Renders the HNX restricted-securities page, extracts its records and prints
them. With --persist the records are stored, archived and announced exactly
like an API refresh.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format != formatJSON && format != formatYAML {
				return fmt.Errorf("unsupported format %q: use json or yaml", format)
			}
			env, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			if persist {
				return runPersistedScrape(cmd.Context(), f, env, cmd.OutOrStdout(), format)
			}
			return runDryScrape(cmd.Context(), f, env, cmd.OutOrStdout(), format)
		},
	}
	cmd.Flags().BoolVar(&persist, "persist", false, "store the records and publish a refresh event")
	cmd.Flags().StringVar(&format, "format", formatJSON, "output format: json or yaml")
	return cmd
}

func runDryScrape(ctx context.Context, f factories, env *runtimeEnv, w io.Writer, format string) error {
	ex, err := f.newExtractor(env.cfg, env.logger)
	if err != nil {
		return fmt.Errorf("init scraper: %w", err)
	}
	defer ex.CloseSession()

	res, err := ex.ScrapeRestrictedStocks(ctx)
	if err != nil {
		return fmt.Errorf("scrape restricted stocks: %w", err)
	}
	env.logger.Info("scrape finished", zap.String("outcome", string(res.Outcome)), zap.Int("records", len(res.Records)))
	records := res.Records
	if records == nil {
		records = []scraper.Record{}
	}
	return writeOutput(w, format, scrapeOutput{
		Outcome:    res.Outcome,
		Confidence: res.Confidence(),
		Accepted:   res.Accepted,
		Rejected:   res.Rejected,
		SourceURL:  res.SourceURL,
		Records:    records,
	})
}

func runPersistedScrape(ctx context.Context, f factories, env *runtimeEnv, w io.Writer, format string) error {
	app, err := f.newApp(ctx, env.cfg, env.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	defer func() {
		if cerr := app.Close(context.WithoutCancel(ctx)); cerr != nil {
			env.logger.Warn("failed to close application services", zap.Error(cerr))
		}
	}()

	summary, err := app.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", refresh.FailureMessage, err)
	}
	symbols := make([]string, 0, len(summary.Stocks))
	for _, st := range summary.Stocks {
		symbols = append(symbols, st.Symbol)
	}
	return writeOutput(w, format, persistOutput{
		Message:     summary.Message(),
		Updated:     summary.Updated,
		Outcome:     summary.Outcome,
		Confidence:  summary.Confidence,
		SnapshotURI: summary.SnapshotURI,
		Symbols:     symbols,
	})
}

func writeOutput(w io.Writer, format string, v any) error {
	if format == formatYAML {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("flush yaml: %w", err)
		}
		return nil
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}
