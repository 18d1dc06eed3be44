// Package financial gathers financial reports for a stock from several
// independent sources. Every source runs to completion; failures are
// collected next to the reports that did arrive.
package financial

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/JakeFAU/hnx-restricted-tracker/internal/stock"
)

// DefaultTimeout bounds each source.
const DefaultTimeout = 15 * time.Second

// Report types.
const (
	TypeQuarterly     = "quarterly"
	TypeAnnual        = "annual"
	TypeExtraordinary = "extraordinary"
)

// ErrSymbolRequired is returned when Fetch gets an empty symbol.
var ErrSymbolRequired = errors.New("stock symbol is required")

// Report is one period's figures from one source.
type Report struct {
	StockSymbol string              `json:"stock_symbol"`
	ReportType  string              `json:"report_type"`
	Year        int                 `json:"year"`
	Quarter     *int                `json:"quarter,omitempty"`
	Revenue     decimal.NullDecimal `json:"revenue"`
	Profit      decimal.NullDecimal `json:"profit"`
	EPS         decimal.NullDecimal `json:"eps"`
	ReportURL   string              `json:"report_url,omitempty"`
	PublishDate time.Time           `json:"publish_date"`
	Source      string              `json:"source"`
}

// Key identifies a report across sources.
func (r Report) Key() string {
	period := "annual"
	if r.Quarter != nil {
		period = strconv.Itoa(*r.Quarter)
	}
	return fmt.Sprintf("%s-%d-%s-%s", r.StockSymbol, r.Year, period, r.ReportType)
}

// SourceError records one failed source.
type SourceError struct {
	Source string `json:"source"`
	Err    error  `json:"-"`
}

func (e SourceError) Error() string {
	return e.Source + ": " + e.Err.Error()
}

func (e SourceError) Unwrap() error { return e.Err }

// Result holds the deduplicated reports and the sources that failed.
type Result struct {
	Symbol   string        `json:"symbol"`
	Reports  []Report      `json:"reports"`
	Failures []SourceError `json:"-"`
}

// Service fans a request out to all sources.
type Service struct {
	sources []Source
	timeout time.Duration
	logger  *zap.Logger
}

// NewService builds a Service. A non-positive timeout uses DefaultTimeout.
func NewService(sources []Source, timeout time.Duration, logger *zap.Logger) (*Service, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("at least one source is required")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{sources: sources, timeout: timeout, logger: logger}, nil
}

type attempt struct {
	source  string
	reports []Report
	err     error
}

// Fetch queries every source concurrently and waits for all of them. Source
// failures never fail the call; they are logged and returned in Failures.
// Reports keep source order and are deduplicated by Key.
func (s *Service) Fetch(ctx context.Context, symbol string) (Result, error) {
	symbol = stock.NormalizeSymbol(symbol)
	if symbol == "" {
		return Result{}, ErrSymbolRequired
	}

	attempts := make([]attempt, len(s.sources))
	var wg sync.WaitGroup
	for i, src := range s.sources {
		wg.Add(1)
		go func(i int, src Source) {
			defer wg.Done()
			sctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()
			reports, err := src.Reports(sctx, symbol)
			attempts[i] = attempt{source: src.Name(), reports: reports, err: err}
		}(i, src)
	}
	wg.Wait()

	res := Result{Symbol: symbol}
	var all []Report
	for _, a := range attempts {
		if a.err != nil {
			s.logger.Warn("financial source failed",
				zap.String("source", a.source), zap.String("symbol", symbol), zap.Error(a.err))
			res.Failures = append(res.Failures, SourceError{Source: a.source, Err: a.err})
			continue
		}
		all = append(all, a.reports...)
	}
	res.Reports = Deduplicate(all)
	s.logger.Info("financial reports fetched",
		zap.String("symbol", symbol),
		zap.Int("reports", len(res.Reports)),
		zap.Int("failed_sources", len(res.Failures)),
	)
	return res, nil
}

// Deduplicate keeps the first report for each Key.
func Deduplicate(reports []Report) []Report {
	seen := make(map[string]struct{}, len(reports))
	out := make([]Report, 0, len(reports))
	for _, r := range reports {
		key := r.Key()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}
