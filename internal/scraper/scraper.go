package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/hnx-restricted-tracker/internal/metrics"
)

// Default endpoints and timeouts of the HNX source.
const (
	DefaultTargetURL         = "https://www.hnx.vn/co-phieu-etfs/chung-khoan-uc-thong-tin-ck.html"
	DefaultDetailURLTemplate = "https://www.hnx.vn/co-phieu-etfs/thong-tin-co-phieu.html?symbol=%s"
	DefaultNavigationTimeout = 30 * time.Second
	DefaultSelectorTimeout   = 10 * time.Second
	DefaultDetailTimeout     = 15 * time.Second
	DefaultTableSelector     = "table"
)

var (
	// ErrFetchFailed wraps every fetch-stage failure: session init,
	// navigation, timeout or selector wait.
	ErrFetchFailed = errors.New("fetch failed")
	// ErrInvalidSymbol is returned when a symbol normalizes to nothing.
	ErrInvalidSymbol = errors.New("invalid symbol")
)

// Config controls the Scraper.
type Config struct {
	TargetURL         string
	DetailURLTemplate string
	NavigationTimeout time.Duration
	SelectorTimeout   time.Duration
	DetailTimeout     time.Duration
	TableSelector     string
	Heuristics        Heuristics
}

// Scraper orchestrates fetch and extraction for the HNX restricted list.
type Scraper struct {
	cfg      Config
	session  Session
	probe    Fetcher
	detector PromotionDetector
	clock    Clock
	logger   *zap.Logger
}

// Option customizes a Scraper.
type Option func(*Scraper)

// WithProbe sets a static fetcher tried before the browser session for
// detail pages. The detector decides whether its response is usable.
func WithProbe(probe Fetcher, detector PromotionDetector) Option {
	return func(s *Scraper) {
		s.probe = probe
		s.detector = detector
	}
}

// New builds a Scraper around a rendering session.
func New(cfg Config, session Session, clock Clock, logger *zap.Logger, opts ...Option) (*Scraper, error) {
	if session == nil {
		return nil, fmt.Errorf("rendering session is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = withDefaults(cfg)
	s := &Scraper{
		cfg:     cfg,
		session: session,
		clock:   clock,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func withDefaults(cfg Config) Config {
	if cfg.TargetURL == "" {
		cfg.TargetURL = DefaultTargetURL
	}
	if cfg.DetailURLTemplate == "" {
		cfg.DetailURLTemplate = DefaultDetailURLTemplate
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = DefaultNavigationTimeout
	}
	if cfg.SelectorTimeout <= 0 {
		cfg.SelectorTimeout = DefaultSelectorTimeout
	}
	if cfg.DetailTimeout <= 0 {
		cfg.DetailTimeout = DefaultDetailTimeout
	}
	if cfg.TableSelector == "" {
		cfg.TableSelector = DefaultTableSelector
	}
	if len(cfg.Heuristics.Keywords) == 0 {
		cfg.Heuristics = DefaultHeuristics()
	}
	return cfg
}

// TargetURL returns the listing page the scraper reads.
func (s *Scraper) TargetURL() string {
	return s.cfg.TargetURL
}

// ScrapeRestrictedStocks renders the listing page and extracts its records.
// Only fetch failures are returned; they wrap ErrFetchFailed.
func (s *Scraper) ScrapeRestrictedStocks(ctx context.Context) (Result, error) {
	s.logger.Info("scraping restricted stocks", zap.String("url", s.cfg.TargetURL))
	resp, err := s.session.Fetch(ctx, FetchRequest{
		URL:             s.cfg.TargetURL,
		WaitSelector:    s.cfg.TableSelector,
		SelectorTimeout: s.cfg.SelectorTimeout,
		Timeout:         s.cfg.NavigationTimeout,
	})
	if err != nil {
		metrics.ObserveScrape("failed", "", 0, 0)
		return Result{}, fmt.Errorf("%w: %s: %w", ErrFetchFailed, s.cfg.TargetURL, err)
	}

	res := Extract(string(resp.Body), s.clock.Now(), s.cfg.Heuristics)
	res.SourceURL = resp.URL
	metrics.ObserveScrape(string(res.Outcome), string(res.Confidence()), res.Accepted, res.Rejected)
	fields := []zap.Field{
		zap.String("outcome", string(res.Outcome)),
		zap.Int("accepted", res.Accepted),
		zap.Int("rejected", res.Rejected),
		zap.Int("tables_scanned", res.TablesScanned),
		zap.Int("tables_matched", res.TablesMatched),
		zap.Duration("fetch_duration", resp.Duration),
	}
	if res.Outcome == OutcomeStructured {
		s.logger.Info("restricted stocks extracted", fields...)
	} else {
		s.logger.Warn("no stock table parsed, used text fallback", fields...)
	}
	return res, nil
}

// GetStockDetails fetches the per-symbol page and returns whatever fields it
// exposes. A page that cannot be fetched yields nil without an error.
func (s *Scraper) GetStockDetails(ctx context.Context, symbol string) (*Record, error) {
	normalized := NormalizeSymbol(symbol)
	if normalized == "" {
		return nil, ErrInvalidSymbol
	}
	target := fmt.Sprintf(s.cfg.DetailURLTemplate, url.QueryEscape(normalized))
	logger := s.logger.With(zap.String("symbol", normalized), zap.String("url", target))

	body, err := s.fetchDetail(ctx, target, logger)
	if err != nil {
		logger.Warn("stock details fetch failed", zap.Error(err))
		return nil, nil
	}
	rec := ParseDetail(body, normalized, s.clock.Now())
	return &rec, nil
}

func (s *Scraper) fetchDetail(ctx context.Context, target string, logger *zap.Logger) (string, error) {
	req := FetchRequest{URL: target, Timeout: s.cfg.DetailTimeout}
	if s.probe != nil {
		probeCtx, cancel := context.WithTimeout(ctx, s.cfg.DetailTimeout)
		resp, err := s.probe.Fetch(probeCtx, req)
		cancel()
		switch {
		case err != nil:
			logger.Debug("static probe failed, promoting to browser", zap.Error(err))
		case s.detector != nil && s.detector.ShouldPromote(resp):
			logger.Debug("static probe looks like a script shell, promoting to browser")
		default:
			return string(resp.Body), nil
		}
	}
	resp, err := s.session.Fetch(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: %s returned status %d", ErrFetchFailed, target, resp.StatusCode)
	}
	return string(resp.Body), nil
}

// CloseSession releases the rendering session. It is safe to call more than
// once; the next fetch re-creates the session.
func (s *Scraper) CloseSession() {
	s.session.Close()
	s.logger.Debug("rendering session closed")
}
