package stock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/JakeFAU/hnx-restricted-tracker/internal/scraper"
)

// Paging defaults and caps applied by the service.
const (
	DefaultListLimit   = 50
	MaxListLimit       = 100
	DefaultSearchLimit = 20
	MaxSearchLimit     = 50
	MinQueryLength     = 2
)

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// Service applies input rules on top of a Store.
type Service struct {
	store  Store
	index  Index
	clock  Clock
	logger *zap.Logger
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithIndex routes searches through a full-text index.
func WithIndex(idx Index) ServiceOption {
	return func(s *Service) {
		s.index = idx
	}
}

// NewService builds a Service.
func NewService(store Store, clock Clock, logger *zap.Logger, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("stock store is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{store: store, clock: clock, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// List returns one page of stocks, newest first.
func (s *Service) List(ctx context.Context, page, limit int, status string) (PageResult, error) {
	st, err := ParseStatus(status)
	if err != nil {
		return PageResult{}, err
	}
	q := ListQuery{Page: max(page, 1), Limit: clampLimit(limit, DefaultListLimit, MaxListLimit), Status: st}
	res, err := s.store.List(ctx, q)
	if err != nil {
		return PageResult{}, fmt.Errorf("list stocks: %w", err)
	}
	return res, nil
}

// Get returns the stock with the given symbol.
func (s *Service) Get(ctx context.Context, symbol string) (Stock, error) {
	st, err := s.store.Get(ctx, NormalizeSymbol(symbol))
	if err != nil {
		return Stock{}, fmt.Errorf("get stock: %w", err)
	}
	return st, nil
}

// Search finds stocks by symbol or name. The index is preferred when one is
// configured; an index failure falls back to the store.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]Stock, error) {
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < MinQueryLength {
		return nil, ErrQueryTooShort
	}
	limit = clampLimit(limit, DefaultSearchLimit, MaxSearchLimit)

	if s.index != nil {
		stocks, err := s.searchIndex(ctx, query, limit)
		if err == nil {
			return stocks, nil
		}
		s.logger.Warn("search index failed, falling back to store", zap.Error(err))
	}
	stocks, err := s.store.Search(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search stocks: %w", err)
	}
	return stocks, nil
}

func (s *Service) searchIndex(ctx context.Context, query string, limit int) ([]Stock, error) {
	symbols, err := s.index.Search(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("index search: %w", err)
	}
	stocks := make([]Stock, 0, len(symbols))
	for _, symbol := range symbols {
		st, err := s.store.Get(ctx, symbol)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("hydrate %s: %w", symbol, err)
		}
		stocks = append(stocks, st)
	}
	return stocks, nil
}

// Restricted returns stocks that are restricted or suspended.
func (s *Service) Restricted(ctx context.Context) ([]Stock, error) {
	stocks, err := s.store.Restricted(ctx)
	if err != nil {
		return nil, fmt.Errorf("restricted stocks: %w", err)
	}
	return stocks, nil
}

// Statistics returns status and exchange counts.
func (s *Service) Statistics(ctx context.Context) (Statistics, error) {
	stats, err := s.store.Statistics(ctx)
	if err != nil {
		return Statistics{}, fmt.Errorf("stock statistics: %w", err)
	}
	return stats, nil
}

// Upsert validates and stores one stock.
func (s *Service) Upsert(ctx context.Context, st Stock) (Stock, error) {
	st.Symbol = NormalizeSymbol(st.Symbol)
	if err := st.Validate(); err != nil {
		return Stock{}, err
	}
	now := s.clock.Now()
	if st.LastUpdated.IsZero() {
		st.LastUpdated = now
	}
	st.UpdatedAt = now
	stored, err := s.store.Upsert(ctx, st)
	if err != nil {
		return Stock{}, fmt.Errorf("upsert %s: %w", st.Symbol, err)
	}
	return stored, nil
}

// BulkUpsert stores every record in order. A record that fails is logged and
// skipped; the stored stocks are returned.
func (s *Service) BulkUpsert(ctx context.Context, records []scraper.Record) []Stock {
	stored := make([]Stock, 0, len(records))
	for _, rec := range records {
		st, err := s.Upsert(ctx, FromRecord(rec))
		if err != nil {
			s.logger.Error("failed to upsert stock", zap.String("symbol", rec.Symbol), zap.Error(err))
			continue
		}
		stored = append(stored, st)
	}
	return stored
}

// UpdatePrice applies a market snapshot to an existing stock.
func (s *Service) UpdatePrice(ctx context.Context, symbol string, u PriceUpdate) (Stock, error) {
	if u.At.IsZero() {
		u.At = s.clock.Now()
	}
	st, err := s.store.UpdatePrice(ctx, NormalizeSymbol(symbol), u)
	if err != nil {
		return Stock{}, fmt.Errorf("update price: %w", err)
	}
	return st, nil
}

// Delete removes a stock.
func (s *Service) Delete(ctx context.Context, symbol string) error {
	if err := s.store.Delete(ctx, NormalizeSymbol(symbol)); err != nil {
		return fmt.Errorf("delete stock: %w", err)
	}
	return nil
}

// Reindex pushes stocks into the search index when one is configured.
func (s *Service) Reindex(ctx context.Context, stocks []Stock) error {
	if s.index == nil || len(stocks) == 0 {
		return nil
	}
	if err := s.index.Index(ctx, stocks); err != nil {
		return fmt.Errorf("reindex stocks: %w", err)
	}
	return nil
}

func clampLimit(limit, def, maxLimit int) int {
	if limit <= 0 {
		return def
	}
	return min(limit, maxLimit)
}
