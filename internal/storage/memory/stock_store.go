package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/JakeFAU/hnx-restricted-tracker/internal/stock"
)

// StockStore keeps stocks in a map keyed by symbol.
type StockStore struct {
	mu     sync.RWMutex
	stocks map[string]stock.Stock
}

var _ stock.Store = (*StockStore)(nil)

// NewStockStore constructs a StockStore.
func NewStockStore() *StockStore {
	return &StockStore{stocks: make(map[string]stock.Stock)}
}

// Upsert creates or merges the stock by symbol.
func (s *StockStore) Upsert(_ context.Context, st stock.Stock) (stock.Stock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.stocks[st.Symbol]
	if !ok {
		if st.CreatedAt.IsZero() {
			st.CreatedAt = st.UpdatedAt
		}
		s.stocks[st.Symbol] = st
		return st, nil
	}
	merged := stock.Merge(existing, st)
	s.stocks[st.Symbol] = merged
	return merged, nil
}

// Get fetches a stock by symbol.
func (s *StockStore) Get(_ context.Context, symbol string) (stock.Stock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stocks[symbol]
	if !ok {
		return stock.Stock{}, stock.ErrNotFound
	}
	return st, nil
}

// List returns one page ordered by LastUpdated descending, then symbol.
func (s *StockStore) List(_ context.Context, q stock.ListQuery) (stock.PageResult, error) {
	all := s.filter(func(st stock.Stock) bool {
		return q.Status == "" || st.Status == q.Status
	})
	sortByRecency(all)
	total := len(all)
	start := min(q.Offset(), total)
	end := total
	if q.Limit > 0 {
		end = min(start+q.Limit, total)
	}
	return stock.NewPageResult(all[start:end], total, q), nil
}

// Search matches query against symbol or name, case-insensitively.
func (s *StockStore) Search(_ context.Context, query string, limit int) ([]stock.Stock, error) {
	needle := strings.ToLower(query)
	out := s.filter(func(st stock.Stock) bool {
		return strings.Contains(strings.ToLower(st.Symbol), needle) ||
			strings.Contains(strings.ToLower(st.Name), needle)
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Restricted returns restricted and suspended stocks.
func (s *StockStore) Restricted(_ context.Context) ([]stock.Stock, error) {
	out := s.filter(func(st stock.Stock) bool {
		return st.Status == stock.StatusRestricted || st.Status == stock.StatusSuspended
	})
	sortByRecency(out)
	return out, nil
}

// UpdatePrice applies a price snapshot.
func (s *StockStore) UpdatePrice(_ context.Context, symbol string, u stock.PriceUpdate) (stock.Stock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stocks[symbol]
	if !ok {
		return stock.Stock{}, stock.ErrNotFound
	}
	st = u.Apply(st)
	s.stocks[symbol] = st
	return st, nil
}

// Delete removes a stock.
func (s *StockStore) Delete(_ context.Context, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.stocks[symbol]; !ok {
		return stock.ErrNotFound
	}
	delete(s.stocks, symbol)
	return nil
}

// Statistics counts stocks by status and exchange.
func (s *StockStore) Statistics(_ context.Context) (stock.Statistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := stock.Statistics{ByExchange: map[string]int{}}
	for _, st := range s.stocks {
		stats.Total++
		switch st.Status {
		case stock.StatusRestricted:
			stats.Restricted++
		case stock.StatusSuspended:
			stats.Suspended++
		case stock.StatusNormal:
			stats.Normal++
		}
		stats.ByExchange[st.Exchange]++
	}
	return stats, nil
}

func (s *StockStore) filter(keep func(stock.Stock) bool) []stock.Stock {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]stock.Stock, 0, len(s.stocks))
	for _, st := range s.stocks {
		if keep(st) {
			out = append(out, st)
		}
	}
	return out
}

func sortByRecency(stocks []stock.Stock) {
	sort.Slice(stocks, func(i, j int) bool {
		if !stocks[i].LastUpdated.Equal(stocks[j].LastUpdated) {
			return stocks[i].LastUpdated.After(stocks[j].LastUpdated)
		}
		return stocks[i].Symbol < stocks[j].Symbol
	})
}
