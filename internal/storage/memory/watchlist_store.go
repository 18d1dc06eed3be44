package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/JakeFAU/hnx-restricted-tracker/internal/watchlist"
)

// WatchlistStore keeps watchlist items in insertion order.
type WatchlistStore struct {
	mu    sync.RWMutex
	items []watchlist.Item
}

var _ watchlist.Store = (*WatchlistStore)(nil)

// NewWatchlistStore constructs a WatchlistStore.
func NewWatchlistStore() *WatchlistStore {
	return &WatchlistStore{}
}

// Insert appends an item unless the symbol is already actively watched.
func (s *WatchlistStore) Insert(_ context.Context, item watchlist.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.items {
		if existing.IsActive && existing.UserID == item.UserID && existing.StockSymbol == item.StockSymbol {
			return watchlist.ErrAlreadyWatched
		}
	}
	s.items = append(s.items, item)
	return nil
}

// ListActive returns active items for the user, newest first.
func (s *WatchlistStore) ListActive(_ context.Context, userID string) ([]watchlist.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]watchlist.Item, 0, len(s.items))
	for _, item := range s.items {
		if item.IsActive && item.UserID == userID {
			out = append(out, item)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].AddedDate.After(out[j].AddedDate) })
	return out, nil
}

// UpdateNotes sets the notes of an active item.
func (s *WatchlistStore) UpdateNotes(_ context.Context, id, notes string) (watchlist.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == id && s.items[i].IsActive {
			s.items[i].Notes = notes
			return s.items[i], nil
		}
	}
	return watchlist.Item{}, watchlist.ErrNotFound
}

// Deactivate marks an active item inactive.
func (s *WatchlistStore) Deactivate(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == id && s.items[i].IsActive {
			s.items[i].IsActive = false
			return nil
		}
	}
	return watchlist.ErrNotFound
}

// IsWatched reports whether an active item exists.
func (s *WatchlistStore) IsWatched(_ context.Context, userID, symbol string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, item := range s.items {
		if item.IsActive && item.UserID == userID && item.StockSymbol == symbol {
			return true, nil
		}
	}
	return false, nil
}
