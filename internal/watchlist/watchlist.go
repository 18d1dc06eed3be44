// Package watchlist tracks the stocks a user follows.
package watchlist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultUserID owns every item until multi-user support exists.
const DefaultUserID = "default"

var (
	// ErrNotFound is returned when no item matches the id.
	ErrNotFound = errors.New("watchlist item not found")
	// ErrAlreadyWatched is returned when the symbol is already on the list.
	ErrAlreadyWatched = errors.New("stock is already in watchlist")
	// ErrSymbolRequired is returned when Add gets an empty symbol.
	ErrSymbolRequired = errors.New("stock symbol is required")
)

// Item is one watched stock.
type Item struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	StockSymbol string    `json:"stock_symbol"`
	Notes       string    `json:"notes,omitempty"`
	AddedDate   time.Time `json:"added_date"`
	IsActive    bool      `json:"is_active"`
}

// Store persists watchlist items.
type Store interface {
	// Insert stores a new item. It returns ErrAlreadyWatched when an active
	// item exists for the same user and symbol.
	Insert(ctx context.Context, item Item) error
	// ListActive returns active items for a user, newest first.
	ListActive(ctx context.Context, userID string) ([]Item, error)
	// UpdateNotes changes the notes of an active item.
	UpdateNotes(ctx context.Context, id, notes string) (Item, error)
	// Deactivate soft-deletes an active item.
	Deactivate(ctx context.Context, id string) error
	// IsWatched reports whether an active item exists for user and symbol.
	IsWatched(ctx context.Context, userID, symbol string) (bool, error)
}

// IDGenerator yields unique item ids.
type IDGenerator interface {
	NewID() (string, error)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// Service applies watchlist rules on top of a Store.
type Service struct {
	store  Store
	ids    IDGenerator
	clock  Clock
	logger *zap.Logger
}

// NewService builds a Service.
func NewService(store Store, ids IDGenerator, clock Clock, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("watchlist store is required")
	}
	if ids == nil {
		return nil, fmt.Errorf("id generator is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, ids: ids, clock: clock, logger: logger}, nil
}

// List returns the active items of userID.
func (s *Service) List(ctx context.Context, userID string) ([]Item, error) {
	items, err := s.store.ListActive(ctx, userOrDefault(userID))
	if err != nil {
		return nil, fmt.Errorf("list watchlist: %w", err)
	}
	return items, nil
}

// Add puts a symbol on the user's watchlist.
func (s *Service) Add(ctx context.Context, userID, symbol, notes string) (Item, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return Item{}, ErrSymbolRequired
	}
	id, err := s.ids.NewID()
	if err != nil {
		return Item{}, fmt.Errorf("generate watchlist id: %w", err)
	}
	item := Item{
		ID:          id,
		UserID:      userOrDefault(userID),
		StockSymbol: symbol,
		Notes:       strings.TrimSpace(notes),
		AddedDate:   s.clock.Now(),
		IsActive:    true,
	}
	if err := s.store.Insert(ctx, item); err != nil {
		if errors.Is(err, ErrAlreadyWatched) {
			return Item{}, ErrAlreadyWatched
		}
		return Item{}, fmt.Errorf("add to watchlist: %w", err)
	}
	s.logger.Info("stock added to watchlist", zap.String("symbol", symbol), zap.String("id", id))
	return item, nil
}

// Remove soft-deletes an item.
func (s *Service) Remove(ctx context.Context, id string) error {
	if err := s.store.Deactivate(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("remove from watchlist: %w", err)
	}
	return nil
}

// Update replaces the notes of an item.
func (s *Service) Update(ctx context.Context, id, notes string) (Item, error) {
	item, err := s.store.UpdateNotes(ctx, id, strings.TrimSpace(notes))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Item{}, ErrNotFound
		}
		return Item{}, fmt.Errorf("update watchlist item: %w", err)
	}
	return item, nil
}

// IsWatched reports whether the user follows symbol.
func (s *Service) IsWatched(ctx context.Context, userID, symbol string) (bool, error) {
	watched, err := s.store.IsWatched(ctx, userOrDefault(userID), strings.ToUpper(strings.TrimSpace(symbol)))
	if err != nil {
		return false, fmt.Errorf("check watchlist: %w", err)
	}
	return watched, nil
}

func userOrDefault(userID string) string {
	if strings.TrimSpace(userID) == "" {
		return DefaultUserID
	}
	return userID
}
