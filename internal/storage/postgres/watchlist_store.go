package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/hnx-restricted-tracker/internal/watchlist"
)

const watchlistColumns = `id, user_id, stock_symbol, notes, added_date, is_active`

// WatchlistStore persists watchlist items.
type WatchlistStore struct {
	db querier
}

var _ watchlist.Store = (*WatchlistStore)(nil)

// NewWatchlistStore wraps an open pool.
func NewWatchlistStore(db querier) (*WatchlistStore, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &WatchlistStore{db: db}, nil
}

// Insert adds an item. The partial unique index on active rows turns a
// duplicate into ErrAlreadyWatched.
func (s *WatchlistStore) Insert(ctx context.Context, item watchlist.Item) error {
	_, err := s.db.Exec(ctx, `INSERT INTO watchlist (`+watchlistColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		item.ID, item.UserID, item.StockSymbol, item.Notes, item.AddedDate, item.IsActive)
	if isUniqueViolation(err) {
		return watchlist.ErrAlreadyWatched
	}
	if err != nil {
		return fmt.Errorf("insert watchlist item: %w", err)
	}
	return nil
}

// ListActive returns active items for the user, newest first.
func (s *WatchlistStore) ListActive(ctx context.Context, userID string) ([]watchlist.Item, error) {
	rows, err := s.db.Query(ctx, `SELECT `+watchlistColumns+` FROM watchlist
WHERE user_id = $1 AND is_active
ORDER BY added_date DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list watchlist: %w", err)
	}
	defer rows.Close()
	items := []watchlist.Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan watchlist item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate watchlist: %w", err)
	}
	return items, nil
}

// UpdateNotes sets the notes of an active item.
func (s *WatchlistStore) UpdateNotes(ctx context.Context, id, notes string) (watchlist.Item, error) {
	row := s.db.QueryRow(ctx, `UPDATE watchlist SET notes = $2
WHERE id = $1 AND is_active
RETURNING `+watchlistColumns, id, notes)
	item, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return watchlist.Item{}, watchlist.ErrNotFound
	}
	if err != nil {
		return watchlist.Item{}, fmt.Errorf("update watchlist item: %w", err)
	}
	return item, nil
}

// Deactivate soft-deletes an active item.
func (s *WatchlistStore) Deactivate(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `UPDATE watchlist SET is_active = FALSE WHERE id = $1 AND is_active`, id)
	if err != nil {
		return fmt.Errorf("deactivate watchlist item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return watchlist.ErrNotFound
	}
	return nil
}

// IsWatched reports whether an active item exists.
func (s *WatchlistStore) IsWatched(ctx context.Context, userID, symbol string) (bool, error) {
	var watched bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM watchlist WHERE user_id = $1 AND stock_symbol = $2 AND is_active)`,
		userID, symbol,
	).Scan(&watched)
	if err != nil {
		return false, fmt.Errorf("check watchlist: %w", err)
	}
	return watched, nil
}

func scanItem(row pgx.Row) (watchlist.Item, error) {
	var item watchlist.Item
	err := row.Scan(&item.ID, &item.UserID, &item.StockSymbol, &item.Notes, &item.AddedDate, &item.IsActive)
	return item, err
}
