package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/JakeFAU/hnx-restricted-tracker/internal/watchlist"
)

const watchlistColumns = `id, user_id, stock_symbol, notes, added_date, is_active`

type itemRow struct {
	ID          string    `db:"id"`
	UserID      string    `db:"user_id"`
	StockSymbol string    `db:"stock_symbol"`
	Notes       string    `db:"notes"`
	AddedDate   time.Time `db:"added_date"`
	IsActive    bool      `db:"is_active"`
}

func (r itemRow) toItem() watchlist.Item {
	return watchlist.Item(r)
}

// WatchlistStore persists watchlist items.
type WatchlistStore struct {
	db *sqlx.DB
}

var _ watchlist.Store = (*WatchlistStore)(nil)

// NewWatchlistStore wraps an open, migrated database.
func NewWatchlistStore(db *sqlx.DB) (*WatchlistStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	return &WatchlistStore{db: db}, nil
}

// Insert adds an item. The partial unique index on active rows turns a
// duplicate into ErrAlreadyWatched.
func (s *WatchlistStore) Insert(ctx context.Context, item watchlist.Item) error {
	row := itemRow(item)
	row.AddedDate = row.AddedDate.UTC()
	_, err := s.db.NamedExecContext(ctx, `INSERT INTO watchlist (`+watchlistColumns+`)
VALUES (:id, :user_id, :stock_symbol, :notes, :added_date, :is_active)`, row)
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
	var rows []itemRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+watchlistColumns+` FROM watchlist
WHERE user_id = ? AND is_active = 1
ORDER BY added_date DESC`, userID); err != nil {
		return nil, fmt.Errorf("list watchlist: %w", err)
	}
	items := make([]watchlist.Item, 0, len(rows))
	for _, r := range rows {
		items = append(items, r.toItem())
	}
	return items, nil
}

// UpdateNotes sets the notes of an active item.
func (s *WatchlistStore) UpdateNotes(ctx context.Context, id, notes string) (watchlist.Item, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE watchlist SET notes = ? WHERE id = ? AND is_active = 1`, notes, id)
	if err != nil {
		return watchlist.Item{}, fmt.Errorf("update watchlist item: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return watchlist.Item{}, watchlist.ErrNotFound
	}
	var row itemRow
	err = s.db.GetContext(ctx, &row, `SELECT `+watchlistColumns+` FROM watchlist WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return watchlist.Item{}, watchlist.ErrNotFound
	}
	if err != nil {
		return watchlist.Item{}, fmt.Errorf("reload watchlist item: %w", err)
	}
	return row.toItem(), nil
}

// Deactivate soft-deletes an active item.
func (s *WatchlistStore) Deactivate(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE watchlist SET is_active = 0 WHERE id = ? AND is_active = 1`, id)
	if err != nil {
		return fmt.Errorf("deactivate watchlist item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deactivate watchlist item: %w", err)
	}
	if n == 0 {
		return watchlist.ErrNotFound
	}
	return nil
}

// IsWatched reports whether an active item exists.
func (s *WatchlistStore) IsWatched(ctx context.Context, userID, symbol string) (bool, error) {
	var n int
	if err := s.db.GetContext(ctx, &n,
		`SELECT count(*) FROM watchlist WHERE user_id = ? AND stock_symbol = ? AND is_active = 1`,
		userID, symbol,
	); err != nil {
		return false, fmt.Errorf("check watchlist: %w", err)
	}
	return n > 0, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}
