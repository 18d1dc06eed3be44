// Package sqlite implements the stock, watchlist, run and snapshot stores on
// sqlx over an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/JakeFAU/hnx-restricted-tracker/internal/stock"
)

const stockColumns = `symbol, name, status, exchange, current_price, price_change,
	price_change_percent, volume, market_cap, restriction_reason, restriction_date,
	created_at, updated_at, last_updated`

type stockRow struct {
	Symbol             string              `db:"symbol"`
	Name               string              `db:"name"`
	Status             string              `db:"status"`
	Exchange           string              `db:"exchange"`
	CurrentPrice       decimal.NullDecimal `db:"current_price"`
	PriceChange        decimal.NullDecimal `db:"price_change"`
	PriceChangePercent decimal.NullDecimal `db:"price_change_percent"`
	Volume             sql.NullInt64       `db:"volume"`
	MarketCap          decimal.NullDecimal `db:"market_cap"`
	RestrictionReason  string              `db:"restriction_reason"`
	RestrictionDate    sql.NullTime        `db:"restriction_date"`
	CreatedAt          time.Time           `db:"created_at"`
	UpdatedAt          time.Time           `db:"updated_at"`
	LastUpdated        time.Time           `db:"last_updated"`
}

func toStockRow(st stock.Stock) stockRow {
	row := stockRow{
		Symbol:             st.Symbol,
		Name:               st.Name,
		Status:             string(st.Status),
		Exchange:           st.Exchange,
		CurrentPrice:       st.CurrentPrice,
		PriceChange:        st.PriceChange,
		PriceChangePercent: st.PriceChangePercent,
		MarketCap:          st.MarketCap,
		RestrictionReason:  st.RestrictionReason,
		CreatedAt:          st.CreatedAt.UTC(),
		UpdatedAt:          st.UpdatedAt.UTC(),
		LastUpdated:        st.LastUpdated.UTC(),
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = row.UpdatedAt
	}
	if st.Volume != nil {
		row.Volume = sql.NullInt64{Int64: *st.Volume, Valid: true}
	}
	if st.RestrictionDate != nil {
		row.RestrictionDate = sql.NullTime{Time: st.RestrictionDate.UTC(), Valid: true}
	}
	return row
}

func (r stockRow) toStock() stock.Stock {
	st := stock.Stock{
		Symbol:             r.Symbol,
		Name:               r.Name,
		Status:             stock.Status(r.Status),
		Exchange:           r.Exchange,
		CurrentPrice:       r.CurrentPrice,
		PriceChange:        r.PriceChange,
		PriceChangePercent: r.PriceChangePercent,
		MarketCap:          r.MarketCap,
		RestrictionReason:  r.RestrictionReason,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
		LastUpdated:        r.LastUpdated,
	}
	if r.Volume.Valid {
		v := r.Volume.Int64
		st.Volume = &v
	}
	if r.RestrictionDate.Valid {
		d := r.RestrictionDate.Time
		st.RestrictionDate = &d
	}
	return st
}

// StockStore persists stocks in the stocks table.
type StockStore struct {
	db *sqlx.DB
}

var _ stock.Store = (*StockStore)(nil)

// NewStockStore wraps an open, migrated database.
func NewStockStore(db *sqlx.DB) (*StockStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	return &StockStore{db: db}, nil
}

// Upsert inserts the stock or merges it into the existing row. Price columns
// keep their value when the incoming one is null; the first restriction date
// wins.
func (s *StockStore) Upsert(ctx context.Context, st stock.Stock) (stock.Stock, error) {
	_, err := s.db.NamedExecContext(ctx, `
INSERT INTO stocks (`+stockColumns+`)
VALUES (:symbol, :name, :status, :exchange, :current_price, :price_change,
	:price_change_percent, :volume, :market_cap, :restriction_reason, :restriction_date,
	:created_at, :updated_at, :last_updated)
ON CONFLICT (symbol) DO UPDATE SET
	name = excluded.name,
	status = excluded.status,
	exchange = excluded.exchange,
	current_price = COALESCE(excluded.current_price, stocks.current_price),
	price_change = COALESCE(excluded.price_change, stocks.price_change),
	price_change_percent = COALESCE(excluded.price_change_percent, stocks.price_change_percent),
	volume = COALESCE(excluded.volume, stocks.volume),
	market_cap = COALESCE(excluded.market_cap, stocks.market_cap),
	restriction_reason = excluded.restriction_reason,
	restriction_date = COALESCE(stocks.restriction_date, excluded.restriction_date),
	updated_at = excluded.updated_at,
	last_updated = excluded.last_updated`, toStockRow(st))
	if err != nil {
		return stock.Stock{}, fmt.Errorf("upsert stock %s: %w", st.Symbol, err)
	}
	return s.Get(ctx, st.Symbol)
}

// Get fetches a stock by symbol.
func (s *StockStore) Get(ctx context.Context, symbol string) (stock.Stock, error) {
	var row stockRow
	err := s.db.GetContext(ctx, &row, `SELECT `+stockColumns+` FROM stocks WHERE symbol = ?`, symbol)
	if errors.Is(err, sql.ErrNoRows) {
		return stock.Stock{}, stock.ErrNotFound
	}
	if err != nil {
		return stock.Stock{}, fmt.Errorf("get stock %s: %w", symbol, err)
	}
	return row.toStock(), nil
}

// List returns one page ordered by last_updated descending.
func (s *StockStore) List(ctx context.Context, q stock.ListQuery) (stock.PageResult, error) {
	status := string(q.Status)
	var total int
	if err := s.db.GetContext(ctx, &total,
		`SELECT count(*) FROM stocks WHERE (? = '' OR status = ?)`, status, status,
	); err != nil {
		return stock.PageResult{}, fmt.Errorf("count stocks: %w", err)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = -1
	}
	stocks, err := s.selectStocks(ctx, `SELECT `+stockColumns+` FROM stocks
WHERE (? = '' OR status = ?)
ORDER BY last_updated DESC, symbol
LIMIT ? OFFSET ?`, status, status, limit, q.Offset())
	if err != nil {
		return stock.PageResult{}, fmt.Errorf("list stocks: %w", err)
	}
	return stock.NewPageResult(stocks, total, q), nil
}

// Search matches query against symbol or name. LIKE folds ASCII case only.
func (s *StockStore) Search(ctx context.Context, query string, limit int) ([]stock.Stock, error) {
	pattern := "%" + escapeLike(query) + "%"
	stocks, err := s.selectStocks(ctx, `SELECT `+stockColumns+` FROM stocks
WHERE symbol LIKE ? ESCAPE '\' OR name LIKE ? ESCAPE '\'
ORDER BY symbol
LIMIT ?`, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search stocks: %w", err)
	}
	return stocks, nil
}

// Restricted returns restricted and suspended stocks.
func (s *StockStore) Restricted(ctx context.Context) ([]stock.Stock, error) {
	stocks, err := s.selectStocks(ctx, `SELECT `+stockColumns+` FROM stocks
WHERE status IN ('restricted', 'suspended')
ORDER BY last_updated DESC, symbol`)
	if err != nil {
		return nil, fmt.Errorf("restricted stocks: %w", err)
	}
	return stocks, nil
}

// UpdatePrice applies a price snapshot; null fields keep their value.
func (s *StockStore) UpdatePrice(ctx context.Context, symbol string, u stock.PriceUpdate) (stock.Stock, error) {
	var volume sql.NullInt64
	if u.Volume != nil {
		volume = sql.NullInt64{Int64: *u.Volume, Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `UPDATE stocks SET
	current_price = COALESCE(?, current_price),
	price_change = COALESCE(?, price_change),
	price_change_percent = COALESCE(?, price_change_percent),
	volume = COALESCE(?, volume),
	market_cap = COALESCE(?, market_cap),
	updated_at = ?,
	last_updated = ?
WHERE symbol = ?`,
		u.CurrentPrice, u.PriceChange, u.PriceChangePercent, volume, u.MarketCap,
		u.At.UTC(), u.At.UTC(), symbol)
	if err != nil {
		return stock.Stock{}, fmt.Errorf("update price %s: %w", symbol, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return stock.Stock{}, stock.ErrNotFound
	}
	return s.Get(ctx, symbol)
}

// Delete removes a stock.
func (s *StockStore) Delete(ctx context.Context, symbol string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM stocks WHERE symbol = ?`, symbol)
	if err != nil {
		return fmt.Errorf("delete stock %s: %w", symbol, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete stock %s: %w", symbol, err)
	}
	if n == 0 {
		return stock.ErrNotFound
	}
	return nil
}

// Statistics counts stocks by status and exchange.
func (s *StockStore) Statistics(ctx context.Context) (stock.Statistics, error) {
	var groups []struct {
		Status   string `db:"status"`
		Exchange string `db:"exchange"`
		Count    int    `db:"n"`
	}
	if err := s.db.SelectContext(ctx, &groups,
		`SELECT status, exchange, count(*) AS n FROM stocks GROUP BY status, exchange`,
	); err != nil {
		return stock.Statistics{}, fmt.Errorf("stock statistics: %w", err)
	}
	stats := stock.Statistics{ByExchange: map[string]int{}}
	for _, g := range groups {
		stats.Total += g.Count
		stats.ByExchange[g.Exchange] += g.Count
		switch stock.Status(g.Status) {
		case stock.StatusRestricted:
			stats.Restricted += g.Count
		case stock.StatusSuspended:
			stats.Suspended += g.Count
		case stock.StatusNormal:
			stats.Normal += g.Count
		}
	}
	return stats, nil
}

func (s *StockStore) selectStocks(ctx context.Context, query string, args ...any) ([]stock.Stock, error) {
	var rows []stockRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]stock.Stock, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toStock())
	}
	return out, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
