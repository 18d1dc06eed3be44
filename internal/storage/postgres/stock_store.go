package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/hnx-restricted-tracker/internal/stock"
)

const stockColumns = `symbol, name, status, exchange, current_price, price_change,
	price_change_percent, volume, market_cap, restriction_reason, restriction_date,
	created_at, updated_at, last_updated`

// StockStore persists stocks in the stocks table.
type StockStore struct {
	db querier
}

var _ stock.Store = (*StockStore)(nil)

// NewStockStore wraps an open pool.
func NewStockStore(db querier) (*StockStore, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &StockStore{db: db}, nil
}

// Close releases the pool.
func (s *StockStore) Close() {
	s.db.Close()
}

// Upsert inserts the stock or merges it into the existing row. Price columns
// keep their value when the incoming one is null; the first restriction date
// wins.
func (s *StockStore) Upsert(ctx context.Context, st stock.Stock) (stock.Stock, error) {
	createdAt := st.CreatedAt
	if createdAt.IsZero() {
		createdAt = st.UpdatedAt
	}
	query := `
INSERT INTO stocks (` + stockColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (symbol) DO UPDATE SET
	name = EXCLUDED.name,
	status = EXCLUDED.status,
	exchange = EXCLUDED.exchange,
	current_price = COALESCE(EXCLUDED.current_price, stocks.current_price),
	price_change = COALESCE(EXCLUDED.price_change, stocks.price_change),
	price_change_percent = COALESCE(EXCLUDED.price_change_percent, stocks.price_change_percent),
	volume = COALESCE(EXCLUDED.volume, stocks.volume),
	market_cap = COALESCE(EXCLUDED.market_cap, stocks.market_cap),
	restriction_reason = EXCLUDED.restriction_reason,
	restriction_date = COALESCE(stocks.restriction_date, EXCLUDED.restriction_date),
	updated_at = EXCLUDED.updated_at,
	last_updated = EXCLUDED.last_updated
RETURNING ` + stockColumns
	row := s.db.QueryRow(ctx, query,
		st.Symbol,
		st.Name,
		string(st.Status),
		st.Exchange,
		st.CurrentPrice,
		st.PriceChange,
		st.PriceChangePercent,
		st.Volume,
		st.MarketCap,
		st.RestrictionReason,
		st.RestrictionDate,
		createdAt,
		st.UpdatedAt,
		st.LastUpdated,
	)
	stored, err := scanStock(row)
	if err != nil {
		return stock.Stock{}, fmt.Errorf("upsert stock %s: %w", st.Symbol, err)
	}
	return stored, nil
}

// Get fetches a stock by symbol.
func (s *StockStore) Get(ctx context.Context, symbol string) (stock.Stock, error) {
	row := s.db.QueryRow(ctx, `SELECT `+stockColumns+` FROM stocks WHERE symbol = $1`, symbol)
	st, err := scanStock(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return stock.Stock{}, stock.ErrNotFound
	}
	if err != nil {
		return stock.Stock{}, fmt.Errorf("get stock %s: %w", symbol, err)
	}
	return st, nil
}

// List returns one page ordered by last_updated descending.
func (s *StockStore) List(ctx context.Context, q stock.ListQuery) (stock.PageResult, error) {
	status := string(q.Status)
	var total int64
	if err := s.db.QueryRow(ctx,
		`SELECT count(*) FROM stocks WHERE ($1::text = '' OR status = $1::text)`, status,
	).Scan(&total); err != nil {
		return stock.PageResult{}, fmt.Errorf("count stocks: %w", err)
	}
	rows, err := s.db.Query(ctx, `SELECT `+stockColumns+` FROM stocks
WHERE ($1::text = '' OR status = $1::text)
ORDER BY last_updated DESC, symbol
LIMIT $2 OFFSET $3`, status, q.Limit, q.Offset())
	if err != nil {
		return stock.PageResult{}, fmt.Errorf("list stocks: %w", err)
	}
	stocks, err := collectStocks(rows)
	if err != nil {
		return stock.PageResult{}, err
	}
	return stock.NewPageResult(stocks, int(total), q), nil
}

// Search matches query against symbol or name with ILIKE.
func (s *StockStore) Search(ctx context.Context, query string, limit int) ([]stock.Stock, error) {
	pattern := "%" + escapeLike(query) + "%"
	rows, err := s.db.Query(ctx, `SELECT `+stockColumns+` FROM stocks
WHERE symbol ILIKE $1 OR name ILIKE $1
ORDER BY symbol
LIMIT $2`, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search stocks: %w", err)
	}
	return collectStocks(rows)
}

// Restricted returns restricted and suspended stocks.
func (s *StockStore) Restricted(ctx context.Context) ([]stock.Stock, error) {
	rows, err := s.db.Query(ctx, `SELECT `+stockColumns+` FROM stocks
WHERE status IN ('restricted', 'suspended')
ORDER BY last_updated DESC, symbol`)
	if err != nil {
		return nil, fmt.Errorf("restricted stocks: %w", err)
	}
	return collectStocks(rows)
}

// UpdatePrice applies a price snapshot; null fields keep their value.
func (s *StockStore) UpdatePrice(ctx context.Context, symbol string, u stock.PriceUpdate) (stock.Stock, error) {
	row := s.db.QueryRow(ctx, `UPDATE stocks SET
	current_price = COALESCE($2, current_price),
	price_change = COALESCE($3, price_change),
	price_change_percent = COALESCE($4, price_change_percent),
	volume = COALESCE($5, volume),
	market_cap = COALESCE($6, market_cap),
	updated_at = $7,
	last_updated = $7
WHERE symbol = $1
RETURNING `+stockColumns,
		symbol, u.CurrentPrice, u.PriceChange, u.PriceChangePercent, u.Volume, u.MarketCap, u.At)
	st, err := scanStock(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return stock.Stock{}, stock.ErrNotFound
	}
	if err != nil {
		return stock.Stock{}, fmt.Errorf("update price %s: %w", symbol, err)
	}
	return st, nil
}

// Delete removes a stock.
func (s *StockStore) Delete(ctx context.Context, symbol string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM stocks WHERE symbol = $1`, symbol)
	if err != nil {
		return fmt.Errorf("delete stock %s: %w", symbol, err)
	}
	if tag.RowsAffected() == 0 {
		return stock.ErrNotFound
	}
	return nil
}

// Statistics counts stocks by status and exchange.
func (s *StockStore) Statistics(ctx context.Context) (stock.Statistics, error) {
	rows, err := s.db.Query(ctx, `SELECT status, exchange, count(*) FROM stocks GROUP BY status, exchange`)
	if err != nil {
		return stock.Statistics{}, fmt.Errorf("stock statistics: %w", err)
	}
	defer rows.Close()

	stats := stock.Statistics{ByExchange: map[string]int{}}
	for rows.Next() {
		var (
			status, exchange string
			count            int64
		)
		if err := rows.Scan(&status, &exchange, &count); err != nil {
			return stock.Statistics{}, fmt.Errorf("scan statistics: %w", err)
		}
		n := int(count)
		stats.Total += n
		stats.ByExchange[exchange] += n
		switch stock.Status(status) {
		case stock.StatusRestricted:
			stats.Restricted += n
		case stock.StatusSuspended:
			stats.Suspended += n
		case stock.StatusNormal:
			stats.Normal += n
		}
	}
	if err := rows.Err(); err != nil {
		return stock.Statistics{}, fmt.Errorf("iterate statistics: %w", err)
	}
	return stats, nil
}

func scanStock(row pgx.Row) (stock.Stock, error) {
	var (
		st              stock.Stock
		status          string
		volume          sql.NullInt64
		restrictionDate sql.NullTime
	)
	err := row.Scan(
		&st.Symbol,
		&st.Name,
		&status,
		&st.Exchange,
		&st.CurrentPrice,
		&st.PriceChange,
		&st.PriceChangePercent,
		&volume,
		&st.MarketCap,
		&st.RestrictionReason,
		&restrictionDate,
		&st.CreatedAt,
		&st.UpdatedAt,
		&st.LastUpdated,
	)
	if err != nil {
		return stock.Stock{}, err
	}
	st.Status = stock.Status(status)
	if volume.Valid {
		v := volume.Int64
		st.Volume = &v
	}
	if restrictionDate.Valid {
		d := restrictionDate.Time
		st.RestrictionDate = &d
	}
	return st, nil
}

func collectStocks(rows pgx.Rows) ([]stock.Stock, error) {
	defer rows.Close()
	out := []stock.Stock{}
	for rows.Next() {
		st, err := scanStock(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stock: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stocks: %w", err)
	}
	return out, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
