package stock

import "context"

// Store persists stocks keyed by symbol. Implementations must be safe for
// concurrent use.
type Store interface {
	// Upsert creates the stock if its symbol is absent, otherwise merges it
	// into the existing row (see Merge). It returns the stored row.
	Upsert(ctx context.Context, s Stock) (Stock, error)
	Get(ctx context.Context, symbol string) (Stock, error)
	List(ctx context.Context, q ListQuery) (PageResult, error)
	// Search matches query case-insensitively against symbol or name.
	Search(ctx context.Context, query string, limit int) ([]Stock, error)
	// Restricted returns stocks whose status is restricted or suspended.
	Restricted(ctx context.Context) ([]Stock, error)
	UpdatePrice(ctx context.Context, symbol string, u PriceUpdate) (Stock, error)
	Delete(ctx context.Context, symbol string) error
	Statistics(ctx context.Context) (Statistics, error)
}

// Index is a full-text index over stocks.
type Index interface {
	Index(ctx context.Context, stocks []Stock) error
	// Search returns matching symbols, best match first.
	Search(ctx context.Context, query string, limit int) ([]string, error)
}
