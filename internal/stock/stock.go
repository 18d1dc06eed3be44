// Package stock holds the persisted stock model, its store boundary and the
// service the API and refresh pipeline use.
package stock

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/JakeFAU/hnx-restricted-tracker/internal/scraper"
)

// Field limits enforced before a stock reaches a store.
const (
	MaxSymbolLength = 10
	MaxNameLength   = 255
)

var (
	// ErrNotFound is returned when no stock has the requested symbol.
	ErrNotFound = errors.New("stock not found")
	// ErrQueryTooShort is returned by search for queries under two characters.
	ErrQueryTooShort = errors.New("search query must be at least 2 characters")
	// ErrInvalidStatus is returned for an unknown status filter or value.
	ErrInvalidStatus = errors.New("invalid stock status")
	// ErrInvalidStock is returned when a stock fails field validation.
	ErrInvalidStock = errors.New("invalid stock")
)

// Status is the trading status of a stock.
type Status string

// Known statuses.
const (
	StatusRestricted Status = "restricted"
	StatusSuspended  Status = "suspended"
	StatusNormal     Status = "normal"
)

// ParseStatus validates a status string. An empty input is accepted and
// means "any".
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	switch s {
	case "", StatusRestricted, StatusSuspended, StatusNormal:
		return s, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
}

// Exchanges a stock can be listed on.
const (
	ExchangeHNX   = "HNX"
	ExchangeHOSE  = "HOSE"
	ExchangeUPCOM = "UPCOM"
)

// Stock is one persisted stock row.
type Stock struct {
	Symbol             string              `json:"symbol"`
	Name               string              `json:"name"`
	Status             Status              `json:"status"`
	Exchange           string              `json:"exchange"`
	CurrentPrice       decimal.NullDecimal `json:"current_price"`
	PriceChange        decimal.NullDecimal `json:"price_change"`
	PriceChangePercent decimal.NullDecimal `json:"price_change_percent"`
	Volume             *int64              `json:"volume,omitempty"`
	MarketCap          decimal.NullDecimal `json:"market_cap"`
	RestrictionReason  string              `json:"restriction_reason,omitempty"`
	RestrictionDate    *time.Time          `json:"restriction_date,omitempty"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
	LastUpdated        time.Time           `json:"last_updated"`
}

// Validate checks field limits and enumerations.
func (s Stock) Validate() error {
	switch {
	case s.Symbol == "":
		return fmt.Errorf("%w: symbol is required", ErrInvalidStock)
	case len(s.Symbol) > MaxSymbolLength:
		return fmt.Errorf("%w: symbol %q exceeds %d characters", ErrInvalidStock, s.Symbol, MaxSymbolLength)
	case s.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidStock)
	case utf8.RuneCountInString(s.Name) > MaxNameLength:
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidStock, MaxNameLength)
	}
	switch s.Status {
	case StatusRestricted, StatusSuspended, StatusNormal:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidStatus, s.Status)
	}
	switch s.Exchange {
	case ExchangeHNX, ExchangeHOSE, ExchangeUPCOM:
	default:
		return fmt.Errorf("%w: exchange %q", ErrInvalidStock, s.Exchange)
	}
	return nil
}

// FromRecord converts an extracted record into a stock ready for upsert.
func FromRecord(rec scraper.Record) Stock {
	exchange := strings.ToUpper(rec.Exchange)
	if exchange == "" {
		exchange = ExchangeHNX
	}
	status := Status(rec.Status)
	if status == "" {
		status = StatusRestricted
	}
	return Stock{
		Symbol:            NormalizeSymbol(rec.Symbol),
		Name:              strings.TrimSpace(rec.Name),
		Status:            status,
		Exchange:          exchange,
		CurrentPrice:      rec.CurrentPrice,
		Volume:            rec.Volume,
		RestrictionReason: rec.RestrictionReason,
		RestrictionDate:   rec.RestrictionDate,
		LastUpdated:       rec.LastUpdated,
	}
}

// NormalizeSymbol trims and uppercases a symbol from user input.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// ListQuery filters and paginates List.
type ListQuery struct {
	Page   int
	Limit  int
	Status Status
}

// Offset returns the row offset for the query page.
func (q ListQuery) Offset() int {
	if q.Page < 1 {
		return 0
	}
	return (q.Page - 1) * q.Limit
}

// PageResult is one page of stocks ordered by LastUpdated descending.
type PageResult struct {
	Stocks  []Stock `json:"stocks"`
	Total   int     `json:"total"`
	Page    int     `json:"page"`
	Limit   int     `json:"limit"`
	HasMore bool    `json:"has_more"`
}

// NewPageResult fills the pagination fields for a page of stocks.
func NewPageResult(stocks []Stock, total int, q ListQuery) PageResult {
	if stocks == nil {
		stocks = []Stock{}
	}
	return PageResult{
		Stocks:  stocks,
		Total:   total,
		Page:    q.Page,
		Limit:   q.Limit,
		HasMore: q.Offset()+len(stocks) < total,
	}
}

// PriceUpdate carries a market snapshot. Null fields are left unchanged.
type PriceUpdate struct {
	CurrentPrice       decimal.NullDecimal `json:"current_price"`
	PriceChange        decimal.NullDecimal `json:"price_change"`
	PriceChangePercent decimal.NullDecimal `json:"price_change_percent"`
	Volume             *int64              `json:"volume,omitempty"`
	MarketCap          decimal.NullDecimal `json:"market_cap"`
	At                 time.Time           `json:"-"`
}

// Apply merges the update into s.
func (u PriceUpdate) Apply(s Stock) Stock {
	if u.CurrentPrice.Valid {
		s.CurrentPrice = u.CurrentPrice
	}
	if u.PriceChange.Valid {
		s.PriceChange = u.PriceChange
	}
	if u.PriceChangePercent.Valid {
		s.PriceChangePercent = u.PriceChangePercent
	}
	if u.Volume != nil {
		v := *u.Volume
		s.Volume = &v
	}
	if u.MarketCap.Valid {
		s.MarketCap = u.MarketCap
	}
	if !u.At.IsZero() {
		s.UpdatedAt = u.At
		s.LastUpdated = u.At
	}
	return s
}

// Statistics summarizes the stock table.
type Statistics struct {
	Total      int            `json:"total"`
	Restricted int            `json:"restricted"`
	Suspended  int            `json:"suspended"`
	Normal     int            `json:"normal"`
	ByExchange map[string]int `json:"by_exchange"`
}

// Merge folds an existing row with an incoming upsert. Identity and
// restriction fields come from incoming; price fields only when set; the
// first restriction date and the creation time are kept.
func Merge(existing, incoming Stock) Stock {
	out := existing
	out.Name = incoming.Name
	out.Status = incoming.Status
	out.Exchange = incoming.Exchange
	out.RestrictionReason = incoming.RestrictionReason
	if out.RestrictionDate == nil {
		out.RestrictionDate = incoming.RestrictionDate
	}
	out = PriceUpdate{
		CurrentPrice:       incoming.CurrentPrice,
		PriceChange:        incoming.PriceChange,
		PriceChangePercent: incoming.PriceChangePercent,
		Volume:             incoming.Volume,
		MarketCap:          incoming.MarketCap,
	}.Apply(out)
	out.UpdatedAt = incoming.UpdatedAt
	out.LastUpdated = incoming.LastUpdated
	return out
}
