package scraper

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the trading status assigned to an extracted record.
type Status string

// Status values mirrored by the stock store.
const (
	StatusRestricted Status = "restricted"
	StatusSuspended  Status = "suspended"
	StatusNormal     Status = "normal"
)

// ExchangeHNX identifies the listing venue of the scrape source.
const ExchangeHNX = "HNX"

// Confidence tags how a record was produced.
type Confidence string

const (
	// ConfidenceStructured marks records parsed from a located table row.
	ConfidenceStructured Confidence = "structured"
	// ConfidenceHeuristic marks placeholder records recovered from free text.
	ConfidenceHeuristic Confidence = "heuristic"
)

// Outcome describes which extraction path produced a result.
type Outcome string

const (
	// OutcomeStructured means at least one table row was accepted.
	OutcomeStructured Outcome = "structured"
	// OutcomeFallback means the table path was empty and the text scan found tickers.
	OutcomeFallback Outcome = "fallback"
	// OutcomeEmpty means neither path produced a record.
	OutcomeEmpty Outcome = "empty"
)

// Record is one extracted stock entry.
type Record struct {
	Symbol            string              `json:"symbol" yaml:"symbol"`
	Name              string              `json:"name" yaml:"name"`
	Status            Status              `json:"status" yaml:"status"`
	Exchange          string              `json:"exchange" yaml:"exchange"`
	RestrictionReason string              `json:"restriction_reason,omitempty" yaml:"restriction_reason,omitempty"`
	RestrictionDate   *time.Time          `json:"restriction_date,omitempty" yaml:"restriction_date,omitempty"`
	LastUpdated       time.Time           `json:"last_updated" yaml:"last_updated"`
	Confidence        Confidence          `json:"confidence,omitempty" yaml:"confidence,omitempty"`
	CurrentPrice      decimal.NullDecimal `json:"current_price" yaml:"-"`
	Volume            *int64              `json:"volume,omitempty" yaml:"volume,omitempty"`
}

// Result is the outcome of one extraction run.
type Result struct {
	Records       []Record `json:"records"`
	Accepted      int      `json:"accepted"`
	Rejected      int      `json:"rejected"`
	TablesScanned int      `json:"tables_scanned"`
	TablesMatched int      `json:"tables_matched"`
	Outcome       Outcome  `json:"outcome"`
	// HTML is the rendered document the records were extracted from.
	HTML string `json:"-"`
	// SourceURL is the final URL reported by the fetcher.
	SourceURL string `json:"source_url,omitempty"`
}

// Confidence reports the weakest confidence level present in the result.
func (r Result) Confidence() Confidence {
	if r.Outcome == OutcomeFallback {
		return ConfidenceHeuristic
	}
	return ConfidenceStructured
}

// Table is a typed view of one <table> element.
type Table struct {
	Header []string
	Rows   [][]string
	// HeaderInBody is set when no <thead> exists and Header was taken from
	// the first body row.
	HeaderInBody bool
}

// FetchRequest describes a page render request.
type FetchRequest struct {
	URL     string
	Headers http.Header
	// WaitSelector, when set, must appear within SelectorTimeout or the fetch fails.
	WaitSelector    string
	SelectorTimeout time.Duration
	// Timeout bounds navigation. Zero means the fetcher default.
	Timeout time.Duration
}

// FetchResponse holds the rendered document and transport metadata.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}
