// Package refresh runs the scrape → persist → publish pipeline and manages
// queued and scheduled refresh runs.
package refresh

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/hnx-restricted-tracker/internal/scraper"
	"github.com/JakeFAU/hnx-restricted-tracker/internal/stock"
)

// Endpoint messages reported to API clients.
const (
	FailureMessage = "Failed to refresh HNX data"
	successFormat  = "Successfully updated %d stocks from HNX"
)

// Defaults for archive and event publishing.
const (
	DefaultTopic         = "stocks.refreshed"
	DefaultArchivePrefix = "snapshots"
	snapshotContentType  = "text/html; charset=utf-8"
)

// Scraper is the extraction entry point used by a refresh.
type Scraper interface {
	ScrapeRestrictedStocks(ctx context.Context) (scraper.Result, error)
	CloseSession()
}

// StockWriter persists extracted records.
type StockWriter interface {
	BulkUpsert(ctx context.Context, records []scraper.Record) []stock.Stock
	Reindex(ctx context.Context, stocks []stock.Stock) error
}

// BlobStore archives rendered pages.
type BlobStore interface {
	PutObject(ctx context.Context, path, contentType string, data io.Reader) (string, error)
}

// Hasher content-addresses archived pages.
type Hasher interface {
	Hash(data []byte) (string, error)
	SnapshotKey(prefix, digest string) string
}

// Publisher emits refresh events. Payloads are JSON-encoded by the
// implementation.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Snapshot describes one archived page.
type Snapshot struct {
	URL        string
	PageHash   string
	BlobURI    string
	Outcome    scraper.Outcome
	Accepted   int
	Rejected   int
	CapturedAt time.Time
}

// SnapshotLog records archived pages.
type SnapshotLog interface {
	RecordSnapshot(ctx context.Context, snap Snapshot) error
}

// Limiter throttles refreshes against the target host.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// Summary reports what one refresh did.
type Summary struct {
	Updated     int                `json:"updated"`
	Outcome     scraper.Outcome    `json:"outcome"`
	Confidence  scraper.Confidence `json:"confidence"`
	Stocks      []stock.Stock      `json:"stocks"`
	PageHash    string             `json:"page_hash,omitempty"`
	SnapshotURI string             `json:"snapshot_uri,omitempty"`
	StartedAt   time.Time          `json:"started_at"`
	FinishedAt  time.Time          `json:"finished_at"`
}

// Message is the human-readable result line.
func (s Summary) Message() string {
	return fmt.Sprintf(successFormat, s.Updated)
}

// Event is the payload published after a successful refresh.
type Event struct {
	Updated     int       `json:"updated"`
	Outcome     string    `json:"outcome"`
	Confidence  string    `json:"confidence"`
	Symbols     []string  `json:"symbols"`
	PageHash    string    `json:"page_hash,omitempty"`
	SnapshotURI string    `json:"snapshot_uri,omitempty"`
	At          time.Time `json:"at"`
}

// Refresher runs one refresh at a time on behalf of the API, the CLI and the
// queue workers.
type Refresher struct {
	mu        sync.Mutex
	scraper   Scraper
	stocks    StockWriter
	clock     Clock
	logger    *zap.Logger
	blobs     BlobStore
	hasher    Hasher
	prefix    string
	publisher Publisher
	topic     string
	limiter   Limiter
	targetURL string
	snapshots SnapshotLog
}

// Option customizes a Refresher.
type Option func(*Refresher)

// WithArchive stores every rendered page under prefix, keyed by hash.
func WithArchive(blobs BlobStore, hasher Hasher, prefix string) Option {
	return func(r *Refresher) {
		r.blobs = blobs
		r.hasher = hasher
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

// WithPublisher emits an Event to topic after each successful refresh.
func WithPublisher(p Publisher, topic string) Option {
	return func(r *Refresher) {
		r.publisher = p
		if topic != "" {
			r.topic = topic
		}
	}
}

// WithLimiter waits on limiter, keyed by targetURL, before each scrape.
func WithLimiter(l Limiter, targetURL string) Option {
	return func(r *Refresher) {
		r.limiter = l
		r.targetURL = targetURL
	}
}

// WithSnapshotLog records a row for every archived page.
func WithSnapshotLog(log SnapshotLog) Option {
	return func(r *Refresher) {
		r.snapshots = log
	}
}

// New builds a Refresher.
func New(scr Scraper, stocks StockWriter, clock Clock, logger *zap.Logger, opts ...Option) (*Refresher, error) {
	if scr == nil {
		return nil, fmt.Errorf("scraper is required")
	}
	if stocks == nil {
		return nil, fmt.Errorf("stock writer is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Refresher{
		scraper: scr,
		stocks:  stocks,
		clock:   clock,
		logger:  logger,
		prefix:  DefaultArchivePrefix,
		topic:   DefaultTopic,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Refresh scrapes the listing, stores the records and publishes an event.
// The rendering session is released exactly once however the run ends.
// Archive, reindex and publish failures are logged and do not fail the run.
func (r *Refresher) Refresh(ctx context.Context) (Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	summary := Summary{StartedAt: r.clock.Now()}
	defer r.scraper.CloseSession()

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx, r.targetURL); err != nil {
			return summary, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	res, err := r.scraper.ScrapeRestrictedStocks(ctx)
	if err != nil {
		r.logger.Error("refresh failed", zap.Error(err))
		return summary, fmt.Errorf("scrape restricted stocks: %w", err)
	}
	summary.Outcome = res.Outcome
	summary.Confidence = res.Confidence()
	summary.PageHash, summary.SnapshotURI = r.archive(ctx, res.HTML)
	r.recordSnapshot(ctx, res, summary)

	summary.Stocks = r.stocks.BulkUpsert(ctx, res.Records)
	summary.Updated = len(summary.Stocks)
	if err := r.stocks.Reindex(ctx, summary.Stocks); err != nil {
		r.logger.Warn("search reindex failed", zap.Error(err))
	}

	summary.FinishedAt = r.clock.Now()
	r.publish(ctx, summary)
	r.logger.Info(summary.Message(),
		zap.String("outcome", string(summary.Outcome)),
		zap.Int("extracted", len(res.Records)),
		zap.Int("updated", summary.Updated),
		zap.String("snapshot", summary.SnapshotURI),
	)
	return summary, nil
}

func (r *Refresher) archive(ctx context.Context, html string) (string, string) {
	if r.hasher == nil || html == "" {
		return "", ""
	}
	body := []byte(html)
	hash, err := r.hasher.Hash(body)
	if err != nil {
		r.logger.Warn("snapshot hash failed", zap.Error(err))
		return "", ""
	}
	if r.blobs == nil {
		return hash, ""
	}
	key := r.hasher.SnapshotKey(r.prefix, hash)
	uri, err := r.blobs.PutObject(ctx, key, snapshotContentType, bytes.NewReader(body))
	if err != nil {
		r.logger.Warn("snapshot archive failed", zap.String("key", key), zap.Error(err))
		return hash, ""
	}
	return hash, uri
}

func (r *Refresher) recordSnapshot(ctx context.Context, res scraper.Result, summary Summary) {
	if r.snapshots == nil || summary.PageHash == "" {
		return
	}
	err := r.snapshots.RecordSnapshot(ctx, Snapshot{
		URL:        res.SourceURL,
		PageHash:   summary.PageHash,
		BlobURI:    summary.SnapshotURI,
		Outcome:    res.Outcome,
		Accepted:   res.Accepted,
		Rejected:   res.Rejected,
		CapturedAt: r.clock.Now(),
	})
	if err != nil {
		r.logger.Warn("record snapshot failed", zap.String("hash", summary.PageHash), zap.Error(err))
	}
}

func (r *Refresher) publish(ctx context.Context, summary Summary) {
	if r.publisher == nil {
		return
	}
	symbols := make([]string, 0, len(summary.Stocks))
	for _, st := range summary.Stocks {
		symbols = append(symbols, st.Symbol)
	}
	id, err := r.publisher.Publish(ctx, r.topic, Event{
		Updated:     summary.Updated,
		Outcome:     string(summary.Outcome),
		Confidence:  string(summary.Confidence),
		Symbols:     symbols,
		PageHash:    summary.PageHash,
		SnapshotURI: summary.SnapshotURI,
		At:          summary.FinishedAt,
	})
	if err != nil {
		r.logger.Warn("publish refresh event failed", zap.String("topic", r.topic), zap.Error(err))
		return
	}
	r.logger.Debug("refresh event published", zap.String("topic", r.topic), zap.String("message_id", id))
}
