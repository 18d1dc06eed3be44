package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/hnx-restricted-tracker/internal/financial"
	"github.com/JakeFAU/hnx-restricted-tracker/internal/metrics"
	"github.com/JakeFAU/hnx-restricted-tracker/internal/refresh"
	"github.com/JakeFAU/hnx-restricted-tracker/internal/scraper"
	"github.com/JakeFAU/hnx-restricted-tracker/internal/stock"
	"github.com/JakeFAU/hnx-restricted-tracker/internal/watchlist"
)

// DefaultRequestTimeout bounds every request. The synchronous refresh renders
// a page in a browser, so the ceiling is generous.
const DefaultRequestTimeout = 90 * time.Second

// StockService serves the read side of the stock table.
type StockService interface {
	List(ctx context.Context, page, limit int, status string) (stock.PageResult, error)
	Get(ctx context.Context, symbol string) (stock.Stock, error)
	Search(ctx context.Context, query string, limit int) ([]stock.Stock, error)
	Restricted(ctx context.Context) ([]stock.Stock, error)
	Statistics(ctx context.Context) (stock.Statistics, error)
}

// Refresher runs one synchronous refresh.
type Refresher interface {
	Refresh(ctx context.Context) (refresh.Summary, error)
}

// RefreshJobs queues refreshes and reports their runs.
type RefreshJobs interface {
	Submit(ctx context.Context, trigger refresh.Trigger) (refresh.Run, error)
	Get(ctx context.Context, id string) (refresh.Run, error)
}

// DetailFetcher loads a live per-symbol page.
type DetailFetcher interface {
	GetStockDetails(ctx context.Context, symbol string) (*scraper.Record, error)
}

// WatchlistService manages the watchlist.
type WatchlistService interface {
	List(ctx context.Context, userID string) ([]watchlist.Item, error)
	Add(ctx context.Context, userID, symbol, notes string) (watchlist.Item, error)
	Remove(ctx context.Context, id string) error
	Update(ctx context.Context, id, notes string) (watchlist.Item, error)
}

// FinancialService aggregates financial reports.
type FinancialService interface {
	Fetch(ctx context.Context, symbol string) (financial.Result, error)
}

// Check reports whether a dependency is ready.
type Check func(ctx context.Context) error

// Deps are the services behind the routes. Nil optional services answer 503.
type Deps struct {
	Stocks    StockService
	Refresher Refresher
	Jobs      RefreshJobs
	Details   DetailFetcher
	Watchlist WatchlistService
	Financial FinancialService
	Ready     map[string]Check
}

// Server wires HTTP handlers to the services.
type Server struct {
	router chi.Router
	deps   Deps
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes. A non-positive
// timeout uses DefaultRequestTimeout.
func NewServer(deps Deps, timeout time.Duration, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	s := &Server{deps: deps, logger: logger}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(timeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/stocks", func(r chi.Router) {
			r.Get("/", s.listStocks)
			r.Get("/search", s.searchStocks)
			r.Get("/restricted", s.restrictedStocks)
			r.Get("/statistics", s.stockStatistics)
			r.Post("/refresh-hnx", s.refreshHNX)
			r.Get("/{symbol}", s.getStock)
			r.Get("/{symbol}/details", s.stockDetails)
		})
		r.Route("/refresh/jobs", func(r chi.Router) {
			r.Post("/", s.submitRefreshJob)
			r.Get("/{job_id}", s.getRefreshJob)
		})
		r.Route("/watchlist", func(r chi.Router) {
			r.Get("/", s.listWatchlist)
			r.Post("/", s.addToWatchlist)
			r.Put("/{id}", s.updateWatchlistItem)
			r.Delete("/{id}", s.removeFromWatchlist)
		})
		r.Get("/financial/{symbol}", s.financialReports)
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "route not found")
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeData(w, http.StatusOK, map[string]string{"status": "ok"}, "")
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	failed := map[string]string{}
	for name, check := range s.deps.Ready {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		s.logger.Warn("readiness check failed", zap.Any("checks", failed))
		writeJSON(w, http.StatusServiceUnavailable, envelope{Success: false, Data: failed, Error: "not ready"})
		return
	}
	writeData(w, http.StatusOK, map[string]string{"status": "ready"}, "")
}

func unavailable(w http.ResponseWriter, what string) {
	writeError(w, http.StatusServiceUnavailable, what+" unavailable")
}
