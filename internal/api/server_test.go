package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/hnx-restricted-tracker/internal/clock/system"
	"github.com/JakeFAU/hnx-restricted-tracker/internal/financial"
	"github.com/JakeFAU/hnx-restricted-tracker/internal/id/uuid"
	queueMemory "github.com/JakeFAU/hnx-restricted-tracker/internal/queue/memory"
	"github.com/JakeFAU/hnx-restricted-tracker/internal/refresh"
	"github.com/JakeFAU/hnx-restricted-tracker/internal/scraper"
	"github.com/JakeFAU/hnx-restricted-tracker/internal/stock"
	"github.com/JakeFAU/hnx-restricted-tracker/internal/storage/memory"
	"github.com/JakeFAU/hnx-restricted-tracker/internal/watchlist"
)

type testEnv struct {
	server *Server
	stocks *stock.Service
	queue  *queueMemory.Queue
	deps   Deps
}

type fakeRefresher struct {
	summary refresh.Summary
	err     error
}

func (f fakeRefresher) Refresh(context.Context) (refresh.Summary, error) {
	return f.summary, f.err
}

type fakeDetails struct {
	rec *scraper.Record
	err error
}

func (f fakeDetails) GetStockDetails(context.Context, string) (*scraper.Record, error) {
	return f.rec, f.err
}

type fakeFinancial struct{}

func (fakeFinancial) Fetch(_ context.Context, symbol string) (financial.Result, error) {
	if strings.TrimSpace(symbol) == "" {
		return financial.Result{}, financial.ErrSymbolRequired
	}
	return financial.Result{
		Symbol:   strings.ToUpper(symbol),
		Reports:  []financial.Report{{StockSymbol: strings.ToUpper(symbol), ReportType: financial.TypeAnnual, Year: 2024}},
		Failures: []financial.SourceError{{Source: "cafef", Err: errors.New("timeout")}},
	}, nil
}

func newTestEnv(t *testing.T, mutate func(*Deps)) testEnv {
	t.Helper()
	clock := system.New()
	stocks, err := stock.NewService(memory.NewStockStore(), clock, zap.NewNop())
	require.NoError(t, err)
	items, err := watchlist.NewService(memory.NewWatchlistStore(), uuid.New(), clock, zap.NewNop())
	require.NoError(t, err)
	q := queueMemory.NewQueue(4)
	jobs, err := refresh.NewJobs(memory.NewRunStore(), q, uuid.New(), clock, zap.NewNop())
	require.NoError(t, err)

	deps := Deps{
		Stocks:    stocks,
		Refresher: fakeRefresher{summary: refresh.Summary{Updated: 1, Stocks: []stock.Stock{{Symbol: "ACB"}}}},
		Jobs:      jobs,
		Details:   fakeDetails{rec: &scraper.Record{Symbol: "ACB", Name: "Ngân hàng Á Châu"}},
		Watchlist: items,
		Financial: fakeFinancial{},
	}
	if mutate != nil {
		mutate(&deps)
	}
	return testEnv{server: NewServer(deps, time.Second, zap.NewNop()), stocks: stocks, queue: q, deps: deps}
}

func (e testEnv) seed(t *testing.T, symbols ...string) {
	t.Helper()
	for _, sym := range symbols {
		_, err := e.stocks.Upsert(context.Background(), stock.Stock{
			Symbol:   sym,
			Name:     "Company " + sym,
			Status:   stock.StatusRestricted,
			Exchange: stock.ExchangeHNX,
		})
		require.NoError(t, err)
	}
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func TestHealthAndReadiness(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, func(d *Deps) {
		d.Ready = map[string]Check{"db": func(context.Context) error { return errors.New("down") }}
	})
	rec, body := do(t, env.server.Handler(), http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, body.Success)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec, body = do(t, env.server.Handler(), http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.False(t, body.Success)

	ready := newTestEnv(t, nil)
	rec, _ = do(t, ready.server.Handler(), http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	do(t, env.server.Handler(), http.MethodGet, "/healthz", "")
	rec, _ := do(t, env.server.Handler(), http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestListStocks(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	env.seed(t, "AAA", "BBB", "CCC")

	rec, body := do(t, env.server.Handler(), http.MethodGet, "/api/stocks?page=1&limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, body.Success)
	page := body.Data.(map[string]any)
	require.EqualValues(t, 3, page["total"])
	require.Equal(t, true, page["has_more"])
	require.Len(t, page["stocks"], 2)

	rec, body = do(t, env.server.Handler(), http.MethodGet, "/api/stocks?status=delisted", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.False(t, body.Success)
}

func TestSearchStocks(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	env.seed(t, "ACB", "VND")

	rec, body := do(t, env.server.Handler(), http.MethodGet, "/api/stocks/search?q=ac", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, body.Data, 1)

	rec, body = do(t, env.server.Handler(), http.MethodGet, "/api/stocks/search?q=a", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Search query must be at least 2 characters", body.Error)
}

func TestGetStock(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	env.seed(t, "ACB")

	rec, body := do(t, env.server.Handler(), http.MethodGet, "/api/stocks/acb", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ACB", body.Data.(map[string]any)["symbol"])

	rec, body = do(t, env.server.Handler(), http.MethodGet, "/api/stocks/ZZZ", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "Stock not found", body.Error)
}

func TestRestrictedAndStatistics(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	env.seed(t, "ACB", "VND")

	rec, body := do(t, env.server.Handler(), http.MethodGet, "/api/stocks/restricted", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, body.Data, 2)

	rec, body = do(t, env.server.Handler(), http.MethodGet, "/api/stocks/statistics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	stats := body.Data.(map[string]any)
	require.EqualValues(t, 2, stats["total"])
	require.EqualValues(t, 2, stats["restricted"])
}

func TestRefreshHNX(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	rec, body := do(t, env.server.Handler(), http.MethodPost, "/api/stocks/refresh-hnx", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Successfully updated 1 stocks from HNX", body.Message)
	require.EqualValues(t, 1, body.Data.(map[string]any)["updated"])

	failing := newTestEnv(t, func(d *Deps) {
		d.Refresher = fakeRefresher{err: errors.New("navigation timeout")}
	})
	rec, body = do(t, failing.server.Handler(), http.MethodPost, "/api/stocks/refresh-hnx", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, refresh.FailureMessage, body.Error)
}

func TestStockDetails(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	rec, body := do(t, env.server.Handler(), http.MethodGet, "/api/stocks/ACB/details", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ACB", body.Data.(map[string]any)["symbol"])

	missing := newTestEnv(t, func(d *Deps) { d.Details = fakeDetails{} })
	rec, _ = do(t, missing.server.Handler(), http.MethodGet, "/api/stocks/ACB/details", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	invalid := newTestEnv(t, func(d *Deps) { d.Details = fakeDetails{err: scraper.ErrInvalidSymbol} })
	rec, _ = do(t, invalid.server.Handler(), http.MethodGet, "/api/stocks/x/details", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefreshJobs(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	rec, body := do(t, env.server.Handler(), http.MethodPost, "/api/refresh/jobs", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	jobID := body.Data.(map[string]any)["job_id"].(string)
	require.NotEmpty(t, jobID)

	req, err := env.queue.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, jobID, req.RunID)
	require.Equal(t, refresh.TriggerAPI, req.Trigger)

	rec, body = do(t, env.server.Handler(), http.MethodGet, "/api/refresh/jobs/"+jobID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "queued", body.Data.(map[string]any)["status"])

	rec, _ = do(t, env.server.Handler(), http.MethodGet, "/api/refresh/jobs/missing", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWatchlistLifecycle(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	h := env.server.Handler()

	rec, body := do(t, h, http.MethodPost, "/api/watchlist", `{"stock_symbol":"acb","notes":"watch"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "Stock added to watchlist", body.Message)
	item := body.Data.(map[string]any)
	require.Equal(t, "ACB", item["stock_symbol"])
	id := item["id"].(string)

	rec, body = do(t, h, http.MethodPost, "/api/watchlist", `{"stock_symbol":"ACB"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "Stock is already in watchlist", body.Error)

	rec, _ = do(t, h, http.MethodPost, "/api/watchlist", `{"notes":"x"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/api/watchlist", `{`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = do(t, h, http.MethodGet, "/api/watchlist", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, body.Data, 1)

	rec, body = do(t, h, http.MethodPut, "/api/watchlist/"+id, `{"notes":"dividend"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "dividend", body.Data.(map[string]any)["notes"])

	rec, _ = do(t, h, http.MethodPut, "/api/watchlist/missing", `{"notes":"x"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec, body = do(t, h, http.MethodDelete, "/api/watchlist/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Stock removed from watchlist", body.Message)

	rec, _ = do(t, h, http.MethodDelete, "/api/watchlist/"+id, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFinancialReports(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	rec, body := do(t, env.server.Handler(), http.MethodGet, "/api/financial/acb", "")
	require.Equal(t, http.StatusOK, rec.Code)
	data := body.Data.(map[string]any)
	require.Equal(t, "ACB", data["symbol"])
	require.Len(t, data["reports"], 1)
	require.Equal(t, []any{"cafef"}, data["failed_sources"])
}

func TestUnavailableServices(t *testing.T) {
	t.Parallel()

	server := NewServer(Deps{}, 0, nil)
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/stocks"},
		{http.MethodPost, "/api/stocks/refresh-hnx"},
		{http.MethodPost, "/api/refresh/jobs"},
		{http.MethodGet, "/api/watchlist"},
		{http.MethodGet, "/api/financial/ACB"},
		{http.MethodGet, "/api/stocks/ACB/details"},
	} {
		rec, body := do(t, server.Handler(), tc.method, tc.path, "")
		require.Equal(t, http.StatusServiceUnavailable, rec.Code, tc.path)
		require.False(t, body.Success)
	}

	rec, _ := do(t, server.Handler(), http.MethodGet, "/nope", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

type panickingStocks struct{ StockService }

func (panickingStocks) Restricted(context.Context) ([]stock.Stock, error) {
	panic("boom")
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	server := NewServer(Deps{Stocks: panickingStocks{}}, time.Second, nil)
	rec, body := do(t, server.Handler(), http.MethodGet, "/api/stocks/restricted", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "internal server error", body.Error)
}

func TestRequestIDIsPropagated(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}
