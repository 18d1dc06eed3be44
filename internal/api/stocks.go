package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/hnx-restricted-tracker/internal/refresh"
	"github.com/JakeFAU/hnx-restricted-tracker/internal/scraper"
	"github.com/JakeFAU/hnx-restricted-tracker/internal/stock"
)

type refreshResponse struct {
	Updated int           `json:"updated"`
	Stocks  []stock.Stock `json:"stocks"`
}

// queryInt parses an integer query parameter. Missing or malformed values
// yield zero so the service applies its default.
func queryInt(r *http.Request, key string) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return v
}

func (s *Server) listStocks(w http.ResponseWriter, r *http.Request) {
	if s.deps.Stocks == nil {
		unavailable(w, "stock service")
		return
	}
	res, err := s.deps.Stocks.List(r.Context(), queryInt(r, "page"), queryInt(r, "limit"), r.URL.Query().Get("status"))
	if err != nil {
		s.stockError(w, "list stocks", err)
		return
	}
	writeData(w, http.StatusOK, res, "")
}

func (s *Server) searchStocks(w http.ResponseWriter, r *http.Request) {
	if s.deps.Stocks == nil {
		unavailable(w, "stock service")
		return
	}
	stocks, err := s.deps.Stocks.Search(r.Context(), r.URL.Query().Get("q"), queryInt(r, "limit"))
	if err != nil {
		s.stockError(w, "search stocks", err)
		return
	}
	writeData(w, http.StatusOK, stocks, "")
}

func (s *Server) restrictedStocks(w http.ResponseWriter, r *http.Request) {
	if s.deps.Stocks == nil {
		unavailable(w, "stock service")
		return
	}
	stocks, err := s.deps.Stocks.Restricted(r.Context())
	if err != nil {
		s.stockError(w, "restricted stocks", err)
		return
	}
	writeData(w, http.StatusOK, stocks, "")
}

func (s *Server) stockStatistics(w http.ResponseWriter, r *http.Request) {
	if s.deps.Stocks == nil {
		unavailable(w, "stock service")
		return
	}
	stats, err := s.deps.Stocks.Statistics(r.Context())
	if err != nil {
		s.stockError(w, "stock statistics", err)
		return
	}
	writeData(w, http.StatusOK, stats, "")
}

func (s *Server) getStock(w http.ResponseWriter, r *http.Request) {
	if s.deps.Stocks == nil {
		unavailable(w, "stock service")
		return
	}
	st, err := s.deps.Stocks.Get(r.Context(), chi.URLParam(r, "symbol"))
	if err != nil {
		s.stockError(w, "get stock", err)
		return
	}
	writeData(w, http.StatusOK, st, "")
}

func (s *Server) stockDetails(w http.ResponseWriter, r *http.Request) {
	if s.deps.Details == nil {
		unavailable(w, "detail fetcher")
		return
	}
	rec, err := s.deps.Details.GetStockDetails(r.Context(), chi.URLParam(r, "symbol"))
	switch {
	case errors.Is(err, scraper.ErrInvalidSymbol):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		s.logger.Error("stock details failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to fetch stock details")
	case rec == nil:
		writeError(w, http.StatusNotFound, "Stock details not found")
	default:
		writeData(w, http.StatusOK, rec, "")
	}
}

func (s *Server) refreshHNX(w http.ResponseWriter, r *http.Request) {
	if s.deps.Refresher == nil {
		unavailable(w, "refresher")
		return
	}
	summary, err := s.deps.Refresher.Refresh(r.Context())
	if err != nil {
		s.logger.Error("HNX refresh failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, refresh.FailureMessage)
		return
	}
	writeData(w, http.StatusOK, refreshResponse{Updated: summary.Updated, Stocks: summary.Stocks}, summary.Message())
}

func (s *Server) stockError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, stock.ErrNotFound):
		writeError(w, http.StatusNotFound, "Stock not found")
	case errors.Is(err, stock.ErrQueryTooShort):
		writeError(w, http.StatusBadRequest, "Search query must be at least 2 characters")
	case errors.Is(err, stock.ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error(op+" failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, op+" failed")
	}
}
