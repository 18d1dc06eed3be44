package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/hnx-restricted-tracker/internal/watchlist"
)

type addWatchlistRequest struct {
	StockSymbol string `json:"stock_symbol"`
	Notes       string `json:"notes"`
}

type updateWatchlistRequest struct {
	Notes string `json:"notes"`
}

func (s *Server) listWatchlist(w http.ResponseWriter, r *http.Request) {
	if s.deps.Watchlist == nil {
		unavailable(w, "watchlist")
		return
	}
	items, err := s.deps.Watchlist.List(r.Context(), watchlist.DefaultUserID)
	if err != nil {
		s.logger.Error("list watchlist failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load watchlist")
		return
	}
	writeData(w, http.StatusOK, items, "")
}

func (s *Server) addToWatchlist(w http.ResponseWriter, r *http.Request) {
	if s.deps.Watchlist == nil {
		unavailable(w, "watchlist")
		return
	}
	var req addWatchlistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	item, err := s.deps.Watchlist.Add(r.Context(), watchlist.DefaultUserID, req.StockSymbol, req.Notes)
	switch {
	case errors.Is(err, watchlist.ErrSymbolRequired):
		writeError(w, http.StatusBadRequest, "Stock symbol is required")
	case errors.Is(err, watchlist.ErrAlreadyWatched):
		writeError(w, http.StatusConflict, "Stock is already in watchlist")
	case err != nil:
		s.logger.Error("add to watchlist failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to add stock to watchlist")
	default:
		writeData(w, http.StatusCreated, item, "Stock added to watchlist")
	}
}

func (s *Server) updateWatchlistItem(w http.ResponseWriter, r *http.Request) {
	if s.deps.Watchlist == nil {
		unavailable(w, "watchlist")
		return
	}
	var req updateWatchlistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	item, err := s.deps.Watchlist.Update(r.Context(), chi.URLParam(r, "id"), req.Notes)
	switch {
	case errors.Is(err, watchlist.ErrNotFound):
		writeError(w, http.StatusNotFound, "Watchlist item not found")
	case err != nil:
		s.logger.Error("update watchlist item failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to update watchlist item")
	default:
		writeData(w, http.StatusOK, item, "Watchlist item updated")
	}
}

func (s *Server) removeFromWatchlist(w http.ResponseWriter, r *http.Request) {
	if s.deps.Watchlist == nil {
		unavailable(w, "watchlist")
		return
	}
	err := s.deps.Watchlist.Remove(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, watchlist.ErrNotFound):
		writeError(w, http.StatusNotFound, "Watchlist item not found")
	case err != nil:
		s.logger.Error("remove from watchlist failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to remove stock from watchlist")
	default:
		writeData(w, http.StatusOK, map[string]bool{"removed": true}, "Stock removed from watchlist")
	}
}
