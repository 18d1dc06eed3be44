package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/hnx-restricted-tracker/internal/financial"
)

type financialResponse struct {
	Symbol        string             `json:"symbol"`
	Reports       []financial.Report `json:"reports"`
	FailedSources []string           `json:"failed_sources,omitempty"`
}

func (s *Server) financialReports(w http.ResponseWriter, r *http.Request) {
	if s.deps.Financial == nil {
		unavailable(w, "financial reports")
		return
	}
	res, err := s.deps.Financial.Fetch(r.Context(), chi.URLParam(r, "symbol"))
	if errors.Is(err, financial.ErrSymbolRequired) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("financial reports failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to fetch financial reports")
		return
	}
	out := financialResponse{Symbol: res.Symbol, Reports: res.Reports}
	for _, f := range res.Failures {
		out.FailedSources = append(out.FailedSources, f.Source)
	}
	writeData(w, http.StatusOK, out, "")
}
