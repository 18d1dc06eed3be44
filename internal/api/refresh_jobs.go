package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/hnx-restricted-tracker/internal/refresh"
)

func (s *Server) submitRefreshJob(w http.ResponseWriter, r *http.Request) {
	if s.deps.Jobs == nil {
		unavailable(w, "refresh queue")
		return
	}
	run, err := s.deps.Jobs.Submit(r.Context(), refresh.TriggerAPI)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusServiceUnavailable
		}
		s.logger.Error("submit refresh job failed", zap.Error(err))
		writeError(w, status, "failed to queue refresh")
		return
	}
	writeData(w, http.StatusAccepted, map[string]string{"job_id": run.ID}, "Refresh queued")
}

func (s *Server) getRefreshJob(w http.ResponseWriter, r *http.Request) {
	if s.deps.Jobs == nil {
		unavailable(w, "refresh queue")
		return
	}
	run, err := s.deps.Jobs.Get(r.Context(), chi.URLParam(r, "job_id"))
	if errors.Is(err, refresh.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		s.logger.Error("get refresh job failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	writeData(w, http.StatusOK, run, "")
}
