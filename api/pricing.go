package api

import (
	"net/http"
	"time"

	"so101-builder/pkg/apperr"
)

// ===== PRICING HANDLERS =====

const defaultHistoryWindow = 30 * 24 * time.Hour

func (s *Server) handleSetupPricing(w http.ResponseWriter, r *http.Request) {
	id, err := setupIDParam(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	result, err := s.pricing.ForSetup(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleComponentPricing(w http.ResponseWriter, r *http.Request) {
	id, err := componentIDParam(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	result, err := s.pricing.ForComponent(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handlePriceHistory(w http.ResponseWriter, r *http.Request) {
	id, err := componentIDParam(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	since := time.Now().Add(-defaultHistoryWindow)
	if v := r.URL.Query().Get("since"); v != "" {
		since, err = time.Parse(time.RFC3339, v)
		if err != nil {
			s.respondError(w, r, apperr.Validation("since must be RFC 3339, got %q", v))
			return
		}
	}

	observations, err := s.pricing.History(r.Context(), id, since)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, observations)
}

type refreshRequest struct {
	ComponentIDs []int64 `json:"component_ids"`
}

func (s *Server) handleRefreshPrices(w http.ResponseWriter, r *http.Request) {
	// An absent body means refresh everything.
	var req refreshRequest
	if r.ContentLength != 0 {
		if err := s.decodeJSON(w, r, &req); err != nil {
			s.respondError(w, r, err)
			return
		}
	}

	report, err := s.pricing.Refresh(r.Context(), req.ComponentIDs)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
