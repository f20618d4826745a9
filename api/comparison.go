package api

import (
	"net/http"
)

// ===== COMPARISON HANDLER =====

type comparisonRequest struct {
	ComponentIDs []int64 `json:"component_ids"`
}

func (s *Server) handleComparison(w http.ResponseWriter, r *http.Request) {
	var req comparisonRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	result, err := s.comparison.Compare(r.Context(), req.ComponentIDs)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
