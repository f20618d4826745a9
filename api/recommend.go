package api

import (
	"net/http"
	"strings"

	"so101-builder/pkg/apperr"
)

// ===== RECOMMENDATION HANDLERS =====

func (s *Server) handleGenerateRecommendation(w http.ResponseWriter, r *http.Request) {
	id, err := setupIDParam(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	rec, err := s.recommend.Generate(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleGetRecommendation(w http.ResponseWriter, r *http.Request) {
	id, err := setupIDParam(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	rec, err := s.recommend.Get(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleRegenerateRecommendation(w http.ResponseWriter, r *http.Request) {
	id, err := setupIDParam(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	rec, err := s.recommend.Regenerate(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type chatRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleRecommendationChat(w http.ResponseWriter, r *http.Request) {
	id, err := setupIDParam(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	var req chatRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		s.respondError(w, r, apperr.Validation("message is required"))
		return
	}

	reply, err := s.recommend.Chat(r.Context(), id, req.Message)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}
