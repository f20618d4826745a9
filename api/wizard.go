package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"so101-builder/pkg/apperr"
)

// ===== WIZARD HANDLERS =====

func (s *Server) handleWizardStart(w http.ResponseWriter, r *http.Request) {
	setup, err := s.wizard.Start(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, setup)
}

func (s *Server) handleWizardSteps(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.wizard.Steps())
}

func (s *Server) handleWizardGet(w http.ResponseWriter, r *http.Request) {
	id, err := setupIDParam(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	setup, err := s.wizard.Get(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, setup)
}

func (s *Server) handleWizardSubmit(w http.ResponseWriter, r *http.Request) {
	id, err := setupIDParam(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	step, err := strconv.Atoi(chi.URLParam(r, "n"))
	if err != nil {
		s.respondError(w, r, apperr.Validation("step must be an integer, got %q", chi.URLParam(r, "n")))
		return
	}

	// The step schema is validated by the wizard, so the body passes
	// through raw.
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.respondError(w, r, apperr.Validation("reading request body: %v", err))
		return
	}

	setup, err := s.wizard.SubmitStep(r.Context(), id, step, body)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, setup)
}

func (s *Server) handleWizardReset(w http.ResponseWriter, r *http.Request) {
	id, err := setupIDParam(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	setup, err := s.wizard.Reset(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, setup)
}

func (s *Server) handleWizardDelete(w http.ResponseWriter, r *http.Request) {
	id, err := setupIDParam(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	if err := s.wizard.Delete(r.Context(), id); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
