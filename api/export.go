package api

import (
	"fmt"
	"net/http"

	"so101-builder/internal/export"
)

// ===== EXPORT HANDLERS =====

func (s *Server) handleExportJSON(w http.ResponseWriter, r *http.Request) {
	id, err := setupIDParam(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	bundle, err := s.export.JSON(r.Context(), id, r.URL.Query().Get("version"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}

func (s *Server) handleExportShoppingList(w http.ResponseWriter, r *http.Request) {
	id, err := setupIDParam(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	list, err := s.export.ShoppingListFor(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleExportPDF(w http.ResponseWriter, r *http.Request) {
	id, err := setupIDParam(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	data, err := s.export.PDF(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(id)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) handleExportArchive(w http.ResponseWriter, r *http.Request) {
	id, err := setupIDParam(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	ref, err := s.export.Archive(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ref)
}
