package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"so101-builder/internal/catalog"
	"so101-builder/pkg/apperr"
)

// ===== COMPONENT HANDLERS =====

func (s *Server) handleListComponents(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListFilter(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	result, err := s.catalog.List(r.Context(), filter)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetComponent(w http.ResponseWriter, r *http.Request) {
	detail, err := s.catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.catalog.Categories(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

func (s *Server) handleDefaults(w http.ResponseWriter, r *http.Request) {
	build, err := s.catalog.Defaults(r.Context(), r.URL.Query().Get("arm_type"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, build)
}

// parseListFilter reads catalog query parameters. Range and paging
// validation lives in the catalog service.
func parseListFilter(r *http.Request) (catalog.ListFilter, error) {
	q := r.URL.Query()
	filter := catalog.ListFilter{
		CategorySlug: q.Get("category"),
		ArmType:      q.Get("arm_type"),
		Search:       q.Get("q"),
	}

	if v := q.Get("in_stock"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return filter, apperr.Validation("in_stock must be a boolean, got %q", v)
		}
		filter.InStockOnly = b
	}
	if v := q.Get("min_price"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return filter, apperr.Validation("min_price must be a number, got %q", v)
		}
		filter.MinPrice = &d
	}
	if v := q.Get("max_price"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return filter, apperr.Validation("max_price must be a number, got %q", v)
		}
		filter.MaxPrice = &d
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return filter, apperr.Validation("limit must be an integer, got %q", v)
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return filter, apperr.Validation("offset must be an integer, got %q", v)
		}
		filter.Offset = n
	}

	return filter, nil
}
