package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"so101-builder/pkg/apperr"
)

// problem is an RFC 7807 style error document.
type problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance"`
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindGeneration:
		return http.StatusUnprocessableEntity
	case apperr.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func titleFor(kind apperr.Kind) string {
	switch kind {
	case apperr.KindNotFound:
		return "Not Found"
	case apperr.KindValidation:
		return "Invalid Request"
	case apperr.KindConflict:
		return "Conflict"
	case apperr.KindGeneration:
		return "Generation Failed"
	case apperr.KindUpstream:
		return "Upstream Unavailable"
	default:
		return "Internal Error"
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, r *http.Request, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(problem{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
	})
}

// writeError maps an error to its problem document. Internal causes are
// never echoed to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)

	detail := apperr.MessageOf(err)
	if kind == apperr.KindInternal {
		detail = "internal error"
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(problem{
		Type:     "/errors/" + kind.String(),
		Title:    titleFor(kind),
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
	})
}

// respondError writes the problem document and logs causes the client
// does not get to see.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	switch kind {
	case apperr.KindInternal:
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	case apperr.KindUpstream:
		s.log.Warn().Err(err).Str("path", r.URL.Path).Msg("upstream failure")
	}
	writeError(w, r, err)
}

// decodeJSON reads a bounded JSON body into v.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apperr.Validation("request body exceeds %d bytes", maxErr.Limit)
		}
		return apperr.Validation("invalid request body: %v", err)
	}
	return nil
}

func setupIDParam(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "setupID")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid setup id %q", raw)
	}
	return id, nil
}

func componentIDParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, apperr.Validation("invalid component id %q", raw)
	}
	return id, nil
}
