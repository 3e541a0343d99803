package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/kanbanhq/kanban/internal/service"
)

// envelope is the uniform response shape.
type envelope struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *apiError `json:"error,omitempty"`
	Meta    meta      `json:"meta"`
}

type apiError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type meta struct {
	Timestamp  time.Time   `json:"timestamp"`
	RequestID  string      `json:"request_id,omitempty"`
	Pagination *pagination `json:"pagination,omitempty"`
}

type pagination struct {
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	Total   int  `json:"total"`
	HasNext bool `json:"hasNext"`
	HasPrev bool `json:"hasPrev"`
}

func newMeta(r *http.Request) meta {
	return meta{
		Timestamp: time.Now().UTC(),
		RequestID: middleware.GetReqID(r.Context()),
	}
}

func respond(w http.ResponseWriter, r *http.Request, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data, Meta: newMeta(r)})
}

func respondPage(w http.ResponseWriter, r *http.Request, data any, limit, offset, total int) {
	m := newMeta(r)
	m.Pagination = &pagination{
		Page:    offset/limit + 1,
		Limit:   limit,
		Total:   total,
		HasNext: offset+limit < total,
		HasPrev: offset > 0,
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data, Meta: m})
}

func respondErr(w http.ResponseWriter, r *http.Request, err error) {
	var serr *service.Error
	if !errors.As(err, &serr) {
		serr = service.Internal(err)
	}
	writeJSON(w, serr.HTTPStatus(), envelope{
		Success: false,
		Error:   &apiError{Code: serr.Code, Message: serr.Message, Details: serr.Details},
		Meta:    newMeta(r),
	})
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// decode parses a JSON request body, rejecting unknown fields.
func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return service.Validationf("invalid request body: %v", err)
	}
	return nil
}
