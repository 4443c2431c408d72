package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/csg33k/catering-docgen/internal/domain"
	"github.com/csg33k/catering-docgen/internal/format"
	"github.com/csg33k/catering-docgen/internal/generation"
	"github.com/csg33k/catering-docgen/internal/logger"
	"github.com/csg33k/catering-docgen/internal/ports"
)

const maxBody = 1 << 20

var errBadRequest = errors.New("bad request")

func badRequest(msg string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(msg, args...))
}

// ValidationError lists rejected filled_data keys with a reason each.
type ValidationError struct {
	Fields map[string]string
}

func unprocessable(key, reason string) *ValidationError {
	return &ValidationError{Fields: map[string]string{key: reason}}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return "invalid data: " + strings.Join(parts, "; ")
}

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func statusFor(err error) int {
	var verr *ValidationError
	switch {
	case errors.Is(err, ports.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.As(err, &verr), errors.Is(err, format.ErrInvalidCPF):
		return http.StatusUnprocessableEntity
	case errors.Is(err, generation.ErrTemplateUnavailable),
		errors.Is(err, generation.ErrSerialization),
		errors.Is(err, generation.ErrNotPersisted):
		return http.StatusBadGateway
	case errors.Is(err, generation.ErrStopped):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// fail maps err to a status code and writes it as JSON.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	log := logger.From(h.log, r.Context())
	if code >= 500 {
		log.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "status", code, "err", err)
	} else {
		log.DebugContext(r.Context(), "request rejected", "method", r.Method, "path", r.URL.Path, "status", code, "err", err)
	}
	body := errorResponse{Error: err.Error()}
	var verr *ValidationError
	if errors.As(err, &verr) {
		body.Fields = verr.Fields
	}
	writeJSON(w, code, body)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest("decode body: %v", err)
	}
	return nil
}

// validateFilledData applies the data-entry rules: CPFs must pass the
// check digits and amounts must parse and be non-negative.
func validateFilledData(data domain.FilledData) error {
	bad := map[string]string{}
	for _, k := range data.Keys() {
		v, _ := data.Get(k)
		switch {
		case strings.Contains(k, "cpf"):
			if err := format.ValidateCPF(v); err != nil {
				bad[k] = "CPF inválido"
			}
		case strings.HasPrefix(k, "valor_") && k != "valor_extenso":
			cents, err := format.ParseCents(v)
			if err != nil {
				bad[k] = "valor inválido"
			} else if cents < 0 {
				bad[k] = "valor negativo"
			}
		}
	}
	if len(bad) > 0 {
		return &ValidationError{Fields: bad}
	}
	return nil
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

func isJSON(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}
