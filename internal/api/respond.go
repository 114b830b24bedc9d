package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"comer/internal/domain"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

const maxJSONBody = 1 << 20

// errorResponse is the body of every failed request.
type errorResponse struct {
	Error   string            `json:"error"`
	Code    domain.Code       `json:"code"`
	Details map[string]string `json:"details,omitempty"`
}

// statusOverride remaps domain codes to route specific statuses.
type statusOverride map[domain.Code]int

var (
	// reserve reports every precondition failure as 400.
	reserveStatus = statusOverride{
		domain.CodeNotFound:      http.StatusBadRequest,
		domain.CodeConflict:      http.StatusBadRequest,
		domain.CodeExhausted:     http.StatusBadRequest,
		domain.CodeForbidden:     http.StatusBadRequest,
		domain.CodeInvalidWindow: http.StatusBadRequest,
		domain.CodeValidation:    http.StatusBadRequest,
		domain.CodeRateLimited:   http.StatusBadRequest,
	}
	createStatus = statusOverride{domain.CodeInvalidWindow: http.StatusMethodNotAllowed}
	ownerStatus  = statusOverride{domain.CodeForbidden: http.StatusUnauthorized}
)

func (o statusOverride) status(code domain.Code) int {
	if st, ok := o[code]; ok {
		return st
	}
	return code.HTTPStatus()
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

// fail writes err as a JSON error. Internal errors are logged and hidden.
func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error, override statusOverride) {
	code := domain.CodeOf(err)
	if code == domain.CodeInternal {
		s.logger.Error().Err(err).
			Str("request_id", chimiddleware.GetReqID(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
	}
	writeJSON(w, override.status(code), errorResponse{
		Error:   domain.PublicMessage(err),
		Code:    code,
		Details: domain.DetailsOf(err),
	})
}

// decodeJSON reads a single JSON document into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.Validation("request body is required")
		}
		return domain.Validation("invalid JSON body")
	}
	return nil
}
