package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	"github.com/and161185/kobo-sync/internal/errs"
)

const kindInternal = "internal"

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind string) int {
	switch kind {
	case "validation":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	case "unauthorized":
		return http.StatusUnauthorized
	case "rate_limited":
		return http.StatusTooManyRequests
	case "conflict":
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// fail writes the JSON error body. Server-side failures are logged and
// reported to Sentry when a hub is attached to the request.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	kind := errs.Kind(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		if hub := sentry.GetHubFromContext(r.Context()); hub != nil {
			hub.CaptureException(err)
		}
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: kind})
}

// decode reads a JSON body into dst. Malformed bodies are validation errors.
func decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("body exceeds %d bytes: %w", maxErr.Limit, errs.ErrInvalidArgument)
		}
		return fmt.Errorf("malformed JSON body: %v: %w", err, errs.ErrInvalidArgument)
	}
	return nil
}
