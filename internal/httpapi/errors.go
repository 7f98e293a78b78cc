package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"modelapi/internal/engine"
	"modelapi/internal/evaluator"
	"modelapi/internal/manager"
	"modelapi/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// tooBusyError is returned when the admission gate stays full for too long.
type tooBusyError struct{ wait time.Duration }

func (e tooBusyError) Error() string {
	return fmt.Sprintf("server busy: no generation slot freed within %s", e.wait)
}

func (e tooBusyError) StatusCode() int { return http.StatusTooManyRequests }

// IsTooBusy reports whether err is an admission rejection.
func IsTooBusy(err error) bool {
	var e tooBusyError
	return errors.As(err, &e)
}

// Error types in the response body.
const (
	errTypeBadRequest    = "bad_request"
	errTypeNotFound      = "not_found"
	errTypeNoModel       = "no_model_loaded"
	errTypeTooBusy       = "too_busy"
	errTypeLoadFailure   = "model_load_failure"
	errTypeScoringFailed = "scoring_failed"
	errTypeInternal      = "internal"
)

// classify maps a service error to its HTTP status and error type.
func classify(err error) (int, string) {
	switch {
	case engine.IsInvalidRequest(err), manager.IsBadRequest(err):
		return http.StatusBadRequest, errTypeBadRequest
	case manager.IsNoModelLoaded(err):
		return http.StatusServiceUnavailable, errTypeNoModel
	case IsTooBusy(err):
		return http.StatusTooManyRequests, errTypeTooBusy
	case manager.IsModelLoadFailure(err):
		return http.StatusInternalServerError, errTypeLoadFailure
	case evaluator.IsScoringFailed(err):
		return http.StatusInternalServerError, errTypeScoringFailed
	}
	var he HTTPError
	if errors.As(err, &he) {
		return he.StatusCode(), errTypeInternal
	}
	return http.StatusInternalServerError, errTypeInternal
}

// writeJSON writes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, typ, msg string) {
	writeJSON(w, status, types.ErrorResponse{Error: types.ErrorBody{Message: msg, Type: typ}, Code: status})
}

// writeServiceError maps err and writes it.
func writeServiceError(w http.ResponseWriter, err error) int {
	status, typ := classify(err)
	writeJSONError(w, status, typ, err.Error())
	return status
}
