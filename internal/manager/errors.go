package manager

import (
	"errors"
	"fmt"
	"net/http"
)

// noModelLoadedError signals that no model is ready (503).
type noModelLoadedError struct{ state State }

func (e noModelLoadedError) Error() string {
	if e.state == StateLoading {
		return "no model loaded: a model is loading"
	}
	return "no model loaded"
}

func (e noModelLoadedError) StatusCode() int { return http.StatusServiceUnavailable }

// ErrNoModelLoaded constructs a noModelLoadedError.
func ErrNoModelLoaded() error { return noModelLoadedError{state: StateUnloaded} }

// IsNoModelLoaded reports whether err means no model is ready.
func IsNoModelLoaded(err error) bool {
	var e noModelLoadedError
	return errors.As(err, &e)
}

// modelLoadFailureError wraps the loader's error for a failed load (500).
type modelLoadFailureError struct {
	name string
	err  error
}

func (e modelLoadFailureError) Error() string {
	return fmt.Sprintf("load model %q: %v", e.name, e.err)
}

func (e modelLoadFailureError) Unwrap() error { return e.err }

func (e modelLoadFailureError) StatusCode() int { return http.StatusInternalServerError }

// IsModelLoadFailure reports whether err is a failed load.
func IsModelLoadFailure(err error) bool {
	var e modelLoadFailureError
	return errors.As(err, &e)
}

// badRequestError signals an invalid model action (400).
type badRequestError struct{ msg string }

func (e badRequestError) Error() string { return e.msg }

func (e badRequestError) StatusCode() int { return http.StatusBadRequest }

// ErrBadRequest constructs a badRequestError.
func ErrBadRequest(format string, args ...any) error {
	return badRequestError{msg: fmt.Sprintf(format, args...)}
}

// IsBadRequest reports whether err is an invalid model action.
func IsBadRequest(err error) bool {
	var e badRequestError
	return errors.As(err, &e)
}
