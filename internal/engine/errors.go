package engine

import (
	"errors"
	"fmt"
)

// contextOverflowError reports a prompt longer than the model's context window.
type contextOverflowError struct {
	tokens int
	limit  int
}

func (e contextOverflowError) Error() string {
	return fmt.Sprintf("prompt has %d tokens, model context is %d", e.tokens, e.limit)
}

// ErrContextOverflow constructs a context overflow error.
func ErrContextOverflow(tokens, limit int) error {
	return contextOverflowError{tokens: tokens, limit: limit}
}

// IsContextOverflow reports whether err is a context overflow.
func IsContextOverflow(err error) bool {
	var e contextOverflowError
	return errors.As(err, &e)
}

// unsupportedError reports a capability the backend does not have.
type unsupportedError struct{ what string }

func (e unsupportedError) Error() string { return "not supported by this backend: " + e.what }

// ErrUnsupported constructs an unsupported-capability error.
func ErrUnsupported(what string) error { return unsupportedError{what: what} }

// IsUnsupported reports whether err is an unsupported-capability error.
func IsUnsupported(err error) bool {
	var e unsupportedError
	return errors.As(err, &e)
}

// invalidRequestError reports a request that cannot be served as given.
type invalidRequestError struct{ msg string }

func (e invalidRequestError) Error() string { return e.msg }

// ErrInvalidRequest constructs an invalid-request error.
func ErrInvalidRequest(format string, args ...any) error {
	return invalidRequestError{msg: fmt.Sprintf(format, args...)}
}

// IsInvalidRequest reports whether err is an invalid-request error.
func IsInvalidRequest(err error) bool {
	var e invalidRequestError
	return errors.As(err, &e)
}
