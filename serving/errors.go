package serving

import (
	"errors"
	"fmt"

	"mlserve/ml"
)

var (
	// ErrModelNotLoaded means no model version has been published yet.
	// Retriable by the caller once a load succeeds.
	ErrModelNotLoaded = errors.New("model not loaded")

	// ErrReloadInProgress means a reload was requested while another one
	// was still running. Concurrent reloads fail fast instead of queuing.
	ErrReloadInProgress = errors.New("model reload already in progress")
)

// ValidationError reports a malformed prediction request. It is always
// surfaced as a client error, never converted into an internal one.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func validationErrorf(format string, args ...interface{}) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// InternalError wraps an unexpected failure inside the classifier
// invocation. The wrapped cause is logged, not returned to the caller.
type InternalError struct {
	Err error
}

func (e *InternalError) Error() string { return "internal prediction error" }

func (e *InternalError) Unwrap() error { return e.Err }

func isValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func isNotLoaded(err error) bool { return errors.Is(err, ErrModelNotLoaded) }

func isReloadInProgress(err error) bool { return errors.Is(err, ErrReloadInProgress) }

func isLoadError(err error) bool {
	var le *ml.LoadError
	return errors.As(err, &le)
}
