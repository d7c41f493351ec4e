// Package apperr defines the closed set of failure kinds a flowchart generation can end in,
// so callers can branch on the cause instead of parsing messages.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure.
type Kind string

const (
	KindValidation          Kind = "validation"
	KindCompletionTransient Kind = "completion_transient"
	KindCompletionPermanent Kind = "completion_permanent"
	KindRenderEngineMissing Kind = "render_engine_missing"
	KindRenderInvalidInput  Kind = "render_invalid_input"
	KindIO                  Kind = "io_failure"

	// KindUnknown is returned by KindOf for errors that did not come from this package.
	KindUnknown Kind = "unknown"
)

// Kinds lists every kind in a stable order.
var Kinds = []Kind{
	KindValidation,
	KindCompletionTransient,
	KindCompletionPermanent,
	KindRenderEngineMissing,
	KindRenderInvalidInput,
	KindIO,
}

// Retryable reports whether repeating the same request may succeed.
func (k Kind) Retryable() bool {
	return k == KindCompletionTransient
}

// HTTPStatus maps a kind to the status code the API answers with.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindCompletionTransient:
		return http.StatusServiceUnavailable
	case KindCompletionPermanent:
		return http.StatusBadGateway
	case KindRenderEngineMissing:
		return http.StatusServiceUnavailable
	case KindRenderInvalidInput:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified failure. Diagnostic carries output from an external tool
// (for example the layout engine's stderr) and is reported verbatim.
type Error struct {
	Kind       Kind
	Op         string
	Message    string
	Diagnostic string
	Cause      error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Diagnostic != "" {
		msg += ": " + e.Diagnostic
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(" (caused by: %v)", e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDiagnostic attaches verbatim tool output.
func (e *Error) WithDiagnostic(d string) *Error {
	e.Diagnostic = d
	return e
}

// New creates an error of the given kind.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap classifies cause. A nil cause yields nil.
func Wrap(kind Kind, op string, cause error, message string) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Message: message, Cause: cause}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
