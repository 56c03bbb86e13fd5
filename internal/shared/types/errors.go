package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure a clone request can end with
type ErrorKind string

const (
	KindInvalidURL          ErrorKind = "InvalidUrl"
	KindRenderTimeout       ErrorKind = "RenderTimeout"
	KindRenderUnavailable   ErrorKind = "RenderUnavailable"
	KindProviderUnavailable ErrorKind = "ProviderUnavailable"
	KindProviderRejected    ErrorKind = "ProviderRejected"
	KindMalformedOutput     ErrorKind = "MalformedOutput"
	KindInternal            ErrorKind = "InternalError"
)

// Kinds lists the taxonomy in a stable order
var Kinds = []ErrorKind{
	KindInvalidURL,
	KindRenderTimeout,
	KindRenderUnavailable,
	KindProviderUnavailable,
	KindProviderRejected,
	KindMalformedOutput,
	KindInternal,
}

// String returns the wire name of the kind
func (k ErrorKind) String() string {
	return string(k)
}

// Error is a classified failure. Components return it so the orchestrator can
// report a kind without inspecting transport details.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a classified error
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WrapError creates a classified error around a cause
func WrapError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Errorf creates a classified error with a formatted message
func Errorf(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind from an error chain. Unclassified errors are
// internal defects.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the user-readable message of a classified error
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "unexpected internal error"
}
