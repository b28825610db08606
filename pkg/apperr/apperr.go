// Package apperr implements the error taxonomy from spec.md §7 as a
// small closed set of kinds, each carrying the HTTP status it surfaces
// as and a short user-safe message. Callers wrap underlying causes with
// %w so errors.Is/errors.As keep working through the stack, the same
// convention the teacher repo uses throughout pkg/core/store.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is one of the taxonomy entries in spec.md §7.
type Kind string

const (
	IngestionParseFailed Kind = "IngestionParseFailed"
	IngestionPartial     Kind = "IngestionPartial"
	LLMUnavailable       Kind = "LLMUnavailable"
	LLMTimeout           Kind = "LLMTimeout"
	LLMBadResponse       Kind = "LLMBadResponse"
	RetrievalEmpty       Kind = "RetrievalEmpty"
	WorkspaceNotFound    Kind = "WorkspaceNotFound"
	WorkspaceBusy        Kind = "WorkspaceBusy"
	NeedsInsights        Kind = "NeedsInsights"
	CacheMiss            Kind = "CacheMiss"
	DatabaseError        Kind = "DatabaseError"
)

// httpStatus maps each kind to the status code spec.md §7 assigns it.
var httpStatus = map[Kind]int{
	IngestionParseFailed: http.StatusUnprocessableEntity,
	IngestionPartial:     http.StatusOK,
	LLMUnavailable:       http.StatusServiceUnavailable,
	LLMTimeout:           http.StatusGatewayTimeout,
	LLMBadResponse:       http.StatusInternalServerError,
	RetrievalEmpty:       http.StatusOK,
	WorkspaceNotFound:    http.StatusNotFound,
	WorkspaceBusy:        http.StatusConflict,
	NeedsInsights:        http.StatusOK,
	CacheMiss:            http.StatusInternalServerError,
	DatabaseError:        http.StatusInternalServerError,
}

// Error is the concrete error type carrying a Kind plus a wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// HTTPStatus returns the status code this error's kind surfaces as.
func (e *Error) HTTPStatus() int {
	if s, ok := httpStatus[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// New constructs an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an Error of the given kind wrapping an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err is (or wraps) an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// StatusFor returns the HTTP status an arbitrary error should surface
// as: the kind's status if it is a classified Error, 500 otherwise.
func StatusFor(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.HTTPStatus()
	}
	return http.StatusInternalServerError
}
