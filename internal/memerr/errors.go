// Package memerr defines the structured error taxonomy surfaced by every
// public operation of the memory store.
package memerr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can match on it without parsing
// message text.
type Kind string

const (
	KindNotFound          Kind = "NotFound"
	KindAlreadyExists     Kind = "AlreadyExists"
	KindValidation        Kind = "Validation"
	KindEmptySearchQuery  Kind = "EmptySearchQuery"
	KindMLNotConfigured   Kind = "MLNotConfigured"
	KindInvalidEmbedding  Kind = "InvalidEmbeddingModel"
	KindFeatureNotEnabled Kind = "FeatureNotEnabled"
	KindStorage           Kind = "Storage"
	KindQuery             Kind = "Query"
	KindConnection        Kind = "Connection"
	KindTimeout           Kind = "Timeout"
	KindTransactionFailed Kind = "TransactionFailed"
	KindTypeInUse         Kind = "TypeInUse"
	KindTypeNotFound      Kind = "TypeNotFound"
	KindTypeAlreadyExists Kind = "TypeAlreadyExists"
	KindInvalidTypeName   Kind = "InvalidTypeName"
	KindInvalidSchema     Kind = "InvalidSchema"
)

// Error is the concrete structured error type. Callers match on Kind via
// errors.As, not on Message text.
type Error struct {
	Kind    Kind
	Message string
	ID      string
	Field   string
	Orphans []string
	Wrapped error
}

func (e *Error) Error() string {
	switch {
	case e.ID != "" && e.Field != "":
		return fmt.Sprintf("%s: %s (id=%s field=%s)", e.Kind, e.Message, e.ID, e.Field)
	case e.ID != "":
		return fmt.Sprintf("%s: %s (id=%s)", e.Kind, e.Message, e.ID)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.Wrapped }

// Is allows errors.Is(err, memerr.NotFound("", "")) style kind comparisons
// by comparing only the Kind field.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func NotFound(kind, id string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s not found", kind), ID: id}
}

func AlreadyExists(kind, id string) *Error {
	return &Error{Kind: KindAlreadyExists, Message: fmt.Sprintf("%s already exists", kind), ID: id}
}

func Validation(field, msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg, Field: field}
}

func EmptySearchQuery() *Error {
	return &Error{Kind: KindEmptySearchQuery, Message: "search query must not be empty"}
}

func MLNotConfigured() *Error {
	return &Error{Kind: KindMLNotConfigured, Message: "no embedder configured"}
}

func InvalidEmbeddingModel(msg string) *Error {
	return &Error{Kind: KindInvalidEmbedding, Message: msg}
}

func FeatureNotEnabled(feature string) *Error {
	return &Error{Kind: KindFeatureNotEnabled, Message: fmt.Sprintf("%s is not enabled", feature)}
}

func Storage(err error) *Error {
	return &Error{Kind: KindStorage, Message: "storage failure", Wrapped: err}
}

func Query(err error) *Error {
	return &Error{Kind: KindQuery, Message: "query failure", Wrapped: err}
}

func Connection(err error) *Error {
	return &Error{Kind: KindConnection, Message: "connection failure", Wrapped: err}
}

func Timeout() *Error {
	return &Error{Kind: KindTimeout, Message: "operation timed out"}
}

func TransactionFailed(orphans []string) *Error {
	return &Error{Kind: KindTransactionFailed, Message: "batch rolled back with orphaned records", Orphans: orphans}
}

func TypeInUse(name string) *Error {
	return &Error{Kind: KindTypeInUse, Message: "relationship type still in use", ID: name}
}

func TypeNotFound(name string) *Error {
	return &Error{Kind: KindTypeNotFound, Message: "relationship type not found", ID: name}
}

func TypeAlreadyExists(name string) *Error {
	return &Error{Kind: KindTypeAlreadyExists, Message: "relationship type already exists", ID: name}
}

func InvalidTypeName(name string) *Error {
	return &Error{Kind: KindInvalidTypeName, Message: "invalid relationship type name", ID: name}
}

func InvalidSchema(msg string) *Error {
	return &Error{Kind: KindInvalidSchema, Message: msg}
}

// sentinels for errors.Is comparisons that only need the Kind.
var (
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrAlreadyExists     = &Error{Kind: KindAlreadyExists}
	ErrValidation        = &Error{Kind: KindValidation}
	ErrEmptySearchQuery  = &Error{Kind: KindEmptySearchQuery}
	ErrMLNotConfigured   = &Error{Kind: KindMLNotConfigured}
	ErrInvalidEmbedding  = &Error{Kind: KindInvalidEmbedding}
	ErrFeatureNotEnabled = &Error{Kind: KindFeatureNotEnabled}
	ErrStorage           = &Error{Kind: KindStorage}
	ErrQuery             = &Error{Kind: KindQuery}
	ErrConnection        = &Error{Kind: KindConnection}
	ErrTimeout           = &Error{Kind: KindTimeout}
	ErrTransactionFailed = &Error{Kind: KindTransactionFailed}
	ErrTypeInUse         = &Error{Kind: KindTypeInUse}
	ErrTypeNotFound      = &Error{Kind: KindTypeNotFound}
	ErrTypeAlreadyExists = &Error{Kind: KindTypeAlreadyExists}
	ErrInvalidTypeName   = &Error{Kind: KindInvalidTypeName}
	ErrInvalidSchema     = &Error{Kind: KindInvalidSchema}
)

// Of returns the Kind of err if it is (or wraps) a *Error, and ok=true.
func Of(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
