package pgmcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickchristie/pgguard-mcp/internal/sqlguard"
)

// ErrKind classifies engine errors.
type ErrKind int

const (
	ErrKindUnknown ErrKind = iota
	ErrKindFeatureDisabled
	ErrKindInvalidInput
	ErrKindSafetyDenied
	ErrKindDataAccess
	ErrKindTimeout
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindFeatureDisabled:
		return "feature_disabled"
	case ErrKindInvalidInput:
		return "invalid_input"
	case ErrKindSafetyDenied:
		return "safety_denied"
	case ErrKindDataAccess:
		return "data_access"
	case ErrKindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error is the error type returned by every engine operation. Message is
// what the MCP client sees; Code carries the Postgres SQLSTATE when the
// failure came from the database.
type Error struct {
	Kind    ErrKind
	Message string
	Code    string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func newError(kind ErrKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func errFeatureDisabled(tool string) *Error {
	return newError(ErrKindFeatureDisabled, "feature disabled: %s is not enabled", tool)
}

// KindOf returns the kind of err, or ErrKindUnknown if err is not an *Error.
func KindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}

func IsFeatureDisabled(err error) bool { return KindOf(err) == ErrKindFeatureDisabled }
func IsInvalidInput(err error) bool    { return KindOf(err) == ErrKindInvalidInput }
func IsSafetyDenied(err error) bool    { return KindOf(err) == ErrKindSafetyDenied }
func IsDataAccess(err error) bool      { return KindOf(err) == ErrKindDataAccess }
func IsTimeout(err error) bool         { return KindOf(err) == ErrKindTimeout }

// mapError converts a raw error into an *Error. Errors that are already
// typed pass through untouched. The Postgres message is kept verbatim.
func mapError(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}

	var denial *sqlguard.DenialError
	if errors.As(err, &denial) {
		return &Error{Kind: ErrKindSafetyDenied, Message: denial.Error()}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: ErrKindTimeout, Message: "statement timed out", Cause: err}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		kind := ErrKindDataAccess
		// 57014 query_canceled is what Postgres reports when our context deadline fires mid-query.
		if pgErr.Code == "57014" {
			kind = ErrKindTimeout
		}
		return &Error{Kind: kind, Message: pgErr.Error(), Code: pgErr.Code}
	}

	return &Error{Kind: ErrKindDataAccess, Message: err.Error()}
}
