package pgmcp

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/rickchristie/pgguard-mcp/internal/sqlguard"
)

func TestErrKind_String(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "feature_disabled", ErrKindFeatureDisabled.String())
	assert.Equal(t, "invalid_input", ErrKindInvalidInput.String())
	assert.Equal(t, "safety_denied", ErrKindSafetyDenied.String())
	assert.Equal(t, "data_access", ErrKindDataAccess.String())
	assert.Equal(t, "timeout", ErrKindTimeout.String())
	assert.Equal(t, "unknown", ErrKindUnknown.String())
}

func TestError_MessageAndCause(t *testing.T) {
	t.Parallel()
	cause := errors.New("dial tcp: refused")
	err := &Error{Kind: ErrKindDataAccess, Message: "failed to connect", Cause: cause}
	assert.Equal(t, "failed to connect: dial tcp: refused", err.Error())
	assert.ErrorIs(t, err, cause)

	wrapped := fmt.Errorf("outer: %w", err)
	assert.True(t, IsDataAccess(wrapped))
	assert.False(t, IsTimeout(wrapped))
	assert.Equal(t, ErrKindUnknown, KindOf(cause))
}

func TestMapError_PgErrorKeepsEngineMessage(t *testing.T) {
	t.Parallel()
	pgErr := &pgconn.PgError{Severity: "ERROR", Code: "42P01", Message: `relation "nope" does not exist`}
	e := mapError(fmt.Errorf("query: %w", pgErr))
	assert.Equal(t, ErrKindDataAccess, e.Kind)
	assert.Equal(t, "42P01", e.Code)
	assert.Contains(t, e.Error(), `relation "nope" does not exist`)
}

func TestMapError_QueryCanceledIsTimeout(t *testing.T) {
	t.Parallel()
	e := mapError(&pgconn.PgError{Code: "57014", Message: "canceling statement due to user request"})
	assert.Equal(t, ErrKindTimeout, e.Kind)
}

func TestMapError_DeadlineExceeded(t *testing.T) {
	t.Parallel()
	e := mapError(fmt.Errorf("acquire: %w", context.DeadlineExceeded))
	assert.Equal(t, ErrKindTimeout, e.Kind)
	assert.ErrorIs(t, e, context.DeadlineExceeded)
}

func TestMapError_Denial(t *testing.T) {
	t.Parallel()
	e := mapError(&sqlguard.DenialError{Keyword: "DELETE"})
	assert.Equal(t, ErrKindSafetyDenied, e.Kind)
	assert.Contains(t, e.Message, "DELETE")
}

func TestMapError_TypedPassesThrough(t *testing.T) {
	t.Parallel()
	in := errFeatureDisabled(FeatureExecuteSQL)
	assert.Same(t, in, mapError(in))
	assert.Nil(t, mapError(nil))
}

func TestMapError_PlainError(t *testing.T) {
	t.Parallel()
	e := mapError(errors.New("something broke"))
	assert.Equal(t, ErrKindDataAccess, e.Kind)
	assert.Equal(t, "something broke", e.Error())
}
