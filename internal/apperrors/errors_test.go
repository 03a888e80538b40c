package apperrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStripeErrorBody_Types(t *testing.T) {
	busy := NewAppError(ErrorCodeNodeBusy, "Node 2 is in a call", 409, map[string]any{"node": "node2"}, nil)
	body := busy.StripeErrorBody()
	require.Equal(t, ErrorTypeInvalidRequest, body.Type)
	require.Equal(t, "NODE_BUSY", body.Code)
	require.Equal(t, "node2", body.Details["node"])

	pin := NewUnauthorizedError("Invalid PIN", ErrorCodeInvalidPIN)
	require.Equal(t, ErrorTypeAuthError, pin.StripeErrorBody().Type)
	require.Equal(t, "INVALID_PIN", pin.StripeErrorBody().Code)

	internal := NewInternalError("boom")
	require.Equal(t, ErrorTypeAPIError, internal.StripeErrorBody().Type)
}

func TestEnsureAppError(t *testing.T) {
	require.Equal(t, 500, EnsureAppError(nil).StatusCode)
	require.Equal(t, 500, EnsureAppError(errors.New("plain")).StatusCode)

	conflict := NewConflictError("already split", nil)
	require.Same(t, conflict, EnsureAppError(conflict))
}

func TestNewNotFoundResource(t *testing.T) {
	err := NewNotFoundResource("operation", "op-1")
	require.Equal(t, "operation not found: op-1", err.Message)
	require.Equal(t, "op-1", err.Details["id"])
}
