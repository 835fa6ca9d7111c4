package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainErrorFormat(t *testing.T) {
	err := NewDomainError("SessionStore.Select", ErrSessionNotFound, "abc")
	want := "SessionStore.Select: abc: session not found"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorFormatNoDetail(t *testing.T) {
	err := NewDomainError("Connection.Send", ErrNotConnected, "")
	want := "Connection.Send: realtime transport not connected"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorUnwrapAndAs(t *testing.T) {
	err := fmt.Errorf("connect: %w", NewDomainError("Credential.Fetch", ErrNoCredential, ""))
	if !errors.Is(err, ErrNoCredential) {
		t.Error("errors.Is should match ErrNoCredential")
	}
	var de *DomainError
	if !errors.As(err, &de) {
		t.Fatal("errors.As should match *DomainError")
	}
	if de.Op != "Credential.Fetch" {
		t.Errorf("Op = %q", de.Op)
	}
}

func TestWrapOp(t *testing.T) {
	assert.Nil(t, WrapOp("op", nil))
	err := WrapOp("Store.Set", ErrStorage)
	assert.ErrorIs(t, err, ErrStorage)
	assert.Equal(t, "Store.Set: storage operation failed", err.Error())
}

func TestErrorCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"nil", nil, CodeUnknown},
		{"direct sentinel", ErrSessionNotFound, CodeSessionNotFound},
		{"wrapped sentinel", fmt.Errorf("ctx: %w", ErrNotConnected), CodeNotConnected},
		{"domain error", NewDomainError("Op", ErrToolNotFound, "x"), CodeToolNotFound},
		{"subsystem specific", NewSubSystemError("tool", "Registry.Register", ErrDuplicate, "x"), CodeToolDuplicate},
		{"subsystem fallback", NewSubSystemError("store", "Op", ErrDuplicate, ""), CodeDuplicate},
		{"credential timeout", NewSubSystemError("credential", "Fetch", ErrTimeout, ""), CodeCredentialTimeout},
		{"gateway auth", fmt.Errorf("x: %w", ErrGatewayAuthFailed), CodeGatewayAuth},
		{"plain auth", fmt.Errorf("x: %w", ErrAuthInvalid), CodeAuthInvalid},
		{"unknown", fmt.Errorf("random"), CodeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorCodeOf(tt.err))
		})
	}
}

func TestIsRetryableError(t *testing.T) {
	assert.True(t, IsRetryableError(fmt.Errorf("x: %w", ErrCircuitOpen)))
	assert.True(t, IsRetryableError(ErrTimeout))
	assert.False(t, IsRetryableError(ErrNoCredential))
}
