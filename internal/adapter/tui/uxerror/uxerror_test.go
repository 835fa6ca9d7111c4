package uxerror

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"wingman/internal/domain"
)

type codedErr struct{ code domain.ErrorCode }

func (e codedErr) Error() string               { return "remote failure" }
func (e codedErr) ErrorCode() domain.ErrorCode { return e.code }

func TestHumanize(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		title string
	}{
		{"sentinel", fmt.Errorf("send: %w", domain.ErrNotConnected), "Not Connected"},
		{"domain error", domain.NewDomainError("SessionStore.Select", domain.ErrSessionNotFound, "x"), "Unknown Conversation"},
		{"subsystem", domain.NewSubSystemError("credential", "Fetch", domain.ErrTimeout, ""), "Credential Unavailable"},
		{"carried code", codedErr{code: domain.CodeRecorderInactive}, "Nothing Recorded"},
		{"wrapped carried code", fmt.Errorf("call: %w", codedErr{code: domain.CodeGatewayAuth}), "Authentication Failed"},
		{"network", errors.New("dial tcp 127.0.0.1:8790: connect: connection refused"), "Connection Failed"},
		{"deadline", context.DeadlineExceeded, "Request Timed Out"},
		{"unknown", errors.New("boom"), "Unexpected Error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fe := Humanize(tt.err)
			assert.Equal(t, tt.title, fe.Title)
			assert.Equal(t, tt.err.Error(), fe.Raw)
		})
	}
}

func TestHumanizeNil(t *testing.T) {
	assert.Equal(t, "Unknown Error", Humanize(nil).Title)
}

func TestRenderIncludesHints(t *testing.T) {
	out := Humanize(domain.ErrNotConnected).Render()
	assert.Contains(t, out, "Not Connected: The realtime session is closed.")
	assert.Contains(t, out, "/connect")
}

func TestCodeOfPrefersCarriedCode(t *testing.T) {
	assert.Equal(t, domain.CodeRateLimit, CodeOf(codedErr{code: domain.CodeRateLimit}))
	assert.Equal(t, domain.CodeStorage, CodeOf(domain.ErrStorage))
}
