package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wingman/internal/domain"
)

func TestResponsesClientCreate(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		data, _ := io.ReadAll(r.Body)
		json.Unmarshal(data, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"resp_1","output":[{"type":"message","role":"assistant","content":[{"type":"output_text","text":"All set."}]}]}`)
	}))
	defer srv.Close()

	c := NewResponsesClient(ResponsesConfig{BaseURL: srv.URL + "/", APIKey: "sk-test"}, srv.Client(), discard)
	resp, err := c.Create(context.Background(), domain.ResponsesRequest{
		Model: "gpt-4.1",
		Input: []any{domain.InputMessage{Type: "message", Role: "system", Content: "be helpful"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "/responses", gotPath)
	assert.Equal(t, "gpt-4.1", gotBody["model"])
	assert.Len(t, gotBody["input"], 1)
	assert.Equal(t, "resp_1", resp.ID)
	assert.Equal(t, "All set.", resp.OutputText())
}

func TestResponsesClientHTTPErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"rate limit", http.StatusTooManyRequests, domain.ErrRateLimit},
		{"unauthorized", http.StatusUnauthorized, domain.ErrAuthInvalid},
		{"forbidden", http.StatusForbidden, domain.ErrAuthInvalid},
		{"server error", http.StatusBadGateway, domain.ErrProviderError},
		{"bad request", http.StatusBadRequest, domain.ErrProviderError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, `{"error":"x"}`, tt.status)
			}))
			defer srv.Close()

			c := NewResponsesClient(ResponsesConfig{BaseURL: srv.URL}, srv.Client(), discard)
			_, err := c.Create(context.Background(), domain.ResponsesRequest{Model: "m"})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestResponsesClientMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{not json`)
	}))
	defer srv.Close()

	c := NewResponsesClient(ResponsesConfig{BaseURL: srv.URL}, srv.Client(), discard)
	_, err := c.Create(context.Background(), domain.ResponsesRequest{Model: "m"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal response")
}

func TestNewHTTPClientDefaults(t *testing.T) {
	c := NewHTTPClient(0)
	require.NotNil(t, c.Transport)
	assert.Equal(t, 60*time.Second, c.Timeout)
}
