// Package credential fetches ephemeral realtime credentials from the token service.
package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"wingman/internal/domain"
	"wingman/internal/infra/tracer"
)

const maxBody = 64 * 1024

// tokenResponse is the token service reply.
type tokenResponse struct {
	ClientSecret *struct {
		Value string `json:"value"`
	} `json:"client_secret"`
}

// Config configures a Client.
type Config struct {
	URL             string
	Timeout         time.Duration
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// Client is an HTTP CredentialProvider guarded by a circuit breaker.
type Client struct {
	url     string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[string]
	logger  *slog.Logger
}

// NewClient creates a Client. A nil httpClient gets one with cfg.Timeout.
func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	openFor := cfg.BreakerTimeout
	if openFor == 0 {
		openFor = 30 * time.Second
	}

	c := &Client{url: cfg.URL, client: httpClient, logger: logger}
	c.breaker = gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "credential",
		MaxRequests: 1,
		Timeout:     openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return c
}

// FetchCredential implements domain.CredentialProvider.
func (c *Client) FetchCredential(ctx context.Context) (string, error) {
	ctx, span := tracer.StartSpan(ctx, "credential.fetch")

	value, err := c.breaker.Execute(func() (string, error) {
		return c.fetch(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = domain.NewSubSystemError("credential", "Client.FetchCredential", domain.ErrCircuitOpen, err.Error())
	}
	tracer.End(span, err)
	return value, err
}

func (c *Client) fetch(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", domain.NewSubSystemError("credential", "Client.fetch", domain.ErrTimeout, err.Error())
		}
		return "", domain.NewSubSystemError("credential", "Client.fetch", domain.ErrProviderError, err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return "", domain.NewSubSystemError("credential", "Client.fetch", domain.ErrProviderError, err.Error())
	}
	if resp.StatusCode != http.StatusOK {
		detail := fmt.Sprintf("token service status %d", resp.StatusCode)
		return "", domain.NewSubSystemError("credential", "Client.fetch", domain.ErrProviderError, detail)
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", domain.NewSubSystemError("credential", "Client.fetch", domain.ErrProviderError, err.Error())
	}
	if tok.ClientSecret == nil || tok.ClientSecret.Value == "" {
		c.logger.Warn("token service returned no client secret")
		return "", domain.NewDomainError("Client.fetch", domain.ErrNoCredential, "")
	}
	return tok.ClientSecret.Value, nil
}

// State returns the breaker state for monitoring.
func (c *Client) State() gobreaker.State { return c.breaker.State() }

var _ domain.CredentialProvider = (*Client)(nil)
