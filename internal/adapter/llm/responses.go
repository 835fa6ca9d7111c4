package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"wingman/internal/domain"
	"wingman/internal/infra/tracer"
)

// ResponsesConfig configures a ResponsesClient.
type ResponsesConfig struct {
	BaseURL string // e.g. "https://api.openai.com/v1"
	APIKey  string
}

// ResponsesClient submits requests to an OpenAI-compatible Responses API.
type ResponsesClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

// NewResponsesClient creates a client. A nil httpClient uses NewHTTPClient.
func NewResponsesClient(cfg ResponsesConfig, httpClient *http.Client, logger *slog.Logger) *ResponsesClient {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if httpClient == nil {
		httpClient = NewHTTPClient(0)
	}
	return &ResponsesClient{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		client:  httpClient,
		logger:  logger,
	}
}

// Create implements domain.Responder.
func (c *ResponsesClient) Create(ctx context.Context, req domain.ResponsesRequest) (*domain.ResponsesResponse, error) {
	ctx, span := tracer.StartSpan(ctx, "llm.responses",
		trace.WithAttributes(
			tracer.StringAttr("llm.model", req.Model),
			tracer.IntAttr("llm.input_items", len(req.Input)),
		),
	)
	defer span.End()

	body, err := json.Marshal(req)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	headers := map[string]string{}
	if c.apiKey != "" {
		headers["Authorization"] = "Bearer " + c.apiKey
	}

	respBody, err := doJSONRequest(ctx, c.client, http.MethodPost, c.baseURL+"/responses", body, headers)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	var resp domain.ResponsesResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	tracer.SetOK(span)
	c.logger.Debug("responses call completed",
		"model", req.Model,
		"response_id", resp.ID,
		"output_items", len(resp.Output),
	)
	return &resp, nil
}

var _ domain.Responder = (*ResponsesClient)(nil)
