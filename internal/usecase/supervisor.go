package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"wingman/internal/domain"
	"wingman/internal/infra/tracer"
	"wingman/internal/usecase/eventbus"
)

// SupervisorContextParam is the argument the front-line agent passes when it
// escalates.
const SupervisorContextParam = "relevantContextFromLastUserMessage"

// supervisorFailure is what the front-line agent receives when the
// supervisor cannot answer.
const supervisorFailure = "Something went wrong."

// ToolResolver executes function calls of a model response.
type ToolResolver interface {
	Resolve(ctx context.Context, body *domain.ResponsesRequest, resp *domain.ResponsesResponse, record domain.ToolCallRecorder) bool
	Definitions() []domain.ToolDefinition
}

// SupervisorOptions tunes a Supervisor.
type SupervisorOptions struct {
	Model         string
	Instructions  string
	MaxIterations int           // default 5
	Timeout       time.Duration // default 60s
	Bus           domain.EventBus
	Owner         string
}

// Supervisor is the second tier of escalation: a text model that sees the
// visible conversation and may call its own tools before answering.
type Supervisor struct {
	responder  domain.Responder
	tools      ToolResolver
	transcript *TranscriptStore
	logger     *slog.Logger
	opts       SupervisorOptions
}

// NewSupervisor creates a supervisor reading history from transcript. tools
// may be nil when the supervisor has none.
func NewSupervisor(responder domain.Responder, tools ToolResolver, transcript *TranscriptStore, logger *slog.Logger, opts SupervisorOptions) *Supervisor {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 5
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	return &Supervisor{
		responder:  responder,
		tools:      tools,
		transcript: transcript,
		logger:     logger,
		opts:       opts,
	}
}

// Executor adapts the supervisor to the tool registry.
func (s *Supervisor) Executor() domain.ToolExecutor {
	return func(ctx context.Context, args map[string]any) (any, error) {
		relevant, _ := args[SupervisorContextParam].(string)
		return s.NextResponse(ctx, relevant), nil
	}
}

// NextResponse asks the supervisor model what the front-line agent should
// say next. It returns {"nextResponse": text} or {"error": "..."}. History
// and breadcrumbs follow the call scope of the escalating response when ctx
// carries one, and the live transcript otherwise.
func (s *Supervisor) NextResponse(ctx context.Context, relevantContext string) map[string]string {
	history, record := s.history(ctx)

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	ctx, span := tracer.StartSpan(ctx, "supervisor.next_response",
		trace.WithAttributes(tracer.StringAttr("model", s.opts.Model)),
	)

	text, iterations, err := s.run(ctx, s.prompt(history, relevantContext), record)
	tracer.End(span, err)
	s.publish(iterations, err)

	if err != nil {
		s.logger.Error("supervisor failed", "error", err, "iterations", iterations)
		return map[string]string{"error": supervisorFailure}
	}
	return map[string]string{"nextResponse": text}
}

func (s *Supervisor) history(ctx context.Context) ([]domain.TranscriptItem, domain.ToolCallRecorder) {
	var history []domain.TranscriptItem
	var record domain.ToolCallRecorder
	if sc, ok := callScopeFrom(ctx); ok {
		history, record = sc.history, sc.record
	} else if s.transcript != nil {
		history = s.transcript.Items()
		record = func(title string, data any) { s.transcript.AddBreadcrumb(title, data) }
	}
	if record == nil {
		return history, nil
	}
	return history, func(title string, data any) { record("[supervisor] "+title, data) }
}

func (s *Supervisor) run(ctx context.Context, prompt string, record domain.ToolCallRecorder) (string, int, error) {
	body := &domain.ResponsesRequest{
		Model: s.opts.Model,
		Input: []any{
			domain.InputMessage{Type: domain.ItemTypeMessage, Role: "system", Content: s.opts.Instructions},
			domain.InputMessage{Type: domain.ItemTypeMessage, Role: "user", Content: prompt},
		},
	}
	if s.tools != nil {
		body.Tools = s.tools.Definitions()
	}

	for i := 1; i <= s.opts.MaxIterations; i++ {
		resp, err := s.responder.Create(ctx, *body)
		if err != nil {
			return "", i, domain.NewSubSystemError("supervisor", "Supervisor.run", domain.ErrProviderError, err.Error())
		}
		if len(resp.Error) > 0 && string(resp.Error) != "null" {
			return "", i, domain.NewSubSystemError("supervisor", "Supervisor.run", domain.ErrProviderError, string(resp.Error))
		}
		if s.tools == nil || !s.tools.Resolve(ctx, body, resp, record) {
			return resp.OutputText(), i, nil
		}
	}
	return "", s.opts.MaxIterations, domain.NewSubSystemError("supervisor", "Supervisor.run", domain.ErrProviderError,
		fmt.Sprintf("still calling tools after %d iterations", s.opts.MaxIterations))
}

// prompt renders the visible conversation and the escalation context.
func (s *Supervisor) prompt(history []domain.TranscriptItem, relevantContext string) string {
	var visible []domain.TranscriptItem
	for _, it := range history {
		if it.Visible() {
			visible = append(visible, it)
		}
	}
	if visible == nil {
		visible = []domain.TranscriptItem{}
	}
	raw, err := json.Marshal(visible)
	if err != nil {
		raw = []byte("[]")
	}

	var b strings.Builder
	b.WriteString("==== Conversation History ====\n")
	b.Write(raw)
	b.WriteString("\n\n==== Relevant Context From Last User Message ===\n")
	b.WriteString(relevantContext)
	return b.String()
}

func (s *Supervisor) publish(iterations int, err error) {
	if s.opts.Bus == nil {
		return
	}
	payload := map[string]any{"model": s.opts.Model, "iterations": iterations}
	if err != nil {
		payload["error"] = err.Error()
	}
	s.opts.Bus.Publish(context.Background(), eventbus.NewEvent(domain.EventSupervisorCalled, s.opts.Owner, "", payload))
}
