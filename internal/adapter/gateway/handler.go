package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"wingman/internal/domain"
	"wingman/internal/usecase"
)

// HandlerDeps holds dependencies needed by RPC handlers.
type HandlerDeps struct {
	Hub    *Hub
	Bus    domain.EventBus
	Logger *slog.Logger
	// Version is reported by the status endpoint.
	Version string
}

// RegisterRESTHandlers registers the authenticated HTTP endpoints and
// returns the counters they report.
func RegisterRESTHandlers(s *Server, deps HandlerDeps) *Metrics {
	startTime := time.Now()
	metrics := NewMetrics(deps.Bus)

	authMiddleware := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if _, err := s.auth.Authenticate(requestToken(r)); err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next(w, r)
		}
	}

	s.RegisterHTTPRoute("/api/v1/status", authMiddleware(statusHandler(deps, startTime, metrics)))
	s.RegisterHTTPRoute("/metrics", authMiddleware(metricsHandler(deps, startTime, metrics)))

	return metrics
}

// RegisterDefaultHandlers registers all built-in RPC handlers on the server.
func RegisterDefaultHandlers(s *Server, deps HandlerDeps) {
	s.RegisterHandler("session.list", sessionListHandler(deps))
	s.RegisterHandler("session.create", sessionCreateHandler(deps))
	s.RegisterHandler("session.select", sessionSelectHandler(deps))

	s.RegisterHandler("connection.connect", connectHandler(deps))
	s.RegisterHandler("connection.disconnect", disconnectHandler(deps))
	s.RegisterHandler("connection.toggle", toggleHandler(deps))
	s.RegisterHandler("connection.status", statusRPCHandler(deps))
	s.RegisterHandler("codec.set", codecSetHandler(deps))

	s.RegisterHandler("text.send", textSendHandler(deps))
	s.RegisterHandler("ptt.press", pttPressHandler(deps))
	s.RegisterHandler("ptt.release", pttReleaseHandler(deps))
	s.RegisterHandler("ptt.mode", pttModeHandler(deps))
	s.RegisterHandler("playback.set", playbackSetHandler(deps))
	s.RegisterHandler("audio.append", audioAppendHandler(deps))
	s.RegisterHandler("recording.export", recordingExportHandler(deps))

	s.RegisterHandler("transcript.get", transcriptGetHandler(deps))
	s.RegisterHandler("transcript.toggle", transcriptToggleHandler(deps))
	s.RegisterHandler("tool.list", toolListHandler(deps))
}

// withOrchestrator resolves the caller's orchestrator before running fn.
func withOrchestrator(deps HandlerDeps, fn func(ctx context.Context, o *usecase.Orchestrator, payload json.RawMessage) (any, error)) RPCHandler {
	return func(ctx context.Context, client *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		o, err := deps.Hub.Get(client.UserID)
		if err != nil {
			return nil, err
		}
		result, err := fn(ctx, o, payload)
		if err != nil {
			return nil, err
		}
		return json.Marshal(result)
	}
}

// decodePayload unmarshals a request payload into v.
func decodePayload(op string, payload json.RawMessage, v any) error {
	if len(payload) == 0 {
		return domain.NewDomainError(op, domain.ErrRPCInvalidPayload, "payload required")
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return domain.NewDomainError(op, domain.ErrRPCInvalidPayload, err.Error())
	}
	return nil
}

type okResult struct {
	OK bool `json:"ok"`
}

func sessionListHandler(deps HandlerDeps) RPCHandler {
	return withOrchestrator(deps, func(_ context.Context, o *usecase.Orchestrator, _ json.RawMessage) (any, error) {
		return o.Sessions().List(), nil
	})
}

func sessionCreateHandler(deps HandlerDeps) RPCHandler {
	return withOrchestrator(deps, func(ctx context.Context, o *usecase.Orchestrator, _ json.RawMessage) (any, error) {
		sess := o.CreateSession(ctx)
		return domain.SessionSummary{
			ID:        sess.ID,
			Title:     sess.Title,
			CreatedAt: sess.CreatedAt,
			Active:    true,
		}, nil
	})
}

func sessionSelectHandler(deps HandlerDeps) RPCHandler {
	return withOrchestrator(deps, func(ctx context.Context, o *usecase.Orchestrator, payload json.RawMessage) (any, error) {
		var req struct {
			ID string `json:"id"`
		}
		if err := decodePayload("session.select", payload, &req); err != nil {
			return nil, err
		}
		if req.ID == "" {
			return nil, domain.NewDomainError("session.select", domain.ErrRPCInvalidPayload, "id is required")
		}
		if err := o.SelectSession(ctx, req.ID); err != nil {
			return nil, err
		}
		return o.Status(), nil
	})
}

func connectHandler(deps HandlerDeps) RPCHandler {
	return withOrchestrator(deps, func(ctx context.Context, o *usecase.Orchestrator, _ json.RawMessage) (any, error) {
		if err := o.Connect(ctx); err != nil {
			return nil, err
		}
		return o.Status(), nil
	})
}

func disconnectHandler(deps HandlerDeps) RPCHandler {
	return withOrchestrator(deps, func(_ context.Context, o *usecase.Orchestrator, _ json.RawMessage) (any, error) {
		o.Disconnect()
		return o.Status(), nil
	})
}

func toggleHandler(deps HandlerDeps) RPCHandler {
	return withOrchestrator(deps, func(ctx context.Context, o *usecase.Orchestrator, _ json.RawMessage) (any, error) {
		if err := o.Toggle(ctx); err != nil {
			return nil, err
		}
		return o.Status(), nil
	})
}

func statusRPCHandler(deps HandlerDeps) RPCHandler {
	return withOrchestrator(deps, func(_ context.Context, o *usecase.Orchestrator, _ json.RawMessage) (any, error) {
		return o.Status(), nil
	})
}

func codecSetHandler(deps HandlerDeps) RPCHandler {
	return withOrchestrator(deps, func(ctx context.Context, o *usecase.Orchestrator, payload json.RawMessage) (any, error) {
		var req struct {
			Codec string `json:"codec"`
		}
		if err := decodePayload("codec.set", payload, &req); err != nil {
			return nil, err
		}
		codec, err := domain.ParseCodec(req.Codec)
		if err != nil {
			return nil, err
		}
		if err := o.SetCodec(ctx, codec); err != nil {
			return nil, err
		}
		return o.Status(), nil
	})
}

func textSendHandler(deps HandlerDeps) RPCHandler {
	return withOrchestrator(deps, func(ctx context.Context, o *usecase.Orchestrator, payload json.RawMessage) (any, error) {
		var req struct {
			Text string `json:"text"`
		}
		if err := decodePayload("text.send", payload, &req); err != nil {
			return nil, err
		}
		if err := o.SendText(ctx, req.Text); err != nil {
			return nil, err
		}
		return okResult{OK: true}, nil
	})
}

func pttPressHandler(deps HandlerDeps) RPCHandler {
	return withOrchestrator(deps, func(ctx context.Context, o *usecase.Orchestrator, _ json.RawMessage) (any, error) {
		if err := o.PressTalk(ctx); err != nil {
			return nil, err
		}
		return o.Status(), nil
	})
}

func pttReleaseHandler(deps HandlerDeps) RPCHandler {
	return withOrchestrator(deps, func(ctx context.Context, o *usecase.Orchestrator, _ json.RawMessage) (any, error) {
		if err := o.ReleaseTalk(ctx); err != nil {
			return nil, err
		}
		return o.Status(), nil
	})
}

type enabledRequest struct {
	Enabled *bool `json:"enabled"`
}

func (r enabledRequest) validate(op string) error {
	if r.Enabled == nil {
		return domain.NewDomainError(op, domain.ErrRPCInvalidPayload, "enabled is required")
	}
	return nil
}

func pttModeHandler(deps HandlerDeps) RPCHandler {
	return withOrchestrator(deps, func(ctx context.Context, o *usecase.Orchestrator, payload json.RawMessage) (any, error) {
		var req enabledRequest
		if err := decodePayload("ptt.mode", payload, &req); err != nil {
			return nil, err
		}
		if err := req.validate("ptt.mode"); err != nil {
			return nil, err
		}
		if err := o.SetPushToTalk(ctx, *req.Enabled); err != nil {
			return nil, err
		}
		return o.Status(), nil
	})
}

func playbackSetHandler(deps HandlerDeps) RPCHandler {
	return withOrchestrator(deps, func(_ context.Context, o *usecase.Orchestrator, payload json.RawMessage) (any, error) {
		var req enabledRequest
		if err := decodePayload("playback.set", payload, &req); err != nil {
			return nil, err
		}
		if err := req.validate("playback.set"); err != nil {
			return nil, err
		}
		o.SetPlayback(*req.Enabled)
		return o.Status(), nil
	})
}

func audioAppendHandler(deps HandlerDeps) RPCHandler {
	return withOrchestrator(deps, func(ctx context.Context, o *usecase.Orchestrator, payload json.RawMessage) (any, error) {
		var req struct {
			Audio string `json:"audio"` // base64
		}
		if err := decodePayload("audio.append", payload, &req); err != nil {
			return nil, err
		}
		frame, err := base64.StdEncoding.DecodeString(req.Audio)
		if err != nil {
			return nil, domain.NewDomainError("audio.append", domain.ErrRPCInvalidPayload, "audio must be base64")
		}
		if err := o.AppendInputAudio(ctx, frame); err != nil {
			return nil, err
		}
		return okResult{OK: true}, nil
	})
}

func recordingExportHandler(deps HandlerDeps) RPCHandler {
	return withOrchestrator(deps, func(ctx context.Context, o *usecase.Orchestrator, _ json.RawMessage) (any, error) {
		path, err := o.ExportRecording(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]string{"path": path}, nil
	})
}

func transcriptGetHandler(deps HandlerDeps) RPCHandler {
	return withOrchestrator(deps, func(_ context.Context, o *usecase.Orchestrator, _ json.RawMessage) (any, error) {
		return o.Transcript().Items(), nil
	})
}

func transcriptToggleHandler(deps HandlerDeps) RPCHandler {
	return withOrchestrator(deps, func(_ context.Context, o *usecase.Orchestrator, payload json.RawMessage) (any, error) {
		var req struct {
			ID string `json:"id"`
		}
		if err := decodePayload("transcript.toggle", payload, &req); err != nil {
			return nil, err
		}
		if !o.ToggleTranscriptItem(req.ID) {
			return nil, domain.NewDomainError("transcript.toggle", domain.ErrNotFound, req.ID)
		}
		return okResult{OK: true}, nil
	})
}

func toolListHandler(deps HandlerDeps) RPCHandler {
	return withOrchestrator(deps, func(_ context.Context, o *usecase.Orchestrator, _ json.RawMessage) (any, error) {
		return o.ToolDefinitions(), nil
	})
}
