package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path/filepath"
	"time"

	"wingman/internal/adapter/audio"
	"wingman/internal/adapter/credential"
	"wingman/internal/adapter/gateway"
	"wingman/internal/adapter/llm"
	"wingman/internal/adapter/realtime"
	"wingman/internal/adapter/store"
	"wingman/internal/adapter/tool"
	"wingman/internal/domain"
	"wingman/internal/infra/config"
	"wingman/internal/usecase"
	"wingman/internal/usecase/multiagent"
	"wingman/internal/usecase/scheduling"
)

// runtime holds the shared collaborators of all orchestrators.
type runtime struct {
	Store       domain.KVStore
	Credentials domain.CredentialProvider
	Dialer      domain.RealtimeDialer
	Responder   domain.Responder
	Agents      *multiagent.Registry
	Hub         *gateway.Hub
	Gateway     *gateway.Server
	Metrics     *gateway.Metrics
	Scheduler   *scheduling.Scheduler

	cfg         *config.Config
	bus         domain.EventBus
	logger      *slog.Logger
	storeCloser io.Closer
}

func initRuntime(ctx context.Context, cfg *config.Config, bus domain.EventBus, log *slog.Logger) (*runtime, error) {
	// Storage
	kv, closer, err := store.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}

	rt := &runtime{
		Store:       kv,
		Agents:      multiagent.NewDefaultRegistry(log),
		cfg:         cfg,
		bus:         bus,
		logger:      log,
		storeCloser: closer,
	}

	if _, _, err := rt.Agents.Resolve(cfg.Realtime.AgentSet, cfg.Realtime.Agent); err != nil {
		closer.Close()
		return nil, fmt.Errorf("agent set: %w", err)
	}

	// Token service
	rt.Credentials = credential.NewClient(credential.Config{
		URL:             cfg.TokenService.URL,
		Timeout:         cfg.TokenService.Timeout,
		BreakerFailures: uint32(cfg.TokenService.BreakerFailures),
	}, nil, log)

	// Realtime transport
	rt.Dialer = realtime.NewDialer(realtime.Config{
		URL:             cfg.Realtime.URL,
		Model:           cfg.Realtime.Model,
		TranscribeModel: cfg.Realtime.TranscribeWith,
	}, log)

	// Supervisor model
	rt.Responder = llm.NewCircuitBreakerResponder(
		llm.NewResponsesClient(llm.ResponsesConfig{
			BaseURL: cfg.Supervisor.BaseURL,
			APIKey:  cfg.Supervisor.APIKey,
		}, llm.NewHTTPClient(cfg.Supervisor.Timeout), log),
		llm.CircuitBreakerConfig{MaxFailures: uint32(cfg.Supervisor.BreakerFailures)},
		log,
	)

	rt.Hub = gateway.NewHub(rt.newOrchestrator, log)

	// Gateway
	if cfg.Gateway.Enabled {
		rt.Gateway = gateway.NewServer(bus, newAuthenticator(cfg), rt.Hub, cfg.Gateway.Addr, log)
		rt.Gateway.SetRateLimit(cfg.Gateway.RequestsPerMin, cfg.Gateway.Burst, nil)
		deps := gateway.HandlerDeps{
			Hub:     rt.Hub,
			Bus:     bus,
			Logger:  log,
			Version: version,
		}
		gateway.RegisterDefaultHandlers(rt.Gateway, deps)
		rt.Metrics = gateway.RegisterRESTHandlers(rt.Gateway, deps)
	}

	// Maintenance
	rt.Scheduler, err = newScheduler(cfg, rt.Hub, log)
	if err != nil {
		closer.Close()
		return nil, fmt.Errorf("maintenance: %w", err)
	}

	return rt, nil
}

// newScheduler schedules the enabled maintenance jobs.
func newScheduler(cfg *config.Config, hub *gateway.Hub, log *slog.Logger) (*scheduling.Scheduler, error) {
	s := scheduling.NewScheduler(log)
	m := cfg.Maintenance

	if m.RecordingRetention > 0 {
		if err := s.Add(scheduling.Job{
			Name:     "recording-retention",
			Schedule: m.Schedule,
			Run: func(context.Context) (int, error) {
				return audio.PruneRecordings(cfg.Audio.RecordingsDir, m.RecordingRetention, time.Now())
			},
		}); err != nil {
			return nil, err
		}
	}

	if m.OrchestratorIdle > 0 {
		if err := s.Add(scheduling.Job{
			Name:     "orchestrator-reap",
			Schedule: m.Schedule,
			Run: func(context.Context) (int, error) {
				return hub.ReapIdle(m.OrchestratorIdle), nil
			},
		}); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// newAuthenticator maps the gateway auth config to an Authenticator.
func newAuthenticator(cfg *config.Config) gateway.Authenticator {
	if cfg.Gateway.Auth.Type != "static" {
		return gateway.NewSingleUserAuth(cfg.Identity.DefaultUser)
	}
	entries := make([]gateway.TokenEntry, 0, len(cfg.Gateway.Auth.Tokens))
	for _, t := range cfg.Gateway.Auth.Tokens {
		entries = append(entries, gateway.TokenEntry{Token: t.Token, Name: t.Name, UserID: t.UserID})
	}
	return gateway.NewStaticTokenAuth(entries)
}

// newToolRegistry builds a registry whose calls are bounded by tools.timeout
// and announced on the bus for owner.
func (rt *runtime) newToolRegistry(log *slog.Logger, owner string) *tool.Registry {
	r := tool.NewRegistry(log, rt.cfg.Tools.Timeout)
	r.PublishTo(rt.bus, owner)
	return r
}

// newOrchestrator builds the orchestrator of one user. The realtime agents
// get the escalation tool; the supervisor behind it can search the user's
// earlier sessions.
func (rt *runtime) newOrchestrator(_ context.Context, owner string) (*usecase.Orchestrator, error) {
	cfg := rt.cfg
	log := rt.logger.With("owner", owner)
	transcript := usecase.NewTranscriptStore()

	supervisorTools := rt.newToolRegistry(log, owner)

	sup := usecase.NewSupervisor(rt.Responder, supervisorTools, transcript, log, usecase.SupervisorOptions{
		Model:         cfg.Supervisor.Model,
		Instructions:  multiagent.SupervisorInstructions,
		MaxIterations: cfg.Supervisor.MaxIterations,
		Timeout:       cfg.Supervisor.Timeout,
		Bus:           rt.bus,
		Owner:         owner,
	})

	agentTools := rt.newToolRegistry(log, owner)
	if err := agentTools.Register(multiagent.EscalationToolDefinition(), sup.Executor()); err != nil {
		return nil, err
	}

	codec, err := domain.ParseCodec(cfg.Realtime.Codec)
	if err != nil {
		return nil, err
	}

	orch := usecase.NewOrchestrator(usecase.OrchestratorDeps{
		Owner:       owner,
		Store:       rt.Store,
		Credentials: rt.Credentials,
		Dialer:      rt.Dialer,
		Agents:      rt.Agents,
		Tools:       agentTools,
		Transcript:  transcript,
		Sink:        audio.NewBusSink(rt.bus, owner),
		Recorder:    audio.NewRecorder(filepath.Join(cfg.Audio.RecordingsDir, url.PathEscape(owner)), cfg.Audio.RecorderBuffer, log),
		Bus:         rt.bus,
		Logger:      rt.logger,
	}, usecase.OrchestratorOptions{
		AgentSet:          cfg.Realtime.AgentSet,
		Agent:             cfg.Realtime.Agent,
		Codec:             codec,
		CredentialTimeout: cfg.TokenService.Timeout,
		DialTimeout:       cfg.Realtime.DialTimeout,
		WriteTimeout:      cfg.Storage.WriteTimeout,
		Preferences: &domain.Preferences{
			PushToTalk: cfg.Audio.PushToTalk,
			Playback:   cfg.Audio.Playback,
		},
	})

	if err := supervisorTools.Register(usecase.SessionSearchDefinition(), usecase.SessionSearchExecutor(orch.Sessions())); err != nil {
		orch.Close()
		return nil, err
	}
	return orch, nil
}

// Close disconnects every orchestrator and releases storage.
func (rt *runtime) Close(ctx context.Context) error {
	var errs []error
	if rt.Scheduler != nil {
		rt.Scheduler.Stop()
	}
	if rt.Gateway != nil {
		if err := rt.Gateway.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("gateway: %w", err))
		}
	}
	if rt.Metrics != nil {
		rt.Metrics.Close()
	}
	rt.Hub.CloseAll()
	if rt.storeCloser != nil {
		if err := rt.storeCloser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	return errors.Join(errs...)
}
