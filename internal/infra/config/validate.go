package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateIdentity(cfg, ve)
	validateStorage(cfg, ve)
	validateRealtime(cfg, ve)
	validateTokenService(cfg, ve)
	validateSupervisor(cfg, ve)
	validateTools(cfg, ve)
	validateAudio(cfg, ve)
	validateGateway(cfg, ve)
	validateMaintenance(cfg, ve)
	validateLogger(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateIdentity(cfg *Config, ve *ValidationError) {
	if strings.TrimSpace(cfg.Identity.DefaultUser) == "" {
		ve.Add("identity.default_user must not be empty")
	}
}

var validStorageBackends = map[string]bool{
	"sqlite": true,
	"file":   true,
	"memory": true,
	"redis":  true,
}

func validateStorage(cfg *Config, ve *ValidationError) {
	s := cfg.Storage
	if !validStorageBackends[s.Backend] {
		ve.Add("storage.backend %q is not supported (want sqlite, file, memory or redis)", s.Backend)
		return
	}
	switch s.Backend {
	case "sqlite", "file":
		if s.DataDir == "" {
			ve.Add("storage.data_dir is required for the %s backend", s.Backend)
		}
	case "redis":
		if s.RedisURL == "" {
			ve.Add("storage.redis_url is required for the redis backend")
		}
	}
	if s.WriteTimeout <= 0 {
		ve.Add("storage.write_timeout must be > 0")
	}
}

var validCodecs = map[string]bool{
	"opus": true,
	"pcmu": true,
	"pcma": true,
}

func validateRealtime(cfg *Config, ve *ValidationError) {
	r := cfg.Realtime
	if err := checkURL(r.URL, "ws", "wss"); err != nil {
		ve.Add("realtime.url: %v", err)
	}
	if r.Model == "" {
		ve.Add("realtime.model must not be empty")
	}
	if !validCodecs[r.Codec] {
		ve.Add("realtime.codec %q is not supported (want opus, pcmu or pcma)", r.Codec)
	}
	if r.AgentSet == "" {
		ve.Add("realtime.agent_set must not be empty")
	}
	if r.DialTimeout <= 0 {
		ve.Add("realtime.dial_timeout must be > 0")
	}
}

func validateTokenService(cfg *Config, ve *ValidationError) {
	if err := checkURL(cfg.TokenService.URL, "http", "https"); err != nil {
		ve.Add("token_service.url: %v", err)
	}
	if cfg.TokenService.Timeout <= 0 {
		ve.Add("token_service.timeout must be > 0")
	}
	if cfg.TokenService.BreakerFailures <= 0 {
		ve.Add("token_service.breaker_failures must be > 0")
	}
}

func validateSupervisor(cfg *Config, ve *ValidationError) {
	s := cfg.Supervisor
	if err := checkURL(s.BaseURL, "http", "https"); err != nil {
		ve.Add("supervisor.base_url: %v", err)
	}
	if s.Model == "" {
		ve.Add("supervisor.model must not be empty")
	}
	if s.Timeout <= 0 {
		ve.Add("supervisor.timeout must be > 0")
	}
	if s.MaxIterations <= 0 {
		ve.Add("supervisor.max_iterations must be > 0")
	}
	if s.BreakerFailures <= 0 {
		ve.Add("supervisor.breaker_failures must be > 0")
	}
}

func validateTools(cfg *Config, ve *ValidationError) {
	if cfg.Tools.Timeout <= 0 {
		ve.Add("tools.timeout must be > 0")
	}
}

func validateAudio(cfg *Config, ve *ValidationError) {
	if cfg.Audio.RecorderBuffer <= 0 {
		ve.Add("audio.recorder_buffer must be > 0")
	}
}

func validateGateway(cfg *Config, ve *ValidationError) {
	if !cfg.Gateway.Enabled {
		return
	}
	if cfg.Gateway.Addr == "" {
		ve.Add("gateway.addr is required when gateway is enabled")
		return
	}
	if _, _, err := net.SplitHostPort(cfg.Gateway.Addr); err != nil {
		ve.Add("gateway.addr %q is not a valid host:port", cfg.Gateway.Addr)
	}
	if cfg.Gateway.RequestsPerMin <= 0 || cfg.Gateway.Burst <= 0 {
		ve.Add("gateway.requests_per_min and gateway.burst must be > 0")
	}
	switch cfg.Gateway.Auth.Type {
	case "":
	case "static":
		if len(cfg.Gateway.Auth.Tokens) == 0 {
			ve.Add("gateway.auth.tokens must not be empty for static auth")
		}
		for i, tok := range cfg.Gateway.Auth.Tokens {
			if tok.Token == "" {
				ve.Add("gateway.auth.tokens[%d].token must not be empty", i)
			}
			if tok.UserID == "" {
				ve.Add("gateway.auth.tokens[%d].user_id must not be empty", i)
			}
		}
	default:
		ve.Add("gateway.auth.type %q is not supported", cfg.Gateway.Auth.Type)
	}
}

func validateMaintenance(cfg *Config, ve *ValidationError) {
	m := cfg.Maintenance
	if m.RecordingRetention < 0 || m.OrchestratorIdle < 0 {
		ve.Add("maintenance durations must not be negative")
	}
	if (m.RecordingRetention > 0 || m.OrchestratorIdle > 0) && strings.TrimSpace(m.Schedule) == "" {
		ve.Add("maintenance.schedule is required when a maintenance task is enabled")
	}
}

var validLogFormats = map[string]bool{
	"":     true,
	"text": true,
	"json": true,
}

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLogFormats[strings.ToLower(cfg.Logger.Format)] {
		ve.Add("logger.format %q is not supported (want text or json)", cfg.Logger.Format)
	}
}

func checkURL(raw string, schemes ...string) error {
	if raw == "" {
		return fmt.Errorf("must not be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("scheme %q not allowed (want %s)", u.Scheme, strings.Join(schemes, " or "))
}
