package config

import (
	"strings"
	"testing"
	"time"
)

func TestValidateDefaultsPass(t *testing.T) {
	if err := Validate(Defaults()); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func assertValidationError(t *testing.T, cfg *Config, substr string) {
	t.Helper()
	err := Validate(cfg)
	if err == nil {
		t.Fatalf("expected validation error containing %q", substr)
	}
	if !strings.Contains(err.Error(), substr) {
		t.Errorf("error %q does not contain %q", err.Error(), substr)
	}
}

func TestValidateIdentityEmpty(t *testing.T) {
	cfg := Defaults()
	cfg.Identity.DefaultUser = "  "
	assertValidationError(t, cfg, "identity.default_user")
}

func TestValidateStorage(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown backend", func(c *Config) { c.Storage.Backend = "mongo" }, "storage.backend"},
		{"sqlite without dir", func(c *Config) { c.Storage.DataDir = "" }, "storage.data_dir"},
		{"redis without url", func(c *Config) { c.Storage.Backend = "redis" }, "storage.redis_url"},
		{"zero write timeout", func(c *Config) { c.Storage.WriteTimeout = 0 }, "storage.write_timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			assertValidationError(t, cfg, tt.want)
		})
	}
}

func TestValidateMemoryBackendNeedsNoDir(t *testing.T) {
	cfg := Defaults()
	cfg.Storage.Backend = "memory"
	cfg.Storage.DataDir = ""
	if err := Validate(cfg); err != nil {
		t.Errorf("memory backend should not need data_dir: %v", err)
	}
}

func TestValidateRealtime(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"http scheme", func(c *Config) { c.Realtime.URL = "http://example.com" }, "realtime.url"},
		{"empty model", func(c *Config) { c.Realtime.Model = "" }, "realtime.model"},
		{"bad codec", func(c *Config) { c.Realtime.Codec = "mp3" }, "realtime.codec"},
		{"empty agent set", func(c *Config) { c.Realtime.AgentSet = "" }, "realtime.agent_set"},
		{"zero dial timeout", func(c *Config) { c.Realtime.DialTimeout = 0 }, "realtime.dial_timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			assertValidationError(t, cfg, tt.want)
		})
	}
}

func TestValidateTokenServiceAndSupervisor(t *testing.T) {
	cfg := Defaults()
	cfg.TokenService.URL = "ftp://nope"
	cfg.Supervisor.MaxIterations = 0
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	ve, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("error type = %T", err)
	}
	if len(ve.Errors) != 2 {
		t.Errorf("got %d errors, want 2: %v", len(ve.Errors), ve.Errors)
	}
}

func TestValidateGateway(t *testing.T) {
	cfg := Defaults()
	cfg.Gateway.Addr = "no-port"
	assertValidationError(t, cfg, "gateway.addr")

	cfg = Defaults()
	cfg.Gateway.Auth.Type = "static"
	assertValidationError(t, cfg, "gateway.auth.tokens")

	cfg = Defaults()
	cfg.Gateway.Auth.Type = "static"
	cfg.Gateway.Auth.Tokens = []TokenConfig{{Token: "t"}}
	assertValidationError(t, cfg, "user_id")

	cfg = Defaults()
	cfg.Gateway.Auth.Type = "oauth"
	assertValidationError(t, cfg, "gateway.auth.type")

	cfg = Defaults()
	cfg.Gateway.Enabled = false
	cfg.Gateway.Addr = ""
	if err := Validate(cfg); err != nil {
		t.Errorf("disabled gateway should skip checks: %v", err)
	}
}

func TestValidateMaintenance(t *testing.T) {
	cfg := Defaults()
	cfg.Maintenance.Schedule = ""
	assertValidationError(t, cfg, "maintenance.schedule")

	cfg = Defaults()
	cfg.Maintenance.RecordingRetention = -time.Hour
	assertValidationError(t, cfg, "maintenance durations")

	cfg = Defaults()
	cfg.Maintenance = MaintenanceConfig{}
	if err := Validate(cfg); err != nil {
		t.Errorf("disabled maintenance should validate: %v", err)
	}
}

func TestValidateLoggerFormat(t *testing.T) {
	cfg := Defaults()
	cfg.Logger.Format = "xml"
	assertValidationError(t, cfg, "logger.format")
}
