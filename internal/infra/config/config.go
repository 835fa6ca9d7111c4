package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Identity     IdentityConfig     `yaml:"identity"`
	Storage      StorageConfig      `yaml:"storage"`
	Realtime     RealtimeConfig     `yaml:"realtime"`
	TokenService TokenServiceConfig `yaml:"token_service"`
	Supervisor   SupervisorConfig   `yaml:"supervisor"`
	Tools        ToolsConfig        `yaml:"tools"`
	Audio        AudioConfig        `yaml:"audio"`
	Gateway      GatewayConfig      `yaml:"gateway"`
	Maintenance  MaintenanceConfig  `yaml:"maintenance"`
	Logger       LoggerConfig       `yaml:"logger"`
	Tracer       TracerConfig       `yaml:"tracer"`
}

// IdentityConfig selects the owner used when no authenticated user is known.
type IdentityConfig struct {
	DefaultUser string `yaml:"default_user"`
}

// StorageConfig selects the persistence backend for sessions and preferences.
type StorageConfig struct {
	Backend  string `yaml:"backend"` // "sqlite", "file", "memory", "redis"
	DataDir  string `yaml:"data_dir"`
	RedisURL string `yaml:"redis_url,omitempty"`
	// WriteTimeout bounds a single write-through persist.
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// RealtimeConfig holds the realtime transport settings.
type RealtimeConfig struct {
	URL            string        `yaml:"url"`
	Model          string        `yaml:"model"`
	Codec          string        `yaml:"codec"`     // "opus", "pcmu", "pcma"
	AgentSet       string        `yaml:"agent_set"` // key into the agent set registry
	Agent          string        `yaml:"agent"`     // optional root agent override
	DialTimeout    time.Duration `yaml:"dial_timeout"`
	TranscribeWith string        `yaml:"transcribe_with"`
}

// TokenServiceConfig holds the ephemeral credential endpoint settings.
type TokenServiceConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
	// BreakerFailures is the number of consecutive failures that open the breaker.
	BreakerFailures int `yaml:"breaker_failures"`
}

// SupervisorConfig holds the escalation model settings.
type SupervisorConfig struct {
	BaseURL         string        `yaml:"base_url"`
	APIKey          string        `yaml:"api_key"`
	Model           string        `yaml:"model"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxIterations   int           `yaml:"max_iterations"`
	BreakerFailures int           `yaml:"breaker_failures"`
}

// ToolsConfig holds tool execution settings.
type ToolsConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// AudioConfig holds playback and recording defaults.
type AudioConfig struct {
	PushToTalk    bool   `yaml:"push_to_talk"`
	Playback      bool   `yaml:"playback"`
	RecordingsDir string `yaml:"recordings_dir"`
	// RecorderBuffer is the number of frames queued before the recorder drops.
	RecorderBuffer int `yaml:"recorder_buffer"`
}

// GatewayConfig holds WebSocket gateway settings.
type GatewayConfig struct {
	Enabled        bool       `yaml:"enabled"`
	Addr           string     `yaml:"addr"`
	Auth           AuthConfig `yaml:"auth"`
	RequestsPerMin int        `yaml:"requests_per_min"`
	Burst          int        `yaml:"burst"`
}

// AuthConfig holds gateway authentication settings.
type AuthConfig struct {
	Type   string        `yaml:"type"` // "static" or ""
	Tokens []TokenConfig `yaml:"tokens,omitempty"`
}

// TokenConfig maps a gateway bearer token to a user identity.
type TokenConfig struct {
	Token  string `yaml:"token"`
	Name   string `yaml:"name"`
	UserID string `yaml:"user_id"`
}

// MaintenanceConfig schedules housekeeping. A zero retention or idle
// duration disables that task.
type MaintenanceConfig struct {
	Schedule           string        `yaml:"schedule"` // cron expression or duration
	RecordingRetention time.Duration `yaml:"recording_retention"`
	OrchestratorIdle   time.Duration `yaml:"orchestrator_idle"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
	Endpoint string `yaml:"endpoint"`
}

// defaultDataDir returns the persistent data directory under $HOME/.wingman/data.
// Falls back to "./data" if $HOME cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".wingman", "data")
}

// Defaults returns a Config populated with sensible defaults.
func Defaults() *Config {
	dataDir := defaultDataDir()
	return &Config{
		Identity: IdentityConfig{DefaultUser: "default"},
		Storage: StorageConfig{
			Backend:      "sqlite",
			DataDir:      dataDir,
			WriteTimeout: 5 * time.Second,
		},
		Realtime: RealtimeConfig{
			URL:            "wss://api.openai.com/v1/realtime",
			Model:          "gpt-4o-realtime-preview-2025-06-03",
			Codec:          "opus",
			AgentSet:       "chatSupervisor",
			DialTimeout:    15 * time.Second,
			TranscribeWith: "gpt-4o-mini-transcribe",
		},
		TokenService: TokenServiceConfig{
			URL:             "http://127.0.0.1:3000/api/session",
			Timeout:         10 * time.Second,
			BreakerFailures: 5,
		},
		Supervisor: SupervisorConfig{
			BaseURL:         "https://api.openai.com/v1",
			Model:           "gpt-4.1",
			Timeout:         60 * time.Second,
			MaxIterations:   5,
			BreakerFailures: 5,
		},
		Tools: ToolsConfig{Timeout: 30 * time.Second},
		Audio: AudioConfig{
			PushToTalk:     true,
			Playback:       true,
			RecordingsDir:  filepath.Join(dataDir, "recordings"),
			RecorderBuffer: 256,
		},
		Gateway: GatewayConfig{
			Enabled:        true,
			Addr:           "127.0.0.1:8790",
			RequestsPerMin: 600,
			Burst:          60,
		},
		Maintenance: MaintenanceConfig{
			Schedule:           "@every 10m",
			RecordingRetention: 30 * 24 * time.Hour,
			OrchestratorIdle:   30 * time.Minute,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}

// Load reads a YAML config file, applies env var overrides, and decrypts secrets.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return finish(cfg)
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	if err := validatePermissions(absPath); err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	ApplyEnvOverrides(cfg)

	if passphrase := os.Getenv("WINGMAN_CONFIG_KEY"); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps WINGMAN_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("WINGMAN_DEFAULT_USER"); v != "" {
		cfg.Identity.DefaultUser = v
	}
	if v := os.Getenv("WINGMAN_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("WINGMAN_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("WINGMAN_REDIS_URL"); v != "" {
		cfg.Storage.RedisURL = v
	}
	if v := os.Getenv("WINGMAN_REALTIME_URL"); v != "" {
		cfg.Realtime.URL = v
	}
	if v := os.Getenv("WINGMAN_REALTIME_MODEL"); v != "" {
		cfg.Realtime.Model = v
	}
	if v := os.Getenv("WINGMAN_CODEC"); v != "" {
		cfg.Realtime.Codec = v
	}
	if v := os.Getenv("WINGMAN_AGENT_SET"); v != "" {
		cfg.Realtime.AgentSet = v
	}
	if v := os.Getenv("WINGMAN_TOKEN_SERVICE_URL"); v != "" {
		cfg.TokenService.URL = v
	}
	if v := os.Getenv("WINGMAN_SUPERVISOR_MODEL"); v != "" {
		cfg.Supervisor.Model = v
	}
	if v := os.Getenv("WINGMAN_SUPERVISOR_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Supervisor.MaxIterations = n
		}
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && cfg.Supervisor.APIKey == "" {
		cfg.Supervisor.APIKey = v
	}
	if v := os.Getenv("WINGMAN_TOOLS_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Tools.Timeout = d
		}
	}
	if v := os.Getenv("WINGMAN_PUSH_TO_TALK"); v != "" {
		cfg.Audio.PushToTalk = v == "true"
	}
	if v := os.Getenv("WINGMAN_GATEWAY_ADDR"); v != "" {
		cfg.Gateway.Addr = v
	}
	if v := os.Getenv("WINGMAN_GATEWAY_TOKENS"); v != "" {
		// Format: "token:user_id,token2:user_id2"
		for _, pair := range splitAndTrim(v, ",") {
			tok, user, ok := strings.Cut(pair, ":")
			if !ok || tok == "" {
				continue
			}
			cfg.Gateway.Auth.Type = "static"
			cfg.Gateway.Auth.Tokens = append(cfg.Gateway.Auth.Tokens, TokenConfig{
				Token:  tok,
				Name:   user,
				UserID: user,
			})
		}
	}
	if v := os.Getenv("WINGMAN_RECORDING_RETENTION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Maintenance.RecordingRetention = d
		}
	}
	if v := os.Getenv("WINGMAN_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("WINGMAN_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("WINGMAN_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
}

// splitAndTrim splits s by sep and trims whitespace from each element.
func splitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// decryptSecrets finds "enc:..." values in secret fields and decrypts them.
func decryptSecrets(cfg *Config, passphrase string) error {
	if err := decryptField(&cfg.Supervisor.APIKey, passphrase); err != nil {
		return fmt.Errorf("supervisor api_key: %w", err)
	}
	if err := decryptField(&cfg.Storage.RedisURL, passphrase); err != nil {
		return fmt.Errorf("storage redis_url: %w", err)
	}
	for i := range cfg.Gateway.Auth.Tokens {
		if err := decryptField(&cfg.Gateway.Auth.Tokens[i].Token, passphrase); err != nil {
			return fmt.Errorf("gateway auth token %s: %w", cfg.Gateway.Auth.Tokens[i].Name, err)
		}
	}
	return nil
}

func decryptField(fp *string, passphrase string) error {
	if !strings.HasPrefix(*fp, "enc:") {
		return nil
	}
	decrypted, err := DecryptValue(strings.TrimPrefix(*fp, "enc:"), passphrase)
	if err != nil {
		return err
	}
	*fp = decrypted
	return nil
}

// EncryptValue encrypts a plaintext value with AES-256-GCM using a passphrase.
func EncryptValue(plaintext, passphrase string) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	// Format: hex(salt) + ":" + hex(nonce+ciphertext)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(ciphertext), nil
}

// DecryptValue decrypts an AES-256-GCM encrypted value.
func DecryptValue(encrypted, passphrase string) (string, error) {
	saltHex, dataHex, ok := strings.Cut(encrypted, ":")
	if !ok {
		return "", fmt.Errorf("invalid encrypted format")
	}

	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}
	data, err := hex.DecodeString(dataHex)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	plaintext, err := gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// deriveKey uses Argon2id to derive a 32-byte key from passphrase + salt.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
}

// validatePermissions checks the config file has restrictive permissions.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	// Allow 0600 and 0644 (readable by others but not writable)
	if mode := info.Mode().Perm(); mode&0o077 > 0o044 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
