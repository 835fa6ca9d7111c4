package main

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"wingman/internal/adapter/store"
	"wingman/internal/infra/config"
)

// CheckStatus represents the result of a health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // optional fix suggestion
}

// Check is a named health check function.
type Check struct {
	Name string
	Fn   func(cfg *config.Config) CheckResult
}

var errNoConfig = CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}

// runDoctor executes all health checks and reports results.
func runDoctor() error {
	cfgPath := configPath()

	// Some checks work without a config.
	cfg, cfgErr := config.Load(cfgPath)

	checks := []Check{
		{Name: "Config file", Fn: checkConfigFile(cfgPath, cfgErr)},
		{Name: "Supervisor API key", Fn: checkSupervisorKey},
		{Name: "Token service", Fn: checkTokenService},
		{Name: "Storage", Fn: checkStorage},
		{Name: "Recordings", Fn: checkRecordingsDir},
		{Name: "Gateway address", Fn: checkGatewayAddr},
		{Name: "Gateway auth", Fn: checkGatewayAuth},
	}

	fmt.Println("wingman doctor")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println()

	var pass, warn, fail int
	for _, check := range checks {
		result := check.Fn(cfg)
		result.Name = check.Name

		fmt.Printf("  %s %s: %s\n", statusIcon(result.Status), result.Name, result.Message)
		if result.Fix != "" {
			fmt.Printf("      Fix: %s\n", result.Fix)
		}

		switch result.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}

	fmt.Println()
	fmt.Println(strings.Repeat("-", 50))
	fmt.Printf("Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)

	if fail > 0 {
		fmt.Println("\nFix the FAIL issues above to ensure wingman runs correctly.")
		return fmt.Errorf("%d check(s) failed", fail)
	}
	if warn > 0 {
		fmt.Println("\nwingman should work, but consider addressing the warnings.")
	} else {
		fmt.Println("\nAll checks passed! wingman is ready to run.")
	}
	return nil
}

func statusIcon(s CheckStatus) string {
	switch s {
	case StatusPass:
		return "[PASS]"
	case StatusWarn:
		return "[WARN]"
	case StatusFail:
		return "[FAIL]"
	default:
		return "[????]"
	}
}

// checkConfigFile reports whether the config file exists and loads. A
// missing file is a warning because defaults apply.
func checkConfigFile(cfgPath string, cfgErr error) func(*config.Config) CheckResult {
	return func(_ *config.Config) CheckResult {
		if cfgErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("config error: %v", cfgErr),
				Fix:     "Check config.yaml syntax and the WINGMAN_* environment variables",
			}
		}
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("no config file at %s, using defaults", cfgPath),
				Fix:     "Create config.yaml or pass --config PATH",
			}
		}
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("config loaded from %s", cfgPath),
		}
	}
}

// checkSupervisorKey verifies the escalation model can authenticate.
func checkSupervisorKey(cfg *config.Config) CheckResult {
	if cfg == nil {
		return errNoConfig
	}
	if cfg.Supervisor.APIKey == "" {
		return CheckResult{
			Status:  StatusWarn,
			Message: "no supervisor API key, escalations will fail",
			Fix:     "Set OPENAI_API_KEY or supervisor.api_key",
		}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("API key configured for model %s", cfg.Supervisor.Model),
	}
}

// checkTokenService dials the credential endpoint without minting a token.
func checkTokenService(cfg *config.Config) CheckResult {
	if cfg == nil {
		return errNoConfig
	}
	u, err := url.Parse(cfg.TokenService.URL)
	if err != nil || u.Host == "" {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("invalid token service URL %q", cfg.TokenService.URL),
		}
	}
	host := u.Host
	if u.Port() == "" {
		port := "80"
		if u.Scheme == "https" {
			port = "443"
		}
		host = net.JoinHostPort(u.Hostname(), port)
	}

	start := time.Now()
	conn, err := net.DialTimeout("tcp", host, 3*time.Second)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("cannot reach %s: %v", host, err),
			Fix:     "Start the token service or set WINGMAN_TOKEN_SERVICE_URL",
		}
	}
	conn.Close()
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("%s reachable (latency: %dms)", host, time.Since(start).Milliseconds()),
	}
}

// checkStorage opens the configured backend.
func checkStorage(cfg *config.Config) CheckResult {
	if cfg == nil {
		return errNoConfig
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	kv, closer, err := store.Open(ctx, cfg.Storage)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("%s backend unavailable: %v", cfg.Storage.Backend, err),
			Fix:     "Check storage.data_dir permissions or storage.redis_url",
		}
	}
	defer closer.Close()

	if kv.Name() == "memory" {
		return CheckResult{
			Status:  StatusWarn,
			Message: "memory backend, sessions are lost on restart",
		}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("%s backend ready", kv.Name()),
	}
}

// checkRecordingsDir verifies exported recordings can be written.
func checkRecordingsDir(cfg *config.Config) CheckResult {
	if cfg == nil {
		return errNoConfig
	}
	dir, _ := filepath.Abs(cfg.Audio.RecordingsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("recordings directory %s cannot be created: %v", dir, err),
			Fix:     fmt.Sprintf("Create the directory: mkdir -p %s", dir),
		}
	}

	testFile := filepath.Join(dir, ".doctor-check")
	if err := os.WriteFile(testFile, []byte("ok"), 0o644); err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("recordings directory %s is not writable: %v", dir, err),
			Fix:     fmt.Sprintf("Fix permissions: chmod 755 %s", dir),
		}
	}
	os.Remove(testFile)

	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("recordings directory %s writable", dir),
	}
}

// checkGatewayAddr verifies the gateway can bind its address.
func checkGatewayAddr(cfg *config.Config) CheckResult {
	if cfg == nil {
		return errNoConfig
	}
	if !cfg.Gateway.Enabled {
		return CheckResult{
			Status:  StatusWarn,
			Message: "gateway disabled, no client can connect",
		}
	}
	ln, err := net.Listen("tcp", cfg.Gateway.Addr)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("cannot listen on %s: %v", cfg.Gateway.Addr, err),
			Fix:     "Stop the process using the port or set WINGMAN_GATEWAY_ADDR",
		}
	}
	ln.Close()
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("%s available", cfg.Gateway.Addr),
	}
}

// checkGatewayAuth warns when every client shares one identity.
func checkGatewayAuth(cfg *config.Config) CheckResult {
	if cfg == nil {
		return errNoConfig
	}
	if cfg.Gateway.Auth.Type != "static" {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("no token auth, all clients act as %q", cfg.Identity.DefaultUser),
			Fix:     "Set gateway.auth.type to static and list tokens per user",
		}
	}
	users := make(map[string]struct{})
	for _, t := range cfg.Gateway.Auth.Tokens {
		users[t.UserID] = struct{}{}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("%d token(s) for %d user(s)", len(cfg.Gateway.Auth.Tokens), len(users)),
	}
}
