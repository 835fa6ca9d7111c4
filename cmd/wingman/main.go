package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"wingman/internal/infra/config"
	"wingman/internal/infra/logger"
	"wingman/internal/infra/tracer"
	"wingman/internal/usecase/eventbus"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			showUsage()
			return
		case "--version", "version":
			fmt.Println("wingman", version)
			return
		}
	}

	if len(os.Args) < 2 || strings.HasPrefix(os.Args[1], "-") {
		if err := runServe(); err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
		return
	}

	switch os.Args[1] {
	case "serve":
		if err := runServe(); err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
	case "sessions":
		if err := runSessions(os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "sessions: %v\n", err)
			os.Exit(1)
		}
	case "console":
		if err := runConsole(); err != nil {
			fmt.Fprintf(os.Stderr, "console: %v\n", err)
			os.Exit(1)
		}
	case "doctor":
		if err := runDoctor(); err != nil {
			fmt.Fprintf(os.Stderr, "doctor: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'wingman --help' for usage information.\n", os.Args[1])
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`wingman - realtime voice assistant for field sales check-ins

USAGE:
    wingman [COMMAND] [FLAGS]

COMMANDS:
    serve       Run the gateway and orchestrators (default)
    console     Attach a terminal client to a running gateway
    sessions    List the stored check-in sessions of a user
    doctor      Run health checks on your setup
    version     Print the version

FLAGS:
    -h, --help         Show this help message
    --config PATH      Specify config file path (default: ./config.yaml)
    --user ID          User whose sessions to list (sessions only)
    --url URL          Gateway endpoint (console only, default from config)
    --token TOKEN      Gateway token (console only, or WINGMAN_CONSOLE_TOKEN)

CONFIGURATION:
    Config file: ./config.yaml
    Environment: WINGMAN_* variables override config
    Secrets:     "enc:" values are decrypted with WINGMAN_CONFIG_KEY

EXAMPLES:
    wingman                               # Serve with config.yaml
    wingman serve --config /etc/wingman.yaml
    wingman sessions --user ae-42         # Show ae-42's sessions
    wingman console --token $TOKEN        # Chat from the terminal
    wingman doctor                        # Check system health`)
}

// configPath resolves --config, then WINGMAN_CONFIG, then ./config.yaml.
func configPath() string {
	if p := flagValue(os.Args, "--config"); p != "" {
		return p
	}
	if p := os.Getenv("WINGMAN_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}

// flagValue returns the value of "--name value" or "--name=value" in args.
func flagValue(args []string, name string) string {
	for i, arg := range args {
		if arg == name && i+1 < len(args) {
			return args[i+1]
		}
		if strings.HasPrefix(arg, name+"=") {
			return strings.TrimPrefix(arg, name+"=")
		}
	}
	return ""
}

func runServe() error {
	// 1. Config
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// 2. Logger & Tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx := context.Background()
	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(ctx)

	// 3. Event bus
	bus := eventbus.New(log)
	defer bus.Close()

	// 4. Runtime (store, adapters, hub, gateway)
	rt, err := initRuntime(ctx, cfg, bus, log)
	if err != nil {
		return fmt.Errorf("runtime: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := rt.Close(shutdownCtx); err != nil {
			log.Error("runtime cleanup error", "error", err)
		}
	}()

	// 5. Graceful shutdown
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("wingman started",
		"version", version,
		"storage", rt.Store.Name(),
		"agent_set", cfg.Realtime.AgentSet,
		"codec", cfg.Realtime.Codec,
	)

	// 6. Maintenance
	if err := rt.Scheduler.Start(ctx); err != nil {
		return fmt.Errorf("maintenance: %w", err)
	}

	// 7. Gateway
	if rt.Gateway == nil {
		log.Warn("gateway disabled; nothing to serve")
		<-ctx.Done()
		return nil
	}
	if err := rt.Gateway.Start(ctx); err != nil {
		return fmt.Errorf("gateway: %w", err)
	}
	log.Info("shutting down")
	return nil
}
