package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wingman/internal/adapter/gateway"
	"wingman/internal/adapter/tui/console"
	"wingman/internal/infra/config"
	"wingman/internal/infra/logger"
)

// runConsole attaches the terminal console to a running gateway.
func runConsole() error {
	url := flagValue(os.Args, "--url")
	if url == "" {
		cfg, err := config.Load(configPath())
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		url = gatewayURL(cfg.Gateway.Addr)
	}
	token := flagValue(os.Args, "--token")
	if token == "" {
		token = os.Getenv("WINGMAN_CONSOLE_TOKEN")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	dialCtx, dialCancel := context.WithTimeout(ctx, 10*time.Second)
	client, err := gateway.Dial(dialCtx, url, token, logger.Discard())
	dialCancel()
	if err != nil {
		return fmt.Errorf("connect to %s: %w", url, err)
	}
	defer client.Close()

	return console.Run(ctx, client, url)
}

// gatewayURL builds the WebSocket endpoint of a gateway listening on addr.
// Wildcard hosts are dialed on loopback.
func gatewayURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		host, port = addr, "8790"
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "ws://" + net.JoinHostPort(host, port) + "/ws"
}
