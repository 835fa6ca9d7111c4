// Package uxerror translates raw errors into user-friendly messages with
// recovery hints for the console.
package uxerror

import (
	"errors"
	"fmt"
	"strings"

	"wingman/internal/adapter/tui/theme"
	"wingman/internal/domain"
)

// FriendlyError is a user-facing error with suggestions for recovery.
type FriendlyError struct {
	Title   string   // short heading, e.g. "Not Connected"
	Message string   // one-liner explanation
	Hints   []string // actionable recovery suggestions
	Raw     string   // original error text (for debug)
}

// Render formats the FriendlyError for the console notice area.
func (fe FriendlyError) Render() string {
	var sb strings.Builder
	sb.WriteString(fe.Title)
	if fe.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(fe.Message)
	}
	for _, h := range fe.Hints {
		sb.WriteString(fmt.Sprintf("\n  %s %s", theme.Symbols.Bullet, h))
	}
	return sb.String()
}

// coder is implemented by errors that carry a code decided elsewhere, such
// as an RPC failure reported by the gateway.
type coder interface {
	ErrorCode() domain.ErrorCode
}

// CodeOf returns the error code carried by err, falling back to the
// sentinel mapping of the domain package.
func CodeOf(err error) domain.ErrorCode {
	var c coder
	if errors.As(err, &c) {
		return c.ErrorCode()
	}
	return domain.ErrorCodeOf(err)
}

type errorPattern struct {
	match   func(err error) bool
	produce func(err error) FriendlyError
}

var patterns = []errorPattern{
	{
		match:   hasCode(domain.CodeNotConnected),
		produce: constantError("Not Connected", "The realtime session is closed.", []string{"Run /connect first"}),
	},
	{
		match:   hasCode(domain.CodeSessionNotFound),
		produce: constantError("Unknown Conversation", "No stored conversation has that id.", []string{"List conversations with /sessions"}),
	},
	{
		match:   hasCode(domain.CodeNoCredential, domain.CodeCredentialFailure, domain.CodeCredentialTimeout),
		produce: constantError("Credential Unavailable", "The token service did not issue an ephemeral key.", []string{"Check token_service.url in config", "Run 'wingman doctor' on the server"}),
	},
	{
		match:   hasCode(domain.CodeTransportDial),
		produce: constantError("Realtime Service Unreachable", "The realtime endpoint refused the connection.", []string{"Check realtime.url in config", "Try /connect again"}),
	},
	{
		match:   hasCode(domain.CodeCircuitOpen),
		produce: constantError("Service Cooling Down", "Recent calls failed; the service is paused briefly.", []string{"Wait a moment before retrying"}),
	},
	{
		match:   hasCode(domain.CodeRecorderInactive),
		produce: constantError("Nothing Recorded", "The session has no captured audio yet.", []string{"Connect and talk before /export"}),
	},
	{
		match:   hasCode(domain.CodeRateLimit),
		produce: constantError("Rate Limited", "Too many requests sent to the gateway.", []string{"Wait a moment before retrying"}),
	},
	{
		match:   hasCode(domain.CodeGatewayAuth, domain.CodeAuthInvalid),
		produce: constantError("Authentication Failed", "The gateway rejected the token.", []string{"Pass --token or set WINGMAN_CONSOLE_TOKEN"}),
	},
	{
		match: hasCode(domain.CodeRPCInvalidPayload, domain.CodeInvalidInput, domain.CodeRPCMethodNotFound),
		produce: func(err error) FriendlyError {
			return FriendlyError{Title: "Invalid Request", Message: err.Error(), Hints: []string{"See /help for usage"}, Raw: err.Error()}
		},
	},
	{
		match:   hasCode(domain.CodeTransportClosed),
		produce: constantError("Gateway Connection Lost", "The connection to the gateway ended.", []string{"Check that 'wingman serve' is running", "Restart the console"}),
	},

	// Network / connectivity patterns (string matching for external errors).
	{
		match:   containsAny("connection refused", "dial tcp", "no such host"),
		produce: constantError("Connection Failed", "Could not reach the gateway.", []string{"Check that 'wingman serve' is running", "Verify --url or gateway.addr in config"}),
	},
	{
		match:   containsAny("deadline exceeded", "timeout", "context deadline"),
		produce: constantError("Request Timed Out", "The request took too long to complete.", []string{"Check your network connection", "Try again"}),
	},
}

// Humanize converts a raw error into a FriendlyError with recovery hints.
func Humanize(err error) FriendlyError {
	if err == nil {
		return FriendlyError{Title: "Unknown Error", Raw: "nil"}
	}

	for _, p := range patterns {
		if p.match(err) {
			return p.produce(err)
		}
	}

	return FriendlyError{
		Title:   "Unexpected Error",
		Message: err.Error(),
		Raw:     err.Error(),
	}
}

func hasCode(codes ...domain.ErrorCode) func(error) bool {
	return func(err error) bool {
		got := CodeOf(err)
		for _, c := range codes {
			if got == c {
				return true
			}
		}
		return false
	}
}

// containsAny returns a match func that checks if the error string contains
// any of the given substrings (case-insensitive).
func containsAny(substrs ...string) func(error) bool {
	return func(err error) bool {
		lower := strings.ToLower(err.Error())
		for _, s := range substrs {
			if strings.Contains(lower, s) {
				return true
			}
		}
		return false
	}
}

// constantError returns a produce func that always returns the same FriendlyError.
func constantError(title, message string, hints []string) func(error) FriendlyError {
	return func(err error) FriendlyError {
		return FriendlyError{
			Title:   title,
			Message: message,
			Hints:   hints,
			Raw:     err.Error(),
		}
	}
}
