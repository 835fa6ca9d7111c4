// Package console is the terminal client of a wingman gateway: transcript,
// connection status and slash commands for driving a session.
package console

import (
	"wingman/internal/domain"
	"wingman/internal/usecase"
)

// EventMsg carries a bus event forwarded by the gateway.
type EventMsg struct {
	Event domain.Event
}

// ClosedMsg signals that the gateway connection ended.
type ClosedMsg struct{}

// QuitMsg asks the program to exit.
type QuitMsg struct{}

// statusMsg is the result of an RPC that returns the orchestrator status.
type statusMsg struct {
	Status usecase.Status
}

// transcriptMsg is a full transcript snapshot.
type transcriptMsg struct {
	Items []domain.TranscriptItem
}

// sessionsMsg is the session list.
type sessionsMsg struct {
	Sessions []domain.SessionSummary
}

// noticeMsg is a one-line message for the notice area.
type noticeMsg struct {
	Text  string
	Error bool
}
