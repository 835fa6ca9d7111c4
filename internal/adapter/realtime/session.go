// Package realtime implements the realtime transport over a WebSocket.
package realtime

import (
	"encoding/json"
	"fmt"
	"strings"

	"wingman/internal/domain"
)

// TransferPrefix prefixes the name of every hand-off tool.
const TransferPrefix = "transfer_to_"

// transferParams is the parameter schema of a hand-off tool.
var transferParams = json.RawMessage(`{"type":"object","properties":{"rationale_for_transfer":{"type":"string","description":"The reasoning why this transfer is needed."},"conversation_context":{"type":"string","description":"Relevant context from the conversation that will help the recipient perform the correct action."}},"required":["rationale_for_transfer","conversation_context"],"additionalProperties":false}`)

type inputTranscription struct {
	Model string `json:"model"`
}

// sessionConfig is the session object of the configuring session.update.
type sessionConfig struct {
	Modalities              []string                `json:"modalities"`
	Instructions            string                  `json:"instructions"`
	Voice                   string                  `json:"voice,omitempty"`
	Tools                   []domain.ToolDefinition `json:"tools"`
	InputAudioFormat        string                  `json:"input_audio_format"`
	OutputAudioFormat       string                  `json:"output_audio_format"`
	InputAudioTranscription *inputTranscription     `json:"input_audio_transcription,omitempty"`
}

// TransferToolName returns the hand-off tool name for agent.
func TransferToolName(agent string) string {
	return TransferPrefix + agent
}

// transferTarget reports the agent a hand-off tool name points at.
func transferTarget(name string) (string, bool) {
	if !strings.HasPrefix(name, TransferPrefix) {
		return "", false
	}
	target := strings.TrimPrefix(name, TransferPrefix)
	return target, target != ""
}

// agentTools returns the tools visible to agent: the catalogue entries it
// names, followed by one transfer tool per hand-off target in the set.
func agentTools(agent domain.AgentDescriptor, set domain.AgentSet, catalogue []domain.ToolDefinition) []domain.ToolDefinition {
	allowed := make(map[string]bool, len(agent.Tools))
	for _, name := range agent.Tools {
		allowed[name] = true
	}
	tools := make([]domain.ToolDefinition, 0, len(agent.Tools)+len(agent.Handoffs))
	for _, def := range catalogue {
		if allowed[def.Name] {
			tools = append(tools, def)
		}
	}
	for _, name := range agent.Handoffs {
		target, ok := set.Find(name)
		if !ok {
			continue
		}
		desc := fmt.Sprintf("Triggers a transfer of the user to a more specialized agent. %s", target.Description)
		tools = append(tools, domain.ToolDefinition{
			Type:        "function",
			Name:        TransferToolName(target.Name),
			Description: strings.TrimSpace(desc),
			Parameters:  transferParams,
		})
	}
	return tools
}

// sessionUpdate builds the session.update configuring agent.
func sessionUpdate(agent domain.AgentDescriptor, set domain.AgentSet, catalogue []domain.ToolDefinition, codec domain.Codec, transcribeModel string) domain.ClientEvent {
	cfg := sessionConfig{
		Modalities:        []string{"text", "audio"},
		Instructions:      agent.Instructions,
		Voice:             agent.Voice,
		Tools:             agentTools(agent, set, catalogue),
		InputAudioFormat:  codec.AudioFormat(),
		OutputAudioFormat: codec.AudioFormat(),
	}
	if transcribeModel != "" {
		cfg.InputAudioTranscription = &inputTranscription{Model: transcribeModel}
	}
	return domain.ClientEvent{Type: domain.ClientSessionUpdate, Session: cfg}
}
