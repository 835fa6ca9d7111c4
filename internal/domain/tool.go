package domain

import (
	"context"
	"encoding/json"
)

// ToolDefinition describes a function tool in the model wire format.
type ToolDefinition struct {
	Type        string          `json:"type"` // always "function"
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolExecutor runs a tool with decoded arguments. The result is serialised
// to JSON as the function_call_output payload.
type ToolExecutor func(ctx context.Context, args map[string]any) (any, error)

// Item types used by the function-call protocol.
const (
	ItemTypeFunctionCall       = "function_call"
	ItemTypeFunctionCallOutput = "function_call_output"
	ItemTypeMessage            = "message"
)

// FunctionCallItem is a model request to invoke a tool.
type FunctionCallItem struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	CallID    string `json:"call_id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// FunctionCallOutputItem carries a tool result back to the model.
type FunctionCallOutputItem struct {
	Type   string `json:"type"`
	CallID string `json:"call_id"`
	Output string `json:"output"`
}

// InputMessage is a plain message item of a Responses request.
type InputMessage struct {
	Type    string `json:"type"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ResponsesRequest is the body of a Responses API call.
type ResponsesRequest struct {
	Model             string           `json:"model"`
	Instructions      string           `json:"instructions,omitempty"`
	Input             []any            `json:"input"`
	Tools             []ToolDefinition `json:"tools,omitempty"`
	ParallelToolCalls *bool            `json:"parallel_tool_calls,omitempty"`
}

// ResponsesResponse is the subset of a Responses API reply the core reads.
type ResponsesResponse struct {
	ID     string            `json:"id,omitempty"`
	Output []json.RawMessage `json:"output"`
	Error  json.RawMessage   `json:"error,omitempty"`
}

// outputEnvelope peeks at the type of an output item.
type outputEnvelope struct {
	Type string `json:"type"`
}

// FunctionCalls returns the function_call items of the response in order.
// Items that fail to decode are skipped.
func (r ResponsesResponse) FunctionCalls() []FunctionCallItem {
	var calls []FunctionCallItem
	for _, raw := range r.Output {
		var env outputEnvelope
		if json.Unmarshal(raw, &env) != nil || env.Type != ItemTypeFunctionCall {
			continue
		}
		var call FunctionCallItem
		if json.Unmarshal(raw, &call) != nil {
			continue
		}
		calls = append(calls, call)
	}
	return calls
}

type outputContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type outputMessage struct {
	Type    string          `json:"type"`
	Role    string          `json:"role"`
	Content []outputContent `json:"content"`
}

// OutputText concatenates the text of assistant message items.
func (r ResponsesResponse) OutputText() string {
	var text string
	for _, raw := range r.Output {
		var msg outputMessage
		if json.Unmarshal(raw, &msg) != nil || msg.Type != ItemTypeMessage {
			continue
		}
		for _, c := range msg.Content {
			if c.Type == "output_text" || c.Type == "text" {
				text += c.Text
			}
		}
	}
	return text
}

// ToolCallRecorder receives diagnostic breadcrumbs while tool calls resolve.
type ToolCallRecorder func(title string, data any)
