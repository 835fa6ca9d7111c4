package usecase

import (
	"context"
	"encoding/json"
	"strings"

	"wingman/internal/domain"
)

// SessionSearchTool is the supervisor tool that searches the user's earlier
// sessions for visible messages mentioning a query.
const SessionSearchTool = "searchPastSessions"

const sessionSearchLimit = 10

// SessionSearchDefinition describes SessionSearchTool.
func SessionSearchDefinition() domain.ToolDefinition {
	return domain.ToolDefinition{
		Type:        "function",
		Name:        SessionSearchTool,
		Description: "Searches the AE's earlier check-in sessions for messages mentioning a customer, competitor or topic.",
		Parameters: json.RawMessage(`{
  "type": "object",
  "properties": {
    "query": {"type": "string", "description": "Case-insensitive text to look for."}
  },
  "required": ["query"],
  "additionalProperties": false
}`),
	}
}

type sessionMatch struct {
	Session   string `json:"session"`
	Role      string `json:"role"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// SessionSearchExecutor searches the sessions of s other than the active one.
func SessionSearchExecutor(s *SessionStore) domain.ToolExecutor {
	return func(_ context.Context, args map[string]any) (any, error) {
		query, _ := args["query"].(string)
		query = strings.ToLower(strings.TrimSpace(query))
		matches := []sessionMatch{}
		if query == "" {
			return map[string]any{"matches": matches}, nil
		}

		active := s.ActiveID()
		for _, sess := range s.Sessions() {
			if sess.ID == active {
				continue
			}
			for _, it := range sess.TranscriptItems {
				if !it.Visible() || !strings.Contains(strings.ToLower(it.Title), query) {
					continue
				}
				matches = append(matches, sessionMatch{
					Session:   sess.Title,
					Role:      string(it.Role),
					Text:      it.Title,
					Timestamp: it.Timestamp,
				})
				if len(matches) == sessionSearchLimit {
					return map[string]any{"matches": matches}, nil
				}
			}
		}
		return map[string]any{"matches": matches}, nil
	}
}
