package console

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"wingman/internal/adapter/tui/uxerror"
	"wingman/internal/domain"
	"wingman/internal/usecase"
)

// callTimeout bounds one RPC issued from the console.
const callTimeout = 15 * time.Second

// Backend is the RPC side of a gateway connection.
type Backend interface {
	Call(ctx context.Context, method string, params, result any) error
}

type commandDef struct {
	Name        string
	Usage       string
	Description string
}

var commandDefs = []commandDef{
	{"/connect", "/connect", "Open the realtime session"},
	{"/disconnect", "/disconnect", "Close the realtime session"},
	{"/new", "/new", "Start a new conversation"},
	{"/sessions", "/sessions", "List stored conversations"},
	{"/select", "/select <id>", "Switch to a stored conversation"},
	{"/ptt", "/ptt on|off", "Toggle push-to-talk mode"},
	{"/talk", "/talk", "Press or release the talk button"},
	{"/playback", "/playback on|off", "Toggle assistant audio playback"},
	{"/codec", "/codec opus|pcmu|pcma", "Switch the audio codec"},
	{"/expand", "/expand <n>", "Expand or collapse the n-th breadcrumb"},
	{"/export", "/export", "Save the session recording"},
	{"/help", "/help", "Show available commands"},
	{"/quit", "/quit", "Exit the console"},
}

// parseCommand extracts command and args from slash command input.
func parseCommand(input string) (cmd string, args []string, ok bool) {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") {
		return "", nil, false
	}
	parts := strings.Fields(input)
	return strings.ToLower(parts[0]), parts[1:], true
}

func parseOnOff(args []string) (bool, error) {
	if len(args) != 1 {
		return false, fmt.Errorf("expected on or off")
	}
	switch strings.ToLower(args[0]) {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", args[0])
}

func helpText() string {
	var sb strings.Builder
	for i, c := range commandDefs {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "%-24s %s", c.Usage, c.Description)
	}
	return sb.String()
}

func errNotice(err error) tea.Msg {
	return noticeMsg{Text: uxerror.Humanize(err).Render(), Error: true}
}

// callCmd runs method and reports errors as notices; on success done builds
// the resulting message from the decoded result.
func callCmd[T any](b Backend, method string, params any, done func(T) tea.Msg) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		var result T
		if err := b.Call(ctx, method, params, &result); err != nil {
			return errNotice(err)
		}
		return done(result)
	}
}

func statusCall(b Backend, method string, params any) tea.Cmd {
	return callCmd(b, method, params, func(st usecase.Status) tea.Msg {
		return statusMsg{Status: st}
	})
}

func transcriptCall(b Backend) tea.Cmd {
	return callCmd(b, "transcript.get", nil, func(items []domain.TranscriptItem) tea.Msg {
		return transcriptMsg{Items: items}
	})
}

func sessionsCall(b Backend) tea.Cmd {
	return callCmd(b, "session.list", nil, func(list []domain.SessionSummary) tea.Msg {
		return sessionsMsg{Sessions: list}
	})
}

func okCall(b Backend, method string, params any, notice string) tea.Cmd {
	return callCmd(b, method, params, func(map[string]any) tea.Msg {
		if notice == "" {
			return nil
		}
		return noticeMsg{Text: notice}
	})
}

func exportCall(b Backend) tea.Cmd {
	return callCmd(b, "recording.export", nil, func(res map[string]string) tea.Msg {
		return noticeMsg{Text: "recording saved to " + res["path"]}
	})
}
