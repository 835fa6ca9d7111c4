package console

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"wingman/internal/adapter/tui/components"
	"wingman/internal/adapter/tui/theme"
	"wingman/internal/domain"
	"wingman/internal/usecase"
)

// Model is the root Bubble Tea model of the console.
type Model struct {
	backend Backend
	user    string

	transcript components.TranscriptViewModel
	input      textinput.Model
	statusBar  components.StatusBarModel

	status   usecase.Status
	notice   string
	noticeEr bool
	width    int
	height   int
	quitting bool
}

// NewModel creates the console model for user's orchestrator behind b.
func NewModel(b Backend, user string) Model {
	ti := textinput.New()
	ti.Placeholder = "Type a message or /help"
	ti.Prompt = "> "
	ti.PromptStyle = theme.InputPrompt
	ti.PlaceholderStyle = theme.InputPlaceholder
	ti.CharLimit = 0
	ti.Focus()

	sb := components.NewStatusBar()
	sb.Hints = []components.KeyHint{
		{Key: "Enter", Desc: "Send"},
		{Key: "PgUp/PgDn", Desc: "Scroll"},
		{Key: "Ctrl+C", Desc: "Quit"},
	}

	return Model{
		backend:    b,
		user:       user,
		transcript: components.NewTranscriptView(),
		input:      ti,
		statusBar:  sb,
		status:     usecase.Status{State: domain.StateDisconnected},
	}
}

// Init loads the initial status and transcript.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		statusCall(m.backend, "connection.status", nil),
		transcriptCall(m.backend),
	)
}

// Update handles all incoming messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyEnter:
			value := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			if value == "" {
				return m, nil
			}
			return m.submit(value)
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.transcript, cmd = m.transcript.Update(msg)
			return m, cmd
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.transcript, cmd = m.transcript.Update(msg)
		return m, cmd

	case EventMsg:
		return m.handleEvent(msg.Event)

	case statusMsg:
		m.status = msg.Status
		m.refreshStatusBar()
		return m, nil

	case transcriptMsg:
		m.transcript.SetItems(msg.Items)
		return m, nil

	case sessionsMsg:
		m.setNotice(renderSessions(msg.Sessions), false)
		m.layout()
		return m, nil

	case noticeMsg:
		m.setNotice(msg.Text, msg.Error)
		m.layout()
		return m, nil

	case ClosedMsg:
		m.setNotice("gateway connection closed", true)
		m.quitting = true
		return m, tea.Quit

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit dispatches a slash command or sends value as a user message.
func (m Model) submit(value string) (tea.Model, tea.Cmd) {
	m.setNotice("", false)
	cmd, args, ok := parseCommand(value)
	if !ok {
		return m, okCall(m.backend, "text.send", map[string]string{"text": value}, "")
	}

	switch cmd {
	case "/connect":
		return m, statusCall(m.backend, "connection.connect", nil)
	case "/disconnect":
		return m, statusCall(m.backend, "connection.disconnect", nil)
	case "/new":
		return m, tea.Sequence(
			callCmd(m.backend, "session.create", nil, func(s domain.SessionSummary) tea.Msg {
				return noticeMsg{Text: "new conversation " + s.ID}
			}),
			statusCall(m.backend, "connection.status", nil),
		)
	case "/sessions":
		return m, sessionsCall(m.backend)
	case "/select":
		if len(args) != 1 {
			m.setNotice("usage: /select <id>", true)
			return m, nil
		}
		return m, statusCall(m.backend, "session.select", map[string]string{"id": args[0]})
	case "/ptt":
		on, err := parseOnOff(args)
		if err != nil {
			m.setNotice("usage: /ptt on|off", true)
			return m, nil
		}
		return m, statusCall(m.backend, "ptt.mode", map[string]bool{"enabled": on})
	case "/talk":
		if m.status.Speaking {
			return m, statusCall(m.backend, "ptt.release", nil)
		}
		return m, statusCall(m.backend, "ptt.press", nil)
	case "/playback":
		on, err := parseOnOff(args)
		if err != nil {
			m.setNotice("usage: /playback on|off", true)
			return m, nil
		}
		return m, statusCall(m.backend, "playback.set", map[string]bool{"enabled": on})
	case "/codec":
		if len(args) != 1 {
			m.setNotice("usage: /codec opus|pcmu|pcma", true)
			return m, nil
		}
		return m, statusCall(m.backend, "codec.set", map[string]string{"codec": strings.ToLower(args[0])})
	case "/expand":
		id, err := m.breadcrumbID(args)
		if err != nil {
			m.setNotice(err.Error(), true)
			return m, nil
		}
		return m, okCall(m.backend, "transcript.toggle", map[string]string{"id": id}, "")
	case "/export":
		return m, exportCall(m.backend)
	case "/help":
		m.setNotice(helpText(), false)
		m.layout()
		return m, nil
	case "/quit", "/exit":
		m.quitting = true
		return m, tea.Quit
	}
	m.setNotice(fmt.Sprintf("unknown command %s (try /help)", cmd), true)
	return m, nil
}

// breadcrumbID resolves the 1-based breadcrumb index in args.
func (m Model) breadcrumbID(args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("usage: /expand <n>")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 {
		return "", fmt.Errorf("usage: /expand <n>")
	}
	seen := 0
	for _, it := range m.transcript.Items() {
		if it.Type != domain.ItemBreadcrumb {
			continue
		}
		seen++
		if seen == n {
			return it.ItemID, nil
		}
	}
	return "", fmt.Errorf("no breadcrumb #%d", n)
}

func (m Model) handleEvent(ev domain.Event) (tea.Model, tea.Cmd) {
	switch ev.Type {
	case domain.EventTranscriptChanged:
		var items []domain.TranscriptItem
		if err := json.Unmarshal(ev.Payload, &items); err != nil {
			m.setNotice("malformed transcript update", true)
			return m, nil
		}
		m.transcript.SetItems(items)
	case domain.EventConnectionChanged:
		var tr domain.Transition
		if err := json.Unmarshal(ev.Payload, &tr); err == nil {
			m.status.State = tr.To
			if tr.Reason != "" && tr.To == domain.StateDisconnected {
				m.setNotice("disconnected: "+tr.Reason, false)
			}
			m.refreshStatusBar()
		}
		return m, statusCall(m.backend, "connection.status", nil)
	case domain.EventAgentChanged:
		var p struct {
			Agent string `json:"agent"`
		}
		if err := json.Unmarshal(ev.Payload, &p); err == nil && p.Agent != "" {
			m.status.Agent = p.Agent
			m.refreshStatusBar()
		}
	case domain.EventSessionSelected, domain.EventSessionCreated, domain.EventPreferences:
		return m, statusCall(m.backend, "connection.status", nil)
	case domain.EventToolCallStarted:
		var p map[string]any
		_ = json.Unmarshal(ev.Payload, &p)
		m.statusBar.Extra = fmt.Sprintf("running %v%s", p["tool"], theme.Symbols.Ellipsis)
	case domain.EventToolCallCompleted:
		m.statusBar.Extra = ""
	case domain.EventRecordingSaved:
		var p map[string]string
		if err := json.Unmarshal(ev.Payload, &p); err == nil {
			m.setNotice("recording saved to "+p["path"], false)
		}
	}
	return m, nil
}

func (m *Model) setNotice(text string, isErr bool) {
	m.notice = text
	m.noticeEr = isErr
}

func (m *Model) refreshStatusBar() {
	mode := "VAD"
	if m.status.PushToTalk {
		mode = "PTT"
		if m.status.Speaking {
			mode = theme.Symbols.Mic + " talking"
		}
	}
	playback := "audio on"
	if !m.status.Playback {
		playback = "audio off"
	}
	m.statusBar.Facts = []string{m.status.Agent, string(m.status.Codec), mode, playback}
}

func (m *Model) layout() {
	if m.width == 0 {
		return
	}
	m.statusBar.SetWidth(m.width)
	m.input.Width = theme.Clamp(m.width-4, 10, m.width)

	// header + input + status bar + notice lines
	chrome := 3
	if m.notice != "" {
		chrome += lipgloss.Height(m.notice)
	}
	m.transcript.SetSize(m.width, theme.Clamp(m.height-chrome, 1, m.height))
}

// View renders the console.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	state := string(m.status.State)
	header := theme.Header.Render("wingman") +
		theme.StateStyle(state).Render(state) +
		theme.Muted.Render("  "+m.user)
	if m.status.ActiveSessionID != "" {
		header += theme.Timestamp.Render("  session " + m.status.ActiveSessionID)
	}

	parts := []string{header, m.transcript.View()}
	if m.notice != "" {
		style := theme.Muted
		if m.noticeEr {
			style = theme.Error
		}
		parts = append(parts, style.Render(m.notice))
	}
	parts = append(parts, m.input.View(), m.statusBar.View())
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func renderSessions(list []domain.SessionSummary) string {
	if len(list) == 0 {
		return "no stored conversations"
	}
	var sb strings.Builder
	for i, s := range list {
		if i > 0 {
			sb.WriteString("\n")
		}
		marker := " "
		if s.Active {
			marker = theme.Symbols.Bullet
		}
		fmt.Fprintf(&sb, "%s %s  %-30s %d messages", marker, s.ID, s.Title, s.MessageCount)
	}
	return sb.String()
}
