package components

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"wingman/internal/adapter/tui/theme"
	"wingman/internal/domain"
)

type renderedBody struct {
	source string
	out    string
}

// TranscriptViewModel renders a session transcript in a scrollable viewport.
// Auto-scroll is active while the user is at the bottom; scrolling up
// pauses it until they return.
type TranscriptViewModel struct {
	Viewport   viewport.Model
	items      []domain.TranscriptItem
	cache      map[string]renderedBody // itemID -> rendered assistant markdown
	mdRenderer *glamour.TermRenderer
	width      int
	ready      bool
	atBottom   bool
}

// NewTranscriptView creates a transcript view. The viewport is initialized
// lazily by the first SetSize.
func NewTranscriptView() TranscriptViewModel {
	return TranscriptViewModel{
		cache:    make(map[string]renderedBody),
		atBottom: true,
	}
}

// SetSize sets the viewport dimensions and re-renders.
func (m *TranscriptViewModel) SetSize(w, h int) {
	if w != m.width {
		m.width = w
		m.mdRenderer = nil
		m.cache = make(map[string]renderedBody)
	}
	if !m.ready {
		m.Viewport = viewport.New(w, h)
		m.Viewport.MouseWheelEnabled = true
		m.Viewport.MouseWheelDelta = 3
		m.ready = true
	} else {
		m.Viewport.Width = w
		m.Viewport.Height = h
	}
	m.refreshContent()
}

// SetItems replaces the transcript snapshot.
func (m *TranscriptViewModel) SetItems(items []domain.TranscriptItem) {
	m.items = items
	m.refreshContent()
	if m.atBottom {
		m.Viewport.GotoBottom()
	}
}

// Items returns the current snapshot.
func (m TranscriptViewModel) Items() []domain.TranscriptItem {
	return m.items
}

// Update handles viewport scrolling and tracks auto-scroll state.
func (m TranscriptViewModel) Update(msg tea.Msg) (TranscriptViewModel, tea.Cmd) {
	if !m.ready {
		return m, nil
	}
	var cmd tea.Cmd
	m.Viewport, cmd = m.Viewport.Update(msg)
	m.atBottom = m.Viewport.AtBottom()
	return m, cmd
}

// View renders the viewport.
func (m TranscriptViewModel) View() string {
	if !m.ready {
		return "  Initializing..."
	}
	return m.Viewport.View()
}

// Content renders the whole transcript regardless of the viewport window.
func (m *TranscriptViewModel) Content() string {
	var sb strings.Builder
	width := ContentWidth(m.width)
	n := 0
	for i := range m.items {
		it := &m.items[i]
		var block string
		switch {
		case it.Type == domain.ItemBreadcrumb:
			block = renderBreadcrumb(it, width)
		case it.Visible():
			block = m.renderMessage(it, width)
		default:
			continue
		}
		if n > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(block)
		n++
	}
	if n == 0 {
		return theme.Muted.Render("  No messages yet. /connect and start talking.")
	}
	return sb.String()
}

func (m *TranscriptViewModel) refreshContent() {
	if !m.ready {
		return
	}
	m.Viewport.SetContent(m.Content())
}

func (m *TranscriptViewModel) renderMessage(it *domain.TranscriptItem, width int) string {
	label := theme.UserLabel.Render(theme.Symbols.User)
	if it.Role == domain.RoleAssistant {
		label = theme.BotLabel.Render(theme.Symbols.Bot)
	}
	header := label + " " + theme.Timestamp.Render(it.Timestamp)

	var body string
	if it.Role == domain.RoleAssistant {
		body = strings.TrimSpace(m.renderMarkdown(it.ItemID, it.Title, width))
	} else {
		body = wrapText(it.Title, width-2)
	}
	if it.Status == domain.StatusInProgress {
		body += theme.Muted.Render(" " + theme.Symbols.Ellipsis)
	}
	if body == "" {
		return header
	}
	return header + "\n  " + body
}

func (m *TranscriptViewModel) renderMarkdown(id, content string, width int) string {
	if c, ok := m.cache[id]; ok && c.source == content {
		return c.out
	}
	if m.mdRenderer == nil {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			return content
		}
		m.mdRenderer = r
	}
	out, err := m.mdRenderer.Render(content)
	if err != nil {
		return content
	}
	m.cache[id] = renderedBody{source: content, out: out}
	return out
}

func renderBreadcrumb(it *domain.TranscriptItem, width int) string {
	line := theme.Breadcrumb.Render("  " + theme.Symbols.Bullet + " " + it.Title)
	if !it.Expanded || len(it.Data) == 0 {
		return line
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, it.Data, "    ", "  "); err != nil {
		return line
	}
	data := lipgloss.NewStyle().MaxWidth(width).Render("    " + pretty.String())
	return line + "\n" + theme.Dim.Render(data)
}

// ContentWidth calculates the content width respecting MaxContentWidth.
func ContentWidth(termWidth int) int {
	return theme.Clamp(termWidth-4, 40, theme.MaxContentWidth)
}

// wrapText wraps text to the given width with a 2-space indent on
// continuation lines. Uses rune indexing to handle multibyte UTF-8.
func wrapText(s string, width int) string {
	runes := []rune(s)
	if width <= 0 || len(runes) <= width {
		return s
	}
	var lines []string
	for len(runes) > width {
		idx := -1
		for i := width - 1; i > 0; i-- {
			if runes[i] == ' ' {
				idx = i
				break
			}
		}
		if idx <= 0 {
			idx = width
		}
		lines = append(lines, string(runes[:idx]))
		runes = runes[idx:]
		for len(runes) > 0 && runes[0] == ' ' {
			runes = runes[1:]
		}
	}
	if len(runes) > 0 {
		lines = append(lines, string(runes))
	}
	return strings.Join(lines, "\n  ")
}
