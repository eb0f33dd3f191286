// Package tui provides a Bubble Tea browser for recorded sessions.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/keytape/keytape/internal/history"
)

// ── Styles ────────────

var (
	// Title bar at the very top
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 2)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("33")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	timeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("178"))

	completedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)
	failedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("245")).
			Padding(0, 1)

	// Selected row in the session list
	selectedRowStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")).
				Background(lipgloss.Color("237"))
)

// ── Model ────────────────────

// Deleter is the slice of the history store the browser needs.
type Deleter interface {
	Delete(sessionID string) error
}

// Model is the root Bubble Tea model for the session browser.
type Model struct {
	entries  []history.Entry
	store    Deleter
	cursor   int
	expanded map[int]bool
	viewport viewport.Model
	width    int
	height   int
	ready    bool
	notice   string
}

// New creates a browser over the given history entries. store may be nil,
// which disables deletion.
func New(entries []history.Entry, store Deleter) Model {
	return Model{
		entries:  entries,
		store:    store,
		expanded: make(map[int]bool),
	}
}

// ── Bubble Tea interface ───────────────

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
				m.rebuild()
				return m, nil
			}
		case "down", "j":
			if m.cursor < len(m.entries)-1 {
				m.cursor++
				m.rebuild()
				return m, nil
			}
		case "enter", " ":
			if len(m.entries) > 0 {
				if m.expanded[m.cursor] {
					delete(m.expanded, m.cursor)
				} else {
					m.expanded[m.cursor] = true
				}
				m.rebuild()
				return m, nil
			}
		case "d":
			m = m.deleteSelected()
			return m, nil
		}
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		// title(1) + statusBar(1) = 2 fixed rows
		vpHeight := m.height - 2
		if vpHeight < 1 {
			vpHeight = 1
		}
		m.viewport = viewport.New(m.width, vpHeight)
		m.viewport.SetContent(m.renderList())
		return m, nil
	}
	return m, nil
}

func (m Model) View() string {
	if !m.ready {
		return "Loading…"
	}

	title := titleStyle.Width(m.width).Render(fmt.Sprintf("  keytape sessions (%d)", len(m.entries)))

	hint := "  ↑/↓ select  enter details  d delete  q quit"
	if m.notice != "" {
		hint = "  " + m.notice
	}
	pct := fmt.Sprintf("%3.0f%%", m.viewport.ScrollPercent()*100)
	pad := m.width - lipgloss.Width(hint) - len(pct) - 2
	if pad < 1 {
		pad = 1
	}
	statusBar := statusBarStyle.Width(m.width).Render(hint + strings.Repeat(" ", pad) + pct)

	return lipgloss.JoinVertical(lipgloss.Left, title, m.viewport.View(), statusBar)
}

// ── Rendering ─────────────────────

func (m *Model) rebuild() {
	m.viewport.SetContent(m.renderList())
}

func (m *Model) renderList() string {
	var sb strings.Builder
	sb.WriteString("\n")
	if len(m.entries) == 0 {
		sb.WriteString(dimStyle.Render("  (no sessions recorded yet)") + "\n")
		return sb.String()
	}

	for i, e := range m.entries {
		toggle := dimStyle.Render("  ▶ ")
		if m.expanded[i] {
			toggle = dimStyle.Render("  ▼ ")
		}

		ts := timeStyle.Render(e.StartedAt.Local().Format("2006-01-02 15:04"))
		badge := completedStyle.Render(fmt.Sprintf("%-9s", "completed"))
		if e.Status == history.StatusFailed {
			badge = failedStyle.Render(fmt.Sprintf("%-9s", "failed"))
		}

		row := fmt.Sprintf("%s%s  %s  %2d chunks  %s", toggle, ts, badge, e.ChunkCount, e.Duration.Round(time.Second))
		if i == m.cursor {
			row = selectedRowStyle.Width(m.width - 2).Render(row)
		}
		sb.WriteString(row + "\n")

		if m.expanded[i] {
			sb.WriteString(m.renderDetail(e))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m *Model) renderDetail(e history.Entry) string {
	var sb strings.Builder
	row := func(label, value string) {
		sb.WriteString(labelStyle.Render(fmt.Sprintf("      %-10s", label)) + "  " + value + "\n")
	}
	row("Session:", e.SessionID)
	row("Started:", e.StartedAt.Local().Format("2006-01-02 15:04:05 MST"))
	row("Duration:", e.Duration.Round(time.Second).String())
	if e.ArtifactPath != "" {
		row("Artifact:", e.ArtifactPath)
	}
	if e.Error != "" {
		row("Error:", failedStyle.Render(e.Error))
	}
	return sb.String()
}

// ── Actions ───────────────────────

func (m Model) deleteSelected() Model {
	if len(m.entries) == 0 {
		return m
	}
	e := m.entries[m.cursor]
	if m.store == nil {
		m.notice = "history store unavailable"
		return m
	}
	if err := m.store.Delete(e.SessionID); err != nil {
		m.notice = "delete failed: " + err.Error()
		return m
	}
	m.entries = append(m.entries[:m.cursor], m.entries[m.cursor+1:]...)
	delete(m.expanded, m.cursor)
	if m.cursor >= len(m.entries) && m.cursor > 0 {
		m.cursor--
	}
	m.notice = fmt.Sprintf("deleted %s", e.SessionID)
	m.rebuild()
	return m
}

// Run starts the session browser.
func Run(entries []history.Entry, store Deleter) error {
	p := tea.NewProgram(New(entries, store), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
