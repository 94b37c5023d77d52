package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"foamwatch/internal/classify"
	"foamwatch/internal/monitor"
)

// maxLogLines bounds the record pane backlog.
const maxLogLines = 500

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	okStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	warnStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	failStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	borderStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

type statusMsg struct{ update monitor.StatusUpdate }

type recordMsg struct{ line string }

type model struct {
	caseDir    string
	update     monitor.StatusUpdate
	haveStatus bool
	vp         viewport.Model
	lines      []string
	width      int
	height     int
}

func newModel(caseDir string, width, height int) model {
	vp := viewport.New(width, max(height-8, 3))
	return model{caseDir: caseDir, vp: vp, width: width, height: height}
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.vp.Width = msg.Width - 4
		m.vp.Height = max(msg.Height-10, 3)
		m.refresh()
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		default:
			var cmd tea.Cmd
			m.vp, cmd = m.vp.Update(msg)
			return m, cmd
		}
	case statusMsg:
		m.update = msg.update
		m.haveStatus = true
	case recordMsg:
		m.lines = append(m.lines, msg.line)
		if len(m.lines) > maxLogLines {
			m.lines = m.lines[len(m.lines)-maxLogLines:]
		}
		m.refresh()
	}
	return m, nil
}

func (m *model) refresh() {
	m.vp.SetContent(strings.Join(m.lines, "\n"))
	m.vp.GotoBottom()
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("foamwatch "+m.caseDir) + "\n")

	if m.haveStatus {
		u := m.update
		b.WriteString(statusStyle(u.Status).Render(string(u.Status)))
		if u.Reason != "" {
			wrapped := wordwrap.String(u.Reason, max(m.width-4, 20))
			b.WriteString("\n" + labelStyle.Render(wrapped))
		}
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf("t=%.4g s  dt=%.3g s  Co max=%.4g  records=%d  malformed=%d  phases=%d  elapsed=%s\n",
			u.SimTime, u.DeltaT, u.MaxCourant, u.Records, u.Malformed, u.Phases, u.Elapsed.Round(time.Second)))
	} else {
		b.WriteString(labelStyle.Render("waiting for solver output...") + "\n")
	}

	b.WriteString(borderStyle.Render(m.vp.View()))
	b.WriteString("\n" + labelStyle.Render("q: quit"))
	return b.String()
}

func statusStyle(s classify.Status) lipgloss.Style {
	switch s {
	case classify.StatusFailed:
		return failStyle
	case classify.StatusTimeout, classify.StatusInconclusive:
		return warnStyle
	default:
		return okStyle
	}
}
