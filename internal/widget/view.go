package widget

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const (
	// Title heads the widget.
	Title = "VoChat - Voice Conversation"

	startLabel     = "Start"
	listeningLabel = "Listening..."
	stopLabel      = "Stop"
	emptyPanel     = "..."
	speakingMark   = " 🔊"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#2196F3"))
	buttonStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#4CAF50"))
	disabledButtonStyle = buttonStyle.
				BorderForeground(lipgloss.Color("#555555")).
				Foreground(lipgloss.Color("#777777"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F44336"))
	labelStyle = lipgloss.NewStyle().Bold(true)
	panelStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("#444444"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
)

// View renders the widget.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	width := m.width
	if width <= 0 || width > 80 {
		width = 60
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(Title))
	b.WriteString("\n\n")
	b.WriteString(m.controlsView())
	b.WriteString("\n")

	if m.state.Error != "" {
		b.WriteString(errorStyle.Render(m.state.Error))
		b.WriteString("\n")
	}

	b.WriteString(m.input.View())
	if m.state.Pending > 0 {
		b.WriteString("  ")
		b.WriteString(m.spinner.View())
	}
	b.WriteString("\n\n")

	b.WriteString(panel("You:", m.state.Transcript, "", width))
	b.WriteString("\n")
	mark := ""
	if m.state.Speaking {
		mark = speakingMark
	}
	b.WriteString(panel("VoChat:", m.state.Response, mark, width))
	b.WriteString("\n")

	b.WriteString(m.canvas.View())
	b.WriteString("\n")

	if m.notice != "" {
		b.WriteString(mutedStyle.Render(m.notice))
		b.WriteString("\n")
	}
	b.WriteString(mutedStyle.Render(m.helpLine()))
	b.WriteString("\n")
	return b.String()
}

func (m *Model) controlsView() string {
	start := buttonStyle.Render(startLabel)
	if m.state.Listening {
		start = disabledButtonStyle.Render(listeningLabel)
	} else if !m.listener.Available() {
		start = disabledButtonStyle.Render(startLabel)
	}
	stop := disabledButtonStyle.Render(stopLabel)
	if m.state.Listening {
		stop = buttonStyle.Render(stopLabel)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, start, " ", stop)
}

func (m *Model) helpLine() string {
	parts := []string{"ctrl+l listen", "ctrl+s stop", "enter send", "ctrl+y copy", "esc quit"}
	if !m.listener.Available() {
		parts[0] = "speech input unavailable"
	}
	return strings.Join(parts, " • ")
}

func panel(label, body, mark string, width int) string {
	if body == "" {
		body = emptyPanel
	}
	content := labelStyle.Render(label) + mark + "\n" + body
	return panelStyle.Width(width).Render(content)
}
