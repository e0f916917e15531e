package ui

import (
	"fmt"
	"strings"
	"time"

	"netcraft/internal/models"
	"netcraft/internal/provider"
	"netcraft/internal/styles"
	"netcraft/internal/tools"

	"github.com/charmbracelet/lipgloss"
)

func (m *Model) UpdateProviderSelectorContent() {
	if m.ProvidersLoading {
		m.ProviderViewport.SetContent(styles.ModalItemStyle.Render(m.Spinner.View() + " probing providers..."))
		return
	}
	current := m.Bar.Provider

	items := make([]string, 0, len(m.Providers))
	for i, p := range m.Providers {
		marker := "  "
		if p.ID == current {
			marker = "● "
		}
		status := "unavailable"
		switch {
		case p.Available && p.Local:
			status = "local"
		case p.Available:
			status = "ready"
		}
		name := lipgloss.NewStyle().Foreground(styles.GetProviderColor(p.ID)).Render(p.Name)
		line := fmt.Sprintf("%s%s %s", marker, name, lipgloss.NewStyle().Foreground(styles.HintColor).Render(strings.TrimSpace(p.Model+" "+status)))
		if p.ID == provider.Auto {
			line = marker + name
		}

		if i == m.SelectedProviderIdx {
			items = append(items, styles.ModalSelectedStyle.Width(styles.ContentWidth).Render(line))
			continue
		}
		style := styles.ModalItemStyle.Width(styles.ContentWidth)
		if !p.Available {
			style = style.Faint(true)
		}
		items = append(items, style.Render(line))
	}
	m.ProviderViewport.SetContent(lipgloss.JoinVertical(lipgloss.Left, items...))
}

func (m *Model) RenderProviderSelector() string {
	title := styles.ModalTitleStyle.Render("Select Provider")
	hint := lipgloss.NewStyle().
		Foreground(styles.HintColor).
		Width(styles.ContentWidth).
		PaddingTop(1).
		Render("↑/↓: navigate • Enter: select • Esc: close")
	return lipgloss.JoinVertical(lipgloss.Left, title, m.ProviderViewport.View(), hint)
}

func (m *Model) RenderHistorySelector() string {
	title := styles.ModalTitleStyle.Render(fmt.Sprintf("Craft History (%d) - Page %d/%d", m.HistoryCount, m.HistoryPage+1, pageCount(m.HistoryCount)))

	var body string
	switch {
	case m.HistoryErr != nil:
		body = lipgloss.NewStyle().Width(styles.ContentWidth).Render(styles.ErrorStyle.Render(fmt.Sprintf("Error: %v", m.HistoryErr)))
	case len(m.HistoryCrafts) == 0:
		body = styles.ModalItemStyle.Render(lipgloss.NewStyle().Foreground(styles.HintColor).Render("No crafts yet"))
	default:
		items := make([]string, 0, len(m.HistoryCrafts))
		for i, c := range m.HistoryCrafts {
			cursor := "  "
			if i == m.HistorySelectedIdx {
				cursor = "> "
			}
			meta := fmt.Sprintf("%s · %s", c.Provider, RelativeTime(time.Unix(c.CreatedAtUnix, 0)))
			if c.Exhausted {
				meta = "⚠ " + meta
			}
			width := styles.ContentWidth - 2 - len(cursor) - 1 - lipgloss.Width(meta)
			prompt := TruncateRunes(PromptPreview(c.Prompt), width)

			line := fmt.Sprintf("%s%s %s", cursor, prompt, lipgloss.NewStyle().Foreground(styles.HintColor).Render(meta))
			if i == m.HistorySelectedIdx {
				items = append(items, styles.ModalSelectedStyle.Render(line))
			} else {
				items = append(items, styles.ModalItemStyle.Render(line))
			}
		}
		body = lipgloss.JoinVertical(lipgloss.Left, items...)
	}

	hint := lipgloss.NewStyle().
		Foreground(styles.HintColor).
		Width(styles.ContentWidth).
		PaddingTop(1).
		Render("↑/↓: navigate • ←/→: page • Enter: open • Esc: close")
	return lipgloss.JoinVertical(lipgloss.Left, title, body, hint)
}

var shortcuts = []struct{ key, desc string }{
	{"Ctrl+C", "Quit"},
	{"Ctrl+N", "New session"},
	{"Ctrl+A", "Toggle craft / assistant mode"},
	{"Ctrl+B", "Select provider"},
	{"Ctrl+H", "Craft history"},
	{"Ctrl+S", "Shortcuts"},
	{"/run", "Run a tool: /run ping_host target=1.1.1.1"},
	{"/describe", "Show a tool's parameters"},
	{"/tools", "List tools"},
	{"/passive", "Craft a packet without sending it"},
	{"/clear", "Clear transcript or assistant chat"},
}

func (m *Model) RenderShortcutsModal() string {
	title := styles.ModalTitleStyle.Render("Shortcuts")

	keyStyle := lipgloss.NewStyle().Foreground(styles.CurrentTheme.Warning).Bold(true).Width(11)
	descStyle := lipgloss.NewStyle().Foreground(styles.CurrentTheme.TextPrimary)

	items := make([]string, 0, len(shortcuts))
	for _, s := range shortcuts {
		items = append(items, styles.ModalItemStyle.Render(keyStyle.Render(s.key)+" "+descStyle.Render(s.desc)))
	}

	hint := lipgloss.NewStyle().
		Foreground(styles.HintColor).
		Width(styles.ContentWidth).
		PaddingTop(1).
		Render("Esc/Enter: close")
	return lipgloss.JoinVertical(lipgloss.Left, title, lipgloss.JoinVertical(lipgloss.Left, items...), hint)
}

// refreshBar must not run while a request holds the session.
func (m *Model) refreshBar() {
	m.Bar = BarState{
		Provider: m.Session.Provider(),
		Tool:     "no tool context",
		Runs:     len(m.Session.RecentExecutions()),
		Turns:    len(m.Session.Turns()),
	}
	if m.Bar.Provider == "" {
		m.Bar.Provider = provider.Auto
	}
	if cur, ok := m.Session.CurrentTool(); ok {
		m.Bar.Tool = tools.Summarize(cur)
	}
	m.Bar.Summarized = m.Session.Summary() != nil
}

func (m *Model) RenderBottomBar() string {
	assist := m.AppMode == models.ModeAssistant
	mode := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#000000")).
		Background(styles.ModeColor(assist)).
		Padding(0, 1).
		Render(m.AppMode.String())

	id := m.Bar.Provider
	prov := lipgloss.NewStyle().Foreground(styles.GetProviderColor(id)).Render(id)

	tool := lipgloss.NewStyle().Foreground(styles.CurrentTheme.TextMuted).Render(TruncateRunes(m.Bar.Tool, 32))

	ring := lipgloss.NewStyle().Foreground(styles.CurrentTheme.TextMuted).
		Render(fmt.Sprintf("runs:%d", m.Bar.Runs))

	memText := fmt.Sprintf("turns:%d", m.Bar.Turns)
	if m.Bar.Summarized {
		memText += " +summary"
	}
	mem := lipgloss.NewStyle().Foreground(styles.CurrentTheme.TextMuted).Render(memText)

	help := lipgloss.NewStyle().Foreground(styles.HintColor).Render("Help: ^S")

	left := lipgloss.JoinHorizontal(lipgloss.Center, mode, "  ", prov, "  ", tool)
	right := lipgloss.JoinHorizontal(lipgloss.Center, ring, "  ", mem, "  ", help)
	spacer := strings.Repeat(" ", max(m.WindowWidth-lipgloss.Width(left)-lipgloss.Width(right)-2, 0))

	return lipgloss.NewStyle().
		Width(m.WindowWidth).
		BorderTop(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(styles.CurrentTheme.Border).
		Padding(0, 1).
		Render(lipgloss.JoinHorizontal(lipgloss.Center, left, spacer, right))
}

func GetWelcomeScreen(width, height int) string {
	art := `
 ┌─────────────────────────────────────────────────────┐
 │  _   _      _    ____            __ _               │
 │ | \ | | ___| |_ / ___|_ __ __ _ / _| |_             │
 │ |  \| |/ _ \ __| |   | '__/ _' | |_| __|            │
 │ | |\  |  __/ |_| |___| | | (_| |  _| |_             │
 │ |_| \_|\___|\__|\____|_|  \__,_|_|  \__|            │
 │                                                     │
 └─────────────────────────────────────────────────────┘
`
	subtitle := "Describe a packet. Ctrl+A asks about the last result."

	content := lipgloss.JoinVertical(lipgloss.Center,
		styles.WelcomeArtStyle.Render(art),
		"",
		styles.WelcomeSubtitleStyle.Render(subtitle),
	)
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, content)
}

func (m *Model) UpdateViewport() {
	if !m.Loading {
		m.refreshBar()
	}
	if len(m.Messages) == 0 && !m.Loading {
		m.Viewport.SetContent(GetWelcomeScreen(m.Viewport.Width, m.Viewport.Height))
		return
	}

	content := strings.Join(m.Messages, "\n\n")
	if m.Loading {
		label := styles.AiLabelStyle.Render("NETCRAFT")
		if m.AppMode == models.ModeAssistant {
			label = styles.AssistLabelStyle.Render("ASSIST")
		}
		parts := []string{label}
		if len(m.ToolActions) > 0 {
			parts = append(parts, FormatToolActions(m.ToolActions))
		}
		parts = append(parts, m.Spinner.View()+" "+m.Status)
		loading := strings.Join(parts, "\n")
		if len(m.Messages) > 0 {
			content += "\n\n" + loading
		} else {
			content = loading
		}
	}
	m.Viewport.SetContent(content)
	m.Viewport.GotoBottom()
}

func (m *Model) View() string {
	inputBox := styles.InputBoxStyle.
		BorderForeground(styles.ModeColor(m.AppMode == models.ModeAssistant)).
		Width(m.WindowWidth - 4).
		Render(m.TextInput.View())

	chat := lipgloss.JoinVertical(lipgloss.Center,
		styles.TitleStyle.Render("NETCRAFT"),
		"",
		m.Viewport.View(),
		"",
		inputBox,
	)
	content := lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.PlaceHorizontal(m.WindowWidth, lipgloss.Center, chat),
		m.RenderBottomBar(),
	)

	switch {
	case m.HistoryOpen:
		return m.overlay(m.RenderHistorySelector())
	case m.ProviderSelectorOpen:
		return m.overlay(m.RenderProviderSelector())
	case m.ShortcutsOpen:
		return m.overlay(m.RenderShortcutsModal())
	}
	return content
}

func (m *Model) overlay(body string) string {
	modal := styles.ModalStyle.Width(ModalWidth).Render(body)
	return lipgloss.Place(m.WindowWidth, m.WindowHeight, lipgloss.Center, lipgloss.Center, modal)
}
