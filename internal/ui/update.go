package ui

import (
	"errors"
	"fmt"
	"strings"

	"netcraft/internal/agent"
	"netcraft/internal/memory"
	"netcraft/internal/models"
	"netcraft/internal/provider"
	"netcraft/internal/styles"
	"netcraft/internal/tools"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		spCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case spinner.TickMsg:
		m.Spinner, spCmd = m.Spinner.Update(msg)
		if m.Loading {
			m.UpdateViewport()
		}
		return m, spCmd

	case tea.KeyMsg:
		if m.HistoryOpen {
			return m, m.updateHistory(msg)
		}
		if m.ProviderSelectorOpen {
			return m, m.updateProviderSelector(msg)
		}
		if m.ShortcutsOpen {
			switch msg.String() {
			case "ctrl+c":
				return m, tea.Quit
			case "esc", "enter", "?", "ctrl+s":
				m.ShortcutsOpen = false
			}
			return m, nil
		}

		if isNewlineShortcut(msg) {
			m.TextInput.InsertString("\n")
			m.updateInputLayout()
			return m, nil
		}

		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		}

		// everything below touches the session, which a running request holds
		if m.Loading && msg.Type != tea.KeyCtrlS && msg.Type != tea.KeyCtrlA {
			break
		}

		switch msg.Type {
		case tea.KeyCtrlN:
			m.ResetSession()
			return m, nil

		case tea.KeyCtrlA:
			if m.AppMode == models.ModeCraft {
				m.AppMode = models.ModeAssistant
			} else {
				m.AppMode = models.ModeCraft
			}
			return m, nil

		case tea.KeyCtrlB:
			m.ProviderSelectorOpen = true
			m.HistoryOpen = false
			m.ShortcutsOpen = false
			m.ProvidersLoading = true
			m.UpdateProviderSelectorContent()
			return m, m.loadProviders()

		case tea.KeyCtrlS:
			m.ShortcutsOpen = true
			m.ProviderSelectorOpen = false
			m.HistoryOpen = false
			return m, nil

		case tea.KeyCtrlH:
			m.ProviderSelectorOpen = false
			m.ShortcutsOpen = false
			m.HistoryOpen = true
			m.HistoryPage = 0
			m.RefreshHistory()
			return m, nil

		case tea.KeyEnter:
			if m.Loading {
				return m, nil
			}
			input := strings.TrimSpace(m.TextInput.Value())
			if input == "" {
				return m, nil
			}
			m.TextInput.Reset()
			m.updateInputLayout()
			return m, m.submit(input)
		}

	case StepMsg:
		m.applyStep(msg.Step)
		m.UpdateViewport()
		return m, nil

	case CraftDoneMsg:
		m.Loading = false
		m.Status = ""
		if msg.Err != nil && msg.Report.Text == "" {
			m.ToolActions = nil
			m.appendError(msg.Err)
			return m, nil
		}
		body := m.render(msg.Report.Text)
		if msg.Report.Exhausted {
			body = styles.ErrorStyle.Render("iteration budget exhausted") + "\n" + body
		}
		if len(m.ToolActions) > 0 {
			m.Messages = append(m.Messages, FormatAIMessageWithTools(FormatToolActions(m.ToolActions), body, false))
		} else {
			m.Messages = append(m.Messages, FormatAIMessage(body, false))
		}
		m.ToolActions = nil
		if msg.Err != nil {
			m.appendError(msg.Err)
			return m, nil
		}
		m.UpdateViewport()
		return m, nil

	case ToolRunMsg:
		m.Loading = false
		m.Status = ""
		if msg.Err != nil {
			m.appendError(msg.Err)
			return m, nil
		}
		m.Messages = append(m.Messages, FormatExecution(msg.Execution, m.Renderer))
		m.UpdateViewport()
		return m, nil

	case AnswerMsg:
		m.Loading = false
		m.Status = ""
		if msg.Err != nil {
			if errors.Is(msg.Err, memory.ErrNoContext) {
				m.appendError(fmt.Errorf("%w (try /run ping_host target=...)", msg.Err))
				return m, nil
			}
			m.appendError(msg.Err)
			return m, nil
		}
		m.Messages = append(m.Messages, FormatAIMessage(m.render(msg.Text), true))
		m.UpdateViewport()
		return m, nil

	case ProvidersMsg:
		m.ProvidersLoading = false
		m.Providers = append([]models.ProviderInfo{{ID: provider.Auto, Name: "Auto", Available: true}}, msg.Providers...)
		m.SelectedProviderIdx = 0
		current := m.Bar.Provider
		for i, p := range m.Providers {
			if p.ID == current {
				m.SelectedProviderIdx = i
			}
		}
		m.UpdateProviderSelectorContent()
		m.SyncProviderViewportScroll()
		return m, nil

	case ProviderSetMsg:
		if msg.Err != nil {
			m.appendError(msg.Err)
			return m, nil
		}
		m.ProviderSelectorOpen = false
		m.Messages = append(m.Messages, styles.ToolDetailStyle.Render("provider set to "+msg.ID))
		m.UpdateViewport()
		return m, nil

	case ErrMsg:
		m.Loading = false
		m.appendError(msg)
		return m, nil

	case tea.WindowSizeMsg:
		m.WindowWidth = msg.Width
		m.WindowHeight = msg.Height

		ModalWidth = msg.Width - 10
		if ModalWidth > 72 {
			ModalWidth = 72
		}
		if ModalWidth < 30 {
			ModalWidth = 30
		}
		styles.ContentWidth = ModalWidth - 6

		m.ProviderViewport.Width = styles.ContentWidth
		m.ProviderViewport.Height = clamp(msg.Height-15, 5, 12)

		chatWidth := msg.Width - 2
		if chatWidth > MaxChatWidth {
			chatWidth = MaxChatWidth
		}
		m.Viewport.Width = chatWidth - 2

		m.updateInputLayout()
		glamourStyle := "dark"
		if !lipgloss.HasDarkBackground() {
			glamourStyle = "light"
		}
		m.Renderer, _ = glamour.NewTermRenderer(
			glamour.WithStandardStyle(glamourStyle),
			glamour.WithWordWrap(chatWidth-6),
		)
		m.UpdateViewport()
		return m, nil
	}

	m.TextInput, tiCmd = m.TextInput.Update(msg)
	m.updateInputLayout()

	// terminal background queries sometimes leak into the input
	val := m.TextInput.Value()
	if strings.Contains(val, "]11;rgb:") || strings.Contains(val, "[1;1R") {
		m.TextInput.Reset()
	}

	m.Viewport, vpCmd = m.Viewport.Update(msg)
	return m, tea.Batch(tiCmd, vpCmd)
}

func (m *Model) updateHistory(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "ctrl+c":
		return tea.Quit
	case "esc", "ctrl+h":
		m.HistoryOpen = false
		m.HistoryErr = nil
	case "up", "k":
		if len(m.HistoryCrafts) > 0 {
			m.HistorySelectedIdx = (m.HistorySelectedIdx - 1 + len(m.HistoryCrafts)) % len(m.HistoryCrafts)
		}
	case "down", "j":
		if len(m.HistoryCrafts) > 0 {
			m.HistorySelectedIdx = (m.HistorySelectedIdx + 1) % len(m.HistoryCrafts)
		}
	case "left", "h":
		if m.HistoryPage > 0 {
			m.HistoryPage--
			m.RefreshHistory()
		}
	case "right", "l":
		if m.HistoryPage < pageCount(m.HistoryCount)-1 {
			m.HistoryPage++
			m.RefreshHistory()
		}
	case "enter":
		if len(m.HistoryCrafts) == 0 {
			return nil
		}
		if err := m.ShowCraft(m.HistoryCrafts[m.HistorySelectedIdx]); err != nil {
			m.HistoryErr = err
			return nil
		}
		m.HistoryOpen = false
		m.HistoryErr = nil
	}
	return nil
}

func (m *Model) updateProviderSelector(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "ctrl+c":
		return tea.Quit
	case "esc", "ctrl+b":
		m.ProviderSelectorOpen = false
	case "up", "k":
		if len(m.Providers) > 0 {
			m.SelectedProviderIdx = (m.SelectedProviderIdx - 1 + len(m.Providers)) % len(m.Providers)
			m.SyncProviderViewportScroll()
			m.UpdateProviderSelectorContent()
		}
	case "down", "j":
		if len(m.Providers) > 0 {
			m.SelectedProviderIdx = (m.SelectedProviderIdx + 1) % len(m.Providers)
			m.SyncProviderViewportScroll()
			m.UpdateProviderSelectorContent()
		}
	case "enter":
		if len(m.Providers) == 0 {
			return nil
		}
		return m.setProvider(m.Providers[m.SelectedProviderIdx].ID)
	}
	return nil
}

// submit dispatches one line of input: slash commands first, then the
// current mode.
func (m *Model) submit(input string) tea.Cmd {
	if strings.HasPrefix(input, "/") {
		return m.command(input)
	}
	m.Messages = append(m.Messages, FormatUserMessage(input, m.Viewport.Width, len(m.Messages) == 0))
	m.Loading = true
	if m.AppMode == models.ModeAssistant {
		m.Status = "Thinking..."
		m.UpdateViewport()
		return tea.Batch(m.askAssistant(input), m.Spinner.Tick)
	}
	m.Status = "Reasoning..."
	m.UpdateViewport()
	return tea.Batch(m.craft(input), m.Spinner.Tick)
}

func (m *Model) command(input string) tea.Cmd {
	fields := strings.Fields(input)
	name, args := fields[0], fields[1:]

	switch name {
	case "/clear", "/reset":
		if m.AppMode == models.ModeAssistant {
			m.Session.ClearAssistantChat()
			m.Messages = append(m.Messages, styles.ToolDetailStyle.Render("assistant chat cleared"))
			m.UpdateViewport()
			return nil
		}
		m.ResetView()
		return nil

	case "/help", "/?":
		m.ShortcutsOpen = true
		return nil

	case "/tools":
		m.Messages = append(m.Messages, m.render(ToolCatalog(m.Session.ListTools())))
		m.UpdateViewport()
		return nil

	case "/describe":
		if len(args) != 1 {
			m.appendError(fmt.Errorf("usage: /describe <tool>"))
			return nil
		}
		spec, err := m.Session.DescribeTool(args[0])
		if err != nil {
			m.appendError(err)
			return nil
		}
		m.Messages = append(m.Messages, m.render(ToolDescription(spec)))
		m.UpdateViewport()
		return nil

	case "/run":
		if len(args) == 0 {
			m.appendError(fmt.Errorf("usage: /run <tool> key=value ..."))
			return nil
		}
		spec, err := m.Session.DescribeTool(args[0])
		if err != nil {
			m.appendError(err)
			return nil
		}
		params, err := tools.ParseAssignments(spec, args[1:])
		if err != nil {
			m.appendError(err)
			return nil
		}
		m.Messages = append(m.Messages, FormatUserMessage(input, m.Viewport.Width, len(m.Messages) == 0))
		m.Loading = true
		m.Status = "Running " + spec.Name + "..."
		m.UpdateViewport()
		return tea.Batch(m.runTool(spec.Name, params), m.Spinner.Tick)

	case "/passive":
		prompt := strings.TrimSpace(strings.TrimPrefix(input, name))
		if prompt == "" {
			m.appendError(fmt.Errorf("usage: /passive <description>"))
			return nil
		}
		m.Messages = append(m.Messages, FormatUserMessage(input, m.Viewport.Width, len(m.Messages) == 0))
		m.Loading = true
		m.Status = "Crafting..."
		m.UpdateViewport()
		return tea.Batch(m.craftWith(agent.PassivePrompt(prompt), agent.PassiveIterations), m.Spinner.Tick)
	}

	m.appendError(fmt.Errorf("unknown command %s (see /help)", name))
	return nil
}

func (m *Model) applyStep(s agent.Step) {
	m.Status = fmt.Sprintf("Reasoning... step %d", s.Index+2)
	switch {
	case s.Execution != nil:
		m.ToolActions = append(m.ToolActions, models.ToolAction{
			Name:    s.Execution.Tool,
			Summary: tools.Summarize(*s.Execution),
			Success: s.Execution.Outcome.Success,
		})
	case s.Err != nil:
		m.ToolActions = append(m.ToolActions, models.ToolAction{Summary: s.Err.Error()})
	}
}

func (m *Model) appendError(err error) {
	m.Err = err
	m.Messages = append(m.Messages, styles.ErrorStyle.Render(fmt.Sprintf("Error: %v", err)))
	m.UpdateViewport()
}

func (m *Model) render(md string) string {
	if m.Renderer == nil {
		return md
	}
	out, err := m.Renderer.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimSpace(out)
}

func (m *Model) craft(prompt string) tea.Cmd {
	return m.craftWith(prompt, m.MaxIterations)
}

func (m *Model) craftWith(prompt string, maxIterations int) tea.Cmd {
	sess, ctx, program := m.Session, m.Ctx, m.Program
	return func() tea.Msg {
		report, err := sess.Craft(ctx, prompt, maxIterations, "", agent.OnStep(func(s agent.Step) {
			if program != nil {
				program.Send(StepMsg{Step: s})
			}
		}))
		return CraftDoneMsg{Report: report, Err: err}
	}
}

func (m *Model) runTool(name string, params map[string]any) tea.Cmd {
	sess, ctx := m.Session, m.Ctx
	return func() tea.Msg {
		ex, err := sess.ExecuteTool(ctx, name, params)
		return ToolRunMsg{Execution: ex, Err: err}
	}
}

func (m *Model) askAssistant(question string) tea.Cmd {
	sess, ctx := m.Session, m.Ctx
	return func() tea.Msg {
		text, err := sess.AskAssistant(ctx, question)
		return AnswerMsg{Text: text, Err: err}
	}
}

func (m *Model) loadProviders() tea.Cmd {
	sess, ctx := m.Session, m.Ctx
	return func() tea.Msg {
		return ProvidersMsg{Providers: sess.Providers(ctx)}
	}
}

func (m *Model) setProvider(id string) tea.Cmd {
	sess, ctx := m.Session, m.Ctx
	return func() tea.Msg {
		return ProviderSetMsg{ID: id, Err: sess.SetProvider(ctx, id)}
	}
}

func isNewlineShortcut(msg tea.KeyMsg) bool {
	switch msg.String() {
	case "shift+enter", "shift+return", "ctrl+j", "alt+enter":
		return true
	default:
		return false
	}
}

func (m *Model) updateInputLayout() {
	if m.WindowWidth == 0 || m.WindowHeight == 0 {
		return
	}

	inputWidth := m.WindowWidth - 6
	if inputWidth < 20 {
		inputWidth = 20
	}
	lines := clamp(WrappedLineCount(m.TextInput.Value(), inputWidth-2), 1, MaxInputHeight)

	m.TextInput.MaxHeight = MaxInputHeight
	m.TextInput.SetWidth(inputWidth)
	m.TextInput.SetHeight(lines)

	// input box border, title and bottom bar
	reserved := m.TextInput.Height() + 2 + 5
	m.Viewport.Height = max(m.WindowHeight-reserved, 5)
}

// ResetView clears the transcript but keeps the session state.
func (m *Model) ResetView() {
	m.Messages = []string{}
	m.ToolActions = nil
	m.Err = nil
	m.HistoryOpen = false
	m.HistoryErr = nil
	m.Viewport.SetContent(GetWelcomeScreen(m.Viewport.Width, m.Viewport.Height))
	m.Viewport.GotoTop()
	m.TextInput.Reset()
	m.updateInputLayout()
}

// ResetSession also drops the assistant conversation.
func (m *Model) ResetSession() {
	m.Session.ClearAssistantChat()
	m.AppMode = models.ModeCraft
	m.ResetView()
}

func (m *Model) RefreshHistory() {
	m.HistoryErr = nil
	m.HistoryCrafts = nil
	m.HistorySelectedIdx = 0

	count, crafts, err := m.Session.History(HistoryPageSize, m.HistoryPage*HistoryPageSize)
	if err != nil {
		m.HistoryErr = err
		return
	}
	m.HistoryCount = count
	m.HistoryCrafts = crafts
}

// ShowCraft replays an audited craft run into the transcript.
func (m *Model) ShowCraft(c models.CraftListItem) error {
	execs, err := m.Session.CraftExecutions(c.ID)
	if err != nil {
		return err
	}
	actions := make([]models.ToolAction, 0, len(execs))
	for _, e := range execs {
		summary := strings.ToUpper(e.Tool) + " " + e.Params
		if e.Error != "" {
			summary += " (" + e.Error + ")"
		}
		actions = append(actions, models.ToolAction{Name: e.Tool, Summary: summary, Success: e.Success})
	}

	m.Messages = append(m.Messages, FormatUserMessage(c.Prompt, m.Viewport.Width, len(m.Messages) == 0))
	body := m.render(c.Report)
	if len(actions) > 0 {
		m.Messages = append(m.Messages, FormatAIMessageWithTools(FormatToolActions(actions), body, false))
	} else {
		m.Messages = append(m.Messages, FormatAIMessage(body, false))
	}
	m.UpdateViewport()
	return nil
}

func pageCount(total int) int {
	return max((total+HistoryPageSize-1)/HistoryPageSize, 1)
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
