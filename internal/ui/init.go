package ui

import (
	"context"

	"netcraft/internal/models"
	"netcraft/internal/session"
	"netcraft/internal/styles"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

func InitialModel(ctx context.Context, sess *session.Session, maxIterations int) Model {
	ti := textarea.New()
	ti.Placeholder = "Describe a packet or a probe, or /help"
	ti.Prompt = "❯ "
	ti.ShowLineNumbers = false
	ti.CharLimit = 0
	ti.MaxHeight = MaxInputHeight
	ti.SetHeight(1)
	ti.SetWidth(80)
	prompt := lipgloss.NewStyle().Foreground(styles.CurrentTheme.Primary).Bold(true)
	ti.FocusedStyle.Prompt = prompt
	ti.BlurredStyle.Prompt = prompt
	ti.FocusedStyle.Placeholder = lipgloss.NewStyle().Foreground(styles.CurrentTheme.TextMuted)
	ti.BlurredStyle.Placeholder = lipgloss.NewStyle().Foreground(styles.CurrentTheme.TextMuted)
	ti.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ti.BlurredStyle.CursorLine = lipgloss.NewStyle()
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(styles.CurrentTheme.Primary)

	return Model{
		Session:          sess,
		Ctx:              ctx,
		TextInput:        ti,
		Viewport:         viewport.New(60, 15),
		ProviderViewport: viewport.New(ModalWidth-4, 10),
		Spinner:          sp,
		Messages:         []string{},
		AppMode:          models.ModeCraft,
		MaxIterations:    maxIterations,
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.Spinner.Tick)
}

// NewProgram builds the alt-screen program around sess. The model keeps the
// program so the craft goroutine can stream steps back.
func NewProgram(ctx context.Context, sess *session.Session, maxIterations int) *tea.Program {
	styles.InitTheme()
	m := InitialModel(ctx, sess, maxIterations)
	p := tea.NewProgram(&m, tea.WithAltScreen(), tea.WithContext(ctx))
	m.Program = p
	return p
}
