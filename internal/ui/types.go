package ui

import (
	"context"

	"netcraft/internal/agent"
	"netcraft/internal/models"
	"netcraft/internal/session"
	"netcraft/internal/tools"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
)

const (
	MaxChatWidth    = 100
	HistoryPageSize = 10
	MaxInputHeight  = 6
)

// ModalWidth follows the window size.
var ModalWidth = 60

type ErrMsg error

// StepMsg is sent from the craft goroutine after every agent step.
type StepMsg struct {
	Step agent.Step
}

type CraftDoneMsg struct {
	Report agent.Report
	Err    error
}

type ToolRunMsg struct {
	Execution tools.Execution
	Err       error
}

type AnswerMsg struct {
	Text string
	Err  error
}

type ProvidersMsg struct {
	Providers []models.ProviderInfo
}

type ProviderSetMsg struct {
	ID  string
	Err error
}

// BarState caches what the bottom bar shows. A craft holds the session for
// its whole run, so the view never reads the session directly.
type BarState struct {
	Provider   string
	Tool       string
	Runs       int
	Turns      int
	Summarized bool
}

type Model struct {
	Session *session.Session
	Ctx     context.Context

	Viewport         viewport.Model
	ProviderViewport viewport.Model
	Messages         []string
	TextInput        textarea.Model
	Spinner          spinner.Model
	Renderer         *glamour.TermRenderer
	Err              error
	Loading          bool
	WindowWidth      int
	WindowHeight     int
	AppMode          models.AppMode
	MaxIterations    int

	HistoryOpen        bool
	HistorySelectedIdx int
	HistoryCount       int
	HistoryCrafts      []models.CraftListItem
	HistoryErr         error
	HistoryPage        int

	ProviderSelectorOpen bool
	Providers            []models.ProviderInfo
	SelectedProviderIdx  int
	ProvidersLoading     bool

	ShortcutsOpen bool

	Bar         BarState
	Status      string             // what the spinner line says
	ToolActions []models.ToolAction // steps of the running craft
	Program     *tea.Program
}
