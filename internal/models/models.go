package models

import "time"

// AppMode represents the current operating mode of the application
type AppMode int

const (
	ModeCraft     AppMode = iota // Autonomous agent loop with tool access
	ModeAssistant                // Follow-up questions about the last tool run
)

func (m AppMode) String() string {
	if m == ModeAssistant {
		return "ASSIST"
	}
	return "CRAFT"
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one user or assistant message in the assistant conversation.
type Turn struct {
	Role      string
	Content   string
	Timestamp time.Time
}

// ToolSwitch notes that subsequent turns discuss a different tool execution.
type ToolSwitch struct {
	ExecutionID string
	Tool        string
	Timestamp   time.Time
}

// ProviderInfo describes a configured reasoning backend for display.
type ProviderInfo struct {
	ID        string
	Name      string
	Model     string
	Local     bool
	Available bool
}

type CraftListItem struct {
	ID            int64
	CreatedAtUnix int64
	SessionID     string
	Provider      string
	Prompt        string
	Report        string
	Steps         int
	Exhausted     bool
}

// ExecutionListItem is an audited tool execution.
type ExecutionListItem struct {
	ID            string
	CraftID       int64
	CreatedAtUnix int64
	Tool          string
	Source        string
	Params        string
	Success       bool
	Error         string
	DurationMS    int64
}

// ToolAction represents a completed tool action for display
type ToolAction struct {
	Name    string
	Summary string
	Success bool
}
