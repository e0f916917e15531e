package styles

import "github.com/charmbracelet/lipgloss"

// Theme is the color scheme of the TUI.
type Theme struct {
	Primary   lipgloss.Color
	Secondary lipgloss.Color

	TextPrimary lipgloss.Color
	TextMuted   lipgloss.Color

	Success lipgloss.Color
	Warning lipgloss.Color
	Error   lipgloss.Color

	Border lipgloss.Color

	ModeCraft  lipgloss.Color
	ModeAssist lipgloss.Color
}

var DarkTheme = Theme{
	Primary:     lipgloss.Color("#4DD0E1"), // cyan 300
	Secondary:   lipgloss.Color("#AED581"), // light green 300
	TextPrimary: lipgloss.Color("#ECEFF1"),
	TextMuted:   lipgloss.Color("#607D8B"),
	Success:     lipgloss.Color("#81C784"),
	Warning:     lipgloss.Color("#FFD54F"),
	Error:       lipgloss.Color("#E57373"),
	Border:      lipgloss.Color("#37474F"),
	ModeCraft:   lipgloss.Color("#4DD0E1"),
	ModeAssist:  lipgloss.Color("#BA68C8"),
}

var LightTheme = Theme{
	Primary:     lipgloss.Color("#00838F"),
	Secondary:   lipgloss.Color("#558B2F"),
	TextPrimary: lipgloss.Color("#212121"),
	TextMuted:   lipgloss.Color("#78909C"),
	Success:     lipgloss.Color("#2E7D32"),
	Warning:     lipgloss.Color("#F9A825"),
	Error:       lipgloss.Color("#C62828"),
	Border:      lipgloss.Color("#CFD8DC"),
	ModeCraft:   lipgloss.Color("#00838F"),
	ModeAssist:  lipgloss.Color("#7B1FA2"),
}

// CurrentTheme is set by InitTheme from the terminal background.
var CurrentTheme = DarkTheme

// providerColors is keyed by provider id.
var providerColors = map[string]lipgloss.Color{
	"openai":     lipgloss.Color("#10B981"),
	"gemini":     lipgloss.Color("#A78BFA"),
	"claude":     lipgloss.Color("#FB923C"),
	"openrouter": lipgloss.Color("#60A5FA"),
	"ollama":     lipgloss.Color("#F1F5F9"),
}

func GetProviderColor(id string) lipgloss.Color {
	if c, ok := providerColors[id]; ok {
		return c
	}
	return CurrentTheme.Primary
}

// ModeColor returns the badge color of the craft or assistant mode.
func ModeColor(assist bool) lipgloss.Color {
	if assist {
		return CurrentTheme.ModeAssist
	}
	return CurrentTheme.ModeCraft
}

func InitTheme() {
	if lipgloss.HasDarkBackground() {
		CurrentTheme = DarkTheme
	} else {
		CurrentTheme = LightTheme
	}
}
