package styles

import "github.com/charmbracelet/lipgloss"

var (
	ContentWidth = 54
)

var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#4DD0E1")).
			Padding(0, 1)

	UserLabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#546E7A")).
			Bold(true).
			Padding(0, 1).
			MarginRight(1)

	UserMsgStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#333333", Dark: "#E0E0E0"}).
			PaddingLeft(2).
			BorderLeft(true).
			BorderStyle(lipgloss.ThickBorder()).
			BorderForeground(lipgloss.Color("#546E7A"))

	AiLabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#000000")).
			Background(lipgloss.Color("#4DD0E1")).
			Bold(true).
			Padding(0, 1).
			MarginRight(1)

	AssistLabelStyle = AiLabelStyle.
				Foreground(lipgloss.Color("#FFFFFF")).
				Background(lipgloss.Color("#BA68C8"))

	AiMsgStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#333333", Dark: "#E0E0E0"}).
			PaddingTop(1).
			BorderLeft(true).
			BorderStyle(lipgloss.ThickBorder()).
			BorderForeground(lipgloss.Color("#4DD0E1"))

	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#E57373")).
			Bold(true)

	ToolActionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			PaddingLeft(2)

	ToolIconStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#81C784")).
			Bold(true)

	ToolFailIconStyle = ToolIconStyle.
				Foreground(lipgloss.Color("#E57373"))

	ToolNameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD54F")).
			Bold(true)

	ToolDetailStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#607D8B"))

	// CardStyle frames a tool result.
	CardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#37474F")).
			Padding(0, 1)

	InputBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#4DD0E1")).
			Padding(0, 1)

	WelcomeArtStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#00838F", Dark: "#4DD0E1"}).
			Bold(true)

	WelcomeSubtitleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#607D8B")).
				Italic(true)

	ModalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#4DD0E1")).
			Padding(1, 2)

	ModalTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#4DD0E1")).
			Width(ContentWidth).
			MarginBottom(1)

	ModalItemStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Width(ContentWidth)

	ModalSelectedStyle = lipgloss.NewStyle().
				Padding(0, 1).
				Width(ContentWidth).
				Background(lipgloss.Color("#37474F")).
				Foreground(lipgloss.Color("#FFFFFF"))

	HintColor = lipgloss.Color("#607D8B")
)
