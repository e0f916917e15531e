package ui

import (
	"fmt"
	"strings"
	"time"

	"netcraft/internal/models"
	"netcraft/internal/styles"

	"github.com/mattn/go-runewidth"
)

// WrappedLineCount is the number of terminal rows value takes at width.
func WrappedLineCount(value string, width int) int {
	if width <= 0 {
		return 1
	}
	count := 0
	for _, line := range strings.Split(value, "\n") {
		w := runewidth.StringWidth(line)
		if w == 0 {
			count++
			continue
		}
		count += (w-1)/width + 1
	}
	return max(count, 1)
}

// PromptPreview flattens s onto one line.
func PromptPreview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	const maxRunes = 200
	if r := []rune(s); len(r) > maxRunes {
		return string(r[:maxRunes])
	}
	return s
}

func TruncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max == 1 {
		return "…"
	}
	return string(r[:max-1]) + "…"
}

func RelativeTime(t time.Time) string {
	d := time.Since(t)
	if d < 0 {
		d = -d
	}
	plural := func(n int, unit string) string {
		if n == 1 {
			return "1 " + unit + " ago"
		}
		return fmt.Sprintf("%d %ss ago", n, unit)
	}
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return plural(int(d.Minutes()), "min")
	case d < 24*time.Hour:
		return plural(int(d.Hours()), "hr")
	case d < 14*24*time.Hour:
		return plural(int(d.Hours()/24), "day")
	}
	return plural(int(d.Hours()/24/7), "week")
}

// SyncProviderViewportScroll keeps the selected row visible. Every row is
// one line.
func (m *Model) SyncProviderViewportScroll() {
	y := m.SelectedProviderIdx
	vp := &m.ProviderViewport
	if y+1 > vp.YOffset+vp.Height {
		vp.SetYOffset(y + 1 - vp.Height)
	}
	if y < vp.YOffset {
		vp.SetYOffset(y)
	}
}

func FormatUserMessage(content string, width int, isFirst bool) string {
	label := styles.UserLabelStyle.Render("YOU")
	msg := styles.UserMsgStyle.Width(max(width-4, 10)).Render(content)
	if isFirst {
		return fmt.Sprintf("\n%s\n%s", label, msg)
	}
	return fmt.Sprintf("%s\n%s", label, msg)
}

func aiLabel(assist bool) string {
	if assist {
		return styles.AssistLabelStyle.Render("ASSIST")
	}
	return styles.AiLabelStyle.Render("NETCRAFT")
}

func FormatAIMessage(content string, assist bool) string {
	return fmt.Sprintf("%s\n%s", aiLabel(assist), styles.AiMsgStyle.Render(content))
}

// FormatToolActions renders one line per step; failures get a cross.
func FormatToolActions(actions []models.ToolAction) string {
	lines := make([]string, 0, len(actions))
	for _, a := range actions {
		icon := styles.ToolIconStyle.Render("→")
		if !a.Success {
			icon = styles.ToolFailIconStyle.Render("✗")
		}
		lines = append(lines, styles.ToolActionStyle.Render(fmt.Sprintf("%s %s", icon, styles.ToolNameStyle.Render(a.Summary))))
	}
	return strings.Join(lines, "\n")
}

func FormatAIMessageWithTools(toolDisplay, content string, assist bool) string {
	return fmt.Sprintf("%s\n%s\n%s", aiLabel(assist), toolDisplay, styles.AiMsgStyle.Render(content))
}
