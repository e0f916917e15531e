package ui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"netcraft/internal/styles"
	"netcraft/internal/tools"

	"github.com/charmbracelet/glamour"
)

// FormatPayload renders the typed result of an execution as markdown.
// Payloads it does not know are shown as their raw output, if any.
func FormatPayload(e tools.Execution) string {
	var b strings.Builder
	if !e.Outcome.Success {
		fmt.Fprintf(&b, "**failed:** %s\n\n", e.Outcome.Error)
	}

	switch pl := e.Outcome.Payload.(type) {
	case tools.PingPayload:
		fmt.Fprintf(&b, "%d sent, %d received, %.1f%% loss\n", pl.PacketsSent, pl.PacketsReceived, pl.PacketLoss)
		if pl.RTTAvg != nil {
			fmt.Fprintf(&b, "\nrtt min/avg/max: %s / %s / %s ms\n", ms(pl.RTTMin), ms(pl.RTTAvg), ms(pl.RTTMax))
		}

	case tools.TraceroutePayload:
		b.WriteString("| hop | host | ip | rtt |\n|---|---|---|---|\n")
		for _, h := range pl.Hops {
			fmt.Fprintf(&b, "| %d | %s | %s | %s |\n", h.Hop, cell(h.Hostname), cell(h.IP), ms(h.RTT))
		}

	case tools.NmapPayload:
		if len(pl.OpenPorts) == 0 {
			b.WriteString("no open ports\n")
			break
		}
		b.WriteString("| port | proto | service |\n|---|---|---|\n")
		for _, p := range pl.OpenPorts {
			fmt.Fprintf(&b, "| %d | %s | %s |\n", p.Port, p.Protocol, cell(p.Service))
		}

	case tools.PortScanPayload:
		b.WriteString("| port | state |\n|---|---|\n")
		for _, p := range pl.Ports {
			fmt.Fprintf(&b, "| %d | %s |\n", p.Port, p.State)
		}

	case tools.ARPPayload:
		if len(pl.Hosts) == 0 {
			b.WriteString("no hosts answered\n")
			break
		}
		b.WriteString("| ip | mac | vendor |\n|---|---|---|\n")
		for _, h := range pl.Hosts {
			fmt.Fprintf(&b, "| %s | %s | %s |\n", h.IP, h.MAC, cell(h.Vendor))
		}

	case tools.DNSPayload:
		kinds := make([]string, 0, len(pl.Records))
		for k := range pl.Records {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			fmt.Fprintf(&b, "- **%s** %s\n", k, strings.Join(pl.Records[k], ", "))
		}
		for k, msg := range pl.Errors {
			fmt.Fprintf(&b, "- _%s_ %s\n", k, msg)
		}

	case tools.Hping3Payload:
		fmt.Fprintf(&b, "%s mode, %d sent, %d received\n", pl.Mode, pl.Sent, pl.Received)

	case tools.CraftPayload:
		fmt.Fprintf(&b, "```json\n%s\n```\n", pl.JSON)

	case tools.SendPayload:
		fmt.Fprintf(&b, "%d sent, %d received\n", pl.Sent, pl.Received)
		if pl.Response != "" {
			fmt.Fprintf(&b, "\n```\n%s\n```\n", pl.Response)
		}

	default:
		if e.Outcome.Payload != nil {
			fmt.Fprintf(&b, "```\n%v\n```\n", e.Outcome.Payload)
		}
	}
	return b.String()
}

// FormatExecution is the transcript card of a direct tool run.
func FormatExecution(e tools.Execution, r *glamour.TermRenderer) string {
	icon := styles.ToolIconStyle.Render("→")
	if !e.Outcome.Success {
		icon = styles.ToolFailIconStyle.Render("✗")
	}
	head := fmt.Sprintf("%s %s %s", icon, styles.ToolNameStyle.Render(tools.Summarize(e)),
		styles.ToolDetailStyle.Render(e.Duration.Round(time.Millisecond).String()))

	body := FormatPayload(e)
	if r != nil {
		if out, err := r.Render(body); err == nil {
			body = strings.TrimSpace(out)
		}
	}
	return styles.CardStyle.Render(head + "\n" + body)
}

// ToolCatalog lists tools as a markdown table.
func ToolCatalog(specs []tools.ToolSpec) string {
	var b strings.Builder
	b.WriteString("| tool | description |\n|---|---|\n")
	for _, s := range specs {
		fmt.Fprintf(&b, "| `%s` | %s |\n", s.Name, cell(s.Description))
	}
	return b.String()
}

func ToolDescription(spec tools.ToolSpec) string {
	var b strings.Builder
	fmt.Fprintf(&b, "### %s\n\n%s\n\n", spec.Name, spec.Description)
	if len(spec.Params) == 0 {
		b.WriteString("no parameters\n")
		return b.String()
	}
	b.WriteString("| param | type | required | default | notes |\n|---|---|---|---|---|\n")
	for _, p := range spec.Params {
		def := ""
		if p.Default != nil {
			def = fmt.Sprint(p.Default)
		}
		notes := p.Description
		if len(p.Enum) > 0 {
			notes = strings.TrimSpace(notes + " one of " + strings.Join(p.Enum, "/"))
		}
		fmt.Fprintf(&b, "| %s | %s | %t | %s | %s |\n", p.Name, p.Type, p.Required, cell(def), cell(notes))
	}
	return b.String()
}

func ms(v *float64) string {
	if v == nil {
		return "*"
	}
	return fmt.Sprintf("%.3f", *v)
}

// cell escapes pipes and fills empty table cells.
func cell(s string) string {
	if s == "" {
		return "-"
	}
	return strings.ReplaceAll(s, "|", `\|`)
}
