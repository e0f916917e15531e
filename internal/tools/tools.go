package tools

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/openai/openai-go/v3"
)

// FinalReportTool is the terminal pseudo-tool the agent calls to finish.
const FinalReportTool = "final_report"

func jsonSchemaType(t ParamType) string {
	if t == TypeEnum {
		return "string"
	}
	return string(t)
}

// Definition renders a spec as an OpenAI function tool.
func Definition(spec ToolSpec) openai.ChatCompletionToolUnionParam {
	props := map[string]interface{}{}
	required := []string{}
	for _, p := range spec.Params {
		prop := map[string]interface{}{"type": jsonSchemaType(p.Type)}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		if p.Pattern != "" {
			prop["pattern"] = p.Pattern
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
		Name:        spec.Name,
		Description: openai.String(spec.Description),
		Parameters: openai.FunctionParameters{
			"type":                 "object",
			"properties":           props,
			"required":             required,
			"additionalProperties": false,
		},
	})
}

// Definitions renders every spec plus the final_report tool.
func Definitions(specs []ToolSpec) []openai.ChatCompletionToolUnionParam {
	defs := make([]openai.ChatCompletionToolUnionParam, 0, len(specs)+1)
	for _, s := range specs {
		defs = append(defs, Definition(s))
	}
	return append(defs, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
		Name:        FinalReportTool,
		Description: openai.String("Submit the final analysis report once the task is complete"),
		Parameters: openai.FunctionParameters{
			"type": "object",
			"properties": map[string]interface{}{
				"report": map[string]interface{}{"type": "string"},
			},
			"required": []string{"report"},
		},
	}))
}

// Summarize renders the one-line headline of an execution card.
func Summarize(e Execution) string {
	line := summarize(e)
	if !e.Outcome.Success {
		return line + " failed"
	}
	return line
}

func summarize(e Execution) string {
	p := e.Params
	switch pl := e.Outcome.Payload.(type) {
	case PingPayload:
		return fmt.Sprintf("PING %s (%d/%d received)", pl.Target, pl.PacketsReceived, pl.PacketsSent)
	case TraceroutePayload:
		return fmt.Sprintf("TRACE %s (%d hops)", pl.Target, len(pl.Hops))
	case NmapPayload:
		return fmt.Sprintf("NMAP %s %s (%d open)", pl.ScanType, pl.Target, len(pl.OpenPorts))
	case Hping3Payload:
		return fmt.Sprintf("HPING3 %s %s (%d/%d replies)", strings.ToUpper(pl.Mode), pl.Target, pl.Received, pl.Sent)
	case PortScanPayload:
		return fmt.Sprintf("SCAN %s (%d/%d open)", pl.Target, len(pl.Open()), len(pl.Ports))
	case ARPPayload:
		return fmt.Sprintf("ARP %s (%d hosts)", pl.Network, len(pl.Hosts))
	case DNSPayload:
		n := 0
		for _, recs := range pl.Records {
			n += len(recs)
		}
		return fmt.Sprintf("DNS %s (%d records)", pl.Target, n)
	case SendPayload:
		return fmt.Sprintf("SEND %s (%d/%d replies)", strings.Join(pl.Layers, "/"), pl.Received, pl.Sent)
	case CraftPayload:
		return fmt.Sprintf("CRAFT %s", strings.Join(pl.Layers, "/"))
	}

	switch e.Tool {
	case "ping_host":
		return fmt.Sprintf("PING %s", p.String("target"))
	case "traceroute_host":
		return fmt.Sprintf("TRACE %s", p.String("target"))
	case "nmap_scan":
		return fmt.Sprintf("NMAP %s %s", p.String("scan_type"), p.String("target"))
	case "hping3_probe":
		return fmt.Sprintf("HPING3 %s %s", strings.ToUpper(p.String("mode")), p.String("target"))
	case "quick_port_scan":
		return fmt.Sprintf("SCAN %s", p.String("target"))
	case "arp_scan":
		return fmt.Sprintf("ARP %s", p.String("network"))
	case "dns_lookup_tool":
		return fmt.Sprintf("DNS %s", p.String("target"))
	case "send_packet":
		return "SEND packet"
	case "craft_packet_json":
		return "CRAFT packet"
	default:
		return fmt.Sprintf("%s called", strings.ToUpper(e.Tool))
	}
}

// ParseAssignments turns CLI words like count=4 target=10.0.0.1 into
// params typed according to spec.
func ParseAssignments(spec ToolSpec, words []string) (map[string]any, error) {
	out := make(map[string]any, len(words))
	for _, w := range words {
		k, v, ok := strings.Cut(w, "=")
		if !ok || k == "" {
			return nil, &ValidationError{Tool: spec.Name, Reason: fmt.Sprintf("expected key=value, got %q", w)}
		}
		p, known := spec.Param(k)
		if !known {
			return nil, &ValidationError{Tool: spec.Name, Param: k, Reason: "unknown parameter"}
		}
		switch p.Type {
		case TypeInteger:
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, &ValidationError{Tool: spec.Name, Param: k, Reason: fmt.Sprintf("expected integer, got %q", v)}
			}
			out[k] = n
		case TypeNumber:
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, &ValidationError{Tool: spec.Name, Param: k, Reason: fmt.Sprintf("expected number, got %q", v)}
			}
			out[k] = f
		case TypeBoolean:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, &ValidationError{Tool: spec.Name, Param: k, Reason: fmt.Sprintf("expected boolean, got %q", v)}
			}
			out[k] = b
		default:
			out[k] = v
		}
	}
	return out, nil
}
