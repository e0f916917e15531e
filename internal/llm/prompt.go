package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"netcraft/internal/models"
	"netcraft/internal/tools"

	"github.com/openai/openai-go/v3"
)

const CraftSystemPrompt = `You are Netcraft, a network diagnostics and packet crafting assistant working in a lab environment.

You can:
1. Craft packets as JSON layer descriptions and send them (send_packet, craft_packet_json)
2. Scan networks (nmap_scan, quick_port_scan, arp_scan)
3. Run diagnostics (ping_host, traceroute_host, dns_lookup_tool, hping3_probe)

Rules:
- Call exactly one tool per turn and wait for its observation.
- Use the IP layer unless the task explicitly needs Ethernet.
- If a tool fails, read the error and adapt: fix the parameters, try another tool, or report what you found.
- For passive crafting requests, use craft_packet_json and never send anything.
- When the task is done, call final_report with a plain-text report of your findings.`

const AssistantSystemPrompt = `You are Netcraft's assistant. You answer follow-up questions about network tool results the user already ran.
Base your answers on the tool context provided. Be concise and concrete; quote ports, hosts and timings from the results.
If the results do not answer the question, say so and suggest which tool to run next.`

const SummarizerSystemPrompt = `You maintain a running summary of a conversation about network diagnostics.
Merge the previous summary (if any) with the new messages into one concise summary.
Keep hosts, ports, findings and open questions.
Reply with JSON only: {"summary": "<summary text>", "turns_summarized_count": <number of new messages you folded in>}`

// ConstructReasonMessages builds the conversation for one agent step. Prior
// steps are replayed as plain text so any OpenAI-compatible server accepts
// them.
func ConstructReasonMessages(req ReasonRequest) []openai.ChatCompletionMessageParamUnion {
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(CraftSystemPrompt),
	}
	if strings.TrimSpace(req.Context) != "" {
		messages = append(messages, openai.SystemMessage("Background from earlier in this session:\n"+req.Context))
	}
	messages = append(messages, openai.UserMessage(fmt.Sprintf("Task:\n'''%s'''", req.Prompt)))

	for i, ex := range req.History {
		args, _ := json.Marshal(ex.Params)
		messages = append(messages,
			openai.AssistantMessage(fmt.Sprintf("Step %d: calling %s %s", i+1, ex.Tool, args)),
			openai.UserMessage(fmt.Sprintf("Observation from %s:\n%s", ex.Tool, ex.Observation)),
		)
	}
	return messages
}

func ConstructSummarizeMessages(req SummarizeRequest) []openai.ChatCompletionMessageParamUnion {
	var sb strings.Builder
	if req.Previous != nil && *req.Previous != "" {
		sb.WriteString("Previous summary:\n")
		sb.WriteString(*req.Previous)
		sb.WriteString("\n\n")
	}
	sb.WriteString("New messages:\n")
	for _, t := range req.Turns {
		sb.WriteString(fmt.Sprintf("%s: %s\n", t.Role, t.Content))
	}
	return []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(SummarizerSystemPrompt),
		openai.UserMessage(sb.String()),
	}
}

// DescribeExecution renders an execution as the JSON block the assistant
// reads.
func DescribeExecution(e tools.Execution) string {
	b, err := json.MarshalIndent(struct {
		Tool    string        `json:"tool"`
		Params  tools.Params  `json:"params"`
		Outcome tools.Outcome `json:"result"`
	}{e.Tool, e.Params, e.Outcome}, "", "  ")
	if err != nil {
		return fmt.Sprintf("%s: %v", e.Tool, err)
	}
	return string(b)
}

func ConstructAnswerMessages(req AnswerRequest) []openai.ChatCompletionMessageParamUnion {
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(AssistantSystemPrompt),
	}
	if req.Summary != nil && *req.Summary != "" {
		messages = append(messages, openai.SystemMessage("Summary of the earlier conversation:\n"+*req.Summary))
	}

	var ctxb strings.Builder
	ctxb.WriteString("Current tool result:\n")
	ctxb.WriteString(DescribeExecution(req.Current))
	if len(req.Recent) > 0 {
		ctxb.WriteString("\n\nRecent tool runs (oldest first):\n")
		for _, e := range req.Recent {
			ctxb.WriteString(fmt.Sprintf("- %s %s\n", e.Timestamp.Format("15:04:05"), tools.Summarize(e)))
		}
	}
	messages = append(messages, openai.UserMessage(ctxb.String()))

	for _, t := range req.History {
		if t.Role == models.RoleAssistant {
			messages = append(messages, openai.AssistantMessage(t.Content))
		} else {
			messages = append(messages, openai.UserMessage(t.Content))
		}
	}
	return append(messages, openai.UserMessage(req.Question))
}
