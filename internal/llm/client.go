package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"netcraft/internal/tools"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/tidwall/gjson"
)

var inlineToolCallRE = regexp.MustCompile(`(?s)^\s*([a-zA-Z][a-zA-Z0-9_]*)\s*(\{.*\})\s*$`)

// Recorder receives per-call statistics. Metrics implement it.
type Recorder interface {
	ObserveLLM(provider, op string, d time.Duration, promptTokens, completionTokens int64, err error)
}

type Config struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float64
	MaxRetries  int
}

// Client talks to any OpenAI-compatible chat completions endpoint.
type Client struct {
	client   *openai.Client
	cfg      Config
	logger   *slog.Logger
	recorder Recorder
}

func New(cfg Config, logger *slog.Logger, rec Recorder) *Client {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	client := openai.NewClient(opts...)
	return &Client{
		client:   &client,
		cfg:      cfg,
		logger:   logger.With("component", "llm", "provider", cfg.Provider, "model", cfg.Model),
		recorder: rec,
	}
}

func (c *Client) ID() string { return c.cfg.Provider }

func (c *Client) complete(ctx context.Context, op string, params openai.ChatCompletionNewParams) (openai.ChatCompletionMessage, error) {
	params.Model = c.cfg.Model
	if c.cfg.Temperature > 0 {
		params.Temperature = openai.Opt[float64](c.cfg.Temperature)
	}

	c.logger.Debug("llm_request", "op", op, "messages", len(params.Messages), "tools", len(params.Tools))
	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, params)
	elapsed := time.Since(start)

	if err == nil && len(resp.Choices) == 0 {
		err = errors.New("response contained no choices")
	}
	var in, out int64
	if resp != nil {
		in, out = resp.Usage.PromptTokens, resp.Usage.CompletionTokens
	}
	if c.recorder != nil {
		c.recorder.ObserveLLM(c.cfg.Provider, op, elapsed, in, out, err)
	}
	if err != nil {
		perr := c.providerError(op, err)
		c.logger.Warn("llm_error", "op", op, "error", perr.Error(), "duration_ms", elapsed.Milliseconds())
		return openai.ChatCompletionMessage{}, perr
	}

	msg := resp.Choices[0].Message
	c.logger.Info("llm_response", "op", op,
		"duration_ms", elapsed.Milliseconds(),
		"response_length", len(msg.Content),
		"tool_calls", len(msg.ToolCalls),
		"prompt_tokens", in, "completion_tokens", out)
	return msg, nil
}

func (c *Client) providerError(op string, err error) *ProviderError {
	pe := &ProviderError{Provider: c.cfg.Provider, Op: op, Message: err.Error(), Err: err}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		pe.Status = apiErr.StatusCode
		if apiErr.Message != "" {
			pe.Message = apiErr.Message
		}
	}
	return pe
}

func (c *Client) Reason(ctx context.Context, req ReasonRequest) (Decision, error) {
	msg, err := c.complete(ctx, "reason", openai.ChatCompletionNewParams{
		Messages: ConstructReasonMessages(req),
		Tools:    tools.Definitions(req.Tools),
	})
	if err != nil {
		return nil, err
	}

	calls := make([]rawCall, 0, len(msg.ToolCalls))
	for _, tc := range msg.ToolCalls {
		calls = append(calls, rawCall{ID: tc.ID, Name: tc.Function.Name, Args: tc.Function.Arguments})
	}
	known := make(map[string]bool, len(req.Tools)+1)
	for _, s := range req.Tools {
		known[s.Name] = true
	}
	known[tools.FinalReportTool] = true
	return decodeDecision(msg.Content, calls, known), nil
}

func (c *Client) Summarize(ctx context.Context, req SummarizeRequest) (Summary, error) {
	msg, err := c.complete(ctx, "summarize", openai.ChatCompletionNewParams{
		Messages: ConstructSummarizeMessages(req),
	})
	if err != nil {
		return Summary{}, err
	}
	sum := decodeSummary(msg.Content, len(req.Turns))
	if sum.Text == "" {
		return Summary{}, &ProviderError{Provider: c.cfg.Provider, Op: "summarize", Message: "empty summary"}
	}
	return sum, nil
}

// decodeSummary reads the summarizer's JSON reply. A plain-text reply is
// taken as the summary itself. The count is clamped to the turns sent and
// falls back to all of them when the model omits it.
func decodeSummary(content string, sent int) Summary {
	content = strings.TrimSpace(content)
	body := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(strings.TrimPrefix(content, "```json"), "```"), "```"))
	if !gjson.Valid(body) || !gjson.Get(body, "summary").Exists() {
		return Summary{Text: content, Count: sent}
	}
	sum := Summary{Text: strings.TrimSpace(gjson.Get(body, "summary").String()), Count: sent}
	if n := gjson.Get(body, "turns_summarized_count"); n.Type == gjson.Number && n.Int() >= 0 && n.Int() <= int64(sent) {
		sum.Count = int(n.Int())
	}
	return sum
}

func (c *Client) Answer(ctx context.Context, req AnswerRequest) (string, error) {
	msg, err := c.complete(ctx, "answer", openai.ChatCompletionNewParams{
		Messages: ConstructAnswerMessages(req),
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(msg.Content), nil
}

type rawCall struct {
	ID   string
	Name string
	Args string
}

// decodeDecision turns a chat message into a Decision. Only the first tool
// call is honoured; the loop runs one tool per step.
func decodeDecision(content string, calls []rawCall, known map[string]bool) Decision {
	content = strings.TrimSpace(content)

	if len(calls) == 0 {
		if m := inlineToolCallRE.FindStringSubmatch(content); m != nil && known[m[1]] {
			calls = []rawCall{{Name: m[1], Args: m[2]}}
		}
	}
	if len(calls) == 0 {
		if content == "" {
			return Unparseable{Raw: content}
		}
		return FinalReport{Text: content}
	}

	call := calls[0]
	if call.Name == tools.FinalReportTool {
		if report := gjson.Get(call.Args, "report"); report.Exists() && strings.TrimSpace(report.String()) != "" {
			return FinalReport{Text: report.String()}
		}
		if content != "" {
			return FinalReport{Text: content}
		}
		return Unparseable{Raw: call.Args}
	}

	params := map[string]any{}
	if strings.TrimSpace(call.Args) != "" {
		dec := json.NewDecoder(bytes.NewReader([]byte(call.Args)))
		dec.UseNumber()
		if err := dec.Decode(&params); err != nil {
			return Unparseable{Raw: fmt.Sprintf("%s %s", call.Name, call.Args)}
		}
	}
	return ToolCallProposal{CallID: call.ID, Tool: call.Name, Params: params}
}
