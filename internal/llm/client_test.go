package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"netcraft/internal/models"
	"netcraft/internal/tools"

	"github.com/openai/openai-go/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var known = map[string]bool{"ping_host": true, "nmap_scan": true, tools.FinalReportTool: true}

func TestDecodeDecision(t *testing.T) {
	cases := []struct {
		name    string
		content string
		calls   []rawCall
		want    Decision
	}{
		{
			name:  "tool call",
			calls: []rawCall{{ID: "c1", Name: "ping_host", Args: `{"target":"10.0.0.1"}`}},
			want:  ToolCallProposal{CallID: "c1", Tool: "ping_host", Params: map[string]any{"target": "10.0.0.1"}},
		},
		{
			name:  "only first call is used",
			calls: []rawCall{{ID: "a", Name: "ping_host", Args: `{}`}, {ID: "b", Name: "nmap_scan", Args: `{}`}},
			want:  ToolCallProposal{CallID: "a", Tool: "ping_host", Params: map[string]any{}},
		},
		{
			name:  "final report tool",
			calls: []rawCall{{ID: "r", Name: "final_report", Args: `{"report":"all hosts up"}`}},
			want:  FinalReport{Text: "all hosts up"},
		},
		{
			name:    "final report falls back to content",
			content: "done scanning",
			calls:   []rawCall{{ID: "r", Name: "final_report", Args: `{}`}},
			want:    FinalReport{Text: "done scanning"},
		},
		{
			name:    "plain text is a report",
			content: "  The host is reachable.  ",
			want:    FinalReport{Text: "The host is reachable."},
		},
		{
			name:    "inline tool call in content",
			content: `ping_host {"target":"example.com"}`,
			want:    ToolCallProposal{Tool: "ping_host", Params: map[string]any{"target": "example.com"}},
		},
		{
			name:    "inline call to unknown tool stays text",
			content: `rm {"path":"/"}`,
			want:    FinalReport{Text: `rm {"path":"/"}`},
		},
		{
			name:  "broken arguments",
			calls: []rawCall{{ID: "x", Name: "ping_host", Args: `{"target":`}},
			want:  Unparseable{Raw: `ping_host {"target":`},
		},
		{
			name: "empty message",
			want: Unparseable{},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, decodeDecision(tc.content, tc.calls, known))
		})
	}
}

func TestDecodeDecisionKeepsNumbers(t *testing.T) {
	d := decodeDecision("", []rawCall{{Name: "ping_host", Args: `{"target":"h","count":3}`}}, known)
	call, ok := d.(ToolCallProposal)
	require.True(t, ok)
	assert.Equal(t, json.Number("3"), call.Params["count"])
}

func messageText(t *testing.T, msg openai.ChatCompletionMessageParamUnion) (string, string) {
	t.Helper()
	b, err := json.Marshal(msg)
	require.NoError(t, err)
	var tmp struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	require.NoError(t, json.Unmarshal(b, &tmp))
	return tmp.Role, tmp.Content
}

func TestConstructReasonMessages(t *testing.T) {
	msgs := ConstructReasonMessages(ReasonRequest{
		Prompt: "scan 10.0.0.5",
		History: []Exchange{
			{Tool: "quick_port_scan", Params: map[string]any{"target": "10.0.0.5"}, Observation: `{"success":true}`},
		},
	})
	require.Len(t, msgs, 4)

	role, content := messageText(t, msgs[1])
	assert.Equal(t, "user", role)
	assert.Contains(t, content, "scan 10.0.0.5")

	role, content = messageText(t, msgs[2])
	assert.Equal(t, "assistant", role)
	assert.Contains(t, content, `quick_port_scan {"target":"10.0.0.5"}`)

	_, content = messageText(t, msgs[3])
	assert.Contains(t, content, "Observation from quick_port_scan")
}

func TestConstructAnswerMessages(t *testing.T) {
	summary := "user pinged the gateway"
	cur := tools.Execution{Tool: "ping_host", Params: tools.Params{"target": "10.0.0.1"}, Outcome: tools.Succeeded(map[string]int{"packets_sent": 4})}
	msgs := ConstructAnswerMessages(AnswerRequest{
		Current:  cur,
		Question: "was there loss?",
		History: []models.Turn{
			{Role: models.RoleUser, Content: "hi"},
			{Role: models.RoleAssistant, Content: "hello"},
		},
		Recent:  []tools.Execution{cur},
		Summary: &summary,
	})
	require.Len(t, msgs, 6)

	_, content := messageText(t, msgs[1])
	assert.Contains(t, content, summary)
	_, content = messageText(t, msgs[2])
	assert.Contains(t, content, `"packets_sent": 4`)
	assert.Contains(t, content, "Recent tool runs")
	role, _ := messageText(t, msgs[4])
	assert.Equal(t, "assistant", role)
	_, content = messageText(t, msgs[5])
	assert.Equal(t, "was there loss?", content)
}

func TestConstructSummarizeMessages(t *testing.T) {
	prev := "old summary"
	msgs := ConstructSummarizeMessages(SummarizeRequest{Previous: &prev, Turns: []models.Turn{{Role: "user", Content: "q1"}}})
	require.Len(t, msgs, 2)
	_, content := messageText(t, msgs[1])
	assert.Contains(t, content, "Previous summary:\nold summary")
	assert.Contains(t, content, "user: q1")
}

func TestDecodeSummary(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		wantText  string
		wantCount int
	}{
		{"json", `{"summary":"host 10.0.0.5 has 22 open","turns_summarized_count":8}`, "host 10.0.0.5 has 22 open", 8},
		{"fenced json", "```json\n{\"summary\":\"s\",\"turns_summarized_count\":3}\n```", "s", 3},
		{"missing count", `{"summary":"s"}`, "s", 12},
		{"count above sent", `{"summary":"s","turns_summarized_count":40}`, "s", 12},
		{"negative count", `{"summary":"s","turns_summarized_count":-1}`, "s", 12},
		{"plain text", "port 22 is open on the lab host", "port 22 is open on the lab host", 12},
		{"empty", "  ", "", 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := decodeSummary(tt.content, 12)
			assert.Equal(t, tt.wantText, got.Text)
			assert.Equal(t, tt.wantCount, got.Count)
		})
	}
}

func completionServer(t *testing.T, status int, body string) (*httptest.Server, *[]string) {
	t.Helper()
	var requests []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		requests = append(requests, string(b))
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &requests
}

func TestClientReason(t *testing.T) {
	body := `{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"test-model",
		"choices":[{"index":0,"finish_reason":"tool_calls","message":{"role":"assistant","content":null,
		"tool_calls":[{"id":"call_1","type":"function","function":{"name":"ping_host","arguments":"{\"target\":\"10.0.0.1\"}"}}]}}],
		"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`
	srv, requests := completionServer(t, http.StatusOK, body)

	rec := &fakeRecorder{}
	c := New(Config{Provider: "openai", Model: "test-model", APIKey: "k", BaseURL: srv.URL + "/v1/"}, nil, rec)
	d, err := c.Reason(context.Background(), ReasonRequest{Prompt: "ping it", Tools: tools.BuiltinSpecs()})
	require.NoError(t, err)

	call, ok := d.(ToolCallProposal)
	require.True(t, ok)
	assert.Equal(t, "call_1", call.CallID)
	assert.Equal(t, "ping_host", call.Tool)
	assert.Equal(t, "10.0.0.1", call.Params["target"])

	require.Len(t, *requests, 1)
	assert.Contains(t, (*requests)[0], `"model":"test-model"`)
	assert.Contains(t, (*requests)[0], `"final_report"`)
	assert.Equal(t, []string{"reason"}, rec.ops)
	assert.Equal(t, int64(10), rec.prompt)
}

func TestClientSummarize(t *testing.T) {
	body := `{"id":"chatcmpl-2","object":"chat.completion","created":1,"model":"m",
		"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant",
		"content":"{\"summary\":\"asked about 10.0.0.5\",\"turns_summarized_count\":1}"}}]}`
	srv, _ := completionServer(t, http.StatusOK, body)

	c := New(Config{Provider: "openai", Model: "m", APIKey: "k", BaseURL: srv.URL + "/v1/"}, nil, nil)
	sum, err := c.Summarize(context.Background(), SummarizeRequest{Turns: []models.Turn{
		{Role: "user", Content: "q1"}, {Role: "assistant", Content: "a1"},
	}})
	require.NoError(t, err)
	assert.Equal(t, "asked about 10.0.0.5", sum.Text)
	assert.Equal(t, 1, sum.Count)
}

func TestClientProviderError(t *testing.T) {
	srv, _ := completionServer(t, http.StatusUnauthorized, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`)

	c := New(Config{Provider: "openai", Model: "m", APIKey: "bad", BaseURL: srv.URL + "/v1/"}, nil, nil)
	_, err := c.Answer(context.Background(), AnswerRequest{Question: "q"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProvider))

	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "openai", pe.Provider)
	assert.Equal(t, "answer", pe.Op)
	assert.Equal(t, http.StatusUnauthorized, pe.Status)
}

type fakeRecorder struct {
	ops    []string
	prompt int64
}

func (f *fakeRecorder) ObserveLLM(_ string, op string, _ time.Duration, in, _ int64, _ error) {
	f.ops = append(f.ops, op)
	f.prompt += in
}

type stubBackend struct{ calls int }

func (s *stubBackend) ID() string { return "stub" }
func (s *stubBackend) Reason(context.Context, ReasonRequest) (Decision, error) {
	s.calls++
	return FinalReport{Text: "ok"}, nil
}
func (s *stubBackend) Summarize(context.Context, SummarizeRequest) (Summary, error) {
	s.calls++
	return Summary{}, nil
}
func (s *stubBackend) Answer(context.Context, AnswerRequest) (string, error) {
	s.calls++
	return "ok", nil
}

func TestWithRateLimit(t *testing.T) {
	stub := &stubBackend{}
	assert.Same(t, Backend(stub), WithRateLimit(stub, 0))

	limited := WithRateLimit(stub, 1)
	_, err := limited.Reason(context.Background(), ReasonRequest{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = limited.Answer(ctx, AnswerRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProvider))
	assert.Equal(t, 1, stub.calls)
	assert.Equal(t, "stub", limited.ID())
}
