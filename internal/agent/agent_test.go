package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"netcraft/internal/llm"
	"netcraft/internal/tools"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedReasoner struct {
	script   func(call int, req llm.ReasonRequest) (llm.Decision, error)
	requests []llm.ReasonRequest
}

func (s *scriptedReasoner) ID() string { return "fake" }

func (s *scriptedReasoner) Reason(_ context.Context, req llm.ReasonRequest) (llm.Decision, error) {
	s.requests = append(s.requests, req)
	return s.script(len(s.requests)-1, req)
}

type countingTool struct {
	calls int
	fail  bool
}

func newDispatcher(t *testing.T, tool *countingTool) *tools.Registry {
	t.Helper()
	r := tools.NewRegistry()
	require.NoError(t, r.Register(tools.ToolSpec{
		Name: "quick_port_scan",
		Params: []tools.Param{
			{Name: "target", Type: tools.TypeString, Required: true},
			{Name: "ports", Type: tools.TypeString, Default: "22,80"},
		},
	}, tools.CapabilityFunc(func(_ context.Context, p tools.Params) tools.Outcome {
		tool.calls++
		if tool.fail {
			return tools.Failed("host unreachable", nil)
		}
		return tools.Succeeded(map[string]string{"target": p.String("target")})
	})))
	return r
}

func alwaysScan(int, llm.ReasonRequest) (llm.Decision, error) {
	return llm.ToolCallProposal{Tool: "quick_port_scan", Params: map[string]any{"target": "10.0.0.5", "ports": "22,80"}}, nil
}

func TestCraftBudgetExhausted(t *testing.T) {
	tool := &countingTool{}
	r := &scriptedReasoner{script: alwaysScan}

	report, err := Craft(context.Background(), "scan ports 22 and 80 on 10.0.0.5", 3, r, newDispatcher(t, tool))
	require.NoError(t, err)
	assert.True(t, report.Exhausted)
	assert.Len(t, r.requests, 3)
	assert.Equal(t, 3, tool.calls)
	assert.Contains(t, report.Text, "Maximum iterations (3) reached")
	assert.Equal(t, 3, strings.Count(report.Text, "quick_port_scan"))
	assert.Len(t, report.Executions(), 3)
	for _, ex := range report.Executions() {
		assert.Equal(t, tools.SourceAgent, ex.Source)
	}
}

func TestCraftNeverExceedsBudget(t *testing.T) {
	for n := 1; n <= 6; n++ {
		t.Run(fmt.Sprintf("max=%d", n), func(t *testing.T) {
			tool := &countingTool{}
			// report after four tool calls
			r := &scriptedReasoner{script: func(call int, req llm.ReasonRequest) (llm.Decision, error) {
				if call == 4 {
					return llm.FinalReport{Text: "done"}, nil
				}
				return alwaysScan(call, req)
			}}
			report, err := Craft(context.Background(), "p", n, r, newDispatcher(t, tool))
			require.NoError(t, err)
			assert.LessOrEqual(t, len(r.requests), n)
			assert.Equal(t, min(n, 4), tool.calls)
			assert.Equal(t, n <= 4, report.Exhausted)
		})
	}
}

func TestCraftFeedsFailuresBack(t *testing.T) {
	tool := &countingTool{fail: true}
	r := &scriptedReasoner{script: func(call int, req llm.ReasonRequest) (llm.Decision, error) {
		switch call {
		case 0:
			return llm.ToolCallProposal{Tool: "quick_port_scan", Params: map[string]any{"target": "10.0.0.9"}}, nil
		case 1:
			return llm.ToolCallProposal{Tool: "quick_port_scan", Params: map[string]any{"host": "10.0.0.9"}}, nil
		case 2:
			return llm.ToolCallProposal{Tool: "teleport", Params: map[string]any{}}, nil
		}
		return llm.FinalReport{Text: "gave up"}, nil
	}}

	report, err := Craft(context.Background(), "scan 10.0.0.9", 10, r, newDispatcher(t, tool))
	require.NoError(t, err)
	assert.Equal(t, "gave up", report.Text)
	assert.False(t, report.Exhausted)
	require.Len(t, report.Steps, 4)
	assert.Equal(t, 1, tool.calls)

	require.Len(t, r.requests, 4)
	hist := r.requests[1].History
	require.Len(t, hist, 1)
	assert.Contains(t, hist[0].Observation, "host unreachable")

	hist = r.requests[2].History
	require.Len(t, hist, 2)
	assert.Contains(t, hist[1].Observation, "error:")
	assert.True(t, errors.Is(report.Steps[1].Err, tools.ErrValidation))

	hist = r.requests[3].History
	assert.True(t, errors.Is(report.Steps[2].Err, tools.ErrToolNotFound))
	assert.Contains(t, hist[2].Observation, "tool not found")
}

func TestCraftUnparseableBecomesReport(t *testing.T) {
	r := &scriptedReasoner{script: func(int, llm.ReasonRequest) (llm.Decision, error) {
		return llm.Unparseable{Raw: "ping_host {broken"}, nil
	}}
	report, err := Craft(context.Background(), "p", 5, r, newDispatcher(t, &countingTool{}))
	require.NoError(t, err)
	assert.Equal(t, "ping_host {broken", report.Text)
	assert.Len(t, report.Steps, 1)

	r = &scriptedReasoner{script: func(int, llm.ReasonRequest) (llm.Decision, error) {
		return llm.Unparseable{}, nil
	}}
	report, err = Craft(context.Background(), "p", 5, r, newDispatcher(t, &countingTool{}))
	require.NoError(t, err)
	assert.NotEmpty(t, report.Text)
}

func TestCraftProviderErrorAborts(t *testing.T) {
	tool := &countingTool{}
	perr := &llm.ProviderError{Provider: "fake", Op: "reason", Status: 429, Message: "rate limited"}
	r := &scriptedReasoner{script: func(call int, req llm.ReasonRequest) (llm.Decision, error) {
		if call == 1 {
			return nil, perr
		}
		return alwaysScan(call, req)
	}}

	var seen []Step
	report, err := Craft(context.Background(), "p", 5, r, newDispatcher(t, tool), OnStep(func(s Step) { seen = append(seen, s) }))
	require.Error(t, err)
	assert.True(t, errors.Is(err, llm.ErrProvider))
	require.Len(t, report.Steps, 2)
	assert.Equal(t, perr, report.Steps[1].Err)
	assert.Equal(t, 1, tool.calls)
	assert.Len(t, seen, 2)
	assert.Contains(t, report.Text, "step 2")
}

func TestCraftPassesBackground(t *testing.T) {
	r := &scriptedReasoner{script: func(int, llm.ReasonRequest) (llm.Decision, error) {
		return llm.FinalReport{Text: "ok"}, nil
	}}
	_, err := Craft(context.Background(), "p", 1, r, newDispatcher(t, &countingTool{}), WithBackground("earlier: gateway is 10.0.0.1"))
	require.NoError(t, err)
	assert.Equal(t, "earlier: gateway is 10.0.0.1", r.requests[0].Context)
	require.Len(t, r.requests[0].Tools, 1)
}

func TestObserveTruncates(t *testing.T) {
	ex := tools.Execution{Outcome: tools.Succeeded(strings.Repeat("x", 10000))}
	obs := Observe(ex)
	assert.True(t, strings.HasSuffix(obs, "(truncated)"))
	assert.Less(t, len(obs), 4100)
}

func TestObserveTruncatesOnRuneBoundary(t *testing.T) {
	ex := tools.Execution{Outcome: tools.Succeeded(strings.Repeat("é", 3000))}
	obs := Observe(ex)
	assert.True(t, strings.HasSuffix(obs, "(truncated)"))
	assert.True(t, utf8.ValidString(obs))
	assert.LessOrEqual(t, len(obs), 4000+len("... (truncated)"))
}

func TestPassivePrompt(t *testing.T) {
	assert.Equal(t, "Passively craft the following (return JSON structure only, do not send): SYN to 10.0.0.1:443", PassivePrompt("SYN to 10.0.0.1:443"))
}
