// Package agent runs the bounded reason / act loop behind "craft".
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"netcraft/internal/llm"
	"netcraft/internal/tools"
)

const (
	DefaultMaxIterations = 10
	maxObservationLen    = 4000

	// PassiveIterations bounds a passive craft: describe the packet, never send it.
	PassiveIterations = 2
)

// PassivePrompt asks the reasoner for a packet structure only.
func PassivePrompt(prompt string) string {
	return "Passively craft the following (return JSON structure only, do not send): " + prompt
}

// Reasoner is the part of a backend the loop needs.
type Reasoner interface {
	ID() string
	Reason(ctx context.Context, req llm.ReasonRequest) (llm.Decision, error)
}

// Dispatcher validates and runs tool calls.
type Dispatcher interface {
	List() []tools.ToolSpec
	Execute(ctx context.Context, name string, params map[string]any) (tools.Execution, error)
}

// Step records one reasoning cycle. Execution is set when a tool ran; Err
// is set when the call was rejected or reasoning failed.
type Step struct {
	Index     int
	Decision  llm.Decision
	Execution *tools.Execution
	Err       error
}

type Report struct {
	Text      string
	Steps     []Step
	Exhausted bool
	Provider  string
}

// Executions returns the tool executions of every step, in order.
func (r Report) Executions() []tools.Execution {
	out := make([]tools.Execution, 0, len(r.Steps))
	for _, s := range r.Steps {
		if s.Execution != nil {
			out = append(out, *s.Execution)
		}
	}
	return out
}

type options struct {
	stepTimeout   time.Duration
	reasonTimeout time.Duration
	background    string
	logger        *slog.Logger
	onStep        func(Step)
}

type Option func(*options)

// WithStepTimeout bounds each tool call.
func WithStepTimeout(d time.Duration) Option { return func(o *options) { o.stepTimeout = d } }

// WithReasonTimeout bounds each reasoning call.
func WithReasonTimeout(d time.Duration) Option { return func(o *options) { o.reasonTimeout = d } }

// WithBackground passes extra context, such as the assistant summary.
func WithBackground(text string) Option { return func(o *options) { o.background = text } }

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// OnStep is called after every completed step.
func OnStep(fn func(Step)) Option { return func(o *options) { o.onStep = fn } }

// Craft turns prompt into a report using at most maxIterations reasoning
// calls. Tool failures are fed back to the reasoner as observations. A
// reasoning failure ends the run and is returned with the partial report.
func Craft(ctx context.Context, prompt string, maxIterations int, r Reasoner, d Dispatcher, opts ...Option) (Report, error) {
	o := options{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, fn := range opts {
		fn(&o)
	}
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	log := o.logger.With("component", "agent", "provider", r.ID())

	report := Report{Provider: r.ID()}
	history := make([]llm.Exchange, 0, maxIterations)
	specs := d.List()

	for i := 0; i < maxIterations; i++ {
		decision, err := reason(ctx, r, o.reasonTimeout, llm.ReasonRequest{
			Prompt:  prompt,
			Context: o.background,
			History: history,
			Tools:   specs,
		})
		if err != nil {
			step := Step{Index: i, Err: err}
			report.Steps = append(report.Steps, step)
			o.notify(step)
			report.Text = fmt.Sprintf("Reasoning failed at step %d: %v", i+1, err)
			log.Warn("craft_aborted", "step", i+1, "error", err)
			return report, err
		}

		step := Step{Index: i, Decision: decision}
		switch dec := decision.(type) {
		case llm.FinalReport:
			report.Steps = append(report.Steps, step)
			o.notify(step)
			report.Text = dec.Text
			log.Info("craft_done", "steps", i+1)
			return report, nil

		case llm.Unparseable:
			report.Steps = append(report.Steps, step)
			o.notify(step)
			report.Text = dec.Raw
			if strings.TrimSpace(report.Text) == "" {
				report.Text = "Agent completed without producing output"
			}
			log.Info("craft_done", "steps", i+1, "unparseable", true)
			return report, nil

		case llm.ToolCallProposal:
			observation := dispatch(ctx, d, o.stepTimeout, dec, &step)
			history = append(history, llm.Exchange{Tool: dec.Tool, Params: dec.Params, Observation: observation})
			report.Steps = append(report.Steps, step)
			o.notify(step)
			log.Info("craft_step", "step", i+1, "tool", dec.Tool, "ok", step.Err == nil && step.Execution.Outcome.Success)
		}
	}

	report.Exhausted = true
	report.Text = exhaustedReport(maxIterations, report.Steps)
	log.Info("craft_exhausted", "steps", maxIterations)
	return report, nil
}

func (o options) notify(s Step) {
	if o.onStep != nil {
		o.onStep(s)
	}
}

func reason(ctx context.Context, r Reasoner, timeout time.Duration, req llm.ReasonRequest) (llm.Decision, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return r.Reason(ctx, req)
}

func dispatch(ctx context.Context, d Dispatcher, timeout time.Duration, call llm.ToolCallProposal, step *Step) string {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	ex, err := d.Execute(tools.WithSource(ctx, tools.SourceAgent), call.Tool, call.Params)
	if err != nil {
		step.Err = err
		return "error: " + err.Error()
	}
	step.Execution = &ex
	return Observe(ex)
}

// Observe renders an execution as the text the reasoner sees.
func Observe(ex tools.Execution) string {
	b, err := json.Marshal(ex.Outcome)
	if err != nil {
		return fmt.Sprintf("success=%t error=%s", ex.Outcome.Success, ex.Outcome.Error)
	}
	s := string(b)
	if len(s) > maxObservationLen {
		cut := maxObservationLen
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut] + "... (truncated)"
	}
	return s
}

func exhaustedReport(max int, steps []Step) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Maximum iterations (%d) reached without a final report.\n", max)
	if len(steps) == 0 {
		return sb.String()
	}
	sb.WriteString("Tool calls attempted:\n")
	for _, s := range steps {
		call, ok := s.Decision.(llm.ToolCallProposal)
		if !ok {
			continue
		}
		args, _ := json.Marshal(call.Params)
		status := "ok"
		switch {
		case s.Err != nil:
			status = "rejected: " + s.Err.Error()
		case !s.Execution.Outcome.Success:
			status = "failed: " + s.Execution.Outcome.Error
		}
		fmt.Fprintf(&sb, "%d. %s %s (%s)\n", s.Index+1, call.Tool, args, status)
	}
	return sb.String()
}
