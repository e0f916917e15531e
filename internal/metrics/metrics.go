// Package metrics exposes prometheus instruments for tool runs, backend
// calls, craft runs and memory compaction.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"netcraft/internal/tools"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns its registry so several sessions or tests never collide on
// the global one. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	ToolExecutions *prometheus.CounterVec
	ToolDuration   *prometheus.HistogramVec
	LLMRequests    *prometheus.CounterVec
	LLMDuration    *prometheus.HistogramVec
	LLMTokensTotal *prometheus.CounterVec
	CraftRuns      *prometheus.CounterVec
	CraftSteps     prometheus.Histogram
	Compactions    *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		ToolExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netcraft_tool_executions_total",
			Help: "Tool executions by tool, source and status.",
		}, []string{"tool", "source", "status"}),
		ToolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "netcraft_tool_duration_seconds",
			Help:    "Tool execution time in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"tool"}),
		LLMRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netcraft_llm_requests_total",
			Help: "Backend calls by provider, operation and status.",
		}, []string{"provider", "op", "status"}),
		LLMDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "netcraft_llm_duration_seconds",
			Help:    "Backend call latency in seconds.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"provider", "op"}),
		LLMTokensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netcraft_llm_tokens_total",
			Help: "Tokens exchanged with backends.",
		}, []string{"provider", "direction"}), // input | output
		CraftRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netcraft_craft_runs_total",
			Help: "Craft runs by result.",
		}, []string{"result"}), // report | exhausted | error
		CraftSteps: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "netcraft_craft_steps",
			Help:    "Reasoning steps used per craft run.",
			Buckets: []float64{1, 2, 3, 5, 8, 10, 15, 20},
		}),
		Compactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netcraft_memory_compactions_total",
			Help: "Assistant memory compaction attempts by status.",
		}, []string{"status"}),
	}
	m.Registry.MustRegister(
		m.ToolExecutions, m.ToolDuration,
		m.LLMRequests, m.LLMDuration, m.LLMTokensTotal,
		m.CraftRuns, m.CraftSteps, m.Compactions,
	)
	return m
}

func status(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

// ObserveExecution matches tools.Observer.
func (m *Metrics) ObserveExecution(e tools.Execution) {
	if m == nil {
		return
	}
	m.ToolExecutions.WithLabelValues(e.Tool, string(e.Source), status(e.Outcome.Success)).Inc()
	m.ToolDuration.WithLabelValues(e.Tool).Observe(e.Duration.Seconds())
}

// ObserveLLM implements llm.Recorder.
func (m *Metrics) ObserveLLM(provider, op string, d time.Duration, promptTokens, completionTokens int64, err error) {
	if m == nil {
		return
	}
	m.LLMRequests.WithLabelValues(provider, op, status(err == nil)).Inc()
	m.LLMDuration.WithLabelValues(provider, op).Observe(d.Seconds())
	if promptTokens > 0 {
		m.LLMTokensTotal.WithLabelValues(provider, "input").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.LLMTokensTotal.WithLabelValues(provider, "output").Add(float64(completionTokens))
	}
}

// ObserveCraft records a finished craft run; result is report, exhausted
// or error.
func (m *Metrics) ObserveCraft(result string, steps int) {
	if m == nil {
		return
	}
	m.CraftRuns.WithLabelValues(result).Inc()
	m.CraftSteps.Observe(float64(steps))
}

func (m *Metrics) ObserveCompaction(err error) {
	if m == nil {
		return
	}
	m.Compactions.WithLabelValues(status(err == nil)).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
