// Package session owns the per-user state: the execution ring, the
// assistant memory and the active provider. Every operation on a Session
// holds its lock, so requests within one session never interleave.
package session

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sync"
	"time"

	"netcraft/internal/agent"
	"netcraft/internal/db"
	"netcraft/internal/memory"
	"netcraft/internal/metrics"
	"netcraft/internal/models"
	"netcraft/internal/provider"
	"netcraft/internal/tools"

	"github.com/google/uuid"
)

type Config struct {
	MaxIterations int
	StepTimeout   time.Duration
	ReasonTimeout time.Duration
	RingSize      int
	Memory        memory.Config
	Provider      string
}

// Deps are shared across sessions. DB and Metrics are optional.
type Deps struct {
	Registry *tools.Registry
	Selector *provider.Selector
	DB       *sql.DB
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

type Session struct {
	id  string
	cfg Config

	registry *tools.Registry
	selector *provider.Selector
	audit    *sql.DB
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu       sync.Mutex
	provider string
	ring     *tools.Ring
	memory   *memory.Manager
}

func New(cfg Config, deps Deps) *Session {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = agent.DefaultMaxIterations
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Session{
		id:       uuid.NewString(),
		cfg:      cfg,
		registry: deps.Registry,
		selector: deps.Selector,
		audit:    deps.DB,
		metrics:  deps.Metrics,
		provider: provider.Normalize(cfg.Provider),
		ring:     tools.NewRing(cfg.RingSize),
	}
	s.logger = logger.With("session", s.id)
	s.memory = memory.NewManager(cfg.Memory,
		memory.WithLogger(s.logger),
		memory.WithRecent(s.ring.Snapshot),
		memory.WithMarkerLimit(s.ring.Cap()),
		memory.OnCompact(func(_ int, err error) { s.metrics.ObserveCompaction(err) }),
	)
	return s
}

func (s *Session) ID() string { return s.id }

// Provider is the id used when a call does not name one; empty means auto.
func (s *Session) Provider() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.provider
}

// SetProvider switches the default provider after checking it resolves.
func (s *Session) SetProvider(ctx context.Context, id string) error {
	id = provider.Normalize(id)
	if _, err := s.selector.Resolve(ctx, id); err != nil {
		return err
	}
	s.mu.Lock()
	s.provider = id
	s.mu.Unlock()
	return nil
}

// Craft runs the agent loop. An empty providerID uses the session default.
// The executions of the run join the ring and the last one becomes the
// assistant's tool context.
func (s *Session) Craft(ctx context.Context, prompt string, maxIterations int, providerID string, opts ...agent.Option) (agent.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if providerID == "" {
		providerID = s.provider
	}
	backend, err := s.selector.Backend(ctx, providerID)
	if err != nil {
		s.metrics.ObserveCraft("error", 0)
		return agent.Report{}, err
	}
	if maxIterations <= 0 {
		maxIterations = s.cfg.MaxIterations
	}

	base := []agent.Option{
		agent.WithStepTimeout(s.cfg.StepTimeout),
		agent.WithReasonTimeout(s.cfg.ReasonTimeout),
		agent.WithLogger(s.logger),
	}
	if sum := s.memory.Summary(); sum != nil {
		base = append(base, agent.WithBackground(*sum))
	}
	started := time.Now()
	report, err := agent.Craft(ctx, prompt, maxIterations, backend, s.registry, append(base, opts...)...)

	for _, ex := range report.Executions() {
		s.record(ex)
	}

	result := "report"
	switch {
	case err != nil:
		result = "error"
	case report.Exhausted:
		result = "exhausted"
	}
	s.metrics.ObserveCraft(result, len(report.Steps))

	if s.audit != nil {
		_, aerr := db.RecordCraft(s.audit, db.CraftRun{
			CreatedAtUnix: started.Unix(),
			SessionID:     s.id,
			Provider:      report.Provider,
			Prompt:        prompt,
			Report:        report.Text,
			Steps:         len(report.Steps),
			Exhausted:     report.Exhausted,
			Executions:    report.Executions(),
		})
		if aerr != nil {
			s.logger.Warn("audit", "op", "craft", "error", aerr)
		}
	}
	return report, err
}

func (s *Session) ListTools() []tools.ToolSpec {
	return s.registry.List()
}

func (s *Session) DescribeTool(name string) (tools.ToolSpec, error) {
	return s.registry.Describe(name)
}

// ExecuteTool runs a tool directly. Rejected calls leave the session
// untouched.
func (s *Session) ExecuteTool(ctx context.Context, name string, params map[string]any) (tools.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ex, err := s.registry.Execute(tools.WithSource(ctx, tools.SourceDirect), name, params)
	if err != nil {
		return tools.Execution{}, err
	}
	s.record(ex)
	s.auditExecution(ex)
	return ex, nil
}

// RecordToolExecution adopts an execution produced elsewhere.
func (s *Session) RecordToolExecution(ex tools.Execution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(ex)
	s.auditExecution(ex)
}

// auditExecution writes a standalone execution. Failures only warn.
func (s *Session) auditExecution(ex tools.Execution) {
	if s.audit == nil {
		return
	}
	if err := db.RecordExecution(s.audit, s.id, ex); err != nil {
		s.logger.Warn("audit", "op", "execution", "tool", ex.Tool, "error", err)
	}
}

func (s *Session) record(ex tools.Execution) {
	s.ring.Add(ex)
	s.memory.RecordToolSwitch(ex)
}

// AskAssistant answers a follow-up question about the current tool
// context using the session's provider.
func (s *Session) AskAssistant(ctx context.Context, question string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.memory.Current(); !ok {
		return "", memory.ErrNoContext
	}
	backend, err := s.selector.Backend(ctx, s.provider)
	if err != nil {
		return "", err
	}
	return s.memory.Ask(ctx, backend, question)
}

func (s *Session) ClearAssistantChat() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memory.Clear()
}

func (s *Session) AvailableProviders(ctx context.Context) []string {
	return s.selector.AvailableProviders(ctx)
}

func (s *Session) Providers(ctx context.Context) []models.ProviderInfo {
	return s.selector.Describe(ctx)
}

// RecentExecutions returns the ring, oldest first.
func (s *Session) RecentExecutions() []tools.Execution {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ring.Snapshot()
}

func (s *Session) CurrentTool() (tools.Execution, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.memory.Current()
}

func (s *Session) Summary() *string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.memory.Summary()
}

func (s *Session) Turns() []models.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.memory.Turns()
}

// History pages through audited craft runs, newest first. Without a
// database it is empty.
func (s *Session) History(limit, offset int) (int, []models.CraftListItem, error) {
	if s.audit == nil {
		return 0, nil, nil
	}
	return db.GetRecentCrafts(s.audit, limit, offset)
}

// CraftRecord returns one audited craft run.
func (s *Session) CraftRecord(craftID int64) (models.CraftListItem, error) {
	if s.audit == nil {
		return models.CraftListItem{}, db.ErrCraftNotFound
	}
	return db.GetCraft(s.audit, craftID)
}

func (s *Session) CraftExecutions(craftID int64) ([]models.ExecutionListItem, error) {
	if s.audit == nil {
		return nil, nil
	}
	return db.GetCraftExecutions(s.audit, craftID)
}
