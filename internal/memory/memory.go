// Package memory keeps the assistant conversation about tool results and
// compacts it into a rolling summary.
package memory

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"netcraft/internal/llm"
	"netcraft/internal/models"
	"netcraft/internal/tools"
)

var ErrNoContext = errors.New("no tool context: run a tool before asking the assistant")

// Config sizes are counted in exchanges (a question and its answer) and
// tool-switch markers. A threshold of 10 therefore holds up to 20 turns.
type Config struct {
	SummarizeThreshold int
	KeepTurns          int
	KeepMarkers        int
}

func DefaultConfig() Config {
	return Config{SummarizeThreshold: 10, KeepTurns: 4, KeepMarkers: 3}
}

// Assistant is the part of a backend the manager needs.
type Assistant interface {
	Summarize(ctx context.Context, req llm.SummarizeRequest) (llm.Summary, error)
	Answer(ctx context.Context, req llm.AnswerRequest) (string, error)
}

// Entry is either a conversation turn or a tool-switch marker.
type Entry struct {
	Turn   *models.Turn
	Marker *models.ToolSwitch
}

// Manager is not safe for concurrent use; the owning session serializes
// calls.
type Manager struct {
	cfg       Config
	entries   []Entry
	summary   *string
	current   *tools.Execution
	recent    func() []tools.Execution
	logger    *slog.Logger
	onCompact func(folded int, err error)
	now       func() time.Time

	maxMarkers int
}

type Option func(*Manager)

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l.With("component", "memory")
		}
	}
}

// WithRecent supplies the recent-executions list passed to the backend.
func WithRecent(fn func() []tools.Execution) Option {
	return func(m *Manager) { m.recent = fn }
}

// OnCompact is called after every compaction attempt.
func OnCompact(fn func(folded int, err error)) Option {
	return func(m *Manager) { m.onCompact = fn }
}

// WithMarkerLimit caps how many tool-switch markers are kept between
// compactions; the oldest is dropped first. Zero means no cap.
func WithMarkerLimit(n int) Option {
	return func(m *Manager) { m.maxMarkers = n }
}

func NewManager(cfg Config, opts ...Option) *Manager {
	def := DefaultConfig()
	if cfg.SummarizeThreshold <= 0 {
		cfg.SummarizeThreshold = def.SummarizeThreshold
	}
	if cfg.KeepTurns < 0 || cfg.KeepTurns >= cfg.SummarizeThreshold {
		cfg.KeepTurns = min(def.KeepTurns, cfg.SummarizeThreshold-1)
	}
	if cfg.KeepMarkers <= 0 {
		cfg.KeepMarkers = def.KeepMarkers
	}
	m := &Manager{
		cfg:    cfg,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		recent: func() []tools.Execution { return nil },
		now:    time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// RecordToolSwitch makes ex the current tool context.
func (m *Manager) RecordToolSwitch(ex tools.Execution) {
	cur := ex
	m.current = &cur
	m.entries = append(m.entries, Entry{Marker: &models.ToolSwitch{
		ExecutionID: ex.ID,
		Tool:        ex.Tool,
		Timestamp:   m.now(),
	}})
	if m.maxMarkers > 0 && len(m.Markers()) > m.maxMarkers {
		m.dropOldestMarker()
	}
}

func (m *Manager) dropOldestMarker() {
	for i, e := range m.entries {
		if e.Marker != nil {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			return
		}
	}
}

// Ask answers question about the current tool context, compacting the
// history first when it has reached the threshold. If answering fails the
// question is not kept.
func (m *Manager) Ask(ctx context.Context, a Assistant, question string) (string, error) {
	if m.current == nil {
		return "", ErrNoContext
	}

	if m.exchanges() >= m.cfg.SummarizeThreshold {
		m.compact(ctx, a)
	}

	history := m.Turns()
	m.entries = append(m.entries, Entry{Turn: &models.Turn{Role: models.RoleUser, Content: question, Timestamp: m.now()}})

	answer, err := a.Answer(ctx, llm.AnswerRequest{
		Current:  *m.current,
		Question: question,
		History:  history,
		Recent:   m.recent(),
		Summary:  m.Summary(),
	})
	if err != nil {
		m.entries = m.entries[:len(m.entries)-1]
		return "", err
	}

	m.entries = append(m.entries, Entry{Turn: &models.Turn{Role: models.RoleAssistant, Content: answer, Timestamp: m.now()}})
	return answer, nil
}

// compact folds everything but the last KeepTurns exchanges into the
// summary. On failure the history is left untouched.
func (m *Manager) compact(ctx context.Context, a Assistant) {
	turns := m.Turns()
	cut := m.keepFrom(turns)
	fold := turns[:cut]

	res, err := a.Summarize(ctx, llm.SummarizeRequest{Previous: m.Summary(), Turns: fold})
	if m.onCompact != nil {
		m.onCompact(len(fold), err)
	}
	if err != nil {
		m.logger.Warn("compaction", "status", "skipped", "turns", len(turns), "error", err)
		return
	}

	markers := m.Markers()
	if len(markers) > m.cfg.KeepMarkers {
		markers = markers[len(markers)-m.cfg.KeepMarkers:]
	}
	entries := make([]Entry, 0, len(markers)+len(turns)-cut)
	for i := range markers {
		entries = append(entries, Entry{Marker: &markers[i]})
	}
	kept := turns[cut:]
	for i := range kept {
		entries = append(entries, Entry{Turn: &kept[i]})
	}
	m.entries = entries
	summary := res.Text
	m.summary = &summary
	m.logger.Info("compaction", "status", "ok", "folded", len(fold), "summarized", res.Count, "kept", len(kept))
}

// keepFrom returns the index of the first turn of the exchanges to keep.
func (m *Manager) keepFrom(turns []models.Turn) int {
	seen := 0
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role != models.RoleUser {
			continue
		}
		seen++
		if seen == m.cfg.KeepTurns {
			return i
		}
	}
	if m.cfg.KeepTurns == 0 {
		return len(turns)
	}
	return 0
}

func (m *Manager) exchanges() int {
	n := 0
	for _, e := range m.entries {
		if e.Turn != nil && e.Turn.Role == models.RoleUser {
			n++
		}
	}
	return n
}

// Clear drops the conversation and the summary. The current tool context
// and markers stay so the user can keep asking about the last run.
func (m *Manager) Clear() {
	kept := m.entries[:0]
	for _, e := range m.entries {
		if e.Marker != nil {
			kept = append(kept, e)
		}
	}
	m.entries = kept
	m.summary = nil
}

func (m *Manager) Summary() *string {
	if m.summary == nil {
		return nil
	}
	s := *m.summary
	return &s
}

func (m *Manager) Turns() []models.Turn {
	out := make([]models.Turn, 0, len(m.entries))
	for _, e := range m.entries {
		if e.Turn != nil {
			out = append(out, *e.Turn)
		}
	}
	return out
}

func (m *Manager) Markers() []models.ToolSwitch {
	out := make([]models.ToolSwitch, 0)
	for _, e := range m.entries {
		if e.Marker != nil {
			out = append(out, *e.Marker)
		}
	}
	return out
}

// Entries returns the stored sequence in order.
func (m *Manager) Entries() []Entry {
	return append([]Entry(nil), m.entries...)
}

func (m *Manager) Current() (tools.Execution, bool) {
	if m.current == nil {
		return tools.Execution{}, false
	}
	return *m.current, true
}
