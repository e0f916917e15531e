package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Capability performs the work behind a tool. Params are already validated.
type Capability interface {
	Invoke(ctx context.Context, params Params) Outcome
}

type CapabilityFunc func(ctx context.Context, params Params) Outcome

func (f CapabilityFunc) Invoke(ctx context.Context, params Params) Outcome {
	return f(ctx, params)
}

// Observer is notified after every execution. Metrics hook in here.
type Observer func(e Execution)

type entry struct {
	spec ToolSpec
	cap  Capability
}

// Registry maps tool names to their spec and capability. Safe for
// concurrent use.
type Registry struct {
	mu        sync.RWMutex
	entries   map[string]entry
	timeout   time.Duration
	logger    *slog.Logger
	observers []Observer
	now       func() time.Time
}

type Option func(*Registry)

// WithTimeout bounds every capability invocation.
func WithTimeout(d time.Duration) Option {
	return func(r *Registry) { r.timeout = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l.With("component", "tools")
		}
	}
}

func WithObserver(o Observer) Option {
	return func(r *Registry) { r.observers = append(r.observers, o) }
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		entries: make(map[string]entry),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:     time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Register adds a tool. Names are unique and the ToolSpec must be well formed.
func (r *Registry) Register(spec ToolSpec, c Capability) error {
	if err := spec.check(); err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("%s: nil capability", spec.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.entries[spec.Name]; dup {
		return fmt.Errorf("tool %q already registered", spec.Name)
	}
	r.entries[spec.Name] = entry{spec: spec, cap: c}
	return nil
}

// List returns every registered spec sorted by name.
func (r *Registry) List() []ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ToolSpec, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Registry) Describe(name string) (ToolSpec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return ToolSpec{}, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return e.spec, nil
}

// Execute validates params, invokes the capability and returns the
// execution record. Errors are returned only for unknown tools and
// validation failures; everything else is a failed Outcome.
func (r *Registry) Execute(ctx context.Context, name string, params map[string]any) (Execution, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return Execution{}, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	valid, err := e.spec.Validate(params)
	if err != nil {
		r.logger.Info("tool_exec", "tool", name, "rejected", err.Error())
		return Execution{}, err
	}

	callCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	started := r.now()
	out := e.cap.Invoke(callCtx, valid.clone())
	elapsed := r.now().Sub(started)

	if !out.Success {
		switch {
		case errors.Is(callCtx.Err(), context.DeadlineExceeded):
			out = Failed(fmt.Sprintf("timed out after %s", elapsed.Round(time.Millisecond)), out.Payload)
		case errors.Is(callCtx.Err(), context.Canceled):
			out = Failed("canceled", out.Payload)
		}
	}

	ex := Execution{
		ID:        ulid.Make().String(),
		Timestamp: started,
		Tool:      name,
		Params:    valid,
		Outcome:   out,
		Duration:  elapsed,
		Source:    sourceFrom(ctx),
	}

	attrs := []any{"tool", name, "id", ex.ID, "success", out.Success, "duration_ms", elapsed.Milliseconds(), "source", ex.Source}
	if out.Error != "" {
		attrs = append(attrs, "error", out.Error)
	}
	r.logger.Info("tool_exec", attrs...)

	for _, o := range r.observers {
		o(ex)
	}
	return ex, nil
}

func (p Params) clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
