package tools

import (
	"context"
	"time"
)

// Source tells who triggered an execution.
type Source string

const (
	SourceDirect Source = "direct"
	SourceAgent  Source = "agent"
)

type sourceKey struct{}

// WithSource tags executions started under ctx with src.
func WithSource(ctx context.Context, src Source) context.Context {
	return context.WithValue(ctx, sourceKey{}, src)
}

func sourceFrom(ctx context.Context) Source {
	if src, ok := ctx.Value(sourceKey{}).(Source); ok {
		return src
	}
	return SourceDirect
}

// Outcome is the result of invoking a capability. Failures are values:
// Success is false and Error carries the message.
type Outcome struct {
	Success bool   `json:"success"`
	Payload any    `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}

func Succeeded(payload any) Outcome {
	return Outcome{Success: true, Payload: payload}
}

func Failed(msg string, payload any) Outcome {
	return Outcome{Success: false, Error: msg, Payload: payload}
}

// Execution records one tool invocation. It is never mutated once returned.
type Execution struct {
	ID        string        `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	Tool      string        `json:"tool"`
	Params    Params        `json:"params"`
	Outcome   Outcome       `json:"outcome"`
	Duration  time.Duration `json:"duration"`
	Source    Source        `json:"source"`
}

// Ring keeps the most recent executions, oldest evicted first.
// It is not safe for concurrent use; the owning session serializes access.
type Ring struct {
	buf   []Execution
	start int
	size  int
	total int
}

const DefaultRingSize = 10

func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultRingSize
	}
	return &Ring{buf: make([]Execution, capacity)}
}

func (r *Ring) Add(e Execution) {
	c := len(r.buf)
	if r.size < c {
		r.buf[(r.start+r.size)%c] = e
		r.size++
	} else {
		r.buf[r.start] = e
		r.start = (r.start + 1) % c
	}
	r.total++
}

func (r *Ring) Cap() int { return len(r.buf) }

// Snapshot returns the retained executions, oldest first.
func (r *Ring) Snapshot() []Execution {
	out := make([]Execution, 0, r.size)
	for i := 0; i < r.size; i++ {
		out = append(out, r.buf[(r.start+i)%len(r.buf)])
	}
	return out
}

func (r *Ring) Latest() (Execution, bool) {
	if r.size == 0 {
		return Execution{}, false
	}
	return r.buf[(r.start+r.size-1)%len(r.buf)], true
}

func (r *Ring) Len() int { return r.size }

// Total counts every execution ever added, evicted ones included.
func (r *Ring) Total() int { return r.total }
