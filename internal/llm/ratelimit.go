package llm

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limited throttles calls to a backend. Waiting honours ctx; a cancelled
// wait surfaces as a ProviderError.
type Limited struct {
	Backend
	limiter *rate.Limiter
}

// WithRateLimit wraps b so it makes at most perMinute calls per minute.
// A non-positive rate returns b unchanged.
func WithRateLimit(b Backend, perMinute float64) Backend {
	if perMinute <= 0 {
		return b
	}
	burst := int(perMinute / 10)
	if burst < 1 {
		burst = 1
	}
	return &Limited{
		Backend: b,
		limiter: rate.NewLimiter(rate.Every(time.Duration(float64(time.Minute)/perMinute)), burst),
	}
}

func (l *Limited) wait(ctx context.Context, op string) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return &ProviderError{Provider: l.ID(), Op: op, Message: "rate limit wait: " + err.Error(), Err: err}
	}
	return nil
}

func (l *Limited) Reason(ctx context.Context, req ReasonRequest) (Decision, error) {
	if err := l.wait(ctx, "reason"); err != nil {
		return nil, err
	}
	return l.Backend.Reason(ctx, req)
}

func (l *Limited) Summarize(ctx context.Context, req SummarizeRequest) (Summary, error) {
	if err := l.wait(ctx, "summarize"); err != nil {
		return Summary{}, err
	}
	return l.Backend.Summarize(ctx, req)
}

func (l *Limited) Answer(ctx context.Context, req AnswerRequest) (string, error) {
	if err := l.wait(ctx, "answer"); err != nil {
		return "", err
	}
	return l.Backend.Answer(ctx, req)
}
