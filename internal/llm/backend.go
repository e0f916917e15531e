package llm

import (
	"context"
	"errors"
	"fmt"

	"netcraft/internal/models"
	"netcraft/internal/tools"
)

var ErrProvider = errors.New("provider error")

// ProviderError is returned when a reasoning backend is unreachable or
// rejects a request.
type ProviderError struct {
	Provider string
	Op       string
	Status   int
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s %s: %d %s", e.Provider, e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("%s %s: %s", e.Provider, e.Op, e.Message)
}

func (e *ProviderError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrProvider}
	}
	return []error{ErrProvider, e.Err}
}

// Decision is what a reasoning step produced: one of ToolCallProposal,
// FinalReport or Unparseable.
type Decision interface {
	isDecision()
}

type ToolCallProposal struct {
	CallID string
	Tool   string
	Params map[string]any
}

type FinalReport struct {
	Text string
}

// Unparseable carries output that was neither a usable tool call nor a
// report.
type Unparseable struct {
	Raw string
}

func (ToolCallProposal) isDecision() {}
func (FinalReport) isDecision()      {}
func (Unparseable) isDecision()      {}

// Exchange is one prior step as shown to the backend: the call it made and
// what came back.
type Exchange struct {
	Tool        string
	Params      map[string]any
	Observation string
}

type ReasonRequest struct {
	Prompt  string
	Context string // optional background, e.g. the assistant summary
	History []Exchange
	Tools   []tools.ToolSpec
}

type SummarizeRequest struct {
	Previous *string
	Turns    []models.Turn
}

type Summary struct {
	Text  string
	Count int
}

type AnswerRequest struct {
	Current  tools.Execution
	Question string
	History  []models.Turn
	Recent   []tools.Execution
	Summary  *string
}

// Backend is a reasoning provider.
type Backend interface {
	ID() string
	Reason(ctx context.Context, req ReasonRequest) (Decision, error)
	Summarize(ctx context.Context, req SummarizeRequest) (Summary, error)
	Answer(ctx context.Context, req AnswerRequest) (string, error)
}
