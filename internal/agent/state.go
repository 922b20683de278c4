package agent

import (
	"context"
	"time"

	"github.com/Hemesh11/autotasker/internal/memory"
	"github.com/Hemesh11/autotasker/internal/retry"
	"github.com/Hemesh11/autotasker/internal/tools"
)

// WorkflowState is the mutable record threaded through one run. Only its
// ExecutionLog projection outlives the run.
type WorkflowState struct {
	ExecutionID string                           `json:"execution_id"`
	Source      string                           `json:"source"`
	Request     string                           `json:"request"`
	Plan        *TaskPlan                        `json:"plan,omitempty"`
	Cursor      int                              `json:"cursor"`
	Results     map[string]tools.ExecutionResult `json:"results"`
	ResultOrder []string                         `json:"result_order"`
	Errors      []string                         `json:"errors"`
	RetryCount  int                              `json:"retry_count"`
	Retries     []retry.Decision                 `json:"retries,omitempty"`
	Memory      memory.Verdict                   `json:"memory_check"`
	Skipped     bool                             `json:"skipped"`
	Delivery    *tools.ExecutionResult           `json:"delivery,omitempty"`
	Success     bool                             `json:"success"`
	StartedAt   time.Time                        `json:"started_at"`
	FinishedAt  time.Time                        `json:"finished_at"`

	// per-run bookkeeping, not part of the log projection
	pendingError bool
	lastTask     *tools.TaskDescriptor
	lastKey      string
	taskErrors   map[string][]string
	deliverVia   int
	summarized   map[string]bool
}

func newWorkflowState(executionID, request, source string, now time.Time) *WorkflowState {
	return &WorkflowState{
		ExecutionID: executionID,
		Source:      source,
		Request:     request,
		Results:     make(map[string]tools.ExecutionResult),
		Errors:      []string{},
		StartedAt:   now,
		taskErrors:  make(map[string][]string),
		deliverVia:  -1,
		summarized:  make(map[string]bool),
	}
}

func (s *WorkflowState) putResult(key string, res tools.ExecutionResult) {
	if _, exists := s.Results[key]; !exists {
		s.ResultOrder = append(s.ResultOrder, key)
	}
	s.Results[key] = res
}

// DomainsTouched returns the distinct kinds of dispatched tasks in plan order.
func (s *WorkflowState) DomainsTouched() []string {
	if s.Plan == nil {
		return nil
	}
	seen := make(map[tools.Kind]bool)
	var out []string
	for i, t := range s.Plan.Tasks {
		if i >= s.Cursor && i != s.deliverVia {
			break
		}
		if !seen[t.Kind] {
			seen[t.Kind] = true
			out = append(out, string(t.Kind))
		}
	}
	return out
}

// Duration is the wall-clock time of the run.
func (s *WorkflowState) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// ExecutionLog is the persisted projection of a finished run.
type ExecutionLog struct {
	ExecutionID string                           `json:"execution_id"`
	Source      string                           `json:"source"`
	Request     string                           `json:"request"`
	Plan        *TaskPlan                        `json:"plan,omitempty"`
	Results     map[string]tools.ExecutionResult `json:"results"`
	Errors      []string                         `json:"errors"`
	RetryCount  int                              `json:"retry_count"`
	Skipped     bool                             `json:"skipped"`
	Success     bool                             `json:"success"`
	StartedAt   time.Time                        `json:"started_at"`
	Duration    time.Duration                    `json:"duration"`
}

// LogReceipt is returned by an ExecutionLogger.
type LogReceipt struct {
	Success     bool
	ExecutionID string
}

// ExecutionLogger persists one ExecutionLog per run.
type ExecutionLogger interface {
	RecordExecution(ctx context.Context, entry ExecutionLog) (LogReceipt, error)
}

// Notifier delivers the consolidated report. Called exactly once per run.
type Notifier interface {
	Deliver(ctx context.Context, subject, body string) (tools.ExecutionResult, error)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, subject, body string) (tools.ExecutionResult, error)

func (f NotifierFunc) Deliver(ctx context.Context, subject, body string) (tools.ExecutionResult, error) {
	return f(ctx, subject, body)
}

// Memory is the subset of the memory store the orchestrator needs.
type Memory interface {
	Check(text string) memory.Verdict
	Record(r memory.Record) error
}
