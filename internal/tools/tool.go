package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrNoExecutor is returned when a task kind has no registered executor.
var ErrNoExecutor = errors.New("no executor registered")

// Kind is the closed set of dispatch lanes a task can be routed to.
type Kind string

const (
	KindMail          Kind = "mail"
	KindSourceControl Kind = "source_control"
	KindQuestionGen   Kind = "question_gen"
	KindCalendar      Kind = "calendar"
	KindNotify        Kind = "notify"
	KindSummarize     Kind = "summarize"
	KindOther         Kind = "other"
)

var kindAliases = map[string]Kind{
	"mail":           KindMail,
	"email":          KindMail,
	"gmail":          KindMail,
	"mail_fetch":     KindMail,
	"fetch_mail":     KindMail,
	"source_control": KindSourceControl,
	"sourcecontrol":  KindSourceControl,
	"github":         KindSourceControl,
	"git":            KindSourceControl,
	"scm":            KindSourceControl,
	"question_gen":   KindQuestionGen,
	"questiongen":    KindQuestionGen,
	"questions":      KindQuestionGen,
	"leetcode":       KindQuestionGen,
	"dsa":            KindQuestionGen,
	"calendar":       KindCalendar,
	"gcal":           KindCalendar,
	"notify":         KindNotify,
	"notification":   KindNotify,
	"email_send":     KindNotify,
	"send_report":    KindNotify,
	"summarize":      KindSummarize,
	"summary":        KindSummarize,
	"summarizer":     KindSummarize,
}

// ParseKind maps a planner-provided kind tag to exactly one Kind.
// Matching is case-insensitive and treats '-' and ' ' like '_'.
// Unknown tags map to KindOther.
func ParseKind(s string) Kind {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)
	if k, ok := kindAliases[key]; ok {
		return k
	}
	return KindOther
}

// TaskDescriptor is a single unit of work inside a plan.
type TaskDescriptor struct {
	ID           string         `json:"id"`
	Kind         Kind           `json:"kind"`
	Description  string         `json:"description"`
	Parameters   map[string]any `json:"parameters,omitempty"`
	Dependencies []string       `json:"dependencies,omitempty"`
	Priority     int            `json:"priority"` // lower is more urgent
}

// StringParam returns a string parameter or def when missing.
func (t TaskDescriptor) StringParam(key, def string) string {
	v, ok := t.Parameters[key]
	if !ok || v == nil {
		return def
	}
	switch s := v.(type) {
	case string:
		if s == "" {
			return def
		}
		return s
	default:
		return fmt.Sprint(s)
	}
}

// IntParam returns an integer parameter or def when missing or malformed.
func (t TaskDescriptor) IntParam(key string, def int) int {
	switch v := t.Parameters[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return def
}

// ExecutionResult is what every executor returns for one task.
type ExecutionResult struct {
	Success        bool   `json:"success"`
	Content        string `json:"content"`
	StructuredData any    `json:"structured_data,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Failure builds an unsuccessful result from an error.
func Failure(err error) ExecutionResult {
	return ExecutionResult{Success: false, Error: err.Error()}
}

// Executor is the uniform contract every domain agent implements.
// Executors should report failures through ExecutionResult; a returned
// error is tolerated and handled like a raised exception.
type Executor interface {
	Execute(ctx context.Context, task TaskDescriptor) (ExecutionResult, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, task TaskDescriptor) (ExecutionResult, error)

func (f ExecutorFunc) Execute(ctx context.Context, task TaskDescriptor) (ExecutionResult, error) {
	return f(ctx, task)
}

// Registry manages the executor bound to each kind.
type Registry struct {
	mu        sync.RWMutex
	executors map[Kind]Executor
}

func NewRegistry() *Registry {
	return &Registry{
		executors: make(map[Kind]Executor),
	}
}

func (r *Registry) Register(kind Kind, e Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[kind] = e
}

func (r *Registry) Get(kind Kind) Executor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.executors[kind]
}

// Kinds returns the kinds that currently have an executor.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]Kind, 0, len(r.executors))
	for k := range r.executors {
		kinds = append(kinds, k)
	}
	return kinds
}

// Execute runs the task on the executor registered for its kind.
func (r *Registry) Execute(ctx context.Context, task TaskDescriptor) (ExecutionResult, error) {
	e := r.Get(task.Kind)
	if e == nil {
		return ExecutionResult{}, fmt.Errorf("%w for kind %q", ErrNoExecutor, task.Kind)
	}
	return e.Execute(ctx, task)
}
