package governance

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// Effect is the verdict of a policy check.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Request describes one task about to be dispatched.
type Request struct {
	Kind        string
	Arguments   string // JSON of the task description and parameters
	RequestText string
}

// Result is the outcome of a policy check. Rule is empty when allowed.
type Result struct {
	Effect Effect
	Reason string
	Rule   string
}

// PolicyEngine decides whether a task may be dispatched.
type PolicyEngine interface {
	Evaluate(ctx context.Context, req Request) (Result, error)
}

// Rule denies dispatches of Kind (any kind when empty) whose arguments
// match Pattern (any arguments when nil).
type Rule struct {
	Name    string
	Kind    string
	Pattern *regexp.Regexp
}

func (r Rule) matches(req Request) bool {
	if r.Kind != "" && !strings.EqualFold(r.Kind, req.Kind) {
		return false
	}
	return r.Pattern == nil || r.Pattern.MatchString(req.Arguments)
}

// Rules is a deny-list engine. The first matching rule wins.
type Rules struct {
	mu    sync.RWMutex
	rules []Rule
}

func NewRules() *Rules {
	return &Rules{}
}

// DenyKind forbids every dispatch of kind.
func (e *Rules) DenyKind(kind string) {
	e.add(Rule{Name: "kind:" + kind, Kind: kind})
}

// DenyPattern forbids dispatches whose arguments match pattern. An empty
// kind applies the pattern to every kind.
func (e *Rules) DenyPattern(kind, pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("invalid policy pattern %q: %w", pattern, err)
	}
	name := "pattern:" + pattern
	if kind != "" {
		name = kind + "/" + name
	}
	e.add(Rule{Name: name, Kind: kind, Pattern: re})
	return nil
}

func (e *Rules) add(r Rule) {
	e.mu.Lock()
	e.rules = append(e.rules, r)
	e.mu.Unlock()
}

// Len reports the number of rules loaded.
func (e *Rules) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.rules)
}

func (e *Rules) Evaluate(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, r := range e.rules {
		if !r.matches(req) {
			continue
		}
		reason := fmt.Sprintf("task kind '%s' is forbidden", req.Kind)
		if r.Pattern != nil {
			reason = fmt.Sprintf("arguments of %s task match restricted pattern %s", req.Kind, r.Pattern.String())
		}
		return Result{Effect: EffectDeny, Reason: reason, Rule: r.Name}, nil
	}
	return Result{Effect: EffectAllow, Reason: "no rule matched"}, nil
}
