package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/Hemesh11/autotasker/internal/tools"
)

// ScheduleKind is the cadence a planner attaches to a request.
type ScheduleKind string

const (
	ScheduleOnce   ScheduleKind = "once"
	ScheduleDaily  ScheduleKind = "daily"
	ScheduleWeekly ScheduleKind = "weekly"
	ScheduleCustom ScheduleKind = "custom"
)

func parseScheduleKind(s string) ScheduleKind {
	switch ScheduleKind(strings.ToLower(strings.TrimSpace(s))) {
	case ScheduleDaily:
		return ScheduleDaily
	case ScheduleWeekly:
		return ScheduleWeekly
	case ScheduleCustom:
		return ScheduleCustom
	default:
		return ScheduleOnce
	}
}

// TaskPlan is the ordered set of tasks compiled from one request.
// Only the orchestrator's cursor moves once a plan is prepared.
type TaskPlan struct {
	Intent    string                 `json:"intent"`
	Schedule  ScheduleKind           `json:"schedule"`
	Tasks     []tools.TaskDescriptor `json:"tasks"`
	CreatedAt time.Time              `json:"created_at"`
}

// PreparePlan returns a validated copy of p:
//   - every kind is mapped onto the closed Kind set
//   - empty or duplicate ids are replaced with unique ones
//   - dependencies on ids outside the plan are dropped
//   - summarize tasks are dropped; fetched mail is summarized after dispatch
//   - exactly one notify task is kept, and it is the last task
func PreparePlan(p *TaskPlan, request string) *TaskPlan {
	out := &TaskPlan{
		Intent:    strings.TrimSpace(p.Intent),
		Schedule:  parseScheduleKind(string(p.Schedule)),
		CreatedAt: p.CreatedAt,
	}
	if out.Intent == "" {
		out.Intent = request
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = time.Now()
	}

	seen := make(map[string]bool)
	var notify *tools.TaskDescriptor
	for i, t := range p.Tasks {
		t.Kind = tools.ParseKind(string(t.Kind))
		if t.Kind == tools.KindSummarize {
			continue
		}
		t.ID = strings.TrimSpace(t.ID)
		if t.ID == "" || seen[t.ID] {
			t.ID = fmt.Sprintf("task_%d", i+1)
			for n := 2; seen[t.ID]; n++ {
				t.ID = fmt.Sprintf("task_%d_%d", i+1, n)
			}
		}
		seen[t.ID] = true
		if t.Kind == tools.KindNotify {
			if notify == nil {
				nt := t
				notify = &nt
			}
			continue
		}
		out.Tasks = append(out.Tasks, t)
	}

	if notify == nil {
		id := "notify"
		for n := 2; seen[id]; n++ {
			id = fmt.Sprintf("notify_%d", n)
		}
		seen[id] = true
		notify = &tools.TaskDescriptor{
			ID:          id,
			Kind:        tools.KindNotify,
			Description: "Send the consolidated report",
			Priority:    9,
		}
	}
	out.Tasks = append(out.Tasks, *notify)

	for i := range out.Tasks {
		var deps []string
		for _, d := range out.Tasks[i].Dependencies {
			if seen[d] && d != out.Tasks[i].ID {
				deps = append(deps, d)
			}
		}
		out.Tasks[i].Dependencies = deps
	}
	return out
}

var fallbackTopics = []struct {
	topic    string
	keywords []string
}{
	{"mail", []string{"mail", "inbox", "gmail"}},
	{"source control", []string{"github", "commit", "pull request", "repo"}},
	{"practice questions", []string{"question", "leetcode", "coding", "interview"}},
	{"calendar", []string{"calendar", "meeting", "event", "appointment"}},
}

// FallbackPlan builds a single-notification plan from keyword heuristics so
// the user still gets an answer when the planner is unavailable.
func FallbackPlan(request string) *TaskPlan {
	lower := strings.ToLower(request)
	var topics []string
	for _, ft := range fallbackTopics {
		for _, kw := range ft.keywords {
			if strings.Contains(lower, kw) {
				topics = append(topics, ft.topic)
				break
			}
		}
	}
	intent := "general request"
	if len(topics) > 0 {
		intent = strings.Join(topics, ", ")
	}

	schedule := ScheduleOnce
	switch {
	case strings.Contains(lower, "daily") || strings.Contains(lower, "every day"):
		schedule = ScheduleDaily
	case strings.Contains(lower, "weekly") || strings.Contains(lower, "every week"):
		schedule = ScheduleWeekly
	}

	return &TaskPlan{
		Intent:   intent,
		Schedule: schedule,
		Tasks: []tools.TaskDescriptor{{
			ID:          "notify",
			Kind:        tools.KindNotify,
			Description: fmt.Sprintf("Planner unavailable; acknowledge request about %s", intent),
			Parameters: map[string]any{
				"subject": "AutoTasker: could not plan request",
			},
		}},
		CreatedAt: time.Now(),
	}
}
