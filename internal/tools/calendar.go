package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// CalendarEvent is a locally stored calendar entry.
type CalendarEvent struct {
	ID        int64         `json:"id"`
	Title     string        `json:"title"`
	Start     time.Time     `json:"start"`
	Duration  time.Duration `json:"duration"`
	Location  string        `json:"location,omitempty"`
	Notes     string        `json:"notes,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// CalendarStore persists events.
type CalendarStore interface {
	AddEvent(ctx context.Context, ev CalendarEvent) (int64, error)
	ListEvents(ctx context.Context, from, to time.Time) ([]CalendarEvent, error)
	DeleteEvent(ctx context.Context, id int64) error
}

// CalendarExecutor handles the calendar lane: "create", "list" (default)
// and "delete".
type CalendarExecutor struct {
	Store CalendarStore
	Now   func() time.Time
}

func NewCalendarExecutor(store CalendarStore) *CalendarExecutor {
	return &CalendarExecutor{Store: store, Now: time.Now}
}

var startLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

func (c *CalendarExecutor) Execute(ctx context.Context, task TaskDescriptor) (ExecutionResult, error) {
	if c.Store == nil {
		return Failure(errors.New("calendar is not configured")), nil
	}
	switch action := task.StringParam("action", "list"); action {
	case "create", "add", "schedule":
		return c.create(ctx, task)
	case "list", "agenda", "show":
		return c.list(ctx, task)
	case "delete", "remove", "cancel":
		return c.delete(ctx, task)
	default:
		return Failure(fmt.Errorf("unsupported calendar action %q", action)), nil
	}
}

func (c *CalendarExecutor) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *CalendarExecutor) create(ctx context.Context, task TaskDescriptor) (ExecutionResult, error) {
	title := task.StringParam("title", task.Description)
	if strings.TrimSpace(title) == "" {
		return Failure(errors.New("calendar create: title required")), nil
	}
	start, err := parseStart(task.StringParam("start", ""), c.now())
	if err != nil {
		return Failure(err), nil
	}
	minutes := task.IntParam("duration_minutes", 30)
	if minutes <= 0 {
		minutes = 30
	}

	ev := CalendarEvent{
		Title:     title,
		Start:     start,
		Duration:  time.Duration(minutes) * time.Minute,
		Location:  task.StringParam("location", ""),
		Notes:     task.StringParam("notes", ""),
		CreatedAt: c.now(),
	}
	id, err := c.Store.AddEvent(ctx, ev)
	if err != nil {
		return Failure(fmt.Errorf("calendar create: %w", err)), nil
	}
	ev.ID = id
	return ExecutionResult{
		Success:        true,
		Content:        fmt.Sprintf("Created event #%d %q on %s (%d min).", id, title, start.Format("Mon Jan 2 15:04"), minutes),
		StructuredData: ev,
	}, nil
}

func (c *CalendarExecutor) list(ctx context.Context, task TaskDescriptor) (ExecutionResult, error) {
	from := c.now()
	if raw := task.StringParam("from", ""); raw != "" {
		t, err := parseStart(raw, from)
		if err != nil {
			return Failure(err), nil
		}
		from = t
	}
	days := task.IntParam("days", 7)
	if days <= 0 {
		days = 7
	}
	to := from.AddDate(0, 0, days)

	events, err := c.Store.ListEvents(ctx, from, to)
	if err != nil {
		return Failure(fmt.Errorf("calendar list: %w", err)), nil
	}

	var b strings.Builder
	if len(events) == 0 {
		fmt.Fprintf(&b, "No events in the next %d day(s).", days)
	} else {
		fmt.Fprintf(&b, "%d event(s) in the next %d day(s):\n", len(events), days)
		for _, ev := range events {
			fmt.Fprintf(&b, "- #%d %s %s (%s)", ev.ID, ev.Start.Format("Mon Jan 2 15:04"), ev.Title, ev.Duration)
			if ev.Location != "" {
				fmt.Fprintf(&b, " @ %s", ev.Location)
			}
			b.WriteString("\n")
		}
	}
	return ExecutionResult{Success: true, Content: b.String(), StructuredData: events}, nil
}

func (c *CalendarExecutor) delete(ctx context.Context, task TaskDescriptor) (ExecutionResult, error) {
	id := task.IntParam("id", 0)
	if id <= 0 {
		return Failure(errors.New("calendar delete: event id required")), nil
	}
	if err := c.Store.DeleteEvent(ctx, int64(id)); err != nil {
		return Failure(fmt.Errorf("calendar delete: %w", err)), nil
	}
	return ExecutionResult{Success: true, Content: fmt.Sprintf("Deleted event #%d.", id)}, nil
}

// parseStart accepts the layouts above, "tomorrow HH:MM" and "today HH:MM".
func parseStart(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("calendar: start time required")
	}
	for _, layout := range startLayouts {
		if t, err := time.ParseInLocation(layout, s, now.Location()); err == nil {
			return t, nil
		}
	}

	lower := strings.ToLower(s)
	for prefix, offset := range map[string]int{"today": 0, "tomorrow": 1} {
		if !strings.HasPrefix(lower, prefix) {
			continue
		}
		clock := strings.TrimSpace(strings.TrimPrefix(lower, prefix))
		h, m := 9, 0
		if clock != "" {
			t, err := time.Parse("15:04", clock)
			if err != nil {
				return time.Time{}, fmt.Errorf("calendar: invalid time %q", s)
			}
			h, m = t.Hour(), t.Minute()
		}
		d := now.AddDate(0, 0, offset)
		return time.Date(d.Year(), d.Month(), d.Day(), h, m, 0, 0, now.Location()), nil
	}
	return time.Time{}, fmt.Errorf("calendar: invalid start %q", s)
}
