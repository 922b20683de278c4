package scheduler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidTrigger is returned when a trigger spec cannot be compiled.
var ErrInvalidTrigger = errors.New("invalid trigger")

// TriggerType names a cadence family.
type TriggerType string

const (
	TriggerDaily           TriggerType = "daily"
	TriggerWeekly          TriggerType = "weekly"
	TriggerMonthly         TriggerType = "monthly"
	TriggerCron            TriggerType = "cron"
	TriggerInterval        TriggerType = "interval"
	TriggerBoundedInterval TriggerType = "bounded_interval"
)

// TriggerSpec is the structured, persisted form of a cadence:
//
//	daily            "HH:MM"
//	weekly           "DOW:HH:MM"   (mon..sun or 0..6, 0 = Sunday)
//	monthly          "D:HH:MM"
//	cron             "<5 or 6 field expression or @descriptor>"
//	interval         "<seconds>"
//	bounded_interval "<seconds>:<repetitions>"
type TriggerSpec struct {
	Type  TriggerType `json:"type" yaml:"type"`
	Value string      `json:"value" yaml:"value"`
}

func (t TriggerSpec) String() string {
	return fmt.Sprintf("%s(%s)", t.Type, t.Value)
}

// Trigger is a compiled TriggerSpec.
type Trigger struct {
	Spec        TriggerSpec
	Schedule    cron.Schedule
	Description string
	// MaxRuns is zero for triggers that fire until removed.
	MaxRuns int
}

// Bounded reports whether the trigger self-removes after MaxRuns firings.
func (t Trigger) Bounded() bool {
	return t.MaxRuns > 0
}

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tues": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

// Compile validates spec and builds its schedule.
func Compile(spec TriggerSpec) (Trigger, error) {
	spec.Type = TriggerType(strings.ToLower(strings.TrimSpace(string(spec.Type))))
	spec.Value = strings.TrimSpace(spec.Value)
	if spec.Type == "boundedinterval" || spec.Type == "bounded" {
		spec.Type = TriggerBoundedInterval
	}

	switch spec.Type {
	case TriggerDaily:
		h, m, err := parseClock(spec.Value)
		if err != nil {
			return Trigger{}, invalid(spec, err)
		}
		return cronTrigger(spec, fmt.Sprintf("%d %d * * *", m, h), fmt.Sprintf("every day at %02d:%02d", h, m))

	case TriggerWeekly:
		day, clock, ok := strings.Cut(spec.Value, ":")
		if !ok {
			return Trigger{}, invalid(spec, errors.New("expected DOW:HH:MM"))
		}
		dow, err := parseWeekday(day)
		if err != nil {
			return Trigger{}, invalid(spec, err)
		}
		h, m, err := parseClock(clock)
		if err != nil {
			return Trigger{}, invalid(spec, err)
		}
		return cronTrigger(spec, fmt.Sprintf("%d %d * * %d", m, h, int(dow)),
			fmt.Sprintf("every %s at %02d:%02d", dow, h, m))

	case TriggerMonthly:
		day, clock, ok := strings.Cut(spec.Value, ":")
		if !ok {
			return Trigger{}, invalid(spec, errors.New("expected D:HH:MM"))
		}
		d, err := strconv.Atoi(day)
		if err != nil || d < 1 || d > 31 {
			return Trigger{}, invalid(spec, fmt.Errorf("day of month %q out of range", day))
		}
		h, m, err := parseClock(clock)
		if err != nil {
			return Trigger{}, invalid(spec, err)
		}
		return cronTrigger(spec, fmt.Sprintf("%d %d %d * *", m, h, d),
			fmt.Sprintf("every month on day %d at %02d:%02d", d, h, m))

	case TriggerCron:
		if spec.Value == "" {
			return Trigger{}, invalid(spec, errors.New("empty cron expression"))
		}
		return cronTrigger(spec, spec.Value, "cron "+spec.Value)

	case TriggerInterval:
		secs, err := positiveInt(spec.Value, "seconds")
		if err != nil {
			return Trigger{}, invalid(spec, err)
		}
		d := time.Duration(secs) * time.Second
		return Trigger{
			Spec:        spec,
			Schedule:    cron.Every(d),
			Description: "every " + d.String(),
		}, nil

	case TriggerBoundedInterval:
		s, n, ok := strings.Cut(spec.Value, ":")
		if !ok {
			return Trigger{}, invalid(spec, errors.New("expected seconds:repetitions"))
		}
		secs, err := positiveInt(s, "seconds")
		if err != nil {
			return Trigger{}, invalid(spec, err)
		}
		reps, err := positiveInt(n, "repetitions")
		if err != nil {
			return Trigger{}, invalid(spec, err)
		}
		d := time.Duration(secs) * time.Second
		return Trigger{
			Spec:        spec,
			Schedule:    cron.Every(d),
			Description: fmt.Sprintf("every %s, %d times", d, reps),
			MaxRuns:     reps,
		}, nil
	}
	return Trigger{}, invalid(spec, fmt.Errorf("unknown trigger type %q", spec.Type))
}

func cronTrigger(spec TriggerSpec, expr, desc string) (Trigger, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return Trigger{}, invalid(spec, err)
	}
	return Trigger{Spec: spec, Schedule: sched, Description: desc}, nil
}

func invalid(spec TriggerSpec, err error) error {
	return fmt.Errorf("%w %s: %v", ErrInvalidTrigger, spec, err)
}

func parseClock(s string) (int, int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("hour %q out of range", hh)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("minute %q out of range", mm)
	}
	return h, m, nil
}

func parseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if d, ok := weekdays[s]; ok {
		return d, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > 7 {
		return 0, fmt.Errorf("unknown weekday %q", s)
	}
	return time.Weekday(n % 7), nil
}

func positiveInt(s, what string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", what, s)
	}
	return n, nil
}
