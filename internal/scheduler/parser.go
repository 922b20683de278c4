package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const clockExpr = `(noon|midnight|\d{1,2}(?::\d{2})?\s*(?:a\.?m\.?|p\.?m\.?)?)`

var unitSeconds = map[string]int{
	"second": 1, "sec": 1, "s": 1,
	"minute": 60, "min": 60, "m": 60,
	"hour": 3600, "hr": 3600, "h": 3600,
}

type naturalMatcher struct {
	re    *regexp.Regexp
	build func(m []string) (TriggerSpec, error)
}

// Matchers are tried in order; bounded compounds must precede plain
// intervals since both start with "every N unit".
var naturalMatchers = []naturalMatcher{
	{
		// every 5 minutes, 3 times / every 2 minutes once, for 5 times / every 10 seconds and repeat 6 times
		re: regexp.MustCompile(`\bevery\s+(?:(\d+)\s+)?(second|sec|minute|min|hour|hr)s?\b(?:\s+once)?[\s,]*(?:.*?\b(?:for|repeat)\s+)?(\d+)\s+times?\b`),
		build: func(m []string) (TriggerSpec, error) {
			secs, err := intervalSeconds(m[1], m[2])
			if err != nil {
				return TriggerSpec{}, err
			}
			return TriggerSpec{Type: TriggerBoundedInterval, Value: fmt.Sprintf("%d:%s", secs, m[3])}, nil
		},
	},
	{
		// every 5 minutes / every hour / every 30 seconds
		re: regexp.MustCompile(`\bevery\s+(?:(\d+)\s+)?(second|sec|minute|min|hour|hr)s?\b`),
		build: func(m []string) (TriggerSpec, error) {
			secs, err := intervalSeconds(m[1], m[2])
			if err != nil {
				return TriggerSpec{}, err
			}
			return TriggerSpec{Type: TriggerInterval, Value: strconv.Itoa(secs)}, nil
		},
	},
	{
		// every monday at 2pm / on fridays at 17:00
		re: regexp.MustCompile(`\b(?:every|on|each)\s+(sunday|monday|tuesday|wednesday|thursday|friday|saturday|sun|mon|tue|wed|thu|fri|sat)s?\b(?:\s+(?:at|@))?\s+` + clockExpr),
		build: func(m []string) (TriggerSpec, error) {
			h, mn, err := parseNaturalClock(m[2])
			if err != nil {
				return TriggerSpec{}, err
			}
			dow, _ := parseWeekday(m[1])
			return TriggerSpec{Type: TriggerWeekly, Value: fmt.Sprintf("%d:%02d:%02d", int(dow), h, mn)}, nil
		},
	},
	{
		// every month on the 1st at 8am / monthly on the 15th at 09:30
		re: regexp.MustCompile(`\b(?:every\s+month|monthly|each\s+month)\s+on\s+(?:the\s+)?(\d{1,2})(?:st|nd|rd|th)?\b(?:\s+(?:at|@))?\s+` + clockExpr),
		build: func(m []string) (TriggerSpec, error) {
			h, mn, err := parseNaturalClock(m[2])
			if err != nil {
				return TriggerSpec{}, err
			}
			return TriggerSpec{Type: TriggerMonthly, Value: fmt.Sprintf("%s:%02d:%02d", m[1], h, mn)}, nil
		},
	},
	{
		// every day at 9am / daily at 14:30
		re: regexp.MustCompile(`\b(?:every\s*day|daily|each\s+day)\b(?:\s+(?:at|@))?\s+` + clockExpr),
		build: func(m []string) (TriggerSpec, error) {
			h, mn, err := parseNaturalClock(m[1])
			if err != nil {
				return TriggerSpec{}, err
			}
			return TriggerSpec{Type: TriggerDaily, Value: fmt.Sprintf("%02d:%02d", h, mn)}, nil
		},
	},
	{
		// at 9am every day
		re: regexp.MustCompile(`\b(?:at|@)\s+` + clockExpr + `\s+(?:every\s*day|daily|each\s+day)\b`),
		build: func(m []string) (TriggerSpec, error) {
			h, mn, err := parseNaturalClock(m[1])
			if err != nil {
				return TriggerSpec{}, err
			}
			return TriggerSpec{Type: TriggerDaily, Value: fmt.Sprintf("%02d:%02d", h, mn)}, nil
		},
	},
	{
		// every day / daily, with no clock time
		re: regexp.MustCompile(`\b(?:every\s*day|daily|each\s+day)\b`),
		build: func(m []string) (TriggerSpec, error) {
			return TriggerSpec{Type: TriggerDaily, Value: defaultDailyClock}, nil
		},
	},
}

const defaultDailyClock = "09:00"

// ParseNatural turns a phrase such as "every Monday at 2pm" or
// "every 5 minutes, 3 times" into a TriggerSpec.
func ParseNatural(phrase string) (TriggerSpec, error) {
	text := strings.ToLower(strings.TrimSpace(phrase))
	for _, nm := range naturalMatchers {
		m := nm.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		spec, err := nm.build(m)
		if err != nil {
			return TriggerSpec{}, fmt.Errorf("%w: %q: %v", ErrInvalidTrigger, phrase, err)
		}
		if _, err := Compile(spec); err != nil {
			return TriggerSpec{}, err
		}
		return spec, nil
	}
	return TriggerSpec{}, fmt.Errorf("%w: no schedule recognised in %q", ErrInvalidTrigger, phrase)
}

func intervalSeconds(count, unit string) (int, error) {
	n := 1
	if count != "" {
		var err error
		if n, err = strconv.Atoi(count); err != nil || n <= 0 {
			return 0, fmt.Errorf("interval count %q must be positive", count)
		}
	}
	mult, ok := unitSeconds[unit]
	if !ok {
		return 0, fmt.Errorf("unknown unit %q", unit)
	}
	return n * mult, nil
}

var naturalClock = regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?\s*(a\.?m\.?|p\.?m\.?)?$`)

func parseNaturalClock(s string) (int, int, error) {
	s = strings.TrimSpace(s)
	switch s {
	case "noon":
		return 12, 0, nil
	case "midnight":
		return 0, 0, nil
	}
	m := naturalClock.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, fmt.Errorf("unrecognised time %q", s)
	}
	h, _ := strconv.Atoi(m[1])
	mn := 0
	if m[2] != "" {
		mn, _ = strconv.Atoi(m[2])
	}
	switch meridiem := strings.ReplaceAll(m[3], ".", ""); meridiem {
	case "am":
		if h < 1 || h > 12 {
			return 0, 0, fmt.Errorf("hour %d out of range for %s", h, meridiem)
		}
		if h == 12 {
			h = 0
		}
	case "pm":
		if h < 1 || h > 12 {
			return 0, 0, fmt.Errorf("hour %d out of range for %s", h, meridiem)
		}
		if h != 12 {
			h += 12
		}
	}
	if h > 23 || mn > 59 {
		return 0, 0, fmt.Errorf("time %q out of range", s)
	}
	return h, mn, nil
}
