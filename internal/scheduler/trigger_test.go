package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile(t *testing.T) {
	base := time.Date(2026, 3, 4, 10, 0, 0, 0, time.Local) // Wednesday

	tests := []struct {
		name    string
		spec    TriggerSpec
		next    time.Time
		desc    string
		maxRuns int
	}{
		{
			name: "daily later today",
			spec: TriggerSpec{Type: TriggerDaily, Value: "14:30"},
			next: time.Date(2026, 3, 4, 14, 30, 0, 0, time.Local),
			desc: "every day at 14:30",
		},
		{
			name: "daily tomorrow",
			spec: TriggerSpec{Type: TriggerDaily, Value: "09:00"},
			next: time.Date(2026, 3, 5, 9, 0, 0, 0, time.Local),
			desc: "every day at 09:00",
		},
		{
			name: "weekly by name",
			spec: TriggerSpec{Type: TriggerWeekly, Value: "monday:14:00"},
			next: time.Date(2026, 3, 9, 14, 0, 0, 0, time.Local),
			desc: "every Monday at 14:00",
		},
		{
			name: "weekly by number",
			spec: TriggerSpec{Type: TriggerWeekly, Value: "5:08:15"},
			next: time.Date(2026, 3, 6, 8, 15, 0, 0, time.Local),
			desc: "every Friday at 08:15",
		},
		{
			name: "monthly",
			spec: TriggerSpec{Type: TriggerMonthly, Value: "1:08:00"},
			next: time.Date(2026, 4, 1, 8, 0, 0, 0, time.Local),
			desc: "every month on day 1 at 08:00",
		},
		{
			name: "cron",
			spec: TriggerSpec{Type: TriggerCron, Value: "0 */2 * * *"},
			next: time.Date(2026, 3, 4, 12, 0, 0, 0, time.Local),
			desc: "cron 0 */2 * * *",
		},
		{
			name: "interval",
			spec: TriggerSpec{Type: TriggerInterval, Value: "300"},
			next: base.Add(5 * time.Minute),
			desc: "every 5m0s",
		},
		{
			name:    "bounded interval",
			spec:    TriggerSpec{Type: TriggerBoundedInterval, Value: "60:3"},
			next:    base.Add(time.Minute),
			desc:    "every 1m0s, 3 times",
			maxRuns: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trig, err := Compile(tt.spec)
			require.NoError(t, err)
			assert.Equal(t, tt.next, trig.Schedule.Next(base))
			assert.Equal(t, tt.desc, trig.Description)
			assert.Equal(t, tt.maxRuns, trig.MaxRuns)
			assert.Equal(t, tt.maxRuns > 0, trig.Bounded())
		})
	}
}

func TestCompile_Invalid(t *testing.T) {
	for _, spec := range []TriggerSpec{
		{Type: TriggerDaily, Value: "9am"},
		{Type: TriggerDaily, Value: "24:00"},
		{Type: TriggerWeekly, Value: "funday:10:00"},
		{Type: TriggerMonthly, Value: "32:10:00"},
		{Type: TriggerCron, Value: "not a cron"},
		{Type: TriggerCron, Value: ""},
		{Type: TriggerInterval, Value: "0"},
		{Type: TriggerInterval, Value: "-5"},
		{Type: TriggerBoundedInterval, Value: "10"},
		{Type: TriggerBoundedInterval, Value: "10:0"},
		{Type: "hourly", Value: "1"},
	} {
		_, err := Compile(spec)
		assert.ErrorIs(t, err, ErrInvalidTrigger, spec.String())
	}
}

func TestCompile_NormalizesType(t *testing.T) {
	trig, err := Compile(TriggerSpec{Type: " Bounded ", Value: "1:2"})
	require.NoError(t, err)
	assert.Equal(t, TriggerBoundedInterval, trig.Spec.Type)
	assert.Equal(t, 2, trig.MaxRuns)
}

func TestParseNatural(t *testing.T) {
	tests := []struct {
		phrase string
		want   TriggerSpec
	}{
		{"every day at 9am", TriggerSpec{TriggerDaily, "09:00"}},
		{"Daily at 14:30", TriggerSpec{TriggerDaily, "14:30"}},
		{"at 7:45 pm every day", TriggerSpec{TriggerDaily, "19:45"}},
		{"every day at noon", TriggerSpec{TriggerDaily, "12:00"}},
		{"every day at 12am", TriggerSpec{TriggerDaily, "00:00"}},
		{"every day", TriggerSpec{TriggerDaily, "09:00"}},
		{"every Monday at 2pm", TriggerSpec{TriggerWeekly, "1:14:00"}},
		{"on fridays at 17:00", TriggerSpec{TriggerWeekly, "5:17:00"}},
		{"every month on the 1st at 8am", TriggerSpec{TriggerMonthly, "1:08:00"}},
		{"monthly on the 15th at 09:30", TriggerSpec{TriggerMonthly, "15:09:30"}},
		{"every 5 minutes", TriggerSpec{TriggerInterval, "300"}},
		{"every 2 hours", TriggerSpec{TriggerInterval, "7200"}},
		{"every hour", TriggerSpec{TriggerInterval, "3600"}},
		{"every 30 seconds", TriggerSpec{TriggerInterval, "30"}},
		{"every 5 minutes, 3 times", TriggerSpec{TriggerBoundedInterval, "300:3"}},
		{"every 2 minutes once, for 5 times", TriggerSpec{TriggerBoundedInterval, "120:5"}},
		{"every 10 seconds and repeat 6 times", TriggerSpec{TriggerBoundedInterval, "10:6"}},
		{"remind me every minute 2 times", TriggerSpec{TriggerBoundedInterval, "60:2"}},
	}

	for _, tt := range tests {
		t.Run(tt.phrase, func(t *testing.T) {
			got, err := ParseNatural(tt.phrase)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseNatural_Unrecognised(t *testing.T) {
	for _, phrase := range []string{"", "sometime soon", "every day at 13pm", "every 0 minutes"} {
		_, err := ParseNatural(phrase)
		assert.ErrorIs(t, err, ErrInvalidTrigger, phrase)
	}
}
