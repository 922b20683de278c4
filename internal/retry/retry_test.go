package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Hemesh11/autotasker/internal/tools"
)

func TestDecide_NoErrors(t *testing.T) {
	p := NewPolicy(DefaultConfig())
	d := p.Decide(nil, 0, tools.KindMail)
	assert.False(t, d.ShouldRetry)
	assert.Equal(t, "refresh_mail_session", d.StrategyTag)
}

func TestDecide_CeilingStopsRetries(t *testing.T) {
	p := NewPolicy(DefaultConfig())
	errs := []string{"connection timeout"}

	for rc := 0; rc < 3; rc++ {
		assert.True(t, p.Decide(errs, rc, tools.KindQuestionGen).ShouldRetry, "retryCount=%d", rc)
	}
	for _, rc := range []int{3, 4, 10} {
		d := p.Decide(errs, rc, tools.KindQuestionGen)
		assert.False(t, d.ShouldRetry, "retryCount=%d", rc)
		assert.Contains(t, d.Reason, "ceiling")
	}
}

func TestDecide_NonRetryableWinsOverRetryable(t *testing.T) {
	p := NewPolicy(DefaultConfig())
	d := p.Decide([]string{"request unauthorized after timeout"}, 0, tools.KindSourceControl)
	assert.False(t, d.ShouldRetry)
	assert.Equal(t, Permanent, d.Classification)
}

func TestDecide_PermanentPatterns(t *testing.T) {
	p := NewPolicy(DefaultConfig())
	for _, msg := range []string{
		"Authentication failed",
		"403 Forbidden",
		"repository Not Found",
		"invalid parameter: topic",
		"HTTP 400",
	} {
		d := p.Decide([]string{msg}, 0, tools.KindOther)
		assert.False(t, d.ShouldRetry, msg)
		assert.Equal(t, Permanent, d.Classification, msg)
	}
}

func TestDecide_RetryablePatterns(t *testing.T) {
	p := NewPolicy(DefaultConfig())
	for _, msg := range []string{
		"read tcp: i/o Timeout",
		"rate limit reached",
		"service unavailable",
		"HTTP 503 from upstream",
		"temporary failure in name resolution",
	} {
		d := p.Decide([]string{msg}, 1, tools.KindMail)
		assert.True(t, d.ShouldRetry, msg)
		assert.Equal(t, Temporary, d.Classification, msg)
		assert.Greater(t, d.DelaySeconds, 0.0, msg)
	}
}

func TestDecide_HeuristicFallback(t *testing.T) {
	p := NewPolicy(DefaultConfig())

	d := p.Decide([]string{"server busy, try again later"}, 0, tools.KindOther)
	assert.True(t, d.ShouldRetry)
	assert.Equal(t, "medium", d.Confidence)

	d = p.Decide([]string{"permission denied for resource"}, 0, tools.KindOther)
	assert.False(t, d.ShouldRetry)
	assert.Equal(t, Permanent, d.Classification)

	d = p.Decide([]string{"something odd happened"}, 0, tools.KindOther)
	assert.True(t, d.ShouldRetry)
	assert.Equal(t, Unknown, d.Classification)
	assert.Equal(t, "low", d.Confidence)
	assert.Equal(t, "retry_original", d.StrategyTag)
}

func TestExponentialBackoff(t *testing.T) {
	var got []float64
	for rc := 0; rc <= 3; rc++ {
		got = append(got, Exponential(time.Second, 2, 60*time.Second, rc).Seconds())
	}
	assert.Equal(t, []float64{1, 2, 4, 8}, got)
	assert.Equal(t, 60.0, Exponential(time.Second, 2, 60*time.Second, 10).Seconds())
	assert.Equal(t, 60*time.Second, Exponential(time.Second, 2, 60*time.Second, 5000))
}

func TestLinearAndFixedBackoff(t *testing.T) {
	assert.Equal(t, 3*time.Second, Linear(time.Second, time.Minute, 2))
	assert.Equal(t, time.Minute, Linear(time.Second, time.Minute, 100))
	assert.Equal(t, 2*time.Second, Fixed(2*time.Second))
}

func TestDecide_RateLimitUsesExponential(t *testing.T) {
	p := NewPolicy(DefaultConfig())
	d := p.Decide([]string{"rate limit"}, 2, tools.KindSourceControl)
	assert.Equal(t, BackoffExponential, d.Backoff)
	assert.Equal(t, 4.0, d.DelaySeconds)

	d = p.Decide([]string{"connection reset"}, 2, tools.KindSourceControl)
	assert.Equal(t, BackoffLinear, d.Backoff)
	assert.Equal(t, 3.0, d.DelaySeconds)
}

func TestNewPolicy_FillsDefaults(t *testing.T) {
	p := NewPolicy(Config{Ceiling: 5})
	assert.Equal(t, 5, p.Ceiling())
	assert.Equal(t, time.Second, p.cfg.BaseDelay)
	assert.Equal(t, 60*time.Second, p.cfg.MaxDelay)
}
