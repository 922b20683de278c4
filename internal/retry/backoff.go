package retry

import (
	"math"
	"time"

	"github.com/Hemesh11/autotasker/internal/tools"
)

const (
	BackoffExponential = "exponential"
	BackoffFixed       = "fixed"
	BackoffLinear      = "linear"
)

// Exponential returns base*multiplier^retryCount, capped at max.
func Exponential(base time.Duration, multiplier float64, max time.Duration, retryCount int) time.Duration {
	d := float64(base) * math.Pow(multiplier, float64(retryCount))
	if d > float64(max) || math.IsInf(d, 0) {
		return max
	}
	return time.Duration(d)
}

// Fixed always returns base.
func Fixed(base time.Duration) time.Duration {
	return base
}

// Linear returns base*(retryCount+1), capped at max.
func Linear(base, max time.Duration, retryCount int) time.Duration {
	d := base * time.Duration(retryCount+1)
	if d > max || d < 0 {
		return max
	}
	return d
}

func backoffForPattern(pattern string) string {
	switch pattern {
	case "timeout", "connection", "network":
		return BackoffLinear
	case "temporary":
		return BackoffFixed
	default:
		return BackoffExponential
	}
}

func (p *Policy) delay(backoff string, retryCount int) float64 {
	var d time.Duration
	switch backoff {
	case BackoffFixed:
		d = Fixed(p.cfg.BaseDelay)
	case BackoffLinear:
		d = Linear(p.cfg.BaseDelay, p.cfg.MaxDelay, retryCount)
	default:
		d = Exponential(p.cfg.BaseDelay, p.cfg.Multiplier, p.cfg.MaxDelay, retryCount)
	}
	return d.Seconds()
}

type kindHint struct {
	strategy        string
	recommendations []string
}

// Advisory only; never changes control flow.
var kindHints = map[tools.Kind]kindHint{
	tools.KindMail: {
		strategy: "refresh_mail_session",
		recommendations: []string{
			"re-authorize the mailbox if the token expired",
			"narrow the fetch window to reduce payload size",
		},
	},
	tools.KindSourceControl: {
		strategy: "respect_api_rate_limit",
		recommendations: []string{
			"check the repository name and token scopes",
			"wait for the rate-limit reset before retrying",
		},
	},
	tools.KindQuestionGen: {
		strategy: "regenerate_with_simpler_prompt",
		recommendations: []string{
			"lower the number of requested questions",
			"fall back to a smaller model",
		},
	},
	tools.KindNotify: {
		strategy: "fallback_delivery_channel",
		recommendations: []string{
			"verify notification credentials",
			"deliver through an alternate channel",
		},
	},
}

var defaultHint = kindHint{
	strategy:        "retry_original",
	recommendations: []string{"retry the task unchanged"},
}

func hintFor(kind tools.Kind) kindHint {
	if h, ok := kindHints[kind]; ok {
		return h
	}
	return defaultHint
}
