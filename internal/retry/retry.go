// Package retry classifies accumulated task errors and decides whether,
// and after how long, a failed task should be attempted again.
//
// Decide is a pure function of its inputs: the same errors, retry count and
// task kind always produce the same Decision, so a Policy may be shared by
// any number of concurrent runs.
package retry

import (
	"fmt"
	"strings"
	"time"

	"github.com/Hemesh11/autotasker/internal/tools"
)

// Classification is the coarse verdict on an error.
type Classification string

const (
	Temporary Classification = "temporary"
	Permanent Classification = "permanent"
	Unknown   Classification = "unknown"
)

// Decision is the outcome of evaluating a failure. It is never persisted.
type Decision struct {
	ShouldRetry     bool           `json:"should_retry"`
	DelaySeconds    float64        `json:"delay_seconds"`
	Classification  Classification `json:"classification"`
	StrategyTag     string         `json:"strategy_tag"`
	Recommendations []string       `json:"recommendations,omitempty"`
	Reason          string         `json:"reason"`
	Confidence      string         `json:"confidence"`
	Backoff         string         `json:"backoff,omitempty"`
}

// Delay returns DelaySeconds as a time.Duration.
func (d Decision) Delay() time.Duration {
	return time.Duration(d.DelaySeconds * float64(time.Second))
}

// Config holds the tunables of a Policy.
type Config struct {
	Ceiling    int
	BaseDelay  time.Duration
	Multiplier float64
	MaxDelay   time.Duration
}

// DefaultConfig returns ceiling=3, base=1s, multiplier=2, cap=60s.
func DefaultConfig() Config {
	return Config{
		Ceiling:    3,
		BaseDelay:  time.Second,
		Multiplier: 2,
		MaxDelay:   60 * time.Second,
	}
}

// Policy evaluates failures against the pattern sets below.
type Policy struct {
	cfg Config
}

// NewPolicy creates a Policy, filling zero fields from DefaultConfig.
func NewPolicy(cfg Config) *Policy {
	def := DefaultConfig()
	if cfg.Ceiling <= 0 {
		cfg.Ceiling = def.Ceiling
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = def.Multiplier
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	return &Policy{cfg: cfg}
}

// Ceiling returns the maximum number of retries for one run.
func (p *Policy) Ceiling() int {
	return p.cfg.Ceiling
}

// Checked in order; the first hit wins.
var nonRetryablePatterns = []string{
	"authentication",
	"unauthorized",
	"forbidden",
	"not found",
	"invalid",
	"malformed",
	"400",
	"401",
	"403",
	"404",
}

var retryablePatterns = []string{
	"timeout",
	"rate limit",
	"connection",
	"temporary",
	"unavailable",
	"network",
	"502",
	"503",
	"504",
}

var temporaryPhrases = []string{
	"try again",
	"later",
	"busy",
	"overloaded",
	"interrupted",
	"reset",
	"throttl",
	"deadline",
	"eof",
	"refused",
}

var permanentPhrases = []string{
	"denied",
	"does not exist",
	"unsupported",
	"missing",
	"required",
	"permission",
	"syntax",
	"no executor",
	"quota exceeded",
	"bad request",
}

// Decide evaluates errors accumulated so far for a task of the given kind.
func (p *Policy) Decide(errs []string, retryCount int, kind tools.Kind) Decision {
	hint := hintFor(kind)
	d := Decision{
		StrategyTag:     hint.strategy,
		Recommendations: hint.recommendations,
	}

	if len(errs) == 0 {
		d.Classification = Unknown
		d.Reason = "no errors recorded"
		d.Confidence = "high"
		return d
	}

	if retryCount >= p.cfg.Ceiling {
		d.Classification = Unknown
		d.Reason = fmt.Sprintf("retry ceiling exceeded (%d/%d)", retryCount, p.cfg.Ceiling)
		d.Confidence = "high"
		return d
	}

	text := strings.ToLower(strings.Join(errs, " | "))

	if pat, ok := firstMatch(text, nonRetryablePatterns); ok {
		d.Classification = Permanent
		d.Reason = fmt.Sprintf("non-retryable pattern %q", pat)
		d.Confidence = "high"
		return d
	}

	if pat, ok := firstMatch(text, retryablePatterns); ok {
		d.ShouldRetry = true
		d.Classification = Temporary
		d.Reason = fmt.Sprintf("retryable pattern %q", pat)
		d.Confidence = "high"
		d.Backoff = backoffForPattern(pat)
		d.DelaySeconds = p.delay(d.Backoff, retryCount)
		return d
	}

	temp := countMatches(text, temporaryPhrases)
	perm := countMatches(text, permanentPhrases)
	switch {
	case perm > temp:
		d.Classification = Permanent
		d.Reason = fmt.Sprintf("heuristic: permanent score %d > temporary score %d", perm, temp)
		d.Confidence = "medium"
		return d
	case temp > perm:
		d.ShouldRetry = true
		d.Classification = Temporary
		d.Reason = fmt.Sprintf("heuristic: temporary score %d > permanent score %d", temp, perm)
		d.Confidence = "medium"
	default:
		d.ShouldRetry = true
		d.Classification = Unknown
		d.Reason = "heuristic tie, defaulting to retry"
		d.Confidence = "low"
	}
	d.Backoff = BackoffFixed
	d.DelaySeconds = p.delay(d.Backoff, retryCount)
	return d
}

func firstMatch(text string, patterns []string) (string, bool) {
	for _, p := range patterns {
		if strings.Contains(text, p) {
			return p, true
		}
	}
	return "", false
}

func countMatches(text string, phrases []string) int {
	n := 0
	for _, p := range phrases {
		if strings.Contains(text, p) {
			n++
		}
	}
	return n
}
