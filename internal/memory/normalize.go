package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"unicode"
)

var phraseVariants = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`\b(every\s*day|each\s+day|everyday|per\s+day)\b`), "daily"},
	{regexp.MustCompile(`\b(every\s+week|each\s+week|per\s+week)\b`), "weekly"},
	{regexp.MustCompile(`\b(every\s+month|each\s+month|per\s+month)\b`), "monthly"},
	{regexp.MustCompile(`\b(e-mail|emails)\b`), "email"},
}

// Clock times alone should not make a recurring request new.
var clockPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(\b(at|by|around)\s+)?\b\d{1,2}(:\d{2})?\s*(a\.?m\.?|p\.?m\.?)(\s|$|[^a-z])`),
	regexp.MustCompile(`(\b(at|by|around)\s+)?\b\d{1,2}:\d{2}(:\d{2})?\b`),
	regexp.MustCompile(`(\b(at|by|around)\s+)?\b(noon|midnight)\b`),
	regexp.MustCompile(`\b\d{1,2}\s*o'?clock\b`),
}

var spaceRun = regexp.MustCompile(`\s+`)

// Normalize lowercases, trims and canonicalises phrasing so that requests
// differing only in clock times or "every day"/"daily" wording collapse to
// the same text.
func Normalize(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	for _, v := range phraseVariants {
		s = v.re.ReplaceAllString(s, v.repl)
	}
	for _, re := range clockPatterns {
		s = re.ReplaceAllString(s, " ")
	}
	s = strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})
	s = spaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Signature is the stable hash of the normalized request text.
func Signature(text string) string {
	sum := sha256.Sum256([]byte(Normalize(text)))
	return hex.EncodeToString(sum[:16])
}

func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, f := range strings.Fields(strings.ToLower(text)) {
		tok := strings.TrimFunc(f, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if tok != "" {
			set[tok] = struct{}{}
		}
	}
	return set
}

// Similarity is the Jaccard index of the case-insensitive word sets of a and b.
// Two empty texts are identical; one empty text shares nothing.
func Similarity(a, b string) float64 {
	sa, sb := tokenSet(a), tokenSet(b)
	if len(sa) == 0 && len(sb) == 0 {
		return 1.0
	}
	if len(sa) == 0 || len(sb) == 0 {
		return 0.0
	}
	inter := 0
	for tok := range sa {
		if _, ok := sb[tok]; ok {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	return float64(inter) / float64(union)
}
