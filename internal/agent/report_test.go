package agent

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))

	long := strings.Repeat("日", 40) // 3 bytes each
	got := truncate(long, 11)
	assert.True(t, utf8.ValidString(got), "split inside a rune: %q", got)
	assert.Equal(t, "日日...", got)
}

func TestBuildReport_SubjectKeepsRunesWhole(t *testing.T) {
	st := &WorkflowState{Request: strings.Repeat("résumé ", 30)}
	subject, body := BuildReport(st)
	assert.True(t, utf8.ValidString(subject))
	assert.True(t, strings.HasSuffix(subject, "..."))
	assert.Contains(t, body, "Errors")
}
