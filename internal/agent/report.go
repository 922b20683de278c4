package agent

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const maxSubjectLen = 80

// BuildReport renders the human-readable report delivered at the end of a
// run. The errors section is always present.
func BuildReport(st *WorkflowState) (subject, body string) {
	topic := st.Request
	if st.Plan != nil && st.Plan.Intent != "" {
		topic = st.Plan.Intent
	}
	subject = "AutoTasker: " + truncate(oneLine(topic), maxSubjectLen)
	if st.Skipped {
		subject = "AutoTasker (skipped): " + truncate(oneLine(topic), maxSubjectLen)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Request: %s\n", st.Request)
	fmt.Fprintf(&b, "Execution: %s\n", st.ExecutionID)
	if st.Plan != nil {
		fmt.Fprintf(&b, "Schedule: %s\n", st.Plan.Schedule)
	}
	b.WriteString("\n")

	if st.Skipped {
		b.WriteString("== Skipped ==\n")
		fmt.Fprintf(&b, "This request matched a recent run (%s, similarity %.2f): %s\n\n",
			st.Memory.MatchType, st.Memory.Similarity, st.Memory.Reason)
	}

	b.WriteString("== Results ==\n")
	shown := 0
	for _, key := range st.ResultOrder {
		if st.deliverVia >= 0 && key == deliveryKey(st.deliverVia) {
			continue
		}
		res := st.Results[key]
		status := "OK"
		if !res.Success {
			status = "FAILED"
		}
		fmt.Fprintf(&b, "[%s] %s\n", key, status)
		if res.Content != "" {
			b.WriteString(strings.TrimRight(res.Content, "\n"))
			b.WriteString("\n")
		}
		if res.Error != "" {
			fmt.Fprintf(&b, "error: %s\n", res.Error)
		}
		b.WriteString("\n")
		shown++
	}
	if shown == 0 {
		b.WriteString("No tasks produced results.\n\n")
	}

	b.WriteString("== Errors ==\n")
	if len(st.Errors) == 0 {
		b.WriteString("None\n")
	}
	for _, e := range st.Errors {
		fmt.Fprintf(&b, "- %s\n", e)
	}
	if st.RetryCount > 0 {
		fmt.Fprintf(&b, "\nRetries: %d\n", st.RetryCount)
	}
	return subject, b.String()
}

// OutcomeSummary is the one-line outcome recorded in execution logs.
func OutcomeSummary(st *WorkflowState) string {
	if st == nil {
		return "no result"
	}
	if st.Skipped {
		return fmt.Sprintf("skipped: %s match (%.2f)", st.Memory.MatchType, st.Memory.Similarity)
	}

	ok, total := 0, 0
	for _, key := range st.ResultOrder {
		total++
		if st.Results[key].Success {
			ok++
		}
	}
	delivered := st.Delivery != nil && st.Delivery.Success

	switch {
	case st.Success:
		return fmt.Sprintf("ok: %d/%d results, %d errors, %d retries", ok, total, len(st.Errors), st.RetryCount)
	case !delivered:
		return fmt.Sprintf("undelivered: %d/%d results, %d errors", ok, total, len(st.Errors))
	default:
		return fmt.Sprintf("partial: %d/%d results, %d errors, %d retries", ok, total, len(st.Errors), st.RetryCount)
	}
}

func deliveryKey(index int) string {
	return fmt.Sprintf("notify_%d", index)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
