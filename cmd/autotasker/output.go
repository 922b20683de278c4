package main

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"

	"github.com/Hemesh11/autotasker/internal/scheduler"
)

func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func printOutcome(success bool, executionID string, errs []string) {
	if success {
		color.Green("Run %s succeeded", executionID)
	} else {
		color.Red("Run %s finished with problems", executionID)
	}
	for _, e := range errs {
		color.Yellow("  - %s", e)
	}
}

func formatNext(j scheduler.JobSummary) string {
	if j.Paused {
		return "-"
	}
	if j.NextFire.IsZero() {
		return "unknown"
	}
	return j.NextFire.Format("Mon Jan 2 15:04:05")
}

func result(success, skipped bool) string {
	switch {
	case skipped:
		return color.YellowString("skipped")
	case success:
		return color.GreenString("ok")
	default:
		return color.RedString("failed")
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	cut := n - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return fmt.Sprintf("%s...", s[:cut])
}
