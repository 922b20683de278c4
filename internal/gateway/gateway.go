// Package gateway holds the chat channels and report notifiers.
package gateway

import (
	"context"

	"github.com/Hemesh11/autotasker/internal/agent"
	"github.com/Hemesh11/autotasker/internal/scheduler"
)

// Messenger is an inbound chat channel that can also push messages.
type Messenger interface {
	// Start listens for messages until ctx is done or Stop is called.
	Start(ctx context.Context) error
	// Send pushes text to a specific chat.
	Send(chatID string, text string) error
	Stop() error
}

// Handler is what an inbound channel may ask of the application.
type Handler interface {
	RunOnce(ctx context.Context, request string) *agent.WorkflowState
	ScheduleNatural(ctx context.Context, request, phrase, name string) (string, error)
	ListJobs(ctx context.Context) ([]scheduler.JobSummary, error)
}

// chunk splits s into pieces of at most n bytes, preferring line breaks.
func chunk(s string, n int) []string {
	var out []string
	for len(s) > n {
		cut := n
		for i := n; i > n/2; i-- {
			if s[i-1] == '\n' {
				cut = i
				break
			}
		}
		// never split a utf-8 sequence
		for cut > 0 && cut < len(s) && s[cut]&0xC0 == 0x80 {
			cut--
		}
		if cut == 0 {
			// not valid utf-8; split at the byte limit
			cut = n
		}
		out = append(out, s[:cut])
		s = s[cut:]
	}
	if s != "" || len(out) == 0 {
		out = append(out, s)
	}
	return out
}
