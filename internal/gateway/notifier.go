package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/Hemesh11/autotasker/internal/agent"
	"github.com/Hemesh11/autotasker/internal/tools"
)

// ConsoleNotifier prints reports to a writer.
type ConsoleNotifier struct {
	mu sync.Mutex
	w  io.Writer
}

func NewConsoleNotifier(w io.Writer) *ConsoleNotifier {
	return &ConsoleNotifier{w: w}
}

func (c *ConsoleNotifier) Deliver(ctx context.Context, subject, body string) (tools.ExecutionResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rule := strings.Repeat("=", 60)
	if _, err := fmt.Fprintf(c.w, "%s\n%s\n%s\n%s\n", rule, subject, rule, strings.TrimRight(body, "\n")); err != nil {
		return tools.Failure(fmt.Errorf("console: %w", err)), nil
	}
	return tools.ExecutionResult{Success: true, Content: "printed to console"}, nil
}

// EmailNotifier mails reports to a fixed recipient list.
type EmailNotifier struct {
	Sender tools.MailSender
	To     []string
}

func (e *EmailNotifier) Deliver(ctx context.Context, subject, body string) (tools.ExecutionResult, error) {
	if e.Sender == nil || len(e.To) == 0 {
		return tools.Failure(errors.New("email: no smtp sender or recipients configured")), nil
	}
	if err := e.Sender.Send(ctx, e.To, subject, body); err != nil {
		return tools.Failure(fmt.Errorf("email: %w", err)), nil
	}
	return tools.ExecutionResult{Success: true, Content: "emailed to " + strings.Join(e.To, ", ")}, nil
}

type namedNotifier struct {
	name string
	n    agent.Notifier
}

// MultiNotifier fans a report out to every channel in order. Delivery
// succeeds when at least one channel succeeds. The fallback channel is
// used only while no other channel is registered.
type MultiNotifier struct {
	mu       sync.RWMutex
	channels []namedNotifier
	fallback *namedNotifier
}

func NewMultiNotifier() *MultiNotifier {
	return &MultiNotifier{}
}

func (m *MultiNotifier) Add(name string, n agent.Notifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels = append(m.channels, namedNotifier{name: name, n: n})
}

// SetFallback registers the channel used when nothing else is added.
func (m *MultiNotifier) SetFallback(name string, n agent.Notifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = &namedNotifier{name: name, n: n}
}

func (m *MultiNotifier) active() []namedNotifier {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.channels) == 0 && m.fallback != nil {
		return []namedNotifier{*m.fallback}
	}
	return append([]namedNotifier(nil), m.channels...)
}

// Channels returns the names of the channels a report would go to.
func (m *MultiNotifier) Channels() []string {
	channels := m.active()
	names := make([]string, 0, len(channels))
	for _, c := range channels {
		names = append(names, c.name)
	}
	return names
}

func (m *MultiNotifier) Deliver(ctx context.Context, subject, body string) (tools.ExecutionResult, error) {
	channels := m.active()
	if len(channels) == 0 {
		return tools.Failure(errors.New("no delivery channel configured")), nil
	}

	var delivered, failed []string
	for _, c := range channels {
		if err := ctx.Err(); err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", c.name, err))
			continue
		}
		res, err := c.n.Deliver(ctx, subject, body)
		switch {
		case err != nil:
			failed = append(failed, fmt.Sprintf("%s: %v", c.name, err))
		case !res.Success:
			failed = append(failed, fmt.Sprintf("%s: %s", c.name, res.Error))
		default:
			delivered = append(delivered, c.name)
		}
	}

	data := map[string]any{"delivered": delivered, "failed": failed}
	if len(delivered) == 0 {
		return tools.ExecutionResult{
			Success:        false,
			Error:          "all delivery channels failed: " + strings.Join(failed, "; "),
			StructuredData: data,
		}, nil
	}
	res := tools.ExecutionResult{
		Success:        true,
		Content:        "delivered via " + strings.Join(delivered, ", "),
		StructuredData: data,
	}
	if len(failed) > 0 {
		res.Error = strings.Join(failed, "; ")
	}
	return res, nil
}
