package tools

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/smtp"
	"strings"
	"time"
)

// MailMessage is one fetched message.
type MailMessage struct {
	ID      string    `json:"id"`
	From    string    `json:"from"`
	Subject string    `json:"subject"`
	Date    time.Time `json:"date"`
	Snippet string    `json:"snippet"`
	Text    string    `json:"text,omitempty"`
	HTML    string    `json:"-"`
}

// Mailbox lists messages matching a provider query such as "is:unread".
type Mailbox interface {
	Fetch(ctx context.Context, query string, limit int) ([]MailMessage, error)
}

// MailSender sends a plain-text message.
type MailSender interface {
	Send(ctx context.Context, to []string, subject, body string) error
}

// MailExecutor handles the mail lane: "fetch" (default) and "send".
type MailExecutor struct {
	Mailbox Mailbox
	Sender  MailSender
	// DefaultTo is used for send when the task names no recipient.
	DefaultTo []string
}

func (m *MailExecutor) Execute(ctx context.Context, task TaskDescriptor) (ExecutionResult, error) {
	switch action := task.StringParam("action", "fetch"); action {
	case "fetch", "read", "list":
		return m.fetch(ctx, task)
	case "send":
		return m.send(ctx, task)
	default:
		return Failure(fmt.Errorf("unsupported mail action %q", action)), nil
	}
}

func (m *MailExecutor) fetch(ctx context.Context, task TaskDescriptor) (ExecutionResult, error) {
	if m.Mailbox == nil {
		return Failure(errors.New("mail fetch is not configured: missing mailbox credentials")), nil
	}
	query := task.StringParam("query", "is:unread")
	limit := task.IntParam("max_results", 10)

	msgs, err := m.Mailbox.Fetch(ctx, query, limit)
	if err != nil {
		return Failure(fmt.Errorf("mail fetch: %w", err)), nil
	}
	if len(msgs) == 0 {
		return ExecutionResult{
			Success:        true,
			Content:        fmt.Sprintf("No messages match %q.", query),
			StructuredData: map[string]any{"count": 0, "query": query},
		}, nil
	}

	var b strings.Builder
	var html strings.Builder
	fmt.Fprintf(&b, "%d message(s) for %q:\n", len(msgs), query)
	for i, msg := range msgs {
		fmt.Fprintf(&b, "%d. %s: %s", i+1, msg.From, msg.Subject)
		if !msg.Date.IsZero() {
			fmt.Fprintf(&b, " (%s)", msg.Date.Format("Jan 2 15:04"))
		}
		b.WriteString("\n")
		if msg.Snippet != "" {
			fmt.Fprintf(&b, "   %s\n", msg.Snippet)
		}
		if msg.HTML != "" {
			fmt.Fprintf(&html, "<article><h2>%s</h2>%s</article>\n", msg.Subject, msg.HTML)
		} else if msg.Text != "" {
			fmt.Fprintf(&html, "<article><h2>%s</h2><pre>%s</pre></article>\n", msg.Subject, msg.Text)
		}
	}

	data := map[string]any{
		"count":    len(msgs),
		"query":    query,
		"messages": msgs,
	}
	if html.Len() > 0 {
		data["html"] = "<html><body>" + html.String() + "</body></html>"
	}
	return ExecutionResult{Success: true, Content: b.String(), StructuredData: data}, nil
}

func (m *MailExecutor) send(ctx context.Context, task TaskDescriptor) (ExecutionResult, error) {
	if m.Sender == nil {
		return Failure(errors.New("mail send is not configured: missing smtp settings")), nil
	}
	to := m.DefaultTo
	if raw := task.StringParam("to", ""); raw != "" {
		to = splitAddresses(raw)
	}
	if len(to) == 0 {
		return Failure(errors.New("mail send: recipient required")), nil
	}
	subject := task.StringParam("subject", task.Description)
	body := task.StringParam("body", task.Description)

	if err := m.Sender.Send(ctx, to, subject, body); err != nil {
		return Failure(fmt.Errorf("mail send: %w", err)), nil
	}
	return ExecutionResult{
		Success:        true,
		Content:        fmt.Sprintf("Sent %q to %s.", subject, strings.Join(to, ", ")),
		StructuredData: map[string]any{"to": to, "subject": subject},
	}, nil
}

func splitAddresses(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

// SMTPMailer sends mail through an SMTP relay. Port 465 uses implicit TLS.
type SMTPMailer struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func (s *SMTPMailer) Send(ctx context.Context, to []string, subject, body string) error {
	if s.Host == "" || s.From == "" {
		return errors.New("smtp host and from address are required")
	}
	port := s.Port
	if port == 0 {
		port = 587
	}
	addr := fmt.Sprintf("%s:%d", s.Host, port)
	msg := buildMessage(s.From, to, subject, body)

	var auth smtp.Auth
	if s.Username != "" && s.Password != "" {
		auth = smtp.PlainAuth("", s.Username, s.Password, s.Host)
	}

	errCh := make(chan error, 1)
	go func() {
		if port == 465 {
			errCh <- s.sendTLS(addr, auth, to, msg)
			return
		}
		errCh <- smtp.SendMail(addr, auth, s.From, to, msg)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *SMTPMailer) sendTLS(addr string, auth smtp.Auth, to []string, msg []byte) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: s.Host})
	if err != nil {
		return fmt.Errorf("tls connection failed: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.Host)
	if err != nil {
		return fmt.Errorf("failed to create smtp client: %w", err)
	}
	defer client.Close()

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp authentication failed: %w", err)
		}
	}
	if err := client.Mail(s.From); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

func buildMessage(from string, to []string, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}
