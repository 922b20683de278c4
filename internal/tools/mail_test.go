package tools

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMailbox struct {
	msgs  []MailMessage
	err   error
	query string
	limit int
}

func (f *fakeMailbox) Fetch(ctx context.Context, query string, limit int) ([]MailMessage, error) {
	f.query, f.limit = query, limit
	return f.msgs, f.err
}

type sentMail struct {
	to            []string
	subject, body string
}

type fakeSender struct {
	sent []sentMail
	err  error
}

func (f *fakeSender) Send(ctx context.Context, to []string, subject, body string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{to, subject, body})
	return nil
}

func TestMailExecutor_Fetch(t *testing.T) {
	box := &fakeMailbox{msgs: []MailMessage{
		{ID: "1", From: "alice@example.com", Subject: "Invoice", Snippet: "due friday", HTML: "<p>Pay by Friday</p>"},
		{ID: "2", From: "bob@example.com", Subject: "Lunch", Text: "noon?"},
	}}
	exec := &MailExecutor{Mailbox: box}

	res, err := exec.Execute(context.Background(), TaskDescriptor{
		Kind:       KindMail,
		Parameters: map[string]any{"query": "is:unread newer_than:1d", "max_results": 5},
	})
	require.NoError(t, err)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "is:unread newer_than:1d", box.query)
	assert.Equal(t, 5, box.limit)
	assert.Contains(t, res.Content, "1. alice@example.com: Invoice")
	assert.Contains(t, res.Content, "2. bob@example.com: Lunch")
	assert.Contains(t, res.Content, "due friday")

	data := res.StructuredData.(map[string]any)
	assert.Equal(t, 2, data["count"])
	doc := data["html"].(string)
	assert.Contains(t, doc, "<p>Pay by Friday</p>")
	assert.Contains(t, doc, "<pre>noon?</pre>")
}

func TestMailExecutor_FetchEmptyAndErrors(t *testing.T) {
	res, err := (&MailExecutor{Mailbox: &fakeMailbox{}}).Execute(context.Background(), TaskDescriptor{Kind: KindMail})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Contains(t, res.Content, "No messages")

	res, err = (&MailExecutor{Mailbox: &fakeMailbox{err: errors.New("401 unauthorized")}}).Execute(context.Background(), TaskDescriptor{Kind: KindMail})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "401")

	res, err = (&MailExecutor{}).Execute(context.Background(), TaskDescriptor{Kind: KindMail})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "missing mailbox credentials")

	res, err = (&MailExecutor{}).Execute(context.Background(), TaskDescriptor{Kind: KindMail, Parameters: map[string]any{"action": "archive"}})
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestMailExecutor_Send(t *testing.T) {
	sender := &fakeSender{}
	exec := &MailExecutor{Sender: sender, DefaultTo: []string{"me@example.com"}}

	res, err := exec.Execute(context.Background(), TaskDescriptor{
		Kind:        KindMail,
		Description: "weekly report",
		Parameters:  map[string]any{"action": "send", "to": "a@example.com, b@example.com", "body": "hello"},
	})
	require.NoError(t, err)
	require.True(t, res.Success, res.Error)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, sender.sent[0].to)
	assert.Equal(t, "weekly report", sender.sent[0].subject)
	assert.Equal(t, "hello", sender.sent[0].body)

	res, err = exec.Execute(context.Background(), TaskDescriptor{Kind: KindMail, Description: "ping", Parameters: map[string]any{"action": "send"}})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, []string{"me@example.com"}, sender.sent[1].to)

	res, err = (&MailExecutor{Sender: sender}).Execute(context.Background(), TaskDescriptor{Kind: KindMail, Parameters: map[string]any{"action": "send"}})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "recipient required")
}

func TestBuildMessage(t *testing.T) {
	msg := string(buildMessage("bot@example.com", []string{"a@example.com"}, "Hi", "line1\nline2"))
	assert.True(t, strings.HasPrefix(msg, "From: bot@example.com\r\nTo: a@example.com\r\nSubject: Hi\r\n"))
	assert.True(t, strings.HasSuffix(msg, "\r\n\r\nline1\r\nline2"))
}

func TestSMTPMailer_RequiresHost(t *testing.T) {
	err := (&SMTPMailer{}).Send(context.Background(), []string{"a@example.com"}, "s", "b")
	assert.Error(t, err)
}

func TestGmailMailbox_Fetch(t *testing.T) {
	encode := func(s string) string { return base64.URLEncoding.EncodeToString([]byte(s)) }
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/gmail/v1/users/me/messages":
			assert.Equal(t, "is:unread", r.URL.Query().Get("q"))
			assert.Equal(t, "3", r.URL.Query().Get("maxResults"))
			json.NewEncoder(w).Encode(map[string]any{"messages": []map[string]string{{"id": "m1"}}})
		case "/gmail/v1/users/me/messages/m1":
			assert.Equal(t, "full", r.URL.Query().Get("format"))
			json.NewEncoder(w).Encode(map[string]any{
				"id":           "m1",
				"snippet":      "quarterly numbers",
				"internalDate": "1767225600000",
				"payload": map[string]any{
					"mimeType": "multipart/alternative",
					"headers": []map[string]string{
						{"name": "From", "value": "cfo@example.com"},
						{"name": "Subject", "value": "Q4"},
					},
					"parts": []map[string]any{
						{"mimeType": "text/plain", "body": map[string]string{"data": encode("plain body")}},
						{"mimeType": "text/html", "body": map[string]string{"data": encode("<b>html body</b>")}},
					},
				},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	box := &GmailMailbox{Token: "tok", Endpoint: srv.URL}
	msgs, err := box.Fetch(context.Background(), "is:unread", 3)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	m := msgs[0]
	assert.Equal(t, "cfo@example.com", m.From)
	assert.Equal(t, "Q4", m.Subject)
	assert.Equal(t, "plain body", m.Text)
	assert.Equal(t, "<b>html body</b>", m.HTML)
	assert.True(t, m.Date.Equal(time.UnixMilli(1767225600000)))
}

func TestGmailMailbox_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := (&GmailMailbox{Token: "bad", Endpoint: srv.URL}).Fetch(context.Background(), "", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401 unauthorized")
}
