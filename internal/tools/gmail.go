package tools

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GmailMailbox reads messages through the Gmail API using an OAuth access
// token. Endpoint overrides the API root when set.
type GmailMailbox struct {
	Token    string
	Endpoint string
	Client   *http.Client
}

func NewGmailMailbox(token string) *GmailMailbox {
	return &GmailMailbox{
		Token:  token,
		Client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (g *GmailMailbox) service(ctx context.Context) (*gmail.Service, error) {
	base := g.Client
	if base == nil {
		base = http.DefaultClient
	}
	// oauth2.NewClient picks the base client up from the context
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: g.Token}))

	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if g.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(strings.TrimRight(g.Endpoint, "/")+"/"))
	}
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail client: %w", err)
	}
	return svc, nil
}

func (g *GmailMailbox) Fetch(ctx context.Context, query string, limit int) ([]MailMessage, error) {
	if limit <= 0 {
		limit = 10
	}
	svc, err := g.service(ctx)
	if err != nil {
		return nil, err
	}

	call := svc.Users.Messages.List("me").MaxResults(int64(limit)).Context(ctx)
	if query != "" {
		call = call.Q(query)
	}
	list, err := call.Do()
	if err != nil {
		return nil, gmailError(err)
	}

	out := make([]MailMessage, 0, len(list.Messages))
	for _, ref := range list.Messages {
		m, err := svc.Users.Messages.Get("me", ref.Id).Format("full").Context(ctx).Do()
		if err != nil {
			return nil, gmailError(err)
		}
		out = append(out, toMailMessage(m))
	}
	return out, nil
}

func gmailError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return fmt.Errorf("gmail API returned %d %s", apiErr.Code, strings.ToLower(http.StatusText(apiErr.Code)))
	}
	return fmt.Errorf("gmail request failed: %w", err)
}

func toMailMessage(m *gmail.Message) MailMessage {
	msg := MailMessage{ID: m.Id, Snippet: m.Snippet}
	if m.InternalDate > 0 {
		msg.Date = time.UnixMilli(m.InternalDate)
	}
	if m.Payload == nil {
		return msg
	}
	for _, h := range m.Payload.Headers {
		switch strings.ToLower(h.Name) {
		case "from":
			msg.From = h.Value
		case "subject":
			msg.Subject = h.Value
		}
	}
	walkParts(m.Payload, &msg)
	return msg
}

func walkParts(p *gmail.MessagePart, msg *MailMessage) {
	if p == nil {
		return
	}
	if p.Body != nil && p.Body.Data != "" {
		data, err := base64.URLEncoding.DecodeString(p.Body.Data)
		if err != nil {
			data, err = base64.RawURLEncoding.DecodeString(p.Body.Data)
		}
		if err == nil {
			switch {
			case strings.HasPrefix(p.MimeType, "text/html") && msg.HTML == "":
				msg.HTML = string(data)
			case strings.HasPrefix(p.MimeType, "text/plain") && msg.Text == "":
				msg.Text = string(data)
			}
		}
	}
	for _, child := range p.Parts {
		walkParts(child, msg)
	}
}
