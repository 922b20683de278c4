package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/Hemesh11/autotasker/internal/tools"
)

const discordMessageLimit = 2000

type discordSession interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordNotifier posts reports to a channel through the REST API. It
// never opens the websocket gateway.
type DiscordNotifier struct {
	session   discordSession
	channelID string
}

func NewDiscordNotifier(token, channelID string) (*DiscordNotifier, error) {
	if token == "" || channelID == "" {
		return nil, errors.New("discord token and channel id are required")
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	return &DiscordNotifier{session: s, channelID: channelID}, nil
}

func (d *DiscordNotifier) Deliver(ctx context.Context, subject, body string) (tools.ExecutionResult, error) {
	parts := chunk(fmt.Sprintf("**%s**\n%s", subject, body), discordMessageLimit)
	for i, p := range parts {
		if err := ctx.Err(); err != nil {
			return tools.Failure(err), nil
		}
		if _, err := d.session.ChannelMessageSend(d.channelID, p, discordgo.WithContext(ctx)); err != nil {
			return tools.Failure(fmt.Errorf("discord: message %d/%d: %w", i+1, len(parts), err)), nil
		}
	}
	return tools.ExecutionResult{
		Success: true,
		Content: fmt.Sprintf("posted %d message(s) to discord channel %s", len(parts), d.channelID),
	}, nil
}
