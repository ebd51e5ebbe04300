package handlers

import (
	"context"
	"fmt"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
)

// DiscordSender delivers reminder and supervisor messages. A chat ID is a
// user ID first; when opening a DM with it fails it is retried as a channel
// ID, so operators can point supervisor notices at a staff channel.
type DiscordSender struct {
	client bot.Client
}

func NewDiscordSender(client bot.Client) *DiscordSender {
	return &DiscordSender{client: client}
}

func (s *DiscordSender) Send(ctx context.Context, chatID string, message string) error {
	id, err := snowflake.Parse(chatID)
	if err != nil {
		return fmt.Errorf("bad chat id %q: %w", chatID, err)
	}

	channelID := id
	if dm, err := s.client.Rest().CreateDMChannel(id, rest.WithCtx(ctx)); err == nil {
		channelID = dm.ID()
	}

	_, err = s.client.Rest().CreateMessage(channelID,
		discord.MessageCreate{Content: message}, rest.WithCtx(ctx))
	return err
}
