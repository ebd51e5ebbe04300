package handlers

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/events"
	"golang.org/x/time/rate"

	"github.com/studcom-mm/washbot/washbot"
	"github.com/studcom-mm/washbot/washbot/commands"
	"github.com/studcom-mm/washbot/washbot/conversation"
)

// MessageHandler feeds free-text DMs into the conversation machine. Guild
// messages and other bots are ignored; the conversation is DM-only.
func MessageHandler(b *washbot.Bot) bot.EventListener {
	limiters := newUserLimiters(rate.Every(time.Second), 3)

	return bot.NewListenerFunc(func(e *events.MessageCreate) {
		if e.Message.Author.Bot || e.GuildID != nil {
			return
		}

		text := strings.TrimSpace(e.Message.Content)
		if text == "" {
			return
		}

		userID := e.Message.Author.ID.String()
		if !limiters.allow(userID) {
			slog.Warn("Dropping message from flooding user",
				slog.String("type", "cmd"),
				slog.String("user_id", userID))
			return
		}

		in := conversation.Input{Text: text}
		if strings.HasPrefix(text, "/") {
			in = conversation.Input{Command: strings.ToLower(strings.Fields(text)[0][1:])}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		replies, err := b.Machine.Handle(ctx, userID, e.Message.Author.Username, in)
		if err != nil && len(replies) == 0 {
			return
		}

		for _, r := range replies {
			if len(r.Pages) > 0 {
				// No interaction to hang a paginator on; send the first page.
				r = conversation.Reply{Text: r.Pages[0], MainMenu: r.MainMenu}
			}
			msg := commands.BuildMessage(r)
			if _, err := b.Client.Rest().CreateMessage(e.ChannelID, msg); err != nil {
				slog.Error("Failed to send reply",
					slog.String("type", "cmd"),
					slog.String("user_id", userID),
					slog.Any("error", err))
				return
			}
		}
	})
}
