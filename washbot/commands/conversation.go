package commands

import (
	"context"
	"strings"
	"time"

	"github.com/disgoorg/disgo/handler"

	"github.com/studcom-mm/washbot/washbot"
	"github.com/studcom-mm/washbot/washbot/conversation"
)

const handleTimeout = 15 * time.Second

// CommandHandler routes a slash command into the conversation machine.
func CommandHandler(b *washbot.Bot, command string) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
		defer cancel()

		replies, err := b.Machine.Handle(ctx,
			e.User().ID.String(), e.User().Username,
			conversation.Input{Command: command})
		if err != nil && len(replies) == 0 {
			return err
		}
		return RespondCommand(b, e, replies)
	}
}

// WashComponentHandler routes every conversation button press. The callback
// token is whatever follows the shared custom-ID prefix.
func WashComponentHandler(b *washbot.Bot) handler.ComponentHandler {
	return func(e *handler.ComponentEvent) error {
		token := strings.TrimPrefix(e.Data.CustomID(), componentPrefix)

		ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
		defer cancel()

		replies, err := b.Machine.Handle(ctx,
			e.User().ID.String(), e.User().Username,
			conversation.Input{Callback: token})
		if err != nil && len(replies) == 0 {
			return err
		}
		return RespondComponent(b, e, replies)
	}
}
