package washbot

import (
	"context"
	"log/slog"
	"time"

	"github.com/disgoorg/disgo"
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/cache"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/gateway"
	"github.com/disgoorg/paginator"

	"github.com/studcom-mm/washbot/washbot/booking"
	"github.com/studcom-mm/washbot/washbot/conversation"
	"github.com/studcom-mm/washbot/washbot/database"
	"github.com/studcom-mm/washbot/washbot/database/repositories"
	"github.com/studcom-mm/washbot/washbot/inventory"
	"github.com/studcom-mm/washbot/washbot/mail"
	"github.com/studcom-mm/washbot/washbot/reminder"
)

func New(cfg Config, version string, commit string) *Bot {
	return &Bot{
		Cfg:       cfg,
		Paginator: paginator.New(),
		Version:   version,
		Commit:    commit,
	}
}

type Bot struct {
	Cfg       Config
	Client    bot.Client
	Paginator *paginator.Manager
	Version   string
	Commit    string

	DB               *database.DB
	UserRepository   repositories.UserRepository
	SessionRepo      repositories.SessionRepository
	ConfigRepository repositories.ConfigRepository

	Inventory *inventory.Store
	Allocator *booking.Allocator
	Search    *booking.Search
	Reminders *reminder.Scheduler
	Notifier  *conversation.Notifier
	Mailer    *mail.Mailer
	Machine   *conversation.Machine
}

func (b *Bot) SetupBot(listeners ...bot.EventListener) error {
	client, err := disgo.New(b.Cfg.Bot.Token,
		bot.WithGatewayConfigOpts(gateway.WithIntents(
			gateway.IntentGuilds,
			gateway.IntentDirectMessages,
			gateway.IntentMessageContent,
		)),
		bot.WithCacheConfigOpts(cache.WithCaches(cache.FlagGuilds)),
		bot.WithEventListeners(b.Paginator),
		bot.WithEventListeners(listeners...),
	)
	if err != nil {
		return err
	}

	b.Client = client
	return nil
}

func (b *Bot) OnReady(_ *events.Ready) {
	slog.Info("WashBot is now ready",
		slog.String("version", b.Version),
		slog.String("commit", b.Commit))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := b.Client.SetPresence(ctx,
		gateway.WithListeningActivity("стиральные машины ДСЛ"),
		gateway.WithOnlineStatus(discord.OnlineStatusOnline)); err != nil {
		slog.Error("Failed to set presence", slog.Any("error", err))
	}
}
