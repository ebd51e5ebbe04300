package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/handler"

	"github.com/studcom-mm/washbot/washbot"
	"github.com/studcom-mm/washbot/washbot/booking"
	"github.com/studcom-mm/washbot/washbot/commands"
	"github.com/studcom-mm/washbot/washbot/conversation"
	"github.com/studcom-mm/washbot/washbot/database"
	"github.com/studcom-mm/washbot/washbot/database/repositories"
	"github.com/studcom-mm/washbot/washbot/handlers"
	"github.com/studcom-mm/washbot/washbot/inventory"
	"github.com/studcom-mm/washbot/washbot/logger"
	"github.com/studcom-mm/washbot/washbot/mail"
	"github.com/studcom-mm/washbot/washbot/reminder"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	customHandler := logger.NewHandler()
	slog.SetDefault(slog.New(customHandler))

	slog.Info("Starting WashBot",
		slog.String("version", version),
		slog.String("commit", commit))

	shouldSyncCommands := flag.Bool("sync-commands", false, "Whether to sync commands to discord")
	path := flag.String("config", "config.toml", "path to config")
	flag.Parse()

	cfg, err := washbot.LoadConfig(*path)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(-1)
	}
	slog.Info("Configuration loaded successfully")

	loc, err := time.LoadLocation(cfg.Booking.Timezone)
	if err != nil {
		slog.Error("Failed to load timezone",
			slog.String("timezone", cfg.Booking.Timezone),
			slog.Any("error", err))
		os.Exit(-1)
	}

	slog.Info("Initializing database connection...")
	dbStartTime := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	db, err := database.New(ctx, database.DBConfig{
		Host:     cfg.DB.Host,
		Port:     cfg.DB.Port,
		User:     cfg.DB.User,
		Password: cfg.DB.Password,
		Database: cfg.DB.Database,
		PoolSize: cfg.DB.PoolSize,
	})
	if err != nil {
		slog.Error("Database connection failed",
			slog.String("error", err.Error()),
			slog.Duration("attempted_for", time.Since(dbStartTime)))
		os.Exit(-1)
	}
	defer db.Close()

	slog.Info("Database connected successfully",
		slog.String("database", cfg.DB.Database),
		slog.Duration("took", time.Since(dbStartTime)))

	if err := db.InitializeSchema(ctx); err != nil {
		slog.Error("Failed to initialize database schema",
			slog.String("error", err.Error()))
		os.Exit(-1)
	}
	slog.Info("Database schema initialized successfully")

	b := washbot.New(*cfg, version, commit)
	b.DB = db

	b.UserRepository = repositories.NewUserRepository(db.BunDB())
	b.ConfigRepository = repositories.NewConfigRepository(db.BunDB())
	b.SessionRepo, err = repositories.NewSessionRepository(db.BunDB())
	if err != nil {
		slog.Error("Failed to initialize session repository", slog.Any("error", err))
		os.Exit(-1)
	}

	var rows inventory.RowStore
	switch cfg.Store.Backend {
	case "memory":
		rows = inventory.NewMemoryStore()
	default:
		rows = inventory.NewPGStore(db.BunDB())
	}
	b.Inventory = inventory.NewStore(rows)
	b.Allocator = booking.NewAllocator(b.Inventory, loc, nil)
	b.Search = booking.NewSearch(b.Inventory, loc, nil)
	b.Mailer = mail.NewMailer(
		cfg.SMTP.Host, cfg.SMTP.Port,
		cfg.SMTP.User, cfg.SMTP.Password, cfg.SMTP.SenderName)

	h := handler.New()
	h.Command("/version", commands.VersionHandler(b))
	h.Command("/start", handlers.WrapWithLogging("start", commands.CommandHandler(b, "start")))
	h.Command("/cancel", handlers.WrapWithLogging("cancel", commands.CommandHandler(b, "cancel")))
	h.Command("/help", handlers.WrapWithLogging("help", commands.CommandHandler(b, "help")))
	h.Command("/my_bookings", handlers.WrapWithLogging("my_bookings", commands.CommandHandler(b, "my_bookings")))
	h.Command("/history", handlers.WrapWithLogging("history", commands.CommandHandler(b, "history")))
	h.Component("/wash/", handlers.WrapComponentWithLogging("wash", commands.WashComponentHandler(b)))

	if err = b.SetupBot(h, bot.NewListenerFunc(b.OnReady), handlers.MessageHandler(b)); err != nil {
		slog.Error("Failed to setup bot",
			slog.String("type", "sys"),
			slog.Any("error", err),
			slog.String("component", "bot_setup"),
			slog.String("status", "failed"),
		)
		os.Exit(-1)
	}

	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		b.Client.Close(ctx)
	}()

	sender := handlers.NewDiscordSender(b.Client)
	b.Reminders = reminder.NewScheduler(sender, loc, nil)
	defer b.Reminders.Shutdown()

	b.Notifier = conversation.NewNotifier(b.ConfigRepository, b.UserRepository, b.Reminders, sender)
	b.Machine = conversation.NewMachine(
		b.UserRepository,
		b.SessionRepo,
		b.Inventory,
		b.Allocator,
		b.Search,
		b.Notifier,
		b.Mailer,
		mail.NewVerifier(cfg.Verification.MaxSendsPerWindow, nil),
		conversation.Options{
			EmailDomain:  cfg.Verification.EmailDomain,
			SlotsPerPage: cfg.Booking.SlotsPerPage,
			DatesPerPage: cfg.Booking.DatesPerPage,
			RulesPath:    cfg.Booking.RulesPath,
			MemoPath:     cfg.Booking.MemoPath,
		},
		loc,
		nil,
	)

	restoreCtx, restoreCancel := context.WithTimeout(context.Background(), time.Minute)
	if err := b.Reminders.RestoreAll(restoreCtx, b.Inventory, b.Notifier.BuildItems); err != nil {
		logger.LogError("Failed to restore reminders", err)
	}
	restoreCancel()

	if *shouldSyncCommands {
		slog.Info("Syncing commands",
			slog.String("type", "sys"),
			slog.Any("guild_ids", cfg.Bot.DevGuilds),
		)
		if err = handler.SyncCommands(b.Client, commands.Commands, cfg.Bot.DevGuilds); err != nil {
			slog.Error("Failed to sync commands",
				slog.String("type", "sys"),
				slog.Any("error", err),
				slog.String("component", "command_sync"),
				slog.String("status", "failed"),
			)
		}
	}

	gwCtx, gwCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer gwCancel()
	if err = b.Client.OpenGateway(gwCtx); err != nil {
		slog.Error("Failed to open gateway",
			slog.String("type", "sys"),
			slog.Any("error", err),
			slog.String("component", "gateway"),
			slog.String("status", "failed"),
		)
		os.Exit(-1)
	}

	logger.LogSystem("Bot is running. Press CTRL-C to exit.")
	s := make(chan os.Signal, 1)
	signal.Notify(s, syscall.SIGINT, syscall.SIGTERM)
	<-s
	logger.LogSystem("Shutting down bot...")
}
