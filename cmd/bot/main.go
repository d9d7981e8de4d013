package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"

	"github.com/digkill/NabiBot/internal/admin"
	"github.com/digkill/NabiBot/internal/bot"
	"github.com/digkill/NabiBot/internal/config"
	"github.com/digkill/NabiBot/internal/conversation"
	"github.com/digkill/NabiBot/internal/database"
	"github.com/digkill/NabiBot/internal/events"
	"github.com/digkill/NabiBot/internal/generation"
	"github.com/digkill/NabiBot/internal/intent"
	"github.com/digkill/NabiBot/internal/openai"
	"github.com/digkill/NabiBot/internal/repository"
	"github.com/digkill/NabiBot/internal/service"
	"github.com/digkill/NabiBot/internal/storage"
	"github.com/digkill/NabiBot/internal/webhook"
	"github.com/digkill/NabiBot/internal/whatsapp"
	"github.com/digkill/NabiBot/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logr := logger.New(cfg.LogLevel)

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("database connect: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("database migrate: %v", err)
	}

	userRepo := repository.NewUserRepository(db)
	creationRepo := repository.NewCreationRepository(db)

	userService := service.NewUserService(userRepo, cfg.FreeTrialUses)
	ledgerService := service.NewLedgerService(userRepo, creationRepo, cfg.SubscriberDailyCap, cfg.Location)

	messenger := whatsapp.NewClient(cfg, logr)
	llm := openai.NewClient(cfg, logr)

	var store conversation.Store
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("redis ping: %v", err)
		}
		store = conversation.NewRedisStore(rdb, cfg.ConversationMaxTurns, cfg.ConversationTTL)
		logr.Info("conversation context in redis", "addr", cfg.RedisAddr)
	} else {
		store = conversation.NewMemoryStore(cfg.ConversationMaxTurns, cfg.ConversationMaxUsers, cfg.ConversationTTL)
		logr.Info("conversation context in memory")
	}

	deps := bot.Deps{
		Messenger:  messenger,
		Users:      userService,
		Ledger:     ledgerService,
		Router:     intent.New(cfg.RouterMode, llm, logr),
		Image:      generation.NewImageAdapter(llm, llm, logr),
		Song:       generation.NewSongAdapter(cfg, logr),
		Video:      generation.NewVideoAdapter(cfg, logr),
		Context:    store,
		PaymentURL: cfg.PaymentURL,
		Log:        logr,
	}

	uploader, err := storage.NewUploader(cfg)
	switch {
	case errors.Is(err, storage.ErrDisabled):
		logr.Info("media rehosting disabled, inbound photos are passed to providers as data urls")
	case err != nil:
		log.Fatalf("storage uploader: %v", err)
	default:
		deps.Uploader = uploader
	}

	if cfg.NATSURL != "" {
		publisher, closeNATS, err := events.Connect(cfg.NATSURL, cfg.NATSSubject, logr)
		if err != nil {
			log.Fatalf("nats connect: %v", err)
		}
		defer closeNATS()
		deps.Events = publisher
	}

	pipeline := bot.New(deps)

	adminServer := admin.NewServer(cfg.AdminListenAddr, cfg.AdminUsername, cfg.AdminPassword, logr, userService, ledgerService, messenger)
	go func() {
		if err := adminServer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logr.Error("admin server stopped", "err", err)
		}
	}()

	server := webhook.NewServer(cfg.ListenAddr(), cfg.VerifyToken, pipeline, logr)
	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logr.Error("webhook server stopped", "err", err)
	}
}
