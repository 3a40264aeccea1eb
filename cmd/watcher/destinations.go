package main

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"transferWatch/internal/config"
	"transferWatch/internal/notify"
	"transferWatch/internal/storage"
	"transferWatch/internal/storage/postgres"
)

// buildDestinations wires every configured delivery target. On success the
// returned func releases held resources.
func buildDestinations(ctx context.Context, cfg config.Config, logger *zap.Logger) ([]notify.Destination, func(), error) {
	var (
		destinations []notify.Destination
		closers      []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.TelegramToken != "" {
		bot, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
		if err != nil {
			return nil, nil, fmt.Errorf("telegram bot: %w", err)
		}
		logger.Info("telegram bot authorized", zap.String("username", bot.Self.UserName))

		for _, raw := range cfg.TelegramChats {
			chat, err := notify.ParseChat(raw)
			if err != nil {
				return nil, nil, err
			}
			destinations = append(destinations, notify.NewTelegramDestination(bot, notify.TelegramConfig{
				Chat:      chat,
				CTAURL:    cfg.CTAURL,
				Animation: cfg.Animation,
			}, logger.Named("telegram")))
		}
	}

	if cfg.EventsOut != "" {
		events := storage.NewJsonlStorage(cfg.EventsOut)
		closers = append(closers, func() {
			if err := events.Close(); err != nil {
				logger.Warn("close events file", zap.Error(err))
			}
		})
		destinations = append(destinations, notify.NewStorageDestination("jsonl", events))
	}

	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		closers = append(closers, store.Close)
		if err := store.EnsureSchema(ctx); err != nil {
			closeAll()
			return nil, nil, err
		}
		destinations = append(destinations, notify.NewStorageDestination("postgres", store))
	}

	if len(destinations) == 0 {
		logger.Warn("no notification destinations configured, logging events only")
		destinations = append(destinations, notify.NewLogDestination(logger.Named("events")))
	}

	return destinations, closeAll, nil
}
