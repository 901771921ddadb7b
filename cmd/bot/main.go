package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"ai-portrait-studio/internal/config"
	"ai-portrait-studio/internal/gemini"
	"ai-portrait-studio/internal/handlers"
	"ai-portrait-studio/internal/httpclient"
	"ai-portrait-studio/internal/logging"
	"ai-portrait-studio/internal/session"
	"ai-portrait-studio/internal/studio"
	"ai-portrait-studio/internal/telegram"
	"ai-portrait-studio/internal/upload"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	if err := cfg.RequireTelegram(); err != nil {
		panic(err)
	}

	logger := logging.New(os.Stdout, cfg.LogLevel)

	httpClient := httpclient.New(httpclient.Options{
		PreferIPv4: cfg.PreferIPv4,
		Timeout:    cfg.HTTPTimeout,
	})

	tg, err := telegram.New(telegram.Options{
		Token:      cfg.TelegramToken,
		HTTPClient: httpClient,
		Logger:     logger,
		Debug:      cfg.Debug,
	})
	if err != nil {
		logger.Error("telegram init failed", "err", err)
		os.Exit(1)
	}

	gem := gemini.New(gemini.Options{
		APIKey:      cfg.GeminiAPIKey,
		BaseURL:     cfg.GeminiBaseURL,
		APIVersion:  cfg.GeminiAPIVersion,
		Model:       cfg.GeminiModel,
		AspectRatio: cfg.GeminiAspectRatio,
		HTTPClient:  httpClient,
		Logger:      logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	genCtx, cancelGen := context.WithCancel(context.Background())
	defer cancelGen()

	handler := handlers.New(handlers.Options{
		Telegram: tg,
		Acquirer: upload.New(upload.Options{Logger: logger}),
		Studio: studio.Options{
			Generator:      gem,
			Logger:         logger,
			BaseContext:    genCtx,
			RequestTimeout: cfg.RequestTimeout,
		},
		BoardDelay: cfg.BoardDebounce,
		Logger:     logger,
	})

	stopJanitor, err := handler.Sessions().StartJanitor(session.JanitorOptions{
		Schedule: cfg.SessionSweepJob,
		Idle:     cfg.SessionIdle,
		Logger:   logger,
	})
	if err != nil {
		logger.Error("janitor init failed", "err", err)
		os.Exit(1)
	}
	defer stopJanitor()

	logger.Info("bot started", "username", tg.Username())

	updates := tg.Updates(telegram.UpdatesOptions{
		Timeout: 30 * time.Second,
	})
	defer tg.StopUpdates()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.MaxConcurrent + 1)

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				logger.Info("shutting down")
				return nil
			case update, ok := <-updates:
				if !ok {
					logger.Info("updates channel closed")
					return nil
				}

				g.Go(func() error {
					reqCtx, cancel := context.WithTimeout(gctx, cfg.HTTPTimeout)
					defer cancel()

					if err := handler.HandleUpdate(reqCtx, update); err != nil && !errors.Is(err, context.Canceled) {
						logger.Error("handle update failed", "err", err)
					}
					return nil
				})
			}
		}
	})

	_ = g.Wait()
}
