package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"ai-portrait-studio/internal/config"
	"ai-portrait-studio/internal/gemini"
	"ai-portrait-studio/internal/httpclient"
	"ai-portrait-studio/internal/logging"
	"ai-portrait-studio/internal/session"
	"ai-portrait-studio/internal/studio"
	"ai-portrait-studio/internal/upload"
	"ai-portrait-studio/internal/web"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.New(os.Stdout, cfg.LogLevel)

	httpClient := httpclient.New(httpclient.Options{
		PreferIPv4: cfg.PreferIPv4,
		Timeout:    cfg.HTTPTimeout,
	})

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

	// Generations outlive the request that started them but not the process.
	genCtx, cancelGen := context.WithCancel(context.Background())
	defer cancelGen()

	sessions := session.NewStore(session.Options{
		New: func(key string) *studio.Studio {
			return studio.New(studio.Options{
				Generator:      gem,
				Logger:         logger.With("session", key),
				BaseContext:    genCtx,
				RequestTimeout: cfg.RequestTimeout,
			})
		},
	})

	stopJanitor, err := sessions.StartJanitor(session.JanitorOptions{
		Schedule: cfg.SessionSweepJob,
		Idle:     cfg.SessionIdle,
		Logger:   logger,
	})
	if err != nil {
		logger.Error("janitor init failed", "err", err)
		os.Exit(1)
	}
	defer stopJanitor()

	srv := &http.Server{
		Addr: cfg.WebAddr,
		Handler: web.New(web.Options{
			Sessions: sessions,
			Acquirer: upload.New(upload.Options{Logger: logger}),
			Logger:   logger,
		}).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      time.Minute,
		IdleTimeout:       90 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("web started", "addr", cfg.WebAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", "err", err)
		os.Exit(1)
	}
}
