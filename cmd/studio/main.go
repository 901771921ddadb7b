package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"ai-portrait-studio/internal/cli"
	"ai-portrait-studio/internal/config"
	"ai-portrait-studio/internal/gemini"
	"ai-portrait-studio/internal/httpclient"
	"ai-portrait-studio/internal/logging"
	"ai-portrait-studio/internal/studio"
)

func main() {
	_ = godotenv.Load()

	logger := logging.New(os.Stderr, os.Getenv("LOG_LEVEL"))

	newGenerator := func() (studio.Generator, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		return gemini.New(gemini.Options{
			APIKey:      cfg.GeminiAPIKey,
			BaseURL:     cfg.GeminiBaseURL,
			APIVersion:  cfg.GeminiAPIVersion,
			Model:       cfg.GeminiModel,
			AspectRatio: cfg.GeminiAspectRatio,
			HTTPClient: httpclient.New(httpclient.Options{
				PreferIPv4: cfg.PreferIPv4,
				Timeout:    cfg.HTTPTimeout,
			}),
			Logger: logger,
		}), nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cobra.CheckErr(cli.NewCLI(cli.Options{
		NewGenerator: newGenerator,
		Logger:       logger,
	}).ExecuteContext(ctx))
}
