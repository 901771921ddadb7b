package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	GeminiAPIKey  string
	TelegramToken string

	LogLevel string
	Debug    bool

	PreferIPv4 bool

	WebAddr         string
	ShutdownTimeout time.Duration

	RequestTimeout time.Duration
	HTTPTimeout    time.Duration

	GeminiBaseURL     string
	GeminiAPIVersion  string
	GeminiModel       string
	GeminiAspectRatio string

	MaxConcurrent   int
	BoardDebounce   time.Duration
	SessionIdle     time.Duration
	SessionSweepJob string
}

// Load reads the environment. A missing GEMINI_API_KEY is an error so every
// entry point fails at startup rather than on the first generation.
func Load() (Config, error) {
	cfg := Config{
		LogLevel:          strings.ToLower(strings.TrimSpace(getEnv("LOG_LEVEL", "info"))),
		Debug:             getEnvBool("DEBUG", false),
		PreferIPv4:        getEnvBool("PREFER_IPV4", true),
		WebAddr:           strings.TrimSpace(getEnv("WEB_ADDR", ":8080")),
		ShutdownTimeout:   time.Duration(getEnvInt("SHUTDOWN_TIMEOUT_SECONDS", 30)) * time.Second,
		RequestTimeout:    time.Duration(getEnvInt("REQUEST_TIMEOUT_SECONDS", 240)) * time.Second,
		HTTPTimeout:       time.Duration(getEnvInt("HTTP_TIMEOUT_SECONDS", 180)) * time.Second,
		GeminiBaseURL:     strings.TrimSpace(getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com")),
		GeminiAPIVersion:  strings.TrimSpace(getEnv("GEMINI_API_VERSION", "v1beta")),
		GeminiModel:       strings.TrimSpace(getEnv("GEMINI_MODEL", "gemini-2.5-flash-image")),
		GeminiAspectRatio: strings.TrimSpace(getEnv("GEMINI_ASPECT_RATIO", "3:4")),
		MaxConcurrent:     getEnvInt("MAX_CONCURRENT", 4),
		BoardDebounce:     time.Duration(getEnvInt("BOARD_DEBOUNCE_MS", 1200)) * time.Millisecond,
		SessionIdle:       time.Duration(getEnvInt("SESSION_IDLE_MINUTES", 60)) * time.Minute,
		SessionSweepJob:   strings.TrimSpace(getEnv("SESSION_SWEEP_SCHEDULE", "@every 5m")),
	}

	cfg.GeminiAPIKey = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	cfg.TelegramToken = strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN"))

	if cfg.GeminiAPIKey == "" {
		return Config{}, errors.New("GEMINI_API_KEY is required")
	}

	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 240 * time.Second
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 180 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.BoardDebounce <= 0 {
		cfg.BoardDebounce = 1200 * time.Millisecond
	}
	if cfg.SessionIdle <= 0 {
		cfg.SessionIdle = 60 * time.Minute
	}

	return cfg, nil
}

func (c Config) RequireTelegram() error {
	if c.TelegramToken == "" {
		return errors.New("TELEGRAM_BOT_TOKEN is required")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
