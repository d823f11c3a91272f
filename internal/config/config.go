package config

import (
	"log"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	DatabaseURL      string
	RedisURL         string
	WebhookToken     string
	AdminAPIKey      string
	TelegramBotToken string
	TelegramChatID   int64

	CredentialKeyHex string

	FallbackExchange  string
	FallbackAPIKey    string
	FallbackAPISecret string
	FallbackTestnet   bool

	RegimePollSecs      int
	RegimeStaleSecs     int
	DispatchWorkers     int
	ExchangeTimeoutSecs int
	ExchangeRecvWindow  int
	RetryMaxAttempts    int
	RiskUnit            float64
}

func Load() *Config {
	cfg := &Config{
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		RedisURL:          os.Getenv("REDIS_URL"),
		WebhookToken:      strings.TrimSpace(os.Getenv("WEBHOOK_TOKEN")),
		AdminAPIKey:       strings.TrimSpace(os.Getenv("ADMIN_API_KEY")),
		TelegramBotToken:  os.Getenv("TELEGRAM_BOT_TOKEN"),
		CredentialKeyHex:  strings.TrimSpace(os.Getenv("CREDENTIAL_KEY")),
		FallbackAPIKey:    strings.TrimSpace(os.Getenv("FALLBACK_API_KEY")),
		FallbackAPISecret: strings.TrimSpace(os.Getenv("FALLBACK_API_SECRET")),
	}

	if cfg.DatabaseURL == "" {
		log.Println("Warning: DATABASE_URL not set")
	}
	if cfg.RedisURL == "" {
		log.Println("Warning: REDIS_URL not set, defaulting to localhost:6379")
		cfg.RedisURL = "localhost:6379"
	}
	if cfg.WebhookToken == "" {
		log.Println("Warning: WEBHOOK_TOKEN not set, webhook intake will reject all deliveries")
	}
	if cfg.CredentialKeyHex == "" {
		log.Println("Warning: CREDENTIAL_KEY not set, stored credentials cannot be decrypted")
	}

	cfg.FallbackExchange = strings.ToLower(strings.TrimSpace(os.Getenv("FALLBACK_EXCHANGE")))
	if cfg.FallbackExchange == "" {
		cfg.FallbackExchange = "bybit"
	}
	cfg.FallbackTestnet = strings.EqualFold(strings.TrimSpace(os.Getenv("FALLBACK_TESTNET")), "true")

	if v := strings.TrimSpace(os.Getenv("TELEGRAM_CHAT_ID")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.TelegramChatID = n
		}
	}

	cfg.RegimePollSecs = 900
	if v := os.Getenv("REGIME_POLL_SECS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RegimePollSecs = n
		}
	}

	cfg.RegimeStaleSecs = 3600
	if v := os.Getenv("REGIME_STALE_SECS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RegimeStaleSecs = n
		}
	}

	cfg.DispatchWorkers = 10
	if v := os.Getenv("DISPATCH_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 50 {
			cfg.DispatchWorkers = n
		}
	}

	cfg.ExchangeTimeoutSecs = 12
	if v := os.Getenv("EXCHANGE_TIMEOUT_SECS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ExchangeTimeoutSecs = n
		}
	}

	cfg.ExchangeRecvWindow = 5000
	if v := os.Getenv("EXCHANGE_RECV_WINDOW_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ExchangeRecvWindow = n
		}
	}

	cfg.RetryMaxAttempts = 3
	if v := os.Getenv("EXCHANGE_RETRY_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 10 {
			cfg.RetryMaxAttempts = n
		}
	}

	cfg.RiskUnit = 0.001
	if v := strings.TrimSpace(os.Getenv("RISK_UNIT")); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil && n > 0 && n < 0.1 {
			cfg.RiskUnit = n
		}
	}

	return cfg
}
