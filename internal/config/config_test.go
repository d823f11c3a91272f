package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("WEBHOOK_TOKEN", "")
	t.Setenv("REGIME_POLL_SECS", "")
	t.Setenv("DISPATCH_WORKERS", "")

	cfg := Load()
	if cfg.RedisURL != "localhost:6379" {
		t.Fatalf("expected default redis url, got %s", cfg.RedisURL)
	}
	if cfg.RegimePollSecs != 900 {
		t.Fatalf("expected default regime poll secs 900, got %d", cfg.RegimePollSecs)
	}
	if cfg.DispatchWorkers != 10 {
		t.Fatalf("expected default dispatch workers 10, got %d", cfg.DispatchWorkers)
	}
	if cfg.ExchangeRecvWindow != 5000 {
		t.Fatalf("expected default recv window 5000, got %d", cfg.ExchangeRecvWindow)
	}
	if cfg.FallbackExchange != "bybit" {
		t.Fatalf("expected default fallback exchange bybit, got %s", cfg.FallbackExchange)
	}
	if cfg.RiskUnit != 0.001 {
		t.Fatalf("expected default risk unit 0.001, got %f", cfg.RiskUnit)
	}
}

func TestLoadWithEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("REDIS_URL", "redis:6379")
	t.Setenv("WEBHOOK_TOKEN", "hook-secret")
	t.Setenv("REGIME_POLL_SECS", "300")
	t.Setenv("DISPATCH_WORKERS", "20")
	t.Setenv("EXCHANGE_RETRY_ATTEMPTS", "5")
	t.Setenv("TELEGRAM_CHAT_ID", "-100123")

	cfg := Load()
	if cfg.DatabaseURL != "postgres://example" || cfg.RedisURL != "redis:6379" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.WebhookToken != "hook-secret" {
		t.Fatalf("expected webhook token, got %q", cfg.WebhookToken)
	}
	if cfg.RegimePollSecs != 300 || cfg.DispatchWorkers != 20 || cfg.RetryMaxAttempts != 5 {
		t.Fatalf("unexpected tuning config: %+v", cfg)
	}
	if cfg.TelegramChatID != -100123 {
		t.Fatalf("expected chat id -100123, got %d", cfg.TelegramChatID)
	}

	t.Setenv("REGIME_POLL_SECS", "bad")
	cfg = Load()
	if cfg.RegimePollSecs != 900 {
		t.Fatalf("invalid poll secs should fall back to default, got %d", cfg.RegimePollSecs)
	}
}
