package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Port string `env:"PORT" envDefault:"8080"`

	// Telegram
	BotToken      string        `env:"TELEGRAM_BOT_TOKEN"`
	ChatID        string        `env:"TELEGRAM_CHAT_ID"`
	WebhookSecret string        `env:"TELEGRAM_WEBHOOK_SECRET"`
	APIServer     string        `env:"TELEGRAM_API_SERVER" envDefault:"https://api.telegram.org"`
	SendTimeout   time.Duration `env:"TELEGRAM_TIMEOUT" envDefault:"10s"`

	// Message log
	DatabaseDriver string `env:"DATABASE_DRIVER" envDefault:"postgres"`
	DatabaseURL    string `env:"DATABASE_URL"`
	AutoMigrate    bool   `env:"DATABASE_AUTO_MIGRATE" envDefault:"true"`

	// Routing
	LegacyFallback bool `env:"ROUTING_LEGACY_FALLBACK" envDefault:"true"`

	// Redis: inbound dedup + outbound rate limit
	RedisAddr      string        `env:"REDIS_ADDR"`
	DedupTTL       time.Duration `env:"DEDUP_TTL" envDefault:"24h"`
	OutboundLimit  int           `env:"OUTBOUND_RATE_LIMIT" envDefault:"5"`
	OutboundWindow time.Duration `env:"OUTBOUND_RATE_WINDOW" envDefault:"10s"`

	// NATS change feed
	NATSURL string `env:"NATS_URL"`

	AllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
}

// Load reads an optional .env file, then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return Parse()
}

// Parse reads the process environment only.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg.BotToken = strings.TrimSpace(cfg.BotToken)
	cfg.ChatID = strings.TrimSpace(cfg.ChatID)
	cfg.DatabaseDriver = strings.ToLower(strings.TrimSpace(cfg.DatabaseDriver))

	switch cfg.DatabaseDriver {
	case "postgres", "sqlite3":
	default:
		return nil, fmt.Errorf("config: DATABASE_DRIVER must be postgres or sqlite3, got %q", cfg.DatabaseDriver)
	}
	if cfg.OutboundLimit <= 0 {
		return nil, fmt.Errorf("config: OUTBOUND_RATE_LIMIT must be positive, got %d", cfg.OutboundLimit)
	}

	return cfg, nil
}

// Missing names required settings that are empty. The relay still starts:
// a missing bot token or chat id disables the outbound flow, a missing
// database disables logging.
func (c *Config) Missing() []string {
	var missing []string
	if c.BotToken == "" {
		missing = append(missing, "TELEGRAM_BOT_TOKEN")
	}
	if c.ChatID == "" {
		missing = append(missing, "TELEGRAM_CHAT_ID")
	}
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	return missing
}

// OutboundReady reports whether the website -> Telegram flow can run.
func (c *Config) OutboundReady() bool {
	return c.BotToken != "" && c.ChatID != ""
}
