// Package config loads service configuration from the environment, an
// optional .env file and bound command-line flags.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"kline-service/internal/model"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	// Upstream
	Symbol          string
	Resolutions     []model.Resolution
	FetchLimit      int
	FetchInterval   time.Duration
	FetchRatePerSec float64
	HTTPTimeout     time.Duration
	BinanceBaseURL  string

	// Storage
	StoreDriver   string // sqlite | memory
	SQLitePath    string
	RetentionDays int

	// Redis publisher, disabled when RedisAddr is empty
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Servers
	HTTPAddr    string
	MetricsAddr string
	LogLevel    string

	// Alerting
	AlertWebhookURL    string
	AlertAfterFailures int
	TelegramBotToken   string
	TelegramChatID     string
}

// Retention returns the retention horizon.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("SYMBOL", "BTCUSDT")
	v.SetDefault("RESOLUTIONS", "1m,5m,1h")
	v.SetDefault("FETCH_LIMIT", 1000)
	v.SetDefault("FETCH_INTERVAL", "60s")
	v.SetDefault("FETCH_RATE_PER_SEC", 5.0)
	v.SetDefault("HTTP_TIMEOUT", "10s")
	v.SetDefault("BINANCE_BASE_URL", "https://api.binance.com")
	v.SetDefault("STORE_DRIVER", "sqlite")
	v.SetDefault("SQLITE_PATH", "data/crypto_data.db")
	v.SetDefault("RETENTION_DAYS", 30)
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("HTTP_ADDR", ":5000")
	v.SetDefault("METRICS_ADDR", ":9090")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("ALERT_WEBHOOK_URL", "")
	v.SetDefault("ALERT_AFTER_FAILURES", 5)
	v.SetDefault("TELEGRAM_BOT_TOKEN", "")
	v.SetDefault("TELEGRAM_CHAT_ID", "")
}

// Load reads an optional .env file, then resolves every key from the
// global viper instance (flags bound by the CLI win over environment).
func Load() (*Config, error) {
	if err := godotenv.Load(); err == nil {
		slog.Debug("loaded .env", "component", "config")
	}
	v := viper.GetViper()
	SetDefaults(v)
	v.AutomaticEnv()
	return FromViper(v)
}

// FromViper builds and validates a Config from v.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Symbol:             strings.ToUpper(strings.TrimSpace(v.GetString("SYMBOL"))),
		FetchLimit:         v.GetInt("FETCH_LIMIT"),
		FetchInterval:      v.GetDuration("FETCH_INTERVAL"),
		FetchRatePerSec:    v.GetFloat64("FETCH_RATE_PER_SEC"),
		HTTPTimeout:        v.GetDuration("HTTP_TIMEOUT"),
		BinanceBaseURL:     v.GetString("BINANCE_BASE_URL"),
		StoreDriver:        strings.ToLower(v.GetString("STORE_DRIVER")),
		SQLitePath:         v.GetString("SQLITE_PATH"),
		RetentionDays:      v.GetInt("RETENTION_DAYS"),
		RedisAddr:          v.GetString("REDIS_ADDR"),
		RedisPassword:      v.GetString("REDIS_PASSWORD"),
		RedisDB:            v.GetInt("REDIS_DB"),
		HTTPAddr:           v.GetString("HTTP_ADDR"),
		MetricsAddr:        v.GetString("METRICS_ADDR"),
		LogLevel:           v.GetString("LOG_LEVEL"),
		AlertWebhookURL:    v.GetString("ALERT_WEBHOOK_URL"),
		AlertAfterFailures: v.GetInt("ALERT_AFTER_FAILURES"),
		TelegramBotToken:   v.GetString("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:     v.GetString("TELEGRAM_CHAT_ID"),
	}

	res, err := ParseResolutions(v.GetString("RESOLUTIONS"))
	if err != nil {
		return nil, err
	}
	cfg.Resolutions = res

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.Symbol == "":
		return fmt.Errorf("config: SYMBOL is empty")
	case c.FetchLimit <= 0 || c.FetchLimit > 1000:
		return fmt.Errorf("config: FETCH_LIMIT must be in 1..1000, got %d", c.FetchLimit)
	case c.FetchInterval <= 0:
		return fmt.Errorf("config: FETCH_INTERVAL must be positive")
	case c.RetentionDays <= 0:
		return fmt.Errorf("config: RETENTION_DAYS must be positive, got %d", c.RetentionDays)
	case c.StoreDriver != "sqlite" && c.StoreDriver != "memory":
		return fmt.Errorf("config: unknown STORE_DRIVER %q", c.StoreDriver)
	case c.StoreDriver == "sqlite" && c.SQLitePath == "":
		return fmt.Errorf("config: SQLITE_PATH is empty")
	}
	return nil
}

// ParseResolutions parses a comma-separated resolution list, dropping
// duplicates and keeping order.
func ParseResolutions(s string) ([]model.Resolution, error) {
	var out []model.Resolution
	seen := make(map[model.Resolution]bool)
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		res, err := model.ParseResolution(p)
		if err != nil {
			return nil, fmt.Errorf("config: RESOLUTIONS: %w", err)
		}
		if !seen[res] {
			seen[res] = true
			out = append(out, res)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("config: RESOLUTIONS is empty")
	}
	return out, nil
}
