package config

import (
	"testing"
	"time"

	"kline-service/internal/model"

	"github.com/spf13/viper"
)

func newViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.AutomaticEnv()
	return v
}

func TestFromViper_Defaults(t *testing.T) {
	cfg, err := FromViper(newViper())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Symbol != "BTCUSDT" {
		t.Errorf("Symbol = %q", cfg.Symbol)
	}
	if len(cfg.Resolutions) != 3 || cfg.Resolutions[2] != model.Res1h {
		t.Errorf("Resolutions = %v", cfg.Resolutions)
	}
	if cfg.FetchInterval != time.Minute || cfg.HTTPTimeout != 10*time.Second {
		t.Errorf("durations = %v, %v", cfg.FetchInterval, cfg.HTTPTimeout)
	}
	if cfg.Retention() != 30*24*time.Hour {
		t.Errorf("Retention = %v", cfg.Retention())
	}
	if cfg.StoreDriver != "sqlite" || cfg.RedisAddr != "" {
		t.Errorf("store = %q redis = %q", cfg.StoreDriver, cfg.RedisAddr)
	}
}

func TestFromViper_Env(t *testing.T) {
	t.Setenv("SYMBOL", "ethusdt")
	t.Setenv("RESOLUTIONS", "1h, 1m,1h")
	t.Setenv("FETCH_INTERVAL", "15s")
	t.Setenv("STORE_DRIVER", "MEMORY")
	t.Setenv("ALERT_AFTER_FAILURES", "3")

	cfg, err := FromViper(newViper())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Symbol != "ETHUSDT" {
		t.Errorf("Symbol = %q", cfg.Symbol)
	}
	if len(cfg.Resolutions) != 2 || cfg.Resolutions[0] != model.Res1h || cfg.Resolutions[1] != model.Res1m {
		t.Errorf("Resolutions = %v", cfg.Resolutions)
	}
	if cfg.FetchInterval != 15*time.Second {
		t.Errorf("FetchInterval = %v", cfg.FetchInterval)
	}
	if cfg.StoreDriver != "memory" || cfg.AlertAfterFailures != 3 {
		t.Errorf("driver = %q alertAfter = %d", cfg.StoreDriver, cfg.AlertAfterFailures)
	}
}

func TestFromViper_Invalid(t *testing.T) {
	cases := map[string]string{
		"RESOLUTIONS":    "1m,2m",
		"FETCH_LIMIT":    "5000",
		"STORE_DRIVER":   "postgres",
		"RETENTION_DAYS": "0",
		"FETCH_INTERVAL": "0s",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			if _, err := FromViper(newViper()); err == nil {
				t.Errorf("%s=%s: expected error", key, val)
			}
		})
	}
}

func TestParseResolutions(t *testing.T) {
	if _, err := ParseResolutions(" , "); err == nil {
		t.Error("expected error for empty list")
	}
	got, err := ParseResolutions("5m")
	if err != nil || len(got) != 1 || got[0] != model.Res5m {
		t.Errorf("got %v, %v", got, err)
	}
}
