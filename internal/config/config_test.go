package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsAndEnv(t *testing.T) {
	t.Setenv("GOVEE_API_KEY", " secret ")
	t.Setenv("GOVEE_POLL_INTERVAL", "30")
	t.Setenv("REDIS_ADDR", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIKey != "secret" || cfg.PollDuration() != 30*time.Second {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if cfg.TimeoutDuration() != 10*time.Second || cfg.Cooldown != time.Hour || cfg.FriendlyName != "GoveeLife" || cfg.Port != "8097" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.RedisAddr != "" {
		t.Fatalf("redis mirror must be off by default, got %q", cfg.RedisAddr)
	}
}

func TestLoadYAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "govee.yaml")
	body := "govee_api_key: from-file\ngovee_timeout: 5\ngovee_rate_limit_cooldown: 15m\ngovee_friendly_name: Home\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("GOVEE_ADAPTER_CONFIG", path)
	t.Setenv("GOVEE_FRIENDLY_NAME", "Override")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIKey != "from-file" || cfg.Timeout != 5 || cfg.Cooldown != 15*time.Minute {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.FriendlyName != "Override" {
		t.Fatalf("env must override the file, got %q", cfg.FriendlyName)
	}
}

func TestValidate(t *testing.T) {
	valid := Config{APIKey: "k", PollInterval: 60, Timeout: 10, Cooldown: time.Hour}
	cases := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"missing key", func(c *Config) { c.APIKey = "" }},
		{"zero interval", func(c *Config) { c.PollInterval = 0 }},
		{"negative timeout", func(c *Config) { c.Timeout = -1 }},
		{"zero cooldown", func(c *Config) { c.Cooldown = 0 }},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := valid
			tc.mutate(&c)
			if err := c.Validate(); !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected invalid, got %v", err)
			}
		})
	}
}
