package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	APIKey        string        `mapstructure:"govee_api_key"`
	FriendlyName  string        `mapstructure:"govee_friendly_name"`
	PollInterval  int           `mapstructure:"govee_poll_interval"` // seconds
	Timeout       int           `mapstructure:"govee_timeout"`       // seconds
	APIURL        string        `mapstructure:"govee_api_url"`
	Cooldown      time.Duration `mapstructure:"govee_rate_limit_cooldown"`
	RoutesFile    string        `mapstructure:"govee_routes_file"`
	Port          string        `mapstructure:"govee_adapter_port"`
	AdapterID     string        `mapstructure:"govee_adapter_id"`
	Version       string        `mapstructure:"govee_adapter_version"`
	MQTTBrokerURL string        `mapstructure:"mqtt_broker_url"`
	LogLevel      string        `mapstructure:"log_level"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	JWTPublicKey  string        `mapstructure:"jwt_public_key_path"`

	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"`
	PostgresDB       string `mapstructure:"postgres_db"`
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     string `mapstructure:"postgres_port"`
	PostgresSSLMode  string `mapstructure:"postgres_sslmode"`
}

var defaults = map[string]any{
	"govee_api_key":             "",
	"govee_friendly_name":       "GoveeLife",
	"govee_poll_interval":       60,
	"govee_timeout":             10,
	"govee_api_url":             "https://openapi.api.govee.com/router/api/v1",
	"govee_rate_limit_cooldown": "1h",
	"govee_routes_file":         "",
	"govee_adapter_port":        "8097",
	"govee_adapter_id":          "govee-adapter",
	"govee_adapter_version":     "dev",
	"mqtt_broker_url":           "mqtt://mosquitto:1883",
	"log_level":                 "info",
	"redis_addr":                "",
	"redis_password":            "",
	"jwt_public_key_path":       "",
	"postgres_user":             "postgres",
	"postgres_password":         "",
	"postgres_db":               "homenavi",
	"postgres_host":             "postgres",
	"postgres_port":             "5432",
	"postgres_sslmode":          "disable",
}

// Load reads the optional YAML file named by GOVEE_ADAPTER_CONFIG, then applies environment overrides.
func Load() (*Config, error) {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.BindEnv("config_file", "GOVEE_ADAPTER_CONFIG"); err != nil {
		return nil, err
	}
	if path := v.GetString("config_file"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	slog.Info("govee-adapter config loaded", "port", cfg.Port, "mqtt", cfg.MQTTBrokerURL, "adapter_id", cfg.AdapterID, "poll_interval", cfg.PollInterval)
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case c.APIKey == "":
		return fmt.Errorf("%w: GOVEE_API_KEY is required", ErrInvalid)
	case c.PollInterval <= 0:
		return fmt.Errorf("%w: poll interval must be positive, got %d", ErrInvalid, c.PollInterval)
	case c.Timeout <= 0:
		return fmt.Errorf("%w: timeout must be positive, got %d", ErrInvalid, c.Timeout)
	case c.Cooldown <= 0:
		return fmt.Errorf("%w: rate limit cooldown must be positive, got %s", ErrInvalid, c.Cooldown)
	}
	return nil
}

func (c *Config) PollDuration() time.Duration { return time.Duration(c.PollInterval) * time.Second }

func (c *Config) TimeoutDuration() time.Duration { return time.Duration(c.Timeout) * time.Second }
