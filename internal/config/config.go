package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type TwilioConfig struct {
	AccountSID string        `mapstructure:"account_sid"`
	AuthToken  string        `mapstructure:"auth_token"`
	From       string        `mapstructure:"from"`
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type BreakerConfig struct {
	MaxFailures uint32        `mapstructure:"max_failures"`
	OpenTimeout time.Duration `mapstructure:"open_timeout"`
	Interval    time.Duration `mapstructure:"interval"`
}

type NotificationConfig struct {
	// Provider is "twilio" or "log".
	Provider string        `mapstructure:"provider"`
	Timezone string        `mapstructure:"timezone"`
	Twilio   TwilioConfig  `mapstructure:"twilio"`
	Breaker  BreakerConfig `mapstructure:"breaker"`
}

type HealthCardConfig struct {
	HistoryLimit int `mapstructure:"history_limit"`
	// RefreshSchedule is a cron expression; empty disables the sweep.
	RefreshSchedule string `mapstructure:"refresh_schedule"`
}

type DatabaseConfig struct {
	ConnectRetries uint64 `mapstructure:"connect_retries"`
}

type Config struct {
	DatabaseURL   string             `mapstructure:"database_url"`
	ServerPort    string             `mapstructure:"server_port"`
	JWTSecret     string             `mapstructure:"jwt_secret"`
	PublicBaseURL string             `mapstructure:"public_base_url"`
	CORSOrigins   []string           `mapstructure:"cors_origins"`
	Database      DatabaseConfig     `mapstructure:"database"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	HealthCards   HealthCardConfig   `mapstructure:"health_cards"`
}

// Load reads config.yaml from the given directories (defaults to . and ./config)
// and applies WATERWATCH_* environment overrides.
func Load(paths ...string) (*Config, error) {
	v := viper.New()

	if len(paths) == 0 {
		paths = []string{".", "./config"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("WATERWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range []string{
		"database_url", "server_port", "jwt_secret", "public_base_url",
		"notifications.provider", "notifications.timezone",
		"notifications.twilio.account_sid", "notifications.twilio.auth_token", "notifications.twilio.from",
		"health_cards.refresh_schedule",
	} {
		_ = v.BindEnv(key)
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if config.JWTSecret == "" {
		return nil, errors.New("jwt_secret must be set")
	}
	config.PublicBaseURL = strings.TrimRight(config.PublicBaseURL, "/")
	if config.Notifications.Provider != "twilio" && config.Notifications.Provider != "log" {
		return nil, errors.New("notifications.provider must be twilio or log")
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server_port", "8080")
	v.SetDefault("public_base_url", "http://localhost:3000")
	v.SetDefault("cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("database.connect_retries", 5)
	v.SetDefault("notifications.provider", "log")
	v.SetDefault("notifications.timezone", "Asia/Kolkata")
	v.SetDefault("notifications.twilio.base_url", "https://api.twilio.com")
	v.SetDefault("notifications.twilio.timeout", 10*time.Second)
	v.SetDefault("notifications.breaker.max_failures", 5)
	v.SetDefault("notifications.breaker.open_timeout", 30*time.Second)
	v.SetDefault("notifications.breaker.interval", time.Minute)
	v.SetDefault("health_cards.history_limit", 20)
	v.SetDefault("health_cards.refresh_schedule", "")
}
