package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/gookit/validate"
	"github.com/spf13/viper"
)

// Config holds the application settings
type Config struct {
	SourcesFile string         `mapstructure:"sources_file" validate:"required"`
	Storage     StorageConfig  `mapstructure:"storage"`
	Monitor     MonitorConfig  `mapstructure:"monitor"`
	Telegram    TelegramConfig `mapstructure:"telegram"`
	Metrics     MetricsConfig  `mapstructure:"metrics"`
	Logging     LoggingConfig  `mapstructure:"logging"`
}

// StorageConfig selects where known deals are kept
type StorageConfig struct {
	Backend string `mapstructure:"backend" validate:"required|in:csv,sqlite"`
	Path    string `mapstructure:"path" validate:"required"`
}

// MonitorConfig controls check timing
type MonitorConfig struct {
	CheckInterval     time.Duration `mapstructure:"check_interval"`
	SourceDelay       time.Duration `mapstructure:"source_delay"`
	FetchTimeout      time.Duration `mapstructure:"fetch_timeout"`
	BlackoutStartHour int           `mapstructure:"blackout_start_hour" validate:"min:0|max:23"`
	BlackoutEndHour   int           `mapstructure:"blackout_end_hour" validate:"min:0|max:23"`
	UserAgent         string        `mapstructure:"user_agent"`
}

// TelegramConfig holds the delivery settings. ChatID is the only chat that
// receives notifications and may run commands.
type TelegramConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	BotToken   string        `mapstructure:"bot_token"`
	ChatID     int64         `mapstructure:"chat_id"`
	MaxRetries int           `mapstructure:"max_retries" validate:"min:1"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	// minimum gap between messages to the chat
	SendInterval time.Duration `mapstructure:"send_interval"`
}

type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"in:debug,info,warn,error"`
	Format string `mapstructure:"format" validate:"in:json,text"`
}

// Load reads the YAML file at path (optional when path is empty) and
// applies environment overrides. DEALWATCH_<SECTION>_<KEY> overrides any key;
// TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID are also honored.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("DEALWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("telegram.bot_token", "DEALWATCH_TELEGRAM_BOT_TOKEN", "TELEGRAM_BOT_TOKEN")
	_ = v.BindEnv("telegram.chat_id", "DEALWATCH_TELEGRAM_CHAT_ID", "TELEGRAM_CHAT_ID")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("sources_file", "configs/craigslist_deals_to_check.csv")

	v.SetDefault("storage.backend", "csv")
	v.SetDefault("storage.path", "configs/known_deals.csv")

	v.SetDefault("monitor.check_interval", "1h")
	v.SetDefault("monitor.source_delay", "60s")
	v.SetDefault("monitor.fetch_timeout", "30s")
	// runs only from 13:00 to 01:59
	v.SetDefault("monitor.blackout_start_hour", 2)
	v.SetDefault("monitor.blackout_end_hour", 13)
	v.SetDefault("monitor.user_agent", "")

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", 0)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay", "2s")
	v.SetDefault("telegram.send_interval", "1s")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen_addr", ":9090")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	v := validate.Struct(c)
	if !v.Validate() {
		return fmt.Errorf("invalid configuration: %w", v.Errors)
	}

	if c.Monitor.CheckInterval < time.Minute {
		return fmt.Errorf("monitor.check_interval must be at least 1 minute")
	}
	if c.Monitor.SourceDelay < 0 {
		return fmt.Errorf("monitor.source_delay must not be negative")
	}
	if c.Monitor.FetchTimeout <= 0 {
		return fmt.Errorf("monitor.fetch_timeout must be positive")
	}

	if c.Telegram.SendInterval < 0 {
		return fmt.Errorf("telegram.send_interval must not be negative")
	}

	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == 0 {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	if c.Metrics.Enabled && c.Metrics.ListenAddr == "" {
		return fmt.Errorf("metrics.listen_addr is required when metrics are enabled")
	}

	return nil
}
