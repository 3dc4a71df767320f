// Package config provides configuration management for the application.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the application configuration.
type Config struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
	GitHub   GitHubConfig   `mapstructure:"github"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Database DatabaseConfig `mapstructure:"database"`
	AI       AIConfig       `mapstructure:"ai"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
}

// TelegramConfig holds Telegram bot configuration.
type TelegramConfig struct {
	Token     string  `mapstructure:"token"`
	Debug     bool    `mapstructure:"debug"`
	RateLimit float64 `mapstructure:"rate_limit"` // messages per second
}

// GitHubConfig holds GitHub API configuration.
type GitHubConfig struct {
	Token            string        `mapstructure:"token"`
	PerPage          int           `mapstructure:"per_page"`
	MaxRepos         int           `mapstructure:"max_repos"`
	ActiveWithinDays int           `mapstructure:"active_within_days"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

// ActiveWithin returns the repository activity window.
func (g GitHubConfig) ActiveWithin() time.Duration {
	return time.Duration(g.ActiveWithinDays) * 24 * time.Hour
}

// MonitorConfig holds commit monitor configuration.
type MonitorConfig struct {
	IntervalMinutes  int `mapstructure:"interval_minutes"`
	MaxNotifications int `mapstructure:"max_notifications"` // per subscription and cycle, 0 = unlimited
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// AIConfig holds the optional commit analysis backend.
type AIConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// Load reads configuration from a .env file, the config file and environment
// variables, in increasing priority.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()

	// Set defaults
	v.SetDefault("telegram.debug", false)
	v.SetDefault("telegram.rate_limit", 25)
	v.SetDefault("github.per_page", 10)
	v.SetDefault("github.max_repos", 5)
	v.SetDefault("github.active_within_days", 365)
	v.SetDefault("github.timeout", 30*time.Second)
	v.SetDefault("monitor.interval_minutes", 5)
	v.SetDefault("monitor.max_notifications", 0)
	v.SetDefault("database.path", "./data/subscriptions.db")
	v.SetDefault("ai.enabled", false)
	v.SetDefault("ai.base_url", "http://localhost:11434")
	v.SetDefault("ai.model", "qwen3")
	v.SetDefault("ai.token", "")
	v.SetDefault("ai.timeout", 30*time.Second)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Read environment variables
	v.SetEnvPrefix("COMMITBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Plain variable names used by existing deployments.
	if err := v.BindEnv("telegram.token", "COMMITBOT_TELEGRAM_TOKEN", "TELEGRAM_BOT_TOKEN"); err != nil {
		return nil, err
	}
	if err := v.BindEnv("github.token", "COMMITBOT_GITHUB_TOKEN", "GITHUB_PERSONAL_ACCESS_TOKEN"); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks if all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}
	if c.Monitor.IntervalMinutes <= 0 {
		return fmt.Errorf("monitor.interval_minutes must be positive, got %d", c.Monitor.IntervalMinutes)
	}
	if c.Monitor.MaxNotifications < 0 {
		return fmt.Errorf("monitor.max_notifications must not be negative")
	}
	if c.AI.Enabled && (c.AI.BaseURL == "" || c.AI.Model == "") {
		return fmt.Errorf("ai.base_url and ai.model are required when ai is enabled")
	}
	return nil
}

// ServerAddress returns the full server address.
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
