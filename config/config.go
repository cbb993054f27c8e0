package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/lusia-studio/cli/internal/logger"
)

// DefaultConfigPath is the config file location relative to the
// working directory
const DefaultConfigPath = ".lusia/config.yaml"

// Config represents the CLI configuration
type Config struct {
	Gateway    GatewayConfig    `yaml:"gateway" mapstructure:"gateway"`
	Chat       ChatConfig       `yaml:"chat" mapstructure:"chat"`
	Processing ProcessingConfig `yaml:"processing" mapstructure:"processing"`
	Realtime   RealtimeConfig   `yaml:"realtime" mapstructure:"realtime"`
	Storage    StorageConfig    `yaml:"storage" mapstructure:"storage"`
}

// GatewayConfig contains backend connection settings
type GatewayConfig struct {
	URL     string `yaml:"url" mapstructure:"url"`
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
	Timeout int    `yaml:"timeout" mapstructure:"timeout"`
}

// ChatConfig contains chat-related settings
type ChatConfig struct {
	DefaultConversation string `yaml:"default_conversation" mapstructure:"default_conversation"`
	StreamTimeout       int    `yaml:"stream_timeout" mapstructure:"stream_timeout"`
}

// ProcessingConfig contains document processing tracker settings
type ProcessingConfig struct {
	PollIntervalMs int    `yaml:"poll_interval_ms" mapstructure:"poll_interval_ms"`
	Table          string `yaml:"table" mapstructure:"table"`
	Filter         string `yaml:"filter" mapstructure:"filter"`
}

// RealtimeConfig contains push channel settings
type RealtimeConfig struct {
	Backend   string          `yaml:"backend" mapstructure:"backend"`
	Websocket WebsocketConfig `yaml:"websocket" mapstructure:"websocket"`
	Redis     RedisConfig     `yaml:"redis" mapstructure:"redis"`
}

// WebsocketConfig contains websocket push channel settings
type WebsocketConfig struct {
	URL string `yaml:"url" mapstructure:"url"`
}

// RedisConfig contains Redis push channel settings
type RedisConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	Database int    `yaml:"database" mapstructure:"database"`
	Username string `yaml:"username,omitempty" mapstructure:"username"`
	Password string `yaml:"password,omitempty" mapstructure:"password"`
}

// StorageConfig contains local transcript cache settings
type StorageConfig struct {
	Type     string         `yaml:"type" mapstructure:"type"`
	SQLite   SQLiteConfig   `yaml:"sqlite,omitempty" mapstructure:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres,omitempty" mapstructure:"postgres"`
}

// SQLiteConfig contains SQLite-specific settings
type SQLiteConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PostgresConfig contains Postgres-specific settings
type PostgresConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	Database string `yaml:"database" mapstructure:"database"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
	SSLMode  string `yaml:"ssl_mode" mapstructure:"ssl_mode"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			URL:     "http://localhost:8000/api/v1",
			APIKey:  "",
			Timeout: 30,
		},
		Chat: ChatConfig{
			DefaultConversation: "",
			StreamTimeout:       120,
		},
		Processing: ProcessingConfig{
			PollIntervalMs: 2500,
			Table:          "artifacts",
			Filter:         "",
		},
		Realtime: RealtimeConfig{
			Backend: "websocket",
			Websocket: WebsocketConfig{
				URL: "ws://localhost:8000/api/v1/realtime",
			},
			Redis: RedisConfig{
				Host: "localhost",
				Port: 6379,
			},
		},
		Storage: StorageConfig{
			Type: "memory",
			SQLite: SQLiteConfig{
				Path: ".lusia/transcripts.db",
			},
			Postgres: PostgresConfig{
				Host:    "localhost",
				Port:    5432,
				SSLMode: "disable",
			},
		},
	}
}

// Load reads configuration from the given path (DefaultConfigPath when
// empty), applying LUSIA_* environment overrides. A missing file is
// not an error: defaults plus environment overrides are returned.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = DefaultConfigPath
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("LUSIA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// register every key so environment lookups apply even for keys
	// absent from the file
	setDefaults(v)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		logger.Debug("Config file not found, using defaults and environment", "path", configPath)
	} else if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	logger.Debug("Successfully loaded config", "path", configPath, "gateway_url", config.Gateway.URL)
	return config, nil
}

func setDefaults(v *viper.Viper) {
	defaults := DefaultConfig()

	v.SetDefault("gateway.url", defaults.Gateway.URL)
	v.SetDefault("gateway.api_key", defaults.Gateway.APIKey)
	v.SetDefault("gateway.timeout", defaults.Gateway.Timeout)

	v.SetDefault("chat.default_conversation", defaults.Chat.DefaultConversation)
	v.SetDefault("chat.stream_timeout", defaults.Chat.StreamTimeout)

	v.SetDefault("processing.poll_interval_ms", defaults.Processing.PollIntervalMs)
	v.SetDefault("processing.table", defaults.Processing.Table)
	v.SetDefault("processing.filter", defaults.Processing.Filter)

	v.SetDefault("realtime.backend", defaults.Realtime.Backend)
	v.SetDefault("realtime.websocket.url", defaults.Realtime.Websocket.URL)
	v.SetDefault("realtime.redis.host", defaults.Realtime.Redis.Host)
	v.SetDefault("realtime.redis.port", defaults.Realtime.Redis.Port)
	v.SetDefault("realtime.redis.database", defaults.Realtime.Redis.Database)
	v.SetDefault("realtime.redis.username", defaults.Realtime.Redis.Username)
	v.SetDefault("realtime.redis.password", defaults.Realtime.Redis.Password)

	v.SetDefault("storage.type", defaults.Storage.Type)
	v.SetDefault("storage.sqlite.path", defaults.Storage.SQLite.Path)
	v.SetDefault("storage.postgres.host", defaults.Storage.Postgres.Host)
	v.SetDefault("storage.postgres.port", defaults.Storage.Postgres.Port)
	v.SetDefault("storage.postgres.database", defaults.Storage.Postgres.Database)
	v.SetDefault("storage.postgres.username", defaults.Storage.Postgres.Username)
	v.SetDefault("storage.postgres.password", defaults.Storage.Postgres.Password)
	v.SetDefault("storage.postgres.ssl_mode", defaults.Storage.Postgres.SSLMode)
}

// SaveConfig saves configuration to file
func (c *Config) SaveConfig(configPath string) error {
	if configPath == "" {
		configPath = DefaultConfigPath
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	defer func() {
		if err := encoder.Close(); err != nil {
			logger.Error("Failed to close YAML encoder", "error", err)
		}
	}()

	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	logger.Debug("Successfully saved config", "path", configPath)
	return nil
}
