// Package config loads and validates the application configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"autotrader/internal/engine"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Server    ServerConfig    `mapstructure:"server"`
	Market    MarketConfig    `mapstructure:"market"`
	Broker    BrokerConfig    `mapstructure:"broker"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Store     StoreConfig     `mapstructure:"store"`
	Plugins   PluginsConfig   `mapstructure:"plugins"`
	Bootstrap []engine.Config `mapstructure:"strategies"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type MarketConfig struct {
	RESTBaseURL  string        `mapstructure:"rest_base_url"`
	HTTPTimeout  time.Duration `mapstructure:"http_timeout"`
	ProxyEnabled bool          `mapstructure:"proxy_enabled"`
	RESTProxyURL string        `mapstructure:"rest_proxy_url"`
}

type BrokerConfig struct {
	// Mode selects the order backend: "paper" or "binance".
	Mode        string  `mapstructure:"mode"`
	APIKey      string  `mapstructure:"api_key"`
	APISecret   string  `mapstructure:"api_secret"`
	PaperEquity float64 `mapstructure:"paper_equity"`
}

type NotifyConfig struct {
	TelegramToken  string `mapstructure:"telegram_token"`
	TelegramChatID string `mapstructure:"telegram_chat_id"`
}

type EngineConfig struct {
	TickInterval time.Duration `mapstructure:"tick_interval"`
	Workers      int64         `mapstructure:"workers"`
	Timezone     string        `mapstructure:"timezone"`
}

type StoreConfig struct {
	DatabasePath string `mapstructure:"database_path"`
}

type PluginsConfig struct {
	TemplateFile string `mapstructure:"template_file"`
}

// Load reads the YAML config at path, fills defaults and validates.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Market.HTTPTimeout <= 0 {
		c.Market.HTTPTimeout = 15 * time.Second
	}
	if c.Broker.Mode == "" {
		c.Broker.Mode = "paper"
	}
	if c.Broker.PaperEquity <= 0 {
		c.Broker.PaperEquity = 100_000
	}
	if c.Engine.TickInterval <= 0 {
		c.Engine.TickInterval = time.Minute
	}
	if c.Engine.Workers <= 0 {
		c.Engine.Workers = 8
	}
	if c.Engine.Timezone == "" {
		c.Engine.Timezone = "UTC"
	}
	if c.Store.DatabasePath == "" {
		c.Store.DatabasePath = "data/autotrader.db"
	}
}

func (c *Config) validate() error {
	switch strings.ToLower(c.Broker.Mode) {
	case "paper":
	case "binance":
		if c.Broker.APIKey == "" || c.Broker.APISecret == "" {
			return fmt.Errorf("broker mode binance requires api_key and api_secret")
		}
	default:
		return fmt.Errorf("unknown broker mode %q", c.Broker.Mode)
	}
	if _, err := time.LoadLocation(c.Engine.Timezone); err != nil {
		return fmt.Errorf("invalid engine timezone %q: %w", c.Engine.Timezone, err)
	}
	if c.Engine.TickInterval < time.Second {
		return fmt.Errorf("engine tick_interval %s is too small", c.Engine.TickInterval)
	}
	for i := range c.Bootstrap {
		if err := c.Bootstrap[i].Validate(); err != nil {
			return fmt.Errorf("bootstrap strategy %d: %w", i, err)
		}
	}
	return nil
}
