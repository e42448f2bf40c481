package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Endpoints EndpointsConfig `mapstructure:"endpoints"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Tracker   TrackerConfig   `mapstructure:"tracker"`
	Staleness StalenessConfig `mapstructure:"staleness"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type EndpointsConfig struct {
	GammaBase   string `mapstructure:"gamma_base"`
	ClobBase    string `mapstructure:"clob_base"`
	DataAPIBase string `mapstructure:"data_api_base"`
	WSURL       string `mapstructure:"ws_url"`
}

type HTTPConfig struct {
	TimeoutSeconds    int `mapstructure:"timeout_seconds"`
	MaxRetries        int `mapstructure:"max_retries"`
	BackoffBaseMS     int `mapstructure:"backoff_base_ms"`
	BackoffCapSeconds int `mapstructure:"backoff_cap_seconds"`
}

// RateLimitRule mirrors the upstream rate-limit table: path-prefix
// rules plus coarser host-level fallbacks. The window is global; all
// documented limits are per 10 seconds.
type RateLimitRule struct {
	Host       string `mapstructure:"host"`
	PathPrefix string `mapstructure:"path_prefix"`
	Capacity   int    `mapstructure:"capacity"`
}

type RateLimitConfig struct {
	WindowSeconds int             `mapstructure:"window_seconds"`
	QPS           float64         `mapstructure:"qps"`
	Burst         int             `mapstructure:"burst"`
	Rules         []RateLimitRule `mapstructure:"rules"`
}

type WebSocketConfig struct {
	BackoffBaseMS     int `mapstructure:"backoff_base_ms"`
	BackoffCapSeconds int `mapstructure:"backoff_cap_seconds"`
}

type TrackerConfig struct {
	RefreshIntervalSeconds int      `mapstructure:"refresh_interval_seconds"`
	Slugs                  []string `mapstructure:"slugs"`
}

type StalenessConfig struct {
	RESTMaxAgeSeconds int `mapstructure:"rest_max_age_seconds"`
	WSMaxAgeSeconds   int `mapstructure:"ws_max_age_seconds"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

func (c HTTPConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c WebSocketConfig) BackoffBase() time.Duration {
	return time.Duration(c.BackoffBaseMS) * time.Millisecond
}

func (c WebSocketConfig) BackoffCap() time.Duration {
	return time.Duration(c.BackoffCapSeconds) * time.Second
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/polyscope")
	}

	v.SetEnvPrefix("POLYSCOPE")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&config)

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)

	v.SetDefault("endpoints.gamma_base", "https://gamma-api.polymarket.com")
	v.SetDefault("endpoints.clob_base", "https://clob.polymarket.com")
	v.SetDefault("endpoints.data_api_base", "https://data-api.polymarket.com")
	v.SetDefault("endpoints.ws_url", "wss://ws-subscriptions-clob.polymarket.com/ws/market")

	v.SetDefault("http.timeout_seconds", 10)
	v.SetDefault("http.max_retries", 2)
	v.SetDefault("http.backoff_base_ms", 200)
	v.SetDefault("http.backoff_cap_seconds", 30)

	v.SetDefault("rate_limit.window_seconds", 10)
	v.SetDefault("rate_limit.qps", 20)
	v.SetDefault("rate_limit.burst", 10)
	v.SetDefault("rate_limit.rules", []map[string]interface{}{
		{"host": "clob.polymarket.com", "path_prefix": "/book", "capacity": 50},
		{"host": "clob.polymarket.com", "path_prefix": "/price", "capacity": 100},
		{"host": "clob.polymarket.com", "path_prefix": "/midpoint", "capacity": 100},
		{"host": "clob.polymarket.com", "path_prefix": "/prices-history", "capacity": 30},
		{"host": "clob.polymarket.com", "capacity": 100},
		{"host": "gamma-api.polymarket.com", "capacity": 40},
		{"host": "data-api.polymarket.com", "capacity": 30},
	})

	v.SetDefault("websocket.backoff_base_ms", 500)
	v.SetDefault("websocket.backoff_cap_seconds", 30)

	v.SetDefault("tracker.refresh_interval_seconds", 15)
	v.SetDefault("tracker.slugs", []string{})

	v.SetDefault("staleness.rest_max_age_seconds", 60)
	v.SetDefault("staleness.ws_max_age_seconds", 30)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 3)
}

func overrideFromEnv(config *Config) {
	if base := os.Getenv("POLYSCOPE_GAMMA_BASE"); base != "" {
		config.Endpoints.GammaBase = base
	}
	if base := os.Getenv("POLYSCOPE_CLOB_BASE"); base != "" {
		config.Endpoints.ClobBase = base
	}
	if base := os.Getenv("POLYSCOPE_DATA_API_BASE"); base != "" {
		config.Endpoints.DataAPIBase = base
	}
	if wsURL := os.Getenv("POLYSCOPE_WS_URL"); wsURL != "" {
		config.Endpoints.WSURL = wsURL
	}
	if level := os.Getenv("POLYSCOPE_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
}
