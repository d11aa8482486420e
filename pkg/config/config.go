package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Signal struct {
		Address         string        `yaml:"address"`
		PingInterval    time.Duration `yaml:"ping_interval"`
		PongTimeout     time.Duration `yaml:"pong_timeout"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"signal"`

	Server struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		ServiceName string  `yaml:"service_name"`
		JaegerURL   string  `yaml:"jaeger_url"`
		Environment string  `yaml:"environment"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`

	RateLimiting struct {
		Enabled bool `yaml:"enabled"`

		HTTP struct {
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
			MaxConcurrent     int     `yaml:"max_concurrent"` // global concurrent HTTP requests
		} `yaml:"http"`

		WebSocket struct {
			MessagesPerSecond   float64 `yaml:"messages_per_second"`
			Burst               int     `yaml:"burst"`
			MaxMessageSizeBytes int64   `yaml:"max_message_size_bytes"`
		} `yaml:"websocket"`
	} `yaml:"rate_limiting"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Signal
	if c.Signal.Address == "" {
		return fmt.Errorf("signal.address must not be empty")
	}
	if c.Signal.PingInterval <= 0 {
		return fmt.Errorf("signal.ping_interval must be > 0")
	}
	if c.Signal.PongTimeout <= 0 {
		return fmt.Errorf("signal.pong_timeout must be > 0")
	}
	if c.Signal.ReadTimeout <= 0 {
		return fmt.Errorf("signal.read_timeout must be > 0")
	}
	if c.Signal.WriteTimeout <= 0 {
		return fmt.Errorf("signal.write_timeout must be > 0")
	}
	if c.Signal.ShutdownTimeout <= 0 {
		return fmt.Errorf("signal.shutdown_timeout must be > 0")
	}

	// Server
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be > 0")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be > 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	// Monitoring
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort <= 0 {
		return fmt.Errorf("monitoring.prometheus_port must be > 0 when prometheus_enabled=true")
	}

	// Tracing
	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be within [0, 1]")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
	}

	// Rate limiting
	if c.RateLimiting.Enabled {
		if c.RateLimiting.HTTP.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.http.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.Burst <= 0 {
			return fmt.Errorf("rate_limiting.http.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.MaxConcurrent < 0 {
			return fmt.Errorf("rate_limiting.http.max_concurrent must be >= 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.MessagesPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.websocket.messages_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.Burst <= 0 {
			return fmt.Errorf("rate_limiting.websocket.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.MaxMessageSizeBytes < 0 {
			return fmt.Errorf("rate_limiting.websocket.max_message_size_bytes must be >= 0 when rate limiting is enabled")
		}
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	// If file does not exist, fall back to defaults
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	// Default values
	cfg.Signal.Address = ":8081"
	cfg.Signal.PingInterval = 30 * time.Second
	cfg.Signal.PongTimeout = 60 * time.Second
	cfg.Signal.ReadTimeout = 60 * time.Second
	cfg.Signal.WriteTimeout = 10 * time.Second
	cfg.Signal.ShutdownTimeout = 30 * time.Second

	cfg.Server.Address = ":8080"
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Server.ShutdownTimeout = 30 * time.Second

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Monitoring.PrometheusEnabled = true
	cfg.Monitoring.PrometheusPort = 9090

	cfg.Tracing.Enabled = false
	cfg.Tracing.ServiceName = "sigrelay"
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.Environment = "development"
	cfg.Tracing.SampleRate = 1.0

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10

	// Rate limiting defaults (disabled by default)
	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 50
	cfg.RateLimiting.HTTP.Burst = 100
	cfg.RateLimiting.HTTP.MaxConcurrent = 0
	cfg.RateLimiting.WebSocket.MessagesPerSecond = 100
	cfg.RateLimiting.WebSocket.Burst = 200
	cfg.RateLimiting.WebSocket.MaxMessageSizeBytes = 64 * 1024

	return cfg
}

func (c *Config) applyEnvOverrides() {
	// Apply environment variable overrides
	if port := os.Getenv("SIGRELAY_PORT"); port != "" {
		c.Signal.Address = ":" + port
	}
	if addr := os.Getenv("SIGRELAY_SIGNAL_ADDRESS"); addr != "" {
		c.Signal.Address = addr
	}
	if addr := os.Getenv("SIGRELAY_SERVER_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if level := os.Getenv("SIGRELAY_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if addr := os.Getenv("SIGRELAY_REDIS_ADDRESS"); addr != "" {
		c.Redis.Address = addr
	}
}
