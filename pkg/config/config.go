package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		PingInterval    time.Duration `yaml:"ping_interval"`
		PongTimeout     time.Duration `yaml:"pong_timeout"`
		ReadLimit       int64         `yaml:"read_limit"`
		AllowedOrigins  []string      `yaml:"allowed_origins"`
	} `yaml:"server"`

	WebTransport struct {
		Enabled           bool          `yaml:"enabled"`
		Address           string        `yaml:"address"`
		CertFile          string        `yaml:"cert_file"`
		KeyFile           string        `yaml:"key_file"`
		IdleTimeout       time.Duration `yaml:"idle_timeout"`
		KeepAliveInterval time.Duration `yaml:"keep_alive_interval"`
		DatagramThreshold int           `yaml:"datagram_threshold"`
	} `yaml:"webtransport"`

	Auth struct {
		JWTSecret        string        `yaml:"jwt_secret"`
		Issuer           string        `yaml:"issuer"`
		TokenTTL         time.Duration `yaml:"token_ttl"`
		EnforceAdmission bool          `yaml:"enforce_admission"`
	} `yaml:"auth"`

	Relay struct {
		MediaQueueSize   int `yaml:"media_queue_size"`
		ControlQueueSize int `yaml:"control_queue_size"`
	} `yaml:"relay"`

	Liveness struct {
		ClientTimeout time.Duration `yaml:"client_timeout"`
		SweepInterval time.Duration `yaml:"sweep_interval"`
	} `yaml:"liveness"`

	Bus struct {
		Enabled          bool          `yaml:"enabled"`
		Address          string        `yaml:"address"`
		Password         string        `yaml:"password"`
		DB               int           `yaml:"db"`
		PoolSize         int           `yaml:"pool_size"`
		Namespace        string        `yaml:"namespace"`
		PublishQueueSize int           `yaml:"publish_queue_size"`
		ResubscribeGrace time.Duration `yaml:"resubscribe_grace"`
	} `yaml:"bus"`

	Monitoring struct {
		PrometheusEnabled bool          `yaml:"prometheus_enabled"`
		StatsCacheTTL     time.Duration `yaml:"stats_cache_ttl"`
	} `yaml:"monitoring"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		JaegerURL   string  `yaml:"jaeger_url"`
		Environment string  `yaml:"environment"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	RateLimiting struct {
		Enabled bool `yaml:"enabled"`

		HTTP struct {
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
			MaxConcurrent     int     `yaml:"max_concurrent"` // global concurrent HTTP requests
		} `yaml:"http"`
	} `yaml:"rate_limiting"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
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
	if c.Server.PingInterval <= 0 {
		return fmt.Errorf("server.ping_interval must be > 0")
	}
	if c.Server.PongTimeout <= c.Server.PingInterval {
		return fmt.Errorf("server.pong_timeout must be > server.ping_interval")
	}
	if c.Server.ReadLimit <= 0 {
		return fmt.Errorf("server.read_limit must be > 0")
	}

	// WebTransport
	if c.WebTransport.Enabled {
		if c.WebTransport.Address == "" {
			return fmt.Errorf("webtransport.address must not be empty when webtransport.enabled=true")
		}
		if c.WebTransport.CertFile == "" || c.WebTransport.KeyFile == "" {
			return fmt.Errorf("webtransport.cert_file and key_file must be set when webtransport.enabled=true")
		}
		if c.WebTransport.IdleTimeout <= 0 {
			return fmt.Errorf("webtransport.idle_timeout must be > 0")
		}
		if c.WebTransport.KeepAliveInterval <= 0 {
			return fmt.Errorf("webtransport.keep_alive_interval must be > 0")
		}
		if c.WebTransport.DatagramThreshold <= 0 {
			return fmt.Errorf("webtransport.datagram_threshold must be > 0")
		}
	}

	// Auth
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret must not be empty")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be > 0")
	}

	// Relay
	if c.Relay.MediaQueueSize <= 0 {
		return fmt.Errorf("relay.media_queue_size must be > 0")
	}
	if c.Relay.ControlQueueSize <= 0 {
		return fmt.Errorf("relay.control_queue_size must be > 0")
	}
	if c.Relay.ControlQueueSize >= c.Relay.MediaQueueSize {
		return fmt.Errorf("relay.control_queue_size must be < relay.media_queue_size")
	}

	// Liveness
	if c.Liveness.ClientTimeout <= 0 {
		return fmt.Errorf("liveness.client_timeout must be > 0")
	}
	if c.Liveness.SweepInterval <= 0 {
		return fmt.Errorf("liveness.sweep_interval must be > 0")
	}
	if c.Liveness.SweepInterval >= c.Liveness.ClientTimeout {
		return fmt.Errorf("liveness.sweep_interval must be < liveness.client_timeout")
	}

	// Bus
	if c.Bus.Enabled {
		if c.Bus.Address == "" {
			return fmt.Errorf("bus.address must not be empty when bus.enabled=true")
		}
		if c.Bus.PoolSize <= 0 {
			return fmt.Errorf("bus.pool_size must be > 0 when bus.enabled=true")
		}
		if c.Bus.Namespace == "" {
			return fmt.Errorf("bus.namespace must not be empty when bus.enabled=true")
		}
		if c.Bus.PublishQueueSize <= 0 {
			return fmt.Errorf("bus.publish_queue_size must be > 0 when bus.enabled=true")
		}
		if c.Bus.ResubscribeGrace < 0 {
			return fmt.Errorf("bus.resubscribe_grace must be >= 0")
		}
	}

	// Monitoring
	if c.Monitoring.StatsCacheTTL <= 0 {
		return fmt.Errorf("monitoring.stats_cache_ttl must be > 0")
	}

	// Tracing
	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SampleRate <= 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be in (0, 1]")
		}
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
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
	cfg.Server.Address = ":8080"
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Server.ShutdownTimeout = 30 * time.Second
	cfg.Server.PingInterval = 5 * time.Second
	cfg.Server.PongTimeout = 10 * time.Second
	cfg.Server.ReadLimit = 1_000_000
	cfg.Server.AllowedOrigins = []string{"*"}

	cfg.WebTransport.Enabled = false
	cfg.WebTransport.Address = ":4433"
	cfg.WebTransport.IdleTimeout = 10 * time.Second
	cfg.WebTransport.KeepAliveInterval = 2 * time.Second
	cfg.WebTransport.DatagramThreshold = 400

	cfg.Auth.JWTSecret = "change-me-in-production"
	cfg.Auth.Issuer = "videocall-meeting-backend"
	cfg.Auth.TokenTTL = 15 * time.Minute
	cfg.Auth.EnforceAdmission = true

	cfg.Relay.MediaQueueSize = 256
	cfg.Relay.ControlQueueSize = 64

	cfg.Liveness.ClientTimeout = 10 * time.Second
	cfg.Liveness.SweepInterval = 2 * time.Second

	cfg.Bus.Enabled = false
	cfg.Bus.Address = "localhost:6379"
	cfg.Bus.DB = 0
	cfg.Bus.PoolSize = 10
	cfg.Bus.Namespace = "room"
	cfg.Bus.PublishQueueSize = 1024
	cfg.Bus.ResubscribeGrace = 0

	cfg.Monitoring.PrometheusEnabled = true
	cfg.Monitoring.StatsCacheTTL = 2 * time.Second

	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.Environment = "development"
	cfg.Tracing.SampleRate = 1.0

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	// Rate limiting defaults (disabled by default)
	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 50
	cfg.RateLimiting.HTTP.Burst = 100
	cfg.RateLimiting.HTTP.MaxConcurrent = 0

	return cfg
}

func (c *Config) applyEnvOverrides() {
	// Apply environment variable overrides
	if addr := os.Getenv("CALLRELAY_SERVER_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if addr := os.Getenv("CALLRELAY_WEBTRANSPORT_ADDRESS"); addr != "" {
		c.WebTransport.Address = addr
	}
	if level := os.Getenv("CALLRELAY_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if secret := os.Getenv("CALLRELAY_JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}
	if enforce := os.Getenv("CALLRELAY_ENFORCE_ADMISSION"); enforce != "" {
		if v, err := strconv.ParseBool(enforce); err == nil {
			c.Auth.EnforceAdmission = v
		}
	}
	if addr := os.Getenv("CALLRELAY_BUS_ADDRESS"); addr != "" {
		c.Bus.Enabled = true
		c.Bus.Address = addr
	}
}
