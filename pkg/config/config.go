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
	} `yaml:"server"`

	Signal struct {
		Address      string        `yaml:"address"`
		PingInterval time.Duration `yaml:"ping_interval"`
		PongTimeout  time.Duration `yaml:"pong_timeout"`
	} `yaml:"signal"`

	Engine struct {
		WorkerCount int `yaml:"worker_count"`
		PortRange   struct {
			Min uint16 `yaml:"min"`
			Max uint16 `yaml:"max"`
		} `yaml:"port_range"`
		ICEServers []struct {
			URLs       []string `yaml:"urls"`
			Username   string   `yaml:"username,omitempty"`
			Credential string   `yaml:"credential,omitempty"`
		} `yaml:"ice_servers"`
	} `yaml:"engine"`

	Rooms struct {
		RouterPoolSize int           `yaml:"router_pool_size"`
		EvictionDelay  time.Duration `yaml:"eviction_delay"`
	} `yaml:"rooms"`

	Recording struct {
		MaxConcurrent    int           `yaml:"max_concurrent"`
		OutputDir        string        `yaml:"output_dir"`
		FFmpegPath       string        `yaml:"ffmpeg_path"`
		ReadinessTimeout time.Duration `yaml:"readiness_timeout"`
		DrainInterval    time.Duration `yaml:"drain_interval"`
		GracefulTimeout  time.Duration `yaml:"graceful_timeout"`
		KillTimeout      time.Duration `yaml:"kill_timeout"`
		MinFileSize      int64         `yaml:"min_file_size"`
		CapturePortMin   int           `yaml:"capture_port_min"`
		CapturePortMax   int           `yaml:"capture_port_max"`
	} `yaml:"recording"`

	Storage struct {
		Dir string `yaml:"dir"`
	} `yaml:"storage"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
	} `yaml:"monitoring"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`

	Auth struct {
		// JWTSecret enables join-token validation when set.
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`

	RateLimiting struct {
		Enabled           bool    `yaml:"enabled"`
		MessagesPerSecond float64 `yaml:"messages_per_second"`
		Burst             int     `yaml:"burst"`
	} `yaml:"rate_limiting"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Signal.Address == "" {
		return fmt.Errorf("signal.address must not be empty")
	}
	if c.Signal.PingInterval <= 0 {
		return fmt.Errorf("signal.ping_interval must be > 0")
	}
	if c.Signal.PongTimeout <= 0 {
		return fmt.Errorf("signal.pong_timeout must be > 0")
	}

	if c.Engine.WorkerCount <= 0 {
		return fmt.Errorf("engine.worker_count must be > 0")
	}
	if c.Engine.PortRange.Min > 0 || c.Engine.PortRange.Max > 0 {
		if c.Engine.PortRange.Min == 0 || c.Engine.PortRange.Max == 0 {
			return fmt.Errorf("engine.port_range.min and max must both be set when one is set")
		}
		if c.Engine.PortRange.Min >= c.Engine.PortRange.Max {
			return fmt.Errorf("engine.port_range.min must be < max")
		}
	}

	if c.Rooms.RouterPoolSize <= 0 {
		return fmt.Errorf("rooms.router_pool_size must be > 0")
	}
	if c.Rooms.EvictionDelay <= 0 {
		return fmt.Errorf("rooms.eviction_delay must be > 0")
	}

	if c.Recording.MaxConcurrent <= 0 {
		return fmt.Errorf("recording.max_concurrent must be > 0")
	}
	if c.Recording.OutputDir == "" {
		return fmt.Errorf("recording.output_dir must not be empty")
	}
	if c.Recording.ReadinessTimeout <= 0 {
		return fmt.Errorf("recording.readiness_timeout must be > 0")
	}
	if c.Recording.GracefulTimeout <= 0 {
		return fmt.Errorf("recording.graceful_timeout must be > 0")
	}
	if c.Recording.KillTimeout <= 0 {
		return fmt.Errorf("recording.kill_timeout must be > 0")
	}
	if c.Recording.CapturePortMin <= 0 || c.Recording.CapturePortMax <= c.Recording.CapturePortMin {
		return fmt.Errorf("recording.capture_port_min must be < capture_port_max")
	}

	if c.Storage.Dir == "" {
		return fmt.Errorf("storage.dir must not be empty")
	}
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
	}

	if c.RateLimiting.Enabled {
		if c.RateLimiting.MessagesPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.messages_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.Burst <= 0 {
			return fmt.Errorf("rate_limiting.burst must be > 0 when rate limiting is enabled")
		}
	}
	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
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

	cfg.Server.Address = ":8080"
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Server.ShutdownTimeout = 30 * time.Second

	cfg.Signal.Address = ":8081"
	cfg.Signal.PingInterval = 30 * time.Second
	cfg.Signal.PongTimeout = 60 * time.Second

	cfg.Engine.WorkerCount = 4
	cfg.Engine.PortRange.Min = 40000
	cfg.Engine.PortRange.Max = 49999

	cfg.Rooms.RouterPoolSize = 2
	cfg.Rooms.EvictionDelay = 5 * time.Minute

	cfg.Recording.MaxConcurrent = 4
	cfg.Recording.OutputDir = "/tmp/roomrelay/recordings"
	cfg.Recording.FFmpegPath = "ffmpeg"
	cfg.Recording.ReadinessTimeout = 3 * time.Second
	cfg.Recording.DrainInterval = 500 * time.Millisecond
	cfg.Recording.GracefulTimeout = 5 * time.Second
	cfg.Recording.KillTimeout = 3 * time.Second
	cfg.Recording.MinFileSize = 1024
	cfg.Recording.CapturePortMin = 50000
	cfg.Recording.CapturePortMax = 50999

	cfg.Storage.Dir = "/tmp/roomrelay/objects"

	cfg.Monitoring.PrometheusEnabled = true

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.PoolSize = 10

	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.MessagesPerSecond = 100
	cfg.RateLimiting.Burst = 200

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("ROOMRELAY_SERVER_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if addr := os.Getenv("ROOMRELAY_SIGNAL_ADDRESS"); addr != "" {
		c.Signal.Address = addr
	}
	if level := os.Getenv("ROOMRELAY_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if secret := os.Getenv("ROOMRELAY_JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}
	if workers := os.Getenv("ROOMRELAY_ENGINE_WORKERS"); workers != "" {
		if n, err := strconv.Atoi(workers); err == nil {
			c.Engine.WorkerCount = n
		}
	}
	if max := os.Getenv("ROOMRELAY_MAX_RECORDINGS"); max != "" {
		if n, err := strconv.Atoi(max); err == nil {
			c.Recording.MaxConcurrent = n
		}
	}
	if delay := os.Getenv("ROOMRELAY_EVICTION_DELAY"); delay != "" {
		if d, err := time.ParseDuration(delay); err == nil {
			c.Rooms.EvictionDelay = d
		}
	}
	if timeout := os.Getenv("ROOMRELAY_RECORDER_READY_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			c.Recording.ReadinessTimeout = d
		}
	}
}
