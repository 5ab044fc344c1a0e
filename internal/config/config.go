package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Addr                string `yaml:"addr"`
		APIKey              string `yaml:"api_key"`
		ReadTimeoutSeconds  int    `yaml:"read_timeout_seconds"`
		WriteTimeoutSeconds int    `yaml:"write_timeout_seconds"`
		JoinRatePerMinute   int    `yaml:"join_rate_per_minute"`
		JoinBurst           int    `yaml:"join_burst"`
	} `yaml:"server"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Backup struct {
		Enabled       bool   `yaml:"enabled"`
		IntervalHours int    `yaml:"interval_hours"`
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"backup"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Channel  string `yaml:"channel"`
	} `yaml:"redis"`

	Realtime struct {
		RefreshIntervalSeconds int `yaml:"refresh_interval_seconds"`
		SendTimeoutMillis      int `yaml:"send_timeout_ms"`
		NotifyQueueSize        int `yaml:"notify_queue_size"`
		NotifyWorkers          int `yaml:"notify_workers"`
		RefreshParallelism     int `yaml:"refresh_parallelism"`
	} `yaml:"realtime"`

	Scheduling struct {
		DefaultServiceMinutes int `yaml:"default_service_minutes"`
		JoinClockSkewSeconds  int `yaml:"join_clock_skew_seconds"`
		ReviewIntervalMinutes int `yaml:"review_interval_minutes"`
	} `yaml:"scheduling"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	BusinessesConfigPath string `yaml:"businesses_config_path"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	// A missing .env is fine; the process environment may already be populated.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/waitline.db"
	}
	if c.Redis.Channel == "" {
		c.Redis.Channel = "waitline:queue-changed"
	}
	if c.BusinessesConfigPath == "" {
		c.BusinessesConfigPath = "configs/businesses.yaml"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

func (c *Config) ReadTimeout() time.Duration {
	if c.Server.ReadTimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.Server.ReadTimeoutSeconds) * time.Second
}

func (c *Config) WriteTimeout() time.Duration {
	if c.Server.WriteTimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.Server.WriteTimeoutSeconds) * time.Second
}

func (c *Config) RefreshInterval() time.Duration {
	if c.Realtime.RefreshIntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Realtime.RefreshIntervalSeconds) * time.Second
}

func (c *Config) SendTimeout() time.Duration {
	if c.Realtime.SendTimeoutMillis <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.Realtime.SendTimeoutMillis) * time.Millisecond
}

func (c *Config) NotifyQueueSize() int {
	if c.Realtime.NotifyQueueSize <= 0 {
		return 256
	}
	return c.Realtime.NotifyQueueSize
}

func (c *Config) NotifyWorkers() int {
	if c.Realtime.NotifyWorkers <= 0 {
		return 4
	}
	return c.Realtime.NotifyWorkers
}

func (c *Config) RefreshParallelism() int {
	if c.Realtime.RefreshParallelism <= 0 {
		return 4
	}
	return c.Realtime.RefreshParallelism
}

func (c *Config) DefaultServiceDuration() time.Duration {
	if c.Scheduling.DefaultServiceMinutes <= 0 {
		return 20 * time.Minute
	}
	return time.Duration(c.Scheduling.DefaultServiceMinutes) * time.Minute
}

func (c *Config) JoinClockSkew() time.Duration {
	if c.Scheduling.JoinClockSkewSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.Scheduling.JoinClockSkewSeconds) * time.Second
}

func (c *Config) ReviewInterval() time.Duration {
	if c.Scheduling.ReviewIntervalMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(c.Scheduling.ReviewIntervalMinutes) * time.Minute
}

// JoinRate returns the per-client queue join rate and burst.
func (c *Config) JoinRate() (perMinute, burst int) {
	perMinute, burst = c.Server.JoinRatePerMinute, c.Server.JoinBurst
	if perMinute <= 0 {
		perMinute = 10
	}
	if burst <= 0 {
		burst = 3
	}
	return perMinute, burst
}
