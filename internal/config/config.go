// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type WorkerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	PoolSize        int           `yaml:"pool_size"`  // concurrent training jobs
	QueueSize       int           `yaml:"queue_size"` // jobs waiting for a pool slot
	JobTimeout      time.Duration `yaml:"job_timeout"`
	ScriptMaxNodes  uint          `yaml:"script_max_nodes"` // expression size budget
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	DiskPath        string        `yaml:"disk_path"`
	TrainRateLimit  int           `yaml:"train_rate_limit"` // per client per minute, 0 = off
	SampleInterval  time.Duration `yaml:"sample_interval"`  // host gauges refresh
}

type ControllerConfig struct {
	ConnectTimeout   time.Duration `yaml:"connect_timeout"`
	StatusTimeout    time.Duration `yaml:"status_timeout"`
	TrainTimeout     time.Duration `yaml:"train_timeout"`
	JobStatusTimeout time.Duration `yaml:"job_status_timeout"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type MetricsConfig struct {
	// Addr serves /metrics for the controller; the worker always serves it
	// on its own port.
	Addr string `yaml:"addr"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type AuthConfig struct {
	Secret string        `yaml:"secret"` // empty disables worker auth
	TTL    time.Duration `yaml:"ttl"`
}

type AIConfig struct {
	Provider         string `yaml:"provider"` // noop|openai|gemini
	OpenAIKey        string `yaml:"openai_key"`
	OpenAIBaseURL    string `yaml:"openai_base_url"`
	GeminiKey        string `yaml:"gemini_key"`
	GeminiURL        string `yaml:"gemini_url"`
	DefaultModel     string `yaml:"default_model"`
	MaxOutputTokens  int    `yaml:"max_output_tokens"`
	MaxContextTokens int    `yaml:"max_context_tokens"`
}

type Config struct {
	Worker     WorkerConfig     `yaml:"worker"`
	Controller ControllerConfig `yaml:"controller"`
	Log        LogConfig        `yaml:"log"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Redis      RedisConfig      `yaml:"redis"`
	Database   DatabaseConfig   `yaml:"database"`
	Auth       AuthConfig       `yaml:"auth"`
	AI         AIConfig         `yaml:"ai"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path and fills defaults. An empty path
// yields a default configuration.
func LoadConfig(path string, dev bool) (*Config, error) {
	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Worker.Port == 0 {
		cfg.Worker.Port = 5000
	}
	if cfg.Worker.PoolSize <= 0 {
		cfg.Worker.PoolSize = 2
	}
	if cfg.Worker.QueueSize <= 0 {
		cfg.Worker.QueueSize = cfg.Worker.PoolSize * 4
	}
	if cfg.Worker.JobTimeout <= 0 {
		cfg.Worker.JobTimeout = 6 * time.Hour
	}
	if cfg.Worker.ScriptMaxNodes == 0 {
		cfg.Worker.ScriptMaxNodes = 10000
	}
	if cfg.Worker.RequestTimeout <= 0 {
		cfg.Worker.RequestTimeout = 15 * time.Second
	}
	if cfg.Worker.ShutdownTimeout <= 0 {
		cfg.Worker.ShutdownTimeout = 10 * time.Second
	}
	cfg.Worker.SampleInterval = orDefault(cfg.Worker.SampleInterval, 30*time.Second)
	if cfg.Worker.DiskPath == "" {
		cfg.Worker.DiskPath = "/"
	}

	cfg.Controller.ConnectTimeout = orDefault(cfg.Controller.ConnectTimeout, 10*time.Second)
	cfg.Controller.StatusTimeout = orDefault(cfg.Controller.StatusTimeout, 5*time.Second)
	cfg.Controller.TrainTimeout = orDefault(cfg.Controller.TrainTimeout, 30*time.Second)
	cfg.Controller.JobStatusTimeout = orDefault(cfg.Controller.JobStatusTimeout, 5*time.Second)

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	cfg.Redis.TTL = orDefault(cfg.Redis.TTL, 24*time.Hour)
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 4
	}
	cfg.Auth.TTL = orDefault(cfg.Auth.TTL, 5*time.Minute)

	if cfg.AI.Provider == "" {
		cfg.AI.Provider = "noop"
	}
	if cfg.AI.DefaultModel == "" {
		switch cfg.AI.Provider {
		case "gemini":
			cfg.AI.DefaultModel = "gemini-2.0-flash"
		case "openai":
			cfg.AI.DefaultModel = "gpt-4o-mini"
		default:
			cfg.AI.DefaultModel = "noop-ai-model"
		}
	}
	if cfg.AI.MaxOutputTokens <= 0 {
		cfg.AI.MaxOutputTokens = 1024
	}
	if cfg.AI.MaxContextTokens <= 0 {
		cfg.AI.MaxContextTokens = 8000
	}
}

// Validate checks values that defaults cannot repair.
func (c *Config) Validate() error {
	if c.Worker.Port < 1 || c.Worker.Port > 65535 {
		return fmt.Errorf("worker.port out of range: %d", c.Worker.Port)
	}
	if c.Worker.TrainRateLimit < 0 {
		return errors.New("worker.train_rate_limit must not be negative")
	}
	switch c.AI.Provider {
	case "noop":
	case "openai":
		if c.AI.OpenAIKey == "" {
			return errors.New("ai.openai_key is required for provider openai")
		}
	case "gemini":
		if c.AI.GeminiKey == "" {
			return errors.New("ai.gemini_key is required for provider gemini")
		}
	default:
		return fmt.Errorf("unknown ai.provider %q", c.AI.Provider)
	}
	if c.Auth.Secret != "" && len(c.Auth.Secret) < 16 {
		return errors.New("auth.secret must be at least 16 bytes")
	}
	return nil
}

// Addr is the worker listen address.
func (w WorkerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", w.Host, w.Port)
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
