// Package config loads process configuration from the environment and builds
// the shared infrastructure handles (logger, Redis client) from it.
package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config is the full process configuration. The API server and the worker
// read the same set; each uses the parts it needs.
type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8000"`
	RedisURL string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`

	LLMProvider string `env:"LLM_PROVIDER" envDefault:"openai"`
	LLMModel    string `env:"LLM_MODEL"`
	LLMAPIKey   string `env:"LLM_API_KEY"`

	TavilyAPIKey     string   `env:"TAVILY_API_KEY"`
	TavilyBackupKeys []string `env:"TAVILY_BACKUP_KEYS" envSeparator:","`

	MaxIterations int `env:"MAX_ITERATIONS" envDefault:"10"`
	ToolWorkers   int `env:"TOOL_WORKERS" envDefault:"5"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	Debug    bool   `env:"DEBUG" envDefault:"false"`
}

// Load parses the configuration from the environment.
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return &cfg, nil
}

// TavilyKeys returns the primary key followed by any backups, blanks removed.
func (c *Config) TavilyKeys() []string {
	var keys []string
	if c.TavilyAPIKey != "" {
		keys = append(keys, c.TavilyAPIKey)
	}
	for _, k := range c.TavilyBackupKeys {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// NewLogger builds the process logger. Debug mode uses the development
// config (console encoding, stacktraces on warn).
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", c.LogLevel, err)
	}

	var zcfg zap.Config
	if c.Debug {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
		zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

// NewRedisClient builds a Redis client from the configured URL.
func (c *Config) NewRedisClient() (*redis.Client, error) {
	opts, err := redis.ParseURL(c.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}
