package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Redis      RedisConfig      `mapstructure:"redis"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	CORS       CORSConfig       `mapstructure:"cors"`
	Upstream   UpstreamConfig   `mapstructure:"upstream"`
	Polling    PollingConfig    `mapstructure:"polling"`
	Upload     UploadConfig     `mapstructure:"upload"`
	Generation GenerationConfig `mapstructure:"generation"`
	Session    SessionConfig    `mapstructure:"session"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

type UpstreamConfig struct {
	JobServiceURL      string `mapstructure:"job_service_url"`
	MaterialServiceURL string `mapstructure:"material_service_url"`
	TimeoutSeconds     int    `mapstructure:"timeout_seconds"`
}

type PollingConfig struct {
	IntervalMS int `mapstructure:"interval_ms"`
}

type UploadConfig struct {
	MaxFileSize   int64 `mapstructure:"max_file_size"`   // per-file ceiling in bytes
	MaxTotalPages int   `mapstructure:"max_total_pages"` // advisory page ceiling
}

type GenerationConfig struct {
	MaxTotalQuestions int `mapstructure:"max_total_questions"`
	MinSourceChars    int `mapstructure:"min_source_chars"`
}

type SessionConfig struct {
	ExpireMinutes int `mapstructure:"expire_minutes"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// PollInterval returns the polling cadence, defaulting to 1500ms.
func (c *Config) PollInterval() time.Duration {
	if c.Polling.IntervalMS <= 0 {
		return 1500 * time.Millisecond
	}
	return time.Duration(c.Polling.IntervalMS) * time.Millisecond
}

// UpstreamTimeout returns the one-shot upstream call timeout, defaulting to 60s.
func (c *Config) UpstreamTimeout() time.Duration {
	if c.Upstream.TimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.Upstream.TimeoutSeconds) * time.Second
}

func Load(configPath string) (*Config, error) {
	// Prefer config.local.yaml when present (real endpoints/secrets, not committed).
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")

	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	// Environment variables override file values.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Upload.MaxFileSize <= 0 {
		cfg.Upload.MaxFileSize = 15 * 1024 * 1024
	}
	if cfg.Upload.MaxTotalPages <= 0 {
		cfg.Upload.MaxTotalPages = 20
	}
	if cfg.Generation.MaxTotalQuestions <= 0 {
		cfg.Generation.MaxTotalQuestions = 100
	}
	if cfg.Generation.MinSourceChars <= 0 {
		cfg.Generation.MinSourceChars = 100
	}
	if cfg.Session.ExpireMinutes <= 0 {
		cfg.Session.ExpireMinutes = 120
	}
}
