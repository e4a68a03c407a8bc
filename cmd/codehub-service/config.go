package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"codehub/internal/common/cache"
	"codehub/internal/common/db"
	"codehub/internal/common/http/middleware"
	"codehub/internal/common/mq"
	"codehub/internal/common/storage"
	"codehub/internal/execution"
	"codehub/internal/submission/controller"
	"codehub/internal/submission/service"
	"codehub/pkg/utils/logger"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8080"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 60 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// DatabaseConfig selects the SQL driver.
type DatabaseConfig struct {
	Driver string        `yaml:"driver"` // mysql or postgres
	DSN    string        `yaml:"dsn"`
	Pool   db.PoolConfig `yaml:"pool"`
}

// EvaluationConfig holds submission and evaluation settings.
type EvaluationConfig struct {
	DailyLimit int `yaml:"dailyLimit"`
	// Timezone is an IANA name fixing where the submission day starts.
	Timezone          string                  `yaml:"timezone"`
	MaxCodeBytes      int                     `yaml:"maxCodeBytes"`
	MaxConcurrent     int64                   `yaml:"maxConcurrent"`
	SlotWait          time.Duration           `yaml:"slotWait"`
	StrictLanguages   bool                    `yaml:"strictLanguages"`
	PollAttempts      int                     `yaml:"pollAttempts"`
	PollInterval      time.Duration           `yaml:"pollInterval"`
	ProgressRetention time.Duration           `yaml:"progressRetention"`
	Timeouts          service.TimeoutConfig   `yaml:"timeouts"`
	Stream            controller.StreamConfig `yaml:"stream"`
}

// CacheConfig holds cache-aside TTLs.
type CacheConfig struct {
	ProblemTTL     time.Duration `yaml:"problemTTL"`
	LeaderboardTTL time.Duration `yaml:"leaderboardTTL"`
}

// ArchiveConfig enables source archiving to object storage.
type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bucket  string `yaml:"bucket"`
	Prefix  string `yaml:"prefix"`
}

// EventsConfig enables finished-submission events.
type EventsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Topic   string `yaml:"topic"`
}

// AppConfig holds codehub-service configuration.
type AppConfig struct {
	Server     ServerConfig           `yaml:"server"`
	Logger     logger.Config          `yaml:"logger"`
	Auth       middleware.AuthConfig  `yaml:"auth"`
	Database   DatabaseConfig         `yaml:"database"`
	Redis      cache.RedisConfig      `yaml:"redis"`
	Kafka      mq.KafkaConfig         `yaml:"kafka"`
	MinIO      storage.MinIOConfig    `yaml:"minio"`
	Judge0     execution.Judge0Config `yaml:"judge0"`
	Evaluation EvaluationConfig       `yaml:"evaluation"`
	Cache      CacheConfig            `yaml:"cache"`
	Archive    ArchiveConfig          `yaml:"archive"`
	Events     EventsConfig           `yaml:"events"`

	location *time.Location
}

// Location returns the parsed evaluation timezone.
func (c *AppConfig) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

// loadEnvFile loads KEY=VALUE pairs into the process environment. A missing
// file is not an error; variables already set win.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file failed: %w", err)
	}
	return nil
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path, envFile string) (*AppConfig, error) {
	if err := loadEnvFile(envFile); err != nil {
		return nil, err
	}
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}

	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "mysql"
	}
	if _, ok := db.ParseDialect(cfg.Database.Driver); !ok {
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}

	if cfg.Judge0.BaseURL == "" {
		return nil, fmt.Errorf("judge0 baseURL is required")
	}

	if cfg.Evaluation.DailyLimit == 0 {
		cfg.Evaluation.DailyLimit = service.DefaultDailyLimit
	}
	if cfg.Evaluation.MaxCodeBytes == 0 {
		cfg.Evaluation.MaxCodeBytes = 64 * 1024
	}
	if cfg.Evaluation.MaxConcurrent == 0 {
		cfg.Evaluation.MaxConcurrent = 16
	}
	if cfg.Evaluation.SlotWait == 0 {
		cfg.Evaluation.SlotWait = 10 * time.Second
	}
	if cfg.Evaluation.PollAttempts == 0 {
		cfg.Evaluation.PollAttempts = execution.DefaultPollAttempts
	}
	if cfg.Evaluation.PollInterval == 0 {
		cfg.Evaluation.PollInterval = execution.DefaultPollInterval
	}
	if cfg.Evaluation.ProgressRetention == 0 {
		cfg.Evaluation.ProgressRetention = time.Minute
	}
	if cfg.Evaluation.Timeouts.DB == 0 {
		cfg.Evaluation.Timeouts.DB = 3 * time.Second
	}
	if cfg.Evaluation.Timeouts.Storage == 0 {
		cfg.Evaluation.Timeouts.Storage = 5 * time.Second
	}
	if cfg.Evaluation.Timeouts.MQ == 0 {
		cfg.Evaluation.Timeouts.MQ = 3 * time.Second
	}
	if cfg.Evaluation.Timezone == "" {
		cfg.Evaluation.Timezone = "UTC"
	}
	loc, err := time.LoadLocation(cfg.Evaluation.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid evaluation timezone %q: %w", cfg.Evaluation.Timezone, err)
	}
	cfg.location = loc

	if cfg.Cache.ProblemTTL == 0 {
		cfg.Cache.ProblemTTL = 30 * time.Minute
	}
	if cfg.Cache.LeaderboardTTL == 0 {
		cfg.Cache.LeaderboardTTL = 5 * time.Minute
	}

	if cfg.Archive.Enabled {
		if cfg.Archive.Bucket == "" {
			cfg.Archive.Bucket = cfg.MinIO.Bucket
		}
		if cfg.MinIO.Endpoint == "" || cfg.Archive.Bucket == "" {
			return nil, fmt.Errorf("archive requires minio endpoint and bucket")
		}
	}
	if cfg.Events.Enabled {
		if len(cfg.Kafka.Brokers) == 0 {
			return nil, fmt.Errorf("events require kafka brokers")
		}
		if cfg.Events.Topic == "" {
			cfg.Events.Topic = service.DefaultFinishedTopic
		}
	}
	return &cfg, nil
}
