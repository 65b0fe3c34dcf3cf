// Package config loads service configuration from defaults, an optional
// YAML file and ATTENDANCE_* environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"db"`
	Log      LogConfig      `mapstructure:"log"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Sweep    SweepConfig    `mapstructure:"sweep"`
	Recalc   RecalcConfig   `mapstructure:"recalc"`
	Redis    RedisConfig    `mapstructure:"redis"`
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	LoadDemo       bool          `mapstructure:"load_demo"`
}

func (c ServerConfig) Addr() string { return fmt.Sprintf(":%d", c.Port) }

type DatabaseConfig struct {
	// Path of the SQLite database file; ":memory:" for a throwaway database.
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json | console
}

type EngineConfig struct {
	// Timezone in which work dates and day-local clock times are interpreted.
	Timezone string `mapstructure:"timezone"`
}

func (c EngineConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

type SweepConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Interval     time.Duration `mapstructure:"interval"`
	LookbackDays int           `mapstructure:"lookback_days"`
	Workers      int           `mapstructure:"workers"`
	LockTTL      time.Duration `mapstructure:"lock_ttl"`
}

type RecalcConfig struct {
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff"`
}

// RedisConfig enables the distributed sweep lock. An empty Addr disables it.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (c RedisConfig) Enabled() bool { return c.Addr != "" }

// RabbitMQConfig enables asynchronous recalculation. An empty DSN disables it.
type RabbitMQConfig struct {
	DSN            string        `mapstructure:"dsn"`
	Queue          string        `mapstructure:"queue"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
	Prefetch       int           `mapstructure:"prefetch"`
}

func (c RabbitMQConfig) Enabled() bool { return c.DSN != "" }

// Load reads configuration. path may be empty, in which case config.yaml is
// looked up in ./config and the working directory; a missing file is fine.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("ATTENDANCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:5173", "http://localhost:3000"})
	v.SetDefault("server.load_demo", false)

	v.SetDefault("db.path", "attendance.db")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("engine.timezone", "UTC")

	v.SetDefault("sweep.enabled", true)
	v.SetDefault("sweep.interval", "1h")
	v.SetDefault("sweep.lookback_days", 2)
	v.SetDefault("sweep.workers", 4)
	v.SetDefault("sweep.lock_ttl", "30m")

	v.SetDefault("recalc.retry_attempts", 3)
	v.SetDefault("recalc.retry_backoff", "200ms")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("rabbitmq.dsn", "")
	v.SetDefault("rabbitmq.queue", "recalculation_queue")
	v.SetDefault("rabbitmq.publish_timeout", "5s")
	v.SetDefault("rabbitmq.prefetch", 8)
}

// Validate checks the settings the services cannot start without.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return errors.New("config: db.path must not be empty")
	}
	if _, err := c.Engine.Location(); err != nil {
		return fmt.Errorf("config: engine.timezone: %w", err)
	}
	if c.Sweep.Workers < 1 {
		return fmt.Errorf("config: sweep.workers must be at least 1, got %d", c.Sweep.Workers)
	}
	if c.Sweep.Enabled && c.Sweep.Interval <= 0 {
		return errors.New("config: sweep.interval must be positive")
	}
	if c.Sweep.LookbackDays < 1 {
		return fmt.Errorf("config: sweep.lookback_days must be at least 1, got %d", c.Sweep.LookbackDays)
	}
	if c.Recalc.RetryAttempts < 1 {
		return fmt.Errorf("config: recalc.retry_attempts must be at least 1, got %d", c.Recalc.RetryAttempts)
	}
	if c.RabbitMQ.Enabled() && c.RabbitMQ.Queue == "" {
		return errors.New("config: rabbitmq.queue must not be empty when rabbitmq.dsn is set")
	}
	return nil
}
