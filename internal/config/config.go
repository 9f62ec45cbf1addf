// Package config loads narrator settings from an optional YAML file and
// NARRATOR_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. NARRATOR_HTTP_ADDR.
const EnvPrefix = "NARRATOR"

// Config is the full runtime configuration.
type Config struct {
	Database  Database  `mapstructure:"database"`
	Processor Processor `mapstructure:"processor"`
	HTTP      HTTP      `mapstructure:"http"`
	Push      Push      `mapstructure:"push"`
	Log       Log       `mapstructure:"log"`
}

type Database struct {
	Path        string `mapstructure:"path"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

type Processor struct {
	Limit         int           `mapstructure:"limit"`
	MaxMs         int           `mapstructure:"max_ms"`
	StaleAfter    time.Duration `mapstructure:"stale_after"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type HTTP struct {
	Addr string `mapstructure:"addr"`
	// Token guards the operator endpoints. Empty disables them.
	Token        string  `mapstructure:"token"`
	ProcessRPS   float64 `mapstructure:"process_rps"`
	ProcessBurst int     `mapstructure:"process_burst"`
}

// Push transports.
const (
	TransportLog   = "log"
	TransportRedis = "redis"
)

type Push struct {
	Transport   string `mapstructure:"transport"`
	RedisAddr   string `mapstructure:"redis_addr"`
	RedisPrefix string `mapstructure:"redis_prefix"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "narrator.db")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("processor.limit", 50)
	v.SetDefault("processor.max_ms", 1500)
	v.SetDefault("processor.stale_after", 10*time.Minute)
	v.SetDefault("processor.sweep_interval", 30*time.Second)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.token", "")
	v.SetDefault("http.process_rps", 5.0)
	v.SetDefault("http.process_burst", 10)
	v.SetDefault("push.transport", TransportLog)
	v.SetDefault("push.redis_addr", "localhost:6379")
	v.SetDefault("push.redis_prefix", "narrator:push")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load reads path (if non-empty) and applies environment overrides on top of
// the defaults. A missing file named explicitly is an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) {
				return nil, fmt.Errorf("config file %s not found", path)
			}
			return nil, fmt.Errorf("read config %s: %w", path, err)
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

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Database.Path) == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if c.Processor.Limit < 0 || c.Processor.MaxMs < 0 {
		errs = append(errs, errors.New("processor.limit and processor.max_ms must not be negative"))
	}
	if c.Processor.StaleAfter < 0 {
		errs = append(errs, errors.New("processor.stale_after must not be negative"))
	}
	if c.HTTP.ProcessRPS <= 0 || c.HTTP.ProcessBurst <= 0 {
		errs = append(errs, errors.New("http.process_rps and http.process_burst must be positive"))
	}
	switch c.Push.Transport {
	case TransportLog:
	case TransportRedis:
		if c.Push.RedisAddr == "" {
			errs = append(errs, errors.New("push.redis_addr is required for the redis transport"))
		}
	default:
		errs = append(errs, fmt.Errorf("push.transport %q: want %s or %s", c.Push.Transport, TransportLog, TransportRedis))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
