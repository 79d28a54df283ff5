/*
Package config loads server configuration.

SOURCES (later wins):
  1. Defaults below
  2. config.yaml in ./config or . (or the file passed with -config)
  3. Environment, prefixed REWARDS_ with dots as underscores:
       REWARDS_SERVER_ADDRESS=:9090
       REWARDS_IDENTITY_JWT_SECRET=...

A missing config file is not an error; defaults plus environment are
enough to run locally.
*/
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
	Store    StoreConfig    `mapstructure:"store"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Identity IdentityConfig `mapstructure:"identity"`
	Oracle   OracleConfig   `mapstructure:"oracle"`
	Log      LogConfig      `mapstructure:"log"`
	Rewards  RewardsConfig  `mapstructure:"rewards"`
}

type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`

	// RateLimitPerMinute bounds reward actions per user. 0 disables it.
	RateLimitPerMinute int `mapstructure:"rate_limit_per_minute"`
}

type StoreConfig struct {
	// Path is the SQLite file. ":memory:" keeps everything in process.
	Path string `mapstructure:"path"`
}

// RedisConfig is optional; with an empty address captcha answers are
// kept in process memory.
type RedisConfig struct {
	Address    string        `mapstructure:"address"`
	Password   string        `mapstructure:"password"`
	DB         int           `mapstructure:"db"`
	CaptchaTTL time.Duration `mapstructure:"captcha_ttl"`
}

type IdentityConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

// OracleConfig selects the captcha oracle. Mode is "challenge" (local
// images) or "generative" (hosted model at Endpoint).
type OracleConfig struct {
	Mode     string        `mapstructure:"mode"`
	Endpoint string        `mapstructure:"endpoint"`
	Model    string        `mapstructure:"model"`
	APIKey   string        `mapstructure:"api_key"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type RewardsConfig struct {
	// CatalogPath points at a JSON catalog. Empty means built-in defaults.
	CatalogPath string `mapstructure:"catalog_path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000", "http://localhost:9002"})
	v.SetDefault("server.rate_limit_per_minute", 120)

	v.SetDefault("store.path", "./rewards.db")

	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.captcha_ttl", 10*time.Minute)

	v.SetDefault("identity.jwt_secret", "")
	v.SetDefault("identity.issuer", "")

	v.SetDefault("oracle.mode", "challenge")
	v.SetDefault("oracle.endpoint", "")
	v.SetDefault("oracle.model", "")
	v.SetDefault("oracle.api_key", "")
	v.SetDefault("oracle.timeout", 10*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.path", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 7)
	v.SetDefault("log.compress", false)

	v.SetDefault("rewards.catalog_path", "")
}

// Load reads configuration. An empty path searches ./config and . for
// config.yaml.
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

	v.SetEnvPrefix("REWARDS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
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

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if c.Identity.JWTSecret == "" {
		return errors.New("identity.jwt_secret is required")
	}
	switch c.Oracle.Mode {
	case "challenge":
	case "generative":
		if c.Oracle.Endpoint == "" {
			return errors.New("oracle.endpoint is required in generative mode")
		}
	default:
		return fmt.Errorf("oracle.mode %q is not one of challenge, generative", c.Oracle.Mode)
	}
	if c.Store.Path == "" {
		return errors.New("store.path is required")
	}
	return nil
}
