// ABOUTME: Configuration loading for the asset catalog
// ABOUTME: Reads YAML files and ASSETCATALOG_* environment variables through viper

package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/zeebo/errs"
	"gopkg.in/yaml.v3"
)

// Error is the class of configuration errors.
var Error = errs.Class("config")

// EnvPrefix prefixes environment overrides, e.g. ASSETCATALOG_SQL_DSN.
const EnvPrefix = "assetcatalog"

// Backend names.
const (
	BackendSQL = "sql"
	BackendAVU = "avu"
)

// Config is the full process configuration.
type Config struct {
	Backend string        `mapstructure:"backend" yaml:"backend"`
	SQL     SQLConfig     `mapstructure:"sql" yaml:"sql"`
	AVU     AVUConfig     `mapstructure:"avu" yaml:"avu"`
	Cache   CacheConfig   `mapstructure:"cache" yaml:"cache"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// SQLConfig selects the relational backend's database.
type SQLConfig struct {
	Driver   string `mapstructure:"driver" yaml:"driver"`
	DSN      string `mapstructure:"dsn" yaml:"dsn"`
	PageSize int    `mapstructure:"page_size" yaml:"page_size"`
}

// AVUConfig locates the attribute catalog.
type AVUConfig struct {
	Path           string      `mapstructure:"path" yaml:"path"`
	RootCollection string      `mapstructure:"root_collection" yaml:"root_collection"`
	PageSize       int         `mapstructure:"page_size" yaml:"page_size"`
	Retry          RetryConfig `mapstructure:"retry" yaml:"retry"`
}

// RetryConfig bounds retried catalog writes.
type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval" yaml:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval" yaml:"max_interval"`
}

// CacheConfig enables the redis read-through cache when Address is set.
type CacheConfig struct {
	Address  string        `mapstructure:"address" yaml:"address"`
	Password string        `mapstructure:"password" yaml:"password,omitempty"`
	DB       int           `mapstructure:"db" yaml:"db"`
	TTL      time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// LogConfig configures zerolog.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Pretty bool   `mapstructure:"pretty" yaml:"pretty"`
}

// MetricsConfig configures the observability server. Port 0 disables it.
type MetricsConfig struct {
	Port int `mapstructure:"port" yaml:"port"`
}

var defaults = map[string]any{
	"backend":                    BackendSQL,
	"sql.driver":                 "sqlite3",
	"sql.dsn":                    "assetcatalog.db",
	"sql.page_size":              100,
	"avu.path":                   "assetcatalog.avu",
	"avu.root_collection":        "/catalog",
	"avu.page_size":              100,
	"avu.retry.max_attempts":     20,
	"avu.retry.initial_interval": time.Second,
	"avu.retry.max_interval":     30 * time.Second,
	"cache.address":              "",
	"cache.password":             "",
	"cache.db":                   0,
	"cache.ttl":                  5 * time.Minute,
	"log.level":                  "info",
	"log.pretty":                 false,
	"metrics.port":               0,
}

// New returns a viper instance with defaults and environment overrides set.
func New() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads file, if set, on top of the defaults and environment.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, Error.Wrap(err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, Error.Wrap(err)
	}
	return &cfg, cfg.Validate()
}

// Validate checks the settings the selected backend depends on.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendSQL:
		if c.SQL.DSN == "" {
			return Error.New("sql.dsn is required")
		}
	case BackendAVU:
		if c.AVU.Path == "" {
			return Error.New("avu.path is required")
		}
		if c.AVU.Retry.MaxAttempts < 1 {
			return Error.New("avu.retry.max_attempts must be at least 1")
		}
	default:
		return Error.New("unknown backend %q", c.Backend)
	}
	if c.Cache.TTL < 0 {
		return Error.New("cache.ttl must not be negative")
	}
	return nil
}

// YAML renders the effective configuration.
func (c *Config) YAML() ([]byte, error) {
	data, err := yaml.Marshal(c)
	return data, Error.Wrap(err)
}
