// Package config loads strata process configuration with viper.
//
// Settings come from a YAML file and are overridden by STRATA_* environment
// variables, with dots replaced by underscores (STRATA_DYNAMO_TABLE,
// STRATA_REDIS_ADDR, STRATA_LOG_LEVEL).
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/jacentio/strata/store"
)

// Backend names.
const (
	BackendDynamo = "dynamo"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

const (
	configFileName = "strata"
	configFileType = "yaml"
	envPrefix      = "STRATA"
)

// Config is the complete process configuration.
type Config struct {
	Backend string       `mapstructure:"backend"`
	Log     LogConfig    `mapstructure:"log"`
	Dynamo  DynamoConfig `mapstructure:"dynamo"`
	Redis   RedisConfig  `mapstructure:"redis"`

	// Schema is the path of a YAML file declaring kinds. Relative paths
	// are resolved against the directory of the config file.
	Schema string `mapstructure:"schema"`
}

// LogConfig selects the log level and format.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DynamoConfig configures the DynamoDB backend.
type DynamoConfig struct {
	Table            string            `mapstructure:"table"`
	Region           string            `mapstructure:"region"`
	Profile          string            `mapstructure:"profile"`
	Endpoint         string            `mapstructure:"endpoint"`
	Indexes          map[string]string `mapstructure:"indexes"`
	RejectDuplicates bool              `mapstructure:"reject_duplicates"`
	TestMode         bool              `mapstructure:"test_mode"`
	ScanSegments     int               `mapstructure:"scan_segments"`
}

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	Addr       string `mapstructure:"addr"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	MaxRetries int    `mapstructure:"max_retries"`
	TestMode   bool   `mapstructure:"test_mode"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend", BackendDynamo)
	v.SetDefault("schema", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("dynamo.table", "strata")
	v.SetDefault("dynamo.region", "")
	v.SetDefault("dynamo.profile", "")
	v.SetDefault("dynamo.endpoint", "")
	v.SetDefault("dynamo.reject_duplicates", false)
	v.SetDefault("dynamo.test_mode", false)
	v.SetDefault("dynamo.scan_segments", 1)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.max_retries", 5)
	v.SetDefault("redis.test_mode", false)
}

// Load reads the config file at path, or strata.yaml from the working
// directory when path is empty. A missing default file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configFileName)
		v.SetConfigType(configFileType)
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: read config: %w", store.ErrConfiguration, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: decode config: %w", store.ErrConfiguration, err)
	}
	if cfg.Schema != "" && v.ConfigFileUsed() != "" {
		cfg.Schema = resolvePath(v.ConfigFileUsed(), cfg.Schema)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the backend name.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendDynamo, BackendRedis, BackendMemory:
		return nil
	}
	return fmt.Errorf("%w: unknown backend %q (valid: %s, %s, %s)",
		store.ErrConfiguration, c.Backend, BackendDynamo, BackendRedis, BackendMemory)
}
