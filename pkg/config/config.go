// Package config loads smartcache configuration from a YAML file and
// environment variables. File values override defaults, environment
// variables override both.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/civicpulse/smartcache/pkg/cache"
	"github.com/civicpulse/smartcache/pkg/observability"
)

// RedisConfig defines the Redis connection shared by the sync transports
type RedisConfig struct {
	Address      string        `mapstructure:"address"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// SyncConfig selects how invalidations reach sibling processes
type SyncConfig struct {
	// Transport is one of "none", "pubsub" or "stream". Pub/sub delivers
	// instantly but loses events published while a sibling is disconnected;
	// stream trades latency for catch-up delivery.
	Transport string `mapstructure:"transport"`

	// StreamMaxLen caps the Redis stream when Transport is "stream"
	StreamMaxLen int64 `mapstructure:"stream_max_len"`

	// PollInterval is the stream read period when Transport is "stream"
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// MetricsConfig controls the Prometheus stats exporter
type MetricsConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	ExportInterval time.Duration `mapstructure:"export_interval"`
}

// Config holds the complete application configuration
type Config struct {
	Environment string                      `mapstructure:"environment"`
	Cache       cache.Config                `mapstructure:"cache"`
	Redis       RedisConfig                 `mapstructure:"redis"`
	Sync        SyncConfig                  `mapstructure:"sync"`
	Metrics     MetricsConfig               `mapstructure:"metrics"`
	Tracing     observability.TracingConfig `mapstructure:"tracing"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	configFile := os.Getenv("SMARTCACHE_CONFIG_FILE")
	if configFile == "" {
		configFile = "configs/config.yaml"
	}
	v.SetConfigFile(configFile)

	// Environment variables prefixed with SMARTCACHE_ override file values,
	// e.g. SMARTCACHE_CACHE_MAX_ENTRIES=5000
	v.SetEnvPrefix("SMARTCACHE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unprefixed variables commonly set in Docker environments
	_ = v.BindEnv("redis.address", "REDIS_ADDR")
	_ = v.BindEnv("redis.address", "REDIS_ADDRESS")

	v.AllowEmptyEnv(true)

	if err := v.ReadInConfig(); err != nil {
		// The config file is optional; defaults and environment variables
		// are enough to run.
		if _, statErr := os.Stat(configFile); !os.IsNotExist(statErr) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	expandEnvReferences(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// expandEnvReferences rewrites ${VAR} and ${VAR:-default} references in
// string values so config files can point at environment-specific hosts.
func expandEnvReferences(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		value := v.GetString(key)
		if value == "" || !strings.Contains(value, "${") {
			continue
		}
		if expanded := expandEnvVars(value); expanded != value {
			v.Set(key, expanded)
		}
	}
}

func expandEnvVars(value string) string {
	result := value

	for {
		start := strings.Index(result, "${")
		if start == -1 {
			break
		}
		end := strings.Index(result[start:], "}")
		if end == -1 {
			break
		}
		end += start

		ref := result[start+2 : end]

		var envVar, defaultVal string
		if strings.Contains(ref, ":-") {
			parts := strings.SplitN(ref, ":-", 2)
			envVar = parts[0]
			defaultVal = parts[1]
		} else {
			envVar = ref
		}

		envVal := os.Getenv(envVar)
		if envVal == "" {
			envVal = defaultVal
		}

		result = result[:start] + envVal + result[end+1:]
	}

	return result
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "dev")

	// Cache defaults
	v.SetDefault("cache.max_size", 100*1024*1024) // 100MB
	v.SetDefault("cache.max_entries", 10000)
	v.SetDefault("cache.default_ttl", 5*time.Minute)
	v.SetDefault("cache.eviction_policy", "lru")
	v.SetDefault("cache.cleanup_interval", time.Minute)
	v.SetDefault("cache.compression_threshold", 1024)
	v.SetDefault("cache.compression_level", 1)
	v.SetDefault("cache.enable_sync", false)
	v.SetDefault("cache.sync_buffer", 256)
	v.SetDefault("cache.event_buffer", 64)
	v.SetDefault("cache.namespace", "smartcache")

	// Redis defaults
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)

	// Sync defaults
	v.SetDefault("sync.transport", "pubsub")
	v.SetDefault("sync.stream_max_len", 1024)
	v.SetDefault("sync.poll_interval", time.Second)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.export_interval", 30*time.Second)

	// Tracing defaults
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "smartcache")
	v.SetDefault("tracing.endpoint", "")
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == "prod" || c.Environment == "production"
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == "dev" || c.Environment == "development"
}
