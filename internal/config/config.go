// Package config loads the svve service configuration from environment-named
// YAML files with ${VAR} substitution.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the svve service configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Backend   BackendConfig   `yaml:"backend"`
	Redis     RedisConfig     `yaml:"redis"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Filter    FilterConfig    `yaml:"filter"`
	Queue     QueueConfig     `yaml:"queue"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// BackendConfig selects the retrieval backend driver.
type BackendConfig struct {
	Driver    string `yaml:"driver"` // memory, redis, postgres (default: memory)
	Dimension int    `yaml:"dimension"`
}

// RedisConfig holds Redis connection settings, shared by the redis backend
// and the job queue.
type RedisConfig struct {
	Addrs               []string `yaml:"addrs"`
	Username            string   `yaml:"username"`
	Password            string   `yaml:"password"`
	DB                  int      `yaml:"db"`
	KeyPrefix           string   `yaml:"key_prefix"`
	ReadinessTimeoutSec int      `yaml:"readiness_timeout_sec"`
}

// PostgresConfig holds the pgvector repository settings.
type PostgresConfig struct {
	DSN                string `yaml:"dsn"`
	Table              string `yaml:"table"`
	PoolMin            int    `yaml:"pool_min"`
	PoolMax            int    `yaml:"pool_max"`
	ConnectTimeoutMS   int    `yaml:"connect_timeout_ms"`
	StatementTimeoutMS int    `yaml:"statement_timeout_ms"`
}

// EmbeddingConfig holds the OpenAI-compatible embedding provider settings.
type EmbeddingConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
}

// FilterConfig holds the external relevance-filter endpoint settings.
// An empty URL disables the filter stage.
type FilterConfig struct {
	URL         string `yaml:"url"`
	TimeoutMS   int    `yaml:"timeout_ms"`
	AuthToken   string `yaml:"auth_token"`
	Model       string `yaml:"model"`
	Concurrency int    `yaml:"concurrency"`
}

// QueueConfig holds the Redis Streams job queue settings.
type QueueConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Stream        string `yaml:"stream"`
	ConsumerGroup string `yaml:"consumer_group"`
	Consumer      string `yaml:"consumer"`
	BlockMS       int    `yaml:"block_ms"`
	RejectAtDepth int    `yaml:"reject_at_depth"`
	ResultTTLSec  int    `yaml:"result_ttl_sec"`
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Backend.Driver == "" {
		c.Backend.Driver = "memory"
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "svve:"
	}
	if c.Redis.ReadinessTimeoutSec <= 0 {
		c.Redis.ReadinessTimeoutSec = 10
	}
	if c.Postgres.Table == "" {
		c.Postgres.Table = "svve_documents"
	}
	if c.Postgres.PoolMin <= 0 {
		c.Postgres.PoolMin = 1
	}
	if c.Postgres.PoolMax < c.Postgres.PoolMin {
		c.Postgres.PoolMax = c.Postgres.PoolMin * 4
	}
	if c.Postgres.ConnectTimeoutMS <= 0 {
		c.Postgres.ConnectTimeoutMS = 3000
	}
	if c.Postgres.StatementTimeoutMS <= 0 {
		c.Postgres.StatementTimeoutMS = 15000
	}
	if c.Filter.TimeoutMS <= 0 {
		c.Filter.TimeoutMS = 10000
	}
	if c.Filter.Concurrency <= 0 {
		c.Filter.Concurrency = 4
	}
	if c.Queue.Stream == "" {
		c.Queue.Stream = "svve:jobs"
	}
	if c.Queue.ConsumerGroup == "" {
		c.Queue.ConsumerGroup = "svve-workers"
	}
	if c.Queue.Consumer == "" {
		c.Queue.Consumer = "worker-1"
	}
	if c.Queue.BlockMS <= 0 {
		c.Queue.BlockMS = 5000
	}
	if c.Queue.RejectAtDepth <= 0 {
		c.Queue.RejectAtDepth = 1000
	}
	if c.Queue.ResultTTLSec <= 0 {
		c.Queue.ResultTTLSec = 3600
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Backend.Dimension <= 0 {
		return fmt.Errorf("backend.dimension must be positive, got %d", c.Backend.Dimension)
	}

	switch c.Backend.Driver {
	case "memory":
	case "redis":
		if len(c.Redis.Addrs) == 0 {
			return fmt.Errorf("redis.addrs is required for the redis backend")
		}
	case "postgres":
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			return fmt.Errorf("postgres.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("backend.driver must be memory, redis or postgres, got %q", c.Backend.Driver)
	}

	if c.Queue.Enabled && len(c.Redis.Addrs) == 0 {
		return fmt.Errorf("redis.addrs is required when the job queue is enabled")
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
