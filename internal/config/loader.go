package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "tcof.yaml"

// EnvFile is the dotenv file read before the environment is applied.
// Variables already set in the environment take precedence over it.
var EnvFile = ".env"

// Load returns a Config using the hierarchy: defaults < YAML < .env < ENV.
// YAML and .env files are optional; missing files are not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < .env < ENV.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	if err := loadDotEnv(EnvFile); err != nil {
		return nil, fmt.Errorf("config dotenv: %w", err)
	}
	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is operator supplied
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadDotEnv exports the variables of path that are not already set.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "TCOF_PORT")
	setString(&cfg.Server.CORSOrigin, "TCOF_CORS_ORIGIN")
	setDuration(&cfg.Server.RequestTimeout, "TCOF_REQUEST_TIMEOUT")
	setBool(&cfg.Server.TrustProxy, "TCOF_TRUST_PROXY")

	setString(&cfg.Database.Driver, "TCOF_DB_DRIVER")
	setString(&cfg.Database.SQLitePath, "TCOF_SQLITE_PATH")

	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "TCOF_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "TCOF_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "TCOF_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "TCOF_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "TCOF_PG_HEALTH_CHECK")

	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.Stream, "TCOF_NATS_STREAM")
	setString(&cfg.Redis.URL, "REDIS_URL")
	setString(&cfg.Redis.Prefix, "TCOF_REDIS_PREFIX")

	setInt64(&cfg.Cache.L1MaxSizeMB, "TCOF_CACHE_L1_SIZE_MB")
	setString(&cfg.Cache.L2, "TCOF_CACHE_L2")
	setString(&cfg.Cache.L2Bucket, "TCOF_CACHE_L2_BUCKET")
	setDuration(&cfg.Cache.L2TTL, "TCOF_CACHE_L2_TTL")

	setString(&cfg.Catalog.Path, "TCOF_CATALOG_PATH")
	setDuration(&cfg.Catalog.TTL, "TCOF_CATALOG_TTL")

	setBool(&cfg.Resolver.PrefixScan, "TCOF_RESOLVER_PREFIX_SCAN")
	setInt(&cfg.Resolver.PrefixScanMaxTasks, "TCOF_RESOLVER_PREFIX_SCAN_MAX_TASKS")
	setInt(&cfg.Resolver.PrefixScanLimit, "TCOF_RESOLVER_PREFIX_SCAN_LIMIT")

	setDuration(&cfg.Idempotency.TTL, "TCOF_IDEMPOTENCY_TTL")

	setFloat(&cfg.RateLimit.Rate, "TCOF_RATE_LIMIT_RATE")
	setInt(&cfg.RateLimit.Burst, "TCOF_RATE_LIMIT_BURST")
	setInt(&cfg.RateLimit.MaxClients, "TCOF_RATE_LIMIT_MAX_CLIENTS")
	setDuration(&cfg.RateLimit.CleanupInterval, "TCOF_RATE_LIMIT_CLEANUP_INTERVAL")
	setDuration(&cfg.RateLimit.MaxIdle, "TCOF_RATE_LIMIT_MAX_IDLE")

	setInt(&cfg.Breaker.MaxFailures, "TCOF_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "TCOF_BREAKER_TIMEOUT")

	setString(&cfg.Logging.Level, "TCOF_LOG_LEVEL")
	setString(&cfg.Logging.Service, "TCOF_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "TCOF_LOG_ASYNC")
	setInt(&cfg.Logging.BufferSize, "TCOF_LOG_BUFFER_SIZE")

	setString(&cfg.Telemetry.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(&cfg.Telemetry.ServiceName, "OTEL_SERVICE_NAME")
	setBool(&cfg.Telemetry.Insecure, "TCOF_OTEL_INSECURE")
}

// validate checks that required fields are set and combinations are possible.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	switch cfg.Database.Driver {
	case "sqlite":
		if cfg.Database.SQLitePath == "" {
			return errors.New("database.sqlite_path is required for the sqlite driver")
		}
	case "postgres":
		if cfg.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required")
		}
		if cfg.Postgres.MaxConns < 1 {
			return errors.New("postgres.max_conns must be >= 1")
		}
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", cfg.Database.Driver)
	}
	switch cfg.Cache.L2 {
	case "":
	case "nats":
		if cfg.NATS.URL == "" {
			return errors.New("cache.l2 nats requires nats.url")
		}
	case "redis":
		if cfg.Redis.URL == "" {
			return errors.New("cache.l2 redis requires redis.url")
		}
	default:
		return fmt.Errorf("cache.l2 must be empty, nats or redis, got %q", cfg.Cache.L2)
	}
	if cfg.Cache.L1MaxSizeMB < 1 {
		return errors.New("cache.l1_max_size_mb must be >= 1")
	}
	if cfg.Resolver.PrefixScan && (cfg.Resolver.PrefixScanLimit < 1 || cfg.Resolver.PrefixScanMaxTasks < 1) {
		return errors.New("resolver prefix scan limits must be >= 1")
	}
	if cfg.RateLimit.Rate < 0 {
		return errors.New("rate_limit.rate must be >= 0")
	}
	if cfg.RateLimit.Rate > 0 && (cfg.RateLimit.Burst < 1 || cfg.RateLimit.MaxClients < 1) {
		return errors.New("rate_limit.burst and rate_limit.max_clients must be >= 1")
	}
	if cfg.RateLimit.Rate > 0 && (cfg.RateLimit.CleanupInterval <= 0 || cfg.RateLimit.MaxIdle <= 0) {
		return errors.New("rate_limit cleanup_interval and max_idle must be > 0")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
