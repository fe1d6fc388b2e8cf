// AngelaMos | 2026
// config.go

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"runtime"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const minSecretLength = 32

type Config struct {
	App       AppConfig       `koanf:"app"`
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Redis     RedisConfig     `koanf:"redis"`
	Auth      AuthConfig      `koanf:"auth"`
	Password  PasswordConfig  `koanf:"password"`
	Cleanup   CleanupConfig   `koanf:"cleanup"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	CORS      CORSConfig      `koanf:"cors"`
	Log       LogConfig       `koanf:"log"`
	Otel      OtelConfig      `koanf:"otel"`
	Metrics   MetricsConfig   `koanf:"metrics"`
}

type AppConfig struct {
	Name        string `koanf:"name"`
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
}

type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL              string        `koanf:"url"`
	MaxOpenConns     int           `koanf:"max_open_conns"`
	MaxIdleConns     int           `koanf:"max_idle_conns"`
	ConnMaxLifetime  time.Duration `koanf:"conn_max_lifetime"`
	ConnMaxIdleTime  time.Duration `koanf:"conn_max_idle_time"`
	StatementTimeout time.Duration `koanf:"statement_timeout"`
	ApplicationName  string        `koanf:"application_name"`
	AutoMigrate      bool          `koanf:"auto_migrate"`
}

type RedisConfig struct {
	URL          string `koanf:"url"`
	PoolSize     int    `koanf:"pool_size"`
	MinIdleConns int    `koanf:"min_idle_conns"`
}

// AuthConfig holds the signing material and token lifetimes. The two
// secrets are process-wide and immutable after Load.
type AuthConfig struct {
	AccessTokenSecret      string        `koanf:"access_token_secret"`
	RefreshTokenSecret     string        `koanf:"refresh_token_secret"`
	AccessTokenTTLSeconds  int           `koanf:"access_token_ttl_seconds"`
	RefreshTokenTTLSeconds int           `koanf:"refresh_token_ttl_seconds"`
	RefreshTokenBytes      int           `koanf:"refresh_token_bytes"`
	Issuer                 string        `koanf:"issuer"`
	Audience               string        `koanf:"audience"`
	StoreTimeout           time.Duration `koanf:"store_timeout"`
	PermissionCacheTTL     time.Duration `koanf:"permission_cache_ttl"`
}

func (a AuthConfig) AccessTokenTTL() time.Duration {
	return time.Duration(a.AccessTokenTTLSeconds) * time.Second
}

func (a AuthConfig) RefreshTokenTTL() time.Duration {
	return time.Duration(a.RefreshTokenTTLSeconds) * time.Second
}

type PasswordConfig struct {
	MinLength        int      `koanf:"min_length"`
	HistoryLimit     int      `koanf:"history_limit"`
	Algorithm        string   `koanf:"algorithm"`
	LegacyAlgorithms []string `koanf:"legacy_algorithms"`
	BcryptCost       int      `koanf:"bcrypt_cost"`
	Argon2Memory     uint32   `koanf:"argon2_memory"`
	Argon2Time       uint32   `koanf:"argon2_time"`
	Argon2Threads    uint8    `koanf:"argon2_threads"`
	Argon2KeyLength  uint32   `koanf:"argon2_key_length"`
	Argon2SaltLength uint32   `koanf:"argon2_salt_length"`
	HashWorkers      int      `koanf:"hash_workers"`
}

type CleanupConfig struct {
	Enabled                 bool          `koanf:"enabled"`
	RefreshTokenInterval    time.Duration `koanf:"refresh_token_interval"`
	PasswordHistoryInterval time.Duration `koanf:"password_history_interval"`
	RevokedRetention        time.Duration `koanf:"revoked_retention"`
	HistoryRetention        time.Duration `koanf:"history_retention"`
	SweepTimeout            time.Duration `koanf:"sweep_timeout"`
	LockTTL                 time.Duration `koanf:"lock_ttl"`
}

type RateLimitConfig struct {
	Requests int           `koanf:"requests"`
	Window   time.Duration `koanf:"window"`
	Burst    int           `koanf:"burst"`
}

type CORSConfig struct {
	AllowedOrigins   []string `koanf:"allowed_origins"`
	AllowedMethods   []string `koanf:"allowed_methods"`
	AllowedHeaders   []string `koanf:"allowed_headers"`
	AllowCredentials bool     `koanf:"allow_credentials"`
	MaxAge           int      `koanf:"max_age"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type OtelConfig struct {
	Endpoint    string  `koanf:"endpoint"`
	ServiceName string  `koanf:"service_name"`
	Enabled     bool    `koanf:"enabled"`
	Insecure    bool    `koanf:"insecure"`
	SampleRate  float64 `koanf:"sample_rate"`
}

type MetricsConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Namespace string `koanf:"namespace"`
}

// Load merges defaults, the optional YAML file and the environment, then
// validates the result. A missing secret is returned as an error so the
// caller can abort startup.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKeyReplacer), nil); err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// LoadDotEnv copies a .env file into the process environment. Variables
// that are already set win. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"app.name":        "ERP Backend",
		"app.version":     "1.0.0",
		"app.environment": "development",

		"server.host":             "0.0.0.0",
		"server.port":             8080,
		"server.read_timeout":     "30s",
		"server.write_timeout":    "30s",
		"server.idle_timeout":     "120s",
		"server.shutdown_timeout": "15s",

		"database.max_open_conns":     25,
		"database.max_idle_conns":     5,
		"database.conn_max_lifetime":  "1h",
		"database.conn_max_idle_time": "30m",
		"database.statement_timeout":  "10s",
		"database.application_name":   "erp-backend",
		"database.auto_migrate":       false,

		"redis.pool_size":      10,
		"redis.min_idle_conns": 5,

		"auth.access_token_ttl_seconds":  7200,
		"auth.refresh_token_ttl_seconds": 604800,
		"auth.refresh_token_bytes":       64,
		"auth.issuer":                    "erp-backend",
		"auth.audience":                  "erp-backend-api",
		"auth.store_timeout":             "5s",
		"auth.permission_cache_ttl":      "5m",

		"password.min_length":         12,
		"password.history_limit":      5,
		"password.algorithm":          "argon2id",
		"password.legacy_algorithms":  []string{},
		"password.bcrypt_cost":        12,
		"password.argon2_memory":      64 * 1024,
		"password.argon2_time":        1,
		"password.argon2_threads":     4,
		"password.argon2_key_length":  32,
		"password.argon2_salt_length": 16,
		"password.hash_workers":       runtime.NumCPU(),

		"cleanup.enabled":                   true,
		"cleanup.refresh_token_interval":    "1h",
		"cleanup.password_history_interval": "24h",
		"cleanup.revoked_retention":         "720h",
		"cleanup.history_retention":         "8760h",
		"cleanup.sweep_timeout":             "2m",
		"cleanup.lock_ttl":                  "5m",

		"rate_limit.requests": 20,
		"rate_limit.window":   "1m",
		"rate_limit.burst":    5,

		"cors.allowed_origins": []string{"http://localhost:3000"},
		"cors.allowed_methods": []string{
			"GET",
			"POST",
			"PUT",
			"PATCH",
			"DELETE",
			"OPTIONS",
		},
		"cors.allowed_headers": []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"X-Request-ID",
		},
		"cors.allow_credentials": true,
		"cors.max_age":           300,

		"log.level":  "info",
		"log.format": "json",

		"otel.enabled":      false,
		"otel.insecure":     true,
		"otel.sample_rate":  0.1,
		"otel.service_name": "erp-backend",

		"metrics.enabled":   true,
		"metrics.namespace": "erp_auth",
	}

	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

var envKeyMap = map[string]string{
	"DATABASE_URL":                   "database.url",
	"DATABASE_AUTO_MIGRATE":          "database.auto_migrate",
	"REDIS_URL":                      "redis.url",
	"ENVIRONMENT":                    "app.environment",
	"HOST":                           "server.host",
	"PORT":                           "server.port",
	"LOG_LEVEL":                      "log.level",
	"LOG_FORMAT":                     "log.format",
	"ACCESS_TOKEN_SECRET":            "auth.access_token_secret",
	"REFRESH_TOKEN_SECRET":           "auth.refresh_token_secret",
	"ACCESS_TOKEN_TTL_SECONDS":       "auth.access_token_ttl_seconds",
	"REFRESH_TOKEN_TTL_SECONDS":      "auth.refresh_token_ttl_seconds",
	"JWT_ISSUER":                     "auth.issuer",
	"JWT_AUDIENCE":                   "auth.audience",
	"AUTH_STORE_TIMEOUT":             "auth.store_timeout",
	"PERMISSION_CACHE_TTL":           "auth.permission_cache_ttl",
	"PASSWORD_MIN_LENGTH":            "password.min_length",
	"PASSWORD_HISTORY_LIMIT":         "password.history_limit",
	"PASSWORD_HASH_ALGORITHM":        "password.algorithm",
	"PASSWORD_BCRYPT_COST":           "password.bcrypt_cost",
	"PASSWORD_HASH_WORKERS":          "password.hash_workers",
	"CLEANUP_ENABLED":                "cleanup.enabled",
	"CLEANUP_REFRESH_TOKEN_INTERVAL": "cleanup.refresh_token_interval",
	"CLEANUP_HISTORY_INTERVAL":       "cleanup.password_history_interval",
	"CLEANUP_REVOKED_RETENTION":      "cleanup.revoked_retention",
	"CLEANUP_HISTORY_RETENTION":      "cleanup.history_retention",
	"RATE_LIMIT_REQUESTS":            "rate_limit.requests",
	"RATE_LIMIT_WINDOW":              "rate_limit.window",
	"RATE_LIMIT_BURST":               "rate_limit.burst",
	"OTEL_ENDPOINT":                  "otel.endpoint",
	"OTEL_EXPORTER_OTLP_ENDPOINT":    "otel.endpoint",
	"OTEL_SERVICE_NAME":              "otel.service_name",
	"OTEL_ENABLED":                   "otel.enabled",
	"OTEL_INSECURE":                  "otel.insecure",
	"OTEL_SAMPLE_RATE":               "otel.sample_rate",
	"METRICS_ENABLED":                "metrics.enabled",
}

func envKeyReplacer(s string) string {
	if mapped, ok := envKeyMap[s]; ok {
		return mapped
	}
	return ""
}

func validate(c *Config) error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if err := validateAuth(c.Auth); err != nil {
		return err
	}

	if err := validatePassword(c.Password); err != nil {
		return err
	}

	if c.Cleanup.Enabled {
		if c.Cleanup.RefreshTokenInterval <= 0 ||
			c.Cleanup.PasswordHistoryInterval <= 0 {
			return fmt.Errorf("cleanup intervals must be positive")
		}
	}

	if c.CORS.AllowCredentials {
		for _, origin := range c.CORS.AllowedOrigins {
			if origin == "*" {
				return fmt.Errorf(
					"CORS wildcard '*' cannot be used with AllowCredentials",
				)
			}
		}
	}

	if c.App.Environment == "production" {
		if c.Otel.Enabled && c.Otel.Insecure {
			return fmt.Errorf("OTEL_INSECURE must be false in production")
		}
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be positive")
	}

	return nil
}

func validateAuth(a AuthConfig) error {
	if a.AccessTokenSecret == "" {
		return fmt.Errorf("ACCESS_TOKEN_SECRET is required")
	}

	if a.RefreshTokenSecret == "" {
		return fmt.Errorf("REFRESH_TOKEN_SECRET is required")
	}

	if len(a.AccessTokenSecret) < minSecretLength {
		return fmt.Errorf("ACCESS_TOKEN_SECRET must be at least %d bytes", minSecretLength)
	}

	if len(a.RefreshTokenSecret) < minSecretLength {
		return fmt.Errorf("REFRESH_TOKEN_SECRET must be at least %d bytes", minSecretLength)
	}

	if a.AccessTokenSecret == a.RefreshTokenSecret {
		return fmt.Errorf("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must differ")
	}

	if a.AccessTokenTTLSeconds <= 0 || a.RefreshTokenTTLSeconds <= 0 {
		return fmt.Errorf("token TTLs must be positive")
	}

	if a.RefreshTokenBytes < 64 {
		return fmt.Errorf("auth.refresh_token_bytes must be at least 64")
	}

	if a.Issuer == "" || a.Audience == "" {
		return fmt.Errorf("JWT_ISSUER and JWT_AUDIENCE are required")
	}

	if a.StoreTimeout <= 0 {
		return fmt.Errorf("auth.store_timeout must be positive")
	}

	return nil
}

func validatePassword(p PasswordConfig) error {
	if p.MinLength < 8 {
		return fmt.Errorf("password.min_length must be at least 8")
	}

	if p.HistoryLimit < 1 {
		return fmt.Errorf("password.history_limit must be at least 1")
	}

	if p.HashWorkers < 1 {
		return fmt.Errorf("password.hash_workers must be at least 1")
	}

	return nil
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
