package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/spec-kit/student-service/internal/auth"
)

// Storage drivers accepted by STORAGE_DRIVER.
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

const developmentSecret = "dev-secret-change-me"

// ErrMissingSecret is returned when SECRET_KEY is empty in production.
var ErrMissingSecret = errors.New("SECRET_KEY must be set in production")

// Config aggregates runtime configuration for the service.
type Config struct {
	App        AppConfig
	Storage    StorageConfig
	Postgres   PostgresConfig
	Mongo      MongoConfig
	Redis      RedisConfig
	Logger     LoggerConfig
	Auth       AuthConfig
	LoginLimit LoginLimitConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	APIPrefix             string
	RequestTimeoutSeconds int
}

// StorageConfig selects the user store backend.
type StorageConfig struct {
	Driver string
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// MongoConfig holds MongoDB connection values.
type MongoConfig struct {
	URI      string
	Database string
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
	// Format is json or console.
	Format string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	SecretKey           string
	Algorithm           string
	AccessExpireMinutes int
	RefreshExpireDays   int
	BcryptCost          int
	CookieSecure        bool
	// AllowRoleSelection lets public registration choose CVHT or ADMIN.
	AllowRoleSelection bool
	// InsecureSecret is set when SECRET_KEY was empty and a development key is in use.
	InsecureSecret bool
}

// LoginLimitConfig throttles repeated failed logins per student code.
type LoginLimitConfig struct {
	Enabled       bool
	MaxAttempts   int
	WindowMinutes int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("PROJECT_NAME", "student-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8000"),
			Version:               getEnv("APP_VERSION", "dev"),
			APIPrefix:             getEnv("API_V1_STR", "/api/v1"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Storage: StorageConfig{
			Driver: strings.ToLower(getEnv("STORAGE_DRIVER", DriverPostgres)),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Mongo: MongoConfig{
			URI:      os.Getenv("DB_URL"),
			Database: getEnv("DB_NAME", "qlsv"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: strings.ToLower(getEnv("LOG_FORMAT", "json")),
		},
		Auth: AuthConfig{
			SecretKey:           os.Getenv("SECRET_KEY"),
			Algorithm:           getEnv("ALGORITHM", auth.DefaultAlgorithm),
			AccessExpireMinutes: getEnvAsInt("ACCESS_EXPIRE", 10),
			RefreshExpireDays:   getEnvAsInt("REFRESH_EXPIRE", 3),
			BcryptCost:          getEnvAsInt("BCRYPT_COST", auth.DefaultBcryptCost),
			CookieSecure:        getEnvAsBool("AUTH_COOKIE_SECURE", false),
			AllowRoleSelection:  getEnvAsBool("AUTH_ALLOW_ROLE_SELECTION", false),
		},
		LoginLimit: LoginLimitConfig{
			Enabled:       getEnvAsBool("LOGIN_LIMIT_ENABLED", true),
			MaxAttempts:   getEnvAsInt("LOGIN_LIMIT_MAX_ATTEMPTS", 5),
			WindowMinutes: getEnvAsInt("LOGIN_LIMIT_WINDOW_MINUTES", 15),
		},
	}

	if cfg.Storage.Driver != DriverPostgres && cfg.Storage.Driver != DriverMongo {
		return nil, fmt.Errorf("invalid STORAGE_DRIVER %q", cfg.Storage.Driver)
	}

	if cfg.Auth.SecretKey == "" {
		if cfg.App.IsProduction() {
			return nil, ErrMissingSecret
		}
		cfg.Auth.SecretKey = developmentSecret
		cfg.Auth.InsecureSecret = true
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// IsProduction reports whether the service runs with a production posture.
func (a AppConfig) IsProduction() bool {
	env := strings.ToLower(a.Env)
	return env == "production" || env == "prod"
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// AccessTTL returns the access token lifetime.
func (a AuthConfig) AccessTTL() time.Duration {
	return time.Duration(a.AccessExpireMinutes) * time.Minute
}

// RefreshTTL returns the refresh token lifetime.
func (a AuthConfig) RefreshTTL() time.Duration {
	return time.Duration(a.RefreshExpireDays) * 24 * time.Hour
}

// TokenConfig converts the settings into token service parameters.
func (a AuthConfig) TokenConfig() auth.TokenConfig {
	return auth.TokenConfig{
		Secret:     a.SecretKey,
		Algorithm:  a.Algorithm,
		AccessTTL:  a.AccessTTL(),
		RefreshTTL: a.RefreshTTL(),
	}
}

// Window returns the failed-login counting window.
func (l LoginLimitConfig) Window() time.Duration {
	return time.Duration(l.WindowMinutes) * time.Minute
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
