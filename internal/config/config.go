package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the env-driven runtime configuration. Load reads a .env file
// when present, then the process environment.
type Config struct {
	AppName string
	Env     string
	Host    string
	Port    int
	Version string

	LogLevel string

	DBDriver     string // "postgres" or "sqlite"
	DatabaseURL  string
	SQLitePath   string
	DBPoolSize   int
	StoreTimeout time.Duration

	VerifySecret   string
	InternalSecret string

	CORSOrigins []string

	HeartbeatInterval time.Duration
	AuthTimeout       time.Duration
	SendBuffer        int

	ProfileDirectoryURL string
	ProfileTimeout      time.Duration

	RetentionEnabled  bool
	RetentionInterval time.Duration
}

func Load() (*Config, error) {
	// Missing .env is fine; the environment wins either way.
	_ = godotenv.Load()

	dbHost := getEnv("POSTGRES_HOST", "localhost")
	dbPort := getEnv("POSTGRES_PORT", "5432")
	dbUser := getEnv("POSTGRES_USER", "postgres")
	dbPass := getEnv("POSTGRES_PASSWORD", "postgres")
	dbName := getEnv("POSTGRES_DB", "parley")
	dbSSL := getEnv("POSTGRES_SSLMODE", "disable")

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(dbUser, dbPass),
		Host:     fmt.Sprintf("%s:%s", dbHost, dbPort),
		Path:     dbName,
		RawQuery: "sslmode=" + dbSSL,
	}

	cfg := &Config{
		AppName: getEnv("APP_NAME", "Parley API"),
		Env:     getEnv("APP_ENV", "development"),
		Host:    getEnv("HTTP_HOST", "0.0.0.0"),
		Port:    getEnvAsInt("PORT", 8080),
		Version: getEnv("SERVICE_VERSION", "dev"),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		DBDriver:     getEnv("DB_DRIVER", "postgres"),
		DatabaseURL:  u.String(),
		SQLitePath:   getEnv("SQLITE_PATH", "parley.db"),
		DBPoolSize:   getEnvAsInt("DB_POOL_SIZE", 20),
		StoreTimeout: getEnvAsDuration("DB_TIMEOUT_SECONDS", 5*time.Second),

		VerifySecret:   os.Getenv("AUTH_VERIFY_SECRET"),
		InternalSecret: os.Getenv("AUTH_INTERNAL_SECRET"),

		HeartbeatInterval: getEnvAsDuration("WS_HEARTBEAT_SECONDS", 54*time.Second),
		AuthTimeout:       getEnvAsDuration("WS_AUTH_TIMEOUT_SECONDS", 10*time.Second),
		SendBuffer:        getEnvAsInt("WS_SEND_BUFFER", 256),

		ProfileDirectoryURL: getEnv("PROFILE_DIRECTORY_URL", ""),
		ProfileTimeout:      getEnvAsDuration("PROFILE_TIMEOUT_SECONDS", 5*time.Second),

		RetentionEnabled:  getEnvAsBool("RETENTION_ENABLED", false),
		RetentionInterval: time.Duration(getEnvAsInt("RETENTION_INTERVAL_MINUTES", 60)) * time.Minute,
	}

	cors := getEnv("CORS_ORIGINS", "")
	if cors != "" {
		parts := strings.Split(cors, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		cfg.CORSOrigins = parts
	} else {
		cfg.CORSOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}

	if cfg.VerifySecret == "" {
		return nil, fmt.Errorf("AUTH_VERIFY_SECRET is required")
	}
	switch cfg.DBDriver {
	case "postgres", "sqlite":
	default:
		return nil, fmt.Errorf("DB_DRIVER must be postgres or sqlite, got %q", cfg.DBDriver)
	}

	return cfg, nil
}

// DSN returns the connection string for the configured driver.
func (c *Config) DSN() string {
	if c.DBDriver == "sqlite" {
		return c.SQLitePath
	}
	return c.DatabaseURL
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvAsInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvAsBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvAsDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return time.Duration(i) * time.Second
		}
	}
	return def
}
