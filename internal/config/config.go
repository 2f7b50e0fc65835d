package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	AuthModeJWT    = "jwt"
	AuthModeHeader = "header"
)

type Config struct {
	// Server
	Port string
	Env  string

	// ProgressPal API
	APIURL     string
	APITimeout time.Duration

	// Identity
	AuthMode  string
	JWTSecret string

	// CLI identity
	UserID   string
	APIToken string

	// Redis (optional; in-memory stores when empty)
	RedisURL string

	// Live session
	SnapshotTTL       time.Duration
	UndoWindow        time.Duration
	TickInterval      time.Duration
	MutationRateLimit int

	// Logging
	LogLevel  string
	LogFormat string

	// Frontend
	FrontendURL string
}

// Load reads the BFF server configuration. It panics when AUTH_MODE is jwt
// and JWT_SECRET is missing. Production servers always log JSON.
func Load() *Config {
	cfg := load()
	if cfg.IsProduction() {
		cfg.LogFormat = "json"
	}

	switch cfg.AuthMode {
	case AuthModeJWT:
		cfg.JWTSecret = mustGetEnv("JWT_SECRET")
	case AuthModeHeader:
	default:
		panic(fmt.Sprintf("unsupported AUTH_MODE %q", cfg.AuthMode))
	}

	return cfg
}

// LoadClient reads the configuration used by the CLI. Identity comes from
// PROGRESSPAL_USER_ID / PROGRESSPAL_TOKEN instead of a verified request.
func LoadClient() *Config {
	cfg := load()
	cfg.UserID = getEnvOrDefault("PROGRESSPAL_USER_ID", "")
	cfg.APIToken = getEnvOrDefault("PROGRESSPAL_TOKEN", "")
	return cfg
}

func load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	return &Config{
		Port:              getEnvOrDefault("PORT", "8081"),
		Env:               getEnvOrDefault("ENV", "development"),
		APIURL:            strings.TrimRight(getEnvOrDefault("PROGRESSPAL_API_URL", "http://localhost:8080/api"), "/"),
		APITimeout:        time.Duration(getEnvAsIntOrDefault("API_TIMEOUT_SECONDS", 10)) * time.Second,
		AuthMode:          strings.ToLower(getEnvOrDefault("AUTH_MODE", AuthModeJWT)),
		RedisURL:          getEnvOrDefault("REDIS_URL", ""),
		SnapshotTTL:       time.Duration(getEnvAsIntOrDefault("SNAPSHOT_TTL_SECONDS", 3600)) * time.Second,
		UndoWindow:        time.Duration(getEnvAsIntOrDefault("UNDO_WINDOW_SECONDS", 10)) * time.Second,
		TickInterval:      time.Duration(getEnvAsIntOrDefault("TICK_INTERVAL_MS", 1000)) * time.Millisecond,
		MutationRateLimit: getEnvAsIntOrDefault("MUTATION_RATE_LIMIT", 60),
		LogLevel:          getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:         getEnvOrDefault("LOG_FORMAT", "console"),
		FrontendURL:       getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),
	}
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil || n <= 0 {
		return defaultVal
	}
	return n
}
