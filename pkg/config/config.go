// Package config loads runtime configuration from environment variables
// and lending profiles from versioned YAML files.
package config

import (
	"os"
	"time"
)

// Config holds server configuration.
type Config struct {
	Port            string
	LogLevel        string
	StateBackend    string // "memory" | "sqlite" | "postgres"
	DatabaseURL     string
	SQLitePath      string
	RedisURL        string
	ReasonerBackend string // "none" | "openai" | "gemini"
	ReasonerURL     string
	ReasonerAPIKey  string
	ReasonerModel   string
	ReasonerTimeout time.Duration
	ProfilesDir     string
	ProfileCode     string
	VaultBackend    string // "memory" | "s3"
	VaultBucket     string
	JWTSecret       string
	OTLPEndpoint    string
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Load loads configuration from environment variables.
func Load() *Config {
	timeout := 20 * time.Second
	if raw := os.Getenv("REASONER_TIMEOUT"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			timeout = d
		}
	}

	return &Config{
		Port:            getenv("PORT", "8080"),
		LogLevel:        getenv("LOG_LEVEL", "INFO"),
		StateBackend:    getenv("STATE_BACKEND", "memory"),
		DatabaseURL:     getenv("DATABASE_URL", "postgres://fairway@localhost:5432/fairway?sslmode=disable"),
		SQLitePath:      getenv("SQLITE_PATH", "fairway.db"),
		RedisURL:        os.Getenv("REDIS_URL"),
		ReasonerBackend: getenv("REASONER_BACKEND", "none"),
		ReasonerURL:     getenv("REASONER_URL", "http://localhost:1234/v1/chat/completions"),
		ReasonerAPIKey:  os.Getenv("REASONER_API_KEY"),
		ReasonerModel:   getenv("REASONER_MODEL", "gpt-4o-mini"),
		ReasonerTimeout: timeout,
		ProfilesDir:     os.Getenv("PROFILES_DIR"),
		ProfileCode:     getenv("PROFILE_CODE", "us"),
		VaultBackend:    getenv("VAULT_BACKEND", "memory"),
		VaultBucket:     os.Getenv("VAULT_BUCKET"),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		OTLPEndpoint:    os.Getenv("OTLP_ENDPOINT"),
	}
}
