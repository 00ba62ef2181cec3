package config

import (
	"os"
	"time"
)

// Server captures process-level configuration. The master key itself is
// validated later by crypto.ParseMasterKey so a malformed value surfaces
// as a typed "vault not configured" state instead of a startup panic.
type Server struct {
	Addr string

	// MasterKeyB64 is the base64-encoded 32-byte vault master key.
	// base64url is accepted and normalized.
	MasterKeyB64 string

	// AdminJWTSecret signs admin session tokens for the human surface.
	AdminJWTSecret string

	// PostgresURL enables the postgres-backed stores; empty keeps the
	// in-memory stores (dev, tests).
	PostgresURL string

	// RedisURL enables the redis-backed rate limit counters; empty keeps
	// the process-local ones.
	RedisURL string

	ResolveLimit      int
	ResolveBatchLimit int
	RateLimitWindow   time.Duration
}

// FromEnv builds a Server config from environment variables so main stays
// lean.
func FromEnv() Server {
	addr := os.Getenv("VAULT_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	adminSecret := os.Getenv("VAULT_ADMIN_JWT_SECRET")
	if adminSecret == "" {
		// Development default; must be overridden in production.
		adminSecret = "dev-secret-key-change-in-production"
	}

	return Server{
		Addr:              addr,
		MasterKeyB64:      os.Getenv("VAULT_MASTER_KEY_B64"),
		AdminJWTSecret:    adminSecret,
		PostgresURL:       os.Getenv("VAULT_POSTGRES_URL"),
		RedisURL:          os.Getenv("VAULT_REDIS_URL"),
		ResolveLimit:      300,
		ResolveBatchLimit: 600,
		RateLimitWindow:   time.Minute,
	}
}
