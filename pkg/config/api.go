package config

import "time"

// APIConfig holds runtime configuration for the API service.
type APIConfig struct {
	Environment         string
	Addr                string
	DatabaseURL         string
	MigrationsDir       string
	SessionTTL          time.Duration
	SessionCookieName   string
	SessionCookieSecure bool
	SessionRedisAddr    string
	SessionRedisPass    string
	SessionRedisDB      int
	RateLimitRedisAddr  string
	RateLimitRedisPass  string
	RateLimitRedisDB    int
}

// LoadAPIConfig constructs an APIConfig from environment variables.
func LoadAPIConfig() APIConfig {
	return APIConfig{
		Environment:         GetString("APP_ENV", "development"),
		Addr:                GetString("API_ADDR", ":5000"),
		DatabaseURL:         GetString("DATABASE_URL", "postgres://recrm:recrm@db:5432/recrm?sslmode=disable"),
		MigrationsDir:       GetString("DB_MIGRATIONS_DIR", "db/migrations"),
		SessionTTL:          time.Duration(GetInt("SESSION_TTL_MIN", 60)) * time.Minute,
		SessionCookieName:   GetString("SESSION_COOKIE_NAME", "recrm_session"),
		SessionCookieSecure: GetBool("SESSION_COOKIE_SECURE", false),
		SessionRedisAddr:    GetString("SESSION_REDIS_ADDR", ""),
		SessionRedisPass:    GetString("SESSION_REDIS_PASSWORD", ""),
		SessionRedisDB:      GetInt("SESSION_REDIS_DB", 0),
		RateLimitRedisAddr:  GetString("RATE_LIMIT_REDIS_ADDR", ""),
		RateLimitRedisPass:  GetString("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:    GetInt("RATE_LIMIT_REDIS_DB", 0),
	}
}
