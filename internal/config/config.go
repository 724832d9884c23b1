package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string

	// Calendar provider integration
	CalendarBaseURL      string
	CalendarAPIKey       string
	CalendarTimeout      time.Duration
	CalendarMaxAttempts  int
	CalendarRetryBase    time.Duration
	CalendarRetryCap     time.Duration
	DefaultTimezone      string
	BookingWindowDays    int
	MaxCandidateSlots    int
	MaxPresentedSlots    int
	SessionTTL           time.Duration

	// Abuse guard
	AbuseWindow      time.Duration
	AbuseMaxFailures int
	AbuseLockout     time.Duration

	// Edge rate limiting
	RateLimitPerSecond float64
	RateLimitBurst     int

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Email (booking confirmations)
	EmailProvider     string // "ses", "sendgrid", or "" for stub
	SendGridAPIKey    string
	FromEmail         string
	FromName          string
	AWSRegion         string
	AWSAccessKeyID    string
	AWSSecretAccessKey string

	CORSAllowedOrigins string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		CalendarBaseURL:     getEnv("CALENDAR_BASE_URL", ""),
		CalendarAPIKey:      getEnv("CALENDAR_API_KEY", ""),
		CalendarTimeout:     getEnvAsDuration("CALENDAR_TIMEOUT", 15*time.Second),
		CalendarMaxAttempts: getEnvAsInt("CALENDAR_MAX_ATTEMPTS", 3),
		CalendarRetryBase:   getEnvAsDuration("CALENDAR_RETRY_BASE", time.Second),
		CalendarRetryCap:    getEnvAsDuration("CALENDAR_RETRY_CAP", 30*time.Second),
		DefaultTimezone:     getEnv("DEFAULT_TIMEZONE", "UTC"),
		BookingWindowDays:   getEnvAsInt("BOOKING_WINDOW_DAYS", 14),
		MaxCandidateSlots:   getEnvAsInt("MAX_CANDIDATE_SLOTS", 24),
		MaxPresentedSlots:   getEnvAsInt("MAX_PRESENTED_SLOTS", 12),
		SessionTTL:          getEnvAsDuration("SESSION_TTL", 24*time.Hour),

		AbuseWindow:      getEnvAsDuration("ABUSE_WINDOW", 15*time.Minute),
		AbuseMaxFailures: getEnvAsInt("ABUSE_MAX_FAILURES", 5),
		AbuseLockout:     getEnvAsDuration("ABUSE_LOCKOUT", 30*time.Minute),

		RateLimitPerSecond: getEnvAsFloat("RATE_LIMIT_PER_SECOND", 5),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 10),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		EmailProvider:      getEnv("EMAIL_PROVIDER", ""),
		SendGridAPIKey:     getEnv("SENDGRID_API_KEY", ""),
		FromEmail:          getEnv("FROM_EMAIL", ""),
		FromName:           getEnv("FROM_NAME", "Booking Concierge"),
		AWSRegion:          getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),

		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
