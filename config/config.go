// Package config reads service settings from the environment. A .env
// file in the working directory is loaded first when present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr        string
	Environment string

	DBDriver    string
	SQLitePath  string
	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	LockTTL       time.Duration

	KafkaBrokers           []string
	KafkaCalendarTopic     string
	KafkaNotificationTopic string

	EmailEnabled bool
	EmailFrom    string
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPUseTLS   bool

	LeaveTypesFile    string
	BulkMaxSize       int
	ShortNoticeDays   int
	ExpiryWarningDays int
	ReminderAfter     time.Duration
	ReminderRepeat    time.Duration
	ReminderInterval  time.Duration

	RateLimitPerSecond float64
	RateLimitBurst     int

	LogLevel  string
	LogFormat string
	LogFile   string
}

// Load reads .env (if any) and the environment.
func Load() Config {
	_ = godotenv.Load()
	return FromEnv()
}

func FromEnv() Config {
	return Config{
		Addr:        getEnv("APP_ADDR", ":8080"),
		Environment: getEnv("APP_ENV", "development"),

		DBDriver:    getEnv("DB_DRIVER", "sqlite"),
		SQLitePath:  getEnv("SQLITE_PATH", "leave.db"),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		LockTTL:       getEnvDuration("LOCK_TTL", 30*time.Second),

		KafkaBrokers:           getEnvList("KAFKA_BROKERS"),
		KafkaCalendarTopic:     getEnv("KAFKA_CALENDAR_TOPIC", "leave.calendar.v1"),
		KafkaNotificationTopic: getEnv("KAFKA_NOTIFICATION_TOPIC", "leave.notification.v1"),

		EmailEnabled: getEnvBool("EMAIL_ENABLED", false),
		EmailFrom:    getEnv("EMAIL_FROM", "no-reply@example.com"),
		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnvInt("SMTP_PORT", 587),
		SMTPUser:     getEnv("SMTP_USER", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPUseTLS:   getEnvBool("SMTP_USE_TLS", true),

		LeaveTypesFile:    getEnv("LEAVE_TYPES_FILE", ""),
		BulkMaxSize:       getEnvInt("BULK_MAX_SIZE", 10),
		ShortNoticeDays:   getEnvInt("SHORT_NOTICE_DAYS", 2),
		ExpiryWarningDays: getEnvInt("EXPIRY_WARNING_DAYS", 30),
		ReminderAfter:     getEnvDuration("REMINDER_AFTER", 48*time.Hour),
		ReminderRepeat:    getEnvDuration("REMINDER_REPEAT", 24*time.Hour),
		ReminderInterval:  getEnvDuration("REMINDER_INTERVAL", time.Hour),

		RateLimitPerSecond: getEnvFloat("RATE_LIMIT_PER_SECOND", 10),
		RateLimitBurst:     getEnvInt("RATE_LIMIT_BURST", 20),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
		LogFile:   getEnv("LOG_FILE", ""),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// getEnvList splits a comma-separated value, dropping blanks.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c Config) Validate() error {
	switch c.DBDriver {
	case "memory":
	case "sqlite":
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("SQLITE_PATH is required when DB_DRIVER is sqlite")
		}
	case "postgres":
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("DATABASE_URL is required when DB_DRIVER is postgres")
		}
	default:
		return fmt.Errorf("DB_DRIVER must be one of memory, sqlite, postgres; got %q", c.DBDriver)
	}
	if c.EmailEnabled && c.SMTPHost == "" {
		return fmt.Errorf("SMTP_HOST must be set when EMAIL_ENABLED is true")
	}
	if c.BulkMaxSize <= 0 {
		return fmt.Errorf("BULK_MAX_SIZE must be positive")
	}
	if c.ShortNoticeDays < 0 {
		return fmt.Errorf("SHORT_NOTICE_DAYS cannot be negative")
	}
	if c.ExpiryWarningDays <= 0 {
		return fmt.Errorf("EXPIRY_WARNING_DAYS must be positive")
	}
	if c.ReminderInterval <= 0 {
		return fmt.Errorf("REMINDER_INTERVAL must be positive")
	}
	if c.ReminderRepeat <= 0 {
		return fmt.Errorf("REMINDER_REPEAT must be positive")
	}
	if c.RateLimitPerSecond <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_SECOND and RATE_LIMIT_BURST must be positive")
	}
	if c.RedisAddr != "" && c.LockTTL <= 0 {
		return fmt.Errorf("LOCK_TTL must be positive when REDIS_ADDR is set")
	}
	return nil
}
