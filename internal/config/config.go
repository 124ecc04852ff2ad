package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port             string
	DBUrl            string
	JWTSecret        string
	JWTTTL           time.Duration
	AppEnv           string
	LogLevel         string
	CalendarTimezone string
	CORSAllowOrigins string
	AuthRateLimit    int
	RedisURL         string
	S3               S3Config

	location *time.Location
}

// S3Config describes the bucket used for chat media. Media uploads are
// disabled when Bucket is empty.
type S3Config struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	jwtSecret, exists := os.LookupEnv("JWT_SECRET")
	if !exists || jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	dbUrl := getEnv("DB_URL", "")
	if dbUrl == "" {
		return nil, fmt.Errorf("DB_URL is required")
	}

	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		DBUrl:            dbUrl,
		JWTSecret:        jwtSecret,
		JWTTTL:           getEnvDuration("JWT_TTL", 72*time.Hour),
		AppEnv:           normalizeEnv(getEnv("APP_ENV", "production")),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		CalendarTimezone: getEnv("CALENDAR_TIMEZONE", "Local"),
		CORSAllowOrigins: getEnv("CORS_ALLOW_ORIGINS", "*"),
		AuthRateLimit:    getEnvInt("AUTH_RATE_LIMIT", 20),
		RedisURL:         getEnv("REDIS_URL", ""),
		S3: S3Config{
			Endpoint:        getEnv("S3_ENDPOINT", ""),
			Region:          getEnv("S3_REGION", "us-east-1"),
			AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
			Bucket:          getEnv("S3_BUCKET", ""),
		},
	}

	location, err := time.LoadLocation(cfg.CalendarTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid CALENDAR_TIMEZONE %q: %w", cfg.CalendarTimezone, err)
	}
	cfg.location = location

	return cfg, nil
}

// Location is the zone in which calendar dates and wall-clock times are
// interpreted.
func (c *Config) Location() *time.Location {
	if c == nil || c.location == nil {
		return time.Local
	}
	return c.location
}

func (c *Config) MediaEnabled() bool {
	return c != nil && c.S3.Bucket != ""
}

func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func normalizeEnv(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "dev", "develop", "development", "local":
		return "development"
	case "prod", "production":
		return "production"
	case "stage", "staging":
		return "staging"
	case "test", "testing":
		return "test"
	default:
		return strings.ToLower(strings.TrimSpace(value))
	}
}
