package config

import (
	"fmt"
	"log"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// JWT configuration
	JWT JWTConfig

	// CORS configuration
	CORS CORSConfig

	// Redis cache for reference lookups
	Redis RedisConfig

	// SMTP configuration for booking notifications
	SMTP SMTPConfig

	// RabbitMQ configuration for lifecycle events
	RabbitMQ RabbitMQConfig

	// Reference service endpoints
	References ReferenceConfig

	// Booking lifecycle configuration
	Booking BookingConfig

	// Notification worker configuration
	Notification NotificationConfig

	// Outbox relay configuration
	Outbox OutboxConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret            string
	AccessTokenExpiry time.Duration
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// RedisConfig holds the reference cache connection; caching is off when Addr is empty
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// SMTPConfig holds mail server configuration
type SMTPConfig struct {
	Mode      string // "dev" logs emails, "production" sends them
	Host      string
	Port      int
	Username  string
	Password  string
	FromName  string
	FromEmail string
}

// RabbitMQConfig holds broker configuration; events are only logged when URL is empty
type RabbitMQConfig struct {
	URL      string
	Exchange string
}

// ReferenceConfig holds base URLs of the services owning reference data
type ReferenceConfig struct {
	VehicleClassURL string
	DriverURL       string
	VehicleURL      string
	FareSchemeURL   string
	CorporateURL    string
	PromoCodeURL    string
	UserURL         string
	ServiceToken    string
	Timeout         time.Duration
	CacheTTL        time.Duration
}

// BookingConfig holds lifecycle policy values
type BookingConfig struct {
	TukVehicleClassID int64
	DefaultClassTag   string
	IDRetryAttempts   int
}

// NotificationConfig holds async notifier sizing
type NotificationConfig struct {
	Enabled     bool
	Workers     int
	QueueSize   int
	SendTimeout time.Duration
}

// OutboxConfig holds the relay schedule
type OutboxConfig struct {
	Schedule  string // cron spec with seconds
	BatchSize int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
		},
		JWT: JWTConfig{
			Secret:            getEnv("JWT_SECRET", ""),
			AccessTokenExpiry: time.Duration(getEnvAsInt("JWT_ACCESS_TOKEN_EXPIRY", 3600)) * time.Second,
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization"}),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		SMTP: SMTPConfig{
			Mode:      getEnv("SMTP_MODE", "dev"),
			Host:      getEnv("SMTP_HOST", ""),
			Port:      getEnvAsInt("SMTP_PORT", 587),
			Username:  getEnv("SMTP_USERNAME", ""),
			Password:  getEnv("SMTP_PASSWORD", ""),
			FromName:  getEnv("SMTP_FROM_NAME", "City Taxi"),
			FromEmail: getEnv("SMTP_FROM_EMAIL", "no-reply@citytaxi.lk"),
		},
		RabbitMQ: RabbitMQConfig{
			URL:      getEnv("RABBITMQ_URL", ""),
			Exchange: getEnv("RABBITMQ_EXCHANGE", "booking.lifecycle"),
		},
		References: ReferenceConfig{
			VehicleClassURL: getEnv("VEHICLE_CLASS_SERVICE_URL", "http://localhost:8081"),
			DriverURL:       getEnv("DRIVER_SERVICE_URL", "http://localhost:8082"),
			VehicleURL:      getEnv("VEHICLE_SERVICE_URL", "http://localhost:8082"),
			FareSchemeURL:   getEnv("FARE_SERVICE_URL", "http://localhost:8083"),
			CorporateURL:    getEnv("CORPORATE_SERVICE_URL", "http://localhost:8084"),
			PromoCodeURL:    getEnv("PROMO_SERVICE_URL", "http://localhost:8083"),
			UserURL:         getEnv("USER_SERVICE_URL", "http://localhost:8085"),
			ServiceToken:    getEnv("REFERENCE_SERVICE_TOKEN", ""),
			Timeout:         getEnvAsDuration("REFERENCE_TIMEOUT", 3*time.Second),
			CacheTTL:        getEnvAsDuration("REFERENCE_CACHE_TTL", 5*time.Minute),
		},
		Booking: BookingConfig{
			TukVehicleClassID: int64(getEnvAsInt("BOOKING_TUK_VEHICLE_CLASS_ID", 6)),
			DefaultClassTag:   getEnv("BOOKING_DEFAULT_CLASS_TAG", "GEN"),
			IDRetryAttempts:   getEnvAsInt("BOOKING_ID_RETRY_ATTEMPTS", 3),
		},
		Notification: NotificationConfig{
			Enabled:     getEnvAsBool("NOTIFICATIONS_ENABLED", true),
			Workers:     getEnvAsInt("NOTIFICATION_WORKERS", 4),
			QueueSize:   getEnvAsInt("NOTIFICATION_QUEUE_SIZE", 256),
			SendTimeout: getEnvAsDuration("NOTIFICATION_SEND_TIMEOUT", 30*time.Second),
		},
		Outbox: OutboxConfig{
			Schedule:  getEnv("OUTBOX_RELAY_SCHEDULE", "*/10 * * * * *"),
			BatchSize: getEnvAsInt("OUTBOX_BATCH_SIZE", 100),
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// classTagPattern matches the class segment of a booking id
var classTagPattern = regexp.MustCompile(`^[A-Z0-9]{1,10}$`)

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.SMTP.Mode == "production" && c.SMTP.Host == "" {
		return fmt.Errorf("SMTP_HOST is required when SMTP_MODE is production")
	}

	if !classTagPattern.MatchString(c.Booking.DefaultClassTag) {
		return fmt.Errorf("BOOKING_DEFAULT_CLASS_TAG must be 1-10 uppercase letters or digits, got %q", c.Booking.DefaultClassTag)
	}

	if c.Booking.IDRetryAttempts < 1 {
		return fmt.Errorf("BOOKING_ID_RETRY_ATTEMPTS must be at least 1")
	}

	if c.Notification.Workers < 1 || c.Notification.QueueSize < 1 {
		return fmt.Errorf("NOTIFICATION_WORKERS and NOTIFICATION_QUEUE_SIZE must be positive")
	}

	return nil
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Invalid boolean value for %s, using default: %t", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Invalid duration value for %s, using default: %s", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
