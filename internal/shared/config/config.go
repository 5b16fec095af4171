package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	KurrentDB KurrentDBConfig
	Auth      AuthConfig
	CarePlan  CarePlanConfig
	EMR       EMRConfig
	Export    ExportConfig
}

// CarePlanConfig holds configuration for the care plan generation service.
type CarePlanConfig struct {
	// URL is the base URL of the messages API
	URL string
	// APIKey authenticates requests to the generation service
	APIKey string
	// Model is the model identifier sent with each request
	Model string
	// MaxTokens caps the generated plan length
	MaxTokens int
	// Temperature controls generation randomness
	Temperature float64
	// TimeoutSeconds bounds a single generation call
	TimeoutSeconds int
	Enabled        bool
	// RateLimitRPS limits generation-backed requests per second per IP
	RateLimitRPS   int
	RateLimitBurst int
}

// EMRConfig holds configuration for the legacy EMR adapter (SQL Server).
type EMRConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	Database string
	// Encrypt enables TLS on the SQL Server connection
	Encrypt bool
}

// ExportConfig holds configuration for the export engine.
type ExportConfig struct {
	// MaxRows caps a single export to protect memory
	MaxRows int
	// RateLimitRPS limits export requests per second per IP
	RateLimitRPS   int
	RateLimitBurst int
}

// KurrentDBConfig holds configuration for KurrentDB (EventStoreDB).
type KurrentDBConfig struct {
	// Host is the KurrentDB server hostname
	Host string
	// Port is the gRPC port (default 2113)
	Port int
	// Insecure disables TLS (for development)
	Insecure bool
	// Username for authentication (optional)
	Username string
	// Password for authentication (optional)
	Password string
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

type AuthConfig struct {
	JWTSecret string
}

func Load() (*Config, error) {
	return &Config{
		Server: ServerConfig{
			Port: getEnvInt("SERVER_PORT", 8080),
			Env:  getEnv("SERVER_ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "carebridge"),
			Password: getEnv("DB_PASSWORD", "carebridge"),
			Database: getEnv("DB_NAME", "carebridge"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		KurrentDB: KurrentDBConfig{
			Host:     getEnv("KURRENTDB_HOST", "localhost"),
			Port:     getEnvInt("KURRENTDB_PORT", 2113),
			Insecure: getEnvBool("KURRENTDB_INSECURE", true),
			Username: getEnv("KURRENTDB_USERNAME", ""),
			Password: getEnv("KURRENTDB_PASSWORD", ""),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", "dev-secret-change-in-prod"),
		},
		CarePlan: CarePlanConfig{
			URL:            getEnv("CAREPLAN_API_URL", "https://api.anthropic.com"),
			APIKey:         getEnv("CAREPLAN_API_KEY", ""),
			Model:          getEnv("CAREPLAN_MODEL", "claude-3-5-haiku-20241022"),
			MaxTokens:      getEnvInt("CAREPLAN_MAX_TOKENS", 4096),
			Temperature:    getEnvFloat("CAREPLAN_TEMPERATURE", 0.7),
			TimeoutSeconds: getEnvInt("CAREPLAN_TIMEOUT_SECONDS", 60),
			Enabled:        getEnvBool("CAREPLAN_ENABLED", true),
			RateLimitRPS:   getEnvInt("CAREPLAN_RATE_LIMIT_RPS", 2),
			RateLimitBurst: getEnvInt("CAREPLAN_RATE_LIMIT_BURST", 5),
		},
		EMR: EMRConfig{
			Enabled:  getEnvBool("EMR_ENABLED", false),
			Host:     getEnv("EMR_DB_HOST", "localhost"),
			Port:     getEnvInt("EMR_DB_PORT", 1433),
			User:     getEnv("EMR_DB_USER", ""),
			Password: getEnv("EMR_DB_PASSWORD", ""),
			Database: getEnv("EMR_DB_NAME", "pharmacy"),
			Encrypt:  getEnvBool("EMR_DB_ENCRYPT", false),
		},
		Export: ExportConfig{
			MaxRows:        getEnvInt("EXPORT_MAX_ROWS", 10000),
			RateLimitRPS:   getEnvInt("EXPORT_RATE_LIMIT_RPS", 2),
			RateLimitBurst: getEnvInt("EXPORT_RATE_LIMIT_BURST", 5),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
