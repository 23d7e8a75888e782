package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort int
	Database   DatabaseConfig
	JWT        JWTConfig
	TOTP       TOTPConfig
	Lockout    LockoutConfig
	Audit      AuditConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	UseSSL   bool
}

// JWTConfig controls session token issuance.
type JWTConfig struct {
	Secret   string
	TokenTTL time.Duration
}

// TOTPConfig controls authenticator enrollment and code validation.
type TOTPConfig struct {
	Issuer string
}

// LockoutConfig controls the brute-force lockout policy. Both values are
// deployment policy, not code constants.
type LockoutConfig struct {
	MaxAttempts int
	Cooldown    time.Duration
}

// AuditConfig selects the authentication event stream backend.
// Backend is one of "rabbitmq", "pubsub", or empty to disable.
type AuditConfig struct {
	Backend  string
	RabbitMQ RabbitMQConfig
	PubSub   PubSubConfig
}

type RabbitMQConfig struct {
	URL             string
	QueueDurable    bool
	QueueAutoDelete bool
}

type PubSubConfig struct {
	ProjectID          string
	CredentialsFile    string
	SubscriptionSuffix string
}

func LoadConfig() Config {
	if os.Getenv("ENV") == "dev" {
		godotenv.Load()
	}

	dbConfig := DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnvInt("DB_PORT", 5432),
		User:     getEnv("DB_USER", "securelogin"),
		Password: getEnv("DB_PASSWORD", "password"),
		DBName:   getEnv("DB_NAME", "securelogin_db"),
		UseSSL:   getEnvBool("DB_USE_SSL", false),
	}

	return Config{
		ServerPort: getEnvInt("SERVER_PORT", 8080),
		Database:   dbConfig,
		JWT: JWTConfig{
			Secret:   getEnv("JWT_SECRET", ""),
			TokenTTL: time.Duration(getEnvInt("TOKEN_TTL_MINUTES", 30)) * time.Minute,
		},
		TOTP: TOTPConfig{
			Issuer: getEnv("TOTP_ISSUER", "SecureLoginApp"),
		},
		Lockout: LockoutConfig{
			MaxAttempts: getEnvInt("LOCKOUT_MAX_ATTEMPTS", 5),
			Cooldown:    time.Duration(getEnvInt("LOCKOUT_COOLDOWN_MINUTES", 15)) * time.Minute,
		},
		Audit: AuditConfig{
			Backend: getEnv("AUDIT_BACKEND", ""),
			RabbitMQ: RabbitMQConfig{
				URL:             getEnv("RABBITMQ_URL", ""),
				QueueDurable:    getEnvBool("RABBITMQ_QUEUE_DURABLE", true),
				QueueAutoDelete: getEnvBool("RABBITMQ_QUEUE_AUTODELETE", false),
			},
			PubSub: PubSubConfig{
				ProjectID:          getEnv("PUBSUB_PROJECT_ID", ""),
				CredentialsFile:    getEnv("PUBSUB_CREDENTIALS_FILE", ""),
				SubscriptionSuffix: getEnv("PUBSUB_SUBSCRIPTION_SUFFIX", "-sub"),
			},
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvInt falls back to the default on a malformed value rather than
// returning zero; a zero lockout threshold would block every identity on
// its first failure.
func getEnvInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		return valueStr == "1" || valueStr == "true" || valueStr == "yes"
	}
	return defaultValue
}
