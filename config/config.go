package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env        string
	ServerPort int
	Database   DatabaseConfig
	Auth       AuthConfig
	Notify     NotifyConfig
	RabbitMQ   RabbitMQConfig
	PubSub     PubSubConfig
	Minio      MinioConfig
	GCS        GCSConfig

	// PendingTTL is how long an unconfirmed registration is kept before
	// `pending prune` removes it.
	PendingTTL time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	UseSSL   bool
}

type AuthConfig struct {
	JWTSecret     string
	TokenTTL      time.Duration
	SessionSecret string
	SessionMaxAge time.Duration
	CookieSecure  bool
}

// NotifyConfig selects and tunes the confirmation message dispatcher.
type NotifyConfig struct {
	// Backend is one of "log", "rabbitmq", "pubsub", "minio" or "gcs".
	Backend       string
	Channel       string
	Timeout       time.Duration
	PublicBaseURL string
	FromAddress   string
}

type RabbitMQConfig struct {
	URL          string
	QueueDurable bool
}

type PubSubConfig struct {
	ProjectID       string
	CredentialsFile string
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type GCSConfig struct {
	ProjectID       string
	Bucket          string
	CredentialsFile string
}

func LoadConfig() Config {
	env := getEnv("ENV", "prod")
	if env == "dev" {
		godotenv.Load()
	}

	dbConfig := DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnvInt("DB_PORT", 5432),
		User:     getEnv("DB_USER", "microblog"),
		Password: getEnv("DB_PASSWORD", "password"),
		DBName:   getEnv("DB_NAME", "microblog"),
		UseSSL:   getEnvBool("DB_SSL", false),
	}

	authConfig := AuthConfig{
		JWTSecret:     strings.TrimSpace(getEnv("JWT_SECRET", "")),
		TokenTTL:      getEnvDuration("JWT_TTL", 24*time.Hour),
		SessionSecret: strings.TrimSpace(getEnv("SESSION_SECRET", "")),
		SessionMaxAge: getEnvDuration("SESSION_MAX_AGE", 7*24*time.Hour),
		CookieSecure:  getEnvBool("COOKIE_SECURE", env != "dev"),
	}

	notifyConfig := NotifyConfig{
		Backend:       strings.ToLower(getEnv("NOTIFY_BACKEND", "log")),
		Channel:       getEnv("NOTIFY_CHANNEL", "account.confirmation"),
		Timeout:       getEnvDuration("NOTIFY_TIMEOUT", 10*time.Second),
		PublicBaseURL: strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		FromAddress:   getEnv("NOTIFY_FROM", "no-reply@microblog.local"),
	}

	return Config{
		Env:        env,
		ServerPort: getEnvInt("SERVER_PORT", 8080),
		Database:   dbConfig,
		Auth:       authConfig,
		Notify:     notifyConfig,
		RabbitMQ: RabbitMQConfig{
			URL:          getEnv("RABBITMQ_URL", ""),
			QueueDurable: getEnvBool("RABBITMQ_QUEUE_DURABLE", true),
		},
		PubSub: PubSubConfig{
			ProjectID:       getEnv("PUBSUB_PROJECT_ID", ""),
			CredentialsFile: getEnv("PUBSUB_CREDENTIALS_FILE", ""),
		},
		Minio: MinioConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", "mail-outbox"),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		GCS: GCSConfig{
			ProjectID:       getEnv("GCS_PROJECT_ID", ""),
			Bucket:          getEnv("GCS_BUCKET", ""),
			CredentialsFile: getEnv("GCS_CREDENTIALS_FILE", ""),
		},
		PendingTTL: getEnvDuration("PENDING_TTL", 7*24*time.Hour),
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := strconv.Atoi(strings.TrimSpace(valueStr))
		if err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := strconv.ParseBool(strings.TrimSpace(valueStr))
		if err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := time.ParseDuration(strings.TrimSpace(valueStr))
		if err != nil || value <= 0 {
			return defaultValue
		}
		return value
	}
	return defaultValue
}
