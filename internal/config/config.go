package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	DB     DBConfig
	MinIO  MinIOConfig
	JWT    JWTConfig
	Server ServerConfig
	Depot  DepotConfig
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type JWTConfig struct {
	Secret          string
	ExpirationHours int
}

type ServerConfig struct {
	Port        string
	CORSOrigins string
}

// DepotConfig holds the storage-domain tunables.
type DepotConfig struct {
	// DefaultQuotaBytes is the allowance assigned to each new tree's quota.
	DefaultQuotaBytes int64
	// AuthorizedUploadTTL bounds the validity of upload capability tokens.
	AuthorizedUploadTTL time.Duration
	// ChecksumQueueSize is the buffer of the deferred checksum dispatcher.
	ChecksumQueueSize int
}

func Load() *Config {
	return &Config{
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "filedepot"),
			Password: getEnv("DB_PASSWORD", "filedepot_secret"),
			Name:     getEnv("DB_NAME", "filedepot"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: getEnv("MINIO_ACCESS_KEY", "filedepot"),
			SecretKey: getEnv("MINIO_SECRET_KEY", "filedepot_secret"),
			Bucket:    getEnv("MINIO_BUCKET", "filedepot"),
			UseSSL:    getEnvAsBool("MINIO_USE_SSL", false),
		},
		JWT: JWTConfig{
			Secret:          getEnv("JWT_SECRET", "change-me-in-production"),
			ExpirationHours: getEnvAsInt("JWT_EXPIRATION_HOURS", 24),
		},
		Server: ServerConfig{
			Port:        getEnv("SERVER_PORT", "8080"),
			CORSOrigins: getEnv("SERVER_CORS_ORIGINS", "http://localhost:3000,http://127.0.0.1:3000"),
		},
		Depot: DepotConfig{
			DefaultQuotaBytes:   getEnvAsInt64("DEPOT_DEFAULT_QUOTA_BYTES", 10*1024*1024*1024),
			AuthorizedUploadTTL: getEnvAsDuration("DEPOT_AUTHORIZED_UPLOAD_TTL", 7*24*time.Hour),
			ChecksumQueueSize:   getEnvAsInt("DEPOT_CHECKSUM_QUEUE_SIZE", 100),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsInt64(key string, fallback int64) int64 {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}
