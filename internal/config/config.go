package config

import (
	"os"
	"strconv"
	"time"
)

// DatabaseConfig holds record store connection settings.
// Driver selects the backend: "sqlite" (on-device, default) or "postgres".
type DatabaseConfig struct {
	Driver             string
	SQLitePath         string
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeSec int
}

// MinIOConfig holds object storage settings for MinIO.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MirrorConfig points at the optional local mirror directory. Empty disables it.
type MirrorConfig struct {
	Dir string
}

// DeliveryConfig describes the remote endpoint documents are delivered to.
type DeliveryConfig struct {
	Endpoint        string
	ObserveResponse bool
	TimeoutSec      int
}

// SyncConfig controls the connectivity trigger.
// ProbeURL defaults to the delivery endpoint when empty.
type SyncConfig struct {
	ProbeURL         string
	ProbeIntervalSec int
	LockTTLSec       int
}

// RedisConfig enables the cross-process sync guard when Addr is set.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LogConfig selects where structured logs go. Empty File means stdout.
type LogConfig struct {
	File       string
	MaxSizeMB  int
	MaxBackups int
	TimeZone   string
}

// TracingConfig mirrors the standard OTEL_* variables the exporter setup needs.
// The exporters read endpoint and headers from the environment themselves.
type TracingConfig struct {
	Disabled    bool
	ServiceName string
	Protocol    string
	Endpoint    string
	Sampler     string
	SamplerArg  string
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	AppHost        string
	Port           string
	FileNamePrefix string
	Database       DatabaseConfig
	MinIO          MinIOConfig
	Mirror         MirrorConfig
	Delivery       DeliveryConfig
	Sync           SyncConfig
	Redis          RedisConfig
	Log            LogConfig
	Tracing        TracingConfig
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// This function does not require a .env file; real environment variables take precedence.
func Load() *AppConfig {
	return &AppConfig{
		AppHost:        getEnv("APP_HOST", "localhost:8080"),
		Port:           getEnv("PORT", "8080"),
		FileNamePrefix: getEnv("FILE_NAME_PREFIX", "jp_bilpleie"),
		Database: DatabaseConfig{
			Driver:             getEnv("DB_DRIVER", "sqlite"),
			SQLitePath:         getEnv("DB_SQLITE_PATH", "data/docsync.db"),
			Host:               getEnv("DB_HOST", ""),
			Port:               getEnv("DB_PORT", "5432"),
			User:               getEnv("DB_USER", ""),
			Password:           getEnv("DB_PASSWORD", ""),
			Name:               getEnv("DB_NAME", ""),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetimeSec: getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", "documents-cache"),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		Mirror: MirrorConfig{
			Dir: getEnv("MIRROR_DIR", ""),
		},
		Delivery: DeliveryConfig{
			Endpoint:        getEnv("DELIVERY_ENDPOINT", ""),
			ObserveResponse: getEnvBool("DELIVERY_OBSERVE_RESPONSE", false),
			TimeoutSec:      getEnvInt("DELIVERY_TIMEOUT_SEC", 30),
		},
		Sync: SyncConfig{
			ProbeURL:         getEnv("SYNC_PROBE_URL", ""),
			ProbeIntervalSec: getEnvInt("SYNC_PROBE_INTERVAL_SEC", 30),
			LockTTLSec:       getEnvInt("SYNC_LOCK_TTL_SEC", 600),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Log: LogConfig{
			File:       getEnv("LOG_FILE", ""),
			MaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 50),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 3),
			TimeZone:   getEnv("TZ_NAME", "UTC"),
		},
		Tracing: TracingConfig{
			Disabled:    getEnvBool("OTEL_SDK_DISABLED", false),
			ServiceName: getEnv("OTEL_SERVICE_NAME", "docsync"),
			Protocol:    getEnv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"),
			Endpoint:    getEnv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT", getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "")),
			Sampler:     getEnv("OTEL_TRACES_SAMPLER", "parentbased_traceidratio"),
			SamplerArg:  getEnv("OTEL_TRACES_SAMPLER_ARG", "1.0"),
		},
	}
}

// Location resolves the configured log time zone, falling back to UTC.
func (c LogConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ProbeTarget is the URL the connectivity monitor checks.
func (c *AppConfig) ProbeTarget() string {
	if c.Sync.ProbeURL != "" {
		return c.Sync.ProbeURL
	}
	return c.Delivery.Endpoint
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}
