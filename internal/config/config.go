package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// AppConfig 汇总运行服务所需的基础配置。
type AppConfig struct {
	ListenAddr     string
	Port           string
	DatabaseDriver string
	DatabaseDSN    string
	SessionSecret  string
	GinMode        string
	LogLevel       string
	LogFormat      string

	UploadDir      string
	ImageStore     string
	MaxUploadBytes int64
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	RedisURL string

	HomeSiteSlug      string
	HomeBootstrap     bool
	HomeOwnerUserName string
	HomeOwnerPassword string

	CNAMETarget     string
	ShutdownTimeout time.Duration
}

// Load 从环境变量读取应用配置，并为缺失项提供安全的默认值。
func Load() AppConfig {
	port := env("PORT", "8080")

	databaseDriver := strings.ToLower(env("DATABASE_DRIVER", "sqlite"))
	databaseDSN := env("DATABASE_DSN", "")
	if databaseDSN == "" && databaseDriver == "sqlite" {
		databaseDSN = env("DATABASE_PATH", "pagesmith.db")
	}

	return AppConfig{
		ListenAddr:     env("LISTEN_ADDR", fmt.Sprintf(":%s", port)),
		Port:           port,
		DatabaseDriver: databaseDriver,
		DatabaseDSN:    databaseDSN,
		SessionSecret:  env("SESSION_SECRET", "pagesmith-dev-secret"),
		GinMode:        env("GIN_MODE", "release"),
		LogLevel:       env("LOG_LEVEL", "info"),
		LogFormat:      env("LOG_FORMAT", "json"),

		UploadDir:      env("UPLOAD_DIR", "data/uploads"),
		ImageStore:     strings.ToLower(env("IMAGE_STORE", "disk")),
		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 10<<20),
		MinioEndpoint:  env("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccessKey: env("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: env("MINIO_SECRET_KEY", ""),
		MinioBucket:    env("MINIO_BUCKET", "pagesmith-images"),
		MinioUseSSL:    envBool("MINIO_USE_SSL", false),

		RedisURL: env("REDIS_URL", ""),

		HomeSiteSlug:      strings.ToLower(env("HOME_SITE_SLUG", "homepage")),
		HomeBootstrap:     envBool("HOME_BOOTSTRAP", false),
		HomeOwnerUserName: env("HOME_OWNER_USERNAME", ""),
		HomeOwnerPassword: env("HOME_OWNER_PASSWORD", ""),

		CNAMETarget:     env("CNAME_TARGET", ""),
		ShutdownTimeout: time.Duration(envInt64("SHUTDOWN_TIMEOUT_SECONDS", 10)) * time.Second,
	}
}

func env(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envInt64(key string, fallback int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
