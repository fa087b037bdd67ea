package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr          string
	GRPCAddr          string
	StoreDriver       string
	MySQLDSN          string
	RedisAddr         string
	LogLevel          string
	GinMode           string
	MaxOpenConns      int
	MaxIdleConns      int
	ConnMaxLifetime   time.Duration
	PostingMaxRetries int
	PostingLockTTL    time.Duration
	IdempotencyTTL    time.Duration
	ReconcileInterval time.Duration
	MigrateOnStart    bool
}

// Load reads the environment, after an optional .env file.
func Load() Config {
	// .env is optional
	_ = godotenv.Load()

	return Config{
		HTTPAddr:          getEnv("HTTP_ADDR", ":8080"),
		GRPCAddr:          getEnv("GRPC_ADDR", ":50051"),
		StoreDriver:       strings.ToLower(getEnv("STORE_DRIVER", "mysql")),
		MySQLDSN:          getEnv("MYSQL_DSN", "root:root@tcp(localhost:3306)/stockledger?parseTime=true"),
		RedisAddr:         getEnv("REDIS_ADDR", ""),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		GinMode:           getEnv("GIN_MODE", "release"),
		MaxOpenConns:      intFromEnv("DB_MAX_OPEN_CONNS", 50),
		MaxIdleConns:      intFromEnv("DB_MAX_IDLE_CONNS", 25),
		ConnMaxLifetime:   time.Duration(intFromEnv("DB_CONN_MAX_LIFETIME_SECONDS", 300)) * time.Second,
		PostingMaxRetries: intFromEnv("POSTING_MAX_RETRIES", 3),
		PostingLockTTL:    time.Duration(intFromEnv("POSTING_LOCK_TTL_SECONDS", 10)) * time.Second,
		IdempotencyTTL:    time.Duration(intFromEnv("IDEMPOTENCY_TTL_HOURS", 24)) * time.Hour,
		ReconcileInterval: time.Duration(intFromEnv("RECONCILE_INTERVAL_SECONDS", 0)) * time.Second,
		MigrateOnStart:    boolFromEnv("MIGRATE_ON_START", true),
	}
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func boolFromEnv(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "1", "true", "yes", "y":
		return true
	case "0", "false", "no", "n":
		return false
	}
	return def
}
