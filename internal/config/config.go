package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port        string
	DatabaseURL string
	RedisAddr   string
	RedisDB     int
	LogLevel    string

	NoShowGrace     time.Duration
	NoShowInterval  time.Duration
	NoShowBatchSize int

	CoordinatorMailboxSize   int
	CoordinatorSubmitTimeout time.Duration

	CatalogCacheTTL time.Duration

	RateLimitPerMinute     int
	RateLimitBurst         int
	ShopRateLimitPerMinute int
	ShopRateLimitBurst     int
}

func Load() Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	return Config{
		Port:        port,
		DatabaseURL: os.Getenv("DB_DSN"),
		RedisAddr:   os.Getenv("REDIS_ADDR"),
		RedisDB:     readInt("REDIS_DB", 0),
		LogLevel:    os.Getenv("LOG_LEVEL"),

		NoShowGrace:     readDurationSeconds("NO_SHOW_GRACE_SECONDS", 300),
		NoShowInterval:  readDurationSeconds("NO_SHOW_SCAN_INTERVAL_SECONDS", 30),
		NoShowBatchSize: readInt("NO_SHOW_BATCH_SIZE", 100),

		CoordinatorMailboxSize:   readInt("COORDINATOR_MAILBOX_SIZE", 16),
		CoordinatorSubmitTimeout: readDurationSeconds("COORDINATOR_SUBMIT_TIMEOUT_SECONDS", 5),

		CatalogCacheTTL: readDurationSeconds("CATALOG_CACHE_TTL_SECONDS", 300),

		RateLimitPerMinute:     readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:         readInt("RATE_LIMIT_BURST", 30),
		ShopRateLimitPerMinute: readInt("SHOP_RATE_LIMIT_PER_MIN", 600),
		ShopRateLimitBurst:     readInt("SHOP_RATE_LIMIT_BURST", 120),
	}
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
