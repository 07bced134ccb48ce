package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port               string
	DatabaseURL        string
	AvgServiceMinutes  int
	QueueResetPolicy   string
	QueueResetHour     int
	SessionTTL         time.Duration
	RateLimitPerMinute int
	RateLimitBurst     int
	OutboxPollInterval time.Duration
	OutboxBatchSize    int
}

// Load reads configuration from the environment. A .env file in the
// working directory is loaded first when present, so local runs do not
// need exported variables.
func Load() Config {
	_ = godotenv.Load()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	return Config{
		Port:               port,
		DatabaseURL:        os.Getenv("DB_DSN"),
		AvgServiceMinutes:  readInt("AVG_SERVICE_MINUTES", 15),
		QueueResetPolicy:   readString("QUEUE_RESET_POLICY", "cancel"),
		QueueResetHour:     readInt("QUEUE_RESET_HOUR", -1),
		SessionTTL:         readDurationHours("SESSION_TTL_HOURS", 12),
		RateLimitPerMinute: readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:     readInt("RATE_LIMIT_BURST", 30),
		OutboxPollInterval: readDurationMillis("OUTBOX_POLL_INTERVAL_MS", 1000),
		OutboxBatchSize:    readInt("OUTBOX_BATCH_SIZE", 100),
	}
}

func readString(key, fallback string) string {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	return raw
}

func readDurationHours(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Hour
}

func readDurationMillis(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Millisecond
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
