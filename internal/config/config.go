package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port            int
	DatabaseURL     string
	NatsURL         string
	ChunkDataDir    string
	NominalChunkMs  int64
	ChunkPageSize   int
	PollInterval    time.Duration
	PollMaxAttempts int
	LogLevel        string
}

// Load reads configuration from the environment, after loading a local .env
// file when present.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Port:            envInt("SCRIBE_PORT", 8600),
		DatabaseURL:     envStr("DATABASE_URL", ""),
		NatsURL:         envStr("NATS_URL", "nats://localhost:4222"),
		ChunkDataDir:    envStr("CHUNK_DATA_DIR", "./data/chunks"),
		NominalChunkMs:  int64(envInt("NOMINAL_CHUNK_MS", 5000)),
		ChunkPageSize:   envInt("CHUNK_PAGE_SIZE", 50),
		PollInterval:    time.Duration(envInt("POLL_INTERVAL_MS", 2000)) * time.Millisecond,
		PollMaxAttempts: envInt("POLL_MAX_ATTEMPTS", 30),
		LogLevel:        envStr("LOG_LEVEL", "info"),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
