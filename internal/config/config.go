package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the chat client.
type Config struct {
	API    APIConfig
	Sync   SyncConfig
	Upload UploadConfig
	Drafts DraftsConfig
	Redis  RedisConfig
	Logger LoggerConfig
}

// APIConfig points the client at the support backend.
type APIConfig struct {
	BaseURL        string
	Token          string
	Role           string
	TimeoutSeconds int
}

// SyncConfig controls polling cadence and paging.
type SyncConfig struct {
	MessageIntervalSeconds int
	ListIntervalSeconds    int
	TypingIntervalSeconds  int
	TypingWindowSeconds    int
	TypingThrottleSeconds  int
	PageSize               int
}

// UploadConfig holds per-role attachment ceilings.
type UploadConfig struct {
	SellerMaxBytes int64
	AdminMaxBytes  int64
}

// DraftsConfig selects draft persistence behavior.
type DraftsConfig struct {
	Backend          string // "memory" or "redis"
	DebounceMillis   int
	RetentionMinutes int
}

// RedisConfig holds connection values for the redis draft backend.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level    string
	Encoding string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		API: APIConfig{
			BaseURL:        getEnv("CHAT_API_BASE_URL", "http://127.0.0.1:8080"),
			Token:          os.Getenv("CHAT_API_TOKEN"),
			Role:           getEnv("CHAT_ROLE", "seller"),
			TimeoutSeconds: getEnvAsInt("CHAT_API_TIMEOUT_SECONDS", 15),
		},
		Sync: SyncConfig{
			MessageIntervalSeconds: getEnvAsInt("SYNC_MESSAGE_INTERVAL_SECONDS", 10),
			ListIntervalSeconds:    getEnvAsInt("SYNC_LIST_INTERVAL_SECONDS", 15),
			TypingIntervalSeconds:  getEnvAsInt("SYNC_TYPING_INTERVAL_SECONDS", 3),
			TypingWindowSeconds:    getEnvAsInt("SYNC_TYPING_WINDOW_SECONDS", 5),
			TypingThrottleSeconds:  getEnvAsInt("SYNC_TYPING_THROTTLE_SECONDS", 2),
			PageSize:               getEnvAsInt("SYNC_PAGE_SIZE", 10),
		},
		Upload: UploadConfig{
			SellerMaxBytes: int64(getEnvAsInt("UPLOAD_SELLER_MAX_BYTES", 2*1024*1024)),
			AdminMaxBytes:  int64(getEnvAsInt("UPLOAD_ADMIN_MAX_BYTES", 5*1024*1024)),
		},
		Drafts: DraftsConfig{
			Backend:          getEnv("DRAFTS_BACKEND", "memory"),
			DebounceMillis:   getEnvAsInt("DRAFTS_DEBOUNCE_MILLIS", 600),
			RetentionMinutes: getEnvAsInt("DRAFTS_RETENTION_MINUTES", 0),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level:    getEnv("LOG_LEVEL", "info"),
			Encoding: getEnv("LOG_ENCODING", "json"),
		},
	}

	return cfg, nil
}

// Timeout returns the configured HTTP request timeout.
func (a APIConfig) Timeout() time.Duration {
	if a.TimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// MessageInterval returns the message poll cadence.
func (s SyncConfig) MessageInterval() time.Duration {
	return secondsOr(s.MessageIntervalSeconds, 10*time.Second)
}

// ListInterval returns the ticket list poll cadence.
func (s SyncConfig) ListInterval() time.Duration {
	return secondsOr(s.ListIntervalSeconds, 15*time.Second)
}

// TypingInterval returns the remote typing poll cadence.
func (s SyncConfig) TypingInterval() time.Duration {
	return secondsOr(s.TypingIntervalSeconds, 3*time.Second)
}

// TypingWindow returns the freshness window for remote typing state.
func (s SyncConfig) TypingWindow() time.Duration {
	return secondsOr(s.TypingWindowSeconds, 5*time.Second)
}

// TypingThrottle returns the minimum gap between typing emissions.
func (s SyncConfig) TypingThrottle() time.Duration {
	return secondsOr(s.TypingThrottleSeconds, 2*time.Second)
}

// Debounce returns the draft save debounce.
func (d DraftsConfig) Debounce() time.Duration {
	if d.DebounceMillis <= 0 {
		return 600 * time.Millisecond
	}
	return time.Duration(d.DebounceMillis) * time.Millisecond
}

// Retention returns the optional redis draft TTL (zero means keep forever).
func (d DraftsConfig) Retention() time.Duration {
	if d.RetentionMinutes <= 0 {
		return 0
	}
	return time.Duration(d.RetentionMinutes) * time.Minute
}

func secondsOr(v int, fallback time.Duration) time.Duration {
	if v <= 0 {
		return fallback
	}
	return time.Duration(v) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}
