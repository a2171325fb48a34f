package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Development bool
	// API configuration
	APIPort int
	// Postgres configuration
	PostgresUser     string
	PostgresPassword string
	PostgresHost     string
	PostgresPort     int
	PostgresDB       string
	// TikTok open API configuration
	TikTokAPIBaseURL   string
	TikTokClientKey    string
	TikTokClientSecret string

	// Lock configuration. The TTL must comfortably cover the slowest
	// realistic sync (paginated video list) so a live holder is never
	// mistaken for a stale one.
	LockTTL time.Duration

	// Sync tuning. Account-info calls are cheap and run at higher
	// concurrency than the heavier paginated video-list calls.
	AccountSyncConcurrency int
	VideoSyncConcurrency   int
	BatchDelay             time.Duration
	SyncMaxRetries         int
	SyncRetryDelay         time.Duration
	MaxVideoItems          int

	// Token refresh configuration
	TokenRefreshLookahead time.Duration

	// Scheduler configuration
	SchedulerEnabled     bool
	UserStatsInterval    time.Duration
	VideoStatsInterval   time.Duration
	TokenRefreshInterval time.Duration

	// Notification configuration
	TelegramBotToken string
	TelegramChatID   string
}

// LoadConfig loads the configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Development:      getEnvAsBool("DEVELOPMENT", false),
		APIPort:          getEnvAsInt("API_PORT", 8090),
		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "password"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnvAsInt("POSTGRES_PORT", 5432),
		PostgresDB:       getEnv("POSTGRES_DB", "tiksync"),

		TikTokAPIBaseURL:   getEnv("TIKTOK_API_BASE_URL", "https://open.tiktokapis.com"),
		TikTokClientKey:    getEnv("TIKTOK_CLIENT_KEY", ""),
		TikTokClientSecret: getEnv("TIKTOK_CLIENT_SECRET", ""),

		LockTTL: getEnvAsDuration("LOCK_TTL", 10*time.Minute),

		AccountSyncConcurrency: getEnvAsInt("ACCOUNT_SYNC_CONCURRENCY", 8),
		VideoSyncConcurrency:   getEnvAsInt("VIDEO_SYNC_CONCURRENCY", 3),
		BatchDelay:             getEnvAsDuration("SYNC_BATCH_DELAY", 2*time.Second),
		SyncMaxRetries:         getEnvAsInt("SYNC_MAX_RETRIES", 2),
		SyncRetryDelay:         getEnvAsDuration("SYNC_RETRY_DELAY", 5*time.Second),
		MaxVideoItems:          getEnvAsInt("MAX_VIDEO_ITEMS", 200),

		TokenRefreshLookahead: getEnvAsDuration("TOKEN_REFRESH_LOOKAHEAD", 24*time.Hour),

		SchedulerEnabled:     getEnvAsBool("SCHEDULER_ENABLED", true),
		UserStatsInterval:    getEnvAsDuration("USER_STATS_INTERVAL", time.Hour),
		VideoStatsInterval:   getEnvAsDuration("VIDEO_STATS_INTERVAL", 4*time.Hour),
		TokenRefreshInterval: getEnvAsDuration("TOKEN_REFRESH_INTERVAL", 30*time.Minute),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are properly set
func (c *Config) Validate() error {
	if c.PostgresDB == "" {
		return fmt.Errorf("POSTGRES_DB is required")
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("POSTGRES_HOST is required")
	}

	if c.TikTokAPIBaseURL == "" {
		return fmt.Errorf("TIKTOK_API_BASE_URL is required")
	}

	if c.LockTTL <= 0 {
		return fmt.Errorf("LOCK_TTL must be positive")
	}

	if c.AccountSyncConcurrency < 1 || c.VideoSyncConcurrency < 1 {
		return fmt.Errorf("sync concurrency must be at least 1")
	}

	if c.MaxVideoItems < 1 {
		return fmt.Errorf("MAX_VIDEO_ITEMS must be at least 1")
	}

	return nil
}

// Helper functions to read environment variables
func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(name string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsBool(name string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.ParseBool(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsDuration(name string, defaultValue time.Duration) time.Duration {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := time.ParseDuration(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}
