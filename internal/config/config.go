package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// フィードパーサーの種別。
const (
	ParserRegex  = "regex"
	ParserGofeed = "gofeed"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Queue
	QueueDBPath         string
	QueueInterval       time.Duration
	QueueMaxAttempts    int
	QueueInitialBackoff time.Duration
	QueueMaxBackoff     time.Duration
	QueueRetentionDays  int

	// Feed
	FeedTimeout         time.Duration
	FeedMaxSize         int64
	FeedMaxConcurrent   int
	FeedRefreshInterval time.Duration
	FeedParser          string
	FeedSourcesFile     string

	// Cache
	RedisURL        string
	ArticleCacheTTL time.Duration

	// Rate Limit
	RateLimitPerMinute int

	// Logging
	LogLevel string

	// Server
	ServerPort  string
	MetricsPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("required environment variables are not set: %v", []string{"DATABASE_URL"})
	}

	// Optional fields with defaults
	cfg.QueueDBPath = getEnvString("QUEUE_DB_PATH", "./data/queue.db")
	cfg.QueueInterval = getEnvDuration("QUEUE_INTERVAL", 15*time.Second)
	cfg.QueueMaxAttempts = getEnvInt("QUEUE_MAX_ATTEMPTS", 5)
	cfg.QueueInitialBackoff = getEnvDuration("QUEUE_INITIAL_BACKOFF", 2*time.Second)
	cfg.QueueMaxBackoff = getEnvDuration("QUEUE_MAX_BACKOFF", 5*time.Minute)
	cfg.QueueRetentionDays = getEnvInt("QUEUE_RETENTION_DAYS", 30)
	cfg.FeedTimeout = getEnvDuration("FEED_TIMEOUT", 15*time.Second)
	cfg.FeedMaxSize = getEnvInt64("FEED_MAX_SIZE", 5242880)
	cfg.FeedMaxConcurrent = getEnvInt("FEED_MAX_CONCURRENT", 8)
	cfg.FeedRefreshInterval = getEnvDuration("FEED_REFRESH_INTERVAL", 10*time.Minute)
	cfg.FeedParser = getEnvString("FEED_PARSER", ParserRegex)
	cfg.FeedSourcesFile = getEnvString("FEED_SOURCES_FILE", "")
	cfg.RedisURL = getEnvString("REDIS_URL", "")
	cfg.ArticleCacheTTL = getEnvDuration("ARTICLE_CACHE_TTL", 10*time.Minute)
	cfg.RateLimitPerMinute = getEnvInt("RATE_LIMIT_PER_MINUTE", 120)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.MetricsPort = getEnvString("METRICS_PORT", "9090")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "")

	if cfg.FeedParser != ParserRegex && cfg.FeedParser != ParserGofeed {
		return nil, fmt.Errorf("FEED_PARSER must be %q or %q: %q", ParserRegex, ParserGofeed, cfg.FeedParser)
	}

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
