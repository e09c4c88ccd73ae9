package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Scraper backend
	ScraperBaseURL string
	// ScraperAllowPrivate はプライベートIP・ループバック上のバックエンドへの
	// 接続を許可する。Docker Compose等の内部ネットワーク構成で使用する。
	ScraperAllowPrivate bool
	FetchTimeout        time.Duration
	FetchMaxSize        int64
	BackendPageSize     int

	// Pipeline
	RefreshInterval time.Duration
	JobPollInterval time.Duration
	FilterDebounce  time.Duration
	DefaultPageSize int
	CriticalLimit   int

	// Job retention
	JobRetentionDays int

	// Rate Limit
	RateLimitGeneral   int
	RateLimitScrapeJob int

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.ScraperBaseURL = os.Getenv("SCRAPER_BASE_URL")
	if cfg.ScraperBaseURL == "" {
		missing = append(missing, "SCRAPER_BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.ScraperAllowPrivate = getEnvBool("SCRAPER_ALLOW_PRIVATE", false)
	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 10*time.Second)
	cfg.FetchMaxSize = getEnvInt64("FETCH_MAX_SIZE", 5242880)
	cfg.BackendPageSize = getEnvInt("BACKEND_PAGE_SIZE", 200)
	cfg.RefreshInterval = getEnvDuration("REFRESH_INTERVAL", 5*time.Minute)
	cfg.JobPollInterval = getEnvDuration("JOB_POLL_INTERVAL", 2*time.Second)
	cfg.FilterDebounce = getEnvDuration("FILTER_DEBOUNCE", 50*time.Millisecond)
	cfg.DefaultPageSize = getEnvInt("DEFAULT_PAGE_SIZE", 20)
	cfg.CriticalLimit = getEnvInt("CRITICAL_LIMIT", 50)
	cfg.JobRetentionDays = getEnvInt("JOB_RETENTION_DAYS", 30)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitScrapeJob = getEnvInt("RATE_LIMIT_SCRAPE_JOB", 10)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
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
