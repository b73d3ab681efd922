// Package config は環境変数からのアプリケーション設定読み込みを提供する。
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

	// Fetch
	FetchTimeout       time.Duration
	FetchMaxSize       int64
	FetchMaxConcurrent int

	// Scheduler
	RefreshInterval       time.Duration
	RefreshSlack          float64
	SchedulerPollInterval time.Duration

	// Garbage collection
	GCAgeOffsetDays int

	// Highlight policy
	HighlightNewOnly bool
	AutoSeen         bool
	Suppression      *SuppressionRules

	// Per-host politeness
	PerHostRate  float64
	PerHostBurst int

	// Server
	ServerPort string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合、または抑制ルールの正規表現が不正な場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("required environment variable is not set: DATABASE_URL")
	}

	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 10*time.Second)
	cfg.FetchMaxSize = getEnvInt64("FETCH_MAX_SIZE", 5242880)
	cfg.FetchMaxConcurrent = getEnvInt("FETCH_MAX_CONCURRENT", 10)
	cfg.RefreshInterval = getEnvDuration("REFRESH_INTERVAL", 10*time.Minute)
	cfg.RefreshSlack = getEnvFloat("REFRESH_SLACK", 0.1)
	cfg.SchedulerPollInterval = getEnvDuration("SCHEDULER_POLL_INTERVAL", 30*time.Second)
	cfg.GCAgeOffsetDays = getEnvInt("GC_AGE_OFFSET_DAYS", 365)
	cfg.HighlightNewOnly = getEnvBool("HIGHLIGHT_NEW_ONLY", false)
	cfg.AutoSeen = getEnvBool("AUTO_SEEN", false)
	cfg.PerHostRate = getEnvFloat("PER_HOST_RATE", 1.0)
	cfg.PerHostBurst = getEnvInt("PER_HOST_BURST", 2)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")

	if cfg.RefreshSlack < 0 || cfg.RefreshSlack >= 1 {
		return nil, fmt.Errorf("REFRESH_SLACK must be in [0, 1): %v", cfg.RefreshSlack)
	}

	rules, err := ParseSuppressionRules(
		os.Getenv("SUPPRESS_TITLE"),
		os.Getenv("SUPPRESS_SUMMARY"),
		os.Getenv("SUPPRESS_URL"),
	)
	if err != nil {
		return nil, err
	}
	cfg.Suppression = rules

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

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
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
