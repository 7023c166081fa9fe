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
	// Record store
	RecordStoreURL string
	AdminEmail     string
	AdminPassword  string

	// Session
	SessionSecret string
	TokenTTL      time.Duration

	// Oracle
	OracleRPCURL      string
	OracleFeedAddress string
	NonceMaxAge       time.Duration

	// GitHub
	GithubToken   string
	GithubAPIBase string

	// Rate Limit（req/min）
	RateLimitGeneral int
	RateLimitClaim   int

	// Notification
	NotificationRetentionDays int

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

	cfg.RecordStoreURL = os.Getenv("RECORD_STORE_URL")
	if cfg.RecordStoreURL == "" {
		missing = append(missing, "RECORD_STORE_URL")
	}

	cfg.AdminEmail = os.Getenv("ADMIN_EMAIL")
	if cfg.AdminEmail == "" {
		missing = append(missing, "ADMIN_EMAIL")
	}

	cfg.AdminPassword = os.Getenv("ADMIN_PASSWORD")
	if cfg.AdminPassword == "" {
		missing = append(missing, "ADMIN_PASSWORD")
	}

	cfg.SessionSecret = os.Getenv("SESSION_SECRET")
	if cfg.SessionSecret == "" {
		missing = append(missing, "SESSION_SECRET")
	}

	cfg.OracleRPCURL = os.Getenv("ORACLE_RPC_URL")
	if cfg.OracleRPCURL == "" {
		missing = append(missing, "ORACLE_RPC_URL")
	}

	cfg.OracleFeedAddress = os.Getenv("ORACLE_FEED_ADDRESS")
	if cfg.OracleFeedAddress == "" {
		missing = append(missing, "ORACLE_FEED_ADDRESS")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.TokenTTL = getEnvDuration("TOKEN_TTL", 7*24*time.Hour)
	cfg.NonceMaxAge = getEnvDuration("NONCE_MAX_AGE", time.Hour)
	cfg.GithubToken = os.Getenv("GITHUB_TOKEN")
	cfg.GithubAPIBase = getEnvString("GITHUB_API_BASE", "https://api.github.com")
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitClaim = getEnvInt("RATE_LIMIT_CLAIM", 10)
	cfg.NotificationRetentionDays = getEnvInt("NOTIFICATION_RETENTION_DAYS", 30)
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
