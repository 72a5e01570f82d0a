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

	// Telegram
	BotToken string

	// API認証
	ServiceAPIKey string // フロントエンド（ボット）用キー
	AdminAPIKey   string // 管理操作用キー

	// Worker
	SweepInterval    time.Duration // 期限切れスイープの実行間隔
	ReminderInterval time.Duration // 期限前リマインダーの実行間隔
	ReminderWindow   time.Duration // 期限の何時間前から通知するか

	// 外部呼び出し
	IssueTimeout  time.Duration // 招待リンク発行のタイムアウト
	NotifyTimeout time.Duration // 通知送信のタイムアウト

	// Rate Limit
	RateLimitGeneral  int // API全般（req/min/account）
	RateLimitPurchase int // 購入API（req/min/account）

	// Broadcast
	BroadcastRate float64 // 一斉送信のペース（msg/sec）

	// Server
	ServerPort string

	// Logging
	LogLevel string
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

	cfg.BotToken = os.Getenv("BOT_TOKEN")
	if cfg.BotToken == "" {
		missing = append(missing, "BOT_TOKEN")
	}

	cfg.ServiceAPIKey = os.Getenv("SERVICE_API_KEY")
	if cfg.ServiceAPIKey == "" {
		missing = append(missing, "SERVICE_API_KEY")
	}

	cfg.AdminAPIKey = os.Getenv("ADMIN_API_KEY")
	if cfg.AdminAPIKey == "" {
		missing = append(missing, "ADMIN_API_KEY")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SweepInterval = getEnvDuration("SWEEP_INTERVAL", time.Hour)
	cfg.ReminderInterval = getEnvDuration("REMINDER_INTERVAL", 24*time.Hour)
	cfg.ReminderWindow = getEnvDuration("REMINDER_WINDOW", 24*time.Hour)
	cfg.IssueTimeout = getEnvDuration("ISSUE_TIMEOUT", 10*time.Second)
	cfg.NotifyTimeout = getEnvDuration("NOTIFY_TIMEOUT", 10*time.Second)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitPurchase = getEnvInt("RATE_LIMIT_PURCHASE", 10)
	cfg.BroadcastRate = getEnvFloat("BROADCAST_RATE", 20.0)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

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
