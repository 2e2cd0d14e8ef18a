package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// QueueBackend はキューストアのバックエンド種別を表す。
type QueueBackend string

const (
	// QueueBackendFS はファイルシステムバックエンド（デフォルト）。
	QueueBackendFS QueueBackend = "fs"
	// QueueBackendPostgres はPostgreSQLバックエンド。
	QueueBackendPostgres QueueBackend = "postgres"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Site
	BaseURL   string
	PublicDir string

	// Queue
	QueueBackend       QueueBackend
	QueueDir           string
	DatabaseURL        string
	QueueRetentionDays int

	// GitHub
	GitHubUser   string
	GitHubRepo   string
	GitHubToken  string
	GitHubBranch string

	// Mail
	SMTPAddr   string
	SMTPUser   string
	SMTPPass   string
	MailSender string
	MailOwner  string

	// Publish / Mention
	PublishTimeout time.Duration
	MentionTimeout time.Duration
	MentionMaxSize int64

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
// QUEUE_BACKENDに応じてQUEUE_DIRまたはDATABASE_URLのどちらかが必須になる。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	cfg.PublicDir = os.Getenv("PUBLIC_DIR")
	if cfg.PublicDir == "" {
		missing = append(missing, "PUBLIC_DIR")
	}

	cfg.GitHubUser = os.Getenv("GITHUB_USER")
	if cfg.GitHubUser == "" {
		missing = append(missing, "GITHUB_USER")
	}

	cfg.GitHubRepo = os.Getenv("GITHUB_REPOSITORY")
	if cfg.GitHubRepo == "" {
		missing = append(missing, "GITHUB_REPOSITORY")
	}

	cfg.GitHubToken = os.Getenv("GITHUB_ACCESS_TOKEN")
	if cfg.GitHubToken == "" {
		missing = append(missing, "GITHUB_ACCESS_TOKEN")
	}

	cfg.SMTPAddr = os.Getenv("SMTP_ADDR")
	if cfg.SMTPAddr == "" {
		missing = append(missing, "SMTP_ADDR")
	}

	cfg.MailSender = os.Getenv("MAIL_SENDER")
	if cfg.MailSender == "" {
		missing = append(missing, "MAIL_SENDER")
	}

	// バックエンド種別に応じた必須項目
	backend := QueueBackend(getEnvString("QUEUE_BACKEND", string(QueueBackendFS)))
	switch backend {
	case QueueBackendFS:
		cfg.QueueDir = os.Getenv("QUEUE_DIR")
		if cfg.QueueDir == "" {
			missing = append(missing, "QUEUE_DIR")
		}
	case QueueBackendPostgres:
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
		if cfg.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	default:
		return nil, fmt.Errorf("unknown QUEUE_BACKEND: %s (allowed: fs, postgres)", backend)
	}
	cfg.QueueBackend = backend

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.QueueRetentionDays = getEnvInt("QUEUE_RETENTION_DAYS", 90)
	cfg.GitHubBranch = getEnvString("GITHUB_BRANCH", "main")
	cfg.SMTPUser = getEnvString("SMTP_USER", "")
	cfg.SMTPPass = getEnvString("SMTP_PASS", "")
	cfg.MailOwner = getEnvString("MAIL_OWNER", cfg.MailSender)
	cfg.PublishTimeout = getEnvDuration("PUBLISH_TIMEOUT", 30*time.Second)
	cfg.MentionTimeout = getEnvDuration("MENTION_TIMEOUT", 10*time.Second)
	cfg.MentionMaxSize = getEnvInt64("MENTION_MAX_SIZE", 1<<20)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", strings.TrimSuffix(cfg.BaseURL, "/"))

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
