// Package config は環境変数と設定ファイルからアプリケーション設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultEnvFile はローカル設定ファイルの既定パス。
const DefaultEnvFile = "env.txt"

// Config はアプリケーション全体の設定を保持する。
// 起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string
	AutoMigrate bool
	RunLockFile string

	// Oracle
	OracleAPIKey      string
	OracleBaseURL     string
	OracleModel       string
	OracleTimeout     time.Duration
	OracleMaxAttempts int

	// Harvest
	FetchTimeout     time.Duration
	ArticleTimeout   time.Duration
	FetchMaxSize     int64
	HarvestMaxAge    time.Duration
	MinContentLength int
	UserAgent        string

	// Retention
	RetentionDays           int
	RetentionIncludeScripts bool

	// Worker
	PipelineInterval time.Duration
	CleanupInterval  time.Duration

	// Server
	ServerPort         string
	CORSAllowedOrigin  string // カンマ区切りで複数指定可
	GenerateRatePerMin int

	// Logging
	LogLevel string

	// Sources and lanes
	SourcesFile string
	Catalog     *Catalog
}

// Load はローカル設定ファイル（ENV_FILE、既定はenv.txt）を読み込んだ後、環境変数からConfigを構築する。
// 既に設定されている環境変数は設定ファイルで上書きしない。設定ファイルが存在しない場合はエラーにしない。
func Load() (*Config, error) {
	envFile := getEnvString("ENV_FILE", DefaultEnvFile)
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
	}

	cfg := &Config{}

	cfg.DatabaseURL = getEnvString("DATABASE_URL", "magic_rundown.db")
	cfg.AutoMigrate = getEnvBool("AUTO_MIGRATE", true)
	cfg.RunLockFile = getEnvString("RUN_LOCK_FILE", "")

	cfg.OracleAPIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	cfg.OracleBaseURL = getEnvString("ORACLE_BASE_URL", "https://api.openai.com/v1/")
	cfg.OracleModel = getEnvString("ORACLE_MODEL", "gpt-4o-mini")
	cfg.OracleTimeout = getEnvDuration("ORACLE_TIMEOUT", 30*time.Second)
	cfg.OracleMaxAttempts = getEnvInt("ORACLE_MAX_ATTEMPTS", 1)

	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 10*time.Second)
	cfg.ArticleTimeout = getEnvDuration("ARTICLE_TIMEOUT", 10*time.Second)
	cfg.FetchMaxSize = getEnvInt64("FETCH_MAX_SIZE", 5242880)
	cfg.HarvestMaxAge = getEnvDuration("HARVEST_MAX_AGE", 48*time.Hour)
	cfg.MinContentLength = getEnvInt("MIN_CONTENT_LENGTH", 150)
	cfg.UserAgent = getEnvString("USER_AGENT", DefaultUserAgent)

	cfg.RetentionDays = getEnvInt("RETENTION_DAYS", 7)
	cfg.RetentionIncludeScripts = getEnvBool("RETENTION_INCLUDE_SCRIPTS", false)

	cfg.PipelineInterval = getEnvDuration("PIPELINE_INTERVAL", time.Hour)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", 24*time.Hour)

	cfg.ServerPort = getEnvString("SERVER_PORT", "8083")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:8083")
	cfg.GenerateRatePerMin = getEnvInt("GENERATE_RATE_PER_MIN", 6)

	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	cfg.SourcesFile = getEnvString("SOURCES_FILE", "")
	catalog, err := LoadCatalog(cfg.SourcesFile)
	if err != nil {
		return nil, err
	}
	cfg.Catalog = catalog

	if cfg.RetentionDays <= 0 {
		return nil, fmt.Errorf("RETENTION_DAYS must be positive: %d", cfg.RetentionDays)
	}

	return cfg, nil
}

// RequireOracle はオラクルを使うコマンドに必要な設定が揃っているかを検証する。
func (c *Config) RequireOracle() error {
	if c.OracleAPIKey == "" {
		return fmt.Errorf("required environment variables are not set: %v", []string{"OPENAI_API_KEY"})
	}
	return nil
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
