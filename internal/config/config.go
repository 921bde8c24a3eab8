package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/subosito/gotenv"
)

// ストアのバックエンド種別
const (
	StoreBackendPostgres   = "postgres"
	StoreBackendOpenSearch = "opensearch"
)

// DefaultEnvFile は --config 未指定時に読み込む環境ファイル。
const DefaultEnvFile = ".env"

// minAlertSampleSize は閾値判定に必要な最小件数。alert.MinSampleSize と同じ値を保つ。
const minAlertSampleSize = 10

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Upstream (twitterapi.io)
	TwitterAPIKey     string
	TwitterAPIBaseURL string
	TwitterMaxRPS     float64
	FetchLimit        int
	FetchTimeout      time.Duration
	FetchBatchSize    int
	FetchBatchPause   time.Duration
	AccountsFile      string
	TargetKeywords    []string

	// OpenAI
	OpenAIAPIKey      string
	OpenAIModel       string
	OpenAIBaseURL     string
	EmbeddingModel    string
	EmbeddingsEnabled bool

	// Store
	StoreBackend       string
	DatabaseURL        string
	OpenSearchURL      string
	OpenSearchUsername string
	OpenSearchPassword string
	OpenSearchIndex    string

	// Alert
	NotificationMethod string
	TelegramToken      string
	TelegramChatID     string
	AlertWebhookURL    string
	SentimentThreshold int
	AlertSampleSize    int
	AlertCooldown      time.Duration

	// Scheduler
	MonitoringInterval time.Duration
	AlertCheckInterval time.Duration

	// Server
	ServerPort           string
	APIRatePerMinute     int
	SimilarRatePerMinute int

	// Logging
	LogFormat string
	LogLevel  string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.TwitterAPIKey = os.Getenv("TWITTERAPI_KEY")
	if cfg.TwitterAPIKey == "" {
		missing = append(missing, "TWITTERAPI_KEY")
	}

	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	if cfg.OpenAIAPIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}

	cfg.StoreBackend = strings.ToLower(getEnvString("STORE_BACKEND", StoreBackendPostgres))
	switch cfg.StoreBackend {
	case StoreBackendPostgres:
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
		if cfg.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	case StoreBackendOpenSearch:
		cfg.OpenSearchURL = os.Getenv("OPENSEARCH_URL")
		if cfg.OpenSearchURL == "" {
			missing = append(missing, "OPENSEARCH_URL")
		}
	default:
		return nil, fmt.Errorf("unsupported STORE_BACKEND: %q (allowed: %s, %s)", cfg.StoreBackend, StoreBackendPostgres, StoreBackendOpenSearch)
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	method := strings.ToLower(getEnvString("NOTIFICATION_METHOD", "console"))
	switch method {
	case "console", "telegram", "webhook", "all":
	default:
		return nil, fmt.Errorf("unsupported NOTIFICATION_METHOD: %q (allowed: console, telegram, webhook, all)", method)
	}
	cfg.NotificationMethod = method

	// Optional fields with defaults
	cfg.TwitterAPIBaseURL = strings.TrimRight(getEnvString("TWITTERAPI_BASE_URL", "https://api.twitterapi.io"), "/")
	cfg.TwitterMaxRPS = getEnvFloat("TWITTER_MAX_RPS", 0)
	cfg.FetchLimit = getEnvInt("FETCH_LIMIT", 20)
	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 10*time.Second)
	cfg.FetchBatchSize = getEnvInt("FETCH_BATCH_SIZE", 5)
	cfg.FetchBatchPause = getEnvDuration("FETCH_BATCH_PAUSE", 2*time.Second)
	cfg.AccountsFile = getEnvString("ACCOUNTS_FILE", "accounts.csv")
	cfg.TargetKeywords = getEnvList("TARGET_KEYWORDS", []string{"BTC", "ETH", "SOL"})

	cfg.OpenAIModel = getEnvString("OPENAI_MODEL", "gpt-3.5-turbo-instruct")
	cfg.OpenAIBaseURL = getEnvString("OPENAI_BASE_URL", "")
	cfg.EmbeddingModel = getEnvString("EMBEDDING_MODEL", "text-embedding-3-small")
	cfg.EmbeddingsEnabled = getEnvBool("EMBEDDINGS_ENABLED", true)

	cfg.OpenSearchUsername = getEnvString("OPENSEARCH_USERNAME", "")
	cfg.OpenSearchPassword = getEnvString("OPENSEARCH_PASSWORD", "")
	cfg.OpenSearchIndex = getEnvString("OPENSEARCH_INDEX", "sentiment-records")

	cfg.TelegramToken = getEnvString("TELEGRAM_TOKEN", "")
	cfg.TelegramChatID = getEnvString("TELEGRAM_CHAT_ID", "")
	cfg.AlertWebhookURL = getEnvString("ALERT_WEBHOOK_URL", "")
	cfg.SentimentThreshold = getEnvInt("SENTIMENT_THRESHOLD", 7)
	cfg.AlertSampleSize = getEnvInt("ALERT_SAMPLE_SIZE", 10)
	cfg.AlertCooldown = getEnvDuration("ALERT_COOLDOWN", time.Hour)

	// サンプルが最小件数に満たない、または閾値がサンプルを超える設定ではアラートが発火し得ない
	if cfg.AlertSampleSize < minAlertSampleSize {
		return nil, fmt.Errorf("ALERT_SAMPLE_SIZE must be at least %d, got %d", minAlertSampleSize, cfg.AlertSampleSize)
	}
	if cfg.SentimentThreshold < 1 || cfg.SentimentThreshold > cfg.AlertSampleSize {
		return nil, fmt.Errorf("SENTIMENT_THRESHOLD must be between 1 and ALERT_SAMPLE_SIZE (%d), got %d", cfg.AlertSampleSize, cfg.SentimentThreshold)
	}

	cfg.MonitoringInterval = getEnvDuration("MONITORING_INTERVAL", 5*time.Minute)
	cfg.AlertCheckInterval = getEnvDuration("ALERT_CHECK_INTERVAL", time.Minute)

	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.APIRatePerMinute = getEnvInt("API_RATE_LIMIT_PER_MINUTE", 120)
	cfg.SimilarRatePerMinute = getEnvInt("SIMILAR_RATE_LIMIT_PER_MINUTE", 10)
	if cfg.APIRatePerMinute < 1 || cfg.SimilarRatePerMinute < 1 {
		return nil, fmt.Errorf("API_RATE_LIMIT_PER_MINUTE and SIMILAR_RATE_LIMIT_PER_MINUTE must be positive")
	}
	cfg.LogFormat = strings.ToLower(getEnvString("LOG_FORMAT", "json"))
	cfg.LogLevel = strings.ToLower(getEnvString("LOG_LEVEL", "info"))

	return cfg, nil
}

// LoadEnvFile は環境ファイルを読み込み、未設定の環境変数だけを補完する。
// 既に設定済みの環境変数は上書きしない。
// explicit が false（既定の .env）の場合、ファイルが存在しなくてもエラーにしない。
func LoadEnvFile(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	if err := gotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// ApplyParams は "KEY=VALUE" 形式の上書き指定を環境変数に反映する。
func ApplyParams(params []string) error {
	for _, p := range params {
		key, value, ok := strings.Cut(p, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return fmt.Errorf("invalid param %q: expected KEY=VALUE", p)
		}
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("failed to set param %s: %w", key, err)
		}
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

// getEnvDuration はGoのduration表記（"5m"）に加え、整数の秒数（"300"）も受け付ける。
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

// getEnvList はカンマ区切りの値を空要素を除いて返す。
func getEnvList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
