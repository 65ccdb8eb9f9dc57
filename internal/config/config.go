// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/yourusername/toolshub/internal/pdf"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// サーバー設定
	Port    string // APIサーバーのポート番号
	GinMode string // Ginの実行モード (debug, release, test)

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// セッション設定
	SessionSecret      string // セッション署名用の秘密鍵
	SessionIdleMinutes int    // 操作がないコントローラーを破棄するまでの時間（分）

	// ファイル制限
	MaxFileSize int64 // アップロード1リクエストあたりの最大サイズ（バイト）

	// ジョブ設定
	RedisURL         string // ジョブ状態保存用のRedis接続URL（空なら無効）
	JobExpireMinutes int    // ジョブ状態の保持期間（分）
	WorkDir          string // 入力と成果物を置く作業ディレクトリ

	// 変換API設定
	TransformBaseURL      string                       // 全ツール共通のベースURL（空なら個別設定/既定値）
	RequestTimeoutSeconds int                          // 変換APIリクエストのタイムアウト（秒）
	Endpoints             map[pdf.OperationType]string // ツールごとの変換APIのURL

	// ログ設定
	LogLevel string // debug, info, warn, error
	LogFile  string // ログファイルのパス（空なら標準出力のみ）
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	// .env.local ファイルを読み込む（存在しない場合はスキップ）
	loadEnvFile()

	config := &Config{
		// サーバー設定
		Port:    getEnv("PORT", "8080"),
		GinMode: getEnv("GIN_MODE", "debug"),

		// CORS設定
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),

		// セッション設定
		SessionSecret:      getEnv("SESSION_SECRET", ""),
		SessionIdleMinutes: getEnvAsInt("SESSION_IDLE_MINUTES", 30),

		// ファイル制限
		MaxFileSize: getEnvAsInt64("MAX_FILE_SIZE", 104857600), // 100MB

		// ジョブ設定
		RedisURL:         getEnv("REDIS_URL", ""),
		JobExpireMinutes: getEnvAsInt("JOB_EXPIRE_MINUTES", 10),
		WorkDir:          getEnv("WORK_DIR", filepath.Join(os.TempDir(), "toolshub")),

		// 変換API設定
		TransformBaseURL:      getEnv("TRANSFORM_API_BASE_URL", ""),
		RequestTimeoutSeconds: getEnvAsInt("REQUEST_TIMEOUT_SECONDS", 120),

		// ログ設定
		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),
	}
	config.Endpoints = loadEndpoints(config.TransformBaseURL)

	// 必須設定のバリデーション
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// loadEndpoints はツールごとのURLを解決します。
// 優先順位: <TOOL>_API_URL > TRANSFORM_API_BASE_URL/<tool> > 既定値
func loadEndpoints(baseURL string) map[pdf.OperationType]string {
	endpoints := make(map[pdf.OperationType]string, len(pdf.Operations()))
	for _, op := range pdf.Operations() {
		fallback := op.DefaultEndpoint
		if baseURL != "" {
			fallback = strings.TrimRight(baseURL, "/") + "/" + string(op.Type)
		}
		endpoints[op.Type] = getEnv(EndpointEnvKey(op.Type), fallback)
	}
	return endpoints
}

// EndpointEnvKey はツールのURLを上書きする環境変数名を返します（例: COMPRESS_PDF_API_URL）。
func EndpointEnvKey(op pdf.OperationType) string {
	return strings.ToUpper(strings.ReplaceAll(string(op), "-", "_")) + "_API_URL"
}

// RequestTimeout は変換APIリクエストのタイムアウトを返します。
func (c *Config) RequestTimeout() time.Duration {
	if c.RequestTimeoutSeconds <= 0 {
		return 120 * time.Second
	}
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// SessionIdleTimeout はコントローラーの破棄までの無操作時間を返します。
func (c *Config) SessionIdleTimeout() time.Duration {
	if c.SessionIdleMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.SessionIdleMinutes) * time.Minute
}

// JobTTL はジョブ状態の保持期間を返します。
func (c *Config) JobTTL() time.Duration {
	if c.JobExpireMinutes <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.JobExpireMinutes) * time.Minute
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	if c.GinMode == "release" {
		if c.SessionSecret == "" {
			return fmt.Errorf("SESSION_SECRET is required in release mode")
		}
	}
	if c.WorkDir == "" {
		return fmt.Errorf("WORK_DIR must not be empty")
	}
	for op, endpoint := range c.Endpoints {
		if strings.TrimSpace(endpoint) == "" {
			return fmt.Errorf("%s must not be empty", EndpointEnvKey(op))
		}
	}

	return nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsInt64 は環境変数を64ビット整数として取得します。
func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}
