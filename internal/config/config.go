package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// レコードストアのバックエンド
const (
	// BackendREST はSupabaseのREST(PostgREST) APIを使用する。
	BackendREST = "rest"
	// BackendPostgres はPostgreSQLへ直接接続する。
	BackendPostgres = "postgres"
	// BackendMemory はプロセス内メモリを使用する。ローカル開発用。
	BackendMemory = "memory"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Record store
	StoreBackend string
	SupabaseURL  string
	SupabaseKey  string
	DatabaseURL  string
	StoreTimeout time.Duration

	// MemorySeedUsers はmemoryバックエンドの起動時に読み込むユーザーJSONファイルのパス。
	MemorySeedUsers string

	// Token
	TokenTTL         time.Duration
	AllowEmailLookup bool

	// Cleanup
	CleanupInterval time.Duration
	TokenRetention  time.Duration

	// Logging
	LogLevel slog.Level

	// Server
	ServerPort  string
	CabinetPath string

	// CORS
	CORSAllowedOrigin string
}

// LoadEnvFile はpathの.envファイルを環境変数に読み込む。
// 既に設定されている環境変数は上書きしない。ファイルが存在しない場合は何もしない。
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数はSTORE_BACKENDによって異なり、未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.StoreBackend = strings.ToLower(getEnvString("STORE_BACKEND", BackendREST))
	cfg.SupabaseURL = os.Getenv("SUPABASE_URL")
	cfg.SupabaseKey = os.Getenv("SUPABASE_KEY")
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.MemorySeedUsers = os.Getenv("MEMORY_SEED_USERS")

	// Required fields
	var missing []string

	switch cfg.StoreBackend {
	case BackendREST:
		if cfg.SupabaseURL == "" {
			missing = append(missing, "SUPABASE_URL")
		}
		if cfg.SupabaseKey == "" {
			missing = append(missing, "SUPABASE_KEY")
		}
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	case BackendMemory:
	default:
		return nil, fmt.Errorf("unsupported STORE_BACKEND %q: want %s, %s or %s",
			cfg.StoreBackend, BackendREST, BackendPostgres, BackendMemory)
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	level, err := parseLogLevel(getEnvString("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = level

	// Optional fields with defaults
	if cfg.StoreTimeout, err = getEnvPositiveDuration("STORE_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.TokenTTL, err = getEnvPositiveDuration("TOKEN_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.AllowEmailLookup, err = getEnvBool("ALLOW_EMAIL_LOOKUP", true); err != nil {
		return nil, err
	}
	if cfg.CleanupInterval, err = getEnvPositiveDuration("CLEANUP_INTERVAL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.TokenRetention, err = getEnvDuration("TOKEN_RETENTION", 0); err != nil {
		return nil, err
	}
	if cfg.TokenRetention < 0 {
		return nil, fmt.Errorf("invalid TOKEN_RETENTION %q: must not be negative", cfg.TokenRetention)
	}
	cfg.ServerPort = ServerPort()
	cfg.CabinetPath = getEnvString("CABINET_PATH", "/cabinet")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "*")

	return cfg, nil
}

// ServerPort は待ち受けポートを返す。
// SERVER_PORT、PORTの順に参照し、どちらも未設定の場合は3000を返す。
// PaaSが設定するPORTにも対応するため、healthcheckからも使用する。
func ServerPort() string {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		return v
	}
	return getEnvString("PORT", "3000")
}

func parseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid LOG_LEVEL %q: %w", s, err)
	}
	return level, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return b, nil
}

// getEnvDuration はkeyの値をtime.ParseDurationで解釈する。
// 未設定の場合はdefaultValを返し、解釈できない場合はエラーを返す。
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

// getEnvPositiveDuration はgetEnvDurationに加えて0以下の値をエラーにする。
func getEnvPositiveDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	d, err := getEnvDuration(key, defaultVal)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be positive", key, d)
	}
	return d, nil
}
