package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// AuthMode は認証方式を表す。
type AuthMode string

const (
	// AuthModeOAuth はGoogle OAuthによる認証（本人確認あり）。
	AuthModeOAuth AuthMode = "oauth"
	// AuthModeEmail はメール入力のみの認証（申告のみ、本人確認なし）。
	AuthModeEmail AuthMode = "email"
)

// StoreKind は会話履歴ストアの実装を表す。
type StoreKind string

const (
	// StoreMemory はプロセス内メモリストア（デフォルト、永続性なし）。
	StoreMemory StoreKind = "memory"
	// StorePostgres はPostgreSQLストア（再起動をまたいで履歴を保持）。
	StorePostgres StoreKind = "postgres"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// OAuth
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// Auth
	AuthMode     AuthMode
	AllowedUsers []string
	TokenKey     string
	TokenMaxAge  time.Duration

	// Cookie
	CookieName   string
	CookieSecure bool
	CookieDomain string

	// LLM
	LLMBaseURL     string
	LLMAPIKey      string
	LLMModel       string
	LLMAuditModel  string
	LLMTemperature float64
	LLMTimeout     time.Duration

	// Retriever
	RetrieverBaseURL string
	RetrieverTopK    int
	RetrieverTimeout time.Duration

	// Sheets
	SheetsBaseURL      string
	SheetsAccessToken  string
	DefaultSpreadsheet string
	DefaultSheetName   string
	UserSheetOverrides map[string]SheetTarget
	SheetsTimeout      time.Duration

	// Conversation
	ConversationStore StoreKind
	MaxTurns          int
	RetentionDays     int
	AuditMaxBytes     int64

	// Rate Limit
	RateLimitGeneral int
	RateLimitChat    int

	// Server
	ServerPort string
	BaseURL    string

	// CORS
	CORSAllowedOrigin string
}

// SheetTarget はフィードバック記録先のスプレッドシートを表す。
type SheetTarget struct {
	SpreadsheetID string
	SheetName     string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.TokenKey = os.Getenv("TOKEN_KEY")
	if cfg.TokenKey == "" {
		missing = append(missing, "TOKEN_KEY")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	allowed := os.Getenv("ALLOWED_USERS")
	if allowed == "" {
		missing = append(missing, "ALLOWED_USERS")
	}

	cfg.AuthMode = AuthMode(getEnvString("AUTH_MODE", string(AuthModeOAuth)))
	if cfg.AuthMode != AuthModeOAuth && cfg.AuthMode != AuthModeEmail {
		return nil, fmt.Errorf("invalid AUTH_MODE: %q (must be oauth or email)", cfg.AuthMode)
	}

	// OAuthモードでのみ必須となるフィールド
	cfg.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	cfg.GoogleClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	cfg.GoogleRedirectURL = os.Getenv("GOOGLE_REDIRECT_URL")
	if cfg.AuthMode == AuthModeOAuth {
		if cfg.GoogleClientID == "" {
			missing = append(missing, "GOOGLE_CLIENT_ID")
		}
		if cfg.GoogleClientSecret == "" {
			missing = append(missing, "GOOGLE_CLIENT_SECRET")
		}
		if cfg.GoogleRedirectURL == "" {
			missing = append(missing, "GOOGLE_REDIRECT_URL")
		}
	}

	cfg.ConversationStore = StoreKind(getEnvString("CONVERSATION_STORE", string(StoreMemory)))
	if cfg.ConversationStore != StoreMemory && cfg.ConversationStore != StorePostgres {
		return nil, fmt.Errorf("invalid CONVERSATION_STORE: %q (must be memory or postgres)", cfg.ConversationStore)
	}

	// PostgresストアまたはワーカーモードではDATABASE_URLが必須
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.ConversationStore == StorePostgres && cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	cfg.AllowedUsers = parseEmailList(allowed)
	if len(cfg.AllowedUsers) == 0 {
		return nil, fmt.Errorf("ALLOWED_USERS must contain at least one email")
	}

	// Optional fields with defaults
	cfg.TokenMaxAge = time.Duration(getEnvInt("TOKEN_DURATION_DAYS", 1)) * 24 * time.Hour
	cfg.CookieName = getEnvString("COOKIE_NAME", "auth_jwt")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")

	cfg.LLMBaseURL = getEnvString("LLM_BASE_URL", "https://api.openai.com/v1")
	cfg.LLMAPIKey = getEnvString("LLM_API_KEY", "")
	cfg.LLMModel = getEnvString("LLM_MODEL", "gpt-4o-mini")
	cfg.LLMAuditModel = getEnvString("LLM_AUDIT_MODEL", cfg.LLMModel)
	cfg.LLMTemperature = getEnvFloat("LLM_TEMPERATURE", 0.7)
	cfg.LLMTimeout = getEnvDuration("LLM_TIMEOUT", 60*time.Second)

	cfg.RetrieverBaseURL = getEnvString("RETRIEVER_BASE_URL", "")
	cfg.RetrieverTopK = getEnvInt("RETRIEVER_TOP_K", 4)
	cfg.RetrieverTimeout = getEnvDuration("RETRIEVER_TIMEOUT", 10*time.Second)

	cfg.SheetsBaseURL = getEnvString("SHEETS_BASE_URL", "https://sheets.googleapis.com")
	cfg.SheetsAccessToken = getEnvString("SHEETS_ACCESS_TOKEN", "")
	cfg.DefaultSpreadsheet = getEnvString("SHEETS_SPREADSHEET_ID", "")
	cfg.DefaultSheetName = getEnvString("SHEETS_SHEET_NAME", "Sheet1")
	cfg.SheetsTimeout = getEnvDuration("SHEETS_TIMEOUT", 10*time.Second)

	overrides, err := parseSheetOverrides(os.Getenv("SHEETS_USER_OVERRIDES"))
	if err != nil {
		return nil, fmt.Errorf("invalid SHEETS_USER_OVERRIDES: %w", err)
	}
	cfg.UserSheetOverrides = overrides

	cfg.MaxTurns = getEnvInt("CONVERSATION_MAX_TURNS", 200)
	cfg.RetentionDays = getEnvInt("CONVERSATION_RETENTION_DAYS", 30)
	cfg.AuditMaxBytes = getEnvInt64("AUDIT_MAX_BYTES", 262144)

	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitChat = getEnvInt("RATE_LIMIT_CHAT", 20)

	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

// IsAllowed はメールアドレスが許可リストに含まれるかを判定する。
// 比較は大文字小文字を無視し、前後の空白を除去して行う。
func (c *Config) IsAllowed(email string) bool {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" {
		return false
	}
	for _, allowed := range c.AllowedUsers {
		if allowed == normalized {
			return true
		}
	}
	return false
}

// parseEmailList はカンマ区切りのメールアドレスリストをパースする。
// 空要素は除外し、小文字に正規化する。
func parseEmailList(s string) []string {
	var emails []string
	for _, part := range strings.Split(s, ",") {
		email := strings.ToLower(strings.TrimSpace(part))
		if email != "" {
			emails = append(emails, email)
		}
	}
	return emails
}

// parseSheetOverrides はユーザー別のシート振り分け設定をパースする。
// 形式: "email=spreadsheetID/sheetName;email2=id2/name2"
func parseSheetOverrides(s string) (map[string]SheetTarget, error) {
	overrides := make(map[string]SheetTarget)
	if s == "" {
		return overrides, nil
	}

	for _, entry := range strings.Split(s, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		email, target, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("malformed entry: %q", entry)
		}
		id, name, ok := strings.Cut(target, "/")
		if !ok || id == "" || name == "" {
			return nil, fmt.Errorf("malformed sheet target: %q", target)
		}
		overrides[strings.ToLower(strings.TrimSpace(email))] = SheetTarget{
			SpreadsheetID: id,
			SheetName:     name,
		}
	}

	return overrides, nil
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
