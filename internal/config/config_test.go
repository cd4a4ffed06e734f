package config

import (
	"strings"
	"testing"
	"time"
)

func setRequiredEnvVars(t *testing.T) {
	t.Helper()
	t.Setenv("TOKEN_KEY", "test-token-key-32bytes-long-aaaa")
	t.Setenv("BASE_URL", "http://localhost:8080")
	t.Setenv("ALLOWED_USERS", "Student@Example.edu, advisor@example.edu")
	t.Setenv("GOOGLE_CLIENT_ID", "test-client-id")
	t.Setenv("GOOGLE_CLIENT_SECRET", "test-client-secret")
	t.Setenv("GOOGLE_REDIRECT_URL", "http://localhost:8080/auth/google/callback")
}

func TestLoad_AllRequiredVarsSet_ReturnsConfig(t *testing.T) {
	setRequiredEnvVars(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.TokenKey != "test-token-key-32bytes-long-aaaa" {
		t.Errorf("TokenKey = %q, want test key", cfg.TokenKey)
	}
	if cfg.BaseURL != "http://localhost:8080" {
		t.Errorf("BaseURL = %q, want %q", cfg.BaseURL, "http://localhost:8080")
	}
	if cfg.GoogleClientID != "test-client-id" {
		t.Errorf("GoogleClientID = %q, want %q", cfg.GoogleClientID, "test-client-id")
	}
	if len(cfg.AllowedUsers) != 2 {
		t.Fatalf("AllowedUsers = %v, want 2 entries", cfg.AllowedUsers)
	}
	// 正規化: 小文字化と空白除去
	if cfg.AllowedUsers[0] != "student@example.edu" {
		t.Errorf("AllowedUsers[0] = %q, want %q", cfg.AllowedUsers[0], "student@example.edu")
	}
}

func TestLoad_MissingRequiredVars_ReturnsError(t *testing.T) {
	t.Setenv("TOKEN_KEY", "")
	t.Setenv("BASE_URL", "")
	t.Setenv("ALLOWED_USERS", "")
	t.Setenv("GOOGLE_CLIENT_ID", "")
	t.Setenv("GOOGLE_CLIENT_SECRET", "")
	t.Setenv("GOOGLE_REDIRECT_URL", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing required env vars, got nil")
	}
	for _, name := range []string{"TOKEN_KEY", "BASE_URL", "ALLOWED_USERS"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error should name missing var %s: %v", name, err)
		}
	}
}

func TestLoad_EmailMode_DoesNotRequireGoogleCredentials(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("AUTH_MODE", "email")
	t.Setenv("GOOGLE_CLIENT_ID", "")
	t.Setenv("GOOGLE_CLIENT_SECRET", "")
	t.Setenv("GOOGLE_REDIRECT_URL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("email mode should not require Google credentials: %v", err)
	}
	if cfg.AuthMode != AuthModeEmail {
		t.Errorf("AuthMode = %q, want %q", cfg.AuthMode, AuthModeEmail)
	}
}

func TestLoad_InvalidAuthMode_ReturnsError(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("AUTH_MODE", "saml")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for invalid AUTH_MODE, got nil")
	}
}

func TestLoad_PostgresStore_RequiresDatabaseURL(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("CONVERSATION_STORE", "postgres")
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	if err == nil {
		t.Fatal("postgres store without DATABASE_URL should return error")
	}
}

func TestLoad_InvalidStoreKind_ReturnsError(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("CONVERSATION_STORE", "redis")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for invalid CONVERSATION_STORE, got nil")
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	setRequiredEnvVars(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.AuthMode != AuthModeOAuth {
		t.Errorf("AuthMode = %q, want %q", cfg.AuthMode, AuthModeOAuth)
	}
	if cfg.ConversationStore != StoreMemory {
		t.Errorf("ConversationStore = %q, want %q", cfg.ConversationStore, StoreMemory)
	}
	if cfg.TokenMaxAge != 24*time.Hour {
		t.Errorf("TokenMaxAge = %v, want %v", cfg.TokenMaxAge, 24*time.Hour)
	}
	if cfg.CookieName != "auth_jwt" {
		t.Errorf("CookieName = %q, want %q", cfg.CookieName, "auth_jwt")
	}
	if cfg.LLMModel != "gpt-4o-mini" {
		t.Errorf("LLMModel = %q, want %q", cfg.LLMModel, "gpt-4o-mini")
	}
	// LLM_AUDIT_MODEL未設定時はLLM_MODELにフォールバック
	if cfg.LLMAuditModel != cfg.LLMModel {
		t.Errorf("LLMAuditModel = %q, want fallback to %q", cfg.LLMAuditModel, cfg.LLMModel)
	}
	if cfg.LLMTemperature != 0.7 {
		t.Errorf("LLMTemperature = %v, want 0.7", cfg.LLMTemperature)
	}
	if cfg.MaxTurns != 200 {
		t.Errorf("MaxTurns = %d, want 200", cfg.MaxTurns)
	}
	if cfg.RetentionDays != 30 {
		t.Errorf("RetentionDays = %d, want 30", cfg.RetentionDays)
	}
	if cfg.AuditMaxBytes != 262144 {
		t.Errorf("AuditMaxBytes = %d, want 262144", cfg.AuditMaxBytes)
	}
	if cfg.RateLimitGeneral != 120 {
		t.Errorf("RateLimitGeneral = %d, want 120", cfg.RateLimitGeneral)
	}
	if cfg.RateLimitChat != 20 {
		t.Errorf("RateLimitChat = %d, want 20", cfg.RateLimitChat)
	}
	if cfg.ServerPort != "8080" {
		t.Errorf("ServerPort = %q, want %q", cfg.ServerPort, "8080")
	}
	if cfg.SheetsBaseURL != "https://sheets.googleapis.com" {
		t.Errorf("SheetsBaseURL = %q, want Google Sheets API", cfg.SheetsBaseURL)
	}
}

func TestLoad_CookieSecure_DerivedFromBaseURL(t *testing.T) {
	setRequiredEnvVars(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.CookieSecure {
		t.Error("CookieSecure should be false for http:// BASE_URL")
	}

	t.Setenv("BASE_URL", "https://jeeves.example.edu")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !cfg.CookieSecure {
		t.Error("CookieSecure should be true for https:// BASE_URL")
	}
}

func TestLoad_SheetOverrides(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("SHEETS_USER_OVERRIDES", "VIP@Example.edu=sheet-id-1/Feedback; other@example.edu=sheet-id-2/Log")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	target, ok := cfg.UserSheetOverrides["vip@example.edu"]
	if !ok {
		t.Fatalf("override for vip@example.edu not found: %v", cfg.UserSheetOverrides)
	}
	if target.SpreadsheetID != "sheet-id-1" || target.SheetName != "Feedback" {
		t.Errorf("override = %+v, want sheet-id-1/Feedback", target)
	}
	if len(cfg.UserSheetOverrides) != 2 {
		t.Errorf("overrides = %v, want 2 entries", cfg.UserSheetOverrides)
	}
}

func TestLoad_MalformedSheetOverrides_ReturnsError(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("SHEETS_USER_OVERRIDES", "vip@example.edu=missing-sheet-name")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for malformed SHEETS_USER_OVERRIDES, got nil")
	}
}

func TestIsAllowed(t *testing.T) {
	cfg := &Config{AllowedUsers: []string{"student@example.edu"}}

	tests := []struct {
		email string
		want  bool
	}{
		{"student@example.edu", true},
		{"STUDENT@EXAMPLE.EDU", true},
		{"  student@example.edu  ", true},
		{"outsider@example.edu", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := cfg.IsAllowed(tt.email); got != tt.want {
			t.Errorf("IsAllowed(%q) = %v, want %v", tt.email, got, tt.want)
		}
	}
}
