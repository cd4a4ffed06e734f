package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jiyp/jeeves/internal/model"
)

// newChainVerifier は "valid-token" のみを受け付ける検証器を返す。
func newChainVerifier() *mockTokenVerifier {
	return &mockTokenVerifier{
		verifyFn: func(tokenStr string) (*model.UserInfo, bool) {
			if tokenStr == "valid-token" {
				return &model.UserInfo{
					Email:     "user@example.com",
					OAuthID:   "oauth-1",
					SessionID: "session-1",
					Verified:  true,
				}, false
			}
			return nil, false
		},
	}
}

// TestRouterIntegration_SessionAndRateLimit は
// Session -> RateLimit のミドルウェアチェーンがchi.Routerで正しく動作することを検証する。
func TestRouterIntegration_SessionAndRateLimit(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		GeneralRate:     10,
		GeneralBurst:    10,
		ChatRate:        10,
		ChatBurst:       10,
		CleanupInterval: time.Minute,
	})
	defer rl.Stop()

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(NewSessionMiddleware(newChainVerifier(), testCookieName, nil))
		r.Use(rl.GeneralMiddleware())

		r.Get("/api/history", func(w http.ResponseWriter, req *http.Request) {
			user, _ := UserFromContext(req.Context())
			w.Write([]byte(user.Email))
		})
		r.With(rl.ChatMiddleware()).Post("/api/chat", func(w http.ResponseWriter, req *http.Request) {
			user, _ := UserFromContext(req.Context())
			w.Write([]byte(user.SessionID))
		})
	})

	// 認証済みGET
	req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
	req.AddCookie(&http.Cookie{Name: testCookieName, Value: "valid-token"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/history: ステータス = %d, want 200", w.Code)
	}
	if w.Body.String() != "user@example.com" {
		t.Errorf("レスポンス = %q, want user@example.com", w.Body.String())
	}

	// 認証済みPOST（チャットレート制限を通過）
	req = httptest.NewRequest(http.MethodPost, "/api/chat", nil)
	req.AddCookie(&http.Cookie{Name: testCookieName, Value: "valid-token"})
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("POST /api/chat: ステータス = %d, want 200", w.Code)
	}
	if w.Body.String() != "session-1" {
		t.Errorf("レスポンス = %q, want session-1", w.Body.String())
	}
}

// TestRouterIntegration_UnauthenticatedRejected は
// Cookieなし・無効トークンのリクエストがチェーンの先頭で遮断されることを検証する。
func TestRouterIntegration_UnauthenticatedRejected(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimiterConfig())
	defer rl.Stop()

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(NewSessionMiddleware(newChainVerifier(), testCookieName, nil))
		r.Use(rl.GeneralMiddleware())
		r.Get("/api/history", func(w http.ResponseWriter, req *http.Request) {
			t.Error("未認証リクエストがハンドラーに到達してはならない")
		})
	})

	// Cookieなし
	req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Cookieなし: ステータス = %d, want 401", w.Code)
	}

	// 無効トークン
	req = httptest.NewRequest(http.MethodGet, "/api/history", nil)
	req.AddCookie(&http.Cookie{Name: testCookieName, Value: "bogus"})
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("無効トークン: ステータス = %d, want 401", w.Code)
	}
	// エラーレスポンスは統一フォーマット
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

// TestRouterIntegration_RecoveryAndSecurityHeaders は
// 外側のミドルウェア（Recovery, SecurityHeaders）がchiルーターと共存することを検証する。
func TestRouterIntegration_RecoveryAndSecurityHeaders(t *testing.T) {
	r := chi.NewRouter()
	r.Use(NewRecoveryMiddleware())
	r.Use(NewSecurityHeadersMiddleware())

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Get("/panic", func(w http.ResponseWriter, req *http.Request) {
		panic("boom")
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("GET /health: ステータス = %d, want 200", w.Code)
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("X-Content-Type-Optionsヘッダーが設定されていない")
	}

	// panicは500に変換され、プロセスは落ちない
	req = httptest.NewRequest(http.MethodGet, "/panic", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("GET /panic: ステータス = %d, want 500", w.Code)
	}
}
