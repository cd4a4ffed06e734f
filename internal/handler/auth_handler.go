// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jiyp/jeeves/internal/auth"
	"github.com/jiyp/jeeves/internal/middleware"
	"github.com/jiyp/jeeves/internal/model"
)

const oauthStateCookie = "oauth_state"

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	GetLoginURL(state string) string
	HandleCallback(ctx context.Context, code string) (*auth.Login, error)
	HandleEmailLogin(email string) (*auth.Login, error)
	Verify(tokenStr string) (user *model.UserInfo, expired bool)
}

// SessionEnder はログアウト時の会話セッション破棄に必要なインターフェース。
type SessionEnder interface {
	EndSession(ctx context.Context, user *model.UserInfo) error
}

// AuthDeniedRecorder はアクセス拒否のメトリクス記録。nil 可。
type AuthDeniedRecorder interface {
	RecordAuthDenied()
}

// AuthHandlerConfig は認証ハンドラーのCookie設定。
// 環境変数からの明示的な設定のみを使用し、実行環境の推測は行わない。
type AuthHandlerConfig struct {
	BaseURL      string
	CookieName   string
	CookieDomain string
	CookieSecure bool
	CookieMaxAge int // トークンCookieの有効期間（秒）
}

// AuthHandler は認証関連のHTTPハンドラー。
type AuthHandler struct {
	service  AuthServiceInterface
	sessions SessionEnder
	recorder AuthDeniedRecorder
	config   AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, sessions SessionEnder, recorder AuthDeniedRecorder, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service:  service,
		sessions: sessions,
		recorder: recorder,
		config:   config,
	}
}

// Login はGoogle OAuthフローを開始する。
// GET /auth/google/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	// stateをCookieに保存（CSRF対策）
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10分
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	url := h.service.GetLoginURL(state)
	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

// Callback はOAuthコールバックを処理する。
// GET /auth/google/callback?code=xxx&state=yyy
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	// 1. stateの検証（CSRF対策）
	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || stateCookie.Value == "" || stateCookie.Value != state {
		slog.Warn("oauth state mismatch",
			slog.String("query_state", state),
		)
		http.Error(w, "invalid state parameter", http.StatusBadRequest)
		return
	}

	// stateクッキーを削除
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	// 2. 認可コードの取得
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing authorization code", http.StatusBadRequest)
		return
	}

	// 3. 認証処理
	login, err := h.service.HandleCallback(r.Context(), code)
	if err != nil {
		h.writeLoginFailure(w, err)
		return
	}

	// 4. トークンCookieを設定してフロントエンドにリダイレクト
	h.setTokenCookie(w, login.Token)
	http.Redirect(w, r, h.config.BaseURL, http.StatusTemporaryRedirect)
}

// emailLoginRequest はメールゲートログインのリクエストボディ。
type emailLoginRequest struct {
	Email string `json:"email"`
}

// EmailLogin はOAuthを使わないメールアドレスのみのログインを処理する。
// 本人確認を行わない簡易ゲートであり、発行されるクレームは未検証として
// マークされる。
// POST /auth/email/login
func (h *AuthHandler) EmailLogin(w http.ResponseWriter, r *http.Request) {
	var req emailLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" {
		http.Error(w, "email is required", http.StatusBadRequest)
		return
	}

	login, err := h.service.HandleEmailLogin(email)
	if err != nil {
		h.writeLoginFailure(w, err)
		return
	}

	h.setTokenCookie(w, login.Token)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"email":      login.User.Email,
		"verified":   login.User.Verified,
		"expires_at": login.ExpiresAt,
	})
}

// Logout はトークンCookieを削除し、会話セッションを破棄する。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	// トークンからセッションを特定して会話履歴を破棄する
	if cookie, err := r.Cookie(h.config.CookieName); err == nil && cookie.Value != "" {
		if user, _ := h.service.Verify(cookie.Value); user != nil {
			if endErr := h.sessions.EndSession(r.Context(), user); endErr != nil {
				slog.Error("failed to end session on logout", slog.String("error", endErr.Error()))
				// セッション破棄に失敗してもCookieはクリアする
			}
		}
	}

	// トークンCookieをクリア
	h.clearTokenCookie(w)

	w.WriteHeader(http.StatusNoContent)
}

// Me は現在のログインユーザー情報を返す。
// 期限切れトークンの場合はCookieを破棄する（/auth/me しか叩かない
// ブラウザにも失効クレデンシャルを残さない）。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(h.config.CookieName)
	if err != nil || cookie.Value == "" {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewTokenInvalidError())
		return
	}

	user, expired := h.service.Verify(cookie.Value)
	if user == nil {
		if expired {
			h.clearTokenCookie(w)
		}
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewTokenInvalidError())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"email":    user.Email,
		"verified": user.Verified,
	})
}

// writeLoginFailure はログイン失敗レスポンスを書き込む。
// アクセス拒否は403、それ以外は詳細を伏せた500を返す。
func (h *AuthHandler) writeLoginFailure(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeAccessDenied {
		if h.recorder != nil {
			h.recorder.RecordAuthDenied()
		}
		middleware.WriteErrorResponse(w, http.StatusForbidden, apiErr)
		return
	}
	slog.Error("login failed", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// setTokenCookie は署名付きトークンをHTTP Only Cookieとして設定する。
func (h *AuthHandler) setTokenCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.config.CookieName,
		Value:    token,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.CookieMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearTokenCookie はトークンCookieを削除する。
func (h *AuthHandler) clearTokenCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.config.CookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
