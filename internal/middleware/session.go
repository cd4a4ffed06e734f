// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jiyp/jeeves/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userContextKey はリクエストコンテキストに認証済みユーザーを格納するためのキー。
var userContextKey = contextKey("user")

// TokenVerifier は署名付きトークンの検証に必要なインターフェース。
// auth.Service の部分集合として定義する。
type TokenVerifier interface {
	Verify(tokenStr string) (user *model.UserInfo, expired bool)
}

// InvalidTokenRecorder は無効トークン検出のメトリクス記録。nil 可。
type InvalidTokenRecorder interface {
	RecordTokenInvalid()
}

// NewSessionMiddleware はHTTP Only Cookieから署名付きトークンを読み取り、
// 有効性を検証するミドルウェアを返す。
// 認証済みユーザー情報をリクエストコンテキストに注入する。
// 未認証リクエストには401 Unauthorizedを返す。
// 期限切れトークンのCookieは削除し、再ログインを促す。
func NewSessionMiddleware(verifier TokenVerifier, cookieName string, recorder InvalidTokenRecorder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. Cookieからトークンを取得
			cookie, err := r.Cookie(cookieName)
			if err != nil || cookie.Value == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewTokenInvalidError())
				return
			}

			// 2. トークンの有効性を検証
			user, expired := verifier.Verify(cookie.Value)
			if user == nil {
				if recorder != nil {
					recorder.RecordTokenInvalid()
				}
				if expired {
					// 期限切れCookieは削除して再ログインさせる
					http.SetCookie(w, &http.Cookie{
						Name:     cookieName,
						Value:    "",
						Path:     "/",
						MaxAge:   -1,
						HttpOnly: true,
					})
				}
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewTokenInvalidError())
				return
			}

			// 3. 認証済みユーザーをコンテキストに注入
			ctx := ContextWithUser(r.Context(), user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserFromContext はリクエストコンテキストから認証済みユーザーを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func UserFromContext(ctx context.Context) (*model.UserInfo, error) {
	user, ok := ctx.Value(userContextKey).(*model.UserInfo)
	if !ok || user == nil {
		return nil, fmt.Errorf("user not found in context")
	}
	return user, nil
}

// ContextWithUser はコンテキストに認証済みユーザーを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUser(ctx context.Context, user *model.UserInfo) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}
