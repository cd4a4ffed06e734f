package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jiyp/jeeves/internal/config"
	"github.com/jiyp/jeeves/internal/metrics"
	"github.com/jiyp/jeeves/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	TokenVerifier     middleware.TokenVerifier
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Metrics           metrics.MetricsCollector
	Gatherer          prometheus.Gatherer

	// 認証
	AuthMode    config.AuthMode
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// 会話
	ChatService ChatServiceInterface

	// フィードバック
	FeedbackService FeedbackServiceInterface

	// ヘルスチェック
	HealthCheck func() error
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORSMiddleware → SessionMiddleware → RateLimitMiddleware(GeneralMiddleware)
//
// 認証ルート（/auth/*）とヘルスチェックはミドルウェアチェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	// 全ルート共通のミドルウェア
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(slog.Default()))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.ChatService, deps.Metrics, deps.AuthConfig)
	chatHandler := NewChatHandler(deps.ChatService)
	feedbackHandler := NewFeedbackHandler(deps.FeedbackService)

	// --- 認証不要のルート ---

	// 認証ルート
	r.Route("/auth", func(r chi.Router) {
		switch deps.AuthMode {
		case config.AuthModeEmail:
			r.Post("/email/login", authHandler.EmailLogin)
		default:
			r.Get("/google/login", authHandler.Login)
			r.Get("/google/callback", authHandler.Callback)
		}
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
	})

	// ヘルスチェック
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if deps.HealthCheck != nil {
			if err := deps.HealthCheck(); err != nil {
				http.Error(w, "unhealthy", http.StatusServiceUnavailable)
				return
			}
		}
		w.Write([]byte("ok"))
	})

	// Prometheusスクレイプ
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.TokenVerifier, deps.AuthConfig.CookieName, deps.Metrics))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// 会話（LLM呼び出しを伴うルートには専用レート制限を追加）
		r.With(deps.RateLimiter.ChatMiddleware()).Post("/api/chat", chatHandler.Chat)
		r.With(deps.RateLimiter.ChatMiddleware()).Post("/api/chat/stream", chatHandler.ChatStream)
		r.With(deps.RateLimiter.ChatMiddleware()).Post("/api/audit", chatHandler.Audit)

		r.Put("/api/context", chatHandler.UpdateContext)
		r.Get("/api/history", chatHandler.History)
		r.Get("/api/prompts", chatHandler.Prompts)
		r.Delete("/api/session", chatHandler.EndSession)

		// フィードバック
		r.Post("/api/feedback", feedbackHandler.Submit)
	})

	return r
}
