package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/jiyp/jeeves/internal/auth"
	"github.com/jiyp/jeeves/internal/chat"
	"github.com/jiyp/jeeves/internal/config"
	"github.com/jiyp/jeeves/internal/database"
	"github.com/jiyp/jeeves/internal/feedback"
	"github.com/jiyp/jeeves/internal/handler"
	"github.com/jiyp/jeeves/internal/logger"
	"github.com/jiyp/jeeves/internal/metrics"
	"github.com/jiyp/jeeves/internal/middleware"
	"github.com/jiyp/jeeves/internal/repository"
	"github.com/jiyp/jeeves/internal/retrieval"
	"github.com/jiyp/jeeves/internal/security"
	"github.com/jiyp/jeeves/internal/sheets"
	"github.com/jiyp/jeeves/internal/token"
	"github.com/jiyp/jeeves/internal/worker/cleanup"

	llmpkg "github.com/jiyp/jeeves/internal/llm"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
		slog.String("auth_mode", string(cfg.AuthMode)),
		slog.String("conversation_store", string(cfg.ConversationStore)),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// 全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. メトリクスレジストリ
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 2. 会話ストア（memory / postgres）
	var (
		db           *sql.DB
		store        repository.ConversationStore
		feedbackRepo repository.FeedbackAuditRepository
		healthCheck  func() error
	)
	switch cfg.ConversationStore {
	case config.StorePostgres:
		var err error
		db, err = database.Open(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		if err := db.Ping(); err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		slog.Info("database connection established")

		store = repository.NewPostgresConversationRepo(db, cfg.MaxTurns)
		feedbackRepo = repository.NewPostgresFeedbackRepo(db)
		healthCheck = db.Ping
	default:
		store = chat.NewMemoryStore(cfg.MaxTurns)
	}

	// 3. 認証サービスの初期化
	codec := token.NewCodec(cfg.TokenKey, cfg.TokenMaxAge)
	var oauthProvider auth.OAuthProvider
	if cfg.AuthMode == config.AuthModeOAuth {
		oauthProvider = auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
		})
	}
	authService := auth.NewService(oauthProvider, codec, cfg, cfg.TokenMaxAge)

	// 4. LLMクライアントと検索サービス
	llmClient := llmpkg.NewHTTPClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMTimeout)

	var retriever retrieval.Retriever = retrieval.NopRetriever{}
	if cfg.RetrieverBaseURL != "" {
		retriever = retrieval.NewHTTPRetriever(cfg.RetrieverBaseURL, cfg.RetrieverTopK, cfg.RetrieverTimeout)
	}

	// 5. フィードバック記録（Sheets + Postgres監査コピー）
	sheetsClient := sheets.NewClient(
		&http.Client{Timeout: cfg.SheetsTimeout},
		slog.Default(),
		cfg.SheetsAccessToken,
		cfg.SheetsBaseURL,
	)
	feedbackService := feedback.NewService(
		sheetsClient, feedbackRepo, slog.Default(), collector,
		config.SheetTarget{SpreadsheetID: cfg.DefaultSpreadsheet, SheetName: cfg.DefaultSheetName},
		cfg.UserSheetOverrides,
	)

	// 6. チャットサービスの初期化
	sanitizer := security.NewContentSanitizer()
	chatService := chat.NewService(
		store, llmClient, retriever, sanitizer, feedbackService, collector,
		chat.ServiceConfig{
			Model:         cfg.LLMModel,
			AuditModel:    cfg.LLMAuditModel,
			Temperature:   cfg.LLMTemperature,
			AuditMaxBytes: int(cfg.AuditMaxBytes),
		},
	)

	// 7. ルーターの構築
	// configのRateLimitGeneral/Chatはreq/min単位なのでreq/secに変換する
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitGeneral > 0 {
		rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
		rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	}
	if cfg.RateLimitChat > 0 {
		rateLimiterCfg.ChatRate = rate.Limit(float64(cfg.RateLimitChat) / 60.0)
		rateLimiterCfg.ChatBurst = cfg.RateLimitChat
	}

	deps := &handler.RouterDeps{
		TokenVerifier:     authService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       middleware.NewRateLimiter(rateLimiterCfg),
		Metrics:           collector,
		Gatherer:          registry,

		AuthMode:    cfg.AuthMode,
		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:      cfg.BaseURL,
			CookieName:   cfg.CookieName,
			CookieDomain: cfg.CookieDomain,
			CookieSecure: cfg.CookieSecure,
			CookieMaxAge: int(cfg.TokenMaxAge.Seconds()),
		},

		ChatService:     chatService,
		FeedbackService: feedbackService,

		HealthCheck: healthCheck,
	}

	router := handler.NewRouter(deps)

	// 8. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // SSEストリーミングのためWriteTimeoutは設けない
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、保持期間を超過した会話の定期クリーンアップを実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required in worker mode")
	}

	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. クリーンアップジョブの初期化
	conversationRepo := repository.NewPostgresConversationRepo(db, cfg.MaxTurns)
	feedbackRepo := repository.NewPostgresFeedbackRepo(db)

	cleanupJob := cleanup.NewCleanupJob(conversationRepo, feedbackRepo, slog.Default())
	if cfg.RetentionDays > 0 {
		cleanupJob.RetentionDays = cfg.RetentionDays
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Int("retention_days", cleanupJob.RetentionDays),
	)

	// クリーンアップジョブをメインgoroutineで実行（ブロッキング、日次実行）
	cleanupJob.Start(ctx, 24*time.Hour)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required in migrate mode")
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
