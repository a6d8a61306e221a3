package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Daison12121/tilda-backend/internal/metrics"
	"github.com/Daison12121/tilda-backend/internal/middleware"
	"github.com/Daison12121/tilda-backend/internal/repository"
	"github.com/Daison12121/tilda-backend/internal/security"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// 認証
	AuthService       AuthService
	CabinetPath       string
	CredentialSources []middleware.CredentialSource

	// プロフィール
	Sanitizer security.ProfileSanitizer

	// ヘルスチェック（nil可）
	HealthChecker repository.HealthChecker

	// メトリクス（nil可）
	Metrics        *metrics.Collector
	MetricsHandler http.Handler

	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Recovery → Logging → Metrics → SecurityHeaders → CORS → Credentials
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sources := deps.CredentialSources
	if len(sources) == 0 {
		sources = middleware.DefaultCredentialSources()
	}
	sanitizer := deps.Sanitizer
	if sanitizer == nil {
		sanitizer = security.NewProfileSanitizer()
	}
	var collector metrics.MetricsCollector = nopMetrics{}
	if deps.Metrics != nil {
		collector = deps.Metrics
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
	}
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewCredentialsMiddleware(sources))

	healthHandler := NewHealthHandler(deps.HealthChecker, logger)
	authHandler := NewAuthHandler(deps.AuthService, sanitizer, collector, logger, AuthHandlerConfig{
		CabinetPath:       deps.CabinetPath,
		CredentialSources: sources,
	})
	userHandler := NewUserHandler(deps.AuthService, sanitizer, collector, logger)

	r.Get("/", healthHandler.Root)
	r.Get("/health", healthHandler.Health)

	// トークン発行・検証・ユーザー解決
	r.Route("/api", func(r chi.Router) {
		r.Post("/login", authHandler.Login)
		r.Post("/token/validate", authHandler.ValidateToken)
		r.Get("/user", authHandler.CurrentUser)
	})

	// メールアドレスによる参照
	r.Get("/user", userHandler.LookupByQuery)
	r.Get("/user/{email}", userHandler.LookupByPath)

	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	return r
}
