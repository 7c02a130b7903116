package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/newsroom/internal/middleware"
)

// HealthChecker は依存先の疎通確認インターフェース。*sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	StatusRecorder    middleware.StatusRecorder

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// ドメイン
	PointsService  PointsServiceInterface
	MessageService MessageServiceInterface
	ArticleService ArticleServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RealIP → Recovery → Logging → SecurityHeaders → CORS → RateLimit
//
// /health と /metrics はレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.StatusRecorder))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	pointsHandler := NewPointsHandler(deps.PointsService, deps.Logger)
	messageHandler := NewMessageHandler(deps.MessageService, deps.Logger)
	articleHandler := NewArticleHandler(deps.ArticleService, deps.Logger)

	r.Route("/api", func(r chi.Router) {
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.Middleware())
		}

		// ポイント台帳
		r.Route("/users/{userID}/points", func(r chi.Router) {
			r.Get("/", pointsHandler.GetBalance)
			r.Get("/transactions", pointsHandler.ListTransactions)
			r.Post("/award", pointsHandler.Award)
			r.Post("/spend", pointsHandler.Spend)
			r.Get("/conversion", pointsHandler.CheckConversion)
			r.Post("/convert", pointsHandler.Convert)
		})

		// 会話メッセージ
		r.Route("/conversations/{conversationID}/messages", func(r chi.Router) {
			r.Post("/", messageHandler.SendMessage)
			r.Get("/", messageHandler.ListMessages)
		})
		r.Route("/messages", func(r chi.Router) {
			r.Get("/failed", messageHandler.ListFailed)
			r.Post("/{messageID}/retry", messageHandler.Retry)
			r.Delete("/{messageID}", messageHandler.Discard)
		})

		// ニュース記事
		r.Route("/articles", func(r chi.Router) {
			r.Get("/", articleHandler.ListArticles)
			r.Get("/categories", articleHandler.ListCategories)
		})
	})

	return r
}

// healthHandler はDBへの疎通を確認するヘルスチェックハンドラーを返す。
// checkerがnilの場合は常に200を返す。
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
