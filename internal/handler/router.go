package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/hcadmin/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionVerifier   middleware.SessionVerifier
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// トークン設定
	TokenService TokenServiceInterface

	// サーバー操作
	ServerService ServerServiceInterface

	// リソース照会・メタデータ
	ResourceService ResourceServiceInterface
	MetadataService MetadataServiceInterface

	// Prometheusスクレイプ用ハンドラー（認証なし）
	MetricsHandler http.Handler

	// リクエストログ出力先。nilの場合はslog.Defaultを使う。
	Logger *slog.Logger
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	SecurityHeaders → CORS → Recovery → Session → Logging → RateLimit(General)
//
// /health と /metrics はミドルウェアチェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	// 全ルートに効くミドルウェア
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewRecoveryMiddleware())

	tokenHandler := NewTokenHandler(deps.TokenService)
	serverHandler := NewServerHandler(deps.ServerService)
	resourceHandler := NewResourceHandler(deps.ResourceService, deps.MetadataService)

	// --- 認証不要のルート ---

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → Logging → RateLimit(General)
	// ログはセッション検証後に置き、テナントIDを含める。
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionVerifier))
		r.Use(middleware.NewLoggingMiddleware(logger))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// トークン設定
		r.Route("/api/token", func(r chi.Router) {
			r.Get("/", tokenHandler.GetTokenStatus)
			r.Put("/", tokenHandler.SetToken)
			r.Delete("/", tokenHandler.DeleteToken)
		})

		// リソース概要
		r.Get("/api/resources", resourceHandler.ListResources)

		// サーバー作成フォーム用カタログ
		r.Get("/api/images", resourceHandler.ListImages)
		r.Get("/api/locations", resourceHandler.ListLocations)
		r.Get("/api/server-types", resourceHandler.ListServerTypes)

		// サーバー操作
		r.Route("/api/servers", func(r chi.Router) {
			r.Get("/", serverHandler.List)
			// POST /api/servers - サーバー作成（作成・削除系レート制限を追加）
			r.With(deps.RateLimiter.MutationMiddleware()).Post("/", serverHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", serverHandler.Get)
				r.With(deps.RateLimiter.MutationMiddleware()).Delete("/", serverHandler.Delete)

				r.Post("/actions", serverHandler.PerformAction)
				r.Post("/reset-password", serverHandler.ResetRootPassword)
				r.Get("/metrics", serverHandler.GetMetrics)
			})
		})

		// リソース割り当て
		r.Route("/api/assignments", func(r chi.Router) {
			r.Post("/", resourceHandler.Assign)
			r.Delete("/", resourceHandler.Unassign)
		})

		// リソースメモ
		r.Route("/api/notes", func(r chi.Router) {
			r.Get("/", resourceHandler.ListNotes)
			r.Post("/", resourceHandler.CreateNote)
			r.Delete("/{id}", resourceHandler.DeleteNote)
		})
	})

	return r
}
