package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/packgate/internal/metrics"
	"github.com/hitoshi/packgate/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger        *slog.Logger
	ServiceAPIKey string
	AdminAPIKey   string
	RateLimiter   *middleware.RateLimiter

	// メトリクス
	Gatherer prometheus.Gatherer

	// アカウント・台帳
	AccountService AccountServiceInterface
	LedgerService  LedgerServiceInterface

	// カタログ
	CatalogService CatalogServiceInterface

	// グラント
	SubscriptionService SubscriptionServiceInterface

	// 購入
	PurchaseService PurchaseServiceInterface

	// 管理
	AdminService        AdminServiceInterface
	CatalogAdminService CatalogAdminServiceInterface
	BroadcastService    BroadcastServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RecoveryMiddleware → LoggingMiddleware → APIKeyMiddleware → RateLimitMiddleware(GeneralMiddleware)
//
// ヘルスチェック（/health）とメトリクス（/metrics）は認証の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	accountHandler := NewAccountHandler(deps.AccountService, deps.LedgerService)
	packHandler := NewPackHandler(deps.CatalogService)
	grantHandler := NewGrantHandler(deps.SubscriptionService)
	purchaseHandler := NewPurchaseHandler(deps.PurchaseService)
	adminHandler := NewAdminHandler(deps.AdminService, deps.CatalogAdminService, deps.BroadcastService)

	// --- 認証不要のルート ---

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))

	// --- APIキー認証が必要なルート ---
	// ミドルウェアスタック: APIKey → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAPIKeyMiddleware(deps.ServiceAPIKey, deps.AdminAPIKey))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// アカウント管理
		r.Route("/api/accounts", func(r chi.Router) {
			r.Post("/", accountHandler.Register)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", accountHandler.Get)
				r.Get("/transactions", accountHandler.ListTransactions)
				r.Get("/audit", accountHandler.Audit)
				r.Get("/grants", grantHandler.ListGrants)
				r.Get("/entitlements/{channelID}", grantHandler.CheckEntitlement)
			})
		})

		// カタログ参照
		r.Route("/api/packs", func(r chi.Router) {
			r.Get("/", packHandler.ListPacks)
			r.Get("/{id}", packHandler.GetPack)
		})
		r.Get("/api/plan", packHandler.GetPlan)

		// グラント参照・再発行
		r.Route("/api/grants/{id}", func(r chi.Router) {
			r.Get("/", grantHandler.GetGrant)
			r.Post("/reissue", purchaseHandler.Reissue)
		})

		// POST /api/purchases - 購入（購入専用レート制限を追加）
		r.With(deps.RateLimiter.PurchaseMiddleware()).Post("/api/purchases", purchaseHandler.Purchase)

		// --- 管理者キーが必要なルート ---
		r.Route("/api/admin", func(r chi.Router) {
			r.Use(middleware.NewRequireAdminMiddleware())

			r.Route("/packs", func(r chi.Router) {
				r.Get("/", adminHandler.ListAllPacks)
				r.Post("/", adminHandler.CreatePack)

				r.Route("/{id}", func(r chi.Router) {
					r.Put("/", adminHandler.UpdatePack)
					r.Post("/active", adminHandler.SetPackActive)
					r.Delete("/", adminHandler.DeletePack)
				})
			})

			r.Put("/plan", adminHandler.PutPlan)

			r.Route("/accounts/{id}", func(r chi.Router) {
				r.Post("/deposit", adminHandler.Deposit)
				r.Post("/withdraw", adminHandler.Withdraw)
			})

			r.Post("/grants/{id}/revoke", adminHandler.RevokeGrant)
			r.Get("/stats", adminHandler.GetStats)
			r.Post("/broadcast", adminHandler.Broadcast)
		})
	})

	return r
}
