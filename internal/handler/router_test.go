package handler

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/packgate/internal/middleware"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	limiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(limiter.Stop)

	deps := &RouterDeps{
		Logger:              slog.New(slog.NewJSONHandler(io.Discard, nil)),
		ServiceAPIKey:       "service-key",
		AdminAPIKey:         "admin-key",
		RateLimiter:         limiter,
		Gatherer:            prometheus.NewRegistry(),
		AccountService:      &mockAccountService{},
		LedgerService:       &mockLedgerService{},
		CatalogService:      &mockCatalogService{},
		SubscriptionService: &mockSubscriptionService{},
		PurchaseService:     &mockPurchaseService{},
		AdminService:        &mockAdminService{},
		CatalogAdminService: &mockCatalogAdminService{},
		BroadcastService:    &mockBroadcastService{},
	}

	return NewRouter(deps)
}

// ヘルスチェックは認証なしでアクセスできること。
func TestRouter_Health_NoAuth(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if w.Body.String() != "ok" {
		t.Errorf("body = %q, want %q", w.Body.String(), "ok")
	}
}

// メトリクスエンドポイントは認証なしでアクセスできること。
func TestRouter_Metrics_NoAuth(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

// APIルートはAPIキーなしでは401を返すこと。
func TestRouter_API_RequiresAPIKey(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/packs", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

// サービスキーで一般APIにアクセスできること。
func TestRouter_API_ServiceKey(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/packs", nil)
	req.Header.Set("X-API-Key", "service-key")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

// 管理ルートはサービスキーでは403、管理者キーでは通ること。
func TestRouter_AdminRoutes_RequireAdminKey(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/packs", nil)
	req.Header.Set("X-API-Key", "service-key")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("service key status = %d, want %d", w.Code, http.StatusForbidden)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/admin/packs", nil)
	req.Header.Set("X-API-Key", "admin-key")
	w = httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("admin key status = %d, want %d", w.Code, http.StatusOK)
	}
}

// 購入エンドポイントがルーティングされていること。
func TestRouter_Purchase_Routed(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/purchases", nil)
	req.Header.Set("X-API-Key", "service-key")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	// ボディなしのためバリデーションエラーになるが、404でなければルーティングは成立している
	if w.Code == http.StatusNotFound {
		t.Errorf("status = %d, purchase route not registered", w.Code)
	}
}
