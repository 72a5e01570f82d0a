package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/packgate/internal/model"
)

// SubscriptionServiceInterface はグラントハンドラーが必要とするサービスインターフェース。
type SubscriptionServiceInterface interface {
	ListActive(ctx context.Context, accountID string) ([]*model.Grant, error)
	GetGrant(ctx context.Context, grantID string) (*model.Grant, error)
	IsEntitled(ctx context.Context, accountID, channelID string) (bool, error)
}

// GrantHandler はグラント参照と権限判定のHTTPハンドラー。
type GrantHandler struct {
	subscriptions SubscriptionServiceInterface
}

// NewGrantHandler はGrantHandlerを生成する。
func NewGrantHandler(subscriptions SubscriptionServiceInterface) *GrantHandler {
	return &GrantHandler{subscriptions: subscriptions}
}

// grantResponse はグラントのAPIレスポンス。
type grantResponse struct {
	ID          string    `json:"id"`
	AccountID   string    `json:"account_id"`
	PackID      *string   `json:"pack_id,omitempty"`
	PackName    string    `json:"pack_name"`
	ChannelID   string    `json:"channel_id,omitempty"`
	Duration    string    `json:"duration"`
	PricePaid   int64     `json:"price_paid"`
	Status      string    `json:"status"`
	PurchasedAt time.Time `json:"purchased_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Forever     bool      `json:"forever"`
}

func toGrantResponse(grant *model.Grant) grantResponse {
	return grantResponse{
		ID:          grant.ID,
		AccountID:   grant.AccountID,
		PackID:      grant.PackID,
		PackName:    grant.PackName,
		ChannelID:   grant.ChannelID,
		Duration:    string(grant.Duration),
		PricePaid:   grant.PricePaid,
		Status:      string(grant.Status),
		PurchasedAt: grant.PurchasedAt,
		ExpiresAt:   grant.ExpiresAt,
		Forever:     grant.IsForever(),
	}
}

// ListGrants はアカウントの有効グラント一覧を取得する。
// GET /api/accounts/{id}/grants
func (h *GrantHandler) ListGrants(w http.ResponseWriter, r *http.Request) {
	grants, err := h.subscriptions.ListActive(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	responses := make([]grantResponse, len(grants))
	for i, grant := range grants {
		responses[i] = toGrantResponse(grant)
	}
	writeJSON(w, http.StatusOK, responses)
}

// GetGrant は指定IDのグラントを取得する。
// GET /api/grants/{id}
func (h *GrantHandler) GetGrant(w http.ResponseWriter, r *http.Request) {
	grant, err := h.subscriptions.GetGrant(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toGrantResponse(grant))
}

// entitlementResponse は権限判定のAPIレスポンス。
type entitlementResponse struct {
	AccountID string `json:"account_id"`
	ChannelID string `json:"channel_id"`
	Entitled  bool   `json:"entitled"`
}

// CheckEntitlement はアカウントが指定チャンネルにアクセスできるかを判定する。
// GET /api/accounts/{id}/entitlements/{channelID}
func (h *GrantHandler) CheckEntitlement(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")
	channelID := chi.URLParam(r, "channelID")

	entitled, err := h.subscriptions.IsEntitled(r.Context(), accountID, channelID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, entitlementResponse{
		AccountID: accountID,
		ChannelID: channelID,
		Entitled:  entitled,
	})
}
