package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/packgate/internal/model"
)

// CatalogServiceInterface はカタログハンドラーが必要とするサービスインターフェース。
type CatalogServiceInterface interface {
	ListActivePacks(ctx context.Context) ([]*model.Pack, error)
	GetPack(ctx context.Context, id string) (*model.Pack, error)
	GetPlan(ctx context.Context) (*model.GlobalPlan, error)
}

// PackHandler はパックカタログ参照のHTTPハンドラー。
type PackHandler struct {
	catalog CatalogServiceInterface
}

// NewPackHandler はPackHandlerを生成する。
func NewPackHandler(catalog CatalogServiceInterface) *PackHandler {
	return &PackHandler{catalog: catalog}
}

// packResponse はパックのAPIレスポンス。
type packResponse struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Prices      map[string]int64 `json:"prices"`
	ChannelID   string           `json:"channel_id"`
	IsActive    bool             `json:"is_active"`
	CreatedAt   time.Time        `json:"created_at"`
}

func toPackResponse(pack *model.Pack) packResponse {
	prices := make(map[string]int64, len(pack.Prices))
	for key, price := range pack.Prices {
		prices[string(key)] = price
	}
	return packResponse{
		ID:          pack.ID,
		Name:        pack.Name,
		Description: pack.Description,
		Prices:      prices,
		ChannelID:   pack.ChannelID,
		IsActive:    pack.IsActive,
		CreatedAt:   pack.CreatedAt,
	}
}

// ListPacks は販売中のパック一覧を取得する。
// GET /api/packs
func (h *PackHandler) ListPacks(w http.ResponseWriter, r *http.Request) {
	packs, err := h.catalog.ListActivePacks(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	responses := make([]packResponse, len(packs))
	for i, pack := range packs {
		responses[i] = toPackResponse(pack)
	}
	writeJSON(w, http.StatusOK, responses)
}

// GetPack は指定IDのパックを取得する。
// GET /api/packs/{id}
func (h *PackHandler) GetPack(w http.ResponseWriter, r *http.Request) {
	pack, err := h.catalog.GetPack(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toPackResponse(pack))
}

// planResponse はグローバル購読設定のAPIレスポンス。
type planResponse struct {
	Description string           `json:"description"`
	Prices      map[string]int64 `json:"prices"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

func toPlanResponse(plan *model.GlobalPlan) planResponse {
	prices := make(map[string]int64, len(plan.Prices))
	for key, price := range plan.Prices {
		prices[string(key)] = price
	}
	return planResponse{
		Description: plan.Description,
		Prices:      prices,
		UpdatedAt:   plan.UpdatedAt,
	}
}

// GetPlan はグローバル購読の設定を取得する。
// GET /api/plan
func (h *PackHandler) GetPlan(w http.ResponseWriter, r *http.Request) {
	plan, err := h.catalog.GetPlan(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toPlanResponse(plan))
}
