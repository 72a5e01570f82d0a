package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/packgate/internal/admin"
	"github.com/hitoshi/packgate/internal/broadcast"
	"github.com/hitoshi/packgate/internal/model"
	"github.com/hitoshi/packgate/internal/repository"
)

// AdminServiceInterface は管理ハンドラーが必要とするサービスインターフェース。
type AdminServiceInterface interface {
	Deposit(ctx context.Context, accountID string, amount int64, memo string) (string, error)
	Withdraw(ctx context.Context, accountID string, amount int64, memo string) (string, error)
	RevokeGrant(ctx context.Context, grantID string) (*model.Grant, error)
	CollectStats(ctx context.Context) (*admin.Stats, error)
}

// CatalogAdminServiceInterface はパック管理に必要なカタログ操作のインターフェース。
type CatalogAdminServiceInterface interface {
	ListAllPacks(ctx context.Context) ([]*model.Pack, error)
	CreatePack(ctx context.Context, name, description, channelID string, prices model.PriceTable) (*model.Pack, error)
	UpdatePack(ctx context.Context, id, name, description, channelID string, prices model.PriceTable) (*model.Pack, error)
	SetPackActive(ctx context.Context, id string, active bool) (*model.Pack, error)
	DeletePack(ctx context.Context, id string) error
	PutPlan(ctx context.Context, description string, prices model.PriceTable) (*model.GlobalPlan, error)
}

// BroadcastServiceInterface は一斉送信サービスのインターフェース。
type BroadcastServiceInterface interface {
	Broadcast(ctx context.Context, text string) (*broadcast.Report, error)
}

// AdminHandler は管理者向けAPIのHTTPハンドラー。
type AdminHandler struct {
	adminService     AdminServiceInterface
	catalogService   CatalogAdminServiceInterface
	broadcastService BroadcastServiceInterface
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(
	adminService AdminServiceInterface,
	catalogService CatalogAdminServiceInterface,
	broadcastService BroadcastServiceInterface,
) *AdminHandler {
	return &AdminHandler{
		adminService:     adminService,
		catalogService:   catalogService,
		broadcastService: broadcastService,
	}
}

// packRequest はパック作成・更新のリクエストボディ。
type packRequest struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	ChannelID   string           `json:"channel_id"`
	Prices      map[string]int64 `json:"prices"`
}

func toPriceTable(prices map[string]int64) model.PriceTable {
	table := make(model.PriceTable, len(prices))
	for key, price := range prices {
		table[model.DurationKey(key)] = price
	}
	return table
}

// ListAllPacks は非アクティブ含む全パックを取得する。
// GET /api/admin/packs
func (h *AdminHandler) ListAllPacks(w http.ResponseWriter, r *http.Request) {
	packs, err := h.catalogService.ListAllPacks(r.Context())
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

// CreatePack は新しいパックを作成する。
// POST /api/admin/packs
func (h *AdminHandler) CreatePack(w http.ResponseWriter, r *http.Request) {
	var req packRequest
	if err := decodeJSON(r, &req); err != nil {
		writeInvalidRequest(w)
		return
	}

	pack, err := h.catalogService.CreatePack(r.Context(), req.Name, req.Description, req.ChannelID, toPriceTable(req.Prices))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toPackResponse(pack))
}

// UpdatePack は既存パックを部分更新する。
// PUT /api/admin/packs/{id}
func (h *AdminHandler) UpdatePack(w http.ResponseWriter, r *http.Request) {
	var req packRequest
	if err := decodeJSON(r, &req); err != nil {
		writeInvalidRequest(w)
		return
	}

	var prices model.PriceTable
	if req.Prices != nil {
		prices = toPriceTable(req.Prices)
	}

	pack, err := h.catalogService.UpdatePack(r.Context(), chi.URLParam(r, "id"), req.Name, req.Description, req.ChannelID, prices)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toPackResponse(pack))
}

// setActiveRequest はパックの有効・無効切り替えリクエスト。
type setActiveRequest struct {
	Active bool `json:"active"`
}

// SetPackActive はパックの販売状態を切り替える。
// POST /api/admin/packs/{id}/active
func (h *AdminHandler) SetPackActive(w http.ResponseWriter, r *http.Request) {
	var req setActiveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeInvalidRequest(w)
		return
	}

	pack, err := h.catalogService.SetPackActive(r.Context(), chi.URLParam(r, "id"), req.Active)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toPackResponse(pack))
}

// DeletePack はパックを削除する。
// DELETE /api/admin/packs/{id}
func (h *AdminHandler) DeletePack(w http.ResponseWriter, r *http.Request) {
	if err := h.catalogService.DeletePack(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// planRequest はグローバルプラン設定のリクエストボディ。
type planRequest struct {
	Description string           `json:"description"`
	Prices      map[string]int64 `json:"prices"`
}

// PutPlan はグローバルプランを作成・更新する。
// PUT /api/admin/plan
func (h *AdminHandler) PutPlan(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if err := decodeJSON(r, &req); err != nil {
		writeInvalidRequest(w)
		return
	}

	plan, err := h.catalogService.PutPlan(r.Context(), req.Description, toPriceTable(req.Prices))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toPlanResponse(plan))
}

// balanceChangeRequest は入金・出金のリクエストボディ。
type balanceChangeRequest struct {
	Amount int64  `json:"amount"`
	Memo   string `json:"memo"`
}

// balanceChangeResponse は入金・出金のAPIレスポンス。
type balanceChangeResponse struct {
	TransactionID string `json:"transaction_id"`
}

// Deposit はアカウントへ残高を入金する。
// POST /api/admin/accounts/{id}/deposit
func (h *AdminHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req balanceChangeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeInvalidRequest(w)
		return
	}

	transactionID, err := h.adminService.Deposit(r.Context(), chi.URLParam(r, "id"), req.Amount, req.Memo)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, balanceChangeResponse{TransactionID: transactionID})
}

// Withdraw はアカウントから残高を出金する。
// POST /api/admin/accounts/{id}/withdraw
func (h *AdminHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req balanceChangeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeInvalidRequest(w)
		return
	}

	transactionID, err := h.adminService.Withdraw(r.Context(), chi.URLParam(r, "id"), req.Amount, req.Memo)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, balanceChangeResponse{TransactionID: transactionID})
}

// RevokeGrant はグラントを強制失効させる。
// POST /api/admin/grants/{id}/revoke
func (h *AdminHandler) RevokeGrant(w http.ResponseWriter, r *http.Request) {
	grant, err := h.adminService.RevokeGrant(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toGrantResponse(grant))
}

// purchaseStatsResponse は期間別の購入統計。
type purchaseStatsResponse struct {
	Count   int   `json:"count"`
	Revenue int64 `json:"revenue"`
}

func toPurchaseStatsResponse(stats repository.PurchaseStats) purchaseStatsResponse {
	return purchaseStatsResponse{Count: stats.Count, Revenue: stats.Revenue}
}

// topBuyerResponse は購入額上位のアカウント。
type topBuyerResponse struct {
	AccountID  string `json:"account_id"`
	Username   string `json:"username,omitempty"`
	TotalSpent int64  `json:"total_spent"`
}

// statsResponse は管理者向け統計のAPIレスポンス。
type statsResponse struct {
	Day     purchaseStatsResponse `json:"day"`
	Week    purchaseStatsResponse `json:"week"`
	Month   purchaseStatsResponse `json:"month"`
	AllTime purchaseStatsResponse `json:"all_time"`
	Month30 struct {
		Sales        int   `json:"sales"`
		Revenue      int64 `json:"revenue"`
		AverageSale  int64 `json:"average_sale"`
		UniqueBuyers int   `json:"unique_buyers"`
	} `json:"detailed_30d"`
	TopBuyers    []topBuyerResponse `json:"top_buyers"`
	Accounts     int                `json:"accounts"`
	ActiveWeekly int                `json:"active_weekly"`
}

// GetStats は購入・アカウント統計を集計して返す。
// GET /api/admin/stats
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.adminService.CollectStats(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := statsResponse{
		Day:          toPurchaseStatsResponse(stats.Day),
		Week:         toPurchaseStatsResponse(stats.Week),
		Month:        toPurchaseStatsResponse(stats.Month),
		AllTime:      toPurchaseStatsResponse(stats.AllTime),
		Accounts:     stats.Accounts,
		ActiveWeekly: stats.ActiveWeekly,
	}
	resp.Month30.Sales = stats.Detailed.Sales
	resp.Month30.Revenue = stats.Detailed.Revenue
	resp.Month30.AverageSale = stats.Detailed.AverageSale
	resp.Month30.UniqueBuyers = stats.Detailed.UniqueBuyers
	resp.TopBuyers = make([]topBuyerResponse, len(stats.TopBuyers))
	for i, buyer := range stats.TopBuyers {
		resp.TopBuyers[i] = topBuyerResponse{
			AccountID:  buyer.AccountID,
			Username:   buyer.Username,
			TotalSpent: buyer.TotalSpent,
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// broadcastRequest は一斉送信のリクエストボディ。
type broadcastRequest struct {
	Text string `json:"text"`
}

// broadcastResponse は一斉送信結果のAPIレスポンス。
type broadcastResponse struct {
	Total  int `json:"total"`
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// Broadcast は全アカウントへメッセージを一斉送信する。
// POST /api/admin/broadcast
func (h *AdminHandler) Broadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := decodeJSON(r, &req); err != nil {
		writeInvalidRequest(w)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "送信テキストは必須です。",
			Category: "validation",
			Action:   "textフィールドを指定してください。",
		})
		return
	}

	report, err := h.broadcastService.Broadcast(r.Context(), req.Text)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, broadcastResponse{
		Total:  report.Total,
		Sent:   report.Sent,
		Failed: report.Failed,
	})
}
