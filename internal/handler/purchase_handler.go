package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/packgate/internal/model"
	"github.com/hitoshi/packgate/internal/purchase"
)

// PurchaseServiceInterface は購入ハンドラーが必要とするサービスインターフェース。
type PurchaseServiceInterface interface {
	Purchase(ctx context.Context, input purchase.Input) (*purchase.Receipt, error)
	Reissue(ctx context.Context, grantID string) (*purchase.Receipt, error)
}

// PurchaseHandler は購入フローのHTTPハンドラー。
type PurchaseHandler struct {
	purchases PurchaseServiceInterface
}

// NewPurchaseHandler はPurchaseHandlerを生成する。
func NewPurchaseHandler(purchases PurchaseServiceInterface) *PurchaseHandler {
	return &PurchaseHandler{purchases: purchases}
}

// purchaseRequest は購入リクエストのボディ。
// pack_idを省略するとグローバル購読の購入となる。
type purchaseRequest struct {
	AccountID string  `json:"account_id"`
	PackID    *string `json:"pack_id,omitempty"`
	Duration  string  `json:"duration"`
	Extend    bool    `json:"extend,omitempty"`
}

// issuedLinkResponse は発行済み招待リンクのAPIレスポンス。
type issuedLinkResponse struct {
	PackName   string `json:"pack_name"`
	ChannelID  string `json:"channel_id"`
	InviteLink string `json:"invite_link"`
}

// receiptResponse は購入領収書のAPIレスポンス。
type receiptResponse struct {
	GrantID        string               `json:"grant_id"`
	PackID         *string              `json:"pack_id,omitempty"`
	PackName       string               `json:"pack_name"`
	Duration       string               `json:"duration"`
	PricePaid      int64                `json:"price_paid"`
	ExpiresAt      time.Time            `json:"expires_at"`
	Extended       bool                 `json:"extended"`
	TransactionID  string               `json:"transaction_id,omitempty"`
	Links          []issuedLinkResponse `json:"links"`
	IssuedCount    int                  `json:"issued_count"`
	LinkTotal      int                  `json:"link_total"`
	IssuanceFailed bool                 `json:"issuance_failed,omitempty"`
}

func toReceiptResponse(receipt *purchase.Receipt, issuanceFailed bool) receiptResponse {
	links := make([]issuedLinkResponse, len(receipt.Links))
	for i, link := range receipt.Links {
		links[i] = issuedLinkResponse{
			PackName:   link.PackName,
			ChannelID:  link.ChannelID,
			InviteLink: link.InviteLink,
		}
	}
	return receiptResponse{
		GrantID:        receipt.GrantID,
		PackID:         receipt.PackID,
		PackName:       receipt.PackName,
		Duration:       string(receipt.Duration),
		PricePaid:      receipt.PricePaid,
		ExpiresAt:      receipt.ExpiresAt,
		Extended:       receipt.Extended,
		TransactionID:  receipt.TransactionID,
		Links:          links,
		IssuedCount:    receipt.IssuedCount,
		LinkTotal:      receipt.LinkTotal,
		IssuanceFailed: issuanceFailed,
	}
}

// Purchase は購入を実行する。
// POST /api/purchases
// リンク発行の全件失敗時も購入自体は完了しているため、領収書を200で返し、
// issuance_failedフラグで再発行が必要なことを示す。
func (h *PurchaseHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeInvalidRequest(w)
		return
	}
	if req.AccountID == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "アカウントIDは必須です。",
			Category: "validation",
			Action:   "account_idフィールドを指定してください。",
		})
		return
	}

	receipt, err := h.purchases.Purchase(r.Context(), purchase.Input{
		AccountID: req.AccountID,
		PackID:    req.PackID,
		Duration:  model.DurationKey(req.Duration),
		Extend:    req.Extend,
	})
	if err != nil {
		var apiErr *model.APIError
		if receipt != nil && errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeGrantIssuanceFailed {
			writeJSON(w, http.StatusOK, toReceiptResponse(receipt, true))
			return
		}
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toReceiptResponse(receipt, false))
}

// Reissue は既存グラントの招待リンクを再発行する。
// POST /api/grants/{id}/reissue
func (h *PurchaseHandler) Reissue(w http.ResponseWriter, r *http.Request) {
	receipt, err := h.purchases.Reissue(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		var apiErr *model.APIError
		if receipt != nil && errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeGrantIssuanceFailed {
			writeJSON(w, http.StatusOK, toReceiptResponse(receipt, true))
			return
		}
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toReceiptResponse(receipt, false))
}
