package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/packgate/internal/ledger"
	"github.com/hitoshi/packgate/internal/model"
)

// AccountServiceInterface はアカウントハンドラーが必要とするサービスインターフェース。
type AccountServiceInterface interface {
	Register(ctx context.Context, id, username string) (*model.Account, error)
	Get(ctx context.Context, id string) (*model.Account, error)
}

// LedgerServiceInterface は台帳参照に必要なサービスインターフェース。
type LedgerServiceInterface interface {
	History(ctx context.Context, accountID string, limit int) ([]*model.Transaction, error)
	Audit(ctx context.Context, accountID string) (*ledger.AuditResult, error)
}

// AccountHandler はアカウント管理のHTTPハンドラー。
type AccountHandler struct {
	accounts AccountServiceInterface
	ledger   LedgerServiceInterface
}

// NewAccountHandler はAccountHandlerを生成する。
func NewAccountHandler(accounts AccountServiceInterface, ledger LedgerServiceInterface) *AccountHandler {
	return &AccountHandler{
		accounts: accounts,
		ledger:   ledger,
	}
}

// accountResponse はアカウント情報のAPIレスポンス。
type accountResponse struct {
	ID              string     `json:"id"`
	Username        string     `json:"username"`
	Balance         int64      `json:"balance"`
	GlobalExpiresAt *time.Time `json:"global_expires_at,omitempty"`
	RegisteredAt    time.Time  `json:"registered_at"`
	LastActivityAt  time.Time  `json:"last_activity_at"`
}

func toAccountResponse(account *model.Account) accountResponse {
	return accountResponse{
		ID:              account.ID,
		Username:        account.Username,
		Balance:         account.Balance,
		GlobalExpiresAt: account.GlobalExpiresAt,
		RegisteredAt:    account.RegisteredAt,
		LastActivityAt:  account.LastActivityAt,
	}
}

// registerRequest はアカウント登録リクエストのボディ。
type registerRequest struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Register はアカウントを冪等に登録する。
// POST /api/accounts
func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeInvalidRequest(w)
		return
	}
	if req.ID == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "アカウントIDは必須です。",
			Category: "validation",
			Action:   "idフィールドを指定してください。",
		})
		return
	}

	account, err := h.accounts.Register(r.Context(), req.ID, req.Username)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAccountResponse(account))
}

// Get はアカウント情報を取得する。
// GET /api/accounts/{id}
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	account, err := h.accounts.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAccountResponse(account))
}

// transactionResponse は取引のAPIレスポンス。
type transactionResponse struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Amount    int64     `json:"amount"`
	Memo      string    `json:"memo"`
	CreatedAt time.Time `json:"created_at"`
}

// ListTransactions はアカウントの取引履歴を取得する。
// GET /api/accounts/{id}/transactions?limit=50
func (h *AccountHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}

	transactions, err := h.ledger.History(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	responses := make([]transactionResponse, len(transactions))
	for i, tx := range transactions {
		responses[i] = transactionResponse{
			ID:        tx.ID,
			Kind:      string(tx.Kind),
			Amount:    tx.Amount,
			Memo:      tx.Memo,
			CreatedAt: tx.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, responses)
}

// auditResponse は残高監査のAPIレスポンス。
type auditResponse struct {
	AccountID      string `json:"account_id"`
	Balance        int64  `json:"balance"`
	TransactionSum int64  `json:"transaction_sum"`
	Consistent     bool   `json:"consistent"`
}

// Audit はアカウントの残高と取引記録の整合性を検証する。
// GET /api/accounts/{id}/audit
func (h *AccountHandler) Audit(w http.ResponseWriter, r *http.Request) {
	result, err := h.ledger.Audit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, auditResponse{
		AccountID:      result.AccountID,
		Balance:        result.Balance,
		TransactionSum: result.TransactionSum,
		Consistent:     result.Consistent,
	})
}
