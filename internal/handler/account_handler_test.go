package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/packgate/internal/ledger"
	"github.com/hitoshi/packgate/internal/model"
)

// --- モック定義 ---

// mockAccountService はAccountServiceInterfaceのモック実装。
type mockAccountService struct {
	registerFn func(ctx context.Context, id, username string) (*model.Account, error)
	getFn      func(ctx context.Context, id string) (*model.Account, error)
}

func (m *mockAccountService) Register(ctx context.Context, id, username string) (*model.Account, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, id, username)
	}
	return nil, nil
}

func (m *mockAccountService) Get(ctx context.Context, id string) (*model.Account, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, nil
}

// mockLedgerService はLedgerServiceInterfaceのモック実装。
type mockLedgerService struct {
	historyFn func(ctx context.Context, accountID string, limit int) ([]*model.Transaction, error)
	auditFn   func(ctx context.Context, accountID string) (*ledger.AuditResult, error)
}

func (m *mockLedgerService) History(ctx context.Context, accountID string, limit int) ([]*model.Transaction, error) {
	if m.historyFn != nil {
		return m.historyFn(ctx, accountID, limit)
	}
	return nil, nil
}

func (m *mockLedgerService) Audit(ctx context.Context, accountID string) (*ledger.AuditResult, error) {
	if m.auditFn != nil {
		return m.auditFn(ctx, accountID)
	}
	return nil, nil
}

// --- テストヘルパー ---

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}

// --- POST /api/accounts テスト ---

func TestAccountHandler_Register_Success(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	svc := &mockAccountService{
		registerFn: func(ctx context.Context, id, username string) (*model.Account, error) {
			if id != "acct-1" {
				t.Errorf("id = %q, want %q", id, "acct-1")
			}
			if username != "alice" {
				t.Errorf("username = %q, want %q", username, "alice")
			}
			return &model.Account{
				ID:             "acct-1",
				Username:       "alice",
				Balance:        0,
				RegisteredAt:   now,
				LastActivityAt: now,
			}, nil
		},
	}

	h := NewAccountHandler(svc, &mockLedgerService{})

	body := bytes.NewBufferString(`{"id":"acct-1","username":"alice"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/accounts", body)
	w := httptest.NewRecorder()

	h.Register(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if result["id"] != "acct-1" {
		t.Errorf("id = %v, want %q", result["id"], "acct-1")
	}
	if result["username"] != "alice" {
		t.Errorf("username = %v, want %q", result["username"], "alice")
	}
}

func TestAccountHandler_Register_MissingID(t *testing.T) {
	h := NewAccountHandler(&mockAccountService{}, &mockLedgerService{})

	body := bytes.NewBufferString(`{"username":"alice"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/accounts", body)
	w := httptest.NewRecorder()

	h.Register(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}

	result := parseAPIErrorResponse(t, w)
	if result["code"] != "INVALID_REQUEST" {
		t.Errorf("code = %q, want %q", result["code"], "INVALID_REQUEST")
	}
}

// --- GET /api/accounts/{id} テスト ---

func TestAccountHandler_Get_NotFound(t *testing.T) {
	svc := &mockAccountService{
		getFn: func(ctx context.Context, id string) (*model.Account, error) {
			return nil, model.NewAccountNotFoundError("missing")
		},
	}

	h := NewAccountHandler(svc, &mockLedgerService{})

	req := httptest.NewRequest(http.MethodGet, "/api/accounts/missing", nil)
	req = withChiURLParam(req, "id", "missing")
	w := httptest.NewRecorder()

	h.Get(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}

	result := parseAPIErrorResponse(t, w)
	if result["code"] != model.ErrCodeAccountNotFound {
		t.Errorf("code = %q, want %q", result["code"], model.ErrCodeAccountNotFound)
	}
}

// --- GET /api/accounts/{id}/transactions テスト ---

func TestAccountHandler_ListTransactions_Success(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	svc := &mockLedgerService{
		historyFn: func(ctx context.Context, accountID string, limit int) ([]*model.Transaction, error) {
			if accountID != "acct-1" {
				t.Errorf("accountID = %q, want %q", accountID, "acct-1")
			}
			if limit != 10 {
				t.Errorf("limit = %d, want 10", limit)
			}
			return []*model.Transaction{
				{ID: "tx-1", AccountID: "acct-1", Kind: model.TransactionKindPurchase, Amount: -500, Memo: "購入", CreatedAt: now},
			}, nil
		},
	}

	h := NewAccountHandler(&mockAccountService{}, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/accounts/acct-1/transactions?limit=10", nil)
	req = withChiURLParam(req, "id", "acct-1")
	w := httptest.NewRecorder()

	h.ListTransactions(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var result []map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("result length = %d, want 1", len(result))
	}
	if result[0]["kind"] != "purchase" {
		t.Errorf("kind = %v, want %q", result[0]["kind"], "purchase")
	}
	if int64(result[0]["amount"].(float64)) != -500 {
		t.Errorf("amount = %v, want -500", result[0]["amount"])
	}
}

// --- GET /api/accounts/{id}/audit テスト ---

func TestAccountHandler_Audit_Inconsistent(t *testing.T) {
	svc := &mockLedgerService{
		auditFn: func(ctx context.Context, accountID string) (*ledger.AuditResult, error) {
			return &ledger.AuditResult{
				AccountID:      accountID,
				Balance:        1000,
				TransactionSum: 900,
				Consistent:     false,
			}, nil
		},
	}

	h := NewAccountHandler(&mockAccountService{}, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/accounts/acct-1/audit", nil)
	req = withChiURLParam(req, "id", "acct-1")
	w := httptest.NewRecorder()

	h.Audit(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if result["consistent"] != false {
		t.Errorf("consistent = %v, want false", result["consistent"])
	}
	if int64(result["transaction_sum"].(float64)) != 900 {
		t.Errorf("transaction_sum = %v, want 900", result["transaction_sum"])
	}
}
