// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// フロントエンドに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: billing, subscription, validation, auth, system
	Action   string // 利用者向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInsufficientFunds    = "INSUFFICIENT_FUNDS"
	ErrCodePackInactive         = "PACK_INACTIVE"
	ErrCodePackNotFound         = "PACK_NOT_FOUND"
	ErrCodeDuplicateActiveGrant = "DUPLICATE_ACTIVE_GRANT"
	ErrCodeGrantIssuanceFailed  = "GRANT_ISSUANCE_FAILED"
	ErrCodeAccountNotFound      = "ACCOUNT_NOT_FOUND"
	ErrCodeGrantNotFound        = "GRANT_NOT_FOUND"
	ErrCodeInvalidDuration      = "INVALID_DURATION"
	ErrCodeInvalidAmount        = "INVALID_AMOUNT"
	ErrCodePlanNotConfigured    = "PLAN_NOT_CONFIGURED"
	ErrCodePriceNotSet          = "PRICE_NOT_SET"
)

// NewInsufficientFundsError は残高不足エラーを生成する。
func NewInsufficientFundsError(balance, price int64) *APIError {
	return &APIError{
		Code:     ErrCodeInsufficientFunds,
		Message:  fmt.Sprintf("残高が不足しています: 残高 %d、必要額 %d", balance, price),
		Category: "billing",
		Action:   "残高をチャージしてから再度お試しください。",
	}
}

// NewPackInactiveError は販売停止中パックの購入エラーを生成する。
func NewPackInactiveError(packID string) *APIError {
	return &APIError{
		Code:     ErrCodePackInactive,
		Message:  fmt.Sprintf("このパックは現在販売されていません: %s", packID),
		Category: "subscription",
		Action:   "販売中のパック一覧から選び直してください。",
	}
}

// NewPackNotFoundError はパック未検出エラーを生成する。
func NewPackNotFoundError(packID string) *APIError {
	return &APIError{
		Code:     ErrCodePackNotFound,
		Message:  fmt.Sprintf("指定されたパックが見つかりません: %s", packID),
		Category: "subscription",
		Action:   "パックIDを確認してください。",
	}
}

// NewDuplicateActiveGrantError は同一スコープの有効グラント重複エラーを生成する。
func NewDuplicateActiveGrantError(scope string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateActiveGrant,
		Message:  fmt.Sprintf("%sの有効な購読が既に存在します。", scope),
		Category: "subscription",
		Action:   "延長する場合はextendを指定して購入してください。",
	}
}

// NewGrantIssuanceFailedError は招待リンク発行失敗エラーを生成する。
// 購入自体は完了しており、再発行で復旧できる。
func NewGrantIssuanceFailedError(grantID string) *APIError {
	return &APIError{
		Code:     ErrCodeGrantIssuanceFailed,
		Message:  fmt.Sprintf("購入は完了しましたが、アクセスリンクの発行に失敗しました: %s", grantID),
		Category: "subscription",
		Action:   "課金は発生しません。リンクの再発行をお試しください。",
	}
}

// NewAccountNotFoundError はアカウント未検出エラーを生成する。
func NewAccountNotFoundError(accountID string) *APIError {
	return &APIError{
		Code:     ErrCodeAccountNotFound,
		Message:  fmt.Sprintf("指定されたアカウントが見つかりません: %s", accountID),
		Category: "auth",
		Action:   "アカウントIDを確認してください。",
	}
}

// NewGrantNotFoundError はグラント未検出エラーを生成する。
func NewGrantNotFoundError(grantID string) *APIError {
	return &APIError{
		Code:     ErrCodeGrantNotFound,
		Message:  fmt.Sprintf("指定されたグラントが見つかりません: %s", grantID),
		Category: "subscription",
		Action:   "グラントIDを確認してください。",
	}
}

// NewInvalidDurationError は無効な購読期間エラーを生成する。
func NewInvalidDurationError(key string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDuration,
		Message:  fmt.Sprintf("無効な購読期間です: %s", key),
		Category: "validation",
		Action:   "期間には 5d、10d、15d、30d、forever のいずれかを指定してください。",
	}
}

// NewInvalidAmountError は無効な金額エラーを生成する。
func NewInvalidAmountError(amount int64) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidAmount,
		Message:  fmt.Sprintf("金額は正の値で指定してください: %d", amount),
		Category: "validation",
		Action:   "1以上の金額を指定してください。",
	}
}

// NewPlanNotConfiguredError はグローバル購読未設定エラーを生成する。
func NewPlanNotConfiguredError() *APIError {
	return &APIError{
		Code:     ErrCodePlanNotConfigured,
		Message:  "グローバル購読の設定がまだ登録されていません。",
		Category: "subscription",
		Action:   "管理者がグローバル購読の価格表を設定するまでお待ちください。",
	}
}

// NewPriceNotSetError は価格表に期間が存在しないエラーを生成する。
func NewPriceNotSetError(key DurationKey) *APIError {
	return &APIError{
		Code:     ErrCodePriceNotSet,
		Message:  fmt.Sprintf("この期間の価格が設定されていません: %s", key),
		Category: "validation",
		Action:   "価格表に存在する期間を選択してください。",
	}
}
