// Package model はドメインモデルを定義する。
package model

import "time"

// TransactionKind は取引種別を表す。
type TransactionKind string

const (
	// TransactionKindPurchase は購読購入による引き落とし。
	TransactionKindPurchase TransactionKind = "purchase"
	// TransactionKindCredit は管理者による残高追加。
	TransactionKindCredit TransactionKind = "credit"
	// TransactionKindDebit は管理者による残高減算。
	TransactionKindDebit TransactionKind = "debit"
	// TransactionKindRefund は購入失敗時の補償返金。
	TransactionKindRefund TransactionKind = "refund"
)

// Transaction は台帳の取引記録を表す。追記専用で、残高履歴の唯一の正である。
// Amountは符号付き: 引き落とし（purchase/debit）は負、入金（credit/refund）は正。
// 各アカウントの残高は常にそのアカウントの全取引のAmount合計と一致する。
type Transaction struct {
	ID        string
	AccountID string
	Kind      TransactionKind
	Amount    int64
	Memo      string
	CreatedAt time.Time
}
