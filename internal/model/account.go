// Package model はドメインモデルを定義する。
package model

import "time"

// Account は利用者の残高・活動記録を表す。
// IDはフロントエンド（Telegram）のユーザーIDをそのまま使う不透明な安定IDで、
// 一度作成されたアカウントは削除されない。
type Account struct {
	ID              string
	Username        string
	Balance         int64      // 最小通貨単位（コペイカ）。負になることはない。
	GlobalExpiresAt *time.Time // グローバル購読の有効期限。未購入の場合はnil。
	RegisteredAt    time.Time
	LastActivityAt  time.Time
}

// HasActiveGlobal は指定時刻においてグローバル購読が有効かどうかを返す。
func (a *Account) HasActiveGlobal(at time.Time) bool {
	return a.GlobalExpiresAt != nil && a.GlobalExpiresAt.After(at)
}
