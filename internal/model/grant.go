// Package model はドメインモデルを定義する。
package model

import "time"

// GrantStatus は購読グラントの状態を表す。
// 遷移は active → expired（期限到達）と active → revoked（管理者取り消し）のみで、
// 逆方向の遷移は存在しない。
type GrantStatus string

const (
	// GrantStatusActive は有効なグラント。
	GrantStatusActive GrantStatus = "active"
	// GrantStatusExpired は期限到達により失効したグラント。
	GrantStatusExpired GrantStatus = "expired"
	// GrantStatusRevoked は管理者により取り消されたグラント。
	GrantStatusRevoked GrantStatus = "revoked"
)

// IsTerminal は終端状態（expired/revoked）かどうかを返す。
func (s GrantStatus) IsTerminal() bool {
	return s == GrantStatusExpired || s == GrantStatusRevoked
}

// Grant はアカウントに付与された購読グラントを表す。
// PackIDがnilの場合はグローバルスコープ（全パックへのアクセス権）を意味する。
// PackName/ChannelIDは購入時点のスナップショットであり、
// 後からカタログが編集・削除されても販売済みグラントの条件は変わらない。
type Grant struct {
	ID             string
	AccountID      string
	PackID         *string
	PackName       string
	ChannelID      string
	Duration       DurationKey
	PricePaid      int64
	Status         GrantStatus
	PurchasedAt    time.Time
	ExpiresAt      time.Time
	ReminderSentAt *time.Time
}

// IsGlobal はグローバルスコープのグラントかどうかを返す。
func (g *Grant) IsGlobal() bool {
	return g.PackID == nil
}

// IsForever は無期限（番兵時刻）のグラントかどうかを返す。
func (g *Grant) IsForever() bool {
	return !g.ExpiresAt.Before(ForeverExpiry)
}

// ScopeLabel は通知文などに使うスコープの人間可読な表記を返す。
func (g *Grant) ScopeLabel() string {
	if g.IsGlobal() {
		return "グローバル購読"
	}
	return "パック「" + g.PackName + "」"
}
