// Package model はドメインモデルを定義する。
package model

import "time"

// DurationKey は購読期間の選択肢を表す列挙キー。
// 価格表（PriceTable）のキーとしても使用される。
type DurationKey string

const (
	// Duration5Days は5日間の購読期間。
	Duration5Days DurationKey = "5d"
	// Duration10Days は10日間の購読期間。
	Duration10Days DurationKey = "10d"
	// Duration15Days は15日間の購読期間。
	Duration15Days DurationKey = "15d"
	// Duration30Days は30日間の購読期間。
	Duration30Days DurationKey = "30d"
	// DurationForever は無期限の購読期間。
	// 期限比較のnilチェックを避けるため、nullではなく遠い未来の番兵時刻に変換される。
	DurationForever DurationKey = "forever"
)

// ForeverExpiry は無期限購読の番兵となる有効期限（2099-01-01 UTC）。
// この時刻以降に到達する運用は想定しない。
var ForeverExpiry = time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC)

// durationDays は各キーの日数。foreverは含まない。
var durationDays = map[DurationKey]int{
	Duration5Days:  5,
	Duration10Days: 10,
	Duration15Days: 15,
	Duration30Days: 30,
}

// ParseDurationKey は文字列をDurationKeyとして検証する。
// サポート外のキーの場合はfalseを返す。
func ParseDurationKey(s string) (DurationKey, bool) {
	switch k := DurationKey(s); k {
	case Duration5Days, Duration10Days, Duration15Days, Duration30Days, DurationForever:
		return k, true
	default:
		return "", false
	}
}

// Days は期間の日数を返す。foreverの場合は0を返す。
func (k DurationKey) Days() int {
	return durationDays[k]
}

// IsForever は無期限キーかどうかを返す。
func (k DurationKey) IsForever() bool {
	return k == DurationForever
}

// ExpiryFrom は基準時刻からの有効期限を計算する。
// foreverの場合は番兵時刻ForeverExpiryを返す。
func (k DurationKey) ExpiryFrom(from time.Time) time.Time {
	if k.IsForever() {
		return ForeverExpiry
	}
	return from.AddDate(0, 0, k.Days())
}

// Label は通知文などに使う人間可読な期間表記を返す。
func (k DurationKey) Label() string {
	switch k {
	case Duration5Days:
		return "5日間"
	case Duration10Days:
		return "10日間"
	case Duration15Days:
		return "15日間"
	case Duration30Days:
		return "30日間"
	case DurationForever:
		return "無期限"
	default:
		return string(k)
	}
}
