// Package model はドメインモデルを定義する。
package model

import "time"

// PriceTable は購読期間キーから価格（最小通貨単位）への価格表。
// DBにはJSONBとして保存される。
type PriceTable map[DurationKey]int64

// PriceFor は指定期間の価格を返す。価格表に存在しない期間はfalseを返す。
func (p PriceTable) PriceFor(key DurationKey) (int64, bool) {
	price, ok := p[key]
	return price, ok
}

// Pack は販売対象のパック（プライベートチャンネルへのアクセス権の束）を表す。
type Pack struct {
	ID          string
	Name        string
	Description string
	Prices      PriceTable
	ChannelID   string // アクセスを付与する対象チャンネルのID
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// GlobalPlan は全パックへのアクセスを付与するグローバル購読の設定を表す。
// 管理者が説明文と価格表を編集する単一レコード。
type GlobalPlan struct {
	Description string
	Prices      PriceTable
	UpdatedAt   time.Time
}
