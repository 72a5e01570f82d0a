// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/packgate/internal/model"
)

// リポジトリ層の番兵エラー。サービス層でドメインエラーに変換される。
var (
	// ErrInsufficientBalance は残高不足により条件付き更新が失敗したことを表す。
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrAccountNotFound は対象アカウントが存在しないことを表す。
	ErrAccountNotFound = errors.New("account not found")
	// ErrDuplicateActiveGrant は同一スコープの有効グラントが既に存在することを表す。
	// grants_active_scope_uniq 部分一意インデックスの違反から検出される。
	ErrDuplicateActiveGrant = errors.New("duplicate active grant")
)

// AccountRepository はアカウントデータの永続化インターフェース。
type AccountRepository interface {
	// Upsert はアカウントを冪等に登録する。
	// 既存の場合はusernameとlast_activity_atのみ更新する（残高・登録日時は保持）。
	Upsert(ctx context.Context, id, username string) (*model.Account, error)

	// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Account, error)

	// Touch はlast_activity_atを現在時刻に更新する。存在しないIDは無視する。
	Touch(ctx context.Context, id string) error

	// UpdateGlobalExpiry はグローバル購読期限のミラーを更新する。nilでクリアする。
	UpdateGlobalExpiry(ctx context.Context, id string, expiresAt *time.Time) error

	// Count は全アカウント数を返す。
	Count(ctx context.Context) (int, error)

	// CountActiveSince は指定時刻以降に活動したアカウント数を返す。
	CountActiveSince(ctx context.Context, since time.Time) (int, error)

	// ListIDs は全アカウントIDを返す。一斉送信用。
	ListIDs(ctx context.Context) ([]string, error)
}

// PackRepository はパックカタログの永続化インターフェース。
type PackRepository interface {
	// FindByID は指定IDのパックを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Pack, error)

	// ListActive は販売中のパック一覧を作成日時昇順で返す。
	ListActive(ctx context.Context) ([]*model.Pack, error)

	// List は全パック一覧を返す。管理画面用。
	List(ctx context.Context) ([]*model.Pack, error)

	// Create はパックを作成する。
	Create(ctx context.Context, pack *model.Pack) error

	// Update はパックの名前・説明・価格表・チャンネル・販売状態を更新する。
	Update(ctx context.Context, pack *model.Pack) error

	// Delete は指定IDのパックを削除する。販売済みグラントには影響しない。
	Delete(ctx context.Context, id string) error
}

// PlanRepository はグローバル購読設定の永続化インターフェース。
type PlanRepository interface {
	// Get はグローバル購読設定を取得する。未設定の場合はnilを返す。
	Get(ctx context.Context) (*model.GlobalPlan, error)

	// Put はグローバル購読設定を作成または上書きする。
	Put(ctx context.Context, plan *model.GlobalPlan) error
}

// GrantRepository はグラントデータの永続化インターフェース。
type GrantRepository interface {
	// Create はグラントを作成する。
	// 同一(account, scope)の有効グラントが既に存在する場合はErrDuplicateActiveGrantを返す。
	Create(ctx context.Context, grant *model.Grant) error

	// FindByID は指定IDのグラントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Grant, error)

	// FindActiveByScope は(account, scope)の有効グラントを取得する。見つからない場合はnilを返す。
	// packIDがnilの場合はグローバルスコープを検索する。
	FindActiveByScope(ctx context.Context, accountID string, packID *string) (*model.Grant, error)

	// ListActiveByAccount はアカウントの有効グラント一覧を購入日時昇順で返す。
	ListActiveByAccount(ctx context.Context, accountID string) ([]*model.Grant, error)

	// ListExpired は有効かつ期限がasOf以前のグラントを全件返す。
	// スイープが取りこぼさないよう、ページネーションを行わない完全な走査とする。
	ListExpired(ctx context.Context, asOf time.Time) ([]*model.Grant, error)

	// ListExpiring は有効かつ期限が(from, until]に入り、リマインダー未送信のグラントを返す。
	ListExpiring(ctx context.Context, from, until time.Time) ([]*model.Grant, error)

	// UpdateExpiry は有効グラントの期限を更新する。
	UpdateExpiry(ctx context.Context, id string, expiresAt time.Time) error

	// MarkReminderSent はリマインダー送信時刻を記録する。
	MarkReminderSent(ctx context.Context, id string, at time.Time) error

	// Terminate はグラントをactiveから指定の終端状態へ遷移させる。
	// 既に終端状態の場合は何もせずfalseを返す（冪等）。
	Terminate(ctx context.Context, id string, status model.GrantStatus) (bool, error)

	// ExistsActiveForChannel は指定チャンネルを対象とするパックの有効グラントがあるかを返す。
	ExistsActiveForChannel(ctx context.Context, accountID, channelID string, asOf time.Time) (bool, error)

	// ExistsActiveGlobal はグローバルスコープの有効グラントがあるかを返す。
	ExistsActiveGlobal(ctx context.Context, accountID string, asOf time.Time) (bool, error)
}

// PurchaseStats は購入取引の集計結果。
type PurchaseStats struct {
	Count   int
	Revenue int64
}

// DetailedStats は期間内の売上詳細集計。
type DetailedStats struct {
	Sales        int
	Revenue      int64
	AverageSale  int64
	UniqueBuyers int
}

// TopBuyer は購入額上位のアカウント。
type TopBuyer struct {
	AccountID  string
	Username   string
	TotalSpent int64
}

// TransactionRepository は取引台帳の永続化インターフェース。
type TransactionRepository interface {
	// ApplyDelta は残高の条件付き更新と取引記録の追加を単一トランザクションで行い、
	// 取引IDを返す。残高が負になる場合はErrInsufficientBalance、
	// アカウントが存在しない場合はErrAccountNotFoundを返し、何もコミットしない。
	// 行ロックにより同一アカウントへの変更は直列化される。
	ApplyDelta(ctx context.Context, accountID string, kind model.TransactionKind, amount int64, memo string) (string, error)

	// ListByAccount はアカウントの取引履歴を新しい順に最大limit件返す。
	ListByAccount(ctx context.Context, accountID string, limit int) ([]*model.Transaction, error)

	// SumByAccount はアカウントの取引金額の合計を返す。残高との照合用。
	SumByAccount(ctx context.Context, accountID string) (int64, error)

	// PurchaseStatsSince は指定時刻以降の購入取引の件数と売上を返す。
	// sinceがnilの場合は全期間を集計する。
	PurchaseStatsSince(ctx context.Context, since *time.Time) (PurchaseStats, error)

	// DetailedPurchaseStats は指定時刻以降の売上詳細（件数・売上・平均・購入者数）を返す。
	DetailedPurchaseStats(ctx context.Context, since time.Time) (DetailedStats, error)

	// TopBuyers は指定時刻以降の購入額上位アカウントを返す。
	TopBuyers(ctx context.Context, since time.Time, limit int) ([]TopBuyer, error)
}
