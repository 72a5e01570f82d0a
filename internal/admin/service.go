// Package admin は管理者向け操作を提供する。
// 残高の手動調整、グラントの取り消し、売上統計の集計を含む。
package admin

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/packgate/internal/model"
	"github.com/hitoshi/packgate/internal/repository"
)

// Ledger は管理者操作が使用する台帳操作。
type Ledger interface {
	Credit(ctx context.Context, accountID string, amount int64, kind model.TransactionKind, memo string) (string, error)
	Debit(ctx context.Context, accountID string, amount int64, kind model.TransactionKind, memo string) (string, error)
}

// Grants は管理者操作が使用するグラント操作。
type Grants interface {
	Revoke(ctx context.Context, grantID string) (*model.Grant, error)
}

// Stats は売上と利用状況の統計レポート。
type Stats struct {
	Day          repository.PurchaseStats
	Week         repository.PurchaseStats
	Month        repository.PurchaseStats
	AllTime      repository.PurchaseStats
	Detailed     repository.DetailedStats
	TopBuyers    []repository.TopBuyer
	Accounts     int
	ActiveWeekly int
}

// Service は管理者操作のサービス層。
type Service struct {
	ledger          Ledger
	grants          Grants
	accountRepo     repository.AccountRepository
	transactionRepo repository.TransactionRepository
	now             func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	ledger Ledger,
	grants Grants,
	accountRepo repository.AccountRepository,
	transactionRepo repository.TransactionRepository,
) *Service {
	return &Service{
		ledger:          ledger,
		grants:          grants,
		accountRepo:     accountRepo,
		transactionRepo: transactionRepo,
		now:             time.Now,
	}
}

// topBuyersLimit は統計レポートに含める購入上位アカウントの件数。
const topBuyersLimit = 5

// Deposit はアカウントの残高に管理者権限で入金する。
func (s *Service) Deposit(ctx context.Context, accountID string, amount int64, memo string) (string, error) {
	if memo == "" {
		memo = "管理者による入金"
	}
	return s.ledger.Credit(ctx, accountID, amount, model.TransactionKindCredit, memo)
}

// Withdraw はアカウントの残高から管理者権限で引き落とす。
// 残高を超える引き落としは台帳層で拒否される。
func (s *Service) Withdraw(ctx context.Context, accountID string, amount int64, memo string) (string, error) {
	if memo == "" {
		memo = "管理者による引き落とし"
	}
	return s.ledger.Debit(ctx, accountID, amount, model.TransactionKindDebit, memo)
}

// RevokeGrant は指定グラントを取り消す。
func (s *Service) RevokeGrant(ctx context.Context, grantID string) (*model.Grant, error) {
	return s.grants.Revoke(ctx, grantID)
}

// CollectStats は売上統計と利用状況のレポートを集計する。
// 期間別の売上、直近30日の詳細、購入上位、アカウント数を含む。
func (s *Service) CollectStats(ctx context.Context) (*Stats, error) {
	now := s.now()
	stats := &Stats{}

	periods := []struct {
		name  string
		since time.Time
		dest  *repository.PurchaseStats
	}{
		{"日次", now.AddDate(0, 0, -1), &stats.Day},
		{"週次", now.AddDate(0, 0, -7), &stats.Week},
		{"月次", now.AddDate(0, 0, -30), &stats.Month},
	}
	for _, p := range periods {
		since := p.since
		result, err := s.transactionRepo.PurchaseStatsSince(ctx, &since)
		if err != nil {
			return nil, fmt.Errorf("%s売上の集計に失敗しました: %w", p.name, err)
		}
		*p.dest = result
	}

	allTime, err := s.transactionRepo.PurchaseStatsSince(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("累計売上の集計に失敗しました: %w", err)
	}
	stats.AllTime = allTime

	detailed, err := s.transactionRepo.DetailedPurchaseStats(ctx, now.AddDate(0, 0, -30))
	if err != nil {
		return nil, fmt.Errorf("売上詳細の集計に失敗しました: %w", err)
	}
	stats.Detailed = detailed

	topBuyers, err := s.transactionRepo.TopBuyers(ctx, now.AddDate(0, 0, -30), topBuyersLimit)
	if err != nil {
		return nil, fmt.Errorf("購入上位の集計に失敗しました: %w", err)
	}
	stats.TopBuyers = topBuyers

	accounts, err := s.accountRepo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("アカウント数の集計に失敗しました: %w", err)
	}
	stats.Accounts = accounts

	activeWeekly, err := s.accountRepo.CountActiveSince(ctx, now.AddDate(0, 0, -7))
	if err != nil {
		return nil, fmt.Errorf("活動アカウント数の集計に失敗しました: %w", err)
	}
	stats.ActiveWeekly = activeWeekly

	return stats, nil
}
