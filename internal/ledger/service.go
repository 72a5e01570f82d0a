// Package ledger は残高台帳のドメインロジックを提供する。
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/hitoshi/packgate/internal/model"
	"github.com/hitoshi/packgate/internal/repository"
)

// Service は残高台帳のサービス層。
// 残高の増減はすべて取引記録とともに原子的に適用される。
type Service struct {
	accountRepo     repository.AccountRepository
	transactionRepo repository.TransactionRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(accountRepo repository.AccountRepository, transactionRepo repository.TransactionRepository) *Service {
	return &Service{
		accountRepo:     accountRepo,
		transactionRepo: transactionRepo,
	}
}

// Debit はアカウントの残高からamountを差し引き、取引IDを返す。
// kindはpurchaseまたはdebit。残高不足の場合は何も記録せずエラーを返す。
func (s *Service) Debit(ctx context.Context, accountID string, amount int64, kind model.TransactionKind, memo string) (string, error) {
	if amount <= 0 {
		return "", model.NewInvalidAmountError(amount)
	}
	if kind != model.TransactionKindPurchase && kind != model.TransactionKindDebit {
		return "", fmt.Errorf("引き落としに使用できない取引種別です: %s", kind)
	}

	transactionID, err := s.transactionRepo.ApplyDelta(ctx, accountID, kind, -amount, memo)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return "", model.NewAccountNotFoundError(accountID)
		}
		if errors.Is(err, repository.ErrInsufficientBalance) {
			balance := s.currentBalance(ctx, accountID)
			return "", model.NewInsufficientFundsError(balance, amount)
		}
		return "", fmt.Errorf("引き落としに失敗しました: %w", err)
	}
	return transactionID, nil
}

// Credit はアカウントの残高にamountを加算し、取引IDを返す。
// kindはcreditまたはrefund。
func (s *Service) Credit(ctx context.Context, accountID string, amount int64, kind model.TransactionKind, memo string) (string, error) {
	if amount <= 0 {
		return "", model.NewInvalidAmountError(amount)
	}
	if kind != model.TransactionKindCredit && kind != model.TransactionKindRefund {
		return "", fmt.Errorf("入金に使用できない取引種別です: %s", kind)
	}

	transactionID, err := s.transactionRepo.ApplyDelta(ctx, accountID, kind, amount, memo)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return "", model.NewAccountNotFoundError(accountID)
		}
		return "", fmt.Errorf("入金に失敗しました: %w", err)
	}
	return transactionID, nil
}

// History はアカウントの取引履歴を新しい順に最大limit件返す。
func (s *Service) History(ctx context.Context, accountID string, limit int) ([]*model.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	transactions, err := s.transactionRepo.ListByAccount(ctx, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("取引履歴の取得に失敗しました: %w", err)
	}
	return transactions, nil
}

// AuditResult は残高監査の結果。
type AuditResult struct {
	AccountID      string
	Balance        int64
	TransactionSum int64
	Consistent     bool
}

// Audit はアカウントの残高と取引記録の合計を照合する。
// 残高列は取引履歴から導出可能な値であり、両者は常に一致するはずである。
func (s *Service) Audit(ctx context.Context, accountID string) (*AuditResult, error) {
	account, err := s.accountRepo.FindByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}
	if account == nil {
		return nil, model.NewAccountNotFoundError(accountID)
	}

	sum, err := s.transactionRepo.SumByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("取引合計の集計に失敗しました: %w", err)
	}

	return &AuditResult{
		AccountID:      accountID,
		Balance:        account.Balance,
		TransactionSum: sum,
		Consistent:     account.Balance == sum,
	}, nil
}

// currentBalance はエラーメッセージ用に現在残高を取得する。失敗時は0を返す。
func (s *Service) currentBalance(ctx context.Context, accountID string) int64 {
	account, err := s.accountRepo.FindByID(ctx, accountID)
	if err != nil || account == nil {
		return 0
	}
	return account.Balance
}
