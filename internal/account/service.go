// Package account はアカウント管理のドメインロジックを提供する。
package account

import (
	"context"
	"fmt"

	"github.com/hitoshi/packgate/internal/model"
	"github.com/hitoshi/packgate/internal/repository"
)

// Service はアカウントのサービス層。
type Service struct {
	accountRepo repository.AccountRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(accountRepo repository.AccountRepository) *Service {
	return &Service{accountRepo: accountRepo}
}

// Register はアカウントを冪等に登録する。
// 既存アカウントの場合はユーザー名と最終活動日時のみ更新され、残高は保持される。
func (s *Service) Register(ctx context.Context, id, username string) (*model.Account, error) {
	if id == "" {
		return nil, fmt.Errorf("アカウントIDは必須です")
	}
	account, err := s.accountRepo.Upsert(ctx, id, username)
	if err != nil {
		return nil, fmt.Errorf("アカウントの登録に失敗しました: %w", err)
	}
	return account, nil
}

// Get は指定IDのアカウントを返す。見つからない場合はAccountNotFoundエラーを返す。
func (s *Service) Get(ctx context.Context, id string) (*model.Account, error) {
	account, err := s.accountRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}
	if account == nil {
		return nil, model.NewAccountNotFoundError(id)
	}
	return account, nil
}

// Touch は最終活動日時を現在時刻に更新する。
func (s *Service) Touch(ctx context.Context, id string) error {
	if err := s.accountRepo.Touch(ctx, id); err != nil {
		return fmt.Errorf("最終活動日時の更新に失敗しました: %w", err)
	}
	return nil
}
