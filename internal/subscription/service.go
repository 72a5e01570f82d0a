// Package subscription はグラントのライフサイクル管理を提供する。
package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/packgate/internal/model"
	"github.com/hitoshi/packgate/internal/repository"
)

// Service はグラントのサービス層。
// 作成・延長・失効・取り消しと、アクセス権の判定を提供する。
type Service struct {
	grantRepo   repository.GrantRepository
	accountRepo repository.AccountRepository
	now         func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(grantRepo repository.GrantRepository, accountRepo repository.AccountRepository) *Service {
	return &Service{
		grantRepo:   grantRepo,
		accountRepo: accountRepo,
		now:         time.Now,
	}
}

// GrantInput はグラント作成の入力。
type GrantInput struct {
	AccountID string
	PackID    *string // nilの場合はグローバルスコープ
	PackName  string
	ChannelID string
	Duration  model.DurationKey
	PricePaid int64
}

// CreateGrant は新しいグラントを作成する。
// 同一スコープの有効グラントが既に存在する場合はErrDuplicateActiveGrantをそのまま返す。
// グローバルグラントの場合はアカウントの期限ミラーも更新する。
func (s *Service) CreateGrant(ctx context.Context, input GrantInput) (*model.Grant, error) {
	now := s.now()
	grant := &model.Grant{
		ID:          uuid.NewString(),
		AccountID:   input.AccountID,
		PackID:      input.PackID,
		PackName:    input.PackName,
		ChannelID:   input.ChannelID,
		Duration:    input.Duration,
		PricePaid:   input.PricePaid,
		Status:      model.GrantStatusActive,
		PurchasedAt: now,
		ExpiresAt:   input.Duration.ExpiryFrom(now),
	}

	if err := s.grantRepo.Create(ctx, grant); err != nil {
		if errors.Is(err, repository.ErrDuplicateActiveGrant) {
			return nil, err
		}
		return nil, fmt.Errorf("グラントの作成に失敗しました: %w", err)
	}

	// 期限ミラーは表示用であり、権限判定はグラント本体で行われる。
	// グラント確定後のミラー更新失敗でエラーを返すと、呼び出し元の補償処理が
	// 確定済みグラントを残したまま返金してしまうため、記録して続行する
	if grant.IsGlobal() {
		s.mirrorGlobalExpiry(ctx, input.AccountID, &grant.ExpiresAt)
	}
	return grant, nil
}

// ExtendActive は(account, scope)の有効グラントの期限を延長する。
// 新しい期限は現在の期限を起点に計算する。期限は後ろにしか動かない。
// 無期限グラントへの延長、または無期限による延長は常に無期限となる。
func (s *Service) ExtendActive(ctx context.Context, accountID string, packID *string, duration model.DurationKey, pricePaid int64) (*model.Grant, error) {
	grant, err := s.grantRepo.FindActiveByScope(ctx, accountID, packID)
	if err != nil {
		return nil, fmt.Errorf("有効グラントの検索に失敗しました: %w", err)
	}
	if grant == nil {
		return nil, model.NewGrantNotFoundError(accountID)
	}

	newExpiry := duration.ExpiryFrom(grant.ExpiresAt)
	if grant.IsForever() {
		newExpiry = model.ForeverExpiry
	}
	if newExpiry.Before(grant.ExpiresAt) {
		newExpiry = grant.ExpiresAt
	}

	if err := s.grantRepo.UpdateExpiry(ctx, grant.ID, newExpiry); err != nil {
		return nil, fmt.Errorf("グラント期限の延長に失敗しました: %w", err)
	}
	grant.ExpiresAt = newExpiry

	if grant.IsGlobal() {
		s.mirrorGlobalExpiry(ctx, accountID, &newExpiry)
	}
	return grant, nil
}

// GetGrant は指定IDのグラントを返す。見つからない場合はGrantNotFoundエラーを返す。
func (s *Service) GetGrant(ctx context.Context, grantID string) (*model.Grant, error) {
	grant, err := s.grantRepo.FindByID(ctx, grantID)
	if err != nil {
		return nil, fmt.Errorf("グラントの取得に失敗しました: %w", err)
	}
	if grant == nil {
		return nil, model.NewGrantNotFoundError(grantID)
	}
	return grant, nil
}

// ListActive はアカウントの有効グラント一覧を返す。
func (s *Service) ListActive(ctx context.Context, accountID string) ([]*model.Grant, error) {
	grants, err := s.grantRepo.ListActiveByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("有効グラント一覧の取得に失敗しました: %w", err)
	}
	return grants, nil
}

// ListExpired は期限がasOf以前の有効グラントを全件返す。スイープ用。
func (s *Service) ListExpired(ctx context.Context, asOf time.Time) ([]*model.Grant, error) {
	grants, err := s.grantRepo.ListExpired(ctx, asOf)
	if err != nil {
		return nil, fmt.Errorf("期限切れグラントの取得に失敗しました: %w", err)
	}
	return grants, nil
}

// ListExpiring は期限が(from, until]に入るリマインダー未送信のグラントを返す。
func (s *Service) ListExpiring(ctx context.Context, from, until time.Time) ([]*model.Grant, error) {
	grants, err := s.grantRepo.ListExpiring(ctx, from, until)
	if err != nil {
		return nil, fmt.Errorf("期限間近グラントの取得に失敗しました: %w", err)
	}
	return grants, nil
}

// MarkReminderSent はリマインダー送信済みを記録する。
func (s *Service) MarkReminderSent(ctx context.Context, grantID string) error {
	if err := s.grantRepo.MarkReminderSent(ctx, grantID, s.now()); err != nil {
		return fmt.Errorf("リマインダー送信記録に失敗しました: %w", err)
	}
	return nil
}

// Expire はグラントを期限切れ状態に遷移させる。
// 既に終端状態の場合は何もしない（冪等）。遷移した場合はtrueを返す。
func (s *Service) Expire(ctx context.Context, grant *model.Grant) (bool, error) {
	return s.terminate(ctx, grant, model.GrantStatusExpired)
}

// Revoke は指定グラントを管理者権限で取り消す。
// 既に終端状態の場合は何もしない（冪等）。
func (s *Service) Revoke(ctx context.Context, grantID string) (*model.Grant, error) {
	grant, err := s.GetGrant(ctx, grantID)
	if err != nil {
		return nil, err
	}
	if _, err := s.terminate(ctx, grant, model.GrantStatusRevoked); err != nil {
		return nil, err
	}
	return grant, nil
}

// terminate はグラントを終端状態に遷移させ、グローバルの場合は期限ミラーを消去する。
func (s *Service) terminate(ctx context.Context, grant *model.Grant, status model.GrantStatus) (bool, error) {
	if grant.Status.IsTerminal() {
		return false, nil
	}

	changed, err := s.grantRepo.Terminate(ctx, grant.ID, status)
	if err != nil {
		return false, fmt.Errorf("グラントの終了処理に失敗しました: %w", err)
	}
	if !changed {
		return false, nil
	}
	grant.Status = status

	if grant.IsGlobal() {
		s.mirrorGlobalExpiry(ctx, grant.AccountID, nil)
	}
	return true, nil
}

// mirrorGlobalExpiry はアカウントのグローバル期限ミラーを更新する。
// ミラーは表示専用のため、失敗してもグラント操作の結果は変えず警告のみ記録する。
func (s *Service) mirrorGlobalExpiry(ctx context.Context, accountID string, expiresAt *time.Time) {
	if err := s.accountRepo.UpdateGlobalExpiry(ctx, accountID, expiresAt); err != nil {
		slog.Warn("グローバル期限ミラーの更新に失敗しました",
			slog.String("account_id", accountID),
			slog.String("error", err.Error()),
		)
	}
}

// IsEntitled はアカウントが指定チャンネルにアクセスできるかを判定する。
// チャンネルを対象とするパックのグラント、またはグローバルグラントのいずれかで許可される。
func (s *Service) IsEntitled(ctx context.Context, accountID, channelID string) (bool, error) {
	now := s.now()

	global, err := s.grantRepo.ExistsActiveGlobal(ctx, accountID, now)
	if err != nil {
		return false, fmt.Errorf("グローバル権限の確認に失敗しました: %w", err)
	}
	if global {
		return true, nil
	}

	channel, err := s.grantRepo.ExistsActiveForChannel(ctx, accountID, channelID, now)
	if err != nil {
		return false, fmt.Errorf("チャンネル権限の確認に失敗しました: %w", err)
	}
	return channel, nil
}
