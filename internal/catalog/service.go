// Package catalog はパックカタログとグローバル購読設定のドメインロジックを提供する。
package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/packgate/internal/model"
	"github.com/hitoshi/packgate/internal/repository"
)

// Service はパックカタログのサービス層。
// 販売用の参照と管理者によるカタログ編集の両方を提供する。
type Service struct {
	packRepo repository.PackRepository
	planRepo repository.PlanRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(packRepo repository.PackRepository, planRepo repository.PlanRepository) *Service {
	return &Service{
		packRepo: packRepo,
		planRepo: planRepo,
	}
}

// ListActivePacks は販売中のパック一覧を返す。
func (s *Service) ListActivePacks(ctx context.Context) ([]*model.Pack, error) {
	packs, err := s.packRepo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("販売中パック一覧の取得に失敗しました: %w", err)
	}
	return packs, nil
}

// ListAllPacks は販売停止中を含む全パック一覧を返す。管理画面用。
func (s *Service) ListAllPacks(ctx context.Context) ([]*model.Pack, error) {
	packs, err := s.packRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("パック一覧の取得に失敗しました: %w", err)
	}
	return packs, nil
}

// GetPack は指定IDのパックを返す。見つからない場合はPackNotFoundエラーを返す。
func (s *Service) GetPack(ctx context.Context, id string) (*model.Pack, error) {
	pack, err := s.packRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("パックの取得に失敗しました: %w", err)
	}
	if pack == nil {
		return nil, model.NewPackNotFoundError(id)
	}
	return pack, nil
}

// ResolvePackPrice は販売中パックの指定期間の価格を解決する。
// 販売停止中のパック、価格表にない期間はエラーを返す。
func (s *Service) ResolvePackPrice(ctx context.Context, packID string, duration model.DurationKey) (*model.Pack, int64, error) {
	pack, err := s.GetPack(ctx, packID)
	if err != nil {
		return nil, 0, err
	}
	if !pack.IsActive {
		return nil, 0, model.NewPackInactiveError(packID)
	}
	price, ok := pack.Prices.PriceFor(duration)
	if !ok {
		return nil, 0, model.NewPriceNotSetError(duration)
	}
	return pack, price, nil
}

// GetPlan はグローバル購読の設定を返す。未設定の場合はPlanNotConfiguredエラーを返す。
func (s *Service) GetPlan(ctx context.Context) (*model.GlobalPlan, error) {
	plan, err := s.planRepo.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("グローバル購読設定の取得に失敗しました: %w", err)
	}
	if plan == nil {
		return nil, model.NewPlanNotConfiguredError()
	}
	return plan, nil
}

// ResolvePlanPrice はグローバル購読の指定期間の価格を解決する。
func (s *Service) ResolvePlanPrice(ctx context.Context, duration model.DurationKey) (*model.GlobalPlan, int64, error) {
	plan, err := s.GetPlan(ctx)
	if err != nil {
		return nil, 0, err
	}
	price, ok := plan.Prices.PriceFor(duration)
	if !ok {
		return nil, 0, model.NewPriceNotSetError(duration)
	}
	return plan, price, nil
}

// PutPlan はグローバル購読の説明文と価格表を設定する。
func (s *Service) PutPlan(ctx context.Context, description string, prices model.PriceTable) (*model.GlobalPlan, error) {
	if err := validatePrices(prices); err != nil {
		return nil, err
	}
	plan := &model.GlobalPlan{
		Description: strings.TrimSpace(description),
		Prices:      prices,
		UpdatedAt:   time.Now(),
	}
	if err := s.planRepo.Put(ctx, plan); err != nil {
		return nil, fmt.Errorf("グローバル購読設定の保存に失敗しました: %w", err)
	}
	return plan, nil
}

// CreatePack は新しいパックを作成する。作成直後は販売中となる。
func (s *Service) CreatePack(ctx context.Context, name, description, channelID string, prices model.PriceTable) (*model.Pack, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("パック名は必須です")
	}
	if strings.TrimSpace(channelID) == "" {
		return nil, fmt.Errorf("チャンネルIDは必須です")
	}
	if err := validatePrices(prices); err != nil {
		return nil, err
	}

	now := time.Now()
	pack := &model.Pack{
		ID:          uuid.NewString(),
		Name:        name,
		Description: strings.TrimSpace(description),
		Prices:      prices,
		ChannelID:   strings.TrimSpace(channelID),
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.packRepo.Create(ctx, pack); err != nil {
		return nil, fmt.Errorf("パックの作成に失敗しました: %w", err)
	}
	return pack, nil
}

// UpdatePack はパックの名前・説明・価格表・チャンネルを更新する。
func (s *Service) UpdatePack(ctx context.Context, id, name, description, channelID string, prices model.PriceTable) (*model.Pack, error) {
	pack, err := s.GetPack(ctx, id)
	if err != nil {
		return nil, err
	}

	if name = strings.TrimSpace(name); name != "" {
		pack.Name = name
	}
	if description = strings.TrimSpace(description); description != "" {
		pack.Description = description
	}
	if channelID = strings.TrimSpace(channelID); channelID != "" {
		pack.ChannelID = channelID
	}
	if prices != nil {
		if err := validatePrices(prices); err != nil {
			return nil, err
		}
		pack.Prices = prices
	}
	pack.UpdatedAt = time.Now()

	if err := s.packRepo.Update(ctx, pack); err != nil {
		return nil, fmt.Errorf("パックの更新に失敗しました: %w", err)
	}
	return pack, nil
}

// SetPackActive はパックの販売状態を切り替える。既存のグラントには影響しない。
func (s *Service) SetPackActive(ctx context.Context, id string, active bool) (*model.Pack, error) {
	pack, err := s.GetPack(ctx, id)
	if err != nil {
		return nil, err
	}
	pack.IsActive = active
	pack.UpdatedAt = time.Now()

	if err := s.packRepo.Update(ctx, pack); err != nil {
		return nil, fmt.Errorf("パック販売状態の更新に失敗しました: %w", err)
	}
	return pack, nil
}

// DeletePack はパックをカタログから削除する。販売済みグラントには影響しない。
func (s *Service) DeletePack(ctx context.Context, id string) error {
	if _, err := s.GetPack(ctx, id); err != nil {
		return err
	}
	if err := s.packRepo.Delete(ctx, id); err != nil {
		return fmt.Errorf("パックの削除に失敗しました: %w", err)
	}
	return nil
}

// validatePrices は価格表のキーと金額を検証する。
func validatePrices(prices model.PriceTable) error {
	if len(prices) == 0 {
		return fmt.Errorf("価格表は少なくとも1つの期間を含む必要があります")
	}
	for key, price := range prices {
		if _, ok := model.ParseDurationKey(string(key)); !ok {
			return model.NewInvalidDurationError(string(key))
		}
		if price <= 0 {
			return model.NewInvalidAmountError(price)
		}
	}
	return nil
}
