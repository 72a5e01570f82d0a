// Package purchase は購入フローのオーケストレーションを提供する。
// 引き落とし、グラント発行、招待リンク発行を調整し、失敗時は補償返金を行う。
package purchase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/packgate/internal/model"
	"github.com/hitoshi/packgate/internal/repository"
	"github.com/hitoshi/packgate/internal/subscription"
)

// Catalog は購入フローが参照するカタログ操作。
type Catalog interface {
	ResolvePackPrice(ctx context.Context, packID string, duration model.DurationKey) (*model.Pack, int64, error)
	ResolvePlanPrice(ctx context.Context, duration model.DurationKey) (*model.GlobalPlan, int64, error)
	ListActivePacks(ctx context.Context) ([]*model.Pack, error)
}

// Ledger は購入フローが使用する台帳操作。
type Ledger interface {
	Debit(ctx context.Context, accountID string, amount int64, kind model.TransactionKind, memo string) (string, error)
	Credit(ctx context.Context, accountID string, amount int64, kind model.TransactionKind, memo string) (string, error)
}

// Grants は購入フローが使用するグラント操作。
type Grants interface {
	CreateGrant(ctx context.Context, input subscription.GrantInput) (*model.Grant, error)
	ExtendActive(ctx context.Context, accountID string, packID *string, duration model.DurationKey, pricePaid int64) (*model.Grant, error)
	GetGrant(ctx context.Context, grantID string) (*model.Grant, error)
}

// AccessIssuer はチャンネルへのアクセス手段を発行する。
type AccessIssuer interface {
	CreateInviteLink(ctx context.Context, channelID string) (string, error)
}

// Collector は購入フローが記録するメトリクス。
type Collector interface {
	RecordPurchase(scope string, amount int64)
	RecordPurchaseFailure(reason string)
	RecordRefund(amount int64)
	RecordIssuanceLatency(duration time.Duration)
	RecordIssuanceFailure()
}

// Service は購入フローのサービス層。
type Service struct {
	catalog      Catalog
	ledger       Ledger
	grants       Grants
	issuer       AccessIssuer
	collector    Collector
	logger       *slog.Logger
	issueTimeout time.Duration
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	catalog Catalog,
	ledger Ledger,
	grants Grants,
	issuer AccessIssuer,
	collector Collector,
	logger *slog.Logger,
	issueTimeout time.Duration,
) *Service {
	return &Service{
		catalog:      catalog,
		ledger:       ledger,
		grants:       grants,
		issuer:       issuer,
		collector:    collector,
		logger:       logger,
		issueTimeout: issueTimeout,
	}
}

// Input は購入の入力。
type Input struct {
	AccountID string
	PackID    *string // nilの場合はグローバル購読の購入
	Duration  model.DurationKey
	Extend    bool // 同一スコープの有効グラントがある場合に延長を許可する
}

// IssuedLink は発行されたチャンネル招待リンク。
type IssuedLink struct {
	PackName   string
	ChannelID  string
	InviteLink string
}

// Receipt は購入結果の領収書。
// 招待リンクの発行に一部失敗しても、購入自体は完了している。
type Receipt struct {
	GrantID       string
	PackID        *string
	PackName      string
	Duration      model.DurationKey
	PricePaid     int64
	ExpiresAt     time.Time
	Extended      bool
	TransactionID string
	Links         []IssuedLink
	IssuedCount   int
	LinkTotal     int
}

// Purchase は購入を実行する。
// 引き落とし→グラント発行→招待リンク発行の順に進み、グラント発行に失敗した場合は
// 引き落としを返金して補償する。招待リンクの発行失敗は購入を巻き戻さない。
// 全リンクの発行に失敗した場合は、領収書とともにGRANT_ISSUANCE_FAILEDエラーを返す。
func (s *Service) Purchase(ctx context.Context, input Input) (*Receipt, error) {
	if _, ok := model.ParseDurationKey(string(input.Duration)); !ok {
		s.collector.RecordPurchaseFailure("invalid_duration")
		return nil, model.NewInvalidDurationError(string(input.Duration))
	}

	if input.PackID != nil {
		return s.purchasePack(ctx, input)
	}
	return s.purchaseGlobal(ctx, input)
}

// purchasePack は単一パックの購入を実行する。
func (s *Service) purchasePack(ctx context.Context, input Input) (*Receipt, error) {
	pack, price, err := s.catalog.ResolvePackPrice(ctx, *input.PackID, input.Duration)
	if err != nil {
		s.recordFailure(err)
		return nil, err
	}

	memo := fmt.Sprintf("パック「%s」（%s）", pack.Name, input.Duration.Label())
	grantInput := subscription.GrantInput{
		AccountID: input.AccountID,
		PackID:    input.PackID,
		PackName:  pack.Name,
		ChannelID: pack.ChannelID,
		Duration:  input.Duration,
		PricePaid: price,
	}

	receipt, err := s.settle(ctx, input, grantInput, price, memo)
	if err != nil {
		return nil, err
	}
	s.collector.RecordPurchase("pack", price)

	return s.issueLinks(ctx, receipt, []*model.Pack{pack})
}

// purchaseGlobal はグローバル購読の購入を実行する。
// 購入完了後、販売中の全パックのチャンネルへの招待リンクを発行する。
func (s *Service) purchaseGlobal(ctx context.Context, input Input) (*Receipt, error) {
	_, price, err := s.catalog.ResolvePlanPrice(ctx, input.Duration)
	if err != nil {
		s.recordFailure(err)
		return nil, err
	}

	memo := fmt.Sprintf("グローバル購読（%s）", input.Duration.Label())
	grantInput := subscription.GrantInput{
		AccountID: input.AccountID,
		PackName:  "グローバル購読",
		Duration:  input.Duration,
		PricePaid: price,
	}

	receipt, err := s.settle(ctx, input, grantInput, price, memo)
	if err != nil {
		return nil, err
	}
	s.collector.RecordPurchase("global", price)

	packs, err := s.catalog.ListActivePacks(ctx)
	if err != nil {
		// リンク発行の対象が取得できなくても購入は完了している
		s.logger.Error("販売中パック一覧の取得に失敗しました",
			slog.String("grant_id", receipt.GrantID),
			slog.String("error", err.Error()),
		)
		packs = nil
	}
	return s.issueLinks(ctx, receipt, packs)
}

// settle は引き落としとグラント発行を実行し、失敗時は返金で補償する。
func (s *Service) settle(ctx context.Context, input Input, grantInput subscription.GrantInput, price int64, memo string) (*Receipt, error) {
	transactionID, err := s.ledger.Debit(ctx, input.AccountID, price, model.TransactionKindPurchase, memo)
	if err != nil {
		s.recordFailure(err)
		return nil, err
	}

	grant, err := s.grants.CreateGrant(ctx, grantInput)
	if err == nil {
		return &Receipt{
			GrantID:       grant.ID,
			PackID:        grant.PackID,
			PackName:      grant.PackName,
			Duration:      grant.Duration,
			PricePaid:     price,
			ExpiresAt:     grant.ExpiresAt,
			TransactionID: transactionID,
		}, nil
	}

	if errors.Is(err, repository.ErrDuplicateActiveGrant) && input.Extend {
		grant, extErr := s.grants.ExtendActive(ctx, input.AccountID, input.PackID, input.Duration, price)
		if extErr == nil {
			return &Receipt{
				GrantID:       grant.ID,
				PackID:        grant.PackID,
				PackName:      grant.PackName,
				Duration:      input.Duration,
				PricePaid:     price,
				ExpiresAt:     grant.ExpiresAt,
				Extended:      true,
				TransactionID: transactionID,
			}, nil
		}
		err = extErr
	}

	// グラントを発行できなかったので引き落としを返金する
	s.refund(ctx, input.AccountID, price, memo)

	if errors.Is(err, repository.ErrDuplicateActiveGrant) {
		s.collector.RecordPurchaseFailure("duplicate_active_grant")
		return nil, model.NewDuplicateActiveGrantError(scopeLabel(input.PackID, grantInput.PackName))
	}
	s.recordFailure(err)
	return nil, fmt.Errorf("グラントの発行に失敗しました: %w", err)
}

// refund は補償返金を実行する。返金自体の失敗はログに残すのみとする。
func (s *Service) refund(ctx context.Context, accountID string, amount int64, memo string) {
	refundMemo := "返金: " + memo
	if _, err := s.ledger.Credit(ctx, accountID, amount, model.TransactionKindRefund, refundMemo); err != nil {
		s.logger.Error("補償返金に失敗しました。手動での対応が必要です",
			slog.String("account_id", accountID),
			slog.Int64("amount", amount),
			slog.String("error", err.Error()),
		)
		return
	}
	s.collector.RecordRefund(amount)
}

// issueLinks は各パックのチャンネルへの単回使用招待リンクを発行する。
// 発行はタイムアウト付きで行い、個々の失敗は他のリンクに影響しない。
// 発行対象があるのに1件も発行できなかった場合のみ、領収書とともにエラーを返す。
func (s *Service) issueLinks(ctx context.Context, receipt *Receipt, packs []*model.Pack) (*Receipt, error) {
	receipt.LinkTotal = len(packs)
	if len(packs) == 0 {
		return receipt, nil
	}

	issueCtx, cancel := context.WithTimeout(ctx, s.issueTimeout)
	defer cancel()

	for _, pack := range packs {
		start := time.Now()
		link, err := s.issuer.CreateInviteLink(issueCtx, pack.ChannelID)
		s.collector.RecordIssuanceLatency(time.Since(start))
		if err != nil {
			s.collector.RecordIssuanceFailure()
			s.logger.Error("招待リンクの発行に失敗しました",
				slog.String("grant_id", receipt.GrantID),
				slog.String("channel_id", pack.ChannelID),
				slog.String("error", err.Error()),
			)
			continue
		}
		receipt.Links = append(receipt.Links, IssuedLink{
			PackName:   pack.Name,
			ChannelID:  pack.ChannelID,
			InviteLink: link,
		})
	}
	receipt.IssuedCount = len(receipt.Links)

	if receipt.IssuedCount == 0 {
		return receipt, model.NewGrantIssuanceFailedError(receipt.GrantID)
	}
	return receipt, nil
}

// Reissue は既存グラントの招待リンクを再発行する。台帳への書き込みは行わない。
// グローバルグラントの場合は販売中の全パックが対象となる。
func (s *Service) Reissue(ctx context.Context, grantID string) (*Receipt, error) {
	grant, err := s.grants.GetGrant(ctx, grantID)
	if err != nil {
		return nil, err
	}
	if grant.Status != model.GrantStatusActive {
		return nil, model.NewGrantNotFoundError(grantID)
	}

	receipt := &Receipt{
		GrantID:   grant.ID,
		PackID:    grant.PackID,
		PackName:  grant.PackName,
		Duration:  grant.Duration,
		PricePaid: grant.PricePaid,
		ExpiresAt: grant.ExpiresAt,
	}

	var packs []*model.Pack
	if grant.IsGlobal() {
		packs, err = s.catalog.ListActivePacks(ctx)
		if err != nil {
			return nil, fmt.Errorf("販売中パック一覧の取得に失敗しました: %w", err)
		}
	} else {
		packs = []*model.Pack{{Name: grant.PackName, ChannelID: grant.ChannelID}}
	}
	return s.issueLinks(ctx, receipt, packs)
}

// recordFailure はドメインエラーのコードを失敗理由としてメトリクスに記録する。
func (s *Service) recordFailure(err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		s.collector.RecordPurchaseFailure(apiErr.Code)
		return
	}
	s.collector.RecordPurchaseFailure("internal")
}

// scopeLabel はエラーメッセージ用のスコープ表記を返す。
func scopeLabel(packID *string, packName string) string {
	if packID == nil {
		return "グローバル購読"
	}
	return fmt.Sprintf("パック「%s」", packName)
}
