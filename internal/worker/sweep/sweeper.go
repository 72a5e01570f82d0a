// Package sweep は期限切れグラントの失効処理ジョブを提供する。
// 時間単位のティッカーで期限到達グラントを検出し、失効と通知を行う。
package sweep

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/packgate/internal/model"
)

// GrantSource はスイープが対象とするグラント操作。
type GrantSource interface {
	ListExpired(ctx context.Context, asOf time.Time) ([]*model.Grant, error)
	Expire(ctx context.Context, grant *model.Grant) (bool, error)
}

// Notifier は失効通知の送信インターフェース。
type Notifier interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

// Collector はスイープの結果を記録する。
type Collector interface {
	RecordSweepRevocation(count int)
}

// Sweeper は期限切れグラントの失効ジョブ。
// 通知の失敗は失効を妨げず、個々のグラントの失敗は他のグラントに影響しない。
type Sweeper struct {
	grants    GrantSource
	notifier  Notifier
	collector Collector
	logger    *slog.Logger
	now       func() time.Time
}

// NewSweeper はSweeperの新しいインスタンスを生成する。
func NewSweeper(grants GrantSource, notifier Notifier, collector Collector, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		grants:    grants,
		notifier:  notifier,
		collector: collector,
		logger:    logger,
		now:       time.Now,
	}
}

// Start は指定間隔のティッカーでスイープを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("失効スイープを開始しました",
		slog.Duration("interval", interval),
	)

	// 起動直後に1回実行
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("失効スイープの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("失効スイープを停止しました")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("失効スイープの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は期限到達グラントを1回検出し、失効と通知を行う。
// 失効済みのグラントを再度処理しても何も起きない（冪等）。
func (s *Sweeper) RunOnce(ctx context.Context) error {
	start := s.now()

	grants, err := s.grants.ListExpired(ctx, start)
	if err != nil {
		return err
	}
	if len(grants) == 0 {
		return nil
	}

	s.logger.Info("失効スイープサイクルを開始します",
		slog.Int("grant_count", len(grants)),
	)

	revoked := 0
	for _, grant := range grants {
		// 失効を確定させてから通知する。失効に失敗したグラントには通知せず、
		// 次回サイクルで再試行する
		changed, err := s.grants.Expire(ctx, grant)
		if err != nil {
			s.logger.Error("グラントの失効に失敗しました",
				slog.String("grant_id", grant.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !changed {
			continue
		}
		revoked++

		// 通知の失敗は失効を取り消さない
		text := "⚠️ " + grant.ScopeLabel() + "の購読期限が切れました。継続するには再購入してください。"
		if err := s.notifier.SendMessage(ctx, grant.AccountID, text); err != nil {
			s.logger.Warn("失効通知の送信に失敗しました",
				slog.String("grant_id", grant.ID),
				slog.String("account_id", grant.AccountID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.collector.RecordSweepRevocation(revoked)
	s.logger.Info("失効スイープサイクルが完了しました",
		slog.Int("revoked", revoked),
		slog.Int("grant_count", len(grants)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}
