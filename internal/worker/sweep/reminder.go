package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/packgate/internal/model"
)

// ReminderSource はリマインダーが対象とするグラント操作。
type ReminderSource interface {
	ListExpiring(ctx context.Context, from, until time.Time) ([]*model.Grant, error)
	MarkReminderSent(ctx context.Context, grantID string) error
}

// ReminderCollector はリマインダー送信数を記録する。
type ReminderCollector interface {
	RecordReminderSent(count int)
}

// Reminder は期限間近のグラントへのリマインダー送信ジョブ。
// 送信済みのグラントには再送しない。
type Reminder struct {
	grants    ReminderSource
	notifier  Notifier
	collector ReminderCollector
	logger    *slog.Logger
	window    time.Duration // 期限の何時間前から通知するか
	now       func() time.Time
}

// NewReminder はReminderの新しいインスタンスを生成する。
func NewReminder(grants ReminderSource, notifier Notifier, collector ReminderCollector, logger *slog.Logger, window time.Duration) *Reminder {
	return &Reminder{
		grants:    grants,
		notifier:  notifier,
		collector: collector,
		logger:    logger,
		window:    window,
		now:       time.Now,
	}
}

// Start は指定間隔のティッカーでリマインダーを起動する。
func (r *Reminder) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("期限リマインダーを開始しました",
		slog.Duration("interval", interval),
		slog.Duration("window", r.window),
	)

	// 起動直後に1回実行
	if err := r.RunOnce(ctx); err != nil {
		r.logger.Error("期限リマインダーの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("期限リマインダーを停止しました")
			return
		case <-ticker.C:
			if err := r.RunOnce(ctx); err != nil {
				r.logger.Error("期限リマインダーの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は通知対象のグラントを1回検出し、リマインダーを送信する。
// 送信に成功したグラントのみ送信済みとして記録する。
func (r *Reminder) RunOnce(ctx context.Context) error {
	now := r.now()

	grants, err := r.grants.ListExpiring(ctx, now, now.Add(r.window))
	if err != nil {
		return err
	}
	if len(grants) == 0 {
		return nil
	}

	sent := 0
	for _, grant := range grants {
		text := fmt.Sprintf("⏰ %sの購読期限が近づいています（%s まで）。延長するには再購入してください。",
			grant.ScopeLabel(), grant.ExpiresAt.Format("2006-01-02 15:04"))
		if err := r.notifier.SendMessage(ctx, grant.AccountID, text); err != nil {
			r.logger.Warn("リマインダーの送信に失敗しました",
				slog.String("grant_id", grant.ID),
				slog.String("account_id", grant.AccountID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if err := r.grants.MarkReminderSent(ctx, grant.ID); err != nil {
			r.logger.Error("リマインダー送信記録に失敗しました",
				slog.String("grant_id", grant.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		sent++
	}

	r.collector.RecordReminderSent(sent)
	r.logger.Info("期限リマインダーサイクルが完了しました",
		slog.Int("sent", sent),
		slog.Int("grant_count", len(grants)),
	)
	return nil
}
