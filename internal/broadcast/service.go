// Package broadcast は全アカウントへの一斉送信を提供する。
package broadcast

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/hitoshi/packgate/internal/repository"
)

// Sender はメッセージ送信のインターフェース。
type Sender interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

// Collector は一斉送信の結果を記録する。
type Collector interface {
	RecordBroadcast(sent, failed int)
}

// Report は一斉送信の結果。
type Report struct {
	Total  int
	Sent   int
	Failed int
}

// Service は一斉送信のサービス層。
// レートリミッターで送信ペースを制御し、個々の送信失敗は他の宛先に影響しない。
type Service struct {
	accountRepo repository.AccountRepository
	sender      Sender
	collector   Collector
	logger      *slog.Logger
	limiter     *rate.Limiter
}

// NewService はServiceの新しいインスタンスを生成する。
// messagesPerSecondは送信レートの上限。
func NewService(
	accountRepo repository.AccountRepository,
	sender Sender,
	collector Collector,
	logger *slog.Logger,
	messagesPerSecond float64,
) *Service {
	return &Service{
		accountRepo: accountRepo,
		sender:      sender,
		collector:   collector,
		logger:      logger,
		limiter:     rate.NewLimiter(rate.Limit(messagesPerSecond), 1),
	}
}

// Broadcast は全アカウントにテキストメッセージを送信する。
// コンテキストのキャンセルで途中終了し、その時点までの結果を返す。
func (s *Service) Broadcast(ctx context.Context, text string) (*Report, error) {
	if text == "" {
		return nil, fmt.Errorf("送信するメッセージは必須です")
	}

	ids, err := s.accountRepo.ListIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("送信先一覧の取得に失敗しました: %w", err)
	}

	report := &Report{Total: len(ids)}
	for _, id := range ids {
		if err := s.limiter.Wait(ctx); err != nil {
			s.logger.Warn("一斉送信が中断されました",
				slog.Int("sent", report.Sent),
				slog.Int("total", report.Total),
			)
			s.collector.RecordBroadcast(report.Sent, report.Failed)
			return report, err
		}

		if err := s.sender.SendMessage(ctx, id, text); err != nil {
			report.Failed++
			s.logger.Warn("一斉送信の宛先への送信に失敗しました",
				slog.String("account_id", id),
				slog.String("error", err.Error()),
			)
			continue
		}
		report.Sent++
	}

	s.collector.RecordBroadcast(report.Sent, report.Failed)
	s.logger.Info("一斉送信が完了しました",
		slog.Int("total", report.Total),
		slog.Int("sent", report.Sent),
		slog.Int("failed", report.Failed),
	)
	return report, nil
}
