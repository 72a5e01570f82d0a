package sweep

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hitoshi/packgate/internal/model"
)

// --- モック ---

type mockGrantSource struct {
	listExpiredFn func(ctx context.Context, asOf time.Time) ([]*model.Grant, error)
	expireFn      func(ctx context.Context, grant *model.Grant) (bool, error)
	expired       []string
}

func (m *mockGrantSource) ListExpired(ctx context.Context, asOf time.Time) ([]*model.Grant, error) {
	return m.listExpiredFn(ctx, asOf)
}
func (m *mockGrantSource) Expire(ctx context.Context, grant *model.Grant) (bool, error) {
	if m.expireFn != nil {
		return m.expireFn(ctx, grant)
	}
	m.expired = append(m.expired, grant.ID)
	return true, nil
}

type mockNotifier struct {
	sendFn func(ctx context.Context, chatID, text string) error
	sent   []string
}

func (m *mockNotifier) SendMessage(ctx context.Context, chatID, text string) error {
	if m.sendFn != nil {
		if err := m.sendFn(ctx, chatID, text); err != nil {
			return err
		}
	}
	m.sent = append(m.sent, chatID)
	return nil
}

type mockCollector struct {
	revoked   int
	reminders int
}

func (m *mockCollector) RecordSweepRevocation(count int) { m.revoked += count }
func (m *mockCollector) RecordReminderSent(count int)    { m.reminders += count }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func expiredGrant(id string) *model.Grant {
	return &model.Grant{
		ID:        id,
		AccountID: "account-" + id,
		PackName:  "プレミアム",
		Status:    model.GrantStatusActive,
		ExpiresAt: time.Now().Add(-time.Hour),
	}
}

// --- テスト ---

// TestSweeper_RunOnce は期限到達グラントの失効と通知を検証する。
func TestSweeper_RunOnce(t *testing.T) {
	grants := &mockGrantSource{
		listExpiredFn: func(ctx context.Context, asOf time.Time) ([]*model.Grant, error) {
			return []*model.Grant{expiredGrant("g1"), expiredGrant("g2")}, nil
		},
	}
	notifier := &mockNotifier{}
	collector := &mockCollector{}
	sweeper := NewSweeper(grants, notifier, collector, testLogger())

	if err := sweeper.RunOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(grants.expired) != 2 {
		t.Errorf("expired %d grants, want 2", len(grants.expired))
	}
	if len(notifier.sent) != 2 {
		t.Errorf("sent %d notifications, want 2", len(notifier.sent))
	}
	if collector.revoked != 2 {
		t.Errorf("collector.revoked = %d, want 2", collector.revoked)
	}
}

// TestSweeper_RunOnce_NotifyFailureStillExpires は通知失敗でも失効が行われることを検証する。
func TestSweeper_RunOnce_NotifyFailureStillExpires(t *testing.T) {
	grants := &mockGrantSource{
		listExpiredFn: func(ctx context.Context, asOf time.Time) ([]*model.Grant, error) {
			return []*model.Grant{expiredGrant("g1")}, nil
		},
	}
	notifier := &mockNotifier{
		sendFn: func(ctx context.Context, chatID, text string) error {
			return errors.New("blocked by user")
		},
	}
	sweeper := NewSweeper(grants, notifier, &mockCollector{}, testLogger())

	if err := sweeper.RunOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(grants.expired) != 1 {
		t.Error("grant should be expired despite notification failure")
	}
}

// TestSweeper_RunOnce_ItemFailureIsolation は1件の失敗が他のグラントに影響しないことを検証する。
func TestSweeper_RunOnce_ItemFailureIsolation(t *testing.T) {
	expireCalls := 0
	grants := &mockGrantSource{
		listExpiredFn: func(ctx context.Context, asOf time.Time) ([]*model.Grant, error) {
			return []*model.Grant{expiredGrant("g1"), expiredGrant("g2"), expiredGrant("g3")}, nil
		},
		expireFn: func(ctx context.Context, grant *model.Grant) (bool, error) {
			expireCalls++
			if grant.ID == "g2" {
				return false, errors.New("db error")
			}
			return true, nil
		},
	}
	collector := &mockCollector{}
	sweeper := NewSweeper(grants, &mockNotifier{}, collector, testLogger())

	if err := sweeper.RunOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if expireCalls != 3 {
		t.Errorf("expire attempts = %d, want 3", expireCalls)
	}
	if collector.revoked != 2 {
		t.Errorf("collector.revoked = %d, want 2", collector.revoked)
	}
}

// TestSweeper_RunOnce_ExpireFailureSkipsNotification は失効できなかったグラントには
// 通知せず、次回サイクルで失効に成功したときに1回だけ通知されることを検証する。
func TestSweeper_RunOnce_ExpireFailureSkipsNotification(t *testing.T) {
	expireCalls := 0
	grants := &mockGrantSource{
		listExpiredFn: func(ctx context.Context, asOf time.Time) ([]*model.Grant, error) {
			return []*model.Grant{expiredGrant("g1")}, nil
		},
		expireFn: func(ctx context.Context, grant *model.Grant) (bool, error) {
			expireCalls++
			if expireCalls == 1 {
				return false, errors.New("db error")
			}
			return true, nil
		},
	}
	notifier := &mockNotifier{}
	sweeper := NewSweeper(grants, notifier, &mockCollector{}, testLogger())

	// 1回目: 失効が失敗するため通知しない
	if err := sweeper.RunOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(notifier.sent) != 0 {
		t.Errorf("sent %d notifications after failed expire, want 0", len(notifier.sent))
	}

	// 2回目: 失効に成功し、通知が1回だけ送られる
	if err := sweeper.RunOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(notifier.sent) != 1 {
		t.Errorf("sent %d notifications in total, want 1", len(notifier.sent))
	}
	if notifier.sent[0] != "account-g1" {
		t.Errorf("notified %q, want %q", notifier.sent[0], "account-g1")
	}
}

// TestSweeper_RunOnce_AlreadyTerminalSkipsNotification は既に終了状態のグラントに
// 通知が送られないことを検証する。
func TestSweeper_RunOnce_AlreadyTerminalSkipsNotification(t *testing.T) {
	grants := &mockGrantSource{
		listExpiredFn: func(ctx context.Context, asOf time.Time) ([]*model.Grant, error) {
			return []*model.Grant{expiredGrant("g1")}, nil
		},
		expireFn: func(ctx context.Context, grant *model.Grant) (bool, error) {
			return false, nil
		},
	}
	notifier := &mockNotifier{}
	collector := &mockCollector{}
	sweeper := NewSweeper(grants, notifier, collector, testLogger())

	if err := sweeper.RunOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(notifier.sent) != 0 {
		t.Error("no notification expected for already-terminal grant")
	}
	if collector.revoked != 0 {
		t.Errorf("collector.revoked = %d, want 0", collector.revoked)
	}
}

// TestSweeper_RunOnce_Empty は対象なしの場合に何も起きないことを検証する。
func TestSweeper_RunOnce_Empty(t *testing.T) {
	grants := &mockGrantSource{
		listExpiredFn: func(ctx context.Context, asOf time.Time) ([]*model.Grant, error) {
			return nil, nil
		},
	}
	notifier := &mockNotifier{}
	sweeper := NewSweeper(grants, notifier, &mockCollector{}, testLogger())

	if err := sweeper.RunOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(notifier.sent) != 0 {
		t.Error("no notifications expected")
	}
}
