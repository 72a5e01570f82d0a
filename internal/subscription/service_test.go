package subscription

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/packgate/internal/model"
	"github.com/hitoshi/packgate/internal/repository"
)

// --- モック ---

type mockGrantRepo struct {
	createFn            func(ctx context.Context, grant *model.Grant) error
	findByIDFn          func(ctx context.Context, id string) (*model.Grant, error)
	findActiveByScopeFn func(ctx context.Context, accountID string, packID *string) (*model.Grant, error)
	updateExpiryFn      func(ctx context.Context, id string, expiresAt time.Time) error
	terminateFn         func(ctx context.Context, id string, status model.GrantStatus) (bool, error)
	existsGlobalFn      func(ctx context.Context, accountID string, asOf time.Time) (bool, error)
	existsChannelFn     func(ctx context.Context, accountID, channelID string, asOf time.Time) (bool, error)
}

func (m *mockGrantRepo) Create(ctx context.Context, grant *model.Grant) error {
	if m.createFn != nil {
		return m.createFn(ctx, grant)
	}
	return nil
}
func (m *mockGrantRepo) FindByID(ctx context.Context, id string) (*model.Grant, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (m *mockGrantRepo) FindActiveByScope(ctx context.Context, accountID string, packID *string) (*model.Grant, error) {
	if m.findActiveByScopeFn != nil {
		return m.findActiveByScopeFn(ctx, accountID, packID)
	}
	return nil, nil
}
func (m *mockGrantRepo) ListActiveByAccount(ctx context.Context, accountID string) ([]*model.Grant, error) {
	return nil, nil
}
func (m *mockGrantRepo) ListExpired(ctx context.Context, asOf time.Time) ([]*model.Grant, error) {
	return nil, nil
}
func (m *mockGrantRepo) ListExpiring(ctx context.Context, from, until time.Time) ([]*model.Grant, error) {
	return nil, nil
}
func (m *mockGrantRepo) UpdateExpiry(ctx context.Context, id string, expiresAt time.Time) error {
	if m.updateExpiryFn != nil {
		return m.updateExpiryFn(ctx, id, expiresAt)
	}
	return nil
}
func (m *mockGrantRepo) MarkReminderSent(ctx context.Context, id string, at time.Time) error {
	return nil
}
func (m *mockGrantRepo) Terminate(ctx context.Context, id string, status model.GrantStatus) (bool, error) {
	if m.terminateFn != nil {
		return m.terminateFn(ctx, id, status)
	}
	return true, nil
}
func (m *mockGrantRepo) ExistsActiveForChannel(ctx context.Context, accountID, channelID string, asOf time.Time) (bool, error) {
	if m.existsChannelFn != nil {
		return m.existsChannelFn(ctx, accountID, channelID, asOf)
	}
	return false, nil
}
func (m *mockGrantRepo) ExistsActiveGlobal(ctx context.Context, accountID string, asOf time.Time) (bool, error) {
	if m.existsGlobalFn != nil {
		return m.existsGlobalFn(ctx, accountID, asOf)
	}
	return false, nil
}

type mockAccountRepo struct {
	updateGlobalExpiryFn func(ctx context.Context, id string, expiresAt *time.Time) error
}

func (m *mockAccountRepo) Upsert(ctx context.Context, id, username string) (*model.Account, error) {
	return nil, nil
}
func (m *mockAccountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	return nil, nil
}
func (m *mockAccountRepo) Touch(ctx context.Context, id string) error { return nil }
func (m *mockAccountRepo) UpdateGlobalExpiry(ctx context.Context, id string, expiresAt *time.Time) error {
	if m.updateGlobalExpiryFn != nil {
		return m.updateGlobalExpiryFn(ctx, id, expiresAt)
	}
	return nil
}
func (m *mockAccountRepo) Count(ctx context.Context) (int, error) { return 0, nil }
func (m *mockAccountRepo) CountActiveSince(ctx context.Context, since time.Time) (int, error) {
	return 0, nil
}
func (m *mockAccountRepo) ListIDs(ctx context.Context) ([]string, error) { return nil, nil }

func newTestService(grantRepo *mockGrantRepo, accountRepo *mockAccountRepo, now time.Time) *Service {
	svc := NewService(grantRepo, accountRepo)
	svc.now = func() time.Time { return now }
	return svc
}

// --- テスト ---

// TestService_CreateGrant はパックグラント作成時の期限計算を検証する。
func TestService_CreateGrant(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	var created *model.Grant
	grantRepo := &mockGrantRepo{
		createFn: func(ctx context.Context, grant *model.Grant) error {
			created = grant
			return nil
		},
	}
	svc := newTestService(grantRepo, &mockAccountRepo{}, now)

	packID := "pack-1"
	grant, err := svc.CreateGrant(context.Background(), GrantInput{
		AccountID: "account-1",
		PackID:    &packID,
		PackName:  "プレミアム",
		ChannelID: "-100123",
		Duration:  model.Duration30Days,
		PricePaid: 50000,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created == nil {
		t.Fatal("grant was not persisted")
	}
	wantExpiry := now.AddDate(0, 0, 30)
	if !grant.ExpiresAt.Equal(wantExpiry) {
		t.Errorf("ExpiresAt = %v, want %v", grant.ExpiresAt, wantExpiry)
	}
	if grant.Status != model.GrantStatusActive {
		t.Errorf("Status = %q, want active", grant.Status)
	}
}

// TestService_CreateGrant_GlobalMirror はグローバルグラント作成で期限ミラーが更新されることを検証する。
func TestService_CreateGrant_GlobalMirror(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	var mirrored *time.Time
	accountRepo := &mockAccountRepo{
		updateGlobalExpiryFn: func(ctx context.Context, id string, expiresAt *time.Time) error {
			mirrored = expiresAt
			return nil
		},
	}
	svc := newTestService(&mockGrantRepo{}, accountRepo, now)

	grant, err := svc.CreateGrant(context.Background(), GrantInput{
		AccountID: "account-1",
		Duration:  model.DurationForever,
		PricePaid: 500000,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !grant.IsGlobal() {
		t.Fatal("grant without pack should be global")
	}
	if mirrored == nil {
		t.Fatal("global expiry mirror was not updated")
	}
	if !mirrored.Equal(model.ForeverExpiry) {
		t.Errorf("mirror = %v, want forever sentinel", *mirrored)
	}
}

// TestService_CreateGrant_MirrorFailureDoesNotFail は確定済みグラントがミラー更新の
// 失敗で失われないことを検証する。ミラーは表示用であり、ここでエラーを返すと
// 購入フローの補償処理が有効なグラントを残したまま返金してしまう。
func TestService_CreateGrant_MirrorFailureDoesNotFail(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	var created *model.Grant
	grantRepo := &mockGrantRepo{
		createFn: func(ctx context.Context, grant *model.Grant) error {
			created = grant
			return nil
		},
	}
	accountRepo := &mockAccountRepo{
		updateGlobalExpiryFn: func(ctx context.Context, id string, expiresAt *time.Time) error {
			return errors.New("db error")
		},
	}
	svc := newTestService(grantRepo, accountRepo, now)

	grant, err := svc.CreateGrant(context.Background(), GrantInput{
		AccountID: "account-1",
		Duration:  model.DurationForever,
		PricePaid: 500000,
	})
	if err != nil {
		t.Fatalf("mirror failure should not fail grant creation: %v", err)
	}
	if grant == nil || created == nil {
		t.Fatal("grant should be created and returned")
	}
	if grant.Status != model.GrantStatusActive {
		t.Errorf("Status = %q, want %q", grant.Status, model.GrantStatusActive)
	}
}

// TestService_CreateGrant_Duplicate は重複グラントのエラーが透過されることを検証する。
func TestService_CreateGrant_Duplicate(t *testing.T) {
	grantRepo := &mockGrantRepo{
		createFn: func(ctx context.Context, grant *model.Grant) error {
			return repository.ErrDuplicateActiveGrant
		},
	}
	svc := newTestService(grantRepo, &mockAccountRepo{}, time.Now())

	packID := "pack-1"
	_, err := svc.CreateGrant(context.Background(), GrantInput{
		AccountID: "account-1",
		PackID:    &packID,
		Duration:  model.Duration5Days,
	})
	if !errors.Is(err, repository.ErrDuplicateActiveGrant) {
		t.Errorf("expected ErrDuplicateActiveGrant, got %v", err)
	}
}

// TestService_ExtendActive は期限の延長が現在の期限を起点とすることを検証する。
func TestService_ExtendActive(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	currentExpiry := now.AddDate(0, 0, 10)
	packID := "pack-1"
	var updatedExpiry time.Time
	grantRepo := &mockGrantRepo{
		findActiveByScopeFn: func(ctx context.Context, accountID string, pid *string) (*model.Grant, error) {
			return &model.Grant{
				ID:        "grant-1",
				AccountID: accountID,
				PackID:    pid,
				Duration:  model.Duration10Days,
				Status:    model.GrantStatusActive,
				ExpiresAt: currentExpiry,
			}, nil
		},
		updateExpiryFn: func(ctx context.Context, id string, expiresAt time.Time) error {
			updatedExpiry = expiresAt
			return nil
		},
	}
	svc := newTestService(grantRepo, &mockAccountRepo{}, now)

	grant, err := svc.ExtendActive(context.Background(), "account-1", &packID, model.Duration30Days, 50000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := currentExpiry.AddDate(0, 0, 30)
	if !grant.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", grant.ExpiresAt, want)
	}
	if !updatedExpiry.Equal(want) {
		t.Errorf("persisted expiry = %v, want %v", updatedExpiry, want)
	}
}

// TestService_ExtendActive_ForeverAbsorbs は無期限グラントの延長が無期限のままであることを検証する。
func TestService_ExtendActive_ForeverAbsorbs(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	grantRepo := &mockGrantRepo{
		findActiveByScopeFn: func(ctx context.Context, accountID string, pid *string) (*model.Grant, error) {
			return &model.Grant{
				ID:        "grant-1",
				AccountID: accountID,
				Duration:  model.DurationForever,
				Status:    model.GrantStatusActive,
				ExpiresAt: model.ForeverExpiry,
			}, nil
		},
	}
	svc := newTestService(grantRepo, &mockAccountRepo{}, now)

	grant, err := svc.ExtendActive(context.Background(), "account-1", nil, model.Duration5Days, 10000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !grant.ExpiresAt.Equal(model.ForeverExpiry) {
		t.Errorf("ExpiresAt = %v, want forever sentinel", grant.ExpiresAt)
	}
}

// TestService_ExtendActive_NotFound は有効グラント不在がドメインエラーになることを検証する。
func TestService_ExtendActive_NotFound(t *testing.T) {
	svc := newTestService(&mockGrantRepo{}, &mockAccountRepo{}, time.Now())

	_, err := svc.ExtendActive(context.Background(), "account-1", nil, model.Duration5Days, 10000)
	apiErr, ok := err.(*model.APIError)
	if !ok {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.Code != model.ErrCodeGrantNotFound {
		t.Errorf("code = %q, want %q", apiErr.Code, model.ErrCodeGrantNotFound)
	}
}

// TestService_Revoke は取り消しでグローバル期限ミラーが消去されることを検証する。
func TestService_Revoke(t *testing.T) {
	var mirrorCleared bool
	grantRepo := &mockGrantRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Grant, error) {
			return &model.Grant{
				ID:        id,
				AccountID: "account-1",
				Status:    model.GrantStatusActive,
				ExpiresAt: model.ForeverExpiry,
			}, nil
		},
	}
	accountRepo := &mockAccountRepo{
		updateGlobalExpiryFn: func(ctx context.Context, id string, expiresAt *time.Time) error {
			if expiresAt == nil {
				mirrorCleared = true
			}
			return nil
		},
	}
	svc := newTestService(grantRepo, accountRepo, time.Now())

	grant, err := svc.Revoke(context.Background(), "grant-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if grant.Status != model.GrantStatusRevoked {
		t.Errorf("Status = %q, want revoked", grant.Status)
	}
	if !mirrorCleared {
		t.Error("global expiry mirror should be cleared")
	}
}

// TestService_Revoke_Terminal は終端状態のグラント取り消しが何もしないことを検証する。
func TestService_Revoke_Terminal(t *testing.T) {
	terminateCalled := false
	grantRepo := &mockGrantRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Grant, error) {
			return &model.Grant{ID: id, Status: model.GrantStatusExpired}, nil
		},
		terminateFn: func(ctx context.Context, id string, status model.GrantStatus) (bool, error) {
			terminateCalled = true
			return false, nil
		},
	}
	svc := newTestService(grantRepo, &mockAccountRepo{}, time.Now())

	grant, err := svc.Revoke(context.Background(), "grant-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if grant.Status != model.GrantStatusExpired {
		t.Errorf("Status = %q, should remain expired", grant.Status)
	}
	if terminateCalled {
		t.Error("terminal grant should not reach repository")
	}
}

// TestService_IsEntitled はグローバルとチャンネル単位の権限判定を検証する。
func TestService_IsEntitled(t *testing.T) {
	cases := []struct {
		name    string
		global  bool
		channel bool
		want    bool
	}{
		{"グローバル購読あり", true, false, true},
		{"チャンネル購読あり", false, true, true},
		{"購読なし", false, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			grantRepo := &mockGrantRepo{
				existsGlobalFn: func(ctx context.Context, accountID string, asOf time.Time) (bool, error) {
					return tc.global, nil
				},
				existsChannelFn: func(ctx context.Context, accountID, channelID string, asOf time.Time) (bool, error) {
					return tc.channel, nil
				},
			}
			svc := newTestService(grantRepo, &mockAccountRepo{}, time.Now())

			got, err := svc.IsEntitled(context.Background(), "account-1", "-100123")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("IsEntitled = %v, want %v", got, tc.want)
			}
		})
	}
}
