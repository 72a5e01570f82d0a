package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/packgate/internal/model"
)

// activeGrantConstraint は同一スコープ有効グラントの部分一意インデックス名。
const activeGrantConstraint = "grants_active_scope_uniq"

// PostgresGrantRepo はPostgreSQLを使用したグラントリポジトリ。
type PostgresGrantRepo struct {
	db *sql.DB
}

// NewPostgresGrantRepo はPostgresGrantRepoを生成する。
func NewPostgresGrantRepo(db *sql.DB) *PostgresGrantRepo {
	return &PostgresGrantRepo{db: db}
}

const grantColumns = `id, account_id, pack_id, pack_name, channel_id, duration_key,
	price_paid, status, purchased_at, expires_at, reminder_sent_at`

// scanGrant は1行をmodel.Grantに変換する。
func scanGrant(s interface{ Scan(...any) error }) (*model.Grant, error) {
	grant := &model.Grant{}
	var packID sql.NullString
	var reminderSentAt sql.NullTime

	err := s.Scan(&grant.ID, &grant.AccountID, &packID, &grant.PackName, &grant.ChannelID,
		&grant.Duration, &grant.PricePaid, &grant.Status, &grant.PurchasedAt,
		&grant.ExpiresAt, &reminderSentAt)
	if err != nil {
		return nil, err
	}
	if packID.Valid {
		grant.PackID = &packID.String
	}
	if reminderSentAt.Valid {
		grant.ReminderSentAt = &reminderSentAt.Time
	}
	return grant, nil
}

// Create はグラントを作成する。
// 部分一意インデックス違反はErrDuplicateActiveGrantに変換する。
// 同時購入の競合はこの一意制約で直列化される。
func (r *PostgresGrantRepo) Create(ctx context.Context, grant *model.Grant) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO grants (id, account_id, pack_id, pack_name, channel_id, duration_key,
		 price_paid, status, purchased_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		grant.ID, grant.AccountID, grant.PackID, grant.PackName, grant.ChannelID,
		grant.Duration, grant.PricePaid, grant.Status, grant.PurchasedAt, grant.ExpiresAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" &&
			pqErr.Constraint == activeGrantConstraint {
			return ErrDuplicateActiveGrant
		}
		return fmt.Errorf("グラントの作成に失敗しました: %w", err)
	}
	return nil
}

// FindByID は指定IDのグラントを取得する。見つからない場合はnilを返す。
func (r *PostgresGrantRepo) FindByID(ctx context.Context, id string) (*model.Grant, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+grantColumns+` FROM grants WHERE id = $1`, id)

	grant, err := scanGrant(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("グラントの取得に失敗しました: %w", err)
	}
	return grant, nil
}

// FindActiveByScope は(account, scope)の有効グラントを取得する。見つからない場合はnilを返す。
func (r *PostgresGrantRepo) FindActiveByScope(ctx context.Context, accountID string, packID *string) (*model.Grant, error) {
	var row *sql.Row
	if packID == nil {
		row = r.db.QueryRowContext(ctx,
			`SELECT `+grantColumns+` FROM grants
			 WHERE account_id = $1 AND pack_id IS NULL AND status = 'active'`,
			accountID)
	} else {
		row = r.db.QueryRowContext(ctx,
			`SELECT `+grantColumns+` FROM grants
			 WHERE account_id = $1 AND pack_id = $2 AND status = 'active'`,
			accountID, *packID)
	}

	grant, err := scanGrant(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("有効グラントの検索に失敗しました: %w", err)
	}
	return grant, nil
}

// ListActiveByAccount はアカウントの有効グラント一覧を購入日時昇順で返す。
func (r *PostgresGrantRepo) ListActiveByAccount(ctx context.Context, accountID string) ([]*model.Grant, error) {
	return r.list(ctx,
		`SELECT `+grantColumns+` FROM grants
		 WHERE account_id = $1 AND status = 'active' ORDER BY purchased_at ASC`,
		accountID)
}

// ListExpired は有効かつ期限がasOf以前のグラントを全件返す。
func (r *PostgresGrantRepo) ListExpired(ctx context.Context, asOf time.Time) ([]*model.Grant, error) {
	return r.list(ctx,
		`SELECT `+grantColumns+` FROM grants
		 WHERE status = 'active' AND expires_at <= $1 ORDER BY expires_at ASC`,
		asOf)
}

// ListExpiring は有効かつ期限が(from, until]に入り、リマインダー未送信のグラントを返す。
func (r *PostgresGrantRepo) ListExpiring(ctx context.Context, from, until time.Time) ([]*model.Grant, error) {
	return r.list(ctx,
		`SELECT `+grantColumns+` FROM grants
		 WHERE status = 'active' AND expires_at > $1 AND expires_at <= $2
		 AND reminder_sent_at IS NULL ORDER BY expires_at ASC`,
		from, until)
}

func (r *PostgresGrantRepo) list(ctx context.Context, query string, args ...any) ([]*model.Grant, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("グラント一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var grants []*model.Grant
	for rows.Next() {
		grant, err := scanGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("グラント行の読み取りに失敗しました: %w", err)
		}
		grants = append(grants, grant)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("グラント一覧の走査に失敗しました: %w", err)
	}
	return grants, nil
}

// UpdateExpiry は有効グラントの期限を更新する。
func (r *PostgresGrantRepo) UpdateExpiry(ctx context.Context, id string, expiresAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE grants SET expires_at = $2 WHERE id = $1 AND status = 'active'`,
		id, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("グラント期限の更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("有効グラントが見つかりません: %s", id)
	}
	return nil
}

// MarkReminderSent はリマインダー送信時刻を記録する。
func (r *PostgresGrantRepo) MarkReminderSent(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE grants SET reminder_sent_at = $2 WHERE id = $1`,
		id, at,
	)
	if err != nil {
		return fmt.Errorf("リマインダー送信時刻の記録に失敗しました: %w", err)
	}
	return nil
}

// Terminate はグラントをactiveから指定の終端状態へ遷移させる。
// WHERE句でactiveに限定することで、終端状態からの逆遷移と二重遷移を防ぐ（冪等）。
func (r *PostgresGrantRepo) Terminate(ctx context.Context, id string, status model.GrantStatus) (bool, error) {
	if !status.IsTerminal() {
		return false, fmt.Errorf("終端状態ではありません: %s", status)
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE grants SET status = $2 WHERE id = $1 AND status = 'active'`,
		id, status,
	)
	if err != nil {
		return false, fmt.Errorf("グラントの終了処理に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	return rowsAffected > 0, nil
}

// ExistsActiveForChannel は指定チャンネルを対象とするパックの有効グラントがあるかを返す。
func (r *PostgresGrantRepo) ExistsActiveForChannel(ctx context.Context, accountID, channelID string, asOf time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(
		   SELECT 1 FROM grants
		   WHERE account_id = $1 AND channel_id = $2 AND pack_id IS NOT NULL
		   AND status = 'active' AND expires_at > $3)`,
		accountID, channelID, asOf,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("チャンネル権限の確認に失敗しました: %w", err)
	}
	return exists, nil
}

// ExistsActiveGlobal はグローバルスコープの有効グラントがあるかを返す。
func (r *PostgresGrantRepo) ExistsActiveGlobal(ctx context.Context, accountID string, asOf time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(
		   SELECT 1 FROM grants
		   WHERE account_id = $1 AND pack_id IS NULL
		   AND status = 'active' AND expires_at > $2)`,
		accountID, asOf,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("グローバル権限の確認に失敗しました: %w", err)
	}
	return exists, nil
}

// compile-time interface check
var _ GrantRepository = (*PostgresGrantRepo)(nil)
