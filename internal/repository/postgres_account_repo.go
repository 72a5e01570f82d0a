package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/packgate/internal/model"
)

// PostgresAccountRepo はPostgreSQLを使用したアカウントリポジトリ。
type PostgresAccountRepo struct {
	db *sql.DB
}

// NewPostgresAccountRepo はPostgresAccountRepoを生成する。
func NewPostgresAccountRepo(db *sql.DB) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db}
}

// Upsert はアカウントを冪等に登録する。
// 既存の場合はusernameとlast_activity_atのみ更新する。
func (r *PostgresAccountRepo) Upsert(ctx context.Context, id, username string) (*model.Account, error) {
	account := &model.Account{}
	var globalExpiresAt sql.NullTime

	err := r.db.QueryRowContext(ctx,
		`INSERT INTO accounts (id, username) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET username = EXCLUDED.username, last_activity_at = now()
		 RETURNING id, username, balance, global_expires_at, registered_at, last_activity_at`,
		id, username,
	).Scan(&account.ID, &account.Username, &account.Balance, &globalExpiresAt,
		&account.RegisteredAt, &account.LastActivityAt)
	if err != nil {
		return nil, fmt.Errorf("アカウントの登録に失敗しました: %w", err)
	}
	if globalExpiresAt.Valid {
		account.GlobalExpiresAt = &globalExpiresAt.Time
	}
	return account, nil
}

// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	account := &model.Account{}
	var globalExpiresAt sql.NullTime

	err := r.db.QueryRowContext(ctx,
		`SELECT id, username, balance, global_expires_at, registered_at, last_activity_at
		 FROM accounts WHERE id = $1`,
		id,
	).Scan(&account.ID, &account.Username, &account.Balance, &globalExpiresAt,
		&account.RegisteredAt, &account.LastActivityAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}
	if globalExpiresAt.Valid {
		account.GlobalExpiresAt = &globalExpiresAt.Time
	}
	return account, nil
}

// Touch はlast_activity_atを現在時刻に更新する。存在しないIDは無視する。
func (r *PostgresAccountRepo) Touch(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET last_activity_at = now() WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("活動時刻の更新に失敗しました: %w", err)
	}
	return nil
}

// UpdateGlobalExpiry はグローバル購読期限のミラーを更新する。nilでクリアする。
func (r *PostgresAccountRepo) UpdateGlobalExpiry(ctx context.Context, id string, expiresAt *time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET global_expires_at = $2 WHERE id = $1`,
		id, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("グローバル購読期限の更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// Count は全アカウント数を返す。
func (r *PostgresAccountRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("アカウント数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// CountActiveSince は指定時刻以降に活動したアカウント数を返す。
func (r *PostgresAccountRepo) CountActiveSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM accounts WHERE last_activity_at >= $1`,
		since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("活動アカウント数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// ListIDs は全アカウントIDを返す。一斉送信用。
func (r *PostgresAccountRepo) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM accounts ORDER BY registered_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("アカウントID一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("アカウントIDの読み取りに失敗しました: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("アカウントID一覧の走査に失敗しました: %w", err)
	}
	return ids, nil
}

// compile-time interface check
var _ AccountRepository = (*PostgresAccountRepo)(nil)
