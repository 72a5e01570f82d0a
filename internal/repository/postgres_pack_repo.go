package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/packgate/internal/model"
)

// PostgresPackRepo はPostgreSQLを使用したパックリポジトリ。
type PostgresPackRepo struct {
	db *sql.DB
}

// NewPostgresPackRepo はPostgresPackRepoを生成する。
func NewPostgresPackRepo(db *sql.DB) *PostgresPackRepo {
	return &PostgresPackRepo{db: db}
}

const packColumns = `id, name, description, prices, channel_id, is_active, created_at, updated_at`

// scanPack は1行をmodel.Packに変換する。価格表のJSONBもデコードする。
func scanPack(s interface{ Scan(...any) error }) (*model.Pack, error) {
	pack := &model.Pack{}
	var pricesJSON []byte

	err := s.Scan(&pack.ID, &pack.Name, &pack.Description, &pricesJSON,
		&pack.ChannelID, &pack.IsActive, &pack.CreatedAt, &pack.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(pricesJSON, &pack.Prices); err != nil {
		return nil, fmt.Errorf("価格表のデコードに失敗しました: %w", err)
	}
	return pack, nil
}

// FindByID は指定IDのパックを取得する。見つからない場合はnilを返す。
func (r *PostgresPackRepo) FindByID(ctx context.Context, id string) (*model.Pack, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+packColumns+` FROM packs WHERE id = $1`, id)

	pack, err := scanPack(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("パックの取得に失敗しました: %w", err)
	}
	return pack, nil
}

// ListActive は販売中のパック一覧を作成日時昇順で返す。
func (r *PostgresPackRepo) ListActive(ctx context.Context) ([]*model.Pack, error) {
	return r.list(ctx,
		`SELECT `+packColumns+` FROM packs WHERE is_active = TRUE ORDER BY created_at ASC`)
}

// List は全パック一覧を返す。管理画面用。
func (r *PostgresPackRepo) List(ctx context.Context) ([]*model.Pack, error) {
	return r.list(ctx,
		`SELECT `+packColumns+` FROM packs ORDER BY created_at ASC`)
}

func (r *PostgresPackRepo) list(ctx context.Context, query string) ([]*model.Pack, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("パック一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var packs []*model.Pack
	for rows.Next() {
		pack, err := scanPack(rows)
		if err != nil {
			return nil, fmt.Errorf("パック行の読み取りに失敗しました: %w", err)
		}
		packs = append(packs, pack)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("パック一覧の走査に失敗しました: %w", err)
	}
	return packs, nil
}

// Create はパックを作成する。
func (r *PostgresPackRepo) Create(ctx context.Context, pack *model.Pack) error {
	pricesJSON, err := json.Marshal(pack.Prices)
	if err != nil {
		return fmt.Errorf("価格表のエンコードに失敗しました: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO packs (id, name, description, prices, channel_id, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		pack.ID, pack.Name, pack.Description, pricesJSON, pack.ChannelID,
		pack.IsActive, pack.CreatedAt, pack.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("パックの作成に失敗しました: %w", err)
	}
	return nil
}

// Update はパックの名前・説明・価格表・チャンネル・販売状態を更新する。
func (r *PostgresPackRepo) Update(ctx context.Context, pack *model.Pack) error {
	pricesJSON, err := json.Marshal(pack.Prices)
	if err != nil {
		return fmt.Errorf("価格表のエンコードに失敗しました: %w", err)
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE packs SET name = $2, description = $3, prices = $4, channel_id = $5,
		 is_active = $6, updated_at = NOW() WHERE id = $1`,
		pack.ID, pack.Name, pack.Description, pricesJSON, pack.ChannelID, pack.IsActive,
	)
	if err != nil {
		return fmt.Errorf("パックの更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("パックが見つかりません: %s", pack.ID)
	}
	return nil
}

// Delete は指定IDのパックを削除する。販売済みグラントには影響しない。
func (r *PostgresPackRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM packs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("パックの削除に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("削除結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("パックが見つかりません: %s", id)
	}
	return nil
}

// compile-time interface check
var _ PackRepository = (*PostgresPackRepo)(nil)
