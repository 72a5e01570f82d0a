package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/packgate/internal/model"
)

// PostgresPlanRepo はPostgreSQLを使用したグローバル購読設定リポジトリ。
// global_planテーブルの単一行（id = 1）を管理する。
type PostgresPlanRepo struct {
	db *sql.DB
}

// NewPostgresPlanRepo はPostgresPlanRepoを生成する。
func NewPostgresPlanRepo(db *sql.DB) *PostgresPlanRepo {
	return &PostgresPlanRepo{db: db}
}

// Get はグローバル購読設定を取得する。未設定の場合はnilを返す。
func (r *PostgresPlanRepo) Get(ctx context.Context) (*model.GlobalPlan, error) {
	plan := &model.GlobalPlan{}
	var pricesJSON []byte

	err := r.db.QueryRowContext(ctx,
		`SELECT description, prices, updated_at FROM global_plan WHERE id = 1`,
	).Scan(&plan.Description, &pricesJSON, &plan.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("グローバル購読設定の取得に失敗しました: %w", err)
	}
	if err := json.Unmarshal(pricesJSON, &plan.Prices); err != nil {
		return nil, fmt.Errorf("価格表のデコードに失敗しました: %w", err)
	}
	return plan, nil
}

// Put はグローバル購読設定を作成または上書きする。
func (r *PostgresPlanRepo) Put(ctx context.Context, plan *model.GlobalPlan) error {
	pricesJSON, err := json.Marshal(plan.Prices)
	if err != nil {
		return fmt.Errorf("価格表のエンコードに失敗しました: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO global_plan (id, description, prices, updated_at)
		 VALUES (1, $1, $2, NOW())
		 ON CONFLICT (id) DO UPDATE SET description = EXCLUDED.description,
		 prices = EXCLUDED.prices, updated_at = NOW()`,
		plan.Description, pricesJSON,
	)
	if err != nil {
		return fmt.Errorf("グローバル購読設定の保存に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ PlanRepository = (*PostgresPlanRepo)(nil)
