package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/packgate/internal/model"
)

// PostgresTransactionRepo はPostgreSQLを使用した取引台帳リポジトリ。
type PostgresTransactionRepo struct {
	db *sql.DB
}

// NewPostgresTransactionRepo はPostgresTransactionRepoを生成する。
func NewPostgresTransactionRepo(db *sql.DB) *PostgresTransactionRepo {
	return &PostgresTransactionRepo{db: db}
}

// ApplyDelta は残高の条件付き更新と取引記録の追加を単一トランザクションで行う。
// UPDATEの行ロックにより、同一アカウントへの同時変更は直列化される。
// 条件 balance + $2 >= 0 により、残高不足の取引はコミットされない。
func (r *PostgresTransactionRepo) ApplyDelta(ctx context.Context, accountID string, kind model.TransactionKind, amount int64, memo string) (string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE accounts SET balance = balance + $2 WHERE id = $1 AND balance + $2 >= 0`,
		accountID, amount,
	)
	if err != nil {
		return "", fmt.Errorf("残高の更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		// 更新失敗の原因を区別する。アカウント不在か残高不足か。
		var exists bool
		err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM accounts WHERE id = $1)`, accountID,
		).Scan(&exists)
		if err != nil {
			return "", fmt.Errorf("アカウントの確認に失敗しました: %w", err)
		}
		if !exists {
			return "", ErrAccountNotFound
		}
		return "", ErrInsufficientBalance
	}

	transactionID := uuid.NewString()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO transactions (id, account_id, kind, amount, memo, created_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())`,
		transactionID, accountID, kind, amount, memo,
	)
	if err != nil {
		return "", fmt.Errorf("取引記録の追加に失敗しました: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return transactionID, nil
}

// ListByAccount はアカウントの取引履歴を新しい順に最大limit件返す。
func (r *PostgresTransactionRepo) ListByAccount(ctx context.Context, accountID string, limit int) ([]*model.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, account_id, kind, amount, memo, created_at FROM transactions
		 WHERE account_id = $1 ORDER BY created_at DESC LIMIT $2`,
		accountID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("取引履歴の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var transactions []*model.Transaction
	for rows.Next() {
		t := &model.Transaction{}
		err := rows.Scan(&t.ID, &t.AccountID, &t.Kind, &t.Amount, &t.Memo, &t.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("取引行の読み取りに失敗しました: %w", err)
		}
		transactions = append(transactions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("取引履歴の走査に失敗しました: %w", err)
	}
	return transactions, nil
}

// SumByAccount はアカウントの取引金額の合計を返す。
func (r *PostgresTransactionRepo) SumByAccount(ctx context.Context, accountID string) (int64, error) {
	var sum int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM transactions WHERE account_id = $1`,
		accountID,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("取引合計の集計に失敗しました: %w", err)
	}
	return sum, nil
}

// PurchaseStatsSince は指定時刻以降の購入取引の件数と売上を返す。
// 購入の金額は負で記録されるため、売上は符号を反転して集計する。
func (r *PostgresTransactionRepo) PurchaseStatsSince(ctx context.Context, since *time.Time) (PurchaseStats, error) {
	var stats PurchaseStats
	var err error
	if since == nil {
		err = r.db.QueryRowContext(ctx,
			`SELECT COUNT(*), COALESCE(SUM(-amount), 0) FROM transactions
			 WHERE kind = 'purchase'`,
		).Scan(&stats.Count, &stats.Revenue)
	} else {
		err = r.db.QueryRowContext(ctx,
			`SELECT COUNT(*), COALESCE(SUM(-amount), 0) FROM transactions
			 WHERE kind = 'purchase' AND created_at >= $1`,
			*since,
		).Scan(&stats.Count, &stats.Revenue)
	}
	if err != nil {
		return PurchaseStats{}, fmt.Errorf("購入統計の集計に失敗しました: %w", err)
	}
	return stats, nil
}

// DetailedPurchaseStats は指定時刻以降の売上詳細を返す。
func (r *PostgresTransactionRepo) DetailedPurchaseStats(ctx context.Context, since time.Time) (DetailedStats, error) {
	var stats DetailedStats
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(-amount), 0),
		 COALESCE(AVG(-amount), 0)::BIGINT, COUNT(DISTINCT account_id)
		 FROM transactions WHERE kind = 'purchase' AND created_at >= $1`,
		since,
	).Scan(&stats.Sales, &stats.Revenue, &stats.AverageSale, &stats.UniqueBuyers)
	if err != nil {
		return DetailedStats{}, fmt.Errorf("売上詳細の集計に失敗しました: %w", err)
	}
	return stats, nil
}

// TopBuyers は指定時刻以降の購入額上位アカウントを返す。
func (r *PostgresTransactionRepo) TopBuyers(ctx context.Context, since time.Time, limit int) ([]TopBuyer, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT t.account_id, a.username, SUM(-t.amount) AS total_spent
		 FROM transactions t
		 JOIN accounts a ON a.id = t.account_id
		 WHERE t.kind = 'purchase' AND t.created_at >= $1
		 GROUP BY t.account_id, a.username
		 ORDER BY total_spent DESC LIMIT $2`,
		since, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("購入上位の集計に失敗しました: %w", err)
	}
	defer rows.Close()

	var buyers []TopBuyer
	for rows.Next() {
		var b TopBuyer
		if err := rows.Scan(&b.AccountID, &b.Username, &b.TotalSpent); err != nil {
			return nil, fmt.Errorf("購入上位行の読み取りに失敗しました: %w", err)
		}
		buyers = append(buyers, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("購入上位の走査に失敗しました: %w", err)
	}
	return buyers, nil
}

// compile-time interface check
var _ TransactionRepository = (*PostgresTransactionRepo)(nil)
