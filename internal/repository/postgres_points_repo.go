package repository

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/hitoshi/newsroom/internal/model"
)

// psql はPostgreSQL用のプレースホルダ（$1, $2...）を使うクエリビルダー。
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresPointsRepo はPostgreSQLを使用したポイントリポジトリ。
type PostgresPointsRepo struct {
	db *sql.DB
}

// NewPostgresPointsRepo はPostgresPointsRepoを生成する。
func NewPostgresPointsRepo(db *sql.DB) *PostgresPointsRepo {
	return &PostgresPointsRepo{db: db}
}

// GetAccount は指定ユーザーのアカウントを取得する。見つからない場合はnilを返す。
func (r *PostgresPointsRepo) GetAccount(ctx context.Context, userID string) (*model.PointsAccount, error) {
	account := &model.PointsAccount{}
	var lastConversionAt, dailyConvertedOn sql.NullTime

	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, version, balance, total_earned, total_spent, total_converted,
		        last_conversion_at, daily_converted_points, daily_converted_on, updated_at
		 FROM points_accounts WHERE user_id = $1`,
		userID,
	).Scan(
		&account.UserID, &account.Version, &account.Balance,
		&account.TotalEarned, &account.TotalSpent, &account.TotalConverted,
		&lastConversionAt, &account.DailyConvertedPoints, &dailyConvertedOn,
		&account.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ポイントアカウントの取得に失敗しました: %w", err)
	}

	account.LastConversionAt = nullTimePtr(lastConversionAt)
	account.DailyConvertedOn = nullTimePtr(dailyConvertedOn)

	return account, nil
}

// SaveWithTransaction はアカウントの保存と取引ログの追記を同一トランザクションで行う。
// Versionが0の場合は新規作成、それ以外は保存済みVersionとの一致を条件に更新する。
// いずれかが失敗した場合はロールバックし、account.Versionは変更しない。
func (r *PostgresPointsRepo) SaveWithTransaction(ctx context.Context, account *model.PointsAccount, ptx *model.PointsTransaction) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	if err := putAccount(ctx, tx, account); err != nil {
		return err
	}
	if err := appendTransaction(ctx, tx, ptx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}

	account.Version++
	return nil
}

// putAccount はバージョン条件付きでアカウントをINSERTまたはUPDATEする。
func putAccount(ctx context.Context, tx *sql.Tx, account *model.PointsAccount) error {
	var (
		result sql.Result
		err    error
	)

	if account.Version == 0 {
		result, err = tx.ExecContext(ctx,
			`INSERT INTO points_accounts (user_id, version, balance, total_earned, total_spent,
			                              total_converted, last_conversion_at, daily_converted_points,
			                              daily_converted_on, updated_at)
			 VALUES ($1, 1, $2, $3, $4, $5, $6, $7, $8, $9)
			 ON CONFLICT (user_id) DO NOTHING`,
			account.UserID, account.Balance, account.TotalEarned, account.TotalSpent,
			account.TotalConverted, nullTime(account.LastConversionAt),
			account.DailyConvertedPoints, nullTime(account.DailyConvertedOn),
			account.UpdatedAt,
		)
	} else {
		result, err = tx.ExecContext(ctx,
			`UPDATE points_accounts SET
			    version = version + 1,
			    balance = $3, total_earned = $4, total_spent = $5, total_converted = $6,
			    last_conversion_at = $7, daily_converted_points = $8,
			    daily_converted_on = $9, updated_at = $10
			 WHERE user_id = $1 AND version = $2`,
			account.UserID, account.Version,
			account.Balance, account.TotalEarned, account.TotalSpent, account.TotalConverted,
			nullTime(account.LastConversionAt), account.DailyConvertedPoints,
			nullTime(account.DailyConvertedOn), account.UpdatedAt,
		)
	}
	if err != nil {
		return fmt.Errorf("ポイントアカウントの保存に失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新件数の取得に失敗しました: %w", err)
	}
	if affected == 0 {
		return ErrVersionConflict
	}
	return nil
}

// appendTransaction は取引ログを追記する。
func appendTransaction(ctx context.Context, tx *sql.Tx, ptx *model.PointsTransaction) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO points_transactions (id, user_id, type, amount, reason, source, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ptx.ID, ptx.UserID, ptx.Type, ptx.Amount, nullString(ptx.Reason), nullString(ptx.Source), ptx.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("ポイント取引の追記に失敗しました: %w", err)
	}
	return nil
}

// ListTransactions はユーザーの取引ログを新しい順に返す。
func (r *PostgresPointsRepo) ListTransactions(ctx context.Context, userID string, txType model.TransactionType, limit int) ([]*model.PointsTransaction, error) {
	query, args, err := buildListTransactionsQuery(userID, txType, limit)
	if err != nil {
		return nil, fmt.Errorf("取引ログクエリの構築に失敗しました: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("取引ログの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var txs []*model.PointsTransaction
	for rows.Next() {
		tx := &model.PointsTransaction{}
		var reason, source sql.NullString
		if err := rows.Scan(&tx.ID, &tx.UserID, &tx.Type, &tx.Amount, &reason, &source, &tx.CreatedAt); err != nil {
			return nil, fmt.Errorf("取引ログの読み取りに失敗しました: %w", err)
		}
		tx.Reason = nullStringValue(reason)
		tx.Source = nullStringValue(source)
		txs = append(txs, tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("取引ログの走査に失敗しました: %w", err)
	}

	return txs, nil
}

// buildListTransactionsQuery は取引ログ一覧のSELECT文を組み立てる。
func buildListTransactionsQuery(userID string, txType model.TransactionType, limit int) (string, []interface{}, error) {
	q := psql.
		Select("id", "user_id", "type", "amount", "reason", "source", "created_at").
		From("points_transactions").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("created_at DESC", "id DESC")

	if txType != "" {
		q = q.Where(sq.Eq{"type": string(txType)})
	}
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	return q.ToSql()
}

// compile-time interface check
var _ PointsRepository = (*PostgresPointsRepo)(nil)
