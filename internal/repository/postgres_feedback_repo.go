package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jiyp/jeeves/internal/model"
)

// PostgresFeedbackRepo はPostgreSQLを使用したフィードバック監査リポジトリ。
// 外部表形式ストアへの追記と同内容の行を追記専用で保持する。
type PostgresFeedbackRepo struct {
	db *sql.DB
}

// NewPostgresFeedbackRepo はPostgresFeedbackRepoを生成する。
func NewPostgresFeedbackRepo(db *sql.DB) *PostgresFeedbackRepo {
	return &PostgresFeedbackRepo{db: db}
}

// Append は監査レコードを1件追記する。
func (r *PostgresFeedbackRepo) Append(ctx context.Context, record *model.FeedbackRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO feedback_log (recorded_at, email, interaction_type, prompt, response, status)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		record.Timestamp, record.Email, string(record.Type), record.Prompt, record.Response, record.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to append feedback record: %w", err)
	}
	return nil
}

// DeleteOlderThan はbeforeより古いレコードを削除し、削除件数を返す。
func (r *PostgresFeedbackRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM feedback_log WHERE recorded_at < $1`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale feedback records: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted feedback records: %w", err)
	}
	return deleted, nil
}

// compile-time interface check
var _ FeedbackAuditRepository = (*PostgresFeedbackRepo)(nil)
