package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jiyp/jeeves/internal/model"
)

// PostgresConversationRepo はPostgreSQLを使用した会話ストア。
// 再起動をまたいで会話履歴を保持する。
type PostgresConversationRepo struct {
	db       *sql.DB
	maxTurns int
}

// NewPostgresConversationRepo はPostgresConversationRepoを生成する。
// maxTurnsは1会話あたりの保持メッセージ数の上限（0以下は無制限）。
func NewPostgresConversationRepo(db *sql.DB, maxTurns int) *PostgresConversationRepo {
	return &PostgresConversationRepo{db: db, maxTurns: maxTurns}
}

// GetOrCreate は指定セッションIDの会話を取得する。初回参照時は空の会話を生成する。
func (r *PostgresConversationRepo) GetOrCreate(ctx context.Context, sessionID, email string) (*model.Conversation, error) {
	now := time.Now()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO conversations (session_id, email, created_at, updated_at)
		 VALUES ($1, $2, $3, $3)
		 ON CONFLICT (session_id) DO NOTHING`,
		sessionID, email, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	conv := &model.Conversation{SessionID: sessionID}
	err = r.db.QueryRowContext(ctx,
		`SELECT email, dietary_preferences, nutritional_goals, conditions, created_at, updated_at
		 FROM conversations
		 WHERE session_id = $1`,
		sessionID,
	).Scan(
		&conv.Email,
		&conv.Context.DietaryPreferences,
		&conv.Context.NutritionalGoals,
		&conv.Context.Conditions,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find conversation: %w", err)
	}

	messages, err := r.History(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	conv.Messages = messages

	return conv, nil
}

// Append はセッションの履歴末尾にメッセージを追記する。
// 上限超過分は古いメッセージから削除される。
func (r *PostgresConversationRepo) Append(ctx context.Context, sessionID, email string, msg model.Message) error {
	if _, err := r.GetOrCreate(ctx, sessionID, email); err != nil {
		return err
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO messages (id, session_id, role, content, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		uuid.New().String(), sessionID, string(msg.Role), msg.Content, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`UPDATE conversations SET updated_at = $2 WHERE session_id = $1`,
		sessionID, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}

	if r.maxTurns > 0 {
		_, err = r.db.ExecContext(ctx,
			`DELETE FROM messages
			 WHERE session_id = $1
			   AND seq NOT IN (
				 SELECT seq FROM messages
				 WHERE session_id = $1
				 ORDER BY seq DESC
				 LIMIT $2
			   )`,
			sessionID, r.maxTurns,
		)
		if err != nil {
			return fmt.Errorf("failed to trim message history: %w", err)
		}
	}

	return nil
}

// History はセッションの履歴を挿入順に返す。未生成のセッションは空を返す。
func (r *PostgresConversationRepo) History(ctx context.Context, sessionID string) ([]model.Message, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT role, content, created_at
		 FROM messages
		 WHERE session_id = $1
		 ORDER BY seq ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		var msg model.Message
		var role string
		if err := rows.Scan(&role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Role = model.Role(role)
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}

	return messages, nil
}

// SetUserContext はセッションのユーザープロフィール文脈を更新する。
func (r *PostgresConversationRepo) SetUserContext(ctx context.Context, sessionID, email string, uc model.UserContext) error {
	if _, err := r.GetOrCreate(ctx, sessionID, email); err != nil {
		return err
	}

	_, err := r.db.ExecContext(ctx,
		`UPDATE conversations
		 SET dietary_preferences = $2, nutritional_goals = $3, conditions = $4, updated_at = $5
		 WHERE session_id = $1`,
		sessionID, uc.DietaryPreferences, uc.NutritionalGoals, uc.Conditions, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to update user context: %w", err)
	}
	return nil
}

// Delete は指定セッションの会話を削除する。関連メッセージはCASCADE削除される。
func (r *PostgresConversationRepo) Delete(ctx context.Context, sessionID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM conversations WHERE session_id = $1`,
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return nil
}

// DeleteOlderThan は最終更新がbeforeより古い会話を削除し、削除件数を返す。
func (r *PostgresConversationRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM conversations WHERE updated_at < $1`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale conversations: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted conversations: %w", err)
	}
	return deleted, nil
}

// compile-time interface check
var _ ConversationStore = (*PostgresConversationRepo)(nil)
