// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/jiyp/jeeves/internal/model"
)

// ConversationStore は会話セッションレジストリの永続化インターフェース。
// メモリ実装（デフォルト）とPostgreSQL実装（永続化あり）が存在する。
type ConversationStore interface {
	// GetOrCreate は指定セッションIDの会話を取得する。
	// 初回参照時には空の会話を遅延生成する。
	GetOrCreate(ctx context.Context, sessionID, email string) (*model.Conversation, error)

	// Append はセッションの履歴末尾にメッセージを追記する。
	// 会話が未生成の場合は生成してから追記する。
	// 履歴が上限を超える場合は古いメッセージから破棄される。
	Append(ctx context.Context, sessionID, email string, msg model.Message) error

	// History はセッションの履歴を挿入順に返す。未生成のセッションは空を返す。
	History(ctx context.Context, sessionID string) ([]model.Message, error)

	// SetUserContext はセッションのユーザープロフィール文脈を更新する。
	SetUserContext(ctx context.Context, sessionID, email string, uc model.UserContext) error

	// Delete は指定セッションの会話を破棄する。存在しない場合も成功とする。
	Delete(ctx context.Context, sessionID string) error

	// DeleteOlderThan は最終更新がbeforeより古い会話を削除し、削除件数を返す。
	// 保持期間ポリシーの適用に使う。
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// FeedbackAuditRepository はフィードバック記録の監査用コピーの永続化インターフェース。
// 外部表形式ストアへの追記と並行して同一行を記録する。追記専用。
type FeedbackAuditRepository interface {
	// Append は監査レコードを1件追記する。
	Append(ctx context.Context, record *model.FeedbackRecord) error

	// DeleteOlderThan はbeforeより古いレコードを削除し、削除件数を返す。
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}
