package model

import "time"

// Role はチャットメッセージの発話者を表す。
type Role string

const (
	// RoleUser はユーザーの発話を示す。
	RoleUser Role = "user"
	// RoleAssistant はアシスタントの応答を示す。
	RoleAssistant Role = "assistant"
	// RoleSystem はシステムプロンプトを示す。
	RoleSystem Role = "system"
)

// Message は会話セッション内の1メッセージを表す。
type Message struct {
	Role      Role
	Content   string
	CreatedAt time.Time
}

// Conversation は1つの会話セッションを表す。
// SessionIDはログイン時に発行される暗号的にランダムな識別子で、
// アイデンティティクレームに埋め込まれる。
type Conversation struct {
	SessionID string
	Email     string
	Messages  []Message
	Context   UserContext
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FeedbackSentiment はフィードバックの評価を表す。
type FeedbackSentiment string

const (
	// SentimentPositive は肯定的評価を示す。
	SentimentPositive FeedbackSentiment = "Positive"
	// SentimentNegative は否定的評価を示す。
	SentimentNegative FeedbackSentiment = "Negative"
)

// InteractionType はログに記録される対話の種別を表す。
type InteractionType string

const (
	// InteractionChat は通常のチャット対話を示す。
	InteractionChat InteractionType = "Chat Interaction"
	// InteractionAudit は監査レポート（degree audit）の要約対話を示す。
	InteractionAudit InteractionType = "Audit Summary"
	// InteractionFeedback はフィードバック送信を示す。
	InteractionFeedback InteractionType = "Feedback"
)

// FeedbackRecord は外部表形式ストアに追記される1行を表す。
// 追記専用であり、更新・削除の経路は存在しない。
type FeedbackRecord struct {
	Timestamp time.Time
	Email     string
	Type      InteractionType
	Prompt    string
	Response  string
	Status    string
}
