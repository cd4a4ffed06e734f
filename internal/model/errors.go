package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, chat, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeAccessDenied     = "ACCESS_DENIED"
	ErrCodeTokenInvalid     = "TOKEN_INVALID"
	ErrCodeConfigLoad       = "CONFIG_LOAD_FAILED"
	ErrCodeLLMUnavailable   = "LLM_UNAVAILABLE"
	ErrCodeEmptyPrompt      = "EMPTY_PROMPT"
	ErrCodeInvalidSentiment = "INVALID_SENTIMENT"
	ErrCodeAuditTooLarge    = "AUDIT_TOO_LARGE"
	ErrCodeSessionNotFound  = "SESSION_NOT_FOUND"
)

// NewAccessDeniedError はアクセス拒否エラーを生成する。
// 未知のユーザーと不正なコードを区別しない一般的なメッセージを返す
// （ユーザー列挙攻撃の防止）。
func NewAccessDeniedError() *APIError {
	return &APIError{
		Code:     ErrCodeAccessDenied,
		Message:  "アクセスが拒否されました。",
		Category: "auth",
		Action:   "アカウントが利用許可されているか管理者に確認してください。",
	}
}

// NewTokenInvalidError はトークン無効エラーを生成する。
// 署名不正と期限切れはいずれも同じ「未認証」として扱う。
func NewTokenInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeTokenInvalid,
		Message:  "ログインセッションが無効です。",
		Category: "auth",
		Action:   "再度ログインしてください。",
	}
}

// NewLLMUnavailableError はLLM呼び出し失敗エラーを生成する。
func NewLLMUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeLLMUnavailable,
		Message:  "アシスタントの応答生成に失敗しました。",
		Category: "chat",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewEmptyPromptError は空プロンプトエラーを生成する。
func NewEmptyPromptError() *APIError {
	return &APIError{
		Code:     ErrCodeEmptyPrompt,
		Message:  "メッセージが空です。",
		Category: "validation",
		Action:   "メッセージを入力してください。",
	}
}

// NewInvalidSentimentError は無効なフィードバック評価エラーを生成する。
func NewInvalidSentimentError(sentiment string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSentiment,
		Message:  fmt.Sprintf("無効なフィードバック評価です: %s", sentiment),
		Category: "validation",
		Action:   "評価には Positive または Negative を指定してください。",
	}
}

// NewAuditTooLargeError は監査レポート本文が大きすぎる場合のエラーを生成する。
func NewAuditTooLargeError(maxBytes int64) *APIError {
	return &APIError{
		Code:     ErrCodeAuditTooLarge,
		Message:  fmt.Sprintf("レポート本文が上限（%dバイト）を超えています。", maxBytes),
		Category: "validation",
		Action:   "レポートのテキストを分割して送信してください。",
	}
}

// NewSessionNotFoundError は会話セッション未検出エラーを生成する。
func NewSessionNotFoundError(sessionID string) *APIError {
	return &APIError{
		Code:     ErrCodeSessionNotFound,
		Message:  fmt.Sprintf("指定された会話セッションが見つかりません: %s", sessionID),
		Category: "chat",
		Action:   "再度ログインして新しい会話を開始してください。",
	}
}
