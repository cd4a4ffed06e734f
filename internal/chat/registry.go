// Package chat は会話セッションレジストリとチャットターンの実行を提供する。
package chat

import (
	"context"
	"sync"
	"time"

	"github.com/jiyp/jeeves/internal/model"
	"github.com/jiyp/jeeves/internal/repository"
)

// MemoryStore はプロセス内メモリの会話ストア。
// 履歴はプロセスの生存期間のみ保持され、永続性はない。
// 複数ブラウザセッションからの並行アクセスに備えて単一ロックで保護する。
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*model.Conversation
	maxTurns int
}

// NewMemoryStore はMemoryStoreを生成する。
// maxTurnsは1会話あたりの保持メッセージ数の上限（0以下は無制限）。
func NewMemoryStore(maxTurns int) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*model.Conversation),
		maxTurns: maxTurns,
	}
}

// GetOrCreate は指定セッションIDの会話を取得する。初回参照時は空の会話を遅延生成する。
// 返される会話は呼び出し時点のスナップショットであり、以降の変更は反映されない。
func (s *MemoryStore) GetOrCreate(ctx context.Context, sessionID, email string) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.getOrCreateLocked(sessionID, email)
	return snapshot(conv), nil
}

// Append はセッションの履歴末尾にメッセージを追記する。
// 上限超過分は古いメッセージから破棄される。
func (s *MemoryStore) Append(ctx context.Context, sessionID, email string, msg model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.getOrCreateLocked(sessionID, email)
	conv.Messages = append(conv.Messages, msg)
	if s.maxTurns > 0 && len(conv.Messages) > s.maxTurns {
		overflow := len(conv.Messages) - s.maxTurns
		conv.Messages = append([]model.Message(nil), conv.Messages[overflow:]...)
	}
	conv.UpdatedAt = time.Now()
	return nil
}

// History はセッションの履歴を挿入順に返す。未生成のセッションは空を返す。
func (s *MemoryStore) History(ctx context.Context, sessionID string) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	return append([]model.Message(nil), conv.Messages...), nil
}

// SetUserContext はセッションのユーザープロフィール文脈を更新する。
func (s *MemoryStore) SetUserContext(ctx context.Context, sessionID, email string, uc model.UserContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.getOrCreateLocked(sessionID, email)
	conv.Context = uc
	conv.UpdatedAt = time.Now()
	return nil
}

// Delete は指定セッションの会話を破棄する。存在しない場合も成功とする。
func (s *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
	return nil
}

// DeleteOlderThan は最終更新がbeforeより古い会話を削除し、削除件数を返す。
func (s *MemoryStore) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for sessionID, conv := range s.sessions {
		if conv.UpdatedAt.Before(before) {
			delete(s.sessions, sessionID)
			deleted++
		}
	}
	return deleted, nil
}

// SessionCount は現在保持している会話数を返す。テストおよびメトリクス用。
func (s *MemoryStore) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// getOrCreateLocked はロック保持中に会話を取得または生成する。
func (s *MemoryStore) getOrCreateLocked(sessionID, email string) *model.Conversation {
	conv, ok := s.sessions[sessionID]
	if !ok {
		now := time.Now()
		conv = &model.Conversation{
			SessionID: sessionID,
			Email:     email,
			CreatedAt: now,
			UpdatedAt: now,
		}
		s.sessions[sessionID] = conv
	}
	return conv
}

// snapshot は会話のコピーを返す。メッセージスライスも複製する。
func snapshot(conv *model.Conversation) *model.Conversation {
	copied := *conv
	copied.Messages = append([]model.Message(nil), conv.Messages...)
	return &copied
}

// compile-time interface check
var _ repository.ConversationStore = (*MemoryStore)(nil)
