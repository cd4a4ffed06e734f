package cleanup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

// ConversationPruner / FeedbackPruner に対するモック実装
type mockPruner struct {
	mu      sync.Mutex
	called  bool
	before  time.Time
	deleted int64
	err     error
}

func (m *mockPruner) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.called = true
	m.before = before
	return m.deleted, m.err
}

func (m *mockPruner) wasCalled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.called
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// ログ出力から指定キーの値を持つエントリを探す
func logHasField(t *testing.T, buf *bytes.Buffer, key string, want float64) bool {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	for _, line := range lines {
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		if v, ok := entry[key]; ok && v == want {
			return true
		}
	}
	return false
}

func TestNewCleanupJob_SetsRetentionDays(t *testing.T) {
	var buf bytes.Buffer
	job := NewCleanupJob(&mockPruner{}, nil, newTestLogger(&buf))

	if job == nil {
		t.Fatal("NewCleanupJob は nil を返してはならない")
	}
	if job.RetentionDays != 30 {
		t.Errorf("RetentionDays = %d, want 30", job.RetentionDays)
	}
}

func TestCleanupJob_Run_DeletesWithCutoff(t *testing.T) {
	var buf bytes.Buffer
	conversations := &mockPruner{deleted: 5}
	job := NewCleanupJob(conversations, nil, newTestLogger(&buf))

	fixed := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return fixed }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() がエラーを返した: %v", err)
	}

	if !conversations.called {
		t.Fatal("DeleteOlderThan が呼び出されなかった")
	}

	want := fixed.AddDate(0, 0, -30)
	if !conversations.before.Equal(want) {
		t.Errorf("cutoff = %v, want %v", conversations.before, want)
	}
}

func TestCleanupJob_Run_CustomRetentionDays(t *testing.T) {
	var buf bytes.Buffer
	conversations := &mockPruner{}
	job := NewCleanupJob(conversations, nil, newTestLogger(&buf))
	job.RetentionDays = 90

	fixed := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return fixed }

	_ = job.Run(context.Background())

	want := fixed.AddDate(0, 0, -90)
	if !conversations.before.Equal(want) {
		t.Errorf("cutoff = %v, want %v", conversations.before, want)
	}
}

func TestCleanupJob_Run_PrunesFeedbackAudit(t *testing.T) {
	var buf bytes.Buffer
	conversations := &mockPruner{deleted: 2}
	feedback := &mockPruner{deleted: 7}
	job := NewCleanupJob(conversations, feedback, newTestLogger(&buf))

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() がエラーを返した: %v", err)
	}

	if !feedback.called {
		t.Fatal("フィードバック監査ログの DeleteOlderThan が呼び出されなかった")
	}
	if !logHasField(t, &buf, "deleted_feedback_rows", 7) {
		t.Errorf("ログに deleted_feedback_rows=7 が記録されていない。ログ出力: %s", buf.String())
	}
}

func TestCleanupJob_Run_NilFeedbackPruner(t *testing.T) {
	var buf bytes.Buffer
	job := NewCleanupJob(&mockPruner{deleted: 1}, nil, newTestLogger(&buf))

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("feedbackがnilでも Run() は成功すべき: %v", err)
	}
}

func TestCleanupJob_Run_LogsDeletedCount(t *testing.T) {
	var buf bytes.Buffer
	job := NewCleanupJob(&mockPruner{deleted: 42}, nil, newTestLogger(&buf))

	_ = job.Run(context.Background())

	if !logHasField(t, &buf, "deleted_conversations", 42) {
		t.Errorf("ログに deleted_conversations=42 が記録されていない。ログ出力: %s", buf.String())
	}
	if !logHasField(t, &buf, "retention_days", 30) {
		t.Errorf("ログに retention_days=30 が記録されていない。ログ出力: %s", buf.String())
	}
}

func TestCleanupJob_Run_LogsExecutionTime(t *testing.T) {
	var buf bytes.Buffer
	job := NewCleanupJob(&mockPruner{deleted: 3}, nil, newTestLogger(&buf))

	_ = job.Run(context.Background())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	found := false
	for _, line := range lines {
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		if _, ok := entry["duration_ms"]; ok {
			found = true
			break
		}
	}
	if !found {
		t.Errorf("ログに duration_ms が記録されていない。ログ出力: %s", buf.String())
	}
}

func TestCleanupJob_Run_ReturnsErrorOnConversationFailure(t *testing.T) {
	var buf bytes.Buffer
	job := NewCleanupJob(&mockPruner{err: errors.New("connection refused")}, nil, newTestLogger(&buf))

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("削除失敗時に Run() は nil でないエラーを返すべき")
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("エラーメッセージが期待と異なる: %v", err)
	}
	if !strings.Contains(buf.String(), "ERROR") {
		t.Errorf("エラー時にERRORレベルのログが記録されていない。ログ出力: %s", buf.String())
	}
}

func TestCleanupJob_Run_ReturnsErrorOnFeedbackFailure(t *testing.T) {
	var buf bytes.Buffer
	feedback := &mockPruner{err: errors.New("deadlock detected")}
	job := NewCleanupJob(&mockPruner{deleted: 1}, feedback, newTestLogger(&buf))

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("監査ログの削除失敗時に Run() は nil でないエラーを返すべき")
	}
	if !strings.Contains(err.Error(), "deadlock detected") {
		t.Errorf("エラーメッセージが期待と異なる: %v", err)
	}
}

func TestCleanupJob_Run_Idempotent_ZeroRows(t *testing.T) {
	var buf bytes.Buffer
	job := NewCleanupJob(&mockPruner{deleted: 0}, nil, newTestLogger(&buf))

	// 冪等性: 削除対象がなくてもエラーにならない
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("1回目の Run() がエラーを返した: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("2回目の Run() がエラーを返した: %v", err)
	}
	if !logHasField(t, &buf, "deleted_conversations", 0) {
		t.Errorf("0件削除時にもログに deleted_conversations=0 が記録されるべき。ログ出力: %s", buf.String())
	}
}

func TestCleanupJob_Start_StopsOnContextCancel(t *testing.T) {
	var buf bytes.Buffer
	conversations := &mockPruner{}
	job := NewCleanupJob(conversations, nil, newTestLogger(&buf))

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		job.Start(ctx, time.Hour)
		close(done)
	}()

	// 起動直後の1回実行を待ってからキャンセル
	deadline := time.After(2 * time.Second)
	for !conversations.wasCalled() {
		select {
		case <-deadline:
			t.Fatal("起動直後の Run が実行されなかった")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("コンテキストキャンセル後も Start が停止しなかった")
	}
}
