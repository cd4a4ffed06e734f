// Package cleanup は会話データの自動削除ジョブを提供する。
// 保持期間（デフォルト30日）を超過した会話とフィードバック監査ログを
// 定期バッチで削除する。メッセージはCASCADE削除で自動的に処理される。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ConversationPruner は保持期間を超過した会話の削除を抽象化するインターフェース。
type ConversationPruner interface {
	// DeleteOlderThan は最終更新がbeforeより古い会話を削除し、削除件数を返す。
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// FeedbackPruner は保持期間を超過したフィードバック監査ログの削除を抽象化するインターフェース。
type FeedbackPruner interface {
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// CleanupJob は保持期間を超過した会話の自動削除ジョブ。
// 定期実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type CleanupJob struct {
	conversations ConversationPruner
	feedback      FeedbackPruner // 監査ログ保存が無効な場合はnil
	logger        *slog.Logger
	RetentionDays int // 会話の保持日数（デフォルト: 30）

	now func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。
// feedbackはnilを許容する（監査ログをDBに保存しない構成）。
// デフォルトの保持日数は30日。
func NewCleanupJob(conversations ConversationPruner, feedback FeedbackPruner, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		conversations: conversations,
		feedback:      feedback,
		logger:        logger,
		RetentionDays: 30,
		now:           time.Now,
	}
}

// Run は保持期間を超過した会話とフィードバック監査ログを削除する。
// 最終更新がRetentionDays日前より古い会話をDELETEする。
// メッセージはCASCADE削除により自動的に削除される。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := j.now()
	cutoff := start.AddDate(0, 0, -j.RetentionDays)

	deletedConversations, err := j.conversations.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		j.logger.Error("会話クリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return fmt.Errorf("会話クリーンアップの実行に失敗: %w", err)
	}

	var deletedFeedback int64
	if j.feedback != nil {
		deletedFeedback, err = j.feedback.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			j.logger.Error("フィードバック監査ログのクリーンアップに失敗しました",
				slog.String("error", err.Error()),
				slog.Int("retention_days", j.RetentionDays),
			)
			return fmt.Errorf("フィードバック監査ログのクリーンアップに失敗: %w", err)
		}
	}

	duration := time.Since(start)
	j.logger.Info("会話クリーンアップジョブが完了しました",
		slog.Int64("deleted_conversations", deletedConversations),
		slog.Int64("deleted_feedback_rows", deletedFeedback),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// Start は指定間隔のティッカーでクリーンアップジョブを起動する。
// 起動直後に1回実行し、コンテキストがキャンセルされるまで実行を継続する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("クリーンアップスケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("retention_days", j.RetentionDays),
	)

	if err := j.Run(ctx); err != nil {
		j.logger.Error("クリーンアップサイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("クリーンアップスケジューラを停止しました")
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Error("クリーンアップサイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
