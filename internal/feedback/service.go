// Package feedback は対話履歴とフィードバックのスプレッドシート記録を提供する。
// 記録は best-effort で行い、失敗しても会話処理を止めない。
package feedback

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/jiyp/jeeves/internal/config"
	"github.com/jiyp/jeeves/internal/model"
	"github.com/jiyp/jeeves/internal/repository"
	"github.com/jiyp/jeeves/internal/sheets"
)

// timestampLayout はスプレッドシート1列目のタイムスタンプ書式。
const timestampLayout = "2006-01-02 15:04:05"

// feedbackClosingStatus はフィードバック行のステータス列の値。
const feedbackClosingStatus = "Session End"

// Recorder は記録結果のメトリクスを記録する。
type Recorder interface {
	RecordFeedbackLog(err error)
}

// Service は対話・フィードバックの記録サービス。
type Service struct {
	appender      sheets.Appender
	audit         repository.FeedbackAuditRepository // nil の場合は監査コピーを記録しない
	logger        *slog.Logger
	recorder      Recorder
	defaultTarget config.SheetTarget
	overrides     map[string]config.SheetTarget
	now           func() time.Time
}

// NewService はService の新しいインスタンスを生成する。
// audit にはPostgres監査コピーのリポジトリを渡す（メモリストア構成では nil）。
func NewService(
	appender sheets.Appender,
	audit repository.FeedbackAuditRepository,
	logger *slog.Logger,
	recorder Recorder,
	defaultTarget config.SheetTarget,
	overrides map[string]config.SheetTarget,
) *Service {
	return &Service{
		appender:      appender,
		audit:         audit,
		logger:        logger,
		recorder:      recorder,
		defaultTarget: defaultTarget,
		overrides:     overrides,
		now:           time.Now,
	}
}

// LogInteraction は1ターンの対話を記録する。
// 記録失敗はログとメトリクスに残すのみで、エラーは返さない。
func (s *Service) LogInteraction(ctx context.Context, email string, interactionType model.InteractionType, prompt, response, status string) {
	record := &model.FeedbackRecord{
		Timestamp: s.now(),
		Email:     email,
		Type:      interactionType,
		Prompt:    prompt,
		Response:  response,
		Status:    status,
	}
	s.append(ctx, record)
}

// LogFeedback はアシスタント応答への評価を記録する。
// 評価が Positive / Negative 以外の場合はバリデーションエラーを返す。
// 記録は2行: 評価そのものの行と、評価対象となった直近の対話を
// 「Feedback: <評価>」の注釈付きで再記録する行。記録自体の失敗はエラーにしない。
func (s *Service) LogFeedback(ctx context.Context, email string, sentiment model.FeedbackSentiment, prompt, response string) error {
	if sentiment != model.SentimentPositive && sentiment != model.SentimentNegative {
		return model.NewInvalidSentimentError(string(sentiment))
	}
	now := s.now()

	s.append(ctx, &model.FeedbackRecord{
		Timestamp: now,
		Email:     email,
		Type:      model.InteractionFeedback,
		Prompt:    prompt,
		Response:  string(sentiment),
		Status:    feedbackClosingStatus,
	})

	// 評価対象の対話行
	s.append(ctx, &model.FeedbackRecord{
		Timestamp: now,
		Email:     email,
		Type:      model.InteractionChat,
		Prompt:    prompt,
		Response:  response,
		Status:    "Feedback: " + string(sentiment),
	})
	return nil
}

// append は記録先シートを解決して1行追記する。失敗は swallowed。
func (s *Service) append(ctx context.Context, record *model.FeedbackRecord) {
	target := s.resolveTarget(record.Email)
	row := []string{
		record.Timestamp.Format(timestampLayout),
		record.Email,
		string(record.Type),
		record.Prompt,
		record.Response,
		record.Status,
	}

	err := s.appender.AppendRow(ctx, target.SpreadsheetID, target.SheetName, row)
	if s.recorder != nil {
		s.recorder.RecordFeedbackLog(err)
	}
	if err != nil {
		s.logger.Warn("failed to append record to spreadsheet",
			slog.String("error", err.Error()),
			slog.String("email", record.Email),
			slog.String("type", string(record.Type)),
		)
	}

	// Postgres構成では監査コピーも残す（こちらも best-effort）
	if s.audit != nil {
		if err := s.audit.Append(ctx, record); err != nil {
			s.logger.Warn("failed to append record to audit log",
				slog.String("error", err.Error()),
				slog.String("email", record.Email),
			)
		}
	}
}

// resolveTarget はユーザーごとの記録先を解決する。
// 個別設定がなければデフォルトのシートを使用する。
func (s *Service) resolveTarget(email string) config.SheetTarget {
	if target, ok := s.overrides[strings.ToLower(email)]; ok {
		return target
	}
	return s.defaultTarget
}
