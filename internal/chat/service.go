package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jiyp/jeeves/internal/llm"
	"github.com/jiyp/jeeves/internal/model"
	"github.com/jiyp/jeeves/internal/repository"
	"github.com/jiyp/jeeves/internal/retrieval"
)

// Sanitizer はアシスタント応答からマークアップを除去する。
type Sanitizer interface {
	Sanitize(s string) string
}

// InteractionLogger は対話履歴の記録先。記録は best-effort であり、
// 失敗しても呼び出し元の処理を止めない。
type InteractionLogger interface {
	LogInteraction(ctx context.Context, email string, interactionType model.InteractionType, prompt, response, status string)
}

// Recorder はチャット処理のメトリクスを記録する。
type Recorder interface {
	RecordChatTurn()
	RecordLLMRequest(duration time.Duration, err error)
	RecordRetrievalFailure()
}

// ServiceConfig はチャットサービスの動作設定。
type ServiceConfig struct {
	Model         string
	AuditModel    string
	Temperature   float64
	AuditMaxBytes int
}

// Service は会話・監査レポート要約のオーケストレーションを担う。
type Service struct {
	store     repository.ConversationStore
	llmClient llm.Client
	retriever retrieval.Retriever
	sanitizer Sanitizer
	logger    InteractionLogger
	recorder  Recorder
	config    ServiceConfig
}

// NewService は Service を生成する。
func NewService(
	store repository.ConversationStore,
	llmClient llm.Client,
	retriever retrieval.Retriever,
	sanitizer Sanitizer,
	logger InteractionLogger,
	recorder Recorder,
	config ServiceConfig,
) *Service {
	return &Service{
		store:     store,
		llmClient: llmClient,
		retriever: retriever,
		sanitizer: sanitizer,
		logger:    logger,
		recorder:  recorder,
		config:    config,
	}
}

// Chat はユーザー入力に対する応答を生成し、会話履歴に追記する。
func (s *Service) Chat(ctx context.Context, user *model.UserInfo, prompt string) (string, error) {
	return s.chat(ctx, user, prompt, nil)
}

// ChatStream は応答を chunk ごとに callback へ渡しつつ生成する。
// 完全な応答文字列を返す。
func (s *Service) ChatStream(ctx context.Context, user *model.UserInfo, prompt string, callback llm.StreamCallback) (string, error) {
	return s.chat(ctx, user, prompt, callback)
}

func (s *Service) chat(ctx context.Context, user *model.UserInfo, prompt string, callback llm.StreamCallback) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", model.NewEmptyPromptError()
	}

	conv, err := s.store.GetOrCreate(ctx, user.SessionID, user.Email)
	if err != nil {
		return "", fmt.Errorf("failed to load conversation: %w", err)
	}

	docs := s.retrieve(ctx, prompt)
	messages := buildChatMessages(conv, docs, prompt)

	response, err := s.complete(ctx, &llm.ChatRequest{
		Model:       s.config.Model,
		Messages:    messages,
		Temperature: s.config.Temperature,
	}, callback)
	if err != nil {
		return "", err
	}
	response = s.sanitizer.Sanitize(response)

	if err := s.appendTurn(ctx, user, prompt, response); err != nil {
		return "", err
	}
	if s.recorder != nil {
		s.recorder.RecordChatTurn()
	}
	s.logger.LogInteraction(ctx, user.Email, model.InteractionChat, prompt, response, "Pending Feedback")

	return response, nil
}

// SummarizeAudit は監査レポートの要約を生成し、会話履歴に追記する。
func (s *Service) SummarizeAudit(ctx context.Context, user *model.UserInfo, report string) (string, error) {
	report = strings.TrimSpace(report)
	if report == "" {
		return "", model.NewEmptyPromptError()
	}
	if s.config.AuditMaxBytes > 0 && len(report) > s.config.AuditMaxBytes {
		return "", model.NewAuditTooLargeError(int64(s.config.AuditMaxBytes))
	}

	if _, err := s.store.GetOrCreate(ctx, user.SessionID, user.Email); err != nil {
		return "", fmt.Errorf("failed to load conversation: %w", err)
	}

	auditModel := s.config.AuditModel
	if auditModel == "" {
		auditModel = s.config.Model
	}
	summary, err := s.complete(ctx, &llm.ChatRequest{
		Model: auditModel,
		Messages: []llm.ChatMessage{
			{Role: string(model.RoleUser), Content: fmt.Sprintf(auditSummaryPrompt, report)},
		},
		Temperature: s.config.Temperature,
	}, nil)
	if err != nil {
		return "", err
	}
	summary = s.sanitizer.Sanitize(summary)

	if err := s.appendTurn(ctx, user, auditSeedMessage, summary); err != nil {
		return "", err
	}
	s.logger.LogInteraction(ctx, user.Email, model.InteractionAudit, auditSeedMessage, summary, "Pending Feedback")

	return summary, nil
}

// SetUserContext は食事制限などのプロフィール文脈をセッションに設定する。
func (s *Service) SetUserContext(ctx context.Context, user *model.UserInfo, uc model.UserContext) error {
	if err := s.store.SetUserContext(ctx, user.SessionID, user.Email, uc); err != nil {
		return fmt.Errorf("failed to set user context: %w", err)
	}
	return nil
}

// History はセッションの会話履歴を時系列で返す。
func (s *Service) History(ctx context.Context, user *model.UserInfo) ([]model.Message, error) {
	messages, err := s.store.History(ctx, user.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return messages, nil
}

// EndSession はセッションの会話履歴を破棄する。
func (s *Service) EndSession(ctx context.Context, user *model.UserInfo) error {
	if err := s.store.Delete(ctx, user.SessionID); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return nil
}

// Starters は初回表示用のおすすめプロンプトを返す。
func (s *Service) Starters() []string {
	prompts := make([]string, len(StarterPrompts))
	copy(prompts, StarterPrompts)
	return prompts
}

// retrieve は参考文書を取得する。取得失敗は応答品質の劣化に留め、
// 会話自体は継続する。
func (s *Service) retrieve(ctx context.Context, query string) []string {
	docs, err := s.retriever.Retrieve(ctx, query)
	if err != nil {
		slog.Warn("retrieval failed, continuing without reference documents", "error", err)
		if s.recorder != nil {
			s.recorder.RecordRetrievalFailure()
		}
		return nil
	}
	return docs
}

func (s *Service) complete(ctx context.Context, req *llm.ChatRequest, callback llm.StreamCallback) (string, error) {
	start := time.Now()
	var response string
	var err error
	if callback != nil {
		req.Stream = true
		response, err = s.llmClient.CompleteStream(ctx, req, callback)
	} else {
		response, err = s.llmClient.Complete(ctx, req)
	}
	if s.recorder != nil {
		s.recorder.RecordLLMRequest(time.Since(start), err)
	}
	if err != nil {
		slog.Error("llm request failed", "model", req.Model, "error", err)
		return "", model.NewLLMUnavailableError()
	}
	return response, nil
}

func (s *Service) appendTurn(ctx context.Context, user *model.UserInfo, prompt, response string) error {
	now := time.Now()
	userMsg := model.Message{Role: model.RoleUser, Content: prompt, CreatedAt: now}
	if err := s.store.Append(ctx, user.SessionID, user.Email, userMsg); err != nil {
		return fmt.Errorf("failed to append user message: %w", err)
	}
	assistantMsg := model.Message{Role: model.RoleAssistant, Content: response, CreatedAt: now}
	if err := s.store.Append(ctx, user.SessionID, user.Email, assistantMsg); err != nil {
		return fmt.Errorf("failed to append assistant message: %w", err)
	}
	return nil
}

func buildChatMessages(conv *model.Conversation, docs []string, prompt string) []llm.ChatMessage {
	system := buildSystemPrompt(
		conv.Context.DietaryPreferences,
		conv.Context.NutritionalGoals,
		conv.Context.Conditions,
		docs,
	)
	messages := make([]llm.ChatMessage, 0, len(conv.Messages)+2)
	messages = append(messages, llm.ChatMessage{Role: string(model.RoleSystem), Content: system})
	for _, m := range conv.Messages {
		messages = append(messages, llm.ChatMessage{Role: string(m.Role), Content: m.Content})
	}
	messages = append(messages, llm.ChatMessage{Role: string(model.RoleUser), Content: prompt})
	return messages
}
