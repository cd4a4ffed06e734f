package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jiyp/jeeves/internal/llm"
	"github.com/jiyp/jeeves/internal/middleware"
	"github.com/jiyp/jeeves/internal/model"
)

// ChatServiceInterface はチャットハンドラーが必要とするサービスインターフェース。
type ChatServiceInterface interface {
	Chat(ctx context.Context, user *model.UserInfo, prompt string) (string, error)
	ChatStream(ctx context.Context, user *model.UserInfo, prompt string, callback llm.StreamCallback) (string, error)
	SummarizeAudit(ctx context.Context, user *model.UserInfo, report string) (string, error)
	SetUserContext(ctx context.Context, user *model.UserInfo, uc model.UserContext) error
	History(ctx context.Context, user *model.UserInfo) ([]model.Message, error)
	EndSession(ctx context.Context, user *model.UserInfo) error
	Starters() []string
}

// ChatHandler は会話関連のHTTPハンドラー。
type ChatHandler struct {
	service ChatServiceInterface
}

// NewChatHandler はChatHandlerを生成する。
func NewChatHandler(service ChatServiceInterface) *ChatHandler {
	return &ChatHandler{service: service}
}

// chatRequest はチャットリクエストのボディ。
type chatRequest struct {
	Message string `json:"message"`
}

// Chat はユーザー入力に対する応答を返す。
// POST /api/chat
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewTokenInvalidError())
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	response, err := h.service.Chat(r.Context(), user, req.Message)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"response": response})
}

// streamChunk はSSEで送信するチャンク。
type streamChunk struct {
	Delta string `json:"delta"`
}

// ChatStream は応答をServer-Sent Eventsでストリーミング配信する。
// 各チャンクは data: {"delta":"..."} の形式で送信され、
// 終端は data: [DONE] で示される。
// POST /api/chat/stream
func (h *ChatHandler) ChatStream(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewTokenInvalidError())
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	_, err = h.service.ChatStream(r.Context(), user, req.Message, func(chunk string) error {
		data, marshalErr := json.Marshal(streamChunk{Delta: chunk})
		if marshalErr != nil {
			return marshalErr
		}
		if _, writeErr := w.Write([]byte("data: " + string(data) + "\n\n")); writeErr != nil {
			return writeErr
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		// ヘッダー送信済みのため、エラーはSSEイベントとして通知する
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			data, _ := json.Marshal(map[string]string{"error": apiErr.Code, "message": apiErr.Message})
			w.Write([]byte("data: " + string(data) + "\n\n"))
		} else {
			slog.Error("chat stream failed", slog.String("error", err.Error()))
			w.Write([]byte("data: {\"error\":\"INTERNAL_ERROR\"}\n\n"))
		}
		flusher.Flush()
		return
	}

	w.Write([]byte("data: [DONE]\n\n"))
	flusher.Flush()
}

// auditRequest は監査レポート要約リクエストのボディ。
type auditRequest struct {
	Report string `json:"report"`
}

// Audit は監査レポートの要約を返す。
// POST /api/audit
func (h *ChatHandler) Audit(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewTokenInvalidError())
		return
	}

	var req auditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	summary, err := h.service.SummarizeAudit(r.Context(), user, req.Report)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"summary": summary})
}

// contextRequest はユーザープロフィール文脈のリクエストボディ。
type contextRequest struct {
	DietaryPreferences string `json:"dietary_preferences"`
	NutritionalGoals   string `json:"nutritional_goals"`
	Conditions         string `json:"conditions"`
}

// UpdateContext は食事制限などのプロフィール文脈を設定する。
// PUT /api/context
func (h *ChatHandler) UpdateContext(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewTokenInvalidError())
		return
	}

	var req contextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	uc := model.UserContext{
		DietaryPreferences: req.DietaryPreferences,
		NutritionalGoals:   req.NutritionalGoals,
		Conditions:         req.Conditions,
	}
	if err := h.service.SetUserContext(r.Context(), user, uc); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// messageResponse は履歴レスポンスの1メッセージ。
type messageResponse struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// History はセッションの会話履歴を時系列で返す。
// GET /api/history
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewTokenInvalidError())
		return
	}

	messages, err := h.service.History(r.Context(), user)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	results := make([]messageResponse, len(messages))
	for i, m := range messages {
		results[i] = messageResponse{Role: string(m.Role), Content: m.Content}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"messages": results})
}

// Prompts は初回表示用のおすすめプロンプトを返す。
// GET /api/prompts
func (h *ChatHandler) Prompts(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"prompts": h.service.Starters()})
}

// EndSession は現在の会話セッションを破棄する。
// DELETE /api/session
func (h *ChatHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewTokenInvalidError())
		return
	}

	if err := h.service.EndSession(r.Context(), user); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// writeServiceError はサービス層のエラーをHTTPレスポンスに変換する。
func writeServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		slog.Error("unexpected service error", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	status := http.StatusInternalServerError
	switch apiErr.Code {
	case model.ErrCodeEmptyPrompt, model.ErrCodeInvalidSentiment:
		status = http.StatusBadRequest
	case model.ErrCodeAuditTooLarge:
		status = http.StatusRequestEntityTooLarge
	case model.ErrCodeLLMUnavailable:
		status = http.StatusBadGateway
	case model.ErrCodeSessionNotFound:
		status = http.StatusNotFound
	case model.ErrCodeAccessDenied:
		status = http.StatusForbidden
	case model.ErrCodeTokenInvalid:
		status = http.StatusUnauthorized
	}
	middleware.WriteErrorResponse(w, status, apiErr)
}
