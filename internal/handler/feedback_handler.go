package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/jiyp/jeeves/internal/middleware"
	"github.com/jiyp/jeeves/internal/model"
)

// FeedbackServiceInterface はフィードバックハンドラーが必要とするサービスインターフェース。
type FeedbackServiceInterface interface {
	LogFeedback(ctx context.Context, email string, sentiment model.FeedbackSentiment, prompt, response string) error
}

// FeedbackHandler はフィードバック関連のHTTPハンドラー。
type FeedbackHandler struct {
	service FeedbackServiceInterface
}

// NewFeedbackHandler はFeedbackHandlerを生成する。
func NewFeedbackHandler(service FeedbackServiceInterface) *FeedbackHandler {
	return &FeedbackHandler{service: service}
}

// feedbackRequest はフィードバックリクエストのボディ。
type feedbackRequest struct {
	Sentiment string `json:"sentiment"`
	Prompt    string `json:"prompt"`
	Response  string `json:"response"`
}

// Submit はアシスタント応答への評価を受け付ける。
// 記録は best-effort のため、シート書き込みの失敗では202を返す。
// POST /api/feedback
func (h *FeedbackHandler) Submit(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewTokenInvalidError())
		return
	}

	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.service.LogFeedback(r.Context(), user.Email, model.FeedbackSentiment(req.Sentiment), req.Prompt, req.Response); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}
