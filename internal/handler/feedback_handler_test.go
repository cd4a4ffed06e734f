package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jiyp/jeeves/internal/model"
)

// mockFeedbackService はテスト用のフィードバックサービス。
type mockFeedbackService struct {
	logFeedbackFn func(ctx context.Context, email string, sentiment model.FeedbackSentiment, prompt, response string) error
}

func (m *mockFeedbackService) LogFeedback(ctx context.Context, email string, sentiment model.FeedbackSentiment, prompt, response string) error {
	return m.logFeedbackFn(ctx, email, sentiment, prompt, response)
}

func TestFeedbackHandler_Submit(t *testing.T) {
	var captured model.FeedbackSentiment
	service := &mockFeedbackService{
		logFeedbackFn: func(ctx context.Context, email string, sentiment model.FeedbackSentiment, prompt, response string) error {
			if email != "user@example.com" {
				t.Errorf("email = %q, want user@example.com", email)
			}
			captured = sentiment
			return nil
		},
	}
	h := NewFeedbackHandler(service)

	body := `{"sentiment":"Positive","prompt":"what to eat","response":"salad"}`
	req := newAuthedChatRequest(http.MethodPost, "/api/feedback", body)
	w := httptest.NewRecorder()
	h.Submit(w, req)

	// 記録はbest-effortのため202を返す
	if w.Code != http.StatusAccepted {
		t.Fatalf("ステータス = %d, want 202: %s", w.Code, w.Body.String())
	}
	if captured != model.SentimentPositive {
		t.Errorf("sentiment = %q, want Positive", captured)
	}
}

func TestFeedbackHandler_Submit_InvalidSentiment(t *testing.T) {
	service := &mockFeedbackService{
		logFeedbackFn: func(ctx context.Context, email string, sentiment model.FeedbackSentiment, prompt, response string) error {
			return model.NewInvalidSentimentError(string(sentiment))
		},
	}
	h := NewFeedbackHandler(service)

	req := newAuthedChatRequest(http.MethodPost, "/api/feedback", `{"sentiment":"Meh"}`)
	w := httptest.NewRecorder()
	h.Submit(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("ステータス = %d, want 400", w.Code)
	}
}

func TestFeedbackHandler_Submit_Unauthenticated(t *testing.T) {
	h := NewFeedbackHandler(&mockFeedbackService{})

	req := httptest.NewRequest(http.MethodPost, "/api/feedback", strings.NewReader(`{"sentiment":"Positive"}`))
	w := httptest.NewRecorder()
	h.Submit(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("ステータス = %d, want 401", w.Code)
	}
}
