// Package llm はOpenAI互換のチャット補完APIクライアントを提供する。
// 応答はブロッキング取得とストリーミング取得の両方に対応する。
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ChatMessage はチャット補完APIに渡す1メッセージ。
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest はチャット補完リクエスト。
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream,omitempty"`
}

// chatResponse はチャット補完レスポンス（非ストリーミング）。
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// streamChunk はSSEストリームの1チャンク。
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// StreamCallback はストリーミング応答の各チャンクごとに呼ばれる。
// エラーを返すとストリームの読み取りを中断する。
type StreamCallback func(chunk string) error

// Client はLLM APIクライアントのインターフェース。
type Client interface {
	// Complete はチャット補完を実行し、応答本文を返す。
	Complete(ctx context.Context, req *ChatRequest) (string, error)
	// CompleteStream はストリーミングでチャット補完を実行する。
	// チャンクごとにcallbackを呼び、全文を結合して返す。
	CompleteStream(ctx context.Context, req *ChatRequest, callback StreamCallback) (string, error)
}

// HTTPClient はOpenAI互換エンドポイントへのHTTP実装。
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPClient はHTTPClientを生成する。
// baseURLは /v1 までを含むエンドポイント（例: https://api.openai.com/v1）。
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Complete はチャット補完を実行し、応答本文を返す。
func (c *HTTPClient) Complete(ctx context.Context, req *ChatRequest) (string, error) {
	req.Stream = false

	resp, err := c.post(ctx, req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read completion response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("completion failed with status %d: %s", resp.StatusCode, string(body))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse completion response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("completion response contains no choices")
	}

	return parsed.Choices[0].Message.Content, nil
}

// CompleteStream はストリーミングでチャット補完を実行する。
// SSE形式（data: {...}）のチャンクを逐次デコードしてcallbackに渡す。
func (c *HTTPClient) CompleteStream(ctx context.Context, req *ChatRequest, callback StreamCallback) (string, error) {
	req.Stream = true

	resp, err := c.post(ctx, req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("completion failed with status %d: %s", resp.StatusCode, string(body))
	}

	var full strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	// 長い行に備えてバッファを拡張する
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}

		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			break
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			slog.Warn("skipping malformed stream chunk",
				slog.String("error", err.Error()),
			)
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		content := chunk.Choices[0].Delta.Content
		if content == "" {
			continue
		}

		full.WriteString(content)
		if err := callback(content); err != nil {
			return full.String(), fmt.Errorf("stream callback aborted: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return full.String(), fmt.Errorf("failed to read completion stream: %w", err)
	}

	return full.String(), nil
}

// post はチャット補完エンドポイントにリクエストを送信する。
func (c *HTTPClient) post(ctx context.Context, req *ChatRequest) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal completion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("completion request failed: %w", err)
	}
	return resp, nil
}

// compile-time interface check
var _ Client = (*HTTPClient)(nil)
