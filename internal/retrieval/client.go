// Package retrieval は外部ベクトルストアサービスへの検索クライアントを提供する。
// 検索・埋め込み・インデックス管理は外部サービスの責務であり、
// このパッケージは問い合わせ結果の文書本文のみを扱う。
package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Retriever は関連文書検索のインターフェース。
type Retriever interface {
	// Retrieve はクエリに関連する文書本文を関連度順に返す。
	Retrieve(ctx context.Context, query string) ([]string, error)
}

// queryRequest は検索リクエストのボディ。
type queryRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

// queryResponse は検索レスポンスのボディ。
type queryResponse struct {
	Documents []struct {
		Content string `json:"content"`
	} `json:"documents"`
}

// HTTPRetriever は外部検索サービスへのHTTP実装。
type HTTPRetriever struct {
	baseURL    string
	topK       int
	httpClient *http.Client
}

// NewHTTPRetriever はHTTPRetrieverを生成する。
func NewHTTPRetriever(baseURL string, topK int, timeout time.Duration) *HTTPRetriever {
	return &HTTPRetriever{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		topK:    topK,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Retrieve はクエリに関連する文書本文を関連度順に返す。
func (r *HTTPRetriever) Retrieve(ctx context.Context, query string) ([]string, error) {
	body, err := json.Marshal(queryRequest{Query: query, TopK: r.topK})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal retrieval request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/query", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create retrieval request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("retrieval request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read retrieval response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("retrieval failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed queryResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse retrieval response: %w", err)
	}

	docs := make([]string, 0, len(parsed.Documents))
	for _, doc := range parsed.Documents {
		if doc.Content != "" {
			docs = append(docs, doc.Content)
		}
	}
	return docs, nil
}

// NopRetriever は検索サービスが未設定の場合に使う無効化実装。
// 常に空の文書リストを返す。
type NopRetriever struct{}

// Retrieve は常に空の文書リストを返す。
func (NopRetriever) Retrieve(ctx context.Context, query string) ([]string, error) {
	return nil, nil
}

// compile-time interface checks
var _ Retriever = (*HTTPRetriever)(nil)
var _ Retriever = NopRetriever{}
