// Package sheets はGoogle Sheets連携機能を提供する。
// values:append エンドポイントを使用した行の追記のみをサポートする。
package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
)

// defaultBaseURL はGoogle Sheets APIのベースURL。
const defaultBaseURL = "https://sheets.googleapis.com"

// Appender はスプレッドシートへの行追記のインターフェース。
type Appender interface {
	// AppendRow は指定シートの末尾に1行追記する。
	AppendRow(ctx context.Context, spreadsheetID, sheetName string, row []string) error
}

// Client はGoogle Sheets APIのクライアント。
type Client struct {
	httpClient  *http.Client
	logger      *slog.Logger
	accessToken string
	baseURL     string // テスト用にベースURLを差し替え可能
}

// コンパイル時のインターフェース実装チェック
var _ Appender = (*Client)(nil)

// NewClient はClient の新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, accessToken, baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		httpClient:  httpClient,
		logger:      logger,
		accessToken: accessToken,
		baseURL:     baseURL,
	}
}

// appendRequest は values:append リクエストのボディ。
type appendRequest struct {
	Values [][]string `json:"values"`
}

// AppendRow は指定シートの末尾に1行追記する。
// 失敗時はエラーを返す（呼び出し元が best-effort の扱いを判断する）。
func (c *Client) AppendRow(ctx context.Context, spreadsheetID, sheetName string, row []string) error {
	if spreadsheetID == "" || sheetName == "" {
		return fmt.Errorf("スプレッドシートIDとシート名は必須です")
	}

	body, err := json.Marshal(appendRequest{Values: [][]string{row}})
	if err != nil {
		return fmt.Errorf("リクエストボディの生成に失敗しました: %w", err)
	}

	// 追記範囲はシート名のみ指定し、末尾行の特定はAPI側に任せる
	endpoint := fmt.Sprintf("%s/v4/spreadsheets/%s/values/%s:append?valueInputOption=USER_ENTERED",
		c.baseURL,
		url.PathEscape(spreadsheetID),
		url.PathEscape(sheetName),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Google Sheets APIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
			slog.String("sheet_name", sheetName),
		)
		return fmt.Errorf("Google Sheets APIの呼び出しに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// エラーボディは診断ログにのみ残す
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Error("Google Sheets APIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
			slog.String("sheet_name", sheetName),
			slog.String("body", string(respBody)),
		)
		return fmt.Errorf("Google Sheets APIがステータス %d を返しました", resp.StatusCode)
	}

	return nil
}
