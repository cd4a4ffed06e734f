// Package auth はOAuth認証フロー、アイデンティティクレームの発行を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/jiyp/jeeves/internal/model"
	"github.com/jiyp/jeeves/internal/token"
)

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	OAuthID string
	Email   string
	Name    string
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// AllowList は認証を許可するメールアドレスの静的な集合。
type AllowList interface {
	// IsAllowed はメールアドレスが許可リストに含まれるかを判定する。
	IsAllowed(email string) bool
}

// Login はログイン成立時に発行される資格情報一式を表す。
type Login struct {
	User  model.UserInfo
	Token string
	// ExpiresAt はトークン（およびCookie）の有効期限。
	ExpiresAt time.Time
}

// Service は認証に関するビジネスロジックを提供する。
// 成功時はアイデンティティクレームを署名付きトークンとして発行する。
// サーバー側にセッション状態は持たず、クレデンシャルはブラウザのCookieのみが保持する。
type Service struct {
	oauth     OAuthProvider
	codec     *token.Codec
	allowList AllowList
	maxAge    time.Duration

	now func() time.Time
}

// NewService はServiceを生成する。
func NewService(oauth OAuthProvider, codec *token.Codec, allowList AllowList, maxAge time.Duration) *Service {
	return &Service{
		oauth:     oauth,
		codec:     codec,
		allowList: allowList,
		maxAge:    maxAge,
		now:       time.Now,
	}
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// HandleCallback はOAuthコールバックを処理し、ログインを成立させる。
// 取得したメールアドレスが許可リストに含まれない場合はアクセス拒否エラーを返す。
// 拒否理由は「未知のユーザー」か「不正なコード」かを区別しない
// （ユーザー列挙攻撃の防止）。
func (s *Service) HandleCallback(ctx context.Context, code string) (*Login, error) {
	userInfo, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	if !s.allowList.IsAllowed(userInfo.Email) {
		slog.Warn("unauthorized access attempt",
			slog.String("email", userInfo.Email),
		)
		return nil, model.NewAccessDeniedError()
	}

	login, err := s.issueLogin(userInfo.Email, userInfo.OAuthID, userInfo.Name)
	if err != nil {
		return nil, err
	}

	slog.Info("user logged in",
		slog.String("email", login.User.Email),
		slog.String("session_id", login.User.SessionID),
	)
	return login, nil
}

// HandleEmailLogin はメール入力のみのログインを処理する。
// 暗号学的な本人確認を一切行わない「申告制」の認証であり、
// 発行されるクレームはVerified=falseとして区別される。
// 許可リストの判定はOAuthフローと同一。
func (s *Service) HandleEmailLogin(email string) (*Login, error) {
	if !s.allowList.IsAllowed(email) {
		slog.Warn("unauthorized email gate attempt",
			slog.String("email", email),
		)
		return nil, model.NewAccessDeniedError()
	}

	// OAuthIDを空にすることで「本人確認なし」のクレームであることを示す
	login, err := s.issueLogin(email, "", "")
	if err != nil {
		return nil, err
	}

	slog.Info("user logged in via email gate (unverified)",
		slog.String("email", login.User.Email),
		slog.String("session_id", login.User.SessionID),
	)
	return login, nil
}

// Verify はトークン文字列を検証し、認証済みユーザー情報を返す。
// クレームが無効な場合はnilを返し、期限切れの場合はexpired=trueを返す
// （呼び出し元がCookieを破棄する契機として使う）。
func (s *Service) Verify(tokenStr string) (user *model.UserInfo, expired bool) {
	claim, expired := s.codec.Decode(tokenStr)
	if claim == nil {
		return nil, expired
	}

	// トークン発行後に許可リストから外れたユーザーを遮断する
	if !s.allowList.IsAllowed(claim.Email) {
		return nil, false
	}

	return &model.UserInfo{
		Email:     claim.Email,
		OAuthID:   claim.OAuthID,
		SessionID: claim.SessionID,
		Verified:  claim.OAuthID != "",
	}, false
}

// issueLogin はセッションIDを生成し、署名付きトークンを発行する。
func (s *Service) issueLogin(email, oauthID, name string) (*Login, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	issuedAt := s.now()
	tokenStr, err := s.codec.Encode(email, oauthID, sessionID, issuedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to encode token: %w", err)
	}

	return &Login{
		User: model.UserInfo{
			Email:     email,
			OAuthID:   oauthID,
			Name:      name,
			SessionID: sessionID,
			Verified:  oauthID != "",
		},
		Token:     tokenStr,
		ExpiresAt: issuedAt.Add(s.maxAge),
	}, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
