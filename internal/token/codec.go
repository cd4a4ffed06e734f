// Package token はアイデンティティクレームの署名付きエンコード/デコードを提供する。
// クレームはHS256署名のJWTとしてシリアライズされ、Cookieに保存される。
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jiyp/jeeves/internal/model"
)

// sessionClaims はJWTペイロードの構造を定義する。
type sessionClaims struct {
	jwt.RegisteredClaims
	Email     string `json:"email"`
	OAuthID   string `json:"oauth_id"`
	SessionID string `json:"session_id"`
}

// Codec はアイデンティティクレームのエンコード/デコードを行う。
// 同一の入力と鍵に対して決定的な出力を返す。
type Codec struct {
	key    []byte
	maxAge time.Duration

	// now はテスト用に差し替え可能な現在時刻関数。
	now func() time.Time
}

// NewCodec はCodecを生成する。
// keyは署名鍵、maxAgeは発行されるトークンの有効期間。
func NewCodec(key string, maxAge time.Duration) *Codec {
	return &Codec{
		key:    []byte(key),
		maxAge: maxAge,
		now:    time.Now,
	}
}

// Encode はクレームを署名付きトークン文字列にエンコードする。
// 有効期限はissuedAt + maxAgeとなる。
func (c *Codec) Encode(email, oauthID, sessionID string, issuedAt time.Time) (string, error) {
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(c.maxAge)),
		},
		Email:     email,
		OAuthID:   oauthID,
		SessionID: sessionID,
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(c.key)
	if err != nil {
		return "", err
	}
	return signed, nil
}

// Decode はトークン文字列を検証してクレームを復元する。
// 署名不正・ペイロード不正・期限切れのいずれの場合もクレームはnilを返す
// （fail closed: すべて「未認証」に帰着させる）。
// expiredは失敗理由が期限切れの場合にのみtrueとなり、
// 呼び出し元が保存済みクレデンシャルを破棄する契機として使う。
func (c *Codec) Decode(tokenStr string) (claim *model.Claim, expired bool) {
	if tokenStr == "" {
		return nil, false
	}

	claims := &sessionClaims{}
	parsed, err := jwt.ParseWithClaims(tokenStr, claims,
		func(t *jwt.Token) (interface{}, error) {
			return c.key, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, true
		}
		return nil, false
	}
	if !parsed.Valid {
		return nil, false
	}

	result := &model.Claim{
		Email:     claims.Email,
		OAuthID:   claims.OAuthID,
		SessionID: claims.SessionID,
	}
	if claims.IssuedAt != nil {
		result.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		result.ExpiresAt = claims.ExpiresAt.Time
	}
	return result, false
}
