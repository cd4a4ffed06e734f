// Package model はドメインモデルを定義する。
package model

import "time"

// Claim は認証済みユーザーのアイデンティティクレームを表す。
// セッショントークン（JWT）のペイロードとしてシリアライズされ、
// Cookieを介してブラウザ側に保持される。
type Claim struct {
	Email     string
	OAuthID   string
	SessionID string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// UserInfo は認証済みユーザーの公開情報を表す。
// /auth/me のレスポンスおよびリクエストコンテキストに格納される。
type UserInfo struct {
	Email     string
	OAuthID   string
	Name      string
	SessionID string
	// Verified はOAuthプロバイダーによる本人確認を経たかどうかを示す。
	// メールゲート認証の場合はfalse（申告のみ、証明なし）。
	Verified bool
}

// UserContext はユーザーが申告したプロフィール文脈を表す。
// プロンプトに注入される食事制限・目標・健康状態の情報。
// 会話セッションごとに保持され、ブラウザセッションを超えて永続化はされない。
type UserContext struct {
	DietaryPreferences string
	NutritionalGoals   string
	Conditions         string
}
