// Package model はドメインモデルを定義する。
package model

import (
	"time"

	"github.com/google/uuid"
)

// User はレコードストアのusersテーブルに保持される利用者を表す。
// コアからは読み取り専用として扱う。
type User struct {
	ID        uuid.UUID `json:"id,omitempty"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Token はメールアドレスに紐付く不透明なベアラートークンを表す。
// 一度作成されたトークンは変更されず、ExpiresAtを過ぎるまで何度でも検証できる。
type Token struct {
	Token     string    `json:"token"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired はnow時点でトークンが期限切れかどうかを返す。
// ExpiresAtちょうどの時刻はまだ有効とみなす。
func (t *Token) IsExpired(now time.Time) bool {
	return t.ExpiresAt.Before(now)
}
