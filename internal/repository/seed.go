package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrDuplicateSeedUser はシードに同じメールアドレスのユーザーが2件以上含まれる場合に返される。
var ErrDuplicateSeedUser = errors.New("duplicate seed user")

// SeedUser はシードファイルに記述するusersテーブルの1行。
type SeedUser struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	CreatedAt string `json:"created_at"`
}

// record は空でない項目だけを持つusersレコードを返す。
func (u SeedUser) record() Record {
	r := Record{"email": u.Email}
	if u.ID != "" {
		r["id"] = u.ID
	}
	if u.Name != "" {
		r["name"] = u.Name
	}
	if u.Phone != "" {
		r["phone"] = u.Phone
	}
	if u.CreatedAt != "" {
		r["created_at"] = u.CreatedAt
	}
	return r
}

// SeedUsers はrのJSON配列を読み込み、storeのusersテーブルに追加する。
// メモリストアで開発する際のユーザー投入に使う。追加した件数を返す。
// emailが空の行、既存または重複するemailの行はエラーとし、その時点までの行は追加済みのままとなる。
func SeedUsers(ctx context.Context, store RecordStore, r io.Reader) (int, error) {
	var users []SeedUser
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&users); err != nil {
		return 0, fmt.Errorf("failed to decode seed users: %w", err)
	}

	for i, u := range users {
		u.Email = strings.TrimSpace(u.Email)
		if u.Email == "" {
			return i, fmt.Errorf("seed user %d: email is required", i)
		}

		existing, err := store.FindByField(ctx, TableUsers, "email", u.Email)
		if err != nil {
			return i, fmt.Errorf("seed user %d: %w", i, err)
		}
		if existing != nil {
			return i, fmt.Errorf("seed user %d: %w: %s", i, ErrDuplicateSeedUser, u.Email)
		}

		if err := store.Insert(ctx, TableUsers, u.record()); err != nil {
			return i, fmt.Errorf("seed user %d: %w", i, err)
		}
	}

	return len(users), nil
}
