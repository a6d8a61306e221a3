package auth

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Daison12121/tilda-backend/internal/model"
	"github.com/Daison12121/tilda-backend/internal/repository"
)

// findUserByEmail はusersテーブルからemailのユーザーを取得する。見つからない場合はnilを返す。
func findUserByEmail(ctx context.Context, store repository.RecordStore, email string) (*model.User, error) {
	record, err := store.FindByField(ctx, repository.TableUsers, "email", email)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, nil
	}
	return userFromRecord(record), nil
}

// userFromRecord はusersレコードをUserに変換する。
// usersテーブルは外部で管理されるため、idがUUIDでない場合やcreated_atが読めない場合はゼロ値のままにする。
func userFromRecord(r repository.Record) *model.User {
	user := &model.User{
		Email: r.String("email"),
		Name:  r.String("name"),
		Phone: r.String("phone"),
	}
	if id, err := uuid.Parse(r.String("id")); err == nil {
		user.ID = id
	}
	if createdAt, ok, err := r.Time("created_at"); err == nil && ok {
		user.CreatedAt = createdAt
	}
	return user
}

// tokenRecord はTokenをtokensレコードに変換する。
func tokenRecord(t *model.Token) repository.Record {
	return repository.Record{
		"token":      t.Token,
		"email":      t.Email,
		"expires_at": t.ExpiresAt.UTC(),
	}
}

// tokenFromRecord はtokensレコードをTokenに変換する。
// expires_atが欠落または不正な場合は有効期限を判定できないためエラーを返す。
func tokenFromRecord(r repository.Record) (*model.Token, error) {
	expiresAt, ok, err := r.Time("expires_at")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("token record has no expires_at")
	}
	return &model.Token{
		Token:     r.String("token"),
		Email:     r.String("email"),
		ExpiresAt: expiresAt,
	}, nil
}
