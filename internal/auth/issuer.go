package auth

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/Daison12121/tilda-backend/internal/model"
	"github.com/Daison12121/tilda-backend/internal/repository"
)

// tokenBytes はトークンの乱数バイト数。16進エンコード後は64文字になる。
const tokenBytes = 32

// Issuer は既存ユーザーに対して不透明なトークンを発行し、レコードストアへ永続化する。
type Issuer struct {
	store  repository.RecordStore
	config Config
}

// NewIssuer はIssuerを生成する。
func NewIssuer(store repository.RecordStore, config Config) *Issuer {
	return &Issuer{store: store, config: config.withDefaults()}
}

// Issue はemailのユーザーに新しいトークンを発行する。
//
// ユーザーが存在しない場合はKindUserNotFoundを返す。
// トークンの永続化に失敗した場合はトークンを返さずKindStoreWriteFailedを返す。
// 永続化されていないトークンは検証に成功しえないため、失敗を握りつぶさない。
// 失敗した操作はリトライしない。
func (i *Issuer) Issue(ctx context.Context, email string) (*model.Token, error) {
	const op = "issue token"

	email = strings.TrimSpace(email)
	if email == "" {
		return nil, newError(op, KindUserNotFound, fmt.Errorf("email is required"))
	}

	ctx, cancel := i.config.withTimeout(ctx)
	defer cancel()

	user, err := findUserByEmail(ctx, i.store, email)
	if err != nil {
		return nil, storeError(ctx, op, KindStoreReadFailed, err)
	}
	if user == nil {
		return nil, newError(op, KindUserNotFound, nil)
	}

	value, err := generateToken(i.config.Rand)
	if err != nil {
		return nil, newError(op, KindStoreWriteFailed, fmt.Errorf("failed to generate token: %w", err))
	}

	token := &model.Token{
		Token:     value,
		Email:     email,
		ExpiresAt: i.config.Now().Add(i.config.TokenTTL),
	}

	if err := i.store.Insert(ctx, repository.TableTokens, tokenRecord(token)); err != nil {
		return nil, storeError(ctx, op, KindStoreWriteFailed, err)
	}

	return token, nil
}

// generateToken は暗号的に安全な乱数から64文字の16進トークンを生成する。
func generateToken(r io.Reader) (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
