package auth

import (
	"context"

	"github.com/Daison12121/tilda-backend/internal/repository"
)

// Validator はトークンを検証し、紐付くメールアドレスを解決する。
type Validator struct {
	store  repository.RecordStore
	config Config
}

// NewValidator はValidatorを生成する。
func NewValidator(store repository.RecordStore, config Config) *Validator {
	return &Validator{store: store, config: config.withDefaults()}
}

// Validate はトークンを検証し、紐付くメールアドレスを返す。
//
// トークンが存在しない場合はKindInvalidToken、期限切れの場合はKindExpiredを返す。
// 有効期限は呼び出しのたびに現在時刻と比較する。同じトークンは期限まで何度でも検証できる。
func (v *Validator) Validate(ctx context.Context, token string) (string, error) {
	ctx, cancel := v.config.withTimeout(ctx)
	defer cancel()

	return v.validate(ctx, "validate token", token)
}

// validate はタイムアウトを設定せずにトークンを検証する。
// SessionLookupから同一のタイムアウト内で呼び出すために分離している。
func (v *Validator) validate(ctx context.Context, op, token string) (string, error) {
	if token == "" {
		return "", newError(op, KindInvalidToken, nil)
	}

	record, err := v.store.FindByField(ctx, repository.TableTokens, "token", token)
	if err != nil {
		return "", storeError(ctx, op, KindStoreReadFailed, err)
	}
	if record == nil {
		return "", newError(op, KindInvalidToken, nil)
	}

	t, err := tokenFromRecord(record)
	if err != nil {
		return "", newError(op, KindStoreReadFailed, err)
	}

	if t.IsExpired(v.config.Now()) {
		return "", newError(op, KindExpired, nil)
	}

	return t.Email, nil
}
