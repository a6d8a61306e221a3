package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/Daison12121/tilda-backend/internal/model"
	"github.com/Daison12121/tilda-backend/internal/repository"
)

// Credentials はユーザー解決に使う資格情報。
// TokenとEmailの両方が指定された場合はTokenを優先する。
type Credentials struct {
	Token string
	Email string
}

// SessionLookup はトークンまたはメールアドレスからユーザーを解決する。
type SessionLookup struct {
	store     repository.RecordStore
	validator *Validator
	config    Config
}

// NewSessionLookup はSessionLookupを生成する。
func NewSessionLookup(store repository.RecordStore, config Config) *SessionLookup {
	config = config.withDefaults()
	return newSessionLookup(store, NewValidator(store, config), config)
}

func newSessionLookup(store repository.RecordStore, validator *Validator, config Config) *SessionLookup {
	return &SessionLookup{store: store, validator: validator, config: config}
}

// Resolve は資格情報からユーザーを解決する。
//
// トークンが指定された場合はトークンを検証し、紐付くメールアドレスのユーザーを返す。
// この経路でユーザーが既に存在しない場合はKindInvalidTokenを返し、
// 「トークンは有効だがユーザーがいない」ことを呼び出し側に区別させない。
//
// メールアドレスのみが指定された場合は認証なしでユーザーを返す。
// メールアドレスを知っていれば誰でもプロフィールを取得できる弱い信頼モデルであり、
// Config.AllowEmailLookupがfalseの場合はKindInvalidTokenで拒否する。
func (l *SessionLookup) Resolve(ctx context.Context, creds Credentials) (*model.User, error) {
	const op = "resolve user"

	ctx, cancel := l.config.withTimeout(ctx)
	defer cancel()

	token := strings.TrimSpace(creds.Token)
	email := strings.TrimSpace(creds.Email)

	switch {
	case token != "":
		boundEmail, err := l.validator.validate(ctx, op, token)
		if err != nil {
			return nil, err
		}
		user, err := findUserByEmail(ctx, l.store, boundEmail)
		if err != nil {
			return nil, storeError(ctx, op, KindStoreReadFailed, err)
		}
		if user == nil {
			return nil, newError(op, KindInvalidToken, nil)
		}
		return user, nil

	case email != "":
		if !l.config.AllowEmailLookup {
			return nil, newError(op, KindInvalidToken, fmt.Errorf("lookup by email is disabled"))
		}
		user, err := findUserByEmail(ctx, l.store, email)
		if err != nil {
			return nil, storeError(ctx, op, KindStoreReadFailed, err)
		}
		if user == nil {
			return nil, newError(op, KindUserNotFound, nil)
		}
		return user, nil

	default:
		return nil, newError(op, KindInvalidToken, fmt.Errorf("no credentials"))
	}
}
