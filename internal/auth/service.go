// Package auth はセッショントークンの発行・検証と、トークンまたはメールアドレスからの
// ユーザー解決を提供する。
//
// レコードストアにはrepository.RecordStoreのFindByFieldとInsertのみを通してアクセスする。
// このパッケージ自身はログを出力しない。診断情報の出力は呼び出し側の責務とする。
package auth

import (
	"context"
	"crypto/rand"
	"io"
	"time"

	"github.com/Daison12121/tilda-backend/internal/model"
	"github.com/Daison12121/tilda-backend/internal/repository"
)

const (
	// DefaultTokenTTL はトークンの有効期間のデフォルト値。
	DefaultTokenTTL = 24 * time.Hour
	// DefaultTimeout は1操作あたりのタイムアウトのデフォルト値。
	DefaultTimeout = 10 * time.Second
)

// Config はToken Issuer / Validator / Session Lookupの設定。
// プロセス全体のグローバル変数ではなく、各コンストラクタへ明示的に渡す。
type Config struct {
	// TokenTTL はトークンの有効期間。0以下の場合はDefaultTokenTTL。
	TokenTTL time.Duration
	// Timeout は1操作あたりのタイムアウト。0以下の場合はDefaultTimeout。
	Timeout time.Duration
	// AllowEmailLookup はメールアドレスのみによる未認証のユーザー参照を許可するかどうか。
	AllowEmailLookup bool
	// Now は現在時刻を返す。nilの場合はtime.Now。
	Now func() time.Time
	// Rand はトークン生成に使う乱数源。nilの場合はcrypto/rand.Reader。
	Rand io.Reader
}

// withDefaults は未設定の項目をデフォルト値で埋めたConfigを返す。
func (c Config) withDefaults() Config {
	if c.TokenTTL <= 0 {
		c.TokenTTL = DefaultTokenTTL
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Rand == nil {
		c.Rand = rand.Reader
	}
	return c
}

// withTimeout は操作用のタイムアウト付きコンテキストを返す。
func (c Config) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.Timeout)
}

// Service はWeb層に公開する認証サービス。
// Issuer、Validator、SessionLookupを組み合わせる。
type Service struct {
	issuer    *Issuer
	validator *Validator
	lookup    *SessionLookup
}

// NewService はServiceを生成する。
func NewService(store repository.RecordStore, config Config) *Service {
	config = config.withDefaults()
	validator := NewValidator(store, config)
	return &Service{
		issuer:    NewIssuer(store, config),
		validator: validator,
		lookup:    newSessionLookup(store, validator, config),
	}
}

// IssueToken はemailのユーザーに新しいトークンを発行する。
func (s *Service) IssueToken(ctx context.Context, email string) (*model.Token, error) {
	return s.issuer.Issue(ctx, email)
}

// ValidateToken はトークンを検証し、紐付くメールアドレスを返す。
func (s *Service) ValidateToken(ctx context.Context, token string) (string, error) {
	return s.validator.Validate(ctx, token)
}

// ResolveUser はトークンまたはメールアドレスからユーザーを解決する。
func (s *Service) ResolveUser(ctx context.Context, creds Credentials) (*model.User, error) {
	return s.lookup.Resolve(ctx, creds)
}

// EmailLookupAllowed はメールアドレスのみによる参照が許可されているかどうかを返す。
func (s *Service) EmailLookupAllowed() bool {
	return s.lookup.config.AllowEmailLookup
}
