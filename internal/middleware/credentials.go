// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"net/http"
	"strings"
)

// Tildaページ上のスクリプトが資格情報を保存するCookie名。
// localStorageにも同名のキーで保存される。
const (
	TokenCookieName = "tilda_user_token"
	EmailCookieName = "tilda_user_email"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// credentialsContextKey はリクエストコンテキストに資格情報を格納するためのキー。
var credentialsContextKey = contextKey("credentials")

// CredentialKind は資格情報の種別。
type CredentialKind string

const (
	// CredentialToken はセッショントークン。
	CredentialToken CredentialKind = "token"
	// CredentialEmail はメールアドレス。
	CredentialEmail CredentialKind = "email"
)

// CredentialSource はリクエストから資格情報を1つ取り出す名前付きの取得元。
type CredentialSource struct {
	// Name はログに出力する取得元の名前（例: "cookie:tilda_user_token"）。
	Name string
	// Kind は取り出す資格情報の種別。
	Kind    CredentialKind
	extract func(r *http.Request) string
}

// Extract はリクエストから値を取り出す。見つからない場合は空文字列を返す。
func (s CredentialSource) Extract(r *http.Request) string {
	if s.extract == nil {
		return ""
	}
	return strings.TrimSpace(s.extract(r))
}

// QuerySource はクエリパラメータparamから値を取り出す取得元を返す。
func QuerySource(kind CredentialKind, param string) CredentialSource {
	return CredentialSource{
		Name: "query:" + param,
		Kind: kind,
		extract: func(r *http.Request) string {
			return r.URL.Query().Get(param)
		},
	}
}

// CookieSource はCookie nameから値を取り出す取得元を返す。
func CookieSource(kind CredentialKind, name string) CredentialSource {
	return CredentialSource{
		Name: "cookie:" + name,
		Kind: kind,
		extract: func(r *http.Request) string {
			c, err := r.Cookie(name)
			if err != nil {
				return ""
			}
			return c.Value
		},
	}
}

// BearerSource はAuthorizationヘッダーのBearerトークンを取り出す取得元を返す。
func BearerSource() CredentialSource {
	return CredentialSource{
		Name: "header:authorization",
		Kind: CredentialToken,
		extract: func(r *http.Request) string {
			scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") {
				return ""
			}
			return token
		},
	}
}

// DefaultCredentialSources はTildaページのスクリプトが使う取得元を優先順に返す。
//
//  1. クエリパラメータ token
//  2. Authorization: Bearer
//  3. Cookie tilda_user_token
//  4. クエリパラメータ email
//  5. Cookie tilda_user_email
func DefaultCredentialSources() []CredentialSource {
	return []CredentialSource{
		QuerySource(CredentialToken, "token"),
		BearerSource(),
		CookieSource(CredentialToken, TokenCookieName),
		QuerySource(CredentialEmail, "email"),
		CookieSource(CredentialEmail, EmailCookieName),
	}
}

// Credentials はリクエストから取り出した資格情報と、その取得元の名前。
type Credentials struct {
	Token       string
	TokenSource string
	Email       string
	EmailSource string
}

// Empty はトークンもメールアドレスも取り出せなかった場合にtrueを返す。
func (c Credentials) Empty() bool {
	return c.Token == "" && c.Email == ""
}

// ExtractCredentials はsourcesを先頭から順に評価し、種別ごとに最初に見つかった値を返す。
func ExtractCredentials(r *http.Request, sources []CredentialSource) Credentials {
	var creds Credentials
	for _, src := range sources {
		switch src.Kind {
		case CredentialToken:
			if creds.Token != "" {
				continue
			}
			if v := src.Extract(r); v != "" {
				creds.Token = v
				creds.TokenSource = src.Name
			}
		case CredentialEmail:
			if creds.Email != "" {
				continue
			}
			if v := src.Extract(r); v != "" {
				creds.Email = v
				creds.EmailSource = src.Name
			}
		}
	}
	return creds
}

// NewCredentialsMiddleware はsourcesから資格情報を取り出し、リクエストコンテキストに注入するミドルウェアを返す。
// 資格情報の検証は行わない。検証はハンドラーがauthパッケージに委譲する。
func NewCredentialsMiddleware(sources []CredentialSource) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			creds := ExtractCredentials(r, sources)
			next.ServeHTTP(w, r.WithContext(ContextWithCredentials(r.Context(), creds)))
		})
	}
}

// CredentialsFromContext はリクエストコンテキストから資格情報を取得する。
// 資格情報ミドルウェアを通過していない場合はfalseを返す。
func CredentialsFromContext(ctx context.Context) (Credentials, bool) {
	creds, ok := ctx.Value(credentialsContextKey).(Credentials)
	return creds, ok
}

// ContextWithCredentials はコンテキストに資格情報を注入する。
func ContextWithCredentials(ctx context.Context, creds Credentials) context.Context {
	return context.WithValue(ctx, credentialsContextKey, creds)
}
