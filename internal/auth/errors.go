package auth

import (
	"context"
	"errors"
	"fmt"
)

// Kind はコアが返すエラーの種別。閉じた集合として扱い、これ以外の種別は返さない。
type Kind int

const (
	// KindUserNotFound は指定メールアドレスのユーザーが存在しないことを示す。
	KindUserNotFound Kind = iota + 1
	// KindInvalidToken はトークンが存在しない、または紐付くユーザーが存在しないことを示す。
	KindInvalidToken
	// KindExpired はトークンの有効期限が切れていることを示す。
	KindExpired
	// KindStoreWriteFailed はレコードストアへの書き込み失敗を示す。
	KindStoreWriteFailed
	// KindStoreReadFailed はレコードストアからの読み取り失敗を示す。
	KindStoreReadFailed
	// KindTimeout は操作がタイムアウトしたことを示す。
	KindTimeout
)

// String は種別名を返す。
func (k Kind) String() string {
	switch k {
	case KindUserNotFound:
		return "user not found"
	case KindInvalidToken:
		return "invalid token"
	case KindExpired:
		return "token expired"
	case KindStoreWriteFailed:
		return "store write failed"
	case KindStoreReadFailed:
		return "store read failed"
	case KindTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error はコアの操作が返すエラー。
// Errにはレコードストアが返した元のエラーを保持する。
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// Error はerrorインターフェースを実装する。
func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap は元のエラーを返す。
func (e *Error) Unwrap() error {
	return e.Err
}

// Is は種別が一致する場合にtrueを返す。
// errors.Is(err, ErrExpired) のように種別のセンチネルと比較できる。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Err == nil
}

// 種別ごとのセンチネル。errors.Isでの比較に使用する。
var (
	ErrUserNotFound     = &Error{Kind: KindUserNotFound}
	ErrInvalidToken     = &Error{Kind: KindInvalidToken}
	ErrExpired          = &Error{Kind: KindExpired}
	ErrStoreWriteFailed = &Error{Kind: KindStoreWriteFailed}
	ErrStoreReadFailed  = &Error{Kind: KindStoreReadFailed}
	ErrTimeout          = &Error{Kind: KindTimeout}
)

// KindOf はerrの種別を返す。コアのエラーでない場合は0を返す。
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsAuthFailure は認証失敗（UserNotFound / InvalidToken / Expired）かどうかを返す。
// Web層はこれらを認証エラーとして応答する。
func IsAuthFailure(err error) bool {
	switch KindOf(err) {
	case KindUserNotFound, KindInvalidToken, KindExpired:
		return true
	}
	return false
}

// IsServerError はサーバー側の失敗（StoreWriteFailed / StoreReadFailed / Timeout）かどうかを返す。
func IsServerError(err error) bool {
	switch KindOf(err) {
	case KindStoreWriteFailed, KindStoreReadFailed, KindTimeout:
		return true
	}
	return false
}

func newError(op string, kind Kind, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// storeError はレコードストアのエラーをkindで包む。
// 操作のデッドラインを超過していた場合はストアの報告内容にかかわらずKindTimeoutとする。
func storeError(ctx context.Context, op string, kind Kind, err error) *Error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return newError(op, KindTimeout, err)
	}
	return newError(op, kind, err)
}
