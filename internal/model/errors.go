package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeInvalidToken       = "INVALID_TOKEN"
	ErrCodeTokenExpired       = "TOKEN_EXPIRED"
	ErrCodeStoreUnavailable   = "STORE_UNAVAILABLE"
	ErrCodeStoreTimeout       = "STORE_TIMEOUT"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeEmailRequired      = "EMAIL_REQUIRED"
	ErrCodeEmailLookupOff     = "EMAIL_LOOKUP_DISABLED"
	ErrCodeInternal           = "INTERNAL_ERROR"
	ErrCodeMissingCredentials = "MISSING_CREDENTIALS"
)

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "User not found",
		Category: "auth",
		Action:   "Check the email address or register first.",
	}
}

// NewInvalidTokenError はトークンが無効な場合のエラーを生成する。
func NewInvalidTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidToken,
		Message:  "Invalid token",
		Category: "auth",
		Action:   "Log in again to obtain a new token.",
	}
}

// NewTokenExpiredError はトークンの有効期限切れエラーを生成する。
func NewTokenExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeTokenExpired,
		Message:  "Token expired",
		Category: "auth",
		Action:   "Log in again to obtain a new token.",
	}
}

// NewMissingCredentialsError はトークンもメールアドレスも指定されていない場合のエラーを生成する。
func NewMissingCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingCredentials,
		Message:  "token or email is required",
		Category: "auth",
		Action:   "Log in to obtain a token.",
	}
}

// NewEmailRequiredError はemailパラメータが空の場合のエラーを生成する。
func NewEmailRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailRequired,
		Message:  "email is required",
		Category: "validation",
		Action:   "Pass the email address as a query parameter.",
	}
}

// NewInvalidRequestError はリクエストボディが不正な場合のエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("invalid request: %s", reason),
		Category: "validation",
		Action:   "Send a JSON body with the required fields.",
	}
}

// NewEmailLookupDisabledError はメールアドレスによる未認証参照が無効化されている場合のエラーを生成する。
func NewEmailLookupDisabledError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailLookupOff,
		Message:  "lookup by email is disabled",
		Category: "auth",
		Action:   "Use a session token instead.",
	}
}

// NewStoreUnavailableError はレコードストアの読み書きに失敗した場合のエラーを生成する。
// 詳細はログのみに記録し、レスポンスには含めない。
func NewStoreUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeStoreUnavailable,
		Message:  "The record store is unavailable.",
		Category: "system",
		Action:   "Please try again later.",
	}
}

// NewStoreTimeoutError はレコードストアの応答がタイムアウトした場合のエラーを生成する。
func NewStoreTimeoutError() *APIError {
	return &APIError{
		Code:     ErrCodeStoreTimeout,
		Message:  "The record store did not respond in time.",
		Category: "system",
		Action:   "Please try again later.",
	}
}

// NewInternalError は内部エラーを生成する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "Internal server error",
		Category: "system",
		Action:   "Please try again later.",
	}
}
