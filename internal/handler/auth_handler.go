// Package handler はHTTPハンドラーとルーティングを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Daison12121/tilda-backend/internal/auth"
	"github.com/Daison12121/tilda-backend/internal/metrics"
	"github.com/Daison12121/tilda-backend/internal/middleware"
	"github.com/Daison12121/tilda-backend/internal/model"
	"github.com/Daison12121/tilda-backend/internal/security"
)

// maxRequestBodyBytes はJSONリクエストボディの上限。
const maxRequestBodyBytes = 1 << 16

// AuthService はハンドラー層が必要とする認証サービスのインターフェース。
// auth.Serviceが実装する。
type AuthService interface {
	// IssueToken はemailのユーザーに新しいトークンを発行する。
	IssueToken(ctx context.Context, email string) (*model.Token, error)
	// ValidateToken はトークンを検証し、紐付くメールアドレスを返す。
	ValidateToken(ctx context.Context, token string) (string, error)
	// ResolveUser はトークンまたはメールアドレスからユーザーを解決する。
	ResolveUser(ctx context.Context, creds auth.Credentials) (*model.User, error)
	// EmailLookupAllowed はメールアドレスのみによる参照が許可されているかどうかを返す。
	EmailLookupAllowed() bool
}

var _ AuthService = (*auth.Service)(nil)

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	// CabinetPath はログイン後にリダイレクトする個人ページのパス。
	CabinetPath string
	// CredentialSources はGET /api/userで資格情報を取り出す取得元の優先順リスト。
	// 空の場合はmiddleware.DefaultCredentialSources。
	CredentialSources []middleware.CredentialSource
}

// AuthHandler はトークン発行・検証・ユーザー解決のHTTPハンドラー。
type AuthHandler struct {
	service   AuthService
	sanitizer security.ProfileSanitizer
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
	config    AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
// collectorとloggerはnilでもよい。
func NewAuthHandler(service AuthService, sanitizer security.ProfileSanitizer, collector metrics.MetricsCollector, logger *slog.Logger, config AuthHandlerConfig) *AuthHandler {
	if collector == nil {
		collector = nopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if len(config.CredentialSources) == 0 {
		config.CredentialSources = middleware.DefaultCredentialSources()
	}
	return &AuthHandler{
		service:   service,
		sanitizer: sanitizer,
		metrics:   collector,
		logger:    logger,
		config:    config,
	}
}

type loginRequest struct {
	Email string `json:"email"`
}

type loginResponse struct {
	Status    string      `json:"status"`
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      *model.User `json:"user"`
	Redirect  string      `json:"redirect"`
}

type validateRequest struct {
	Token string `json:"token"`
}

type validateResponse struct {
	Email string `json:"email"`
}

type userResponse struct {
	Data *model.User `json:"data"`
}

// Login はメールアドレスに対してトークンを発行する。
// POST /api/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSONBody(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError(err.Error()))
		return
	}

	email := strings.TrimSpace(req.Email)
	if email == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewEmailRequiredError())
		return
	}

	token, err := h.service.IssueToken(r.Context(), email)
	h.metrics.RecordAuthOutcome("issue", outcomeLabel(err))
	if err != nil {
		handleAuthError(w, r, h.logger, err)
		return
	}
	h.metrics.RecordTokenIssued()

	user, err := h.service.ResolveUser(r.Context(), auth.Credentials{Token: token.Token})
	if err != nil {
		handleAuthError(w, r, h.logger, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, loginResponse{
		Status:    "success",
		Token:     token.Token,
		ExpiresAt: token.ExpiresAt.UTC(),
		User:      h.sanitizer.SanitizeUser(user),
		Redirect:  h.cabinetRedirect(token.Token),
	})
}

// ValidateToken はトークンを検証し、紐付くメールアドレスを返す。
// ボディにトークンがない場合はリクエストの資格情報からトークンを取り出す。
// POST /api/token/validate
func (h *AuthHandler) ValidateToken(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := decodeJSONBody(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError(err.Error()))
		return
	}

	token := strings.TrimSpace(req.Token)
	if token == "" {
		token = h.credentials(r).Token
	}
	if token == "" {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewMissingCredentialsError())
		return
	}

	email, err := h.service.ValidateToken(r.Context(), token)
	h.metrics.RecordAuthOutcome("validate", outcomeLabel(err))
	if err != nil {
		handleAuthError(w, r, h.logger, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, validateResponse{Email: email})
}

// CurrentUser はリクエストの資格情報からユーザーを解決して返す。
// GET /api/user
func (h *AuthHandler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	creds := h.credentials(r)
	if creds.Empty() {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewMissingCredentialsError())
		return
	}

	if creds.Token != "" {
		middleware.AddRequestAttrs(r.Context(), slog.String("credential_source", creds.TokenSource))
	} else {
		middleware.AddRequestAttrs(r.Context(), slog.String("credential_source", creds.EmailSource))
	}

	user, err := h.service.ResolveUser(r.Context(), auth.Credentials{Token: creds.Token, Email: creds.Email})
	h.metrics.RecordAuthOutcome("resolve", outcomeLabel(err))
	if err != nil {
		handleAuthError(w, r, h.logger, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, userResponse{Data: h.sanitizer.SanitizeUser(user)})
}

// credentials は資格情報ミドルウェアが注入した資格情報を返す。
// ミドルウェアを通過していない場合はリクエストから直接取り出す。
func (h *AuthHandler) credentials(r *http.Request) middleware.Credentials {
	if creds, ok := middleware.CredentialsFromContext(r.Context()); ok {
		return creds
	}
	return middleware.ExtractCredentials(r, h.config.CredentialSources)
}

// cabinetRedirect はトークン付きの個人ページのパスを返す。
func (h *AuthHandler) cabinetRedirect(token string) string {
	path := h.config.CabinetPath
	if path == "" {
		path = "/"
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "token=" + url.QueryEscape(token)
}

// decodeJSONBody はリクエストボディをvにデコードする。
// 空のボディはio.EOFを返す。
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return io.EOF
		}
		return errors.New("body must be a JSON object")
	}
	return nil
}
