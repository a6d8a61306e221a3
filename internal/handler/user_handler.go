package handler

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Daison12121/tilda-backend/internal/auth"
	"github.com/Daison12121/tilda-backend/internal/metrics"
	"github.com/Daison12121/tilda-backend/internal/middleware"
	"github.com/Daison12121/tilda-backend/internal/model"
	"github.com/Daison12121/tilda-backend/internal/security"
)

// UserHandler はメールアドレスによる未認証のユーザー参照のHTTPハンドラー。
// メールアドレスを知っていれば誰でもプロフィールを取得できるため、
// AuthService.EmailLookupAllowedがfalseの場合は404を返す。
type UserHandler struct {
	service   AuthService
	sanitizer security.ProfileSanitizer
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service AuthService, sanitizer security.ProfileSanitizer, collector metrics.MetricsCollector, logger *slog.Logger) *UserHandler {
	if collector == nil {
		collector = nopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &UserHandler{
		service:   service,
		sanitizer: sanitizer,
		metrics:   collector,
		logger:    logger,
	}
}

// LookupByQuery はクエリパラメータのメールアドレスでユーザーを返す。
// GET /user?email=
func (h *UserHandler) LookupByQuery(w http.ResponseWriter, r *http.Request) {
	h.lookup(w, r, r.URL.Query().Get("email"))
}

// LookupByPath はパスのメールアドレスでユーザーを返す。
// GET /user/{email}
func (h *UserHandler) LookupByPath(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	if unescaped, err := url.PathUnescape(email); err == nil {
		email = unescaped
	}
	h.lookup(w, r, email)
}

func (h *UserHandler) lookup(w http.ResponseWriter, r *http.Request, email string) {
	if !h.service.EmailLookupAllowed() {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewEmailLookupDisabledError())
		return
	}

	email = strings.TrimSpace(email)
	if email == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewEmailRequiredError())
		return
	}

	middleware.AddRequestAttrs(r.Context(), slog.String("credential_source", "lookup:email"))

	user, err := h.service.ResolveUser(r.Context(), auth.Credentials{Email: email})
	h.metrics.RecordAuthOutcome("lookup", outcomeLabel(err))
	if err != nil {
		// 未登録のメールアドレスは参照APIとして404で応答する
		if auth.KindOf(err) == auth.KindUserNotFound {
			writeAPIErrorResponse(w, http.StatusNotFound, model.NewUserNotFoundError())
			return
		}
		handleAuthError(w, r, h.logger, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, userResponse{Data: h.sanitizer.SanitizeUser(user)})
}
