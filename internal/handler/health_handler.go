package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Daison12121/tilda-backend/internal/middleware"
	"github.com/Daison12121/tilda-backend/internal/repository"
)

// healthCheckTimeout はヘルスチェックでのストア疎通確認のタイムアウト。
const healthCheckTimeout = 3 * time.Second

// HealthHandler はルートとヘルスチェックのHTTPハンドラー。
type HealthHandler struct {
	checker repository.HealthChecker
	logger  *slog.Logger
}

// NewHealthHandler はHealthHandlerを生成する。
// checkerがnilの場合はストアの疎通確認を行わない。
func NewHealthHandler(checker repository.HealthChecker, logger *slog.Logger) *HealthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthHandler{checker: checker, logger: logger}
}

// Root は稼働確認用の案内文を返す。
// GET /
func (h *HealthHandler) Root(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "Server is running. Try GET /health or GET /user?email=...")
}

// Health はサーバーとレコードストアの稼働状態を返す。
// GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.checker != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := h.checker.PingContext(ctx); err != nil {
			h.logger.WarnContext(r.Context(), "health check failed", slog.String("error", err.Error()))
			middleware.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
