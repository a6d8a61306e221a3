package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/Daison12121/tilda-backend/internal/auth"
	"github.com/Daison12121/tilda-backend/internal/metrics"
	"github.com/Daison12121/tilda-backend/internal/middleware"
	"github.com/Daison12121/tilda-backend/internal/model"
)

// writeAPIErrorResponse は統一エラーフォーマットでレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, statusCode, apiErr)
}

// handleAuthError はauthパッケージから返されたエラーを適切なHTTPステータスコードに変換する。
// サーバー側の失敗は詳細をログに記録し、レスポンスには一般的なメッセージのみを返す。
func handleAuthError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	apiErr, statusCode := mapAuthError(err)
	if statusCode >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "auth operation failed",
			slog.String("kind", auth.KindOf(err).String()),
			slog.String("error", err.Error()),
		)
	}
	writeAPIErrorResponse(w, statusCode, apiErr)
}

// mapAuthError はエラー種別からAPIErrorとHTTPステータスコードにマッピングする。
func mapAuthError(err error) (*model.APIError, int) {
	switch auth.KindOf(err) {
	case auth.KindUserNotFound:
		return model.NewUserNotFoundError(), http.StatusUnauthorized
	case auth.KindInvalidToken:
		return model.NewInvalidTokenError(), http.StatusUnauthorized
	case auth.KindExpired:
		return model.NewTokenExpiredError(), http.StatusUnauthorized
	case auth.KindStoreReadFailed, auth.KindStoreWriteFailed:
		return model.NewStoreUnavailableError(), http.StatusBadGateway
	case auth.KindTimeout:
		return model.NewStoreTimeoutError(), http.StatusGatewayTimeout
	default:
		return model.NewInternalError(), http.StatusInternalServerError
	}
}

// outcomeLabel は認証操作の結果をメトリクスのラベル値に変換する。
func outcomeLabel(err error) string {
	if err == nil {
		return metrics.OutcomeOK
	}
	if kind := auth.KindOf(err); kind != 0 {
		return kind.String()
	}
	return "internal"
}

// nopMetrics はメトリクスが設定されていない場合に使う何もしない実装。
type nopMetrics struct{}

func (nopMetrics) RecordTokenIssued()                                 {}
func (nopMetrics) RecordAuthOutcome(string, string)                   {}
func (nopMetrics) RecordTokensPruned(int64)                           {}
func (nopMetrics) RecordHTTPStatus(int)                               {}
func (nopMetrics) ObserveStoreOp(string, string, time.Duration, error) {}

var _ metrics.MetricsCollector = nopMetrics{}
