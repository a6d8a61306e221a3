package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type mockHealthChecker struct {
	pingFn func(ctx context.Context) error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error {
	if m.pingFn != nil {
		return m.pingFn(ctx)
	}
	return nil
}

func TestHealthHandler_Health(t *testing.T) {
	tests := []struct {
		name       string
		checker    *mockHealthChecker
		wantStatus int
		wantBody   string
	}{
		{"no checker", nil, http.StatusOK, `"status":"ok"`},
		{"store reachable", &mockHealthChecker{}, http.StatusOK, `"status":"ok"`},
		{
			"store unreachable",
			&mockHealthChecker{pingFn: func(ctx context.Context) error { return errors.New("connection refused") }},
			http.StatusServiceUnavailable,
			`"status":"unavailable"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var h *HealthHandler
			if tt.checker == nil {
				h = NewHealthHandler(nil, nil)
			} else {
				h = NewHealthHandler(tt.checker, nil)
			}

			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			w := httptest.NewRecorder()

			h.Health(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if !strings.Contains(w.Body.String(), tt.wantBody) {
				t.Errorf("body = %q, want it to contain %q", w.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestHealthHandler_Root_ReturnsHint(t *testing.T) {
	h := NewHealthHandler(nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	h.Root(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "/health") {
		t.Errorf("body = %q, want a hint mentioning /health", w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q, want text/plain", ct)
	}
}
