package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/Daison12121/tilda-backend/internal/auth"
	"github.com/Daison12121/tilda-backend/internal/model"
	"github.com/Daison12121/tilda-backend/internal/security"
)

func newTestUserRouter(svc AuthService, m *recordingMetrics) http.Handler {
	h := NewUserHandler(svc, security.NewProfileSanitizer(), m, nil)
	r := chi.NewRouter()
	r.Get("/user", h.LookupByQuery)
	r.Get("/user/{email}", h.LookupByPath)
	return r
}

func TestUserHandler_Lookup_ReturnsUser(t *testing.T) {
	tests := []struct {
		name   string
		target string
	}{
		{"query", "/user?email=alice%40example.com"},
		{"path", "/user/alice@example.com"},
		{"escaped path", "/user/alice%40example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resolvedWith auth.Credentials
			svc := &mockAuthService{
				emailLookup: true,
				resolveUserFn: func(ctx context.Context, creds auth.Credentials) (*model.User, error) {
					resolvedWith = creds
					return testUser(), nil
				},
			}
			m := &recordingMetrics{}

			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			w := httptest.NewRecorder()

			newTestUserRouter(svc, m).ServeHTTP(w, req)

			resp := w.Result()
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
			}
			if resolvedWith.Email != "alice@example.com" || resolvedWith.Token != "" {
				t.Errorf("resolved with %+v, want email only", resolvedWith)
			}

			var body struct {
				Data *model.User `json:"data"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode: %v", err)
			}
			if body.Data == nil || body.Data.Email != "alice@example.com" {
				t.Errorf("data = %+v", body.Data)
			}
			if len(m.outcomes) != 1 || m.outcomes[0] != "lookup/ok" {
				t.Errorf("outcomes = %v, want [lookup/ok]", m.outcomes)
			}
		})
	}
}

func TestUserHandler_Lookup_EmptyEmail_ReturnsBadRequest(t *testing.T) {
	svc := &mockAuthService{emailLookup: true}

	req := httptest.NewRequest(http.MethodGet, "/user", nil)
	w := httptest.NewRecorder()

	newTestUserRouter(svc, &recordingMetrics{}).ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
	if body := decodeError(t, resp); body.Code != model.ErrCodeEmailRequired {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeEmailRequired)
	}
}

func TestUserHandler_Lookup_UnknownEmail_ReturnsNotFound(t *testing.T) {
	svc := &mockAuthService{
		emailLookup: true,
		resolveUserFn: func(ctx context.Context, creds auth.Credentials) (*model.User, error) {
			return nil, authErr(auth.KindUserNotFound)
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/user?email=ghost%40example.com", nil)
	w := httptest.NewRecorder()

	newTestUserRouter(svc, &recordingMetrics{}).ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
	if body := decodeError(t, resp); body.Code != model.ErrCodeUserNotFound {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeUserNotFound)
	}
}

func TestUserHandler_Lookup_Disabled_ReturnsNotFound(t *testing.T) {
	called := false
	svc := &mockAuthService{
		emailLookup: false,
		resolveUserFn: func(ctx context.Context, creds auth.Credentials) (*model.User, error) {
			called = true
			return testUser(), nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/user?email=alice%40example.com", nil)
	w := httptest.NewRecorder()

	newTestUserRouter(svc, &recordingMetrics{}).ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
	if body := decodeError(t, resp); body.Code != model.ErrCodeEmailLookupOff {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeEmailLookupOff)
	}
	if called {
		t.Error("ResolveUser should not be called when lookup is disabled")
	}
}

func TestUserHandler_Lookup_StoreFailure_ReturnsBadGateway(t *testing.T) {
	svc := &mockAuthService{
		emailLookup: true,
		resolveUserFn: func(ctx context.Context, creds auth.Credentials) (*model.User, error) {
			return nil, authErr(auth.KindStoreReadFailed)
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/user?email=alice%40example.com", nil)
	w := httptest.NewRecorder()

	newTestUserRouter(svc, &recordingMetrics{}).ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusBadGateway)
	}
}
