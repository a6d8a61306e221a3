package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Daison12121/tilda-backend/internal/auth"
	"github.com/Daison12121/tilda-backend/internal/middleware"
	"github.com/Daison12121/tilda-backend/internal/model"
	"github.com/Daison12121/tilda-backend/internal/security"
)

// --- モック定義 ---

type mockAuthService struct {
	issueTokenFn    func(ctx context.Context, email string) (*model.Token, error)
	validateTokenFn func(ctx context.Context, token string) (string, error)
	resolveUserFn   func(ctx context.Context, creds auth.Credentials) (*model.User, error)
	emailLookup     bool
}

func (m *mockAuthService) IssueToken(ctx context.Context, email string) (*model.Token, error) {
	if m.issueTokenFn != nil {
		return m.issueTokenFn(ctx, email)
	}
	return nil, nil
}

func (m *mockAuthService) ValidateToken(ctx context.Context, token string) (string, error) {
	if m.validateTokenFn != nil {
		return m.validateTokenFn(ctx, token)
	}
	return "", nil
}

func (m *mockAuthService) ResolveUser(ctx context.Context, creds auth.Credentials) (*model.User, error) {
	if m.resolveUserFn != nil {
		return m.resolveUserFn(ctx, creds)
	}
	return nil, nil
}

func (m *mockAuthService) EmailLookupAllowed() bool {
	return m.emailLookup
}

// recordingMetrics は呼び出されたメトリクスを記録するモック。
type recordingMetrics struct {
	nopMetrics
	mu       sync.Mutex
	issued   int
	outcomes []string
}

func (m *recordingMetrics) RecordTokenIssued() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.issued++
}

func (m *recordingMetrics) RecordAuthOutcome(op, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, op+"/"+outcome)
}

var (
	testUserID  = uuid.MustParse("7f1c6a4e-3d1b-4c52-9f0e-2a8b5c1d9e01")
	testExpires = time.Date(2025, 3, 2, 12, 0, 0, 0, time.UTC)
	testToken   = strings.Repeat("ab", 32)
)

func testUser() *model.User {
	return &model.User{
		ID:        testUserID,
		Email:     "alice@example.com",
		Name:      "Alice",
		Phone:     "+7 900 000-00-00",
		CreatedAt: time.Date(2025, 2, 27, 12, 0, 0, 0, time.UTC),
	}
}

func authErr(kind auth.Kind) error {
	return &auth.Error{Kind: kind, Op: "test"}
}

func newTestAuthHandler(svc AuthService, m *recordingMetrics, logBuf *bytes.Buffer) *AuthHandler {
	var logger *slog.Logger
	if logBuf != nil {
		logger = slog.New(slog.NewJSONHandler(logBuf, nil))
	}
	return NewAuthHandler(svc, security.NewProfileSanitizer(), m, logger, AuthHandlerConfig{
		CabinetPath: "/cabinet",
	})
}

func decodeError(t *testing.T, resp *http.Response) middleware.ErrorResponseBody {
	t.Helper()
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return body
}

// --- Login ---

func TestAuthHandler_Login_Success_ReturnsTokenUserAndRedirect(t *testing.T) {
	var issuedFor string
	var resolvedWith auth.Credentials
	svc := &mockAuthService{
		issueTokenFn: func(ctx context.Context, email string) (*model.Token, error) {
			issuedFor = email
			return &model.Token{Token: testToken, Email: email, ExpiresAt: testExpires}, nil
		},
		resolveUserFn: func(ctx context.Context, creds auth.Credentials) (*model.User, error) {
			resolvedWith = creds
			return testUser(), nil
		},
	}
	m := &recordingMetrics{}
	h := newTestAuthHandler(svc, m, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(`{"email":"  alice@example.com "}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	h.Login(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if issuedFor != "alice@example.com" {
		t.Errorf("issued for %q, want trimmed email", issuedFor)
	}
	if resolvedWith.Token != testToken || resolvedWith.Email != "" {
		t.Errorf("user resolved with %+v, want the issued token only", resolvedWith)
	}

	var body struct {
		Status    string      `json:"status"`
		Token     string      `json:"token"`
		ExpiresAt time.Time   `json:"expires_at"`
		User      *model.User `json:"user"`
		Redirect  string      `json:"redirect"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Status != "success" {
		t.Errorf("status field = %q, want %q", body.Status, "success")
	}
	if body.Token != testToken {
		t.Errorf("token = %q, want %q", body.Token, testToken)
	}
	if !body.ExpiresAt.Equal(testExpires) {
		t.Errorf("expires_at = %v, want %v", body.ExpiresAt, testExpires)
	}
	if body.User == nil || body.User.Email != "alice@example.com" {
		t.Errorf("user = %+v", body.User)
	}
	if body.Redirect != "/cabinet?token="+testToken {
		t.Errorf("redirect = %q, want %q", body.Redirect, "/cabinet?token="+testToken)
	}

	if m.issued != 1 {
		t.Errorf("tokens issued metric = %d, want 1", m.issued)
	}
	if len(m.outcomes) != 1 || m.outcomes[0] != "issue/ok" {
		t.Errorf("outcomes = %v, want [issue/ok]", m.outcomes)
	}
}

func TestAuthHandler_Login_SanitizesProfile(t *testing.T) {
	svc := &mockAuthService{
		issueTokenFn: func(ctx context.Context, email string) (*model.Token, error) {
			return &model.Token{Token: testToken, Email: email, ExpiresAt: testExpires}, nil
		},
		resolveUserFn: func(ctx context.Context, creds auth.Credentials) (*model.User, error) {
			u := testUser()
			u.Name = `<img src=x onerror=alert(1)>Alice`
			return u, nil
		},
	}
	h := newTestAuthHandler(svc, &recordingMetrics{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(`{"email":"alice@example.com"}`))
	w := httptest.NewRecorder()

	h.Login(w, req)

	if strings.Contains(w.Body.String(), "<img") || strings.Contains(w.Body.String(), "onerror") {
		t.Errorf("response must not contain markup: %s", w.Body.String())
	}
}

func TestAuthHandler_Login_BadInput_ReturnsBadRequest(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{"empty body", "", model.ErrCodeEmailRequired},
		{"missing email", `{}`, model.ErrCodeEmailRequired},
		{"blank email", `{"email":"   "}`, model.ErrCodeEmailRequired},
		{"not json", `email=alice@example.com`, model.ErrCodeInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			svc := &mockAuthService{
				issueTokenFn: func(ctx context.Context, email string) (*model.Token, error) {
					called = true
					return nil, nil
				},
			}
			h := newTestAuthHandler(svc, &recordingMetrics{}, nil)

			req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(tt.body))
			w := httptest.NewRecorder()

			h.Login(w, req)

			resp := w.Result()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
			}
			if body := decodeError(t, resp); body.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
			}
			if called {
				t.Error("IssueToken should not be called for invalid input")
			}
		})
	}
}

func TestAuthHandler_Login_ServiceErrors_MapToStatus(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantCode    string
		wantOutcome string
	}{
		{"user not found", authErr(auth.KindUserNotFound), http.StatusUnauthorized, model.ErrCodeUserNotFound, "issue/user not found"},
		{"store write failed", authErr(auth.KindStoreWriteFailed), http.StatusBadGateway, model.ErrCodeStoreUnavailable, "issue/store write failed"},
		{"store read failed", authErr(auth.KindStoreReadFailed), http.StatusBadGateway, model.ErrCodeStoreUnavailable, "issue/store read failed"},
		{"timeout", authErr(auth.KindTimeout), http.StatusGatewayTimeout, model.ErrCodeStoreTimeout, "issue/timeout"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, model.ErrCodeInternal, "issue/internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockAuthService{
				issueTokenFn: func(ctx context.Context, email string) (*model.Token, error) {
					return nil, tt.err
				},
			}
			m := &recordingMetrics{}
			h := newTestAuthHandler(svc, m, &bytes.Buffer{})

			req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(`{"email":"alice@example.com"}`))
			w := httptest.NewRecorder()

			h.Login(w, req)

			resp := w.Result()
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if body := decodeError(t, resp); body.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
			}
			if m.issued != 0 {
				t.Errorf("tokens issued metric = %d, want 0", m.issued)
			}
			if len(m.outcomes) != 1 || m.outcomes[0] != tt.wantOutcome {
				t.Errorf("outcomes = %v, want [%s]", m.outcomes, tt.wantOutcome)
			}
		})
	}
}

func TestAuthHandler_Login_StoreFailure_LogsDetailsButHidesThem(t *testing.T) {
	storeErr := &auth.Error{Kind: auth.KindStoreWriteFailed, Op: "issue token", Err: errors.New("permission denied for table tokens")}
	svc := &mockAuthService{
		issueTokenFn: func(ctx context.Context, email string) (*model.Token, error) {
			return nil, storeErr
		},
	}
	var logBuf bytes.Buffer
	h := newTestAuthHandler(svc, &recordingMetrics{}, &logBuf)

	req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(`{"email":"alice@example.com"}`))
	w := httptest.NewRecorder()

	h.Login(w, req)

	if strings.Contains(w.Body.String(), "permission denied") {
		t.Errorf("response must not leak store details: %s", w.Body.String())
	}
	if !strings.Contains(logBuf.String(), "permission denied for table tokens") {
		t.Errorf("log should contain store details, got: %s", logBuf.String())
	}
}

// --- ValidateToken ---

func TestAuthHandler_ValidateToken_Success_ReturnsEmail(t *testing.T) {
	var validated string
	svc := &mockAuthService{
		validateTokenFn: func(ctx context.Context, token string) (string, error) {
			validated = token
			return "alice@example.com", nil
		},
	}
	m := &recordingMetrics{}
	h := newTestAuthHandler(svc, m, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/token/validate", strings.NewReader(`{"token":"`+testToken+`"}`))
	w := httptest.NewRecorder()

	h.ValidateToken(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if validated != testToken {
		t.Errorf("validated %q, want %q", validated, testToken)
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body["email"] != "alice@example.com" {
		t.Errorf("email = %q, want %q", body["email"], "alice@example.com")
	}
	if len(m.outcomes) != 1 || m.outcomes[0] != "validate/ok" {
		t.Errorf("outcomes = %v, want [validate/ok]", m.outcomes)
	}
}

func TestAuthHandler_ValidateToken_FallsBackToRequestCredentials(t *testing.T) {
	var validated string
	svc := &mockAuthService{
		validateTokenFn: func(ctx context.Context, token string) (string, error) {
			validated = token
			return "alice@example.com", nil
		},
	}
	h := newTestAuthHandler(svc, &recordingMetrics{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/token/validate", nil)
	req.Header.Set("Authorization", "Bearer header-token")
	w := httptest.NewRecorder()

	h.ValidateToken(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
	if validated != "header-token" {
		t.Errorf("validated %q, want %q", validated, "header-token")
	}
}

func TestAuthHandler_ValidateToken_NoToken_ReturnsUnauthorized(t *testing.T) {
	h := newTestAuthHandler(&mockAuthService{}, &recordingMetrics{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/token/validate", strings.NewReader(`{"token":""}`))
	w := httptest.NewRecorder()

	h.ValidateToken(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
	if body := decodeError(t, resp); body.Code != model.ErrCodeMissingCredentials {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeMissingCredentials)
	}
}

func TestAuthHandler_ValidateToken_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"expired", authErr(auth.KindExpired), http.StatusUnauthorized, model.ErrCodeTokenExpired},
		{"invalid", authErr(auth.KindInvalidToken), http.StatusUnauthorized, model.ErrCodeInvalidToken},
		{"store read failed", authErr(auth.KindStoreReadFailed), http.StatusBadGateway, model.ErrCodeStoreUnavailable},
		{"timeout", authErr(auth.KindTimeout), http.StatusGatewayTimeout, model.ErrCodeStoreTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockAuthService{
				validateTokenFn: func(ctx context.Context, token string) (string, error) {
					return "", tt.err
				},
			}
			h := newTestAuthHandler(svc, &recordingMetrics{}, &bytes.Buffer{})

			req := httptest.NewRequest(http.MethodPost, "/api/token/validate", strings.NewReader(`{"token":"abc"}`))
			w := httptest.NewRecorder()

			h.ValidateToken(w, req)

			resp := w.Result()
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if body := decodeError(t, resp); body.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
			}
		})
	}
}

// --- CurrentUser ---

func TestAuthHandler_CurrentUser_TokenFromCookie_ReturnsUser(t *testing.T) {
	var resolvedWith auth.Credentials
	svc := &mockAuthService{
		resolveUserFn: func(ctx context.Context, creds auth.Credentials) (*model.User, error) {
			resolvedWith = creds
			return testUser(), nil
		},
	}
	m := &recordingMetrics{}
	h := newTestAuthHandler(svc, m, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/user", nil)
	req.AddCookie(&http.Cookie{Name: middleware.TokenCookieName, Value: testToken})
	w := httptest.NewRecorder()

	h.CurrentUser(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if resolvedWith.Token != testToken {
		t.Errorf("resolved with token %q, want %q", resolvedWith.Token, testToken)
	}

	var body struct {
		Data *model.User `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.Data == nil {
		t.Fatal("expected data in response")
	}
	if body.Data.ID != testUserID {
		t.Errorf("id = %v, want %v", body.Data.ID, testUserID)
	}
	if body.Data.Name != "Alice" {
		t.Errorf("name = %q, want %q", body.Data.Name, "Alice")
	}
	if len(m.outcomes) != 1 || m.outcomes[0] != "resolve/ok" {
		t.Errorf("outcomes = %v, want [resolve/ok]", m.outcomes)
	}
}

func TestAuthHandler_CurrentUser_PassesBothCredentials(t *testing.T) {
	var resolvedWith auth.Credentials
	svc := &mockAuthService{
		resolveUserFn: func(ctx context.Context, creds auth.Credentials) (*model.User, error) {
			resolvedWith = creds
			return testUser(), nil
		},
	}
	h := newTestAuthHandler(svc, &recordingMetrics{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/user?token=q-token&email=alice%40example.com", nil)
	w := httptest.NewRecorder()

	h.CurrentUser(w, req)

	if resolvedWith.Token != "q-token" || resolvedWith.Email != "alice@example.com" {
		t.Errorf("resolved with %+v", resolvedWith)
	}
}

func TestAuthHandler_CurrentUser_UsesContextCredentials(t *testing.T) {
	var resolvedWith auth.Credentials
	svc := &mockAuthService{
		resolveUserFn: func(ctx context.Context, creds auth.Credentials) (*model.User, error) {
			resolvedWith = creds
			return testUser(), nil
		},
	}
	h := newTestAuthHandler(svc, &recordingMetrics{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/user?token=ignored", nil)
	req = req.WithContext(middleware.ContextWithCredentials(req.Context(), middleware.Credentials{
		Token:       "from-context",
		TokenSource: "cookie:" + middleware.TokenCookieName,
	}))
	w := httptest.NewRecorder()

	h.CurrentUser(w, req)

	if resolvedWith.Token != "from-context" {
		t.Errorf("resolved with token %q, want %q", resolvedWith.Token, "from-context")
	}
}

func TestAuthHandler_CurrentUser_NoCredentials_ReturnsUnauthorized(t *testing.T) {
	called := false
	svc := &mockAuthService{
		resolveUserFn: func(ctx context.Context, creds auth.Credentials) (*model.User, error) {
			called = true
			return nil, nil
		},
	}
	h := newTestAuthHandler(svc, &recordingMetrics{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/user", nil)
	w := httptest.NewRecorder()

	h.CurrentUser(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
	if body := decodeError(t, resp); body.Code != model.ErrCodeMissingCredentials {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeMissingCredentials)
	}
	if called {
		t.Error("ResolveUser should not be called without credentials")
	}
}

func TestAuthHandler_CurrentUser_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"expired", authErr(auth.KindExpired), http.StatusUnauthorized, model.ErrCodeTokenExpired},
		{"invalid", authErr(auth.KindInvalidToken), http.StatusUnauthorized, model.ErrCodeInvalidToken},
		{"user not found", authErr(auth.KindUserNotFound), http.StatusUnauthorized, model.ErrCodeUserNotFound},
		{"store read failed", authErr(auth.KindStoreReadFailed), http.StatusBadGateway, model.ErrCodeStoreUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockAuthService{
				resolveUserFn: func(ctx context.Context, creds auth.Credentials) (*model.User, error) {
					return nil, tt.err
				},
			}
			h := newTestAuthHandler(svc, &recordingMetrics{}, &bytes.Buffer{})

			req := httptest.NewRequest(http.MethodGet, "/api/user?token=abc", nil)
			w := httptest.NewRecorder()

			h.CurrentUser(w, req)

			resp := w.Result()
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if body := decodeError(t, resp); body.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
			}
		})
	}
}

func TestAuthHandler_CabinetRedirect(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/cabinet", "/cabinet?token=t%2Bk"},
		{"/cabinet?tab=profile", "/cabinet?tab=profile&token=t%2Bk"},
		{"", "/?token=t%2Bk"},
	}

	for _, tt := range tests {
		h := NewAuthHandler(&mockAuthService{}, security.NewProfileSanitizer(), nil, nil, AuthHandlerConfig{CabinetPath: tt.path})
		if got := h.cabinetRedirect("t+k"); got != tt.want {
			t.Errorf("cabinetRedirect(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
