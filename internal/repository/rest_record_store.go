package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// restPathPrefix はSupabaseのPostgRESTエンドポイントのパス。
	restPathPrefix = "/rest/v1/"
	// maxErrorBodySize はエラーレスポンスとして読み取るボディの上限。
	maxErrorBodySize = 64 << 10
)

// StoreError はレコードストアがエラーステータスを返した場合のエラー。
// Messageにはストアが返したメッセージをそのまま保持する。
type StoreError struct {
	StatusCode int
	Message    string
}

// Error はerrorインターフェースを実装する。
func (e *StoreError) Error() string {
	return fmt.Sprintf("record store returned status %d: %s", e.StatusCode, e.Message)
}

// RESTRecordStore はSupabase(PostgREST)のHTTP APIを使用したレコードストア。
type RESTRecordStore struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewRESTRecordStore はRESTRecordStoreを生成する。
// baseURLはSupabaseプロジェクトのURL（例: https://xyz.supabase.co）、apiKeyはservice_roleキー。
func NewRESTRecordStore(httpClient *http.Client, baseURL, apiKey string) *RESTRecordStore {
	return &RESTRecordStore{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
	}
}

// FindByField はtableからfield = valueのレコードを最大1件取得する。見つからない場合はnilを返す。
func (s *RESTRecordStore) FindByField(ctx context.Context, table, field, value string) (Record, error) {
	if err := checkField(table, field); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("select", "*")
	q.Set(field, "eq."+value)
	q.Set("limit", "2")

	req, err := s.newRequest(ctx, http.MethodGet, table, q, nil)
	if err != nil {
		return nil, err
	}

	var records []Record
	if err := s.do(req, http.StatusOK, &records); err != nil {
		return nil, err
	}

	switch len(records) {
	case 0:
		return nil, nil
	case 1:
		return records[0], nil
	default:
		return nil, fmt.Errorf("%s.%s: %w", table, field, ErrMultipleRecords)
	}
}

// Insert はtableにレコードを1件追加する。
func (s *RESTRecordStore) Insert(ctx context.Context, table string, record Record) error {
	if err := checkRecord(table, record); err != nil {
		return err
	}

	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	req, err := s.newRequest(ctx, http.MethodPost, table, nil, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=minimal")

	return s.do(req, http.StatusCreated, nil)
}

// DeleteExpiredTokens はexpires_atがbeforeより古いトークンを削除する。
// 削除件数はreturn=representationで返された行数から求める。
func (s *RESTRecordStore) DeleteExpiredTokens(ctx context.Context, before time.Time) (int64, error) {
	q := url.Values{}
	q.Set("expires_at", "lt."+before.UTC().Format(time.RFC3339Nano))
	q.Set("select", "token")

	req, err := s.newRequest(ctx, http.MethodDelete, TableTokens, q, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Prefer", "return=representation")

	var deleted []Record
	if err := s.do(req, http.StatusOK, &deleted); err != nil {
		return 0, err
	}
	return int64(len(deleted)), nil
}

// PingContext はPostgRESTのルートエンドポイントへの疎通を確認する。
func (s *RESTRecordStore) PingContext(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+restPathPrefix, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	s.setAuthHeaders(req)
	return s.do(req, http.StatusOK, nil)
}

// newRequest はtableに対するPostgRESTリクエストを生成する。
func (s *RESTRecordStore) newRequest(ctx context.Context, method, table string, q url.Values, body io.Reader) (*http.Request, error) {
	reqURL, err := url.Parse(s.baseURL + restPathPrefix + url.PathEscape(table))
	if err != nil {
		return nil, fmt.Errorf("failed to parse store URL: %w", err)
	}
	if q != nil {
		reqURL.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	s.setAuthHeaders(req)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (s *RESTRecordStore) setAuthHeaders(req *http.Request) {
	req.Header.Set("apikey", s.apiKey)
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
}

// do はリクエストを実行し、wantStatus以外のステータスをStoreErrorに変換する。
// outがnilでない場合はレスポンスボディをJSONとしてデコードする。
func (s *RESTRecordStore) do(req *http.Request, wantStatus int, out any) error {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("record store request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return &StoreError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode record store response: %w", err)
	}
	return nil
}

// errorMessage はPostgRESTのエラーボディ {"message": "..."} からメッセージを取り出す。
// JSONでない場合はボディをそのまま返す。
func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return strings.TrimSpace(string(body))
}

// compile-time interface check
var (
	_ RecordStore   = (*RESTRecordStore)(nil)
	_ TokenPruner   = (*RESTRecordStore)(nil)
	_ HealthChecker = (*RESTRecordStore)(nil)
)
