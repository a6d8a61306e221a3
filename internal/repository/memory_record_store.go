package repository

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryRecordStore はプロセス内のマップにレコードを保持するレコードストア。
// ローカル開発とテストで使用する。プロセス終了時に内容は失われる。
type MemoryRecordStore struct {
	mu     sync.RWMutex
	tables map[string][]Record
}

// NewMemoryRecordStore は空のMemoryRecordStoreを生成する。
func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{
		tables: make(map[string][]Record),
	}
}

// FindByField はtableからfield = valueのレコードを最大1件取得する。見つからない場合はnilを返す。
func (s *MemoryRecordStore) FindByField(ctx context.Context, table, field, value string) (Record, error) {
	if err := checkField(table, field); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var found Record
	for _, r := range s.tables[table] {
		if r.String(field) != value {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("%s.%s: %w", table, field, ErrMultipleRecords)
		}
		found = r
	}
	if found == nil {
		return nil, nil
	}
	return found.clone(), nil
}

// Insert はtableにレコードを1件追加する。
func (s *MemoryRecordStore) Insert(ctx context.Context, table string, record Record) error {
	if _, err := columns(table); err != nil {
		return err
	}
	if err := checkRecord(table, record); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tables[table] = append(s.tables[table], record.clone())
	return nil
}

// DeleteExpiredTokens はexpires_atがbeforeより古いトークンを削除する。
func (s *MemoryRecordStore) DeleteExpiredTokens(ctx context.Context, before time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	kept := s.tables[TableTokens][:0]
	for _, r := range s.tables[TableTokens] {
		expiresAt, ok, err := r.Time("expires_at")
		if err == nil && ok && expiresAt.Before(before) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	s.tables[TableTokens] = kept
	return deleted, nil
}

// PingContext は常に成功する。
func (s *MemoryRecordStore) PingContext(ctx context.Context) error {
	return ctx.Err()
}

// Len はtableのレコード数を返す。テスト用。
func (s *MemoryRecordStore) Len(table string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tables[table])
}

// compile-time interface check
var (
	_ RecordStore   = (*MemoryRecordStore)(nil)
	_ TokenPruner   = (*MemoryRecordStore)(nil)
	_ HealthChecker = (*MemoryRecordStore)(nil)
)
