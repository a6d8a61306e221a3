package repository

import (
	"context"
	"time"
)

// StoreObserver はレコードストア操作の計測結果を受け取るインターフェース。
// metrics.Collectorが実装する。
type StoreObserver interface {
	ObserveStoreOp(table, op string, duration time.Duration, err error)
}

// InstrumentedStore はRecordStoreをラップし、各操作のレイテンシと成否をStoreObserverへ通知する。
type InstrumentedStore struct {
	next     RecordStore
	observer StoreObserver
}

// NewInstrumentedStore はInstrumentedStoreを生成する。
func NewInstrumentedStore(next RecordStore, observer StoreObserver) *InstrumentedStore {
	return &InstrumentedStore{next: next, observer: observer}
}

// FindByField は内部ストアのFindByFieldを計測付きで呼び出す。
func (s *InstrumentedStore) FindByField(ctx context.Context, table, field, value string) (Record, error) {
	start := time.Now()
	record, err := s.next.FindByField(ctx, table, field, value)
	s.observer.ObserveStoreOp(table, "find", time.Since(start), err)
	return record, err
}

// Insert は内部ストアのInsertを計測付きで呼び出す。
func (s *InstrumentedStore) Insert(ctx context.Context, table string, record Record) error {
	start := time.Now()
	err := s.next.Insert(ctx, table, record)
	s.observer.ObserveStoreOp(table, "insert", time.Since(start), err)
	return err
}

// compile-time interface check
var _ RecordStore = (*InstrumentedStore)(nil)
