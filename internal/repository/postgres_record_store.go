package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"
)

// PostgresRecordStore はPostgreSQLを使用したレコードストア。
// SupabaseのPostgreSQLへ直接接続する場合にも使用できる。
type PostgresRecordStore struct {
	db *sql.DB
}

// NewPostgresRecordStore はPostgresRecordStoreを生成する。
func NewPostgresRecordStore(db *sql.DB) *PostgresRecordStore {
	return &PostgresRecordStore{db: db}
}

// FindByField はtableからfield = valueのレコードを最大1件取得する。見つからない場合はnilを返す。
func (s *PostgresRecordStore) FindByField(ctx context.Context, table, field, value string) (Record, error) {
	cols, err := columns(table)
	if err != nil {
		return nil, err
	}
	if err := checkField(table, field); err != nil {
		return nil, err
	}

	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pq.QuoteIdentifier(c)
	}

	// 2件目の有無でmaybeSingleの一意性を検証する
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1 LIMIT 2`,
		strings.Join(quoted, ", "), pq.QuoteIdentifier(table), pq.QuoteIdentifier(field))

	rows, err := s.db.QueryContext(ctx, query, value)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	var found Record
	for rows.Next() {
		if found != nil {
			return nil, fmt.Errorf("%s.%s: %w", table, field, ErrMultipleRecords)
		}
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", table, err)
		}
		found = make(Record, len(cols))
		for i, c := range cols {
			// lib/pqはuuid等を[]byteで返すため文字列に揃える
			if b, ok := values[i].([]byte); ok {
				found[c] = string(b)
				continue
			}
			found[c] = values[i]
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", table, err)
	}

	return found, nil
}

// Insert はtableにレコードを1件追加する。
func (s *PostgresRecordStore) Insert(ctx context.Context, table string, record Record) error {
	if _, err := columns(table); err != nil {
		return err
	}
	if len(record) == 0 {
		return fmt.Errorf("empty record for %s", table)
	}
	if err := checkRecord(table, record); err != nil {
		return err
	}

	keys := make([]string, 0, len(record))
	for k := range record {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	quoted := make([]string, len(keys))
	placeholders := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		quoted[i] = pq.QuoteIdentifier(k)
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = record[k]
	}

	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
		pq.QuoteIdentifier(table), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	return nil
}

// DeleteExpiredTokens はexpires_atがbeforeより古いトークンを削除する。
func (s *PostgresRecordStore) DeleteExpiredTokens(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM tokens WHERE expires_at < $1`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired tokens: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// PingContext はデータベースへの疎通を確認する。
func (s *PostgresRecordStore) PingContext(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// compile-time interface check
var (
	_ RecordStore   = (*PostgresRecordStore)(nil)
	_ TokenPruner   = (*PostgresRecordStore)(nil)
	_ HealthChecker = (*PostgresRecordStore)(nil)
)
