// Package repository はレコードストア（users / tokensテーブルを持つ外部の表形式データストア）への
// アクセスを提供する。コアはRecordStoreインターフェースのみに依存する。
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// テーブル名
const (
	TableUsers  = "users"
	TableTokens = "tokens"
)

var (
	// ErrMultipleRecords はFindByFieldで2件以上のレコードが一致した場合に返される。
	ErrMultipleRecords = errors.New("multiple records matched")
	// ErrUnknownTable は許可されていないテーブル名が指定された場合に返される。
	ErrUnknownTable = errors.New("unknown table")
	// ErrUnknownField は許可されていないフィールド名が指定された場合に返される。
	ErrUnknownField = errors.New("unknown field")
)

// RecordStore はレコードストアクライアントのインターフェース。
type RecordStore interface {
	// FindByField はtableからfield = valueのレコードを最大1件取得する。
	// 見つからない場合はnil, nilを返す。2件以上一致した場合はErrMultipleRecordsを返す。
	FindByField(ctx context.Context, table, field, value string) (Record, error)

	// Insert はtableにレコードを1件追加する。
	Insert(ctx context.Context, table string, record Record) error
}

// TokenPruner は期限切れトークンの削除に必要なインターフェース。
// コアは使用せず、クリーンアップジョブからのみ呼ばれる。
type TokenPruner interface {
	// DeleteExpiredTokens はexpires_atがbeforeより古いトークンを削除し、削除件数を返す。
	DeleteExpiredTokens(ctx context.Context, before time.Time) (int64, error)
}

// HealthChecker はストアの疎通確認のインターフェース。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// schema はテーブルごとに許可されたカラムの一覧。
// テーブル名・フィールド名をSQLやURLに埋め込む前にここで検証する。
var schema = map[string][]string{
	TableUsers:  {"id", "email", "name", "phone", "created_at"},
	TableTokens: {"token", "email", "expires_at"},
}

// columns はtableの許可カラム一覧を返す。
func columns(table string) ([]string, error) {
	cols, ok := schema[table]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	return cols, nil
}

// checkField はfieldがtableの許可カラムに含まれるか検証する。
func checkField(table, field string) error {
	cols, err := columns(table)
	if err != nil {
		return err
	}
	for _, c := range cols {
		if c == field {
			return nil
		}
	}
	return fmt.Errorf("%w: %s.%s", ErrUnknownField, table, field)
}

// checkRecord はrecordの全キーがtableの許可カラムに含まれるか検証する。
func checkRecord(table string, record Record) error {
	for key := range record {
		if err := checkField(table, key); err != nil {
			return err
		}
	}
	return nil
}
