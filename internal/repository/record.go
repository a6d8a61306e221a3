package repository

import (
	"fmt"
	"time"
)

// Record はレコードストアの1行を表す。
// キーはカラム名、値はバックエンドによりstring / time.Time / nil 等になる。
type Record map[string]any

// String はkeyの値を文字列として返す。値が存在しないかnilの場合は空文字列を返す。
func (r Record) String(key string) string {
	switch v := r[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// Time はkeyの値を時刻として返す。
// PostgreSQL・メモリストアはtime.Time、REST(JSON)はRFC 3339文字列で値を返すため両方を受け付ける。
// 値が存在しない場合はゼロ値とfalseを返す。
func (r Record) Time(key string) (time.Time, bool, error) {
	switch v := r[key].(type) {
	case nil:
		return time.Time{}, false, nil
	case time.Time:
		return v, true, nil
	case string:
		t, err := parseTimestamp(v)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("invalid timestamp in %q: %w", key, err)
		}
		return t, true, nil
	default:
		return time.Time{}, false, fmt.Errorf("unexpected type %T in %q", v, key)
	}
}

// timestampLayouts はPostgRESTが返しうるタイムスタンプ表記。
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999-07",
	"2006-01-02 15:04:05.999999",
}

func parseTimestamp(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// clone はレコードのシャローコピーを返す。
func (r Record) clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
