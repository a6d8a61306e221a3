// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ProfileSanitizer はレコードストアから取得したユーザープロフィールの文字列から
// マークアップを除去する。Tildaページ上のスクリプトはプロフィールをそのまま
// DOMへ挿入するため、API応答の前に必ず通す。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/Daison12121/tilda-backend/internal/model"
)

// ProfileSanitizer はユーザープロフィールのサニタイズ機能のインターフェースを定義する。
type ProfileSanitizer interface {
	// SanitizeText は全てのHTMLタグを除去した平文を返す。
	// 応答はJSONのため文字参照へのエスケープは行わない。前後の空白は取り除く。
	SanitizeText(s string) string

	// SanitizeUser は名前と電話番号をサニタイズしたユーザーのコピーを返す。
	// メールアドレスは識別子のため変更しない。userがnilの場合はnilを返す。
	SanitizeUser(user *model.User) *model.User
}

// profileSanitizer はProfileSanitizerの実装。
// bluemondayのポリシーはスレッドセーフなため、1つのインスタンスを共有する。
type profileSanitizer struct {
	policy *bluemonday.Policy
}

// NewProfileSanitizer はProfileSanitizerの新しいインスタンスを生成する。
// プロフィールは平文のみを想定するため、StrictPolicy（全タグ除去）を使用する。
func NewProfileSanitizer() *profileSanitizer {
	return &profileSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// maxSanitizePasses はSanitizeTextでタグ除去と文字参照の展開を繰り返す上限。
const maxSanitizePasses = 4

// SanitizeText は全てのHTMLタグを除去した平文を返す。
// 文字参照で書かれたタグは展開後に再度除去する。上限回数で収束しない場合はエスケープ済みの文字列を返す。
func (s *profileSanitizer) SanitizeText(str string) string {
	if str == "" {
		return ""
	}
	cur := str
	for i := 0; i < maxSanitizePasses; i++ {
		next := html.UnescapeString(s.policy.Sanitize(cur))
		if next == cur {
			return strings.TrimSpace(next)
		}
		cur = next
	}
	return strings.TrimSpace(s.policy.Sanitize(cur))
}

// SanitizeUser は名前と電話番号をサニタイズしたユーザーのコピーを返す。
func (s *profileSanitizer) SanitizeUser(user *model.User) *model.User {
	if user == nil {
		return nil
	}
	out := *user
	out.Name = s.SanitizeText(user.Name)
	out.Phone = s.SanitizeText(user.Phone)
	return &out
}

// compile-time interface check
var _ ProfileSanitizer = (*profileSanitizer)(nil)
