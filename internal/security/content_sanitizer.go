package security

import (
	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はフィード由来のHTML断片からタグをすべて取り除く。
// 記事の抜粋やタイトルは表示側でプレーンテキストとして扱うため、
// 許可タグは1つも持たない。
type TextSanitizer interface {
	StripTags(rawHTML string) string
}

// StrictSanitizer はbluemondayのStrictPolicyを使うTextSanitizerの実装。
// Policyはスレッドセーフなので1つを共有する。
type StrictSanitizer struct {
	policy *bluemonday.Policy
}

// NewStrictSanitizer はStrictSanitizerを生成する。
func NewStrictSanitizer() *StrictSanitizer {
	return &StrictSanitizer{policy: bluemonday.StrictPolicy()}
}

// StripTags はタグを除去した文字列を返す。
// script/styleの中身は本文として残さない。
// 戻り値のテキストはHTMLエスケープされたままなので、表示前にデコードが必要。
func (s *StrictSanitizer) StripTags(rawHTML string) string {
	if rawHTML == "" {
		return ""
	}
	return s.policy.Sanitize(rawHTML)
}

// compile-time interface check
var _ TextSanitizer = (*StrictSanitizer)(nil)
