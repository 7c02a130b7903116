package security

import (
	"strings"
	"testing"
)

func TestStripTags(t *testing.T) {
	sanitizer := NewStrictSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"空文字", "", ""},
		{"プレーンテキスト", "速報です", "速報です"},
		{"段落", "<p>本文<strong>強調</strong></p>", "本文強調"},
		{"リンク", `<a href="https://example.com">続きを読む</a>`, "続きを読む"},
		{"画像は消える", `<img src="https://example.com/a.png" alt="x">説明`, "説明"},
		{"scriptは中身ごと消える", `前<script>alert("xss")</script>後`, "前後"},
		{"styleは中身ごと消える", `<style>p{color:red}</style>本文`, "本文"},
		{"イベント属性", `<div onclick="evil()">クリック</div>`, "クリック"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizer.StripTags(tt.input); got != tt.want {
				t.Errorf("StripTags(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// 出力はエスケープされたテキストで、タグとして解釈される文字を含まない。
func TestStripTags_OutputIsEscaped(t *testing.T) {
	got := NewStrictSanitizer().StripTags(`Tom &amp; Jerry <b>&lt;script&gt;</b>`)

	if strings.Contains(got, "<") || strings.Contains(got, ">") {
		t.Errorf("出力に山括弧が残っている: %q", got)
	}
	if !strings.Contains(got, "Tom") || !strings.Contains(got, "Jerry") {
		t.Errorf("テキストが失われた: %q", got)
	}
}
