package feed

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeSourcesFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sources.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("ソース定義ファイルの書き込みに失敗: %v", err)
	}
	return path
}

func TestLoadSources_EmptyPathUsesDefaults(t *testing.T) {
	got, err := LoadSources("")
	if err != nil {
		t.Fatalf("LoadSources(\"\") がエラーを返した: %v", err)
	}
	if diff := cmp.Diff(DefaultSources(), got); diff != "" {
		t.Errorf("組み込みのソース一覧を返すべき (-want +got):\n%s", diff)
	}
}

func TestLoadSources_YAML(t *testing.T) {
	path := writeSourcesFile(t, `
sources:
  - name: " NHK "
    url: https://www3.nhk.or.jp/rss/news/cat0.xml
    category: Japan
  - name: Decrypt
    url: https://decrypt.co/feed
    category: crypto
`)

	got, err := LoadSources(path)
	if err != nil {
		t.Fatalf("LoadSources() がエラーを返した: %v", err)
	}
	want := []Source{
		{Name: "NHK", URL: "https://www3.nhk.or.jp/rss/news/cat0.xml", Category: "japan"},
		{Name: "Decrypt", URL: "https://decrypt.co/feed", Category: "crypto"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("LoadSources() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadSources_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantMsg string
	}{
		{"空", "sources: []", "ソースがありません"},
		{"url欠落", "sources:\n  - name: x\n    category: world", "name と url は必須"},
		{"category欠落", "sources:\n  - name: x\n    url: https://x", "category は必須"},
		{"allは予約語", "sources:\n  - name: x\n    url: https://x\n    category: all", "使えません"},
		{"url重複", "sources:\n  - name: x\n    url: https://x\n    category: a\n  - name: y\n    url: https://x\n    category: b", "重複"},
		{"YAML不正", "sources: [", "解析に失敗"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadSources(writeSourcesFile(t, tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("err = %v, want containing %q", err, tt.wantMsg)
			}
		})
	}
}

func TestLoadSources_MissingFile(t *testing.T) {
	if _, err := LoadSources(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("存在しないファイルはエラーになるべき")
	}
}

func TestCategoriesAndSourcesFor(t *testing.T) {
	sources := []Source{
		{Name: "a", Category: "world"},
		{Name: "b", Category: "crypto"},
		{Name: "c", Category: "world"},
	}

	if diff := cmp.Diff([]string{"world", "crypto"}, Categories(sources)); diff != "" {
		t.Errorf("Categories() mismatch (-want +got):\n%s", diff)
	}
	if got := SourcesFor(sources, "world"); len(got) != 2 {
		t.Errorf("SourcesFor(world) = %+v", got)
	}
	if got := SourcesFor(sources, "all"); len(got) != 3 {
		t.Errorf("SourcesFor(all) = %+v", got)
	}
}
