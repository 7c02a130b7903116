package feed

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hitoshi/newsroom/internal/model"
)

// Source は記事の取得元フィード。
type Source struct {
	Name     string `yaml:"name"`
	URL      string `yaml:"url"`
	Category string `yaml:"category"`
}

type sourceFile struct {
	Sources []Source `yaml:"sources"`
}

// DefaultSources はソース定義ファイルが無い場合に使う組み込みのソース一覧。
func DefaultSources() []Source {
	return []Source{
		{Name: "BBC News", URL: "https://feeds.bbci.co.uk/news/world/rss.xml", Category: "world"},
		{Name: "The Guardian", URL: "https://www.theguardian.com/world/rss", Category: "world"},
		{Name: "Ars Technica", URL: "https://feeds.arstechnica.com/arstechnica/index", Category: "technology"},
		{Name: "Hacker News", URL: "https://hnrss.org/frontpage", Category: "technology"},
		{Name: "CoinDesk", URL: "https://www.coindesk.com/arc/outboundfeeds/rss/", Category: "crypto"},
		{Name: "Cointelegraph", URL: "https://cointelegraph.com/rss", Category: "crypto"},
		{Name: "Reuters Business", URL: "https://www.reutersagency.com/feed/?best-topics=business-finance", Category: "business"},
		{Name: "ESPN", URL: "https://www.espn.com/espn/rss/news", Category: "sports"},
	}
}

// LoadSources はYAMLファイルからソース一覧を読み込む。
// pathが空の場合は組み込みのソース一覧を返す。
func LoadSources(path string) ([]Source, error) {
	if path == "" {
		return DefaultSources(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ソース定義ファイルの読み込みに失敗: %w", err)
	}

	var file sourceFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("ソース定義ファイルの解析に失敗: %w", err)
	}
	if len(file.Sources) == 0 {
		return nil, errors.New("ソース定義ファイルにソースがありません")
	}

	seen := make(map[string]struct{}, len(file.Sources))
	for i := range file.Sources {
		src := &file.Sources[i]
		src.Name = strings.TrimSpace(src.Name)
		src.URL = strings.TrimSpace(src.URL)
		src.Category = strings.ToLower(strings.TrimSpace(src.Category))

		if src.Name == "" || src.URL == "" {
			return nil, fmt.Errorf("sources[%d]: name と url は必須です", i)
		}
		if src.Category == "" {
			return nil, fmt.Errorf("sources[%d] (%s): category は必須です", i, src.Name)
		}
		if src.Category == model.CategoryAll {
			return nil, fmt.Errorf("sources[%d] (%s): category に %q は使えません", i, src.Name, model.CategoryAll)
		}
		if _, dup := seen[src.URL]; dup {
			return nil, fmt.Errorf("sources[%d] (%s): url が重複しています", i, src.Name)
		}
		seen[src.URL] = struct{}{}
	}

	return file.Sources, nil
}

// Categories はソース一覧に含まれるカテゴリを出現順に返す。
func Categories(sources []Source) []string {
	var cats []string
	seen := make(map[string]struct{})
	for _, s := range sources {
		if _, ok := seen[s.Category]; ok {
			continue
		}
		seen[s.Category] = struct{}{}
		cats = append(cats, s.Category)
	}
	return cats
}

// SourcesFor はカテゴリに属するソースを返す。空文字とallは全件を返す。
func SourcesFor(sources []Source, category string) []Source {
	if category == "" || category == model.CategoryAll {
		return sources
	}
	var out []Source
	for _, s := range sources {
		if s.Category == category {
			out = append(out, s)
		}
	}
	return out
}
