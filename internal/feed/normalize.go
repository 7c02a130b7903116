package feed

import (
	"slices"
	"strings"

	"github.com/hitoshi/newsroom/internal/model"
)

// Dedupe はURLで重複を除去する。
// 同じURLが複数ある場合は後のものの内容を採用し、位置は最初に現れた位置を保つ。
func Dedupe(articles []model.Article) []model.Article {
	out := make([]model.Article, 0, len(articles))
	index := make(map[string]int, len(articles))

	for _, a := range articles {
		if i, ok := index[a.URL]; ok {
			out[i] = a
			continue
		}
		index[a.URL] = len(out)
		out = append(out, a)
	}
	return out
}

// SortByRecency は公開日時の新しい順に安定ソートする。
func SortByRecency(articles []model.Article) {
	slices.SortStableFunc(articles, func(a, b model.Article) int {
		return b.PublishedAt.Compare(a.PublishedAt)
	})
}

// FilterByCategory はカテゴリで絞り込む。空文字とallは全件を返す。
func FilterByCategory(articles []model.Article, category string) []model.Article {
	if category == "" || strings.EqualFold(category, model.CategoryAll) {
		return articles
	}
	out := make([]model.Article, 0, len(articles))
	for _, a := range articles {
		if strings.EqualFold(a.Category, category) {
			out = append(out, a)
		}
	}
	return out
}
