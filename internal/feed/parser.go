package feed

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/hitoshi/newsroom/internal/model"
)

// ErrMalformedFeed はRSS/Atomとして解釈できない入力を表す。
var ErrMalformedFeed = errors.New("malformed feed")

// maxExcerptRunes は抜粋の最大文字数（rune数）。
const maxExcerptRunes = 280

// Parser はフィード本文を正規化済み記事に変換するインターフェース。
// 実装を差し替えても呼び出し側は変わらない。
type Parser interface {
	// Parse はrawを解析する。フィードとして解釈できない場合はErrMalformedFeedをラップして返す。
	Parse(raw string, src Source, fetchedAt time.Time) ([]model.Article, error)
}

// Sanitizer はHTML断片からタグを除去する。
type Sanitizer interface {
	StripTags(rawHTML string) string
}

// ParseFeed はparserでrawを解析する。
// 解析できないフィードは警告ログを出して空スライスを返し、呼び出し側にエラーを返さない。
func ParseFeed(logger *slog.Logger, parser Parser, raw string, src Source, fetchedAt time.Time) []model.Article {
	articles, err := parser.Parse(raw, src, fetchedAt)
	if err != nil {
		logger.Warn("フィードの解析に失敗しました",
			slog.String("feed_source", src.Name),
			slog.String("feed_url", src.URL),
			slog.String("error", err.Error()),
		)
		return []model.Article{}
	}
	return articles
}

// rawItem はパーサー実装が抽出した未正規化の1件。
type rawItem struct {
	Title       string
	Link        string
	GUID        string
	Description string
	Content     string
	Author      string
	Published   *time.Time
	Thumbnail   string // media:thumbnail / media:content / enclosure 由来
}

// buildArticles はrawItemを正規化して記事に変換する。
//
//   - リンクが無い場合はURL形式のGUIDをリンクとして使う。それでも無ければ除外する
//   - タイトルが無い場合は抜粋、抜粋も無ければURLをタイトルにする
//   - 公開日時が無い場合は fetchedAt − index秒 を割り当て、DateEstimated=true にする
func buildArticles(items []rawItem, src Source, fetchedAt time.Time, sanitizer Sanitizer) []model.Article {
	articles := make([]model.Article, 0, len(items))

	for i, item := range items {
		link := strings.TrimSpace(item.Link)
		if link == "" && isHTTPURL(item.GUID) {
			link = strings.TrimSpace(item.GUID)
		}
		if link == "" {
			continue
		}

		body := item.Description
		if body == "" {
			body = item.Content
		}
		excerpt := makeExcerpt(sanitizer, body)

		title := cleanText(sanitizer, item.Title)
		if title == "" {
			title = excerpt
		}
		if title == "" {
			title = link
		}

		article := model.Article{
			ID:        model.ArticleID(link),
			Title:     title,
			URL:       link,
			Source:    src.Name,
			Category:  src.Category,
			Author:    cleanText(sanitizer, item.Author),
			Excerpt:   excerpt,
			Thumbnail: pickThumbnail(item),
		}

		if item.Published != nil && !item.Published.IsZero() {
			article.PublishedAt = item.Published.UTC()
		} else {
			article.PublishedAt = fetchedAt.Add(-time.Duration(i) * time.Second).UTC()
			article.DateEstimated = true
		}

		articles = append(articles, article)
	}

	return articles
}

// pickThumbnail はメディア要素のサムネイルを優先し、無ければ本文の最初の画像を使う。
func pickThumbnail(item rawItem) string {
	if isHTTPURL(item.Thumbnail) {
		return strings.TrimSpace(item.Thumbnail)
	}
	for _, body := range []string{item.Content, item.Description} {
		if src := firstImageSrc(body); isHTTPURL(src) {
			return src
		}
	}
	return ""
}

// makeExcerpt はHTMLからプレーンテキストの抜粋を作る。
func makeExcerpt(sanitizer Sanitizer, body string) string {
	text := cleanText(sanitizer, body)
	return truncateRunes(text, maxExcerptRunes)
}

// cleanText はタグ除去、実体参照のデコード、空白の正規化を行う。
// CDATAで二重にエスケープされた実体参照も1回で解釈されるよう、除去前にもデコードする。
func cleanText(sanitizer Sanitizer, s string) string {
	if s == "" {
		return ""
	}
	s = stripCDATA(s)
	if strings.Contains(s, "&lt;") {
		s = html.UnescapeString(s)
	}
	s = html.UnescapeString(sanitizer.StripTags(s))
	return strings.Join(strings.Fields(s), " ")
}

func stripCDATA(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "<![CDATA[")
	s = strings.TrimSuffix(s, "]]>")
	return s
}

// truncateRunes はsをmaxルーン以内に切り詰める。切り詰めた場合は末尾に省略記号を付ける。
func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:max-1])) + "…"
}

func isHTTPURL(s string) bool {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		return false
	}
	u, err := url.Parse(s)
	return err == nil && u.Host != ""
}

// pubDateLayouts はRSS/Atomで見られる日時表記。
var pubDateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC3339Nano,
	time.RFC3339,
	time.RFC822Z,
	time.RFC822,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"Mon, 02 Jan 2006 15:04 -0700",
	"2 Jan 2006 15:04:05 -0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseDate は既知の表記を順に試す。解釈できなければnilを返す。
func parseDate(s string) *time.Time {
	s = strings.TrimSpace(stripCDATA(s))
	if s == "" {
		return nil
	}
	for _, layout := range pubDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedFeed, fmt.Sprintf(format, args...))
}
