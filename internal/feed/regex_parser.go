package feed

import (
	"regexp"
	"strings"
	"time"

	"github.com/hitoshi/newsroom/internal/model"
)

var (
	// フィードとして最低限必要なルート要素
	feedRootPattern = regexp.MustCompile(`(?is)<(rss|feed|rdf:RDF|channel)\b`)

	itemOpenPattern   = regexp.MustCompile(`(?is)<item\b[^>]*>`)
	itemClosePattern  = regexp.MustCompile(`(?is)</item\s*>`)
	entryOpenPattern  = regexp.MustCompile(`(?is)<entry\b[^>]*>`)
	entryClosePattern = regexp.MustCompile(`(?is)</entry\s*>`)

	// 閉じタグの無い最後の項目はフィード本体の終わりで打ち切る
	feedEndPattern = regexp.MustCompile(`(?is)</(channel|rss|feed|rdf:RDF)\s*>`)

	// Atomの<link href="..."/>
	atomLinkPattern = regexp.MustCompile(`(?is)<link\b([^>]*?)/?>`)

	// 自己完結タグ（media:thumbnail、enclosure等）
	mediaThumbnailPattern = regexp.MustCompile(`(?is)<media:thumbnail\b([^>]*)>`)
	mediaContentPattern   = regexp.MustCompile(`(?is)<media:content\b([^>]*)>`)
	enclosurePattern      = regexp.MustCompile(`(?is)<enclosure\b([^>]*)>`)
)

// tagPatterns は要素名ごとにコンパイル済みの本文抽出パターン。
var tagPatterns = map[string]*regexp.Regexp{}

func init() {
	for _, name := range []string{
		"title", "link", "guid", "id", "description", "summary",
		"content:encoded", "content", "pubDate", "published", "updated",
		"dc:date", "author", "name", "dc:creator",
	} {
		tagPatterns[name] = regexp.MustCompile(`(?is)<` + regexp.QuoteMeta(name) + `\b[^>]*>(.*?)</` + regexp.QuoteMeta(name) + `>`)
	}
}

// RegexParser はパターンマッチで寛容にRSS/Atomを解析するParser。
// 閉じタグの欠落した項目や名前空間の揺れがあっても、取れる項目は取る。
type RegexParser struct {
	sanitizer Sanitizer
}

// NewRegexParser はRegexParserを生成する。
func NewRegexParser(sanitizer Sanitizer) *RegexParser {
	return &RegexParser{sanitizer: sanitizer}
}

// Parse はrawからitem/entryを抽出して記事に変換する。
func (p *RegexParser) Parse(raw string, src Source, fetchedAt time.Time) ([]model.Article, error) {
	if !feedRootPattern.MatchString(raw) {
		return nil, malformed("no rss/atom root element")
	}

	blocks := splitBlocks(raw, itemOpenPattern, itemClosePattern)
	atom := false
	if len(blocks) == 0 {
		blocks = splitBlocks(raw, entryOpenPattern, entryClosePattern)
		atom = true
	}

	items := make([]rawItem, 0, len(blocks))
	for _, block := range blocks {
		items = append(items, extractItem(block, atom))
	}

	return buildArticles(items, src, fetchedAt, p.sanitizer), nil
}

// splitBlocks は開始タグごとに項目本文を切り出す。
// 本文は閉じタグまでとし、閉じタグが無ければ次の開始タグかフィードの終わりまでとする。
func splitBlocks(raw string, open, closing *regexp.Regexp) []string {
	locs := open.FindAllStringIndex(raw, -1)
	blocks := make([]string, 0, len(locs))
	for i, loc := range locs {
		end := len(raw)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		body := raw[loc[1]:end]
		if m := closing.FindStringIndex(body); m != nil {
			body = body[:m[0]]
		} else if m := feedEndPattern.FindStringIndex(body); m != nil {
			body = body[:m[0]]
		}
		blocks = append(blocks, body)
	}
	return blocks
}

func extractItem(block string, atom bool) rawItem {
	item := rawItem{
		Title:       tagText(block, "title"),
		Description: firstTagText(block, "description", "summary"),
		Content:     firstTagText(block, "content:encoded", "content"),
		Author:      extractAuthor(block),
		Published:   parseDate(firstTagText(block, "pubDate", "published", "dc:date", "updated")),
		Thumbnail:   extractMediaThumbnail(block),
	}

	if atom {
		item.Link = extractAtomLink(block)
		item.GUID = tagText(block, "id")
	} else {
		item.Link = stripCDATA(tagText(block, "link"))
		item.GUID = stripCDATA(tagText(block, "guid"))
		if item.Link == "" {
			// RSSでもAtom形式の<link href>を使うフィードがある
			item.Link = extractAtomLink(block)
		}
	}

	return item
}

// tagText は要素の中身を返す。見つからなければ空文字を返す。
func tagText(block, name string) string {
	m := tagPatterns[name].FindStringSubmatch(block)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func firstTagText(block string, names ...string) string {
	for _, name := range names {
		if v := tagText(block, name); v != "" {
			return v
		}
	}
	return ""
}

// extractAuthor はRSSの<author>/<dc:creator>、Atomの<author><name>に対応する。
func extractAuthor(block string) string {
	author := tagText(block, "author")
	if name := tagText(author, "name"); name != "" {
		return name
	}
	if author != "" {
		return author
	}
	return tagText(block, "dc:creator")
}

// extractAtomLink はrel="alternate"（または無指定）のhrefを返す。
func extractAtomLink(block string) string {
	var fallback string
	for _, m := range atomLinkPattern.FindAllStringSubmatch(block, -1) {
		href := attr(m[1], "href")
		if href == "" {
			continue
		}
		rel := strings.ToLower(attr(m[1], "rel"))
		if rel == "" || rel == "alternate" {
			return href
		}
		if fallback == "" && rel != "self" && rel != "enclosure" {
			fallback = href
		}
	}
	return fallback
}

// extractMediaThumbnail はmedia:thumbnail、画像のmedia:content、画像のenclosureの順に探す。
func extractMediaThumbnail(block string) string {
	if m := mediaThumbnailPattern.FindStringSubmatch(block); m != nil {
		if u := attr(m[1], "url"); u != "" {
			return u
		}
	}
	for _, m := range mediaContentPattern.FindAllStringSubmatch(block, -1) {
		medium := strings.ToLower(attr(m[1], "medium"))
		typ := strings.ToLower(attr(m[1], "type"))
		if medium == "image" || strings.HasPrefix(typ, "image/") {
			if u := attr(m[1], "url"); u != "" {
				return u
			}
		}
	}
	for _, m := range enclosurePattern.FindAllStringSubmatch(block, -1) {
		if strings.HasPrefix(strings.ToLower(attr(m[1], "type")), "image/") {
			if u := attr(m[1], "url"); u != "" {
				return u
			}
		}
	}
	return ""
}

// attrPatterns は属性名ごとにコンパイル済みの抽出パターン。
var attrPatterns = map[string]*regexp.Regexp{
	"href":   regexp.MustCompile(`(?i)\bhref\s*=\s*["']([^"']*)["']`),
	"rel":    regexp.MustCompile(`(?i)\brel\s*=\s*["']([^"']*)["']`),
	"url":    regexp.MustCompile(`(?i)\burl\s*=\s*["']([^"']*)["']`),
	"type":   regexp.MustCompile(`(?i)\btype\s*=\s*["']([^"']*)["']`),
	"medium": regexp.MustCompile(`(?i)\bmedium\s*=\s*["']([^"']*)["']`),
}

func attr(attrs, name string) string {
	m := attrPatterns[name].FindStringSubmatch(attrs)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// compile-time interface check
var _ Parser = (*RegexParser)(nil)
