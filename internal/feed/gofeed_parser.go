package feed

import (
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"

	"github.com/hitoshi/newsroom/internal/model"
)

// GofeedParser はgofeedの厳密なXMLパーサーを使うParser。
// RSS、Atom、JSON Feedを扱えるが、壊れたXMLは受け付けない。
type GofeedParser struct {
	sanitizer Sanitizer
}

// NewGofeedParser はGofeedParserを生成する。
func NewGofeedParser(sanitizer Sanitizer) *GofeedParser {
	return &GofeedParser{sanitizer: sanitizer}
}

// Parse はgofeedでrawを解析して記事に変換する。
func (p *GofeedParser) Parse(raw string, src Source, fetchedAt time.Time) ([]model.Article, error) {
	parsed, err := gofeed.NewParser().ParseString(raw)
	if err != nil {
		return nil, malformed("%v", err)
	}
	return buildArticles(convertGofeedItems(parsed.Items), src, fetchedAt, p.sanitizer), nil
}

// convertGofeedItems はgofeedの記事をrawItemに変換する。
func convertGofeedItems(items []*gofeed.Item) []rawItem {
	raws := make([]rawItem, 0, len(items))

	for _, item := range items {
		if item == nil {
			continue
		}

		raw := rawItem{
			Title:       item.Title,
			Link:        item.Link,
			GUID:        item.GUID,
			Description: item.Description,
			Content:     item.Content,
			Thumbnail:   gofeedThumbnail(item),
		}

		if item.Author != nil {
			raw.Author = item.Author.Name
		}
		if raw.Author == "" && len(item.Authors) > 0 && item.Authors[0] != nil {
			raw.Author = item.Authors[0].Name
		}

		if item.PublishedParsed != nil {
			t := *item.PublishedParsed
			raw.Published = &t
		} else if item.UpdatedParsed != nil {
			t := *item.UpdatedParsed
			raw.Published = &t
		}

		raws = append(raws, raw)
	}

	return raws
}

// gofeedThumbnail はmedia拡張、画像enclosure、item.Imageの順にサムネイルを探す。
func gofeedThumbnail(item *gofeed.Item) string {
	if media, ok := item.Extensions["media"]; ok {
		if u := mediaExtensionURL(media["thumbnail"], func(ext.Extension) bool { return true }); u != "" {
			return u
		}
		isImage := func(e ext.Extension) bool {
			return e.Attrs["medium"] == "image" || strings.HasPrefix(e.Attrs["type"], "image/")
		}
		if u := mediaExtensionURL(media["content"], isImage); u != "" {
			return u
		}
		// media:group の中に media:content がぶら下がる形式
		for _, group := range media["group"] {
			if u := mediaExtensionURL(group.Children["thumbnail"], func(ext.Extension) bool { return true }); u != "" {
				return u
			}
			if u := mediaExtensionURL(group.Children["content"], isImage); u != "" {
				return u
			}
		}
	}

	for _, enc := range item.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") && enc.URL != "" {
			return enc.URL
		}
	}

	if item.Image != nil {
		return item.Image.URL
	}
	return ""
}

func mediaExtensionURL(exts []ext.Extension, match func(ext.Extension) bool) string {
	for _, e := range exts {
		if u := e.Attrs["url"]; u != "" && match(e) {
			return u
		}
	}
	return ""
}

// compile-time interface check
var _ Parser = (*GofeedParser)(nil)
