package feed

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// firstImageSrc は記事本文HTMLに含まれる最初の<img>のsrcを返す。
// エスケープされたHTMLにも対応する。
func firstImageSrc(body string) string {
	body = stripCDATA(body)
	if body == "" {
		return ""
	}
	if !strings.Contains(body, "<img") && !strings.Contains(body, "<IMG") {
		if !strings.Contains(body, "&lt;img") {
			return ""
		}
		body = html.UnescapeString(body)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return ""
	}

	src, _ := doc.Find("img[src]").First().Attr("src")
	return strings.TrimSpace(src)
}
