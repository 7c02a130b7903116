// Package model はドメインモデルを定義する。
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Article はフィードから抽出された正規化済みの記事を表す。
// フェッチのたびに再計算され、永続化の所有者は持たない。
type Article struct {
	ID            string
	Title         string
	URL           string
	Source        string
	Category      string
	PublishedAt   time.Time
	DateEstimated bool // 公開日時がフィードに無く、合成した値
	Author        string
	Excerpt       string
	Thumbnail     string
}

// CategoryAll は全カテゴリを対象とするフィルタ値。
const CategoryAll = "all"

// ArticleID は記事URLから安定したIDを導出する。
func ArticleID(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:8])
}
