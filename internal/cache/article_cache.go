// Package cache は記事一覧のRedisキャッシュを提供する。
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/newsroom/internal/model"
)

// defaultTTL は記事キャッシュの有効期間。
const defaultTTL = 10 * time.Minute

// keyPrefix はキャッシュキーの接頭辞。
const keyPrefix = "newsroom:articles:"

// cachedArticle はキャッシュ上の記事表現。
type cachedArticle struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	URL           string    `json:"url"`
	Source        string    `json:"source"`
	Category      string    `json:"category"`
	PublishedAt   time.Time `json:"published_at"`
	DateEstimated bool      `json:"date_estimated,omitempty"`
	Author        string    `json:"author,omitempty"`
	Excerpt       string    `json:"excerpt,omitempty"`
	Thumbnail     string    `json:"thumbnail,omitempty"`
}

// RedisArticleCache はRedisを使用したカテゴリ単位の記事キャッシュ。
type RedisArticleCache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

// NewRedisArticleCache はRedisArticleCacheを生成する。
// ttlが0以下の場合はデフォルト値を使用する。
func NewRedisArticleCache(rdb redis.Cmdable, ttl time.Duration) *RedisArticleCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisArticleCache{rdb: rdb, ttl: ttl}
}

// NewClient はREDIS_URL形式のURLからクライアントを生成し、疎通を確認する。
func NewClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("REDIS_URLの解析に失敗: %w", err)
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("Redisへの接続確認に失敗: %w", err)
	}
	return rdb, nil
}

// Key はカテゴリのキャッシュキーを返す。
func Key(category string) string {
	return keyPrefix + category
}

// Get はカテゴリの記事一覧を取得する。存在しない場合はfalseを返す。
func (c *RedisArticleCache) Get(ctx context.Context, category string) ([]model.Article, bool, error) {
	data, err := c.rdb.Get(ctx, Key(category)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("記事キャッシュの取得に失敗: %w", err)
	}

	var cached []cachedArticle
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, false, fmt.Errorf("記事キャッシュの復元に失敗: %w", err)
	}

	articles := make([]model.Article, len(cached))
	for i, a := range cached {
		articles[i] = model.Article(a)
	}
	return articles, true, nil
}

// Set はカテゴリの記事一覧をTTL付きで保存する。
func (c *RedisArticleCache) Set(ctx context.Context, category string, articles []model.Article) error {
	cached := make([]cachedArticle, len(articles))
	for i, a := range articles {
		cached[i] = cachedArticle(a)
	}

	data, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("記事キャッシュのシリアライズに失敗: %w", err)
	}
	if err := c.rdb.Set(ctx, Key(category), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("記事キャッシュの保存に失敗: %w", err)
	}
	return nil
}
