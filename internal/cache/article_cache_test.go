package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/newsroom/internal/model"
)

// memoryHook はGET/SETをメモリ上で処理するフック。サーバーには接続しない。
type memoryHook struct {
	data    map[string]string
	lastArg []interface{}
}

func (h *memoryHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (h *memoryHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		args := cmd.Args()
		switch c := cmd.(type) {
		case *redis.StringCmd:
			v, ok := h.data[args[1].(string)]
			if !ok {
				c.SetErr(redis.Nil)
				return redis.Nil
			}
			c.SetVal(v)
			return nil
		case *redis.StatusCmd:
			h.lastArg = args
			switch v := args[2].(type) {
			case []byte:
				h.data[args[1].(string)] = string(v)
			case string:
				h.data[args[1].(string)] = v
			}
			c.SetVal("OK")
			return nil
		}
		return next(ctx, cmd)
	}
}

func (h *memoryHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func newTestClient(t *testing.T) (*redis.Client, *memoryHook) {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	hook := &memoryHook{data: make(map[string]string)}
	rdb.AddHook(hook)
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb, hook
}

func TestKey(t *testing.T) {
	if got := Key("crypto"); got != "newsroom:articles:crypto" {
		t.Errorf("Key(crypto) = %q", got)
	}
}

func TestRedisArticleCache_Miss(t *testing.T) {
	rdb, _ := newTestClient(t)
	c := NewRedisArticleCache(rdb, 0)

	articles, ok, err := c.Get(context.Background(), "world")
	if err != nil {
		t.Fatalf("キャッシュミスはエラーにしない: %v", err)
	}
	if ok || articles != nil {
		t.Errorf("Get() = %v, %v, want miss", articles, ok)
	}
}

func TestRedisArticleCache_SetThenGet(t *testing.T) {
	rdb, hook := newTestClient(t)
	c := NewRedisArticleCache(rdb, time.Minute)
	ctx := context.Background()

	published := time.Date(2026, 6, 1, 9, 30, 0, 0, time.UTC)
	want := []model.Article{
		{
			ID:            model.ArticleID("https://example.com/a"),
			Title:         "見出し",
			URL:           "https://example.com/a",
			Source:        "example",
			Category:      "world",
			PublishedAt:   published,
			DateEstimated: true,
			Author:        "Reporter",
			Excerpt:       "本文の抜粋",
			Thumbnail:     "https://example.com/a.jpg",
		},
		{URL: "https://example.com/b", Source: "example", Category: "world", PublishedAt: published.Add(-time.Hour)},
	}

	if err := c.Set(ctx, "world", want); err != nil {
		t.Fatalf("Set() がエラーを返した: %v", err)
	}
	if _, ok := hook.data["newsroom:articles:world"]; !ok {
		t.Fatalf("カテゴリのキーに保存されていない: %v", hook.data)
	}
	if len(hook.lastArg) < 5 {
		t.Errorf("TTL付きで保存するべき: args = %v", hook.lastArg)
	}

	got, ok, err := c.Get(ctx, "world")
	if err != nil || !ok {
		t.Fatalf("Get() = %v, %v", ok, err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Get() mismatch (-want +got):\n%s", diff)
	}
}

func TestRedisArticleCache_CorruptEntry(t *testing.T) {
	rdb, hook := newTestClient(t)
	hook.data[Key("world")] = "{not json"
	c := NewRedisArticleCache(rdb, 0)

	if _, _, err := c.Get(context.Background(), "world"); err == nil {
		t.Error("壊れたキャッシュはエラーを返すべき")
	}
}

func TestRedisArticleCache_ClosedClient(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	_ = rdb.Close()
	c := NewRedisArticleCache(rdb, 0)
	ctx := context.Background()

	if _, _, err := c.Get(ctx, "world"); err == nil || errors.Is(err, redis.Nil) {
		t.Errorf("Get() err = %v, want connection error", err)
	}
	if err := c.Set(ctx, "world", nil); err == nil {
		t.Error("Set() はエラーを返すべき")
	}
}

func TestNewClient_InvalidURL(t *testing.T) {
	if _, err := NewClient(context.Background(), "://bad"); err == nil {
		t.Error("不正なURLはエラーを返すべき")
	}
}
