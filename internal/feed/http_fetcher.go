package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// defaultMaxBodySize はレスポンスボディの読み込み上限（5MiB）。
const defaultMaxBodySize = 5 * 1024 * 1024

// ErrBodyTooLarge はレスポンスボディが上限を超えたことを表す。
var ErrBodyTooLarge = errors.New("feed body exceeds size limit")

// URLGuard は外向きリクエストの安全性を検証するインターフェース。
type URLGuard interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration) *http.Client
}

// StatusError はフィードが200以外のステータスを返したことを表す。
type StatusError struct {
	URL        string
	StatusCode int
}

// Error はerrorインターフェースを実装する。
func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// HTTPFetcher はSSRF対策済みクライアントでフィードを取得するFetcher。
type HTTPFetcher struct {
	guard       URLGuard
	client      *http.Client
	maxBodySize int64
}

// NewHTTPFetcher はHTTPFetcherを生成する。
// タイムアウトは呼び出し側のコンテキストで制御し、clientTimeoutは上限として使う。
func NewHTTPFetcher(guard URLGuard, clientTimeout time.Duration, maxBodySize int64) *HTTPFetcher {
	if maxBodySize <= 0 {
		maxBodySize = defaultMaxBodySize
	}
	return &HTTPFetcher{
		guard:       guard,
		client:      guard.NewSafeClient(clientTimeout),
		maxBodySize: maxBodySize,
	}
}

// Fetch はURLをGETし、本文を文字列で返す。
// 本文が上限を超える場合は途中までの内容を返さずErrBodyTooLargeを返す。
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	if err := f.guard.ValidateURL(url); err != nil {
		return "", fmt.Errorf("SSRF検証に失敗: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	req.Header.Set("User-Agent", "Newsroom/1.0 Feed Reader")
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, */*")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("HTTPリクエスト失敗: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize+1))
	if err != nil {
		return "", fmt.Errorf("レスポンス読み取り失敗: %w", err)
	}
	if int64(len(body)) > f.maxBodySize {
		return "", fmt.Errorf("%s: %w (%d bytes)", url, ErrBodyTooLarge, f.maxBodySize)
	}
	return string(body), nil
}

// compile-time interface check
var _ Fetcher = (*HTTPFetcher)(nil)
