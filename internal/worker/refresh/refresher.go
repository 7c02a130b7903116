// Package refresh は記事キャッシュを定期的に温めるバックグラウンドジョブを提供する。
// リクエスト経路でのフェッチを減らすため、全ソースの取得をティッカーで繰り返す。
package refresh

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/newsroom/internal/feed"
)

// ArticleRefresher は全ソースを取得してキャッシュを更新するインターフェース。
type ArticleRefresher interface {
	Refresh(ctx context.Context) (feed.AggregateResult, error)
}

// Refresher はArticleRefresherを一定間隔で呼び出す。
type Refresher struct {
	service ArticleRefresher
	logger  *slog.Logger
}

// NewRefresher はRefresherの新しいインスタンスを生成する。
func NewRefresher(service ArticleRefresher, logger *slog.Logger) *Refresher {
	return &Refresher{
		service: service,
		logger:  logger,
	}
}

// Start は起動直後に1回、その後interval間隔でRunOnceを実行する。
// コンテキストがキャンセルされるまで戻らない。
func (r *Refresher) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("記事リフレッシュを開始しました",
		slog.Duration("interval", interval),
	)

	r.runAndLog(ctx)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("記事リフレッシュを停止しました")
			return
		case <-ticker.C:
			r.runAndLog(ctx)
		}
	}
}

// RunOnce は1回分のリフレッシュを実行する。
// 一部ソースの失敗はエラーにせず、件数をログに残す。
func (r *Refresher) RunOnce(ctx context.Context) error {
	start := time.Now()

	result, err := r.service.Refresh(ctx)
	if err != nil {
		return err
	}

	r.logger.Info("記事リフレッシュが完了しました",
		slog.Int("source_count", len(result.Reports)),
		slog.Int("failed_count", result.Failed()),
		slog.Int("article_count", len(result.Articles)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

func (r *Refresher) runAndLog(ctx context.Context) {
	if err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
		r.logger.Error("記事リフレッシュの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}
