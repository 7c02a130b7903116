// Package feed はRSS/Atomフィードからの記事抽出と集約を提供する。
// 取得 → 解析 → 重複除去 → 新着順ソートの流れを、パーサー実装に依存せずに行う。
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/hitoshi/newsroom/internal/model"
)

// ArticleCache はカテゴリ単位の記事キャッシュのインターフェース。
type ArticleCache interface {
	// Get はキャッシュを取得する。存在しない場合はfalseを返す。
	Get(ctx context.Context, category string) ([]model.Article, bool, error)
	Set(ctx context.Context, category string, articles []model.Article) error
}

// BatchFetcher は複数ソースの一括取得のインターフェース。
type BatchFetcher interface {
	FetchAll(ctx context.Context, sources []Source) AggregateResult
}

// Service は記事一覧のユースケースを提供する。
type Service struct {
	fetcher BatchFetcher
	sources []Source
	cache   ArticleCache
	logger  *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
// cacheがnilの場合は毎回フェッチする。
func NewService(fetcher BatchFetcher, sources []Source, cache ArticleCache, logger *slog.Logger) *Service {
	return &Service{
		fetcher: fetcher,
		sources: sources,
		cache:   cache,
		logger:  logger,
	}
}

// Categories は提供可能なカテゴリを返す。
func (s *Service) Categories() []string {
	return Categories(s.sources)
}

// Articles はカテゴリの記事一覧を新しい順に返す。
// 空文字とallは全カテゴリを対象とする。未知のカテゴリはエラーになる。
func (s *Service) Articles(ctx context.Context, category string) ([]model.Article, error) {
	category = strings.ToLower(strings.TrimSpace(category))
	if category == "" {
		category = model.CategoryAll
	}
	if category != model.CategoryAll && !slices.Contains(s.Categories(), category) {
		return nil, model.NewInvalidCategoryError(category)
	}

	if articles, ok := s.cached(ctx, category); ok {
		return articles, nil
	}

	result := s.fetcher.FetchAll(ctx, SourcesFor(s.sources, category))
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("記事の取得が中断されました: %w", err)
	}

	if result.AllFailed(category) {
		s.logger.Warn("全ソースの取得に失敗したためキャッシュしません",
			slog.String("category", category),
			slog.Int("failed_count", result.Failed()),
		)
		return result.Articles, nil
	}

	s.store(ctx, category, result.Articles)
	return result.Articles, nil
}

// Refresh は全ソースを取得し、全体とカテゴリ別のキャッシュを更新する。
// ワーカーから定期的に呼び出される。全ソースが失敗したカテゴリは既存のキャッシュを残す。
func (s *Service) Refresh(ctx context.Context) (AggregateResult, error) {
	result := s.fetcher.FetchAll(ctx, s.sources)
	if err := ctx.Err(); err != nil {
		return result, err
	}

	if result.AllFailed(model.CategoryAll) {
		s.logger.Warn("全ソースの取得に失敗したためキャッシュを更新しません",
			slog.Int("failed_count", result.Failed()),
		)
		return result, nil
	}

	s.store(ctx, model.CategoryAll, result.Articles)
	for _, category := range s.Categories() {
		if result.AllFailed(category) {
			continue
		}
		s.store(ctx, category, FilterByCategory(result.Articles, category))
	}

	s.logger.Info("記事キャッシュを更新しました",
		slog.Int("article_count", len(result.Articles)),
		slog.Int("failed_count", result.Failed()),
	)
	return result, nil
}

// cached はキャッシュを参照する。キャッシュの障害はミスとして扱う。
func (s *Service) cached(ctx context.Context, category string) ([]model.Article, bool) {
	if s.cache == nil {
		return nil, false
	}
	articles, ok, err := s.cache.Get(ctx, category)
	if err != nil {
		s.logger.Warn("記事キャッシュの取得に失敗しました",
			slog.String("category", category),
			slog.String("error", err.Error()),
		)
		return nil, false
	}
	return articles, ok
}

func (s *Service) store(ctx context.Context, category string, articles []model.Article) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, category, articles); err != nil {
		s.logger.Warn("記事キャッシュの保存に失敗しました",
			slog.String("category", category),
			slog.String("error", err.Error()),
		)
	}
}
