package feed

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/newsroom/internal/model"
)

const (
	// defaultFetchTimeout はソースごとのフェッチタイムアウト。
	defaultFetchTimeout = 15 * time.Second
	// defaultMaxConcurrent は同時にフェッチするソース数の上限。
	defaultMaxConcurrent = 8
)

// Fetcher はURLの本文テキストを取得するインターフェース。
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Recorder はフィード取得のメトリクス記録インターフェース。
type Recorder interface {
	RecordFeedFetch(source string, success bool, duration time.Duration)
	RecordArticlesParsed(source string, count int)
}

// SourceReport はソースごとの取得結果。
type SourceReport struct {
	Source   Source
	Articles int
	Duration time.Duration
	Err      error
}

// AggregateResult はFetchAllの結果。
type AggregateResult struct {
	Articles []model.Article
	Reports  []SourceReport
}

// Failed は取得に失敗したソース数を返す。
func (r AggregateResult) Failed() int {
	n := 0
	for _, rep := range r.Reports {
		if rep.Err != nil {
			n++
		}
	}
	return n
}

// AllFailed はカテゴリに属するソースが1つ以上あり、そのすべてが失敗したかを返す。
// 空文字とallは全ソースを対象とする。
func (r AggregateResult) AllFailed(category string) bool {
	total := 0
	for _, rep := range r.Reports {
		if category != "" && category != model.CategoryAll && rep.Source.Category != category {
			continue
		}
		if rep.Err == nil {
			return false
		}
		total++
	}
	return total > 0
}

// Aggregator は複数ソースを並行にフェッチして記事をまとめる。
// 各ソースは独立したタイムアウトを持ち、1つの失敗が他のソースを止めることはない。
type Aggregator struct {
	fetcher       Fetcher
	parser        Parser
	metrics       Recorder
	logger        *slog.Logger
	timeout       time.Duration
	maxConcurrent int
	now           func() time.Time
}

// NewAggregator はAggregatorの新しいインスタンスを生成する。
// timeoutとmaxConcurrentが0以下の場合はデフォルト値を使用する。
func NewAggregator(fetcher Fetcher, parser Parser, metrics Recorder, logger *slog.Logger, timeout time.Duration, maxConcurrent int) *Aggregator {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &Aggregator{
		fetcher:       fetcher,
		parser:        parser,
		metrics:       metrics,
		logger:        logger,
		timeout:       timeout,
		maxConcurrent: maxConcurrent,
		now:           time.Now,
	}
}

// FetchAll は全ソースを並行にフェッチし、成功したソースの記事を
// URLで重複除去したうえで新しい順に並べて返す。
// ソース単位の失敗はReportsに記録し、エラーとしては返さない。
func (a *Aggregator) FetchAll(ctx context.Context, sources []Source) AggregateResult {
	start := time.Now()
	reports := make([]SourceReport, len(sources))
	perSource := make([][]model.Article, len(sources))

	var g errgroup.Group
	g.SetLimit(a.maxConcurrent)

	for i, src := range sources {
		g.Go(func() error {
			perSource[i], reports[i] = a.fetchSource(ctx, src)
			return nil
		})
	}
	_ = g.Wait()

	var all []model.Article
	for _, articles := range perSource {
		all = append(all, articles...)
	}
	all = Dedupe(all)
	SortByRecency(all)

	result := AggregateResult{Articles: all, Reports: reports}
	a.logger.Info("フィードの一括取得が完了しました",
		slog.Int("source_count", len(sources)),
		slog.Int("failed_count", result.Failed()),
		slog.Int("article_count", len(all)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return result
}

// fetchSource は1ソースをタイムアウト付きでフェッチして解析する。
func (a *Aggregator) fetchSource(ctx context.Context, src Source) ([]model.Article, SourceReport) {
	report := SourceReport{Source: src}
	start := time.Now()

	fetchCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	body, err := a.fetcher.Fetch(fetchCtx, src.URL)
	report.Duration = time.Since(start)
	if err != nil {
		report.Err = err
		a.metrics.RecordFeedFetch(src.Name, false, report.Duration)
		a.logger.Warn("フィードの取得に失敗しました",
			slog.String("feed_source", src.Name),
			slog.String("feed_url", src.URL),
			slog.Float64("duration_ms", float64(report.Duration.Milliseconds())),
			slog.String("error", err.Error()),
		)
		return nil, report
	}
	a.metrics.RecordFeedFetch(src.Name, true, report.Duration)

	articles := ParseFeed(a.logger, a.parser, body, src, a.now())
	report.Articles = len(articles)
	a.metrics.RecordArticlesParsed(src.Name, len(articles))

	return articles, report
}

type nopRecorder struct{}

func (nopRecorder) RecordFeedFetch(string, bool, time.Duration) {}
func (nopRecorder) RecordArticlesParsed(string, int) {}
