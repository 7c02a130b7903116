package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/newsroom/internal/cache"
	"github.com/hitoshi/newsroom/internal/config"
	"github.com/hitoshi/newsroom/internal/database"
	"github.com/hitoshi/newsroom/internal/feed"
	"github.com/hitoshi/newsroom/internal/handler"
	"github.com/hitoshi/newsroom/internal/logger"
	"github.com/hitoshi/newsroom/internal/metrics"
	"github.com/hitoshi/newsroom/internal/middleware"
	"github.com/hitoshi/newsroom/internal/points"
	"github.com/hitoshi/newsroom/internal/queue"
	"github.com/hitoshi/newsroom/internal/repository"
	"github.com/hitoshi/newsroom/internal/security"
	"github.com/hitoshi/newsroom/internal/worker/cleanup"
	"github.com/hitoshi/newsroom/internal/worker/refresh"
)

const (
	shutdownTimeout = 30 * time.Second
	cleanupInterval = 24 * time.Hour
)

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップしてから環境変数の設定を読み込み、ログレベルを反映する。
func Init(w io.Writer) (*config.Config, error) {
	logger.SetupDefault(w)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		slog.Warn("unknown log level, falling back to info",
			slog.String("log_level", cfg.LogLevel),
		)
	}
	logger.SetLevel(level)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// argsにはos.Args[1:]を渡す。ctxがキャンセルされるとサーバーとワーカーを停止する。
func Run(ctx context.Context, w io.Writer, args []string) error {
	cmd, err := ParseCommand(args)
	if err != nil {
		return err
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("feed_parser", cfg.FeedParser),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// ポイント台帳、メッセージキュー、記事一覧を配線し、HTTPサーバーと
// キューの配信ループ、失敗メッセージのクリーンアップを並行に動かす。
func runServe(ctx context.Context, cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("database connection established")

	// 2. メトリクス
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 3. ポイント台帳
	pointsService := points.NewService(repository.NewPostgresPointsRepo(db), collector, slog.Default())

	// 4. オフラインメッセージキュー
	store, err := queue.OpenSQLiteStore(ctx, cfg.QueueDBPath)
	if err != nil {
		return fmt.Errorf("failed to open queue store: %w", err)
	}
	defer store.Close()

	messageRepo := repository.NewPostgresMessageRepo(db)
	messageQueue := queue.New(store, messageRepo, queue.RetryPolicy{
		MaxAttempts:    cfg.QueueMaxAttempts,
		InitialBackoff: cfg.QueueInitialBackoff,
		MaxBackoff:     cfg.QueueMaxBackoff,
	}, collector, slog.Default())
	cleanupJob := cleanup.NewCleanupJob(store, slog.Default(), cfg.QueueRetentionDays)

	// 5. 記事一覧
	articleService, closeCache, err := buildArticleService(ctx, cfg, collector)
	if err != nil {
		return err
	}
	defer closeCache()

	// 6. ルーター
	rateLimiter := middleware.NewRateLimiter(middleware.PerMinute(cfg.RateLimitPerMinute), slog.Default())
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		StatusRecorder:    collector,
		HealthChecker:     db,
		MetricsHandler:    metrics.Handler(registry),
		PointsService:     pointsService,
		MessageService:    handler.NewMessageServiceAdapter(messageQueue, messageRepo),
		ArticleService:    articleService,
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		messageQueue.Start(gctx, cfg.QueueInterval)
		return nil
	})
	g.Go(func() error {
		cleanupJob.Start(gctx, cleanupInterval)
		return nil
	})
	g.Go(func() error {
		return listenAndServe(gctx, server, "API server")
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 記事キャッシュを定期的に更新し、メトリクスを専用ポートで公開する。
// キャッシュを共有するためREDIS_URLが必須。
func runWorker(ctx context.Context, cfg *config.Config) error {
	if cfg.RedisURL == "" {
		return errors.New("worker requires REDIS_URL to share the article cache")
	}

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	articleService, closeCache, err := buildArticleService(ctx, cfg, collector)
	if err != nil {
		return err
	}
	defer closeCache()

	refresher := refresh.NewRefresher(articleService, slog.Default())
	metricsServer := &http.Server{
		Addr:              ":" + cfg.MetricsPort,
		Handler:           metrics.SetupMetricsRoute(registry),
		ReadHeaderTimeout: 5 * time.Second,
	}

	slog.Info("worker starting",
		slog.Duration("refresh_interval", cfg.FeedRefreshInterval),
		slog.Int("max_concurrent", cfg.FeedMaxConcurrent),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		refresher.Start(gctx, cfg.FeedRefreshInterval)
		return nil
	})
	g.Go(func() error {
		return listenAndServe(gctx, metricsServer, "metrics server")
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("worker stopped gracefully")
	return nil
}

// buildArticleService はフィード取得からキャッシュまでを配線したfeed.Serviceを返す。
// REDIS_URLが未設定の場合はキャッシュなしで動作する。戻り値の関数でRedis接続を閉じる。
func buildArticleService(ctx context.Context, cfg *config.Config, recorder feed.Recorder) (*feed.Service, func(), error) {
	sources, err := feed.LoadSources(cfg.FeedSourcesFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load feed sources: %w", err)
	}

	sanitizer := security.NewStrictSanitizer()
	fetcher := feed.NewHTTPFetcher(security.NewSSRFGuard(), cfg.FeedTimeout, cfg.FeedMaxSize)
	aggregator := feed.NewAggregator(
		fetcher, newParser(cfg.FeedParser, sanitizer), recorder,
		slog.Default(), cfg.FeedTimeout, cfg.FeedMaxConcurrent,
	)

	var articleCache feed.ArticleCache
	closeCache := func() {}
	if cfg.RedisURL != "" {
		rdb, err := cache.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		articleCache = cache.NewRedisArticleCache(rdb, cfg.ArticleCacheTTL)
		closeCache = func() { _ = rdb.Close() }
		slog.Info("article cache enabled", slog.Duration("ttl", cfg.ArticleCacheTTL))
	}

	slog.Info("feed sources loaded", slog.Int("source_count", len(sources)))
	return feed.NewService(aggregator, sources, articleCache, slog.Default()), closeCache, nil
}

// newParser は設定値に対応するフィードパーサーを返す。
func newParser(kind string, sanitizer feed.Sanitizer) feed.Parser {
	if kind == config.ParserGofeed {
		return feed.NewGofeedParser(sanitizer)
	}
	return feed.NewRegexParser(sanitizer)
}

// listenAndServe はctxがキャンセルされるまでserverを動かし、その後グレースフルに停止する。
func listenAndServe(ctx context.Context, server *http.Server, name string) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info(name+" starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("%s listen error: %w", name, err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down " + name)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("%s shutdown failed: %w", name, err)
	}
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

// maskDatabaseURL はデータベースURLのパスワードを伏せる。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
