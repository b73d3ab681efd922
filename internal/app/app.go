// Package app はアプリケーションの起動と依存関係のワイヤリングを提供する。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mbuesch/feedreaders/internal/config"
	"github.com/mbuesch/feedreaders/internal/database"
	"github.com/mbuesch/feedreaders/internal/feed"
	"github.com/mbuesch/feedreaders/internal/handler"
	"github.com/mbuesch/feedreaders/internal/item"
	"github.com/mbuesch/feedreaders/internal/logger"
	"github.com/mbuesch/feedreaders/internal/metrics"
	"github.com/mbuesch/feedreaders/internal/repository"
	"github.com/mbuesch/feedreaders/internal/revision"
	"github.com/mbuesch/feedreaders/internal/security"
	"github.com/mbuesch/feedreaders/internal/worker/cleanup"
	fetchpkg "github.com/mbuesch/feedreaders/internal/worker/fetch"
)

// orphanSweepInterval は孤児記事クリーンアップの実行間隔。
const orphanSweepInterval = 24 * time.Hour

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

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
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandDaemon:
		return runDaemon(cfg)
	default:
		return runDaemon(cfg)
	}
}

// runDaemon は取り込みデーモンモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、スケジューラと状態公開サーバーを
// 起動する。SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを
// 行う。実行中の取り込みサイクルは完了（またはタイムアウト）まで待たれる。
func runDaemon(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	feedRepo := repository.NewPostgresFeedRepo(db)
	itemRepo := repository.NewPostgresItemRepo(db)
	revisionRepo := repository.NewPostgresRevisionRepo(db)

	// 3. リビジョンカウンタの読み込み（起動時に1回）
	counter, err := revision.Load(context.Background(), revisionRepo)
	if err != nil {
		return fmt.Errorf("failed to load revision counter: %w", err)
	}

	slog.Info("revision counter loaded", slog.Int64("revision", counter.Read()))

	// 4. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)
	collector.SetRevision(counter.Read())

	// 5. セキュリティサービスの初期化
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewSummarySanitizer()

	// 6. 取り込みパイプラインの構築
	parser := feed.NewParser()

	policy := &item.HighlightPolicy{
		Rules:            cfg.Suppression,
		HighlightNewOnly: cfg.HighlightNewOnly,
		AutoSeen:         cfg.AutoSeen,
	}

	reconciler := item.NewReconcileService(
		db, feedRepo, itemRepo, sanitizer, policy,
		item.ReconcileConfig{
			GCAgeOffset: time.Duration(cfg.GCAgeOffsetDays) * 24 * time.Hour,
		},
		slog.Default(),
	)

	hostLimiter := fetchpkg.NewHostLimiter(cfg.PerHostRate, cfg.PerHostBurst)
	fetcher := fetchpkg.NewFetcher(ssrfGuard, hostLimiter, cfg.FetchTimeout, cfg.FetchMaxSize)

	ingestor := fetchpkg.NewIngestor(
		feedRepo, fetcher, parser, reconciler, counter, collector,
		slog.Default(),
		fetchpkg.IngestorConfig{
			DefaultInterval: cfg.RefreshInterval,
			SlackFraction:   cfg.RefreshSlack,
		},
	)

	scheduler := fetchpkg.NewScheduler(feedRepo, ingestor, slog.Default(), cfg.FetchMaxConcurrent)

	// 7. 孤児記事クリーンアップジョブの初期化
	sweepJob := cleanup.NewOrphanSweepJob(db, slog.Default())

	// 8. 状態公開サーバーの構築
	router := handler.NewRouter(&handler.RouterDeps{
		HealthChecker: db,
		Revision:      counter,
		Gatherer:      registry,
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down daemon...")
		cancel()
	}()

	go func() {
		slog.Info("status server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	// 孤児記事クリーンアップをバックグラウンドで日次実行
	go sweepJob.Start(ctx, orphanSweepInterval)

	slog.Info("daemon starting",
		slog.Duration("refresh_interval", cfg.RefreshInterval),
		slog.Duration("poll_interval", cfg.SchedulerPollInterval),
		slog.Int("max_concurrent", cfg.FetchMaxConcurrent),
	)

	// スケジューラをメインgoroutineで実行（ブロッキング）。
	// コンテキストのキャンセル後、実行中サイクルの完了を待ってから戻る。
	scheduler.Start(ctx, cfg.SchedulerPollInterval)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("daemon stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
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
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
