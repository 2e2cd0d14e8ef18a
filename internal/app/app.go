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

	"github.com/hitoshi/commentq/internal/comment"
	"github.com/hitoshi/commentq/internal/config"
	"github.com/hitoshi/commentq/internal/database"
	"github.com/hitoshi/commentq/internal/handler"
	"github.com/hitoshi/commentq/internal/logger"
	"github.com/hitoshi/commentq/internal/mail"
	"github.com/hitoshi/commentq/internal/mention"
	"github.com/hitoshi/commentq/internal/metrics"
	"github.com/hitoshi/commentq/internal/post"
	"github.com/hitoshi/commentq/internal/publish"
	"github.com/hitoshi/commentq/internal/queue"
	"github.com/hitoshi/commentq/internal/security"
	"github.com/hitoshi/commentq/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
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
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandCleanup:
		return runCleanup(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// newStore はConfigのバックエンド種別に応じたキューストアを構築する。
// PostgreSQLバックエンドの場合はDB接続のクローザーを返す。
func newStore(cfg *config.Config) (queue.Store, func() error, error) {
	switch cfg.QueueBackend {
	case config.QueueBackendPostgres:
		db, err := database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		slog.Info("database connection established")
		return queue.NewPostgresStore(db), db.Close, nil

	default:
		store, err := queue.NewFSStore(cfg.QueueDir)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open queue directory: %w", err)
		}
		return store, func() error { return nil }, nil
	}
}

// runServe はモデレーションサーバーモードで起動する。
// キューストアを開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. キューストアの初期化
	store, closeStore, err := newStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	// 2. セキュリティサービスの初期化
	formatter := security.NewCommentFormatter()
	ssrfGuard := security.NewSSRFGuard()

	// 3. メトリクスの初期化（プライベートレジストリに登録する）
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 4. ドメインサービスの初期化
	resolver := post.NewResolver(cfg.PublicDir)

	publisher := publish.NewGitHubPublisher(
		&http.Client{Timeout: cfg.PublishTimeout},
		slog.Default(),
		publish.GitHubConfig{
			User:   cfg.GitHubUser,
			Repo:   cfg.GitHubRepo,
			Token:  cfg.GitHubToken,
			Branch: cfg.GitHubBranch,
		},
	)

	sender, err := mail.NewSender(mail.SenderConfig{
		SMTPAddr: cfg.SMTPAddr,
		SMTPUser: cfg.SMTPUser,
		SMTPPass: cfg.SMTPPass,
		From:     cfg.MailSender,
		Owner:    cfg.MailOwner,
		BaseURL:  cfg.BaseURL,
	}, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to initialize mail sender: %w", err)
	}

	verifier := mention.NewVerifier(
		ssrfGuard, formatter, slog.Default(),
		cfg.BaseURL, cfg.MentionTimeout, cfg.MentionMaxSize,
	)

	commentService := comment.NewService(
		resolver, formatter, store, publisher, sender,
		verifier, collector, slog.Default(), cfg.BaseURL,
	)

	// 5. ルーターの構築
	router := handler.NewRouter(&handler.RouterDeps{
		CommentService:    commentService,
		MentionVerifier:   verifier,
		Logger:            slog.Default(),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		MetricsGatherer:   registry,
	})

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // レビュー画面の言及元フェッチとGitHubコミットを含む
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("moderation server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down moderation server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("moderation server stopped gracefully")
	return nil
}

// runCleanup は保持期間超過レコードの削除を1回実行して終了する。
// cronからの日次実行を想定する。
func runCleanup(cfg *config.Config) error {
	store, closeStore, err := newStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	job := cleanup.NewCleanupJob(store, slog.Default())
	job.RetentionDays = cfg.QueueRetentionDays

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	return job.Run(ctx)
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
// PostgreSQLバックエンドでのみ使用できる。
func runMigrate(cfg *config.Config) error {
	if cfg.QueueBackend != config.QueueBackendPostgres {
		return fmt.Errorf("migrate command requires QUEUE_BACKEND=postgres")
	}

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
// /healthz エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/healthz", port)
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
