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
	"golang.org/x/time/rate"

	"github.com/hitoshi/packgate/internal/account"
	"github.com/hitoshi/packgate/internal/admin"
	"github.com/hitoshi/packgate/internal/broadcast"
	"github.com/hitoshi/packgate/internal/catalog"
	"github.com/hitoshi/packgate/internal/config"
	"github.com/hitoshi/packgate/internal/database"
	"github.com/hitoshi/packgate/internal/handler"
	"github.com/hitoshi/packgate/internal/ledger"
	"github.com/hitoshi/packgate/internal/logger"
	"github.com/hitoshi/packgate/internal/metrics"
	"github.com/hitoshi/packgate/internal/middleware"
	"github.com/hitoshi/packgate/internal/purchase"
	"github.com/hitoshi/packgate/internal/repository"
	"github.com/hitoshi/packgate/internal/subscription"
	"github.com/hitoshi/packgate/internal/telegram"
	"github.com/hitoshi/packgate/internal/worker/sweep"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. 設定読み込み前でもログを使えるよう、まずデフォルトレベルで初期化
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再セットアップ
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

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
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
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
	accountRepo := repository.NewPostgresAccountRepo(db)
	packRepo := repository.NewPostgresPackRepo(db)
	planRepo := repository.NewPostgresPlanRepo(db)
	grantRepo := repository.NewPostgresGrantRepo(db)
	transactionRepo := repository.NewPostgresTransactionRepo(db)

	// 3. メトリクスとTelegramクライアントの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	tgClient := telegram.NewClient(
		&http.Client{Timeout: cfg.IssueTimeout},
		slog.Default(),
		cfg.BotToken,
	)

	// 4. ドメインサービスの初期化
	accountService := account.NewService(accountRepo)
	ledgerService := ledger.NewService(accountRepo, transactionRepo)
	catalogService := catalog.NewService(packRepo, planRepo)
	subscriptionService := subscription.NewService(grantRepo, accountRepo)

	purchaseService := purchase.NewService(
		catalogService, ledgerService, subscriptionService,
		tgClient, collector, slog.Default(), cfg.IssueTimeout,
	)

	adminService := admin.NewService(ledgerService, subscriptionService, accountRepo, transactionRepo)
	broadcastService := broadcast.NewService(accountRepo, tgClient, collector, slog.Default(), cfg.BroadcastRate)

	// 5. ルーターの構築
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	rateLimiterCfg.GeneralRate = perMinute(cfg.RateLimitGeneral)
	rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	rateLimiterCfg.PurchaseRate = perMinute(cfg.RateLimitPurchase)
	rateLimiterCfg.PurchaseBurst = cfg.RateLimitPurchase
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		Logger:        slog.Default(),
		ServiceAPIKey: cfg.ServiceAPIKey,
		AdminAPIKey:   cfg.AdminAPIKey,
		RateLimiter:   rateLimiter,
		Gatherer:      registry,

		AccountService: accountService,
		LedgerService:  ledgerService,

		CatalogService:      catalogService,
		SubscriptionService: subscriptionService,
		PurchaseService:     purchaseService,

		AdminService:        adminService,
		CatalogAdminService: catalogService,
		BroadcastService:    broadcastService,
	}

	router := handler.NewRouter(deps)

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、期限スイープとリマインダーのスケジューラを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. リポジトリとサービスの初期化
	accountRepo := repository.NewPostgresAccountRepo(db)
	grantRepo := repository.NewPostgresGrantRepo(db)

	subscriptionService := subscription.NewService(grantRepo, accountRepo)

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	tgClient := telegram.NewClient(
		&http.Client{Timeout: cfg.NotifyTimeout},
		slog.Default(),
		cfg.BotToken,
	)

	// 3. スイープとリマインダーの初期化
	sweeper := sweep.NewSweeper(subscriptionService, tgClient, collector, slog.Default())
	reminder := sweep.NewReminder(subscriptionService, tgClient, collector, slog.Default(), cfg.ReminderWindow)

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("sweep_interval", cfg.SweepInterval),
		slog.Duration("reminder_interval", cfg.ReminderInterval),
		slog.Duration("reminder_window", cfg.ReminderWindow),
	)

	// リマインダーをバックグラウンドで起動
	go reminder.Start(ctx, cfg.ReminderInterval)

	// スイープをメインgoroutineで実行（ブロッキング）
	sweeper.Start(ctx, cfg.SweepInterval)

	slog.Info("worker stopped gracefully")
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

// perMinute はreq/min単位の設定値をrate.Limit（req/sec）に変換する。
func perMinute(n int) rate.Limit {
	return rate.Limit(float64(n) / 60.0)
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
