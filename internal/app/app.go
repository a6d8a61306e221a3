// Package app はコマンドの解析と依存関係のワイヤリングを行う。
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Daison12121/tilda-backend/internal/auth"
	"github.com/Daison12121/tilda-backend/internal/config"
	"github.com/Daison12121/tilda-backend/internal/database"
	"github.com/Daison12121/tilda-backend/internal/handler"
	"github.com/Daison12121/tilda-backend/internal/logger"
	"github.com/Daison12121/tilda-backend/internal/metrics"
	"github.com/Daison12121/tilda-backend/internal/repository"
	"github.com/Daison12121/tilda-backend/internal/security"
	"github.com/Daison12121/tilda-backend/internal/worker/cleanup"
)

// shutdownTimeout はグレースフルシャットダウンの猶予時間。
const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// .envファイルと環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	level := new(slog.LevelVar)
	logger.SetupDefault(w, level)

	// 2. .envファイルと環境変数から設定を読み込む
	if err := config.LoadEnvFile(".env"); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定のログレベルを反映
	level.Set(cfg.LogLevel)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。SIGINTまたはSIGTERMで各モードを停止する。
func Run(w io.Writer, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return newCLIApp(w).RunContext(ctx, append([]string{appName}, args...))
}

type serveOptions struct {
	// Cleanup はAPIプロセス内でクリーンアップジョブを実行するかどうか。
	Cleanup bool
}

// runServe はAPIサーバーモードで起動する。
// レコードストアを開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config, opts serveOptions) error {
	slog.Info("starting application",
		slog.String("command", string(CommandServe)),
		slog.String("port", cfg.ServerPort),
		slog.String("store_backend", cfg.StoreBackend),
	)

	// 1. メトリクスの初期化
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	// 2. レコードストアの初期化
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	// 3. ドメインサービスの初期化
	authService := auth.NewService(repository.NewInstrumentedStore(store, collector), auth.Config{
		TokenTTL:         cfg.TokenTTL,
		Timeout:          cfg.StoreTimeout,
		AllowEmailLookup: cfg.AllowEmailLookup,
	})
	if authService.EmailLookupAllowed() {
		slog.Warn("lookup by email is enabled: anyone who knows an email address can read that user's profile; set ALLOW_EMAIL_LOOKUP=false to require a token")
	}

	// 4. ルーターの構築
	router := handler.NewRouter(&handler.RouterDeps{
		AuthService:       authService,
		CabinetPath:       cfg.CabinetPath,
		Sanitizer:         security.NewProfileSanitizer(),
		HealthChecker:     store,
		Metrics:           collector,
		MetricsHandler:    metrics.Handler(reg),
		Logger:            slog.Default(),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
	})

	// 5. クリーンアップジョブ（任意）
	if opts.Cleanup {
		job := newCleanupJob(store, collector, cfg)
		go job.Start(ctx, cfg.CleanupInterval)
	}

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.StoreTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// レコードストアを開き、期限切れトークンのクリーンアップを定期実行する。
// ctxがキャンセルされるとシャットダウンする。
func runWorker(ctx context.Context, cfg *config.Config) error {
	slog.Info("starting application",
		slog.String("command", string(CommandWorker)),
		slog.String("store_backend", cfg.StoreBackend),
	)

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	job := newCleanupJob(store, nil, cfg)

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
		slog.Duration("token_retention", cfg.TokenRetention),
	)

	// キャンセルされるまでブロッキング
	job.Start(ctx, cfg.CleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// newCleanupJob は設定を反映したクリーンアップジョブを生成する。recorderはnilでもよい。
func newCleanupJob(pruner repository.TokenPruner, recorder cleanup.PruneRecorder, cfg *config.Config) *cleanup.CleanupJob {
	job := cleanup.NewCleanupJob(pruner, recorder, slog.Default())
	job.Retention = cfg.TokenRetention
	return job
}

type migrateOptions struct {
	// Down が正の場合、その数だけマイグレーションをロールバックする。
	Down int
	// Status がtrueの場合、現在のバージョンを出力して終了する。
	Status bool
}

// runMigrate はデータベースマイグレーションを実行する。
// 既定ではすべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config, opts migrateOptions) error {
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required for migrate")
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	switch {
	case opts.Status:
		version, dirty, err := database.MigrationVersion(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to read migration version: %w", err)
		}
		slog.Info("database migration status",
			slog.Uint64("version", uint64(version)),
			slog.Bool("dirty", dirty),
		)
		return nil

	case opts.Down > 0:
		if err := database.RollbackMigrations(cfg.DatabaseURL, opts.Down); err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}
		slog.Info("database migrations rolled back", slog.Int("steps", opts.Down))
		return nil

	default:
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		slog.Info("database migrations completed successfully")
		return nil
	}
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	endpoint := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(endpoint)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
