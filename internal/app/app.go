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

	"github.com/hitoshi/hcadmin/internal/auth"
	"github.com/hitoshi/hcadmin/internal/config"
	"github.com/hitoshi/hcadmin/internal/credential"
	"github.com/hitoshi/hcadmin/internal/database"
	"github.com/hitoshi/hcadmin/internal/handler"
	"github.com/hitoshi/hcadmin/internal/hcloud"
	"github.com/hitoshi/hcadmin/internal/logger"
	"github.com/hitoshi/hcadmin/internal/metrics"
	"github.com/hitoshi/hcadmin/internal/middleware"
	"github.com/hitoshi/hcadmin/internal/repository"
	"github.com/hitoshi/hcadmin/internal/resource"
	"github.com/hitoshi/hcadmin/internal/security"
	"github.com/hitoshi/hcadmin/internal/server"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, os.Getenv("LOG_LEVEL"))

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
		slog.String("identity_host", cfg.IdentityHostURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
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

	// 2. 暗号化とリポジトリの初期化
	cipher, err := security.NewTokenCipher(cfg.TokenEncryptionKey)
	if err != nil {
		return fmt.Errorf("failed to initialize token cipher: %w", err)
	}

	credRepo := repository.NewPostgresCredentialRepo(db, cipher)
	assignRepo := repository.NewPostgresAssignmentRepo(db)
	noteRepo := repository.NewPostgresNoteRepo(db)

	// 3. セッション検証の初期化
	keySource := auth.NewPublicKeySource(
		&http.Client{Timeout: 10 * time.Second},
		slog.Default(),
		cfg.IdentityHostURL,
	)
	verifier := auth.NewVerifier(keySource, slog.Default())

	// 4. メトリクスと上流クライアントの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	factory := hcloud.NewFactory(
		&http.Client{Timeout: cfg.UpstreamTimeout},
		slog.Default(),
		cfg.HCloudAPIBaseURL,
		collector,
	)

	// 5. ドメインサービスの初期化
	resolver := credential.NewResolver(credRepo, cfg.EnvAPIToken, slog.Default())
	credService := credential.NewService(credRepo, resolver, factory, slog.Default())

	serverService := server.NewService(
		func(token string) server.CloudClient { return factory.Client(token) },
		resolver, assignRepo, noteRepo, slog.Default(),
	)
	resourceService := resource.NewService(
		func(token string) resource.CloudClient { return factory.Client(token) },
		resolver, assignRepo, slog.Default(),
	)
	metadataService := resource.NewMetadataService(
		assignRepo, noteRepo, security.NewNoteSanitizer(), slog.Default(),
	)

	// 6. レート制限の初期化（設定値はreq/min単位、limiterはreq/sec単位）
	rlCfg := middleware.DefaultRateLimiterConfig()
	rlCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rlCfg.GeneralBurst = cfg.RateLimitGeneral
	rlCfg.MutationRate = rate.Limit(float64(cfg.RateLimitMutation) / 60.0)
	rlCfg.MutationBurst = cfg.RateLimitMutation

	rateLimiter := middleware.NewRateLimiter(rlCfg)
	defer rateLimiter.Stop()

	// 7. ルーターの構築
	router := handler.NewRouter(&handler.RouterDeps{
		SessionVerifier:   verifier,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,

		TokenService:    credService,
		ServerService:   serverService,
		ResourceService: resourceService,
		MetadataService: metadataService,

		MetricsHandler: metrics.Handler(registry),
	})

	// 8. HTTPサーバーの起動
	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", srv.Addr),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
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
