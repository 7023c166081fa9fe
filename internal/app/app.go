// Package app はアプリケーションの起動とワイヤリングを提供する。
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

	"github.com/hitoshi/walletbind/internal/actor"
	"github.com/hitoshi/walletbind/internal/claim"
	"github.com/hitoshi/walletbind/internal/config"
	"github.com/hitoshi/walletbind/internal/ghissue"
	"github.com/hitoshi/walletbind/internal/handler"
	"github.com/hitoshi/walletbind/internal/logger"
	"github.com/hitoshi/walletbind/internal/metrics"
	"github.com/hitoshi/walletbind/internal/middleware"
	"github.com/hitoshi/walletbind/internal/notification"
	"github.com/hitoshi/walletbind/internal/oracle"
	"github.com/hitoshi/walletbind/internal/recordstore"
	"github.com/hitoshi/walletbind/internal/repository"
	"github.com/hitoshi/walletbind/internal/security"
	"github.com/hitoshi/walletbind/internal/token"
)

// upstreamTimeout は外部コラボレーター（issueソース・オラクル・レコードストア）
// へのHTTPリクエストのタイムアウト。
const upstreamTimeout = 10 * time.Second

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
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	default:
		return runServe(cfg)
	}
}

// repos はレコードストア上のリポジトリ一式。
type repos struct {
	accounts      *repository.StoreAccountRepo
	bots          *repository.StoreBotRepo
	notifications *repository.StoreNotificationRepo
}

// buildRepos はレコードストアクライアントとリポジトリをワイヤリングする。
func buildRepos(cfg *config.Config) *repos {
	store := recordstore.NewClient(
		&http.Client{Timeout: upstreamTimeout},
		slog.Default(),
		cfg.RecordStoreURL, cfg.AdminEmail, cfg.AdminPassword,
	)
	return &repos{
		accounts:      repository.NewStoreAccountRepo(store),
		bots:          repository.NewStoreBotRepo(store),
		notifications: repository.NewStoreNotificationRepo(store),
	}
}

// runServe はAPIサーバーモードで起動する。
// 全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. リポジトリの初期化
	r := buildRepos(cfg)

	// 2. セキュリティサービスの初期化
	// issueソースとオラクルは利用者由来の入力に近いコラボレーターのため、
	// プライベートアドレスに到達できないHTTPクライアントで呼び出す
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewTextSanitizer()

	// 3. 外部コラボレーターの初期化
	issueClient := ghissue.NewClient(
		ssrfGuard.NewSafeClient(upstreamTimeout),
		slog.Default(), cfg.GithubAPIBase, cfg.GithubToken,
	)
	oracleClient := oracle.NewClient(
		ssrfGuard.NewSafeClient(upstreamTimeout),
		slog.Default(), cfg.OracleRPCURL, cfg.OracleFeedAddress,
	)

	// 4. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 5. ドメインサービスの初期化
	tokenCodec := token.New(cfg.SessionSecret, cfg.TokenTTL)
	notifier := notification.NewService(r.notifications, slog.Default())

	claimService := claim.NewService(claim.Deps{
		Accounts:    r.accounts,
		Bots:        r.bots,
		Issues:      issueClient,
		Rounds:      oracleClient,
		Tokens:      tokenCodec,
		Sanitizer:   sanitizer,
		Notifier:    notifier,
		Metrics:     collector,
		Logger:      slog.Default(),
		NonceMaxAge: cfg.NonceMaxAge,
	})

	actorResolver := actor.NewResolver(r.accounts, r.bots, slog.Default())

	// 6. レート制限の初期化（configはreq/min単位、limiterはreq/sec単位）
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	rateLimiterCfg.GeneralRate = perMinute(cfg.RateLimitGeneral)
	rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	rateLimiterCfg.ClaimRate = perMinute(cfg.RateLimitClaim)
	rateLimiterCfg.ClaimBurst = cfg.RateLimitClaim
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	// 7. ルーターの構築
	router := handler.NewRouter(&handler.RouterDeps{
		TokenVerifier:     tokenCodec,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),
		StatusRecorder:    collector,

		ClaimService:  claimService,
		FamilyBots:    r.bots,
		ActorResolver: actorResolver,
		Notifications: r.notifications,

		MetricsHandler: metrics.Handler(registry),
	})

	// 8. HTTPサーバーの起動
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
// 既読通知のクリーンアップジョブを日次で実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	r := buildRepos(cfg)

	retentionJob := notification.NewRetentionJob(r.notifications, slog.Default())
	retentionJob.RetentionDays = cfg.NotificationRetentionDays

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
		slog.Int("retention_days", retentionJob.RetentionDays),
	)

	// 起動直後に1回実行し、以降は日次で実行する
	if err := retentionJob.Run(ctx); err != nil {
		slog.Error("retention job failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped gracefully")
			return nil
		case <-ticker.C:
			if err := retentionJob.Run(ctx); err != nil {
				slog.Error("retention job failed", slog.String("error", err.Error()))
			}
		}
	}
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
