package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/walletbind/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	TokenVerifier     middleware.TokenVerifier
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger
	StatusRecorder    middleware.StatusRecorder // 省略可

	// サービス
	ClaimService  ClaimServiceInterface
	FamilyBots    BotLister
	ActorResolver ActorResolverInterface
	Notifications NotificationStore

	// /metrics用ハンドラー。省略時はルートを公開しない
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging
//
// 認証ルート（/auth/*）は未認証で呼ばれるため、接続元IPをキーとする
// claim専用レート制限のみを適用する。/api/actors と /api/notifications は
// Bearerトークン認証を必須とする。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.StatusRecorder))

	authHandler := NewAuthHandler(deps.ClaimService)
	familyHandler := NewFamilyHandler(deps.FamilyBots)
	actorHandler := NewActorHandler(deps.ActorResolver)
	notifHandler := NewNotificationHandler(deps.Notifications)

	// --- 認証不要のルート ---

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// サインイン・claim（issueソースとオラクルへのファンアウトを伴うため厳格に制限）
	r.Route("/auth", func(r chi.Router) {
		r.Use(deps.RateLimiter.ClaimMiddleware())
		r.Post("/sign-in", authHandler.SignIn)
		r.Post("/claim-identity", authHandler.Claim)
	})

	// ファミリーMerkleコミットメント（読み取り専用・公開）
	r.Route("/api/family", func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Get("/root", familyHandler.Root)
		r.Get("/proof", familyHandler.Proof)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Auth → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.TokenVerifier))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/api/actors", actorHandler.Resolve)

		r.Route("/api/notifications", func(r chi.Router) {
			r.Get("/", notifHandler.List)
			r.Post("/{id}/read", notifHandler.MarkRead)
		})
	})

	return r
}
