// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/hitoshi/walletbind/internal/model"
	"github.com/hitoshi/walletbind/internal/token"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// walletContextKey はリクエストコンテキストにウォレットを格納するためのキー。
var walletContextKey = contextKey("wallet")

// TokenVerifier はセッショントークンの検証に必要なインターフェース。
// token.Codecの部分集合として定義する。
type TokenVerifier interface {
	Verify(tokenStr string) map[string]any
}

// NewAuthMiddleware はAuthorization: Bearerヘッダーのセッショントークンを
// 検証するミドルウェアを返す。検証はトークンコーデックのみで完結し、
// 外部呼び出しを行わない。
// 認証済みウォレットをリクエストコンテキストに注入する。
// 未認証リクエストには401 Unauthorizedを返す。
func NewAuthMiddleware(verifier TokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authz := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(authz, prefix) {
				writeUnauthorized(w)
				return
			}

			claims := verifier.Verify(strings.TrimPrefix(authz, prefix))
			if claims == nil {
				writeUnauthorized(w)
				return
			}
			wallet := token.Subject(claims)
			if wallet == "" {
				writeUnauthorized(w)
				return
			}

			ctx := context.WithValue(r.Context(), walletContextKey, wallet)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusUnauthorized, &model.APIError{
		Code:     "UNAUTHORIZED",
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "サインインしてトークンを取得し、Authorizationヘッダーに設定してください。",
	})
}

// WalletFromContext はリクエストコンテキストから認証済みウォレットを取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func WalletFromContext(ctx context.Context) (string, error) {
	wallet, ok := ctx.Value(walletContextKey).(string)
	if !ok || wallet == "" {
		return "", fmt.Errorf("wallet not found in context")
	}
	return wallet, nil
}

// ContextWithWallet はコンテキストにウォレットを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithWallet(ctx context.Context, wallet string) context.Context {
	return context.WithValue(ctx, walletContextKey, wallet)
}
