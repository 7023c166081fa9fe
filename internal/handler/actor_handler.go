package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/hitoshi/walletbind/internal/actor"
)

// ActorResolverInterface はアクターハンドラーが必要とする解決器インターフェース。
type ActorResolverInterface interface {
	Resolve(ctx context.Context, wallets []string) map[string]actor.Descriptor
}

// ActorHandler はウォレット→表示アイデンティティ解決のHTTPハンドラー。
type ActorHandler struct {
	resolver ActorResolverInterface
}

// NewActorHandler はActorHandlerを生成する。
func NewActorHandler(resolver ActorResolverInterface) *ActorHandler {
	return &ActorHandler{resolver: resolver}
}

// maxActorWallets は一度に解決できるウォレット数の上限。
const maxActorWallets = 50

// Resolve はカンマ区切りのウォレット群を表示アイデンティティに解決する。
// GET /api/actors?wallets=0xa,0xb
func (h *ActorHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("wallets"))
	if raw == "" {
		writeBadRequest(w, "walletsにはカンマ区切りのウォレットアドレスを指定してください")
		return
	}

	wallets := strings.Split(raw, ",")
	if len(wallets) > maxActorWallets {
		writeBadRequest(w, "一度に解決できるウォレットは50件までです")
		return
	}

	writeJSON(w, http.StatusOK, h.resolver.Resolve(r.Context(), wallets))
}
