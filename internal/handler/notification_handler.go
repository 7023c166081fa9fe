package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/walletbind/internal/middleware"
	"github.com/hitoshi/walletbind/internal/model"
)

// NotificationStore は通知ハンドラーが必要とするリポジトリインターフェース。
// repository.NotificationRepositoryの部分集合として定義する。
type NotificationStore interface {
	ListByRecipient(ctx context.Context, recipientWallet string, unreadOnly bool) ([]model.Notification, error)
	MarkRead(ctx context.Context, id, recipientWallet string) error
}

// NotificationHandler は通知のHTTPハンドラー。
type NotificationHandler struct {
	store NotificationStore
}

// NewNotificationHandler はNotificationHandlerを生成する。
func NewNotificationHandler(store NotificationStore) *NotificationHandler {
	return &NotificationHandler{store: store}
}

// notificationResponse は通知のAPI表現。
type notificationResponse struct {
	ID          string    `json:"id"`
	ActorWallet string    `json:"actor_wallet,omitempty"`
	Type        string    `json:"type"`
	Message     string    `json:"message"`
	Read        bool      `json:"read"`
	CreatedAt   time.Time `json:"created_at"`
}

// List は認証済みウォレット宛の通知一覧を返す。
// GET /api/notifications?unread=true
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	wallet, err := middleware.WalletFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, &model.APIError{
			Code:     "UNAUTHORIZED",
			Message:  "認証が必要です。",
			Category: "auth",
			Action:   "サインインし直してください。",
		})
		return
	}

	unreadOnly := r.URL.Query().Get("unread") == "true"
	notifications, err := h.store.ListByRecipient(r.Context(), wallet, unreadOnly)
	if err != nil {
		handleServiceError(w, model.NewUpstreamError("通知一覧の照会"))
		return
	}

	body := make([]notificationResponse, 0, len(notifications))
	for _, n := range notifications {
		body = append(body, notificationResponse{
			ID:          n.ID,
			ActorWallet: n.ActorWallet,
			Type:        n.Type,
			Message:     n.Message,
			Read:        n.Read,
			CreatedAt:   n.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, body)
}

// MarkRead は通知を既読にする。受信者以外からの操作は無視される。
// POST /api/notifications/{id}/read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	wallet, err := middleware.WalletFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, &model.APIError{
			Code:     "UNAUTHORIZED",
			Message:  "認証が必要です。",
			Category: "auth",
			Action:   "サインインし直してください。",
		})
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		writeBadRequest(w, "通知IDが空です")
		return
	}

	if err := h.store.MarkRead(r.Context(), id, wallet); err != nil {
		handleServiceError(w, model.NewUpstreamError("通知の更新"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
