package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/walletbind/internal/model"
	"github.com/hitoshi/walletbind/internal/recordstore"
	"github.com/hitoshi/walletbind/internal/wallet"
)

// StoreNotificationRepo はレコードストアを使用した通知リポジトリ。
type StoreNotificationRepo struct {
	store *recordstore.Client
}

// NewStoreNotificationRepo はStoreNotificationRepoを生成する。
func NewStoreNotificationRepo(store *recordstore.Client) *StoreNotificationRepo {
	return &StoreNotificationRepo{store: store}
}

// Create は通知を作成する。
func (r *StoreNotificationRepo) Create(ctx context.Context, n *model.Notification) error {
	rec := notificationToRecord(n)
	rec.RecipientWallet = wallet.Normalize(rec.RecipientWallet)
	rec.ActorWallet = wallet.Normalize(rec.ActorWallet)
	if err := r.store.Create(ctx, collectionNotifications, rec, nil); err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// ListByRecipient は受信者の通知一覧を返す。
func (r *StoreNotificationRepo) ListByRecipient(ctx context.Context, recipientWallet string, unreadOnly bool) ([]model.Notification, error) {
	filter := recordstore.FilterEq("recipient_wallet", wallet.Normalize(recipientWallet))
	if unreadOnly {
		filter += " && read=false"
	}
	var records []notificationRecord
	if err := r.store.List(ctx, collectionNotifications, filter, &records); err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	out := make([]model.Notification, len(records))
	for i, rec := range records {
		out[i] = rec.toModel()
	}
	return out, nil
}

// MarkRead は通知を既読にする。受信者が一致しない場合は何もしない。
func (r *StoreNotificationRepo) MarkRead(ctx context.Context, id, recipientWallet string) error {
	var rec notificationRecord
	if err := r.store.GetOne(ctx, collectionNotifications, id, &rec); err != nil {
		return fmt.Errorf("failed to load notification: %w", err)
	}
	if !wallet.Equal(rec.RecipientWallet, recipientWallet) {
		return nil
	}
	if err := r.store.Update(ctx, collectionNotifications, id, map[string]bool{"read": true}, nil); err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	return nil
}

// DeleteReadBefore は指定時刻より前に作成された既読通知を削除する。
func (r *StoreNotificationRepo) DeleteReadBefore(ctx context.Context, cutoff time.Time) (int, error) {
	filter := fmt.Sprintf("read=true && created<'%s'", cutoff.UTC().Format("2006-01-02 15:04:05"))
	var records []notificationRecord
	if err := r.store.List(ctx, collectionNotifications, filter, &records); err != nil {
		return 0, fmt.Errorf("failed to list expired notifications: %w", err)
	}

	deleted := 0
	for _, rec := range records {
		if err := r.store.Delete(ctx, collectionNotifications, rec.ID); err != nil {
			// 個別の削除失敗は次回の保持期間ジョブで回収されるため続行する
			continue
		}
		deleted++
	}
	return deleted, nil
}
