// Package notification はclaim結果などの通知の作成と保持期間管理を提供する。
package notification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/walletbind/internal/model"
	"github.com/hitoshi/walletbind/internal/repository"
	"github.com/hitoshi/walletbind/internal/wallet"
)

// Service は通知の作成サービス。
type Service struct {
	notifications repository.NotificationRepository
	logger        *slog.Logger
	now           func() time.Time
}

// NewService はServiceを生成する。
func NewService(notifications repository.NotificationRepository, logger *slog.Logger) *Service {
	return &Service{
		notifications: notifications,
		logger:        logger,
		now:           time.Now,
	}
}

// Notify は通知を作成する。
// 自分自身の行動による通知（actor == recipient）は作成を抑止する。
func (s *Service) Notify(ctx context.Context, recipientWallet, actorWallet, notifType, message string) error {
	recipient := wallet.Normalize(recipientWallet)
	actor := wallet.Normalize(actorWallet)
	if recipient == "" {
		return nil
	}
	if actor != "" && wallet.Equal(recipient, actor) {
		return nil
	}

	n := &model.Notification{
		RecipientWallet: recipient,
		ActorWallet:     actor,
		Type:            notifType,
		Message:         message,
		CreatedAt:       s.now(),
	}
	if err := s.notifications.Create(ctx, n); err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// RetentionJob は保持期間を超過した既読通知の自動削除ジョブ。
// 日次実行のバッチジョブとして設計されており、削除処理は冪等。
type RetentionJob struct {
	notifications repository.NotificationRepository
	logger        *slog.Logger
	RetentionDays int // 既読通知の保持日数（デフォルト: 30）
}

// NewRetentionJob は新しいRetentionJobを生成する。
// デフォルトの保持日数は30日。
func NewRetentionJob(notifications repository.NotificationRepository, logger *slog.Logger) *RetentionJob {
	return &RetentionJob{
		notifications: notifications,
		logger:        logger,
		RetentionDays: 30,
	}
}

// Run は保持期間を超過した既読通知を削除する。
// 未読の通知は保持期間に関わらず削除しない。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *RetentionJob) Run(ctx context.Context) error {
	start := time.Now()
	cutoff := start.AddDate(0, 0, -j.RetentionDays)

	deleted, err := j.notifications.DeleteReadBefore(ctx, cutoff)
	if err != nil {
		j.logger.Error("通知クリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return fmt.Errorf("通知クリーンアップの実行に失敗: %w", err)
	}

	j.logger.Info("通知クリーンアップジョブが完了しました",
		slog.Int("deleted_count", deleted),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}
