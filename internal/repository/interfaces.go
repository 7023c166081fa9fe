// Package repository はデータ永続化のインターフェースを定義する。
// 永続化の実体は外部レコードストアであり、全ての変更操作は自然キー
// （ウォレット・出生識別子）に対するfind-or-create / upsertとして冪等。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/walletbind/internal/model"
)

// AccountRepository は人間アカウントの永続化インターフェース。
type AccountRepository interface {
	// FindByWallet はウォレットでアカウントを検索する。見つからない場合はnilを返す。
	FindByWallet(ctx context.Context, wallet string) (*model.Account, error)

	// ListByUsername は同じGitHubユーザー名を持つ全アカウントを返す。
	// 再claimプロトコルの旧ウォレット列挙に使用する。
	ListByUsername(ctx context.Context, username string) ([]*model.Account, error)

	// Create はアカウントを作成する。並行作成による一意制約違反は
	// 既存レコードの再読込で解決する（エラーにしない）。
	Create(ctx context.Context, account *model.Account) (*model.Account, error)

	// Update はアカウント情報を更新する。
	Update(ctx context.Context, account *model.Account) error
}

// BotRepository はボット（オラクル）アイデンティティの永続化インターフェース。
type BotRepository interface {
	// FindByBirthID は出生識別子でボットを検索する。見つからない場合はnilを返す。
	FindByBirthID(ctx context.Context, birthIssueURL string) (*model.Bot, error)

	// FindByBotWallet はボット署名用ウォレットでボットを検索する。
	// ボット署名用ウォレットは全ボットで一意。見つからない場合はnilを返す。
	FindByBotWallet(ctx context.Context, botWallet string) (*model.Bot, error)

	// ListByOwner は指定オーナーの全ボットを返す。
	ListByOwner(ctx context.Context, ownerWallet string) ([]model.Bot, error)

	// ListByOwners は複数オーナーのボットをまとめて返す。
	// 再claimプロトコルの移管対象列挙に使用する。
	ListByOwners(ctx context.Context, ownerWallets []string) ([]model.Bot, error)

	// Create はボットを作成する。出生識別子の一意制約違反は再読込で解決する。
	Create(ctx context.Context, bot *model.Bot) (*model.Bot, error)

	// Update はボット情報を更新する。
	Update(ctx context.Context, bot *model.Bot) error
}

// NotificationRepository は通知の永続化インターフェース。
type NotificationRepository interface {
	// Create は通知を作成する。
	Create(ctx context.Context, n *model.Notification) error

	// ListByRecipient は受信者の通知一覧を返す。
	ListByRecipient(ctx context.Context, recipientWallet string, unreadOnly bool) ([]model.Notification, error)

	// MarkRead は通知を既読にする。受信者が一致しない場合は何もしない。
	MarkRead(ctx context.Context, id, recipientWallet string) error

	// DeleteReadBefore は指定時刻より前に作成された既読通知を削除し、
	// 削除件数を返す。保持期間ワーカーから使用する。
	DeleteReadBefore(ctx context.Context, cutoff time.Time) (int, error)
}
