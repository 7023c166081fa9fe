package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/hitoshi/walletbind/internal/model"
	"github.com/hitoshi/walletbind/internal/recordstore"
	"github.com/hitoshi/walletbind/internal/wallet"
)

// StoreBotRepo はレコードストアを使用したボットリポジトリ。
type StoreBotRepo struct {
	store *recordstore.Client
}

// NewStoreBotRepo はStoreBotRepoを生成する。
func NewStoreBotRepo(store *recordstore.Client) *StoreBotRepo {
	return &StoreBotRepo{store: store}
}

// FindByBirthID は出生識別子でボットを検索する。見つからない場合はnilを返す。
func (r *StoreBotRepo) FindByBirthID(ctx context.Context, birthIssueURL string) (*model.Bot, error) {
	var records []botRecord
	filter := recordstore.FilterEq("birth_issue_url", birthIssueURL)
	if err := r.store.List(ctx, collectionBots, filter, &records); err != nil {
		return nil, fmt.Errorf("failed to find bot by birth issue: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	bot := records[0].toModel()
	return &bot, nil
}

// FindByBotWallet はボット署名用ウォレットでボットを検索する。
// 見つからない場合はnilを返す。
func (r *StoreBotRepo) FindByBotWallet(ctx context.Context, botWallet string) (*model.Bot, error) {
	if botWallet == "" {
		return nil, nil
	}
	var records []botRecord
	filter := recordstore.FilterEq("bot_wallet", wallet.Normalize(botWallet))
	if err := r.store.List(ctx, collectionBots, filter, &records); err != nil {
		return nil, fmt.Errorf("failed to find bot by bot wallet: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	bot := records[0].toModel()
	return &bot, nil
}

// ListByOwner は指定オーナーの全ボットを返す。
func (r *StoreBotRepo) ListByOwner(ctx context.Context, ownerWallet string) ([]model.Bot, error) {
	return r.ListByOwners(ctx, []string{ownerWallet})
}

// ListByOwners は複数オーナーのボットをまとめて返す。
func (r *StoreBotRepo) ListByOwners(ctx context.Context, ownerWallets []string) ([]model.Bot, error) {
	if len(ownerWallets) == 0 {
		return nil, nil
	}
	filters := make([]string, len(ownerWallets))
	for i, w := range ownerWallets {
		filters[i] = recordstore.FilterEq("owner_wallet", wallet.Normalize(w))
	}
	var records []botRecord
	if err := r.store.List(ctx, collectionBots, recordstore.FilterOr(filters...), &records); err != nil {
		return nil, fmt.Errorf("failed to list bots by owners: %w", err)
	}
	bots := make([]model.Bot, len(records))
	for i, rec := range records {
		bots[i] = rec.toModel()
	}
	return bots, nil
}

// Create はボットを作成する。出生識別子の一意制約違反は既存レコードの
// 再読込で解決する。
func (r *StoreBotRepo) Create(ctx context.Context, bot *model.Bot) (*model.Bot, error) {
	bot.OwnerWallet = wallet.Normalize(bot.OwnerWallet)
	if bot.BotWallet != "" {
		bot.BotWallet = wallet.Normalize(bot.BotWallet)
	}

	var created botRecord
	err := r.store.Create(ctx, collectionBots, botToRecord(bot), &created)
	if err == nil {
		m := created.toModel()
		return &m, nil
	}
	if !errors.Is(err, recordstore.ErrConflict) {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	existing, findErr := r.FindByBirthID(ctx, bot.BirthIssueURL)
	if findErr != nil {
		return nil, fmt.Errorf("failed to re-read bot after conflict: %w", findErr)
	}
	if existing == nil {
		return nil, fmt.Errorf("bot conflict but no existing row: %w", err)
	}
	return existing, nil
}

// Update はボット情報を更新する。
func (r *StoreBotRepo) Update(ctx context.Context, bot *model.Bot) error {
	if bot.ID == "" {
		return fmt.Errorf("bot ID is required for update")
	}
	rec := botToRecord(bot)
	rec.OwnerWallet = wallet.Normalize(rec.OwnerWallet)
	if rec.BotWallet != "" {
		rec.BotWallet = wallet.Normalize(rec.BotWallet)
	}
	if err := r.store.Update(ctx, collectionBots, bot.ID, rec, nil); err != nil {
		return fmt.Errorf("failed to update bot: %w", err)
	}
	return nil
}
