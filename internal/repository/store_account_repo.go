package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/hitoshi/walletbind/internal/model"
	"github.com/hitoshi/walletbind/internal/recordstore"
	"github.com/hitoshi/walletbind/internal/wallet"
)

// StoreAccountRepo はレコードストアを使用したアカウントリポジトリ。
type StoreAccountRepo struct {
	store *recordstore.Client
}

// NewStoreAccountRepo はStoreAccountRepoを生成する。
func NewStoreAccountRepo(store *recordstore.Client) *StoreAccountRepo {
	return &StoreAccountRepo{store: store}
}

// FindByWallet はウォレットでアカウントを検索する。見つからない場合はnilを返す。
func (r *StoreAccountRepo) FindByWallet(ctx context.Context, w string) (*model.Account, error) {
	var records []accountRecord
	filter := recordstore.FilterEq("wallet", wallet.Normalize(w))
	if err := r.store.List(ctx, collectionAccounts, filter, &records); err != nil {
		return nil, fmt.Errorf("failed to find account by wallet: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0].toModel(), nil
}

// ListByUsername は同じGitHubユーザー名を持つ全アカウントを返す。
func (r *StoreAccountRepo) ListByUsername(ctx context.Context, username string) ([]*model.Account, error) {
	if username == "" {
		return nil, nil
	}
	var records []accountRecord
	filter := recordstore.FilterEq("github_username", username)
	if err := r.store.List(ctx, collectionAccounts, filter, &records); err != nil {
		return nil, fmt.Errorf("failed to list accounts by username: %w", err)
	}
	accounts := make([]*model.Account, len(records))
	for i, rec := range records {
		accounts[i] = rec.toModel()
	}
	return accounts, nil
}

// Create はアカウントを作成する。
// 並行する重複作成で一意制約違反になった場合は、ロックではなく
// 既存レコードの再読込で解決する。これにより作成は並行リクエスト下でも冪等。
func (r *StoreAccountRepo) Create(ctx context.Context, account *model.Account) (*model.Account, error) {
	account.Wallet = wallet.Normalize(account.Wallet)

	var created accountRecord
	err := r.store.Create(ctx, collectionAccounts, accountToRecord(account), &created)
	if err == nil {
		return created.toModel(), nil
	}
	if !errors.Is(err, recordstore.ErrConflict) {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	// 並行作成との競合: 勝者の行を読み直す
	existing, findErr := r.FindByWallet(ctx, account.Wallet)
	if findErr != nil {
		return nil, fmt.Errorf("failed to re-read account after conflict: %w", findErr)
	}
	if existing == nil {
		return nil, fmt.Errorf("account conflict but no existing row: %w", err)
	}
	return existing, nil
}

// Update はアカウント情報を更新する。
func (r *StoreAccountRepo) Update(ctx context.Context, account *model.Account) error {
	if account.ID == "" {
		return fmt.Errorf("account ID is required for update")
	}
	rec := accountToRecord(account)
	rec.Wallet = wallet.Normalize(rec.Wallet)
	if err := r.store.Update(ctx, collectionAccounts, account.ID, rec, nil); err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	return nil
}
