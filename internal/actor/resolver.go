// Package actor はウォレットアドレスから表示用アイデンティティを解決する。
// 通知・フィードの表示補助のための読み取り専用コンポーネント。
package actor

import (
	"context"
	"log/slog"

	"github.com/hitoshi/walletbind/internal/repository"
	"github.com/hitoshi/walletbind/internal/wallet"
)

// Kind はアクターの種別タグ。
type Kind string

const (
	KindBot     Kind = "bot"
	KindHuman   Kind = "human"
	KindUnknown Kind = "unknown"
)

// Descriptor はウォレットの表示用アイデンティティ。
type Descriptor struct {
	Kind           Kind   `json:"kind"`
	Name           string `json:"name"`
	GithubUsername string `json:"github_username,omitempty"` // humanのみ
	BirthIssueURL  string `json:"birth_issue_url,omitempty"` // botのみ
}

// Resolver はウォレット→表示アイデンティティの解決器。副作用を持たない。
type Resolver struct {
	accounts repository.AccountRepository
	bots     repository.BotRepository
	logger   *slog.Logger
}

// NewResolver はResolverを生成する。
func NewResolver(accounts repository.AccountRepository, bots repository.BotRepository, logger *slog.Logger) *Resolver {
	return &Resolver{accounts: accounts, bots: bots, logger: logger}
}

// Resolve は各ウォレットのDescriptorを返す。
// ボット署名用ウォレットとしての一致が人間アカウントの一致より優先される。
// どちらにも一致しないウォレットにはアドレス先頭から合成した名前を与える。
// 解決は表示補助のため、照会失敗はunknown扱いに落としてエラーにしない。
func (r *Resolver) Resolve(ctx context.Context, wallets []string) map[string]Descriptor {
	result := make(map[string]Descriptor, len(wallets))
	for _, raw := range wallets {
		w := wallet.Normalize(raw)
		if w == "" {
			continue
		}
		if _, done := result[w]; done {
			continue
		}
		result[w] = r.resolveOne(ctx, w)
	}
	return result
}

func (r *Resolver) resolveOne(ctx context.Context, w string) Descriptor {
	bot, err := r.bots.FindByBotWallet(ctx, w)
	if err != nil {
		r.logger.Warn("ボット照会に失敗したためunknownとして扱います",
			slog.String("wallet", w),
			slog.String("error", err.Error()),
		)
	} else if bot != nil {
		name := bot.Name
		if name == "" {
			name = synthesizeName(w)
		}
		return Descriptor{
			Kind:          KindBot,
			Name:          name,
			BirthIssueURL: bot.BirthIssueURL,
		}
	}

	account, err := r.accounts.FindByWallet(ctx, w)
	if err != nil {
		r.logger.Warn("アカウント照会に失敗したためunknownとして扱います",
			slog.String("wallet", w),
			slog.String("error", err.Error()),
		)
	} else if account != nil {
		name := account.Name
		if name == "" {
			name = account.GithubUsername
		}
		if name == "" {
			name = synthesizeName(w)
		}
		return Descriptor{
			Kind:           KindHuman,
			Name:           name,
			GithubUsername: account.GithubUsername,
		}
	}

	return Descriptor{Kind: KindUnknown, Name: synthesizeName(w)}
}

// synthesizeName はウォレットの先頭から表示名を合成する。
func synthesizeName(w string) string {
	if len(w) >= 10 {
		return w[:10] + "…"
	}
	return w
}
