package actor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hitoshi/walletbind/internal/model"
)

type mockAccountRepo struct {
	findByWallet func(ctx context.Context, wallet string) (*model.Account, error)
}

func (m *mockAccountRepo) FindByWallet(ctx context.Context, wallet string) (*model.Account, error) {
	if m.findByWallet != nil {
		return m.findByWallet(ctx, wallet)
	}
	return nil, nil
}

func (m *mockAccountRepo) ListByUsername(ctx context.Context, username string) ([]*model.Account, error) {
	return nil, nil
}

func (m *mockAccountRepo) Create(ctx context.Context, a *model.Account) (*model.Account, error) {
	return a, nil
}

func (m *mockAccountRepo) Update(ctx context.Context, a *model.Account) error { return nil }

type mockBotRepo struct {
	findByBotWallet func(ctx context.Context, botWallet string) (*model.Bot, error)
}

func (m *mockBotRepo) FindByBirthID(ctx context.Context, birthIssueURL string) (*model.Bot, error) {
	return nil, nil
}

func (m *mockBotRepo) FindByBotWallet(ctx context.Context, botWallet string) (*model.Bot, error) {
	if m.findByBotWallet != nil {
		return m.findByBotWallet(ctx, botWallet)
	}
	return nil, nil
}

func (m *mockBotRepo) ListByOwner(ctx context.Context, ownerWallet string) ([]model.Bot, error) {
	return nil, nil
}

func (m *mockBotRepo) ListByOwners(ctx context.Context, ownerWallets []string) ([]model.Bot, error) {
	return nil, nil
}

func (m *mockBotRepo) Create(ctx context.Context, b *model.Bot) (*model.Bot, error) { return b, nil }

func (m *mockBotRepo) Update(ctx context.Context, b *model.Bot) error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestResolver_Resolve(t *testing.T) {
	botWallet := "0x1111111111111111111111111111111111111111"
	humanWallet := "0x2222222222222222222222222222222222222222"
	bothWallet := "0x3333333333333333333333333333333333333333"
	unknownWallet := "0x4444444444444444444444444444444444444444"

	bots := &mockBotRepo{
		findByBotWallet: func(ctx context.Context, w string) (*model.Bot, error) {
			switch w {
			case botWallet:
				return &model.Bot{Name: "robo", BotWallet: w, BirthIssueURL: "https://github.com/nat/bots/issues/3"}, nil
			case bothWallet:
				return &model.Bot{Name: "dual", BotWallet: w}, nil
			}
			return nil, nil
		},
	}
	accounts := &mockAccountRepo{
		findByWallet: func(ctx context.Context, w string) (*model.Account, error) {
			switch w {
			case humanWallet:
				return &model.Account{Wallet: w, Name: "Nat", GithubUsername: "nat"}, nil
			case bothWallet:
				return &model.Account{Wallet: w, Name: "ShouldLose"}, nil
			}
			return nil, nil
		},
	}

	r := NewResolver(accounts, bots, testLogger())
	got := r.Resolve(context.Background(), []string{botWallet, humanWallet, bothWallet, unknownWallet})

	if d := got[botWallet]; d.Kind != KindBot || d.Name != "robo" || d.BirthIssueURL == "" {
		t.Errorf("bot descriptor = %+v", d)
	}
	if d := got[humanWallet]; d.Kind != KindHuman || d.Name != "Nat" || d.GithubUsername != "nat" {
		t.Errorf("human descriptor = %+v", d)
	}
	// ボット署名用ウォレットの一致が人間アカウントより優先される
	if d := got[bothWallet]; d.Kind != KindBot || d.Name != "dual" {
		t.Errorf("bot match should win: %+v", d)
	}
	if d := got[unknownWallet]; d.Kind != KindUnknown || d.Name != "0x44444444…" {
		t.Errorf("unknown descriptor = %+v", d)
	}
}

func TestResolver_NormalizesAndDeduplicates(t *testing.T) {
	w := "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	calls := 0
	accounts := &mockAccountRepo{
		findByWallet: func(ctx context.Context, wallet string) (*model.Account, error) {
			calls++
			return &model.Account{Wallet: wallet, Name: "Nat"}, nil
		},
	}

	r := NewResolver(accounts, &mockBotRepo{}, testLogger())
	got := r.Resolve(context.Background(), []string{w, "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", ""})

	if len(got) != 1 {
		t.Fatalf("result size = %d, want 1", len(got))
	}
	if calls != 1 {
		t.Errorf("account lookups = %d, want 1", calls)
	}
	if _, ok := got["0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"]; !ok {
		t.Error("result must be keyed by the lowercase wallet")
	}
}

func TestResolver_LookupFailureFallsBackToUnknown(t *testing.T) {
	w := "0x5555555555555555555555555555555555555555"
	accounts := &mockAccountRepo{
		findByWallet: func(ctx context.Context, wallet string) (*model.Account, error) {
			return nil, errors.New("store down")
		},
	}
	bots := &mockBotRepo{
		findByBotWallet: func(ctx context.Context, botWallet string) (*model.Bot, error) {
			return nil, errors.New("store down")
		},
	}

	r := NewResolver(accounts, bots, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got := r.Resolve(ctx, []string{w})
	if d := got[w]; d.Kind != KindUnknown {
		t.Errorf("descriptor on lookup failure = %+v, want unknown", d)
	}
}
