package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/walletbind/internal/model"
	"github.com/hitoshi/walletbind/internal/recordstore"
)

// newFakeStore は管理者認証付きのフェイクレコードストアを生成する。
func newFakeStore(t *testing.T, handler http.HandlerFunc) *recordstore.Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/admins/auth-with-password", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"token":"tok"}`)
	})
	mux.HandleFunc("/", handler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return recordstore.NewClient(srv.Client(), logger, srv.URL, "a@example.com", "pw")
}

// TestAccountRepo_FindByWallet_Normalizes は検索前にウォレットが小文字へ
// 正規化されることを検証する。
func TestAccountRepo_FindByWallet_Normalizes(t *testing.T) {
	var gotFilter string
	store := newFakeStore(t, func(w http.ResponseWriter, r *http.Request) {
		gotFilter = r.URL.Query().Get("filter")
		fmt.Fprint(w, `{"items":[{"id":"a1","wallet":"0xabc","github_username":"nat"}]}`)
	})
	repo := NewStoreAccountRepo(store)

	acct, err := repo.FindByWallet(context.Background(), "0xABC")
	if err != nil {
		t.Fatalf("FindByWallet returned error: %v", err)
	}
	if acct == nil || acct.ID != "a1" {
		t.Fatalf("unexpected account: %+v", acct)
	}
	if gotFilter != "wallet='0xabc'" {
		t.Errorf("filter = %s, want wallet='0xabc'", gotFilter)
	}
}

// TestAccountRepo_FindByWallet_NotFound は見つからない場合にnil, nilを
// 返すことを検証する。
func TestAccountRepo_FindByWallet_NotFound(t *testing.T) {
	store := newFakeStore(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"items":[]}`)
	})
	repo := NewStoreAccountRepo(store)

	acct, err := repo.FindByWallet(context.Background(), "0xmissing")
	if err != nil {
		t.Fatalf("FindByWallet returned error: %v", err)
	}
	if acct != nil {
		t.Errorf("expected nil account, got %+v", acct)
	}
}

// TestAccountRepo_Create_ConflictReReads は一意制約違反時に既存レコードを
// 再読込して返すことを検証する（並行find-or-createの冪等性）。
func TestAccountRepo_Create_ConflictReReads(t *testing.T) {
	store := newFakeStore(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"data":{"wallet":{"code":"validation_not_unique"}}}`)
			return
		}
		// 再読込
		fmt.Fprint(w, `{"items":[{"id":"winner","wallet":"0xabc"}]}`)
	})
	repo := NewStoreAccountRepo(store)

	acct, err := repo.Create(context.Background(), &model.Account{Wallet: "0xABC"})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if acct.ID != "winner" {
		t.Errorf("account ID = %s, want winner (existing row)", acct.ID)
	}
}

// TestBotRepo_ListByOwners_ORFilter は複数オーナーがORフィルタに展開される
// ことを検証する。
func TestBotRepo_ListByOwners_ORFilter(t *testing.T) {
	var gotFilter string
	store := newFakeStore(t, func(w http.ResponseWriter, r *http.Request) {
		gotFilter = r.URL.Query().Get("filter")
		fmt.Fprint(w, `{"items":[{"id":"b1","owner_wallet":"0xaaa1","birth_issue_url":"https://github.com/a/r/issues/1"}]}`)
	})
	repo := NewStoreBotRepo(store)

	bots, err := repo.ListByOwners(context.Background(), []string{"0xAAA1", "0xbbb2"})
	if err != nil {
		t.Fatalf("ListByOwners returned error: %v", err)
	}
	if len(bots) != 1 || bots[0].ID != "b1" {
		t.Errorf("unexpected bots: %+v", bots)
	}
	want := "(owner_wallet='0xaaa1' || owner_wallet='0xbbb2')"
	if gotFilter != want {
		t.Errorf("filter = %s, want %s", gotFilter, want)
	}
}

// TestBotRepo_FindByBotWallet_Empty は空ウォレットで検索しないことを検証する。
func TestBotRepo_FindByBotWallet_Empty(t *testing.T) {
	called := false
	store := newFakeStore(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
		fmt.Fprint(w, `{"items":[]}`)
	})
	repo := NewStoreBotRepo(store)

	bot, err := repo.FindByBotWallet(context.Background(), "")
	if err != nil {
		t.Fatalf("FindByBotWallet returned error: %v", err)
	}
	if bot != nil {
		t.Errorf("expected nil bot, got %+v", bot)
	}
	if called {
		t.Error("record store should not be called for empty wallet")
	}
}

// TestNotificationRepo_MarkRead_OwnerGuard は受信者が一致しない通知を
// 既読にしないことを検証する。
func TestNotificationRepo_MarkRead_OwnerGuard(t *testing.T) {
	updated := false
	store := newFakeStore(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode(map[string]any{
				"id": "n1", "recipient_wallet": "0xowner", "read": false,
			})
		case http.MethodPatch:
			updated = true
			fmt.Fprint(w, `{}`)
		}
	})
	repo := NewStoreNotificationRepo(store)

	// 他人の通知: 更新されない
	if err := repo.MarkRead(context.Background(), "n1", "0xintruder"); err != nil {
		t.Fatalf("MarkRead returned error: %v", err)
	}
	if updated {
		t.Error("notification was marked read by a non-recipient")
	}

	// 本人の通知: 更新される
	if err := repo.MarkRead(context.Background(), "n1", "0xOWNER"); err != nil {
		t.Fatalf("MarkRead returned error: %v", err)
	}
	if !updated {
		t.Error("notification was not marked read by the recipient")
	}
}
