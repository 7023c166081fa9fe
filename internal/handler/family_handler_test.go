package handler

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/walletbind/internal/merkle"
	"github.com/hitoshi/walletbind/internal/model"
)

// mockBotLister はBotListerのテスト用モック。
type mockBotLister struct {
	listByOwnerFunc func(ctx context.Context, ownerWallet string) ([]model.Bot, error)
}

func (m *mockBotLister) ListByOwner(ctx context.Context, ownerWallet string) ([]model.Bot, error) {
	return m.listByOwnerFunc(ctx, ownerWallet)
}

func familyBots(n int) []model.Bot {
	bots := make([]model.Bot, n)
	for i := range bots {
		bots[i] = model.Bot{
			BotWallet:     fmt.Sprintf("0x%040x", i+1),
			BirthIssueURL: fmt.Sprintf("https://github.com/nat/bots/issues/%d", i+1),
		}
	}
	return bots
}

func getFamily(t *testing.T, h http.HandlerFunc, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

const testOwner = "0x1111111111111111111111111111111111111111"

func TestFamilyHandler_Root(t *testing.T) {
	bots := familyBots(3)
	var gotOwner string
	h := NewFamilyHandler(&mockBotLister{
		listByOwnerFunc: func(_ context.Context, owner string) ([]model.Bot, error) {
			gotOwner = owner
			return bots, nil
		},
	})

	rec := getFamily(t, h.Root, "/api/family/root?owner="+testOwner)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body=%s)", rec.Code, http.StatusOK, rec.Body.String())
	}
	if gotOwner != testOwner {
		t.Errorf("owner = %q, want %q", gotOwner, testOwner)
	}

	var resp rootResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("レスポンスの解析に失敗: %v", err)
	}
	if resp.AssignmentCount != 3 {
		t.Errorf("assignment_count = %d, want 3", resp.AssignmentCount)
	}
	if len(resp.Leaves) != 3 {
		t.Fatalf("leaves = %d, want 3", len(resp.Leaves))
	}

	want := "0x" + hex.EncodeToString(merkle.Root(merkle.AssignmentsFor(bots)))
	if resp.Root != want {
		t.Errorf("root = %s, want %s", resp.Root, want)
	}
	for _, leaf := range resp.Leaves {
		if !strings.HasPrefix(leaf.Leaf, "0x") || len(leaf.Leaf) != 2+2*merkle.HashSize {
			t.Errorf("leaf hash format不正: %q", leaf.Leaf)
		}
	}
}

func TestFamilyHandler_Root_OwnerNormalized(t *testing.T) {
	var gotOwner string
	h := NewFamilyHandler(&mockBotLister{
		listByOwnerFunc: func(_ context.Context, owner string) ([]model.Bot, error) {
			gotOwner = owner
			return nil, nil
		},
	})

	upper := "0x" + strings.ToUpper(strings.TrimPrefix(testOwner, "0x"))
	rec := getFamily(t, h.Root, "/api/family/root?owner="+upper)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if gotOwner != testOwner {
		t.Errorf("owner = %q, want 小文字正規化された %q", gotOwner, testOwner)
	}
}

func TestFamilyHandler_Root_Validation(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		listErr    error
		wantStatus int
	}{
		{name: "owner欠落", target: "/api/family/root", wantStatus: http.StatusBadRequest},
		{name: "owner形式不正", target: "/api/family/root?owner=natsuki", wantStatus: http.StatusBadRequest},
		{
			name:       "リポジトリ障害",
			target:     "/api/family/root?owner=" + testOwner,
			listErr:    errors.New("store down"),
			wantStatus: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewFamilyHandler(&mockBotLister{
				listByOwnerFunc: func(_ context.Context, _ string) ([]model.Bot, error) {
					return nil, tt.listErr
				},
			})

			rec := getFamily(t, h.Root, tt.target)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body=%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}

func TestFamilyHandler_Root_EmptyFamily(t *testing.T) {
	h := NewFamilyHandler(&mockBotLister{
		listByOwnerFunc: func(_ context.Context, _ string) ([]model.Bot, error) {
			return nil, nil
		},
	})

	rec := getFamily(t, h.Root, "/api/family/root?owner="+testOwner)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp rootResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("レスポンスの解析に失敗: %v", err)
	}
	// 空ファミリーはゼロルート
	if want := "0x" + strings.Repeat("00", merkle.HashSize); resp.Root != want {
		t.Errorf("root = %s, want %s", resp.Root, want)
	}
	if resp.AssignmentCount != 0 {
		t.Errorf("assignment_count = %d, want 0", resp.AssignmentCount)
	}
}

func TestFamilyHandler_Proof(t *testing.T) {
	bots := familyBots(5)
	h := NewFamilyHandler(&mockBotLister{
		listByOwnerFunc: func(_ context.Context, _ string) ([]model.Bot, error) {
			return bots, nil
		},
	})

	rec := getFamily(t, h.Proof, "/api/family/proof?owner="+testOwner+"&sequence=3")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body=%s)", rec.Code, http.StatusOK, rec.Body.String())
	}

	var resp proofResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("レスポンスの解析に失敗: %v", err)
	}

	// レスポンスのパスだけでルートまで再計算できること
	assignments := merkle.AssignmentsFor(bots)
	var target merkle.Assignment
	for _, a := range assignments {
		if a.Sequence == 3 {
			target = a
		}
	}
	path := make([][]byte, 0, len(resp.Proof))
	for _, p := range resp.Proof {
		raw, err := hex.DecodeString(strings.TrimPrefix(p, "0x"))
		if err != nil {
			t.Fatalf("proof要素のデコードに失敗: %v", err)
		}
		path = append(path, raw)
	}
	root, err := hex.DecodeString(strings.TrimPrefix(resp.Root, "0x"))
	if err != nil {
		t.Fatalf("ルートのデコードに失敗: %v", err)
	}
	if !merkle.Verify(root, target, path) {
		t.Error("レスポンスの証明でルートを再現できません")
	}
}

func TestFamilyHandler_Proof_Errors(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		wantStatus int
	}{
		{name: "sequence欠落", target: "/api/family/proof?owner=" + testOwner, wantStatus: http.StatusBadRequest},
		{name: "sequenceがゼロ", target: "/api/family/proof?owner=" + testOwner + "&sequence=0", wantStatus: http.StatusBadRequest},
		{name: "sequenceが数値でない", target: "/api/family/proof?owner=" + testOwner + "&sequence=x", wantStatus: http.StatusBadRequest},
		{name: "リーフが存在しない", target: "/api/family/proof?owner=" + testOwner + "&sequence=99", wantStatus: http.StatusNotFound},
	}

	bots := familyBots(3)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewFamilyHandler(&mockBotLister{
				listByOwnerFunc: func(_ context.Context, _ string) ([]model.Bot, error) {
					return bots, nil
				},
			})

			rec := getFamily(t, h.Proof, tt.target)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body=%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}
