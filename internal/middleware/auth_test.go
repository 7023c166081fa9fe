package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/walletbind/internal/token"
)

// fakeVerifier はTokenVerifierのテスト用実装。
type fakeVerifier struct {
	claims map[string]any
}

func (f *fakeVerifier) Verify(tokenStr string) map[string]any {
	if tokenStr == "valid" {
		return f.claims
	}
	return nil
}

func TestAuthMiddleware(t *testing.T) {
	wallet := "0x1111111111111111111111111111111111111111"

	tests := []struct {
		name        string
		authz       string
		claims      map[string]any
		wantStatus  int
		wantWallet  string
		wantHandler bool
	}{
		{
			name:        "有効なBearerトークン",
			authz:       "Bearer valid",
			claims:      map[string]any{"sub": wallet},
			wantStatus:  http.StatusOK,
			wantWallet:  wallet,
			wantHandler: true,
		},
		{
			name:       "Authorizationヘッダーなし",
			authz:      "",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "Bearerプレフィックスなし",
			authz:      "valid",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "無効なトークン",
			authz:      "Bearer bogus",
			claims:     map[string]any{"sub": wallet},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "subクレーム欠落",
			authz:      "Bearer valid",
			claims:     map[string]any{"typ": "session"},
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handlerCalled := false
			var gotWallet string
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				handlerCalled = true
				gotWallet, _ = WalletFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			mw := NewAuthMiddleware(&fakeVerifier{claims: tt.claims})
			req := httptest.NewRequest(http.MethodGet, "/api/actors", nil)
			if tt.authz != "" {
				req.Header.Set("Authorization", tt.authz)
			}
			w := httptest.NewRecorder()
			mw(next).ServeHTTP(w, req)

			if w.Result().StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Result().StatusCode, tt.wantStatus)
			}
			if handlerCalled != tt.wantHandler {
				t.Errorf("handler called = %v, want %v", handlerCalled, tt.wantHandler)
			}
			if tt.wantHandler && gotWallet != tt.wantWallet {
				t.Errorf("wallet = %s, want %s", gotWallet, tt.wantWallet)
			}
		})
	}
}

// TestAuthMiddleware_WithRealCodec は実際のトークンコーデックとの結合を検証する。
func TestAuthMiddleware_WithRealCodec(t *testing.T) {
	codec := token.New("test-secret", 0)
	wallet := "0x2222222222222222222222222222222222222222"
	tok, err := codec.Issue(map[string]any{"sub": wallet, "typ": "session"})
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	var gotWallet string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotWallet, _ = WalletFromContext(r.Context())
	})

	mw := NewAuthMiddleware(codec)
	req := httptest.NewRequest(http.MethodGet, "/api/notifications", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	mw(next).ServeHTTP(w, req)

	if gotWallet != wallet {
		t.Errorf("wallet = %s, want %s", gotWallet, wallet)
	}
}

func TestWalletFromContext_Missing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, err := WalletFromContext(req.Context()); err == nil {
		t.Error("expected error for missing wallet")
	}
}
