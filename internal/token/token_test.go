package token

import (
	"strings"
	"testing"
	"time"
)

// TestIssueVerify_RoundTrip は発行直後のトークンが同じ秘密鍵で必ず検証に
// 成功することを検証する。
func TestIssueVerify_RoundTrip(t *testing.T) {
	c := New("test-secret", 0)

	tok, err := c.Issue(map[string]any{"sub": "0xabc", "type": "human"})
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	claims := c.Verify(tok)
	if claims == nil {
		t.Fatal("Verify returned nil for a freshly issued token")
	}
	if Subject(claims) != "0xabc" {
		t.Errorf("sub = %v, want 0xabc", claims["sub"])
	}
	if claims["type"] != "human" {
		t.Errorf("type = %v, want human", claims["type"])
	}
	if _, ok := claims["iat"]; !ok {
		t.Error("iat was not injected")
	}
	if _, ok := claims["exp"]; !ok {
		t.Error("exp was not injected")
	}
}

// TestIssue_DoesNotMutateInput は入力クレームマップが変更されないことを検証する。
func TestIssue_DoesNotMutateInput(t *testing.T) {
	c := New("s", 0)
	in := map[string]any{"sub": "0xabc"}
	if _, err := c.Issue(in); err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if len(in) != 1 {
		t.Errorf("input map was mutated: %v", in)
	}
}

// TestVerify_Expired は過去のexpを持つトークンが検証に失敗することを検証する。
// 時計を差し替えて境界を直接構築し、実時間の経過を待たない。
func TestVerify_Expired(t *testing.T) {
	c := New("test-secret", time.Hour)

	issued := time.Now().Add(-2 * time.Hour)
	c.now = func() time.Time { return issued }
	tok, err := c.Issue(map[string]any{"sub": "0xabc"})
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	// 検証時刻を現在に戻す（exp = issued+1hは既に過去）
	c.now = time.Now
	if claims := c.Verify(tok); claims != nil {
		t.Errorf("expected nil for expired token, got %v", claims)
	}
}

// TestVerify_WrongSecret は異なる秘密鍵での検証が必ず失敗することを検証する。
func TestVerify_WrongSecret(t *testing.T) {
	payloads := []map[string]any{
		{"sub": "0xabc"},
		{"sub": "0xdef", "type": "oracle"},
		{},
	}

	for _, p := range payloads {
		tok, err := New("secret-a", 0).Issue(p)
		if err != nil {
			t.Fatalf("Issue returned error: %v", err)
		}
		if claims := New("secret-b", 0).Verify(tok); claims != nil {
			t.Errorf("token verified with wrong secret: %v", claims)
		}
	}
}

// TestVerify_Malformed は不正なトークン文字列がnilになることを検証する。
func TestVerify_Malformed(t *testing.T) {
	c := New("test-secret", 0)

	tests := []struct {
		name string
		tok  string
	}{
		{name: "empty", tok: ""},
		{name: "one segment", tok: "abc"},
		{name: "two segments", tok: "abc.def"},
		{name: "four segments", tok: "a.b.c.d"},
		{name: "garbage payload", tok: "eyJhbGciOiJIUzI1NiJ9.!!!.sig"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if claims := c.Verify(tt.tok); claims != nil {
				t.Errorf("expected nil, got %v", claims)
			}
		})
	}
}

// TestVerify_TamperedPayload はペイロード改ざんで署名不一致になることを検証する。
func TestVerify_TamperedPayload(t *testing.T) {
	c := New("test-secret", 0)
	tok, err := c.Issue(map[string]any{"sub": "0xabc"})
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	parts := strings.Split(tok, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected segment count: %d", len(parts))
	}
	// 別トークンのペイロードに差し替える
	other, err := c.Issue(map[string]any{"sub": "0xattacker"})
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	otherParts := strings.Split(other, ".")
	tampered := parts[0] + "." + otherParts[1] + "." + parts[2]

	if claims := c.Verify(tampered); claims != nil {
		t.Errorf("tampered token verified: %v", claims)
	}
}

// TestVerify_NoneAlgorithmRejected はalg=noneや非HMACアルゴリズムの
// トークンが拒否されることを検証する。
func TestVerify_NoneAlgorithmRejected(t *testing.T) {
	c := New("test-secret", 0)
	// {"alg":"none","typ":"JWT"} + {"sub":"0xabc"} + 空署名
	noneTok := "eyJhbGciOiJub25lIiwidHlwIjoiSldUIn0.eyJzdWIiOiIweGFiYyJ9."
	if claims := c.Verify(noneTok); claims != nil {
		t.Errorf("alg=none token verified: %v", claims)
	}
}
