package wallet

import (
	"strings"
	"time"
)

// SignInInfo は検証済みサインインメッセージから取り出した情報を表す。
type SignInInfo struct {
	Wallet string // 復元・照合済みのウォレット（小文字hex）
	Nonce  string // メッセージに含まれるノンス（オラクルラウンドID）
}

// signInMessage は構造化サインインメッセージの解析結果。
type signInMessage struct {
	Address        string
	Nonce          string
	ExpirationTime *time.Time
	NotBefore      *time.Time
}

// VerifySignInMessage は構造化サインインメッセージを解析し、署名者を検証する。
// 次のいずれかの場合はエラーではなくnilを返す:
//   - メッセージの形式が不正（アドレス行またはNonce行の欠落）
//   - 復元した署名者が主張アドレスと一致しない（比較は大文字小文字無視）
//   - メッセージ自身のExpiration Time / Not Beforeがnowを拒否する
func VerifySignInMessage(message string, signature []byte, now time.Time) *SignInInfo {
	parsed := parseSignInMessage(message)
	if parsed == nil {
		return nil
	}

	if parsed.ExpirationTime != nil && now.After(*parsed.ExpirationTime) {
		return nil
	}
	if parsed.NotBefore != nil && now.Before(*parsed.NotBefore) {
		return nil
	}

	recovered, err := RecoverSigner(message, signature)
	if err != nil {
		return nil
	}
	if !Equal(recovered, parsed.Address) {
		return nil
	}

	return &SignInInfo{
		Wallet: Normalize(parsed.Address),
		Nonce:  parsed.Nonce,
	}
}

// parseSignInMessage はサインインメッセージを行単位で解析する。
// 形式はEIP-4361準拠: 1行目がドメイン宣言、2行目がアドレス、
// 以降に "Nonce: "、任意で "Expiration Time: " / "Not Before: " の行が続く。
// 必須要素が欠けている場合はnilを返す。
func parseSignInMessage(message string) *signInMessage {
	lines := strings.Split(strings.ReplaceAll(message, "\r\n", "\n"), "\n")
	if len(lines) < 2 {
		return nil
	}

	parsed := &signInMessage{}

	// アドレス行: ドメイン宣言行の直後の最初のhexアドレス行
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if IsHexAddress(trimmed) {
			parsed.Address = trimmed
			break
		}
	}
	if parsed.Address == "" {
		return nil
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "Nonce:"):
			parsed.Nonce = strings.TrimSpace(strings.TrimPrefix(trimmed, "Nonce:"))
		case strings.HasPrefix(trimmed, "Expiration Time:"):
			if t, err := time.Parse(time.RFC3339, strings.TrimSpace(strings.TrimPrefix(trimmed, "Expiration Time:"))); err == nil {
				parsed.ExpirationTime = &t
			} else {
				return nil
			}
		case strings.HasPrefix(trimmed, "Not Before:"):
			if t, err := time.Parse(time.RFC3339, strings.TrimSpace(strings.TrimPrefix(trimmed, "Not Before:"))); err == nil {
				parsed.NotBefore = &t
			} else {
				return nil
			}
		}
	}

	if parsed.Nonce == "" {
		return nil
	}

	return parsed
}
