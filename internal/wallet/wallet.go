// Package wallet はウォレット署名の検証とサインインメッセージの解析を提供する。
// 任意のメッセージ＋署名ペアからsecp256k1公開鍵を復元し、
// ウォレットアドレス（小文字hex）を導出する。
package wallet

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"golang.org/x/crypto/sha3"
)

// ErrInvalidSignature は署名バイト列の形式不正または復元失敗を表す。
var ErrInvalidSignature = errors.New("invalid signature")

// signatureLength は復元可能署名の長さ（r 32 + s 32 + v 1）。
const signatureLength = 65

// personalMessagePrefix はpersonal_sign形式の署名プレフィックス。
const personalMessagePrefix = "\x19Ethereum Signed Message:\n"

// RecoverSigner はメッセージと署名から署名者のウォレットアドレスを復元する。
// 署名はウォレット標準のpersonal_sign形式（r‖s‖v、vは27/28または0/1）を想定する。
// 復元に失敗した場合はErrInvalidSignatureを返す。
func RecoverSigner(message string, signature []byte) (string, error) {
	if len(signature) != signatureLength {
		return "", fmt.Errorf("%w: length %d", ErrInvalidSignature, len(signature))
	}

	// r‖s‖v を復元ビット先頭のコンパクト形式に並べ替える
	v := signature[signatureLength-1]
	if v < 27 {
		v += 27
	}
	if v != 27 && v != 28 {
		return "", fmt.Errorf("%w: recovery id %d", ErrInvalidSignature, signature[signatureLength-1])
	}
	compact := make([]byte, signatureLength)
	compact[0] = v
	copy(compact[1:], signature[:signatureLength-1])

	digest := hashPersonalMessage(message)
	pub, _, err := ecdsa.RecoverCompact(compact, digest)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	return addressFromPubKey(pub.SerializeUncompressed()), nil
}

// hashPersonalMessage はpersonal_signプレフィックスを付与してKeccak-256を計算する。
func hashPersonalMessage(message string) []byte {
	h := sha3.NewLegacyKeccak256()
	fmt.Fprintf(h, "%s%d%s", personalMessagePrefix, len(message), message)
	return h.Sum(nil)
}

// addressFromPubKey は非圧縮公開鍵からウォレットアドレスを導出する。
// keccak256(pubkey[1:])の下位20バイトを小文字hexで返す。
func addressFromPubKey(uncompressed []byte) string {
	h := sha3.NewLegacyKeccak256()
	h.Write(uncompressed[1:]) // 0x04プレフィックスを除く
	sum := h.Sum(nil)
	return "0x" + hex.EncodeToString(sum[12:])
}

// Normalize はウォレットアドレスを保存用の正準形（小文字hex）に変換する。
func Normalize(wallet string) string {
	return strings.ToLower(strings.TrimSpace(wallet))
}

// Equal は2つのウォレットアドレスを大文字小文字を無視して比較する。
func Equal(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// IsHexAddress は文字列が0xプレフィックス付き20バイトhexアドレスかを判定する。
func IsHexAddress(s string) bool {
	if len(s) != 42 || !strings.HasPrefix(s, "0x") {
		return false
	}
	_, err := hex.DecodeString(s[2:])
	return err == nil
}
