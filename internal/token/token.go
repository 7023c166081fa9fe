// Package token はステートレスなセッショントークンの発行と検証を提供する。
// トークンはheader.payload.signatureの3セグメントからなるHS256署名付きJWTで、
// サーバー側には一切保存しない。失効リストは持たず、7日の有効期限のみで
// 漏洩リスクを緩和する。
package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL はセッショントークンのデフォルト有効期間。
const DefaultTTL = 7 * 24 * time.Hour

// Codec はセッショントークンの発行・検証を行う。
type Codec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time // テスト用に差し替え可能
}

// New はCodecを生成する。ttlが0以下の場合はDefaultTTLを使用する。
func New(secret string, ttl time.Duration) *Codec {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Codec{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue はクレームにissued_at（iat）とexpires_at（exp）を注入して署名し、
// トークン文字列を返す。入力マップは変更しない。
func (c *Codec) Issue(claims map[string]any) (string, error) {
	now := c.now()

	mc := jwt.MapClaims{}
	for k, v := range claims {
		mc[k] = v
	}
	mc["iat"] = now.Unix()
	mc["exp"] = now.Add(c.ttl).Unix()

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, mc)
	signed, err := tok.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// Verify はトークンを検証し、クレームマップを返す。
// セグメント数不正、署名不一致、ペイロード解析失敗、有効期限切れの
// いずれの場合もnilを返す。署名比較はライブラリ内部で全署名バイト列の
// 定数時間比較により行われる。
func (c *Codec) Verify(tokenStr string) map[string]any {
	tok, err := jwt.Parse(tokenStr,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return c.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !tok.Valid {
		return nil
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return nil
	}
	return claims
}

// Subject は検証済みクレームからsubjectウォレットを取り出す。
func Subject(claims map[string]any) string {
	sub, _ := claims["sub"].(string)
	return sub
}
