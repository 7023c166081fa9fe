// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizerService はissue本文やタイトルから抽出した表示名などの
// 自由記述テキストからHTMLを完全に除去する。issueは外部の人間が自由に
// 書ける文書であり、抽出結果はそのままレコードストアに保存され
// フィードUIに表示されるため、タグを一切許可しない。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService は抽出テキストのサニタイズ機能のインターフェースを定義する。
type TextSanitizerService interface {
	// SanitizeText はHTMLタグを全て除去した平文を返す。
	// 前後の空白も除去する。同一入力に対して常に同一出力を返す（冪等）。
	SanitizeText(raw string) string
}

// textSanitizer はTextSanitizerServiceの実装。
// bluemondayのStrictPolicy（全タグ除去）を保持し、スレッドセーフに動作する。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// SanitizeText はHTMLタグを全て除去した平文を返す。
func (s *textSanitizer) SanitizeText(raw string) string {
	return strings.TrimSpace(s.policy.Sanitize(raw))
}
