// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, claim, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidSignature   = "INVALID_SIGNATURE"
	ErrCodeMalformedMessage   = "MALFORMED_MESSAGE"
	ErrCodeNonceExpired       = "NONCE_EXPIRED"
	ErrCodeWalletRoleConflict = "WALLET_ROLE_CONFLICT"
	ErrCodeDuplicateBotWallet = "DUPLICATE_BOT_WALLET"
	ErrCodeAuthorMismatch     = "AUTHOR_MISMATCH"
	ErrCodeMissingEvidence    = "MISSING_EVIDENCE"
	ErrCodeOracleUnavailable  = "ORACLE_UNAVAILABLE"
	ErrCodeLeafNotFound       = "LEAF_NOT_FOUND"
	ErrCodeUpstream           = "UPSTREAM_UNAVAILABLE"
	ErrCodeInvalidURL         = "INVALID_URL"
	ErrCodeSSRFBlocked        = "SSRF_BLOCKED"
)

// NewInvalidSignatureError は署名検証失敗エラーを生成する。
func NewInvalidSignatureError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSignature,
		Message:  "署名の検証に失敗しました。",
		Category: "auth",
		Action:   "ウォレットで正しいメッセージに署名し直してください。",
	}
}

// NewMalformedMessageError は構造化サインインメッセージの解析失敗エラーを生成する。
func NewMalformedMessageError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeMalformedMessage,
		Message:  fmt.Sprintf("サインインメッセージの形式が不正です: %s", reason),
		Category: "validation",
		Action:   "アドレス行とNonce行を含む標準形式のメッセージを使用してください。",
	}
}

// NewNonceExpiredError はProof-of-Timeの鮮度期限切れエラーを生成する。
func NewNonceExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeNonceExpired,
		Message:  "ノンスに紐づくオラクルラウンドが古すぎます。",
		Category: "auth",
		Action:   "最新のラウンドIDを取得してサインインし直してください。",
	}
}

// NewWalletRoleConflictError はボット署名用ウォレットでの人間サインイン拒否エラーを生成する。
func NewWalletRoleConflictError(wallet string) *APIError {
	return &APIError{
		Code:     ErrCodeWalletRoleConflict,
		Message:  fmt.Sprintf("このウォレットはボットの署名用ウォレットとして登録されています: %s", wallet),
		Category: "auth",
		Action:   "人間用のウォレットでサインインしてください。",
	}
}

// NewDuplicateBotWalletError はボット署名用ウォレットの重複登録エラーを生成する。
func NewDuplicateBotWalletError(wallet string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateBotWallet,
		Message:  fmt.Sprintf("このボット用ウォレットは既に別のボットに割り当てられています: %s", wallet),
		Category: "claim",
		Action:   "ボットごとに一意のウォレットを使用してください。",
	}
}

// NewAuthorMismatchError は検証issueと出生issueの作成者不一致エラーを生成する。
func NewAuthorMismatchError(verifyAuthor, birthAuthor string) *APIError {
	return &APIError{
		Code:     ErrCodeAuthorMismatch,
		Message:  fmt.Sprintf("検証issueの作成者 %q と出生issueの作成者 %q が一致しません。", verifyAuthor, birthAuthor),
		Category: "claim",
		Action:   "両方のissueを同じGitHubアカウントで作成してください。",
	}
}

// NewMissingEvidenceError はissueから必要な情報を抽出できない場合のエラーを生成する。
func NewMissingEvidenceError(what string) *APIError {
	return &APIError{
		Code:     ErrCodeMissingEvidence,
		Message:  fmt.Sprintf("issueから %s を抽出できませんでした。", what),
		Category: "claim",
		Action:   "issue本文に必要なフィールドが含まれているか確認してください。",
	}
}

// NewOracleUnavailableError はオラクル呼び出し失敗エラーを生成する。
func NewOracleUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeOracleUnavailable,
		Message:  "価格オラクルへの問い合わせに失敗しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewLeafNotFoundError はMerkle証明対象のリーフが見つからない場合のエラーを生成する。
func NewLeafNotFoundError(sequence uint64) *APIError {
	return &APIError{
		Code:     ErrCodeLeafNotFound,
		Message:  fmt.Sprintf("連番 %d に対応する割り当てが見つかりません。", sequence),
		Category: "validation",
		Action:   "所有者ウォレットと連番を確認してください。",
	}
}

// NewUpstreamError は外部コラボレーター（レコードストア・issueソース）の失敗エラーを生成する。
func NewUpstreamError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeUpstream,
		Message:  fmt.Sprintf("外部サービスの呼び出しに失敗しました: %s", reason),
		Category: "system",
		Action:   "全ての変更操作は自然キーで冪等のため、安全に再試行できます。",
	}
}

// NewInvalidURLError は無効なissue URLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("無効なURLです: %s", reason),
		Category: "validation",
		Action:   "https://github.com/{owner}/{repo}/issues/{番号} 形式のURLを指定してください。",
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "セキュリティポリシーにより、指定されたURLへのアクセスがブロックされました。",
		Category: "validation",
		Action:   "公開されているissueのURLを入力してください。ローカルネットワークやプライベートIPへのアクセスは許可されていません。",
	}
}
