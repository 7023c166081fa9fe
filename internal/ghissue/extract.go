package ghissue

import (
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"
)

// MatchStage は抽出に成功した段階を表すタグ。
// どの段階で値が見つかったかは検証の信頼度判定とログに使う。
type MatchStage string

const (
	// StageStructuredField は行頭のラベル付きフィールド（Wallet: 0x... 形式）。
	StageStructuredField MatchStage = "structured_field"
	// StageLabeledText はラベルと値が同一行にある自由記述。
	StageLabeledText MatchStage = "labeled_text"
	// StageBarePattern はラベルなしでパターンのみの一致。
	StageBarePattern MatchStage = "bare_pattern"
)

// Extraction は本文から抽出された値と、一致した段階のタグ。
type Extraction struct {
	Value string
	Stage MatchStage
}

// extractor は1段階分の抽出器。reの最初のキャプチャグループを値とする。
type extractor struct {
	stage MatchStage
	re    *regexp.Regexp
}

// extractFirst は抽出器を順に試し、最初に一致した値を返す。
// 先の段階ほど信頼度が高いため、順序が意味を持つ。
func extractFirst(body string, extractors []extractor) (Extraction, bool) {
	for _, ex := range extractors {
		m := ex.re.FindStringSubmatch(body)
		if m == nil {
			continue
		}
		value := strings.TrimSpace(m[1])
		if value == "" {
			continue
		}
		return Extraction{Value: value, Stage: ex.stage}, true
	}
	return Extraction{}, false
}

const addressPattern = `0x[0-9a-fA-F]{40}`

// ラベルは単語境界を挟まない限り一致させない。Bot-Wallet等の
// 複合ラベルが申請者ウォレットの抽出器を満たしてしまうため。
var walletLabeledExtractors = []extractor{
	{StageStructuredField, regexp.MustCompile(`(?mi)^[\s*_>#-]*(?:wallet|address|ウォレット)[\s*_]*[:：][\s*_]*` + "`?" + `(` + addressPattern + `)`)},
	{StageLabeledText, regexp.MustCompile(`(?i)(?:^|[^-\w])(?:wallet|address|ウォレット)[^\n]{0,20}?(` + addressPattern + `)`)},
}

var bareAddressRe = regexp.MustCompile(`(` + addressPattern + `)`)

// ExtractWallet は本文から申請者のウォレットアドレスを抽出する。
// ラベルなしの一致はbot署名用ウォレットと区別できないため、
// bot側の抽出器に一致したアドレスは候補から除外する。
func ExtractWallet(body string) (Extraction, bool) {
	if ext, ok := extractFirst(body, walletLabeledExtractors); ok {
		return ext, true
	}
	botAddr := ""
	if bot, ok := ExtractBotWallet(body); ok {
		botAddr = bot.Value
	}
	for _, m := range bareAddressRe.FindAllStringSubmatch(body, -1) {
		value := strings.TrimSpace(m[1])
		if value == "" || strings.EqualFold(value, botAddr) {
			continue
		}
		return Extraction{Value: value, Stage: StageBarePattern}, true
	}
	return Extraction{}, false
}

// botウォレットはラベルなし一致を許すと申請者ウォレットと混同するため、
// ラベル付きの段階のみ。
var botWalletExtractors = []extractor{
	{StageStructuredField, regexp.MustCompile(`(?mi)^[\s*_>#-]*(?:bot[-_ ]?wallet|signing[-_ ]?wallet)[\s*_]*[:：][\s*_]*` + "`?" + `(` + addressPattern + `)`)},
	{StageLabeledText, regexp.MustCompile(`(?i)(?:bot[-_ ]?wallet|signing[-_ ]?wallet)[^\n]{0,20}?(` + addressPattern + `)`)},
}

// ExtractBotWallet は本文からbot署名用ウォレットを抽出する。
func ExtractBotWallet(body string) (Extraction, bool) {
	return extractFirst(body, botWalletExtractors)
}

const issueURLValue = `https://github\.com/[\w.-]+/[\w.-]+/issues/\d+`

var birthIssueExtractors = []extractor{
	{StageStructuredField, regexp.MustCompile(`(?mi)^[\s*_>#-]*(?:birth[-_ ]?issue|birth[-_ ]?url|origin)[\s*_]*[:：][\s*_]*<?(` + issueURLValue + `)`)},
	{StageLabeledText, regexp.MustCompile(`(?i)(?:birth[-_ ]?issue|birth[-_ ]?url|origin)[^\n]{0,20}?(` + issueURLValue + `)`)},
	{StageBarePattern, regexp.MustCompile(`(` + issueURLValue + `)`)},
}

// ExtractBirthIssueURL は本文から出生issueのURLを抽出する。
func ExtractBirthIssueURL(body string) (Extraction, bool) {
	return extractFirst(body, birthIssueExtractors)
}

var displayNameExtractors = []extractor{
	{StageStructuredField, regexp.MustCompile(`(?mi)^[\s*_>#-]*(?:display[-_ ]?name|name|名前)[\s*_]*[:：][\s*_]*(.+)$`)},
}

// ExtractDisplayName は本文から表示名を抽出する。
// 値は未検証のユーザー入力のため、呼び出し側でサニタイズすること。
func ExtractDisplayName(body string) (Extraction, bool) {
	ext, ok := extractFirst(body, displayNameExtractors)
	if !ok {
		return Extraction{}, false
	}
	ext.Value = strings.Trim(ext.Value, "`* ")
	if ext.Value == "" {
		return Extraction{}, false
	}
	return ext, true
}

var signatureExtractors = []extractor{
	{StageStructuredField, regexp.MustCompile(`(?mi)^[\s*_>#-]*(?:signature|署名)[\s*_]*[:：][\s*_]*` + "`?" + `(?:0x)?([0-9a-fA-F]{130})`)},
	{StageLabeledText, regexp.MustCompile(`(?i)signature[^\n]{0,20}?(?:0x)?([0-9a-fA-F]{130})`)},
}

// ExtractSignature は本文に埋め込まれた署名（65バイト）を抽出する。
func ExtractSignature(body string) ([]byte, bool) {
	ext, ok := extractFirst(body, signatureExtractors)
	if !ok {
		return nil, false
	}
	sig, err := hex.DecodeString(ext.Value)
	if err != nil {
		return nil, false
	}
	return sig, true
}

var proofRoundExtractors = []extractor{
	{StageStructuredField, regexp.MustCompile(`(?mi)^[\s*_>#-]*(?:proof[-_ ]?of[-_ ]?time|round)[\s*_]*[:：][\s*_]*` + "`?" + `(\d+)`)},
	{StageLabeledText, regexp.MustCompile(`(?i)(?:proof[-_ ]?of[-_ ]?time|round)[^\n]{0,20}?(\d{3,})`)},
}

// ExtractProofRound は本文から時刻証明のラウンドID参照を抽出する。
func ExtractProofRound(body string) (uint64, bool) {
	ext, ok := extractFirst(body, proofRoundExtractors)
	if !ok {
		return 0, false
	}
	round, err := strconv.ParseUint(ext.Value, 10, 64)
	if err != nil || round == 0 {
		return 0, false
	}
	return round, true
}
