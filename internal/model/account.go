// Package model はドメインモデルを定義する。
package model

import "time"

// Account はウォレットアドレスをサインインキーとする人間のアカウントを表す。
// ウォレットアドレスが唯一の正準キーであり、数値IDはレコードストア側の
// 管理用IDにすぎない。
type Account struct {
	ID             string
	Wallet         string // 小文字hex正規化済み
	GithubUsername string
	Name           string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Bot は自動投稿アイデンティティ（オラクル）を表す。
// BirthIssueURLは出生issueへの不変参照であり、連番の導出元でもある。
type Bot struct {
	ID             string
	BirthIssueURL  string
	OwnerWallet    string // 所有者（人間）のウォレット
	BotWallet      string // ボット自身の署名用ウォレット。全Botで一意
	WalletVerified bool
	Approved       bool
	Claimed        bool
	Name           string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// 通知種別
const (
	NotificationTypeClaimApproved  = "claim_approved"
	NotificationTypeOwnershipMoved = "ownership_moved"
)

// Notification はユーザーへの通知を表す。
// actorとrecipientが同一の場合は作成自体が抑止される。
type Notification struct {
	ID              string
	RecipientWallet string
	ActorWallet     string
	Type            string
	Message         string
	PostID          string
	CommentID       string
	Read            bool
	CreatedAt       time.Time
}
