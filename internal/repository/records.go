package repository

import (
	"time"

	"github.com/hitoshi/walletbind/internal/model"
)

// レコードストアのコレクション名
const (
	collectionAccounts      = "accounts"
	collectionBots          = "bots"
	collectionNotifications = "notifications"
)

// accountRecord はレコードストア上のアカウントの表現。
type accountRecord struct {
	ID             string `json:"id,omitempty"`
	Wallet         string `json:"wallet"`
	GithubUsername string `json:"github_username"`
	Name           string `json:"name"`
	Created        string `json:"created,omitempty"`
	Updated        string `json:"updated,omitempty"`
}

// botRecord はレコードストア上のボットの表現。
type botRecord struct {
	ID             string `json:"id,omitempty"`
	BirthIssueURL  string `json:"birth_issue_url"`
	OwnerWallet    string `json:"owner_wallet"`
	BotWallet      string `json:"bot_wallet"`
	WalletVerified bool   `json:"wallet_verified"`
	Approved       bool   `json:"approved"`
	Claimed        bool   `json:"claimed"`
	Name           string `json:"name"`
	Created        string `json:"created,omitempty"`
	Updated        string `json:"updated,omitempty"`
}

// notificationRecord はレコードストア上の通知の表現。
type notificationRecord struct {
	ID              string `json:"id,omitempty"`
	RecipientWallet string `json:"recipient_wallet"`
	ActorWallet     string `json:"actor_wallet"`
	Type            string `json:"type"`
	Message         string `json:"message"`
	PostID          string `json:"post_id"`
	CommentID       string `json:"comment_id"`
	Read            bool   `json:"read"`
	Created         string `json:"created,omitempty"`
}

// parseStoreTime はレコードストアのタイムスタンプ文字列を解析する。
// RFC3339と空白区切りのUTC形式の両方を受理し、解析できない場合はゼロ値を返す。
func parseStoreTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05.000Z", "2006-01-02 15:04:05Z"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func (r accountRecord) toModel() *model.Account {
	return &model.Account{
		ID:             r.ID,
		Wallet:         r.Wallet,
		GithubUsername: r.GithubUsername,
		Name:           r.Name,
		CreatedAt:      parseStoreTime(r.Created),
		UpdatedAt:      parseStoreTime(r.Updated),
	}
}

func accountToRecord(a *model.Account) accountRecord {
	return accountRecord{
		ID:             a.ID,
		Wallet:         a.Wallet,
		GithubUsername: a.GithubUsername,
		Name:           a.Name,
	}
}

func (r botRecord) toModel() model.Bot {
	return model.Bot{
		ID:             r.ID,
		BirthIssueURL:  r.BirthIssueURL,
		OwnerWallet:    r.OwnerWallet,
		BotWallet:      r.BotWallet,
		WalletVerified: r.WalletVerified,
		Approved:       r.Approved,
		Claimed:        r.Claimed,
		Name:           r.Name,
		CreatedAt:      parseStoreTime(r.Created),
		UpdatedAt:      parseStoreTime(r.Updated),
	}
}

func botToRecord(b *model.Bot) botRecord {
	return botRecord{
		ID:             b.ID,
		BirthIssueURL:  b.BirthIssueURL,
		OwnerWallet:    b.OwnerWallet,
		BotWallet:      b.BotWallet,
		WalletVerified: b.WalletVerified,
		Approved:       b.Approved,
		Claimed:        b.Claimed,
		Name:           b.Name,
	}
}

func (r notificationRecord) toModel() model.Notification {
	return model.Notification{
		ID:              r.ID,
		RecipientWallet: r.RecipientWallet,
		ActorWallet:     r.ActorWallet,
		Type:            r.Type,
		Message:         r.Message,
		PostID:          r.PostID,
		CommentID:       r.CommentID,
		Read:            r.Read,
		CreatedAt:       parseStoreTime(r.Created),
	}
}

func notificationToRecord(n *model.Notification) notificationRecord {
	return notificationRecord{
		ID:              n.ID,
		RecipientWallet: n.RecipientWallet,
		ActorWallet:     n.ActorWallet,
		Type:            n.Type,
		Message:         n.Message,
		PostID:          n.PostID,
		CommentID:       n.CommentID,
		Read:            n.Read,
	}
}
