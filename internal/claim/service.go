// Package claim はサインインとGitHub issueベースのアイデンティティclaim/
// 再claimを検証するコアサービスを提供する。
//
// claim処理の状態遷移:
//
//	Received → GithubFetched → AuthorsMatched → WalletExtracted
//	→ SignatureOptionallyVerified → TimeFresh → Resolved
//
// どの状態でも検証失敗は固有のエラー種別で即座に打ち切る。
package claim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/walletbind/internal/ghissue"
	"github.com/hitoshi/walletbind/internal/model"
	"github.com/hitoshi/walletbind/internal/oracle"
	"github.com/hitoshi/walletbind/internal/repository"
	"github.com/hitoshi/walletbind/internal/wallet"
)

// defaultNonceMaxAge はオラクルラウンドの鮮度上限のデフォルト値。
const defaultNonceMaxAge = time.Hour

// IssueSource は外部issueドキュメントの取得を抽象化するインターフェース。
type IssueSource interface {
	GetIssue(ctx context.Context, issueURL string) (*ghissue.Issue, error)
}

// RoundSource は価格オラクルのラウンド取得を抽象化するインターフェース。
type RoundSource interface {
	RoundData(ctx context.Context, roundID uint64) (*oracle.Round, error)
}

// TokenIssuer はセッショントークンの発行を抽象化するインターフェース。
type TokenIssuer interface {
	Issue(claims map[string]any) (string, error)
}

// Sanitizer はユーザー入力テキストのサニタイズを抽象化するインターフェース。
type Sanitizer interface {
	SanitizeText(raw string) string
}

// Notifier はclaim結果の通知作成を抽象化するインターフェース。
// 通知の失敗はclaim自体を失敗させない。
type Notifier interface {
	Notify(ctx context.Context, recipientWallet, actorWallet, notifType, message string) error
}

// Recorder はサインイン・claimの結果をメトリクスに記録するインターフェース。
type Recorder interface {
	ObserveSignIn(outcome string)
	ObserveClaim(outcome string)
	AddReclaimTransfers(n int)
	ObserveOracleLatency(duration time.Duration)
}

// Deps はServiceの依存関係。
type Deps struct {
	Accounts    repository.AccountRepository
	Bots        repository.BotRepository
	Issues      IssueSource
	Rounds      RoundSource
	Tokens      TokenIssuer
	Sanitizer   Sanitizer
	Notifier    Notifier // 省略可
	Metrics     Recorder // 省略可
	Logger      *slog.Logger
	NonceMaxAge time.Duration
	Now         func() time.Time
}

// Service はClaim Verifier本体。
// 各リクエストは独立・ステートレスに処理され、永続状態は全て
// リポジトリ経由で外部レコードストアに置かれる。
type Service struct {
	accounts    repository.AccountRepository
	bots        repository.BotRepository
	issues      IssueSource
	rounds      RoundSource
	tokens      TokenIssuer
	sanitizer   Sanitizer
	notifier    Notifier
	metrics     Recorder
	logger      *slog.Logger
	nonceMaxAge time.Duration
	now         func() time.Time
}

// NewService はServiceを生成する。
func NewService(d Deps) *Service {
	if d.NonceMaxAge <= 0 {
		d.NonceMaxAge = defaultNonceMaxAge
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Service{
		accounts:    d.Accounts,
		bots:        d.Bots,
		issues:      d.Issues,
		rounds:      d.Rounds,
		tokens:      d.Tokens,
		sanitizer:   d.Sanitizer,
		notifier:    d.Notifier,
		metrics:     d.Metrics,
		logger:      d.Logger,
		nonceMaxAge: d.NonceMaxAge,
		now:         d.Now,
	}
}

// SignInResult はサインイン成功時の結果。
type SignInResult struct {
	Token   string
	Wallet  string
	Created bool // このサインインでアカウントが新規作成されたか
}

// SignIn は構造化サインインメッセージと署名を検証し、セッショントークンを発行する。
//
// フロー: メッセージ解析と署名者復元 → ノンス（オラクルラウンドID）の鮮度検証
// → ウォレット役割ガード（ボット署名用ウォレットでの人間サインイン拒否）
// → アカウントのfind-or-create → トークン発行。
func (s *Service) SignIn(ctx context.Context, message string, signature []byte) (*SignInResult, error) {
	result, err := s.signIn(ctx, message, signature)
	s.observeSignIn(err)
	return result, err
}

func (s *Service) signIn(ctx context.Context, message string, signature []byte) (*SignInResult, error) {
	info := wallet.VerifySignInMessage(message, signature, s.now())
	if info == nil {
		return nil, model.NewInvalidSignatureError()
	}

	roundID, err := strconv.ParseUint(info.Nonce, 10, 64)
	if err != nil || roundID == 0 {
		return nil, model.NewMalformedMessageError("ノンスはオラクルラウンドIDである必要があります")
	}

	round, err := s.fetchRound(ctx, roundID)
	if err != nil {
		s.logger.Error("オラクルラウンドの取得に失敗しました",
			slog.Uint64("round_id", roundID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewOracleUnavailableError()
	}
	if !oracle.Fresh(round, s.now(), s.nonceMaxAge) {
		return nil, model.NewNonceExpiredError()
	}

	// ウォレット役割ガード: ボットの署名用ウォレットは人間としてサインインできない
	bot, err := s.bots.FindByBotWallet(ctx, info.Wallet)
	if err != nil {
		return nil, model.NewUpstreamError("ボット情報の照会")
	}
	if bot != nil {
		return nil, model.NewWalletRoleConflictError(info.Wallet)
	}

	account, err := s.accounts.FindByWallet(ctx, info.Wallet)
	if err != nil {
		return nil, model.NewUpstreamError("アカウント情報の照会")
	}
	created := false
	if account == nil {
		account, err = s.accounts.Create(ctx, &model.Account{Wallet: info.Wallet})
		if err != nil {
			return nil, model.NewUpstreamError("アカウントの作成")
		}
		created = true
	}

	token, err := s.tokens.Issue(sessionClaims(account.Wallet))
	if err != nil {
		return nil, fmt.Errorf("failed to issue session token: %w", err)
	}

	s.logger.Info("サインインに成功しました",
		slog.String("wallet", account.Wallet),
		slog.Bool("created", created),
	)
	return &SignInResult{Token: token, Wallet: account.Wallet, Created: created}, nil
}

// ClaimRequest はアイデンティティclaimのリクエスト。
type ClaimRequest struct {
	VerificationIssueURL string
	BirthIssueURL        string // 省略時は検証issue本文から抽出
	DisplayName          string // 省略時は検証issue本文→出生issueタイトルの順で補完
	SignInMessage        string // 再claim用。抽出ウォレットの現在の支配を別署名で証明する
	SignInSignature      []byte
}

// ClaimResult はclaim成功時の結果。
type ClaimResult struct {
	Token          string
	Wallet         string
	GithubUsername string
	BirthIssueURL  string
	BotWallet      string // 抽出された場合のみ
	Transferred    int    // 再claimで移管したボット数
	Partial        bool   // 移管の一部が失敗した場合true
}

// Claim はGitHub issueを証拠としてウォレットと外部アカウントを紐づける。
// 再claim証明（SignInMessage/SignInSignature）が同時に提示された場合は、
// 同一GitHubユーザー名の旧ウォレットが所有するボットを新ウォレットに移管する。
func (s *Service) Claim(ctx context.Context, req ClaimRequest) (*ClaimResult, error) {
	result, err := s.claim(ctx, req)
	s.observeClaim(err)
	return result, err
}

func (s *Service) claim(ctx context.Context, req ClaimRequest) (*ClaimResult, error) {
	verIssue, err := s.fetchIssue(ctx, req.VerificationIssueURL)
	if err != nil {
		return nil, err
	}

	// 出生issueのURL: 検証issue本文の明示フィールド → 呼び出し側指定の順
	birthURL := strings.TrimSpace(req.BirthIssueURL)
	if ext, ok := ghissue.ExtractBirthIssueURL(verIssue.Body); ok {
		birthURL = ext.Value
	}
	if birthURL == "" {
		return nil, model.NewMissingEvidenceError("出生issueのURL")
	}

	birthIssue, err := s.fetchIssue(ctx, birthURL)
	if err != nil {
		return nil, err
	}

	// 検証issueと出生issueは同一作成者でなければならない
	if !strings.EqualFold(verIssue.Author, birthIssue.Author) {
		return nil, model.NewAuthorMismatchError(verIssue.Author, birthIssue.Author)
	}

	walletExt, ok := ghissue.ExtractWallet(verIssue.Body)
	if !ok {
		return nil, model.NewMissingEvidenceError("ウォレットアドレス")
	}
	claimWallet := wallet.Normalize(walletExt.Value)

	displayName := s.resolveDisplayName(verIssue, birthIssue, req.DisplayName)

	// ボット署名用ウォレット（任意）: 別のボットに割り当て済みなら拒否
	botWallet := ""
	if ext, ok := ghissue.ExtractBotWallet(verIssue.Body); ok {
		botWallet = wallet.Normalize(ext.Value)
		existing, err := s.bots.FindByBotWallet(ctx, botWallet)
		if err != nil {
			return nil, model.NewUpstreamError("ボット情報の照会")
		}
		if existing != nil && existing.BirthIssueURL != birthURL {
			return nil, model.NewDuplicateBotWalletError(botWallet)
		}
	}

	// 埋め込み署名（任意）: issue本文内の署名が抽出ウォレットのものか検証
	if sig, ok := ghissue.ExtractSignature(verIssue.Body); ok {
		signer, err := wallet.RecoverSigner(EmbeddedClaimText(claimWallet, birthURL), sig)
		if err != nil || !wallet.Equal(signer, claimWallet) {
			return nil, model.NewInvalidSignatureError()
		}
	}

	// 時刻証明の参照（任意）: 埋め込まれたラウンドIDの鮮度を検証
	if roundID, ok := ghissue.ExtractProofRound(verIssue.Body); ok {
		round, err := s.fetchRound(ctx, roundID)
		if err != nil {
			s.logger.Error("オラクルラウンドの取得に失敗しました",
				slog.Uint64("round_id", roundID),
				slog.String("error", err.Error()),
			)
			return nil, model.NewOracleUnavailableError()
		}
		if !oracle.Fresh(round, s.now(), s.nonceMaxAge) {
			return nil, model.NewNonceExpiredError()
		}
	}

	if err := s.upsertAccount(ctx, claimWallet, verIssue.Author, displayName); err != nil {
		return nil, err
	}
	if err := s.upsertBot(ctx, birthURL, claimWallet, botWallet, displayName); err != nil {
		return nil, err
	}

	// 再claim: 抽出ウォレットの現在の支配を別署名で証明した場合のみ
	transferred, partial := 0, false
	if req.SignInMessage != "" {
		info := wallet.VerifySignInMessage(req.SignInMessage, req.SignInSignature, s.now())
		if info == nil || !wallet.Equal(info.Wallet, claimWallet) {
			return nil, model.NewInvalidSignatureError()
		}
		transferred, partial, err = s.reclaim(ctx, claimWallet, verIssue.Author)
		if err != nil {
			return nil, err
		}
	}

	token, err := s.tokens.Issue(sessionClaims(claimWallet))
	if err != nil {
		return nil, fmt.Errorf("failed to issue session token: %w", err)
	}

	if botWallet != "" {
		s.notify(ctx, claimWallet, botWallet, model.NotificationTypeClaimApproved,
			fmt.Sprintf("ボット %s のclaimが承認されました。", displayName))
	}

	s.logger.Info("claimが完了しました",
		slog.String("wallet", claimWallet),
		slog.String("github_username", verIssue.Author),
		slog.String("birth_issue_url", birthURL),
		slog.String("wallet_match_stage", string(walletExt.Stage)),
		slog.Int("transferred", transferred),
		slog.Bool("partial", partial),
	)

	return &ClaimResult{
		Token:          token,
		Wallet:         claimWallet,
		GithubUsername: verIssue.Author,
		BirthIssueURL:  birthURL,
		BotWallet:      botWallet,
		Transferred:    transferred,
		Partial:        partial,
	}, nil
}

// EmbeddedClaimText は埋め込み署名の対象となる正準テキストを返す。
// issue本文から抽出した構造化フィールドのみから構成する。
func EmbeddedClaimText(claimWallet, birthIssueURL string) string {
	return "walletbind-claim:" + wallet.Normalize(claimWallet) + ":" + birthIssueURL
}

// reclaim は同一GitHubユーザー名の旧ウォレットが所有する全ボットを
// newWalletに移管する。
//
// 最重要ガード: newWalletがいずれかのボットの署名用ウォレットとして
// 登録されている場合、移管ループ全体をスキップする。ボットの運用鍵が
// 人間のアイデンティティグラフ全体を吸収することを防ぐ。
//
// 移管はレコード単位の逐次更新でトランザクションを張らない。途中の
// 失敗はレコード単位でログに残し、partialとして呼び出し側に返す。
// コミット済みの移管は巻き戻さない。
func (s *Service) reclaim(ctx context.Context, newWallet, githubUsername string) (transferred int, partial bool, err error) {
	guard, err := s.bots.FindByBotWallet(ctx, newWallet)
	if err != nil {
		return 0, false, model.NewUpstreamError("ボット情報の照会")
	}
	if guard != nil {
		s.logger.Warn("新ウォレットがボット署名用ウォレットのため移管をスキップします",
			slog.String("wallet", newWallet),
			slog.String("bot_birth_issue_url", guard.BirthIssueURL),
		)
		return 0, false, nil
	}

	accounts, err := s.accounts.ListByUsername(ctx, githubUsername)
	if err != nil {
		return 0, false, model.NewUpstreamError("アカウント情報の照会")
	}
	var oldWallets []string
	for _, a := range accounts {
		if !wallet.Equal(a.Wallet, newWallet) {
			oldWallets = append(oldWallets, a.Wallet)
		}
	}
	if len(oldWallets) == 0 {
		return 0, false, nil
	}

	bots, err := s.bots.ListByOwners(ctx, oldWallets)
	if err != nil {
		return 0, false, model.NewUpstreamError("ボット一覧の照会")
	}

	for i := range bots {
		bot := bots[i]
		oldOwner := bot.OwnerWallet
		bot.OwnerWallet = newWallet
		if err := s.bots.Update(ctx, &bot); err != nil {
			s.logger.Error("ボット所有権の移管に失敗しました",
				slog.String("birth_issue_url", bot.BirthIssueURL),
				slog.String("old_owner", oldOwner),
				slog.String("new_owner", newWallet),
				slog.String("error", err.Error()),
			)
			partial = true
			continue
		}
		transferred++
		s.notify(ctx, newWallet, oldOwner, model.NotificationTypeOwnershipMoved,
			fmt.Sprintf("ボット %s の所有権が移管されました。", bot.BirthIssueURL))
	}

	if s.metrics != nil && transferred > 0 {
		s.metrics.AddReclaimTransfers(transferred)
	}
	s.logger.Info("所有権の移管が完了しました",
		slog.String("new_wallet", newWallet),
		slog.Int("transferred", transferred),
		slog.Bool("partial", partial),
	)
	return transferred, partial, nil
}

// upsertAccount はウォレットをキーにアカウントを作成または更新する。
func (s *Service) upsertAccount(ctx context.Context, claimWallet, githubUsername, displayName string) error {
	account, err := s.accounts.FindByWallet(ctx, claimWallet)
	if err != nil {
		return model.NewUpstreamError("アカウント情報の照会")
	}
	if account == nil {
		_, err = s.accounts.Create(ctx, &model.Account{
			Wallet:         claimWallet,
			GithubUsername: githubUsername,
			Name:           displayName,
		})
		if err != nil {
			return model.NewUpstreamError("アカウントの作成")
		}
		return nil
	}
	if account.GithubUsername != githubUsername || (displayName != "" && account.Name != displayName) {
		account.GithubUsername = githubUsername
		if displayName != "" {
			account.Name = displayName
		}
		if err := s.accounts.Update(ctx, account); err != nil {
			return model.NewUpstreamError("アカウントの更新")
		}
	}
	return nil
}

// upsertBot は出生識別子をキーにボットを作成または更新する。
// botWalletが新たに設定・変更された場合、wallet_verifiedはfalseに戻る。
func (s *Service) upsertBot(ctx context.Context, birthURL, ownerWallet, botWallet, displayName string) error {
	bot, err := s.bots.FindByBirthID(ctx, birthURL)
	if err != nil {
		return model.NewUpstreamError("ボット情報の照会")
	}
	if bot == nil {
		_, err = s.bots.Create(ctx, &model.Bot{
			BirthIssueURL:  birthURL,
			OwnerWallet:    ownerWallet,
			BotWallet:      botWallet,
			WalletVerified: false,
			Approved:       true,
			Claimed:        true,
			Name:           displayName,
		})
		if err != nil {
			return model.NewUpstreamError("ボットの作成")
		}
		return nil
	}

	bot.OwnerWallet = ownerWallet
	bot.Approved = true
	bot.Claimed = true
	if displayName != "" {
		bot.Name = displayName
	}
	if botWallet != "" && !wallet.Equal(bot.BotWallet, botWallet) {
		bot.BotWallet = botWallet
		bot.WalletVerified = false
	}
	if err := s.bots.Update(ctx, bot); err != nil {
		return model.NewUpstreamError("ボットの更新")
	}
	return nil
}

// resolveDisplayName は表示名を決定する。
// 検証issueの明示フィールド → 呼び出し側指定 → 出生issueタイトルの順。
func (s *Service) resolveDisplayName(verIssue, birthIssue *ghissue.Issue, callerSupplied string) string {
	name := ""
	if ext, ok := ghissue.ExtractDisplayName(verIssue.Body); ok {
		name = ext.Value
	} else if strings.TrimSpace(callerSupplied) != "" {
		name = callerSupplied
	} else {
		name = birthIssue.Title
	}
	return s.sanitizer.SanitizeText(name)
}

// fetchRound はオラクルラウンドを取得し、呼び出しレイテンシを記録する。
func (s *Service) fetchRound(ctx context.Context, roundID uint64) (*oracle.Round, error) {
	start := time.Now()
	round, err := s.rounds.RoundData(ctx, roundID)
	if s.metrics != nil {
		s.metrics.ObserveOracleLatency(time.Since(start))
	}
	return round, err
}

// fetchIssue はissueを取得し、失敗をAPIエラーに変換する。
func (s *Service) fetchIssue(ctx context.Context, issueURL string) (*ghissue.Issue, error) {
	issue, err := s.issues.GetIssue(ctx, issueURL)
	if err != nil {
		if errors.Is(err, ghissue.ErrInvalidIssueURL) {
			return nil, model.NewInvalidURLError(issueURL)
		}
		s.logger.Error("issueの取得に失敗しました",
			slog.String("issue_url", issueURL),
			slog.String("error", err.Error()),
		)
		return nil, model.NewUpstreamError("issueソース")
	}
	return issue, nil
}

func (s *Service) notify(ctx context.Context, recipient, actor, notifType, message string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, recipient, actor, notifType, message); err != nil {
		s.logger.Warn("通知の作成に失敗しました",
			slog.String("recipient", recipient),
			slog.String("type", notifType),
			slog.String("error", err.Error()),
		)
	}
}

// sessionClaims はセッショントークンのクレームを組み立てる。
func sessionClaims(walletAddr string) map[string]any {
	return map[string]any{
		"sub": walletAddr,
		"typ": "session",
	}
}

func (s *Service) observeSignIn(err error) {
	if s.metrics != nil {
		s.metrics.ObserveSignIn(outcomeOf(err))
	}
}

func (s *Service) observeClaim(err error) {
	if s.metrics != nil {
		s.metrics.ObserveClaim(outcomeOf(err))
	}
}

// outcomeOf はメトリクスのラベルに使う結果種別を返す。
func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return strings.ToLower(apiErr.Code)
	}
	return "internal"
}
