// Package ghissue は外部issueドキュメントソース（GitHub issue）への
// クライアントと、issue本文からの証拠抽出パイプラインを提供する。
package ghissue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidIssueURL はissue URLの形式不正を表す。
	ErrInvalidIssueURL = errors.New("invalid issue URL")
	// ErrIssueUnavailable はissueドキュメントの取得失敗を表す。
	ErrIssueUnavailable = errors.New("issue source unavailable")
)

// defaultAPIBase はGitHub REST APIのベースURL。
const defaultAPIBase = "https://api.github.com"

// Issue は外部の人間が作成したissueドキュメントを表す。
type Issue struct {
	URL       string
	Author    string // issue作成者のユーザー名
	Title     string
	Body      string
	CreatedAt time.Time
}

// Client はissueドキュメントソースのクライアント。
// issue URLは利用者が指定するため、httpClientにはSSRFガード付きの
// クライアントを渡すこと。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	apiBase    string
	token      string // 任意。レート制限緩和用のAPIトークン
}

// NewClient はClientの新しいインスタンスを生成する。
// apiBaseが空の場合はGitHub公式APIを使用する。
func NewClient(httpClient *http.Client, logger *slog.Logger, apiBase, token string) *Client {
	if apiBase == "" {
		apiBase = defaultAPIBase
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		apiBase:    strings.TrimRight(apiBase, "/"),
		token:      token,
	}
}

// issueURLPattern はブラウザ向けissue URLの形式。
var issueURLPattern = regexp.MustCompile(`^/([\w.-]+)/([\w.-]+)/issues/(\d+)/?$`)

// ParseIssueURL はissue URLをowner/repo/番号に分解する。
func ParseIssueURL(rawURL string) (owner, repo string, number int, err error) {
	parsed, parseErr := url.Parse(strings.TrimSpace(rawURL))
	if parseErr != nil {
		return "", "", 0, fmt.Errorf("%w: %v", ErrInvalidIssueURL, parseErr)
	}
	if parsed.Scheme != "https" || !strings.EqualFold(parsed.Hostname(), "github.com") {
		return "", "", 0, fmt.Errorf("%w: expected https://github.com issue URL", ErrInvalidIssueURL)
	}
	m := issueURLPattern.FindStringSubmatch(parsed.Path)
	if m == nil {
		return "", "", 0, fmt.Errorf("%w: path %s", ErrInvalidIssueURL, parsed.Path)
	}
	number, _ = strconv.Atoi(m[3])
	if number <= 0 {
		return "", "", 0, fmt.Errorf("%w: issue number must be positive", ErrInvalidIssueURL)
	}
	return m[1], m[2], number, nil
}

// issueResponse はGitHub APIのissueレスポンスの必要部分。
type issueResponse struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	User  struct {
		Login string `json:"login"`
	} `json:"user"`
	CreatedAt time.Time `json:"created_at"`
}

// GetIssue は指定URLのissueドキュメントを取得する。
func (c *Client) GetIssue(ctx context.Context, issueURL string) (*Issue, error) {
	owner, repo, number, err := ParseIssueURL(issueURL)
	if err != nil {
		return nil, err
	}

	apiURL := fmt.Sprintf("%s/repos/%s/%s/issues/%d", c.apiBase, owner, repo, number)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIssueUnavailable, err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "walletbind/1.0")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("issue fetch failed",
			slog.String("issue_url", issueURL),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %v", ErrIssueUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("issue source returned error status",
			slog.String("issue_url", issueURL),
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, fmt.Errorf("%w: http status %d", ErrIssueUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrIssueUnavailable, err)
	}

	var parsed issueResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: parsing response: %v", ErrIssueUnavailable, err)
	}
	if parsed.User.Login == "" {
		return nil, fmt.Errorf("%w: response missing author", ErrIssueUnavailable)
	}

	return &Issue{
		URL:       issueURL,
		Author:    parsed.User.Login,
		Title:     parsed.Title,
		Body:      parsed.Body,
		CreatedAt: parsed.CreatedAt,
	}, nil
}
