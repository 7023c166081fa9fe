// Package recordstore は外部レコードストアへのHTTP JSONクライアントを提供する。
// レコードストアはこのサービスの唯一の永続化層であり、フィールド等価の
// フィルタ検索、ID取得、作成、更新、削除をJSONレコードで提供する
// コラボレーターとして扱う。トランザクションは仮定しない。
package recordstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

var (
	// ErrNotFound は対象レコードが存在しないことを表す。
	ErrNotFound = errors.New("record not found")
	// ErrConflict は一意制約違反を表す。呼び出し側は既存レコードを
	// 再読込することでfind-or-createを冪等に解決する。
	ErrConflict = errors.New("unique constraint conflict")
	// ErrUpstream はレコードストアへの呼び出し失敗を表す。
	ErrUpstream = errors.New("record store unavailable")
)

// defaultTokenTTL は管理者トークンキャッシュの陳腐化境界。
// レコードストア側のトークン寿命より十分短く設定し、期限切れトークンでの
// 呼び出しをほぼ排除する。401を受けた場合は再認証して1回だけ再試行する。
const defaultTokenTTL = 30 * time.Minute

// Client はレコードストアのHTTPクライアント。
// 管理者トークンは明示的な陳腐化境界付きでプロセススコープにキャッシュされ、
// グローバル変数ではなくClientのフィールドとして注入先に運ばれる。
type Client struct {
	httpClient    *http.Client
	logger        *slog.Logger
	baseURL       string
	adminEmail    string
	adminPassword string
	tokenTTL      time.Duration

	mu             sync.Mutex
	token          string
	tokenFetchedAt time.Time

	now func() time.Time // テスト用に差し替え可能
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, baseURL, adminEmail, adminPassword string) *Client {
	return &Client{
		httpClient:    httpClient,
		logger:        logger,
		baseURL:       strings.TrimRight(baseURL, "/"),
		adminEmail:    adminEmail,
		adminPassword: adminPassword,
		tokenTTL:      defaultTokenTTL,
		now:           time.Now,
	}
}

// FilterEq はフィールド等価フィルタ式を構築する。値はクォートをエスケープする。
func FilterEq(field, value string) string {
	escaped := strings.ReplaceAll(value, `'`, `\'`)
	return fmt.Sprintf("%s='%s'", field, escaped)
}

// FilterOr は複数のフィルタ式をORで結合する。
func FilterOr(filters ...string) string {
	return "(" + strings.Join(filters, " || ") + ")"
}

// List はコレクションをフィルタ検索し、itemsをoutへデコードする。
// outはスライスへのポインタであること。
func (c *Client) List(ctx context.Context, collection, filter string, out any) error {
	q := url.Values{}
	if filter != "" {
		q.Set("filter", filter)
	}
	q.Set("perPage", "500")

	body, err := c.do(ctx, http.MethodGet, "/api/collections/"+collection+"/records", q, nil)
	if err != nil {
		return err
	}

	var envelope struct {
		Items json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("%w: parsing list response: %v", ErrUpstream, err)
	}
	if err := json.Unmarshal(envelope.Items, out); err != nil {
		return fmt.Errorf("%w: decoding items: %v", ErrUpstream, err)
	}
	return nil
}

// GetOne は指定IDのレコードを取得してoutへデコードする。
func (c *Client) GetOne(ctx context.Context, collection, id string, out any) error {
	body, err := c.do(ctx, http.MethodGet, "/api/collections/"+collection+"/records/"+id, nil, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decoding record: %v", ErrUpstream, err)
	}
	return nil
}

// Create はレコードを作成する。一意制約違反の場合はErrConflictを返す。
func (c *Client) Create(ctx context.Context, collection string, record any, out any) error {
	body, err := c.do(ctx, http.MethodPost, "/api/collections/"+collection+"/records", nil, record)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decoding created record: %v", ErrUpstream, err)
	}
	return nil
}

// Update は指定IDのレコードを部分更新する。
func (c *Client) Update(ctx context.Context, collection, id string, record any, out any) error {
	body, err := c.do(ctx, http.MethodPatch, "/api/collections/"+collection+"/records/"+id, nil, record)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decoding updated record: %v", ErrUpstream, err)
	}
	return nil
}

// Delete は指定IDのレコードを削除する。
func (c *Client) Delete(ctx context.Context, collection, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/api/collections/"+collection+"/records/"+id, nil, nil)
	return err
}

// do は認証付きリクエストを実行し、レスポンスボディを返す。
// 401を受けた場合はトークンを無効化して1回だけ再認証・再試行する。
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	respBody, status, err := c.doOnce(ctx, method, path, query, body)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		c.invalidateToken()
		respBody, status, err = c.doOnce(ctx, method, path, query, body)
		if err != nil {
			return nil, err
		}
	}

	switch {
	case status >= 200 && status < 300:
		return respBody, nil
	case status == http.StatusNotFound:
		return nil, ErrNotFound
	case isConflict(status, respBody):
		return nil, ErrConflict
	default:
		c.logger.Error("record store returned error status",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("http_status", status),
		)
		return nil, fmt.Errorf("%w: http status %d", ErrUpstream, status)
	}
}

// doOnce は1回分のHTTPリクエストを実行する。
func (c *Client) doOnce(ctx context.Context, method, path string, query url.Values, body any) ([]byte, int, error) {
	token, err := c.authToken(ctx)
	if err != nil {
		return nil, 0, err
	}

	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: encoding request: %v", ErrUpstream, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	req.Header.Set("Authorization", token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("record store call failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return nil, 0, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: reading response: %v", ErrUpstream, err)
	}
	return respBody, resp.StatusCode, nil
}

// isConflict は一意制約違反レスポンスかを判定する。
// レコードストアは制約違反を400 + validation_not_uniqueコード、
// または409で通知する。
func isConflict(status int, body []byte) bool {
	if status == http.StatusConflict {
		return true
	}
	return status == http.StatusBadRequest && bytes.Contains(body, []byte("validation_not_unique"))
}

// authToken はキャッシュ済み管理者トークンを返す。
// 陳腐化境界を超えている場合は再認証する。
func (c *Client) authToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Sub(c.tokenFetchedAt) < c.tokenTTL {
		return c.token, nil
	}

	reqBody, err := json.Marshal(map[string]string{
		"identity": c.adminEmail,
		"password": c.adminPassword,
	})
	if err != nil {
		return "", fmt.Errorf("%w: encoding auth request: %v", ErrUpstream, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/admins/auth-with-password", bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: admin auth: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: admin auth returned status %d", ErrUpstream, resp.StatusCode)
	}

	var authResp struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&authResp); err != nil {
		return "", fmt.Errorf("%w: parsing auth response: %v", ErrUpstream, err)
	}
	if authResp.Token == "" {
		return "", fmt.Errorf("%w: admin auth returned empty token", ErrUpstream)
	}

	c.token = authResp.Token
	c.tokenFetchedAt = c.now()
	return c.token, nil
}

// invalidateToken はキャッシュ済みトークンを破棄する。
func (c *Client) invalidateToken() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
}
