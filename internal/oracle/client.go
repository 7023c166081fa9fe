// Package oracle は外部価格オラクルコントラクトへのProof-of-Timeゲートウェイを提供する。
// ラウンドの値そのものではなく、ラウンドのタイムスタンプのみを信頼の根拠として使う。
// 呼び出し側が提示したタイムスタンプは決して信用しない。
package oracle

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/sha3"
)

// ErrOracleUnavailable はオラクルへのネットワーク呼び出しまたは
// レスポンスのデコードに失敗したことを表す。
var ErrOracleUnavailable = errors.New("oracle unavailable")

// DefaultMaxRoundAge はラウンドタイムスタンプの正準鮮度境界。
// ラウンドID距離による比較は採用しない。ラウンド間隔の変動に耐え、
// 1時間あたりのラウンド数を推測する必要がないため。
const DefaultMaxRoundAge = 3600 * time.Second

// Round はオラクルの1ラウンド分のデータを表す。
type Round struct {
	ID        uint64
	Value     *big.Int
	Timestamp time.Time
}

// Client は価格フィードコントラクトに対するJSON-RPCクライアント。
type Client struct {
	httpClient  *http.Client
	logger      *slog.Logger
	rpcURL      string
	feedAddress string
}

// NewClient はClientの新しいインスタンスを生成する。
// feedAddressは集約コントラクトのアドレス（0xプレフィックス付きhex）。
func NewClient(httpClient *http.Client, logger *slog.Logger, rpcURL, feedAddress string) *Client {
	return &Client{
		httpClient:  httpClient,
		logger:      logger,
		rpcURL:      rpcURL,
		feedAddress: feedAddress,
	}
}

// 関数セレクタはパッケージ初期化時に1回だけ計算する。
var (
	selectorGetRoundData    = methodSelector("getRoundData(uint80)")
	selectorLatestRoundData = methodSelector("latestRoundData()")
)

// methodSelector は関数シグネチャからABI関数セレクタ（先頭4バイト）を導出する。
func methodSelector(signature string) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(signature))
	return h.Sum(nil)[:4]
}

// RoundData は指定ラウンドの値とタイムスタンプを取得する。
// ラウンドIDは単調増加な整数であること以外の構造を仮定しない。
func (c *Client) RoundData(ctx context.Context, roundID uint64) (*Round, error) {
	arg := make([]byte, 32)
	big.NewInt(0).SetUint64(roundID).FillBytes(arg)
	calldata := append(append([]byte{}, selectorGetRoundData...), arg...)
	return c.call(ctx, calldata)
}

// LatestRound は最新ラウンドの値とタイムスタンプを取得する。
func (c *Client) LatestRound(ctx context.Context) (*Round, error) {
	return c.call(ctx, selectorLatestRoundData)
}

// Fresh はラウンドタイムスタンプの鮮度を判定する。
// now - round.Timestamp <= maxAge のとき新鮮とみなす。
// タイムスタンプがゼロ値のラウンドは常に古いものとして扱う（フェイルクローズ）。
func Fresh(round *Round, now time.Time, maxAge time.Duration) bool {
	if round == nil || round.Timestamp.IsZero() || round.Timestamp.Unix() <= 0 {
		return false
	}
	return now.Sub(round.Timestamp) <= maxAge
}

// rpcRequest はJSON-RPCリクエストボディ。
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// rpcResponse はJSON-RPCレスポンスボディ。
type rpcResponse struct {
	Result string `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// call はeth_callを実行し、roundData形式の戻り値をデコードする。
func (c *Client) call(ctx context.Context, calldata []byte) (*Round, error) {
	reqBody, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "eth_call",
		Params: []any{
			map[string]string{
				"to":   c.feedAddress,
				"data": "0x" + hex.EncodeToString(calldata),
			},
			"latest",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: encoding request: %v", ErrOracleUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("oracle rpc call failed",
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("oracle rpc returned error status",
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, fmt.Errorf("%w: http status %d", ErrOracleUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrOracleUnavailable, err)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return nil, fmt.Errorf("%w: parsing response: %v", ErrOracleUnavailable, err)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("%w: rpc error %d: %s", ErrOracleUnavailable, rpcResp.Error.Code, rpcResp.Error.Message)
	}

	round, err := decodeRoundData(rpcResp.Result)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}
	return round, nil
}

// decodeRoundData はroundData ABI戻り値をデコードする。
// 戻り値は (uint80 roundId, int256 answer, uint256 startedAt,
// uint256 updatedAt, uint80 answeredInRound) の5ワード。
func decodeRoundData(result string) (*Round, error) {
	hexStr := strings.TrimPrefix(strings.TrimSpace(result), "0x")
	if len(hexStr) < 5*64 {
		return nil, fmt.Errorf("result too short: %d hex chars", len(hexStr))
	}

	words := make([]*big.Int, 5)
	for i := range words {
		w, ok := new(big.Int).SetString(hexStr[i*64:(i+1)*64], 16)
		if !ok {
			return nil, fmt.Errorf("invalid word %d in result", i)
		}
		words[i] = w
	}

	updatedAt := words[3].Int64()
	round := &Round{
		ID:    words[0].Uint64(),
		Value: words[1],
	}
	if updatedAt > 0 {
		round.Timestamp = time.Unix(updatedAt, 0)
	}
	return round, nil
}
