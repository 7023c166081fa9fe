// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/walletbind/internal/claim"
	"github.com/hitoshi/walletbind/internal/middleware"
	"github.com/hitoshi/walletbind/internal/model"
)

// ClaimServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type ClaimServiceInterface interface {
	SignIn(ctx context.Context, message string, signature []byte) (*claim.SignInResult, error)
	Claim(ctx context.Context, req claim.ClaimRequest) (*claim.ClaimResult, error)
}

// AuthHandler はサインイン・claim関連のHTTPハンドラー。
type AuthHandler struct {
	service ClaimServiceInterface
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service ClaimServiceInterface) *AuthHandler {
	return &AuthHandler{service: service}
}

// signInRequest はサインインリクエストのボディ。
type signInRequest struct {
	Message   string `json:"message"`
	Signature string `json:"signature"` // hex（0xプレフィックス任意）
}

// signInResponse はサインイン成功時のレスポンス。
type signInResponse struct {
	Token   string `json:"token"`
	Wallet  string `json:"wallet"`
	Created bool   `json:"created"`
}

// claimRequestBody はclaimリクエストのボディ。
type claimRequestBody struct {
	VerificationIssueURL string `json:"verification_issue_url"`
	BirthIssueURL        string `json:"birth_issue_url,omitempty"`
	DisplayName          string `json:"display_name,omitempty"`
	SignInMessage        string `json:"signin_message,omitempty"`
	SignInSignature      string `json:"signin_signature,omitempty"` // hex
}

// claimResponse はclaim成功時のレスポンス。
type claimResponse struct {
	Token          string `json:"token"`
	Wallet         string `json:"wallet"`
	GithubUsername string `json:"github_username"`
	BirthIssueURL  string `json:"birth_issue_url"`
	BotWallet      string `json:"bot_wallet,omitempty"`
	Transferred    int    `json:"transferred"`
	Partial        bool   `json:"partial"`
}

// SignIn はウォレット署名によるサインインを処理する。
// POST /auth/sign-in
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}
	sig, err := decodeHexSignature(req.Signature)
	if err != nil || req.Message == "" {
		handleServiceError(w, model.NewInvalidSignatureError())
		return
	}

	result, err := h.service.SignIn(r.Context(), req.Message, sig)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, signInResponse{
		Token:   result.Token,
		Wallet:  result.Wallet,
		Created: result.Created,
	})
}

// Claim はGitHub issueを証拠とするアイデンティティclaimを処理する。
// POST /auth/claim-identity
func (h *AuthHandler) Claim(w http.ResponseWriter, r *http.Request) {
	var req claimRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}
	if req.VerificationIssueURL == "" {
		handleServiceError(w, model.NewInvalidURLError("検証issueのURLが空です"))
		return
	}

	var signinSig []byte
	if req.SignInSignature != "" {
		var err error
		signinSig, err = decodeHexSignature(req.SignInSignature)
		if err != nil {
			handleServiceError(w, model.NewInvalidSignatureError())
			return
		}
	}

	result, err := h.service.Claim(r.Context(), claim.ClaimRequest{
		VerificationIssueURL: req.VerificationIssueURL,
		BirthIssueURL:        req.BirthIssueURL,
		DisplayName:          req.DisplayName,
		SignInMessage:        req.SignInMessage,
		SignInSignature:      signinSig,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, claimResponse{
		Token:          result.Token,
		Wallet:         result.Wallet,
		GithubUsername: result.GithubUsername,
		BirthIssueURL:  result.BirthIssueURL,
		BotWallet:      result.BotWallet,
		Transferred:    result.Transferred,
		Partial:        result.Partial,
	})
}

// decodeHexSignature はhex文字列の署名をデコードする。
func decodeHexSignature(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if s == "" {
		return nil, errors.New("empty signature")
	}
	return hex.DecodeString(s)
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// writeInvalidRequestBody はリクエストボディ解析失敗のレスポンスを書き込む。
func writeInvalidRequestBody(w http.ResponseWriter) {
	middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
		Code:     "INVALID_REQUEST",
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, middleware.StatusForAPIError(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}
