package handler

import (
	"context"
	"encoding/hex"
	"net/http"
	"strconv"

	"github.com/hitoshi/walletbind/internal/merkle"
	"github.com/hitoshi/walletbind/internal/middleware"
	"github.com/hitoshi/walletbind/internal/model"
	"github.com/hitoshi/walletbind/internal/wallet"
)

// BotLister はファミリーツリーの構築に必要なボット一覧インターフェース。
// repository.BotRepositoryの部分集合として定義する。
type BotLister interface {
	ListByOwner(ctx context.Context, ownerWallet string) ([]model.Bot, error)
}

// FamilyHandler は所有ボット群のMerkleコミットメントを提供するHTTPハンドラー。
type FamilyHandler struct {
	bots BotLister
}

// NewFamilyHandler はFamilyHandlerを生成する。
func NewFamilyHandler(bots BotLister) *FamilyHandler {
	return &FamilyHandler{bots: bots}
}

// leafResponse はMerkleリーフのAPI表現。
type leafResponse struct {
	BotWallet     string `json:"bot_wallet"`
	BirthIssueURL string `json:"birth_issue_url"`
	Sequence      uint64 `json:"sequence"`
	Leaf          string `json:"leaf"`
}

// rootResponse はファミリールートのレスポンス。
type rootResponse struct {
	Root            string         `json:"root"`
	AssignmentCount int            `json:"assignment_count"`
	Leaves          []leafResponse `json:"leaves"`
}

// proofResponse は包含証明のレスポンス。
type proofResponse struct {
	Root      string   `json:"root"`
	Proof     []string `json:"proof"`
	Leaf      string   `json:"leaf"`
	LeafIndex int      `json:"leaf_index"`
}

// Root は所有者のファミリーMerkleルートを返す。
// GET /api/family/root?owner=0x…
func (h *FamilyHandler) Root(w http.ResponseWriter, r *http.Request) {
	assignments, ok := h.loadAssignments(w, r)
	if !ok {
		return
	}

	leaves := make([]leafResponse, 0, len(assignments))
	for _, a := range assignments {
		leaves = append(leaves, leafResponse{
			BotWallet:     a.BotWallet,
			BirthIssueURL: a.BirthIssueURL,
			Sequence:      a.Sequence,
			Leaf:          hexBytes(merkle.LeafHash(a)),
		})
	}

	writeJSON(w, http.StatusOK, rootResponse{
		Root:            hexBytes(merkle.Root(assignments)),
		AssignmentCount: len(assignments),
		Leaves:          leaves,
	})
}

// Proof は指定連番のリーフの包含証明を返す。
// GET /api/family/proof?owner=0x…&sequence=n
func (h *FamilyHandler) Proof(w http.ResponseWriter, r *http.Request) {
	assignments, ok := h.loadAssignments(w, r)
	if !ok {
		return
	}

	sequence, err := strconv.ParseUint(r.URL.Query().Get("sequence"), 10, 64)
	if err != nil || sequence == 0 {
		writeBadRequest(w, "sequenceには正の整数を指定してください")
		return
	}

	result, err := merkle.Proof(assignments, sequence)
	if err != nil {
		handleServiceError(w, model.NewLeafNotFoundError(sequence))
		return
	}

	proof := make([]string, 0, len(result.Path))
	for _, p := range result.Path {
		proof = append(proof, hexBytes(p))
	}

	writeJSON(w, http.StatusOK, proofResponse{
		Root:      hexBytes(result.Root),
		Proof:     proof,
		Leaf:      hexBytes(merkle.LeafHash(result.Leaf)),
		LeafIndex: result.LeafIndex,
	})
}

// loadAssignments はownerクエリを検証し、Merkle割り当てを導出する。
func (h *FamilyHandler) loadAssignments(w http.ResponseWriter, r *http.Request) ([]merkle.Assignment, bool) {
	owner := wallet.Normalize(r.URL.Query().Get("owner"))
	if !wallet.IsHexAddress(owner) {
		writeBadRequest(w, "ownerには0x形式のウォレットアドレスを指定してください")
		return nil, false
	}

	bots, err := h.bots.ListByOwner(r.Context(), owner)
	if err != nil {
		handleServiceError(w, model.NewUpstreamError("ボット一覧の照会"))
		return nil, false
	}
	return merkle.AssignmentsFor(bots), true
}

func writeBadRequest(w http.ResponseWriter, reason string) {
	middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
		Code:     "INVALID_REQUEST",
		Message:  reason,
		Category: "validation",
		Action:   "クエリパラメータを確認してください。",
	})
}

// hexBytes はバイト列を0xプレフィックス付きhexで表す。
func hexBytes(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}
