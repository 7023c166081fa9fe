// Package merkle は1人のオーナー配下のボット群に対する決定的なMerkleコミットメントを提供する。
// リーフは (ボットウォレット, 出生識別子, 連番) の固定型タプルであり、
// 他システムが同じルートを計算できるようエンコーディングを固定している。
package merkle

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/hitoshi/walletbind/internal/model"
	"golang.org/x/crypto/sha3"
)

// ErrLeafNotFound は指定連番の割り当てが存在しないことを表す。
var ErrLeafNotFound = errors.New("leaf not found")

// HashSize はノードハッシュのバイト長。
const HashSize = 32

// Assignment はMerkleツリーの1リーフに対応する割り当てを表す。
type Assignment struct {
	BotWallet     string
	BirthIssueURL string
	Sequence      uint64
}

// ProofResult は包含証明の計算結果を表す。
type ProofResult struct {
	Root      []byte
	Path      [][]byte
	Leaf      Assignment
	LeafIndex int
}

// birthSequencePattern は出生識別子末尾の連番（/<整数>）を抽出する。
var birthSequencePattern = regexp.MustCompile(`/(\d+)/?$`)

// SequenceFromBirthID は出生識別子（issue URL）から連番を抽出する。
// 末尾の /<整数> が存在し
// かつ正の値である場合のみ成功する。
func SequenceFromBirthID(birthID string) (uint64, bool) {
	m := birthSequencePattern.FindStringSubmatch(strings.TrimSpace(birthID))
	if m == nil {
		return 0, false
	}
	seq, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil || seq == 0 {
		return 0, false
	}
	return seq, true
}

// AssignmentsFor はボット集合から割り当てリストを導出する。
// ボットウォレットと出生識別子の両方を持つボットのみを対象とし、
// 連番を抽出できない・非正のエントリは除外する。
// 結果は連番昇順に整列するため、入力の格納順に関わらず同一集合は
// 常に同一のツリーを生む。
func AssignmentsFor(bots []model.Bot) []Assignment {
	assignments := make([]Assignment, 0, len(bots))
	for _, b := range bots {
		if b.BotWallet == "" || b.BirthIssueURL == "" {
			continue
		}
		seq, ok := SequenceFromBirthID(b.BirthIssueURL)
		if !ok {
			continue
		}
		assignments = append(assignments, Assignment{
			BotWallet:     strings.ToLower(b.BotWallet),
			BirthIssueURL: b.BirthIssueURL,
			Sequence:      seq,
		})
	}
	sort.Slice(assignments, func(i, j int) bool {
		return assignments[i].Sequence < assignments[j].Sequence
	})
	return assignments
}

// Root は割り当てリストのMerkleルートを返す。
// 空リストの場合は32バイトのゼロ値を返す。
func Root(assignments []Assignment) []byte {
	if len(assignments) == 0 {
		return make([]byte, HashSize)
	}
	level := leafHashes(assignments)
	for len(level) > 1 {
		level = nextLevel(level)
	}
	return level[0]
}

// Proof は指定連番のリーフに対する包含証明を返す。
// 連番に一致する割り当てが存在しない場合はErrLeafNotFoundを返す。
func Proof(assignments []Assignment, targetSequence uint64) (*ProofResult, error) {
	index := -1
	for i, a := range assignments {
		if a.Sequence == targetSequence {
			index = i
			break
		}
	}
	if index < 0 {
		return nil, fmt.Errorf("%w: sequence %d", ErrLeafNotFound, targetSequence)
	}

	result := &ProofResult{
		Leaf:      assignments[index],
		LeafIndex: index,
		Path:      [][]byte{},
	}

	level := leafHashes(assignments)
	i := index
	for len(level) > 1 {
		sibling := i ^ 1
		if sibling < len(level) {
			result.Path = append(result.Path, level[sibling])
		}
		// 奇数末尾ノードは兄弟なしで昇格する
		level = nextLevel(level)
		i /= 2
	}
	result.Root = level[0]
	return result, nil
}

// Verify は包含証明を検証する。他システムとの相互検証テストで使用する。
func Verify(root []byte, leaf Assignment, path [][]byte) bool {
	node := LeafHash(leaf)
	for _, sibling := range path {
		node = hashPair(node, sibling)
	}
	return bytes.Equal(node, root)
}

// LeafHash はリーフのハッシュを計算する。
// エンコーディングは固定: 20バイトのアドレス ‖ 出生識別子の生バイト列 ‖
// 32バイトビッグエンディアンの連番。タプルの形と順序は変更不可。
func LeafHash(a Assignment) []byte {
	addr, err := hex.DecodeString(strings.TrimPrefix(strings.ToLower(a.BotWallet), "0x"))
	if err != nil || len(addr) != 20 {
		// 不正アドレスのリーフは到達しない想定だが、パック長だけは固定する
		addr = make([]byte, 20)
	}
	seq := make([]byte, 32)
	new(big.Int).SetUint64(a.Sequence).FillBytes(seq)

	h := sha3.NewLegacyKeccak256()
	h.Write(addr)
	h.Write([]byte(a.BirthIssueURL))
	h.Write(seq)
	return h.Sum(nil)
}

// leafHashes は全リーフのハッシュ列を返す。
func leafHashes(assignments []Assignment) [][]byte {
	hashes := make([][]byte, len(assignments))
	for i, a := range assignments {
		hashes[i] = LeafHash(a)
	}
	return hashes
}

// nextLevel は1段上のノード列を計算する。
// ペアは辞書順に整列してから連結する。奇数末尾ノードはそのまま昇格する。
func nextLevel(level [][]byte) [][]byte {
	next := make([][]byte, 0, (len(level)+1)/2)
	for i := 0; i < len(level); i += 2 {
		if i+1 == len(level) {
			next = append(next, level[i])
			continue
		}
		next = append(next, hashPair(level[i], level[i+1]))
	}
	return next
}

// hashPair は2ノードを辞書順に並べて連結ハッシュする。
// 整列により検証側は左右の位置情報を持つ必要がない。
func hashPair(a, b []byte) []byte {
	if bytes.Compare(a, b) > 0 {
		a, b = b, a
	}
	h := sha3.NewLegacyKeccak256()
	h.Write(a)
	h.Write(b)
	return h.Sum(nil)
}
