package tokenset

import (
	"bytes"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// normalizeIDs sorts token ids ascending and drops duplicates so the same
// membership always yields the same root.
func normalizeIDs(ids []*big.Int) []*big.Int {
	out := make([]*big.Int, 0, len(ids))
	for _, id := range ids {
		if id != nil {
			out = append(out, new(big.Int).Set(id))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	deduped := out[:0]
	for i, id := range out {
		if i > 0 && id.Cmp(out[i-1]) == 0 {
			continue
		}
		deduped = append(deduped, id)
	}
	return deduped
}

func leafHash(id *big.Int) []byte {
	return crypto.Keccak256(common.LeftPadBytes(id.Bytes(), 32))
}

func nodeHash(a, b []byte) []byte {
	if bytes.Compare(a, b) > 0 {
		a, b = b, a
	}
	return crypto.Keccak256(a, b)
}

// MerkleRoot computes the sorted-pair keccak root over keccak(uint256 id) leaves.
// An odd node at the end of a level is promoted unchanged.
func MerkleRoot(ids []*big.Int) (common.Hash, bool) {
	ids = normalizeIDs(ids)
	if len(ids) == 0 {
		return common.Hash{}, false
	}
	level := make([][]byte, len(ids))
	for i, id := range ids {
		level[i] = leafHash(id)
	}
	for len(level) > 1 {
		next := make([][]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				continue
			}
			next = append(next, nodeHash(level[i], level[i+1]))
		}
		level = next
	}
	return common.BytesToHash(level[0]), true
}
