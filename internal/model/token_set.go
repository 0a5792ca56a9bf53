package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

type TokenSetKind string

const (
	TokenSetToken      TokenSetKind = "token"
	TokenSetContract   TokenSetKind = "contract"
	TokenSetList       TokenSetKind = "list"
	TokenSetNonFlagged TokenSetKind = "dynamic:non-flagged"
)

// TokenSetSpec is what a canonicalizer asks the resolver to create for an order.
// For list and dynamic sets, Root is the claimed merkle root and TokenIDs the
// supplied membership (may be empty for dynamic sets).
type TokenSetSpec struct {
	Kind     TokenSetKind   `json:"kind"`
	Contract common.Address `json:"contract"`
	TokenID  *big.Int       `json:"token_id,omitempty"`
	Root     common.Hash    `json:"root,omitempty"`
	TokenIDs []*big.Int     `json:"token_ids,omitempty"`
}

// TokenSet is an immutable, content-addressed set of tokens.
type TokenSet struct {
	ID         string         `json:"id"`
	Kind       TokenSetKind   `json:"kind"`
	Contract   common.Address `json:"contract"`
	SchemaHash common.Hash    `json:"schema_hash"`
	Items      []*big.Int     `json:"items,omitempty"`
}
