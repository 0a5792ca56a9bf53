package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// NonceCancellation is either a maker-level bulk cancellation (MinNonce) or a
// single cancelled nonce/salt (Nonce).
type NonceCancellation struct {
	Kind     OrderKind      `json:"kind"`
	Maker    common.Address `json:"maker"`
	MinNonce *big.Int       `json:"min_nonce,omitempty"`
	Nonce    *big.Int       `json:"nonce,omitempty"`
}
