package model

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// FillEvent is a settled trade recovered from a transaction's logs.
type FillEvent struct {
	ID          string         `json:"id"`
	OrderID     string         `json:"order_id,omitempty"`
	OrderKind   OrderKind      `json:"order_kind"`
	OrderSide   Side           `json:"order_side"`
	Contract    common.Address `json:"contract"`
	TokenID     *big.Int       `json:"token_id"`
	Amount      *big.Int       `json:"amount"`
	Price       *big.Int       `json:"price"`
	Currency    common.Address `json:"currency"`
	Maker       common.Address `json:"maker"`
	Taker       common.Address `json:"taker"`
	TxHash      string         `json:"tx_hash"`
	BlockNumber uint64         `json:"block_number"`
	LogIndex    uint64         `json:"log_index"`
	BatchIndex  uint64         `json:"batch_index"`
	Timestamp   uint64         `json:"timestamp"`
	Attribution *Attribution   `json:"attribution,omitempty"`
}

// FillID builds the identity of a fill within its transaction.
func FillID(txHash string, logIndex, batchIndex uint64) string {
	return fmt.Sprintf("%s:%d:%d", txHash, logIndex, batchIndex)
}

// Attribution is the post-trade royalty/marketplace fee breakdown of a fill.
type Attribution struct {
	RoyaltyFeeBps            int64          `json:"royalty_fee_bps"`
	MarketplaceFeeBps        int64          `json:"marketplace_fee_bps"`
	RoyaltyFeeBreakdown      []FeeRecipient `json:"royalty_fee_breakdown"`
	MarketplaceFeeBreakdown  []FeeRecipient `json:"marketplace_fee_breakdown"`
	PaidFullRoyalty          bool           `json:"paid_full_royalty"`
	PossibleMissingRoyalties []FeeRecipient `json:"possible_missing_royalties,omitempty"`
}

// TotalBps is the sum of attributed royalty and marketplace fees.
func (a *Attribution) TotalBps() int64 {
	return a.RoyaltyFeeBps + a.MarketplaceFeeBps
}

// RoyaltyRecipient is a registered on-chain royalty recipient for a collection.
type RoyaltyRecipient struct {
	Recipient common.Address `json:"recipient"`
	Bps       int64          `json:"bps"`
}
