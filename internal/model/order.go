package model

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// OrderKind identifies the exchange protocol an order or fill belongs to.
type OrderKind string

const (
	KindSeaport     OrderKind = "seaport-v1.5"
	KindZeroExV4    OrderKind = "zeroex-v4-erc721"
	KindZoraV3      OrderKind = "zora-v3"
	KindMint        OrderKind = "mint"
	KindUnspecified OrderKind = ""
)

// Persistence describes how a protocol's orders come into existence.
type Persistence string

const (
	// PersistenceSignature orders are immutable once signed; only status changes.
	PersistenceSignature Persistence = "signature"
	// PersistenceState orders mirror mutable on-chain listing state.
	PersistenceState Persistence = "state"
)

type Side string

const (
	SideSell Side = "sell"
	SideBuy  Side = "buy"
)

type ContractKind string

const (
	ContractERC721  ContractKind = "erc721"
	ContractERC1155 ContractKind = "erc1155"
)

type FillabilityStatus string

const (
	StatusFillable            FillabilityStatus = "fillable"
	StatusNoBalance           FillabilityStatus = "no-balance"
	StatusNoApproval          FillabilityStatus = "no-approval"
	StatusNoBalanceNoApproval FillabilityStatus = "no-balance-no-approval"
	StatusCancelled           FillabilityStatus = "cancelled"
	StatusFilled              FillabilityStatus = "filled"
	StatusExpired             FillabilityStatus = "expired"
)

// Terminal reports whether the status can never change again.
func (s FillabilityStatus) Terminal() bool {
	return s == StatusCancelled || s == StatusFilled
}

// Active reports whether the order is fillable or only degraded.
func (s FillabilityStatus) Active() bool {
	switch s {
	case StatusFillable, StatusNoBalance, StatusNoApproval, StatusNoBalanceNoApproval:
		return true
	default:
		return false
	}
}

type ApprovalStatus string

const (
	ApprovalApproved   ApprovalStatus = "approved"
	ApprovalNoApproval ApprovalStatus = "no-approval"
)

// AnyTaker is the zero address, meaning the order can be taken by anyone.
var AnyTaker = common.Address{}

// NativeCurrency is the zero address used for the chain's native currency.
var NativeCurrency = common.Address{}

// FeeRecipient is one entry of a fee breakdown.
type FeeRecipient struct {
	Kind      string         `json:"kind"`
	Recipient common.Address `json:"recipient"`
	Bps       int64          `json:"bps"`
	Source    string         `json:"source,omitempty"`
}

const (
	FeeKindMarketplace = "marketplace"
	FeeKindRoyalty     = "royalty"
)

// Order is the canonical, protocol-agnostic order.
type Order struct {
	ID                string            `json:"id"`
	Kind              OrderKind         `json:"kind"`
	Side              Side              `json:"side"`
	Maker             common.Address    `json:"maker"`
	Taker             common.Address    `json:"taker"`
	Contract          common.Address    `json:"contract"`
	TokenID           *big.Int          `json:"token_id,omitempty"`
	Quantity          *big.Int          `json:"quantity"`
	Price             *big.Int          `json:"price"`
	Value             *big.Int          `json:"value"`
	Currency          common.Address    `json:"currency"`
	NormalizedValue   decimal.Decimal   `json:"normalized_value"`
	TokenSetID        string            `json:"token_set_id"`
	TokenSet          *TokenSetSpec     `json:"-"`
	ContractKind      ContractKind      `json:"contract_kind"`
	Operator          common.Address    `json:"operator"`
	FillabilityStatus FillabilityStatus `json:"fillability_status"`
	ApprovalStatus    ApprovalStatus    `json:"approval_status"`
	Nonce             *big.Int          `json:"nonce"`
	ValidFrom         uint64            `json:"valid_from"`
	ValidTo           uint64            `json:"valid_to"`
	FeeBps            int64             `json:"fee_bps"`
	FeeBreakdown      []FeeRecipient    `json:"fee_breakdown"`
	Signature         []byte            `json:"-"`
	Source            *OrderingKey      `json:"source,omitempty"`
	RawData           json.RawMessage   `json:"raw_data"`
}

// Expired reports whether the order is past its validity window at now.
// A zero ValidTo means the order never expires.
func (o *Order) Expired(now uint64) bool {
	return o.ValidTo != 0 && now >= o.ValidTo
}

// Persistence returns how the order's protocol persists orders.
func (k OrderKind) Persistence() Persistence {
	if k == KindZoraV3 {
		return PersistenceState
	}
	return PersistenceSignature
}
