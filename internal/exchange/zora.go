package exchange

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"orderScope/internal/model"
)

// Zora listing states carried on raw ask payloads.
const (
	ZoraStateActive    = "active"
	ZoraStateCancelled = "cancelled"
	ZoraStateFilled    = "filled"
)

// ZoraAsk is the on-chain ask state re-emitted by every Asks module event.
type ZoraAsk struct {
	TokenContract        string `json:"tokenContract"`
	TokenID              string `json:"tokenId"`
	Seller               string `json:"seller"`
	SellerFundsRecipient string `json:"sellerFundsRecipient"`
	AskCurrency          string `json:"askCurrency"`
	FindersFeeBps        int64  `json:"findersFeeBps"`
	AskPrice             string `json:"askPrice"`
	State                string `json:"state"`
}

type ZoraConfig struct {
	Exchange common.Address
	// TransferHelper is the contract sellers approve for ERC721 transfers.
	TransferHelper common.Address
	Currencies     Currencies
}

// Zora canonicalizes Zora v3 asks, which live as mutable on-chain state.
type Zora struct {
	cfg ZoraConfig
}

func NewZora(cfg ZoraConfig) *Zora {
	return &Zora{cfg: cfg}
}

func (z *Zora) Kind() model.OrderKind          { return model.KindZoraV3 }
func (z *Zora) Persistence() model.Persistence { return model.PersistenceState }

var zoraIDArguments = abi.Arguments{
	{Type: mustType("string")},
	{Type: mustType("address")},
	{Type: mustType("address")},
	{Type: mustType("uint256")},
}

func mustType(name string) abi.Type {
	t, err := abi.NewType(name, "", nil)
	if err != nil {
		panic(err)
	}
	return t
}

// ZoraOrderID derives the stable id of the listing (seller, contract, tokenId).
func ZoraOrderID(seller, contract common.Address, tokenID *big.Int) string {
	packed, err := zoraIDArguments.Pack(string(model.KindZoraV3), seller, contract, tokenID)
	if err != nil {
		// only reachable with a nil token id
		return ""
	}
	return idFromHash(ethcrypto.Keccak256Hash(packed))
}

// Canonicalize implements Canonicalizer. The listing's ordering key must be
// supplied by the caller on raw.Source.
func (z *Zora) Canonicalize(raw model.RawOrder) (*model.Order, error) {
	var ask ZoraAsk
	if err := json.Unmarshal(raw.Data, &ask); err != nil {
		return nil, model.Reject(model.CodeInvalid, "decode zora ask: %v", err)
	}
	if raw.Source == nil {
		return nil, model.Reject(model.CodeInvalid, "zora ask without ordering key")
	}
	contract, err := parseAddress("tokenContract", ask.TokenContract)
	if err != nil {
		return nil, err
	}
	tokenID, err := parseUint("tokenId", ask.TokenID)
	if err != nil {
		return nil, err
	}
	seller, err := parseAddress("seller", ask.Seller)
	if err != nil {
		return nil, err
	}
	currency, err := parseAddress("askCurrency", ask.AskCurrency)
	if err != nil {
		return nil, err
	}
	price, err := parseUint("askPrice", ask.AskPrice)
	if err != nil {
		return nil, err
	}
	if ask.FindersFeeBps < 0 || ask.FindersFeeBps > 10000 {
		return nil, model.Reject(model.CodeInvalid, "invalid finders fee %d", ask.FindersFeeBps)
	}
	switch ask.State {
	case "", ZoraStateActive, ZoraStateCancelled, ZoraStateFilled:
	default:
		return nil, model.Reject(model.CodeInvalid, "unknown ask state %q", ask.State)
	}
	if !z.cfg.Currencies.Allowed(currency) {
		return nil, model.Reject(model.CodeUnsupportedPaymentToken, "currency %s", currency.Hex())
	}

	source := *raw.Source
	order := &model.Order{
		ID:              ZoraOrderID(seller, contract, tokenID),
		Kind:            model.KindZoraV3,
		Side:            model.SideSell,
		Maker:           seller,
		Taker:           model.AnyTaker,
		Contract:        contract,
		TokenID:         tokenID,
		Quantity:        big.NewInt(1),
		Price:           price,
		Value:           price,
		Currency:        currency,
		NormalizedValue: z.cfg.Currencies.Normalize(currency, price),
		ContractKind:    model.ContractERC721,
		Operator:        z.cfg.TransferHelper,
		// State-based listings have no maker nonce.
		Nonce:    new(big.Int),
		Source:   &source,
		RawData:  append([]byte(nil), raw.Data...),
		TokenSet: &model.TokenSetSpec{Kind: model.TokenSetToken, Contract: contract, TokenID: tokenID},
	}
	switch ask.State {
	case ZoraStateCancelled:
		order.FillabilityStatus = model.StatusCancelled
	case ZoraStateFilled:
		order.FillabilityStatus = model.StatusFilled
	}
	return order, nil
}

// VerifySignature is a no-op: asks are authenticated by the chain itself.
func (z *Zora) VerifySignature(*model.Order) error {
	return nil
}
