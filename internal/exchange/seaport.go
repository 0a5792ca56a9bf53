package exchange

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"orderScope/internal/model"
)

// Seaport item types.
const (
	itemNative = iota
	itemERC20
	itemERC721
	itemERC1155
	itemERC721WithCriteria
	itemERC1155WithCriteria
)

var seaportTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	"OrderComponents": {
		{Name: "offerer", Type: "address"},
		{Name: "zone", Type: "address"},
		{Name: "offer", Type: "OfferItem[]"},
		{Name: "consideration", Type: "ConsiderationItem[]"},
		{Name: "orderType", Type: "uint8"},
		{Name: "startTime", Type: "uint256"},
		{Name: "endTime", Type: "uint256"},
		{Name: "zoneHash", Type: "bytes32"},
		{Name: "salt", Type: "uint256"},
		{Name: "conduitKey", Type: "bytes32"},
		{Name: "counter", Type: "uint256"},
	},
	"OfferItem": {
		{Name: "itemType", Type: "uint8"},
		{Name: "token", Type: "address"},
		{Name: "identifierOrCriteria", Type: "uint256"},
		{Name: "startAmount", Type: "uint256"},
		{Name: "endAmount", Type: "uint256"},
	},
	"ConsiderationItem": {
		{Name: "itemType", Type: "uint8"},
		{Name: "token", Type: "address"},
		{Name: "identifierOrCriteria", Type: "uint256"},
		{Name: "startAmount", Type: "uint256"},
		{Name: "endAmount", Type: "uint256"},
		{Name: "recipient", Type: "address"},
	},
}

// SeaportItem is an offer or consideration item; Recipient is empty for offer items.
type SeaportItem struct {
	ItemType             int    `json:"itemType"`
	Token                string `json:"token"`
	IdentifierOrCriteria string `json:"identifierOrCriteria"`
	StartAmount          string `json:"startAmount"`
	EndAmount            string `json:"endAmount"`
	Recipient            string `json:"recipient,omitempty"`
}

// SeaportOrder is the signed OrderComponents payload plus off-chain extras.
type SeaportOrder struct {
	Offerer       string        `json:"offerer"`
	Zone          string        `json:"zone"`
	Offer         []SeaportItem `json:"offer"`
	Consideration []SeaportItem `json:"consideration"`
	OrderType     int           `json:"orderType"`
	StartTime     string        `json:"startTime"`
	EndTime       string        `json:"endTime"`
	ZoneHash      string        `json:"zoneHash"`
	Salt          string        `json:"salt"`
	ConduitKey    string        `json:"conduitKey"`
	Counter       string        `json:"counter"`
	Signature     string        `json:"signature"`

	// Token ids backing a criteria root; not part of the signed components.
	TokenIDs []string `json:"tokenIds,omitempty"`
	// Optional dynamic schema the criteria root was derived from ("non-flagged").
	Schema string `json:"schema,omitempty"`
}

// SeaportConfig holds per-deployment settings.
type SeaportConfig struct {
	ChainID    int64
	Exchange   common.Address
	Conduits   map[common.Hash]common.Address
	Currencies Currencies
}

// Seaport canonicalizes Seaport v1.5 orders.
type Seaport struct {
	cfg    SeaportConfig
	domain apitypes.TypedDataDomain
}

// OpenSeaConduitKey is the conduit key used by OpenSea-created orders.
var OpenSeaConduitKey = common.HexToHash("0x0000007b02230091a7ed01230072f7006a004d60a8d4e71d599b8104250f0000")

func NewSeaport(cfg SeaportConfig) *Seaport {
	if cfg.Conduits == nil {
		cfg.Conduits = make(map[common.Hash]common.Address)
	}
	return &Seaport{
		cfg: cfg,
		domain: apitypes.TypedDataDomain{
			Name:              "Seaport",
			Version:           "1.5",
			ChainId:           math.NewHexOrDecimal256(cfg.ChainID),
			VerifyingContract: cfg.Exchange.Hex(),
		},
	}
}

func (s *Seaport) Kind() model.OrderKind          { return model.KindSeaport }
func (s *Seaport) Persistence() model.Persistence { return model.PersistenceSignature }

// Exchange is the settlement contract address.
func (s *Seaport) Exchange() common.Address { return s.cfg.Exchange }

func (s *Seaport) typedData(message apitypes.TypedDataMessage) apitypes.TypedData {
	return apitypes.TypedData{
		Types:       seaportTypes,
		PrimaryType: "OrderComponents",
		Domain:      s.domain,
		Message:     message,
	}
}

// OrderHash computes the Seaport order hash (the OrderComponents struct hash).
func (s *Seaport) OrderHash(order SeaportOrder) (common.Hash, error) {
	message := apitypes.TypedDataMessage{
		"offerer":       order.Offerer,
		"zone":          order.Zone,
		"offer":         seaportItemsMessage(order.Offer, false),
		"consideration": seaportItemsMessage(order.Consideration, true),
		"orderType":     strconv.Itoa(order.OrderType),
		"startTime":     order.StartTime,
		"endTime":       order.EndTime,
		"zoneHash":      order.ZoneHash,
		"salt":          order.Salt,
		"conduitKey":    order.ConduitKey,
		"counter":       order.Counter,
	}
	td := s.typedData(message)
	hash, err := td.HashStruct("OrderComponents", message)
	if err != nil {
		return common.Hash{}, model.Reject(model.CodeInvalid, "hash order components: %v", err)
	}
	return common.BytesToHash(hash), nil
}

func (s *Seaport) domainSeparator() ([]byte, error) {
	td := s.typedData(apitypes.TypedDataMessage{})
	sep, err := td.HashStruct("EIP712Domain", s.domain.Map())
	if err != nil {
		return nil, fmt.Errorf("hash seaport domain: %w", err)
	}
	return sep, nil
}

func seaportItemsMessage(items []SeaportItem, withRecipient bool) []interface{} {
	out := make([]interface{}, 0, len(items))
	for _, item := range items {
		m := map[string]interface{}{
			"itemType":             strconv.Itoa(item.ItemType),
			"token":                item.Token,
			"identifierOrCriteria": item.IdentifierOrCriteria,
			"startAmount":          item.StartAmount,
			"endAmount":            item.EndAmount,
		}
		if withRecipient {
			m["recipient"] = item.Recipient
		}
		out = append(out, m)
	}
	return out
}

type seaportAmount struct {
	item   SeaportItem
	token  common.Address
	id     *big.Int
	amount *big.Int
	to     common.Address
}

func parseSeaportItems(field string, items []SeaportItem, withRecipient bool) ([]seaportAmount, error) {
	out := make([]seaportAmount, 0, len(items))
	for i, item := range items {
		if item.ItemType < itemNative || item.ItemType > itemERC1155WithCriteria {
			return nil, model.Reject(model.CodeInvalid, "%s[%d]: unknown item type %d", field, i, item.ItemType)
		}
		token, err := parseAddress(field+".token", item.Token)
		if err != nil {
			return nil, err
		}
		id, err := parseUint(field+".identifierOrCriteria", item.IdentifierOrCriteria)
		if err != nil {
			return nil, err
		}
		start, err := parseUint(field+".startAmount", item.StartAmount)
		if err != nil {
			return nil, err
		}
		end, err := parseUint(field+".endAmount", item.EndAmount)
		if err != nil {
			return nil, err
		}
		if start.Cmp(end) != 0 {
			return nil, model.Reject(model.CodeInvalid, "%s[%d]: dynamic amounts are not supported", field, i)
		}
		parsed := seaportAmount{item: item, token: token, id: id, amount: start}
		if withRecipient {
			parsed.to, err = parseAddress(field+".recipient", item.Recipient)
			if err != nil {
				return nil, err
			}
		}
		out = append(out, parsed)
	}
	return out, nil
}

func isNFTItem(itemType int) bool {
	return itemType >= itemERC721
}

func isCurrencyItem(itemType int) bool {
	return itemType == itemNative || itemType == itemERC20
}

// Canonicalize implements Canonicalizer.
func (s *Seaport) Canonicalize(raw model.RawOrder) (*model.Order, error) {
	var payload SeaportOrder
	if err := json.Unmarshal(raw.Data, &payload); err != nil {
		return nil, model.Reject(model.CodeInvalid, "decode seaport order: %v", err)
	}

	maker, err := parseAddress("offerer", payload.Offerer)
	if err != nil {
		return nil, err
	}
	if _, err := parseAddress("zone", payload.Zone); err != nil {
		return nil, err
	}
	if payload.OrderType < 0 || payload.OrderType > 3 {
		return nil, model.Reject(model.CodeInvalid, "unsupported order type %d", payload.OrderType)
	}
	offer, err := parseSeaportItems("offer", payload.Offer, false)
	if err != nil {
		return nil, err
	}
	consideration, err := parseSeaportItems("consideration", payload.Consideration, true)
	if err != nil {
		return nil, err
	}
	startTime, err := parseUint("startTime", payload.StartTime)
	if err != nil {
		return nil, err
	}
	endTime, err := parseUint("endTime", payload.EndTime)
	if err != nil {
		return nil, err
	}
	counter, err := parseUint("counter", payload.Counter)
	if err != nil {
		return nil, err
	}
	if _, err := parseUint("salt", payload.Salt); err != nil {
		return nil, err
	}
	if _, err := parseBytes32("zoneHash", payload.ZoneHash); err != nil {
		return nil, err
	}
	conduitKey, err := parseBytes32("conduitKey", payload.ConduitKey)
	if err != nil {
		return nil, err
	}
	operator, ok := s.conduit(conduitKey)
	if !ok {
		return nil, model.Reject(model.CodeInvalid, "unknown conduit key %s", conduitKey.Hex())
	}

	hash, err := s.OrderHash(payload)
	if err != nil {
		return nil, err
	}

	order := &model.Order{
		ID:        idFromHash(hash),
		Kind:      model.KindSeaport,
		Maker:     maker,
		Taker:     model.AnyTaker,
		Operator:  operator,
		Nonce:     counter,
		ValidFrom: clampTime(startTime),
		ValidTo:   clampTime(endTime),
		RawData:   append([]byte(nil), raw.Data...),
	}
	if payload.Signature != "" {
		sig, err := hexutil.Decode(payload.Signature)
		if err != nil {
			return nil, model.Reject(model.CodeInvalidSignature, "decode signature: %v", err)
		}
		order.Signature = sig
	}

	var nft seaportAmount
	var payments []seaportAmount
	switch {
	case len(offer) == 1 && isNFTItem(offer[0].item.ItemType):
		order.Side = model.SideSell
		nft = offer[0]
		for _, c := range consideration {
			if !isCurrencyItem(c.item.ItemType) {
				return nil, model.Reject(model.CodeInvalid, "bundle listings are not supported")
			}
			payments = append(payments, c)
		}
	case len(offer) >= 1 && len(consideration) >= 1 && isNFTItem(consideration[0].item.ItemType):
		order.Side = model.SideBuy
		nft = consideration[0]
		if nft.to != maker {
			return nil, model.Reject(model.CodeInvalid, "bid token recipient is not the offerer")
		}
		for _, o := range offer {
			if o.item.ItemType != itemERC20 {
				return nil, model.Reject(model.CodeInvalid, "bids must be paid in an erc20 token")
			}
		}
		for _, c := range consideration[1:] {
			if !isCurrencyItem(c.item.ItemType) {
				return nil, model.Reject(model.CodeInvalid, "bundle bids are not supported")
			}
			payments = append(payments, c)
		}
	default:
		return nil, model.Reject(model.CodeInvalid, "order does not trade a single nft")
	}
	if len(payments) == 0 && order.Side == model.SideSell {
		return nil, model.Reject(model.CodeInvalid, "listing has no payment")
	}

	currency := model.NativeCurrency
	switch {
	case order.Side == model.SideBuy:
		currency = offer[0].token
	case len(payments) > 0:
		currency = payments[0].token
	}
	if !s.cfg.Currencies.Allowed(currency) {
		return nil, model.Reject(model.CodeUnsupportedPaymentToken, "currency %s", currency.Hex())
	}

	if order.Side == model.SideSell {
		price := new(big.Int)
		value := new(big.Int)
		for _, p := range payments {
			if p.token != currency {
				return nil, model.Reject(model.CodeInvalid, "mixed payment currencies")
			}
			price.Add(price, p.amount)
			if p.to == maker {
				value.Add(value, p.amount)
			}
		}
		order.Price = price
		order.Value = value
		for _, p := range payments {
			if p.to == maker {
				continue
			}
			order.FeeBreakdown = append(order.FeeBreakdown, model.FeeRecipient{
				Kind:      model.FeeKindMarketplace,
				Recipient: p.to,
				Bps:       bps(p.amount, price),
			})
		}
	} else {
		price := new(big.Int)
		for _, o := range offer {
			if o.token != currency {
				return nil, model.Reject(model.CodeInvalid, "mixed payment currencies")
			}
			price.Add(price, o.amount)
		}
		fees := new(big.Int)
		for _, p := range payments {
			if p.token != currency {
				return nil, model.Reject(model.CodeInvalid, "mixed payment currencies")
			}
			fees.Add(fees, p.amount)
			order.FeeBreakdown = append(order.FeeBreakdown, model.FeeRecipient{
				Kind:      model.FeeKindMarketplace,
				Recipient: p.to,
				Bps:       bps(p.amount, price),
			})
		}
		if fees.Cmp(price) > 0 {
			return nil, model.Reject(model.CodeInvalid, "fees exceed price")
		}
		order.Price = price
		order.Value = new(big.Int).Sub(price, fees)
	}
	order.FeeBps = feeTotal(order.FeeBreakdown)
	order.Currency = currency
	order.NormalizedValue = s.cfg.Currencies.Normalize(currency, order.Price)

	order.Contract = nft.token
	order.Quantity = nft.amount
	if order.Quantity.Sign() == 0 {
		return nil, model.Reject(model.CodeInvalid, "zero quantity")
	}
	switch nft.item.ItemType {
	case itemERC721, itemERC721WithCriteria:
		order.ContractKind = model.ContractERC721
	default:
		order.ContractKind = model.ContractERC1155
	}

	tokenSet, err := seaportTokenSet(nft, payload)
	if err != nil {
		return nil, err
	}
	order.TokenSet = tokenSet
	if tokenSet.Kind == model.TokenSetToken {
		order.TokenID = tokenSet.TokenID
	}
	if tokenSet.Kind != model.TokenSetToken && order.Side == model.SideSell {
		return nil, model.Reject(model.CodeInvalid, "criteria listings are not supported")
	}

	return order, nil
}

func seaportTokenSet(nft seaportAmount, payload SeaportOrder) (*model.TokenSetSpec, error) {
	switch nft.item.ItemType {
	case itemERC721, itemERC1155:
		return &model.TokenSetSpec{Kind: model.TokenSetToken, Contract: nft.token, TokenID: nft.id}, nil
	}
	if nft.id.Sign() == 0 {
		return &model.TokenSetSpec{Kind: model.TokenSetContract, Contract: nft.token}, nil
	}
	spec := &model.TokenSetSpec{
		Kind:     model.TokenSetList,
		Contract: nft.token,
		Root:     common.BigToHash(nft.id),
	}
	if payload.Schema == "non-flagged" {
		spec.Kind = model.TokenSetNonFlagged
	}
	for _, raw := range payload.TokenIDs {
		id, err := parseUint("tokenIds", raw)
		if err != nil {
			return nil, model.Reject(model.CodeInvalidTokenSet, "%v", err)
		}
		spec.TokenIDs = append(spec.TokenIDs, id)
	}
	return spec, nil
}

func (s *Seaport) conduit(key common.Hash) (common.Address, bool) {
	if key == (common.Hash{}) {
		return s.cfg.Exchange, true
	}
	addr, ok := s.cfg.Conduits[key]
	return addr, ok
}

// VerifySignature checks the offerer's EIP-712 signature over the order hash.
func (s *Seaport) VerifySignature(order *model.Order) error {
	sep, err := s.domainSeparator()
	if err != nil {
		return err
	}
	digest := typedDataDigest(sep, common.HexToHash(order.ID).Bytes())
	return checkSigner(digest, order.Signature, order.Maker)
}

// SignatureDigest is the digest an offerer signs for the given order hash.
func (s *Seaport) SignatureDigest(orderHash common.Hash) ([]byte, error) {
	sep, err := s.domainSeparator()
	if err != nil {
		return nil, err
	}
	return typedDataDigest(sep, orderHash.Bytes()), nil
}
