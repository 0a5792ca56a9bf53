package exchange

import (
	"encoding/json"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"orderScope/internal/model"
)

var (
	zeroExDomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"),
	)

	zeroExFeeTypeHash = ethcrypto.Keccak256(
		[]byte("Fee(address recipient,uint256 amount,bytes feeData)"),
	)

	zeroExPropertyTypeHash = ethcrypto.Keccak256(
		[]byte("Property(address propertyValidator,bytes propertyData)"),
	)

	zeroExOrderTypeHash = ethcrypto.Keccak256(
		[]byte("ERC721Order(uint8 direction,address maker,address taker,uint256 expiry,uint256 nonce,address erc20Token,uint256 erc20TokenAmount,Fee[] fees,address erc721Token,uint256 erc721TokenId,Property[] erc721TokenProperties)" +
			"Fee(address recipient,uint256 amount,bytes feeData)" +
			"Property(address propertyValidator,bytes propertyData)"),
	)
)

// zeroExNativeToken is the sentinel 0x v4 uses for the native currency.
var zeroExNativeToken = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

const (
	zeroExSignatureEIP712  = 2
	zeroExSignatureEthSign = 3
)

type ZeroExFee struct {
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
	FeeData   string `json:"feeData"`
}

type ZeroExProperty struct {
	PropertyValidator string `json:"propertyValidator"`
	PropertyData      string `json:"propertyData"`
}

type ZeroExSignature struct {
	SignatureType int    `json:"signatureType"`
	V             int    `json:"v"`
	R             string `json:"r"`
	S             string `json:"s"`
}

// ZeroExOrder is a 0x v4 ERC721Order with its signature.
type ZeroExOrder struct {
	Direction             int              `json:"direction"`
	Maker                 string           `json:"maker"`
	Taker                 string           `json:"taker"`
	Expiry                string           `json:"expiry"`
	Nonce                 string           `json:"nonce"`
	ERC20Token            string           `json:"erc20Token"`
	ERC20TokenAmount      string           `json:"erc20TokenAmount"`
	Fees                  []ZeroExFee      `json:"fees"`
	ERC721Token           string           `json:"erc721Token"`
	ERC721TokenID         string           `json:"erc721TokenId"`
	ERC721TokenProperties []ZeroExProperty `json:"erc721TokenProperties"`
	Signature             ZeroExSignature  `json:"signature"`
}

type ZeroExConfig struct {
	ChainID    int64
	Exchange   common.Address
	Currencies Currencies
}

// ZeroEx canonicalizes 0x v4 ERC721 orders.
type ZeroEx struct {
	cfg       ZeroExConfig
	domainSep []byte
}

func NewZeroEx(cfg ZeroExConfig) *ZeroEx {
	return &ZeroEx{
		cfg: cfg,
		domainSep: ethcrypto.Keccak256(
			zeroExDomainTypeHash,
			ethcrypto.Keccak256([]byte("ZeroEx")),
			ethcrypto.Keccak256([]byte("1.0.0")),
			common.LeftPadBytes(big.NewInt(cfg.ChainID).Bytes(), 32),
			common.LeftPadBytes(cfg.Exchange.Bytes(), 32),
		),
	}
}

func (z *ZeroEx) Kind() model.OrderKind          { return model.KindZeroExV4 }
func (z *ZeroEx) Persistence() model.Persistence { return model.PersistenceSignature }

type zeroExParsed struct {
	direction  int
	maker      common.Address
	taker      common.Address
	expiry     *big.Int
	nonce      *big.Int
	token      common.Address
	amount     *big.Int
	fees       []zeroExParsedFee
	nft        common.Address
	tokenID    *big.Int
	properties []zeroExParsedProperty
}

type zeroExParsedFee struct {
	recipient common.Address
	amount    *big.Int
	data      []byte
}

type zeroExParsedProperty struct {
	validator common.Address
	data      []byte
}

func decodeHexField(field, value string) ([]byte, error) {
	if value == "" || value == "0x" {
		return []byte{}, nil
	}
	data, err := hexutil.Decode(value)
	if err != nil {
		return nil, model.Reject(model.CodeInvalid, "invalid %s: %v", field, err)
	}
	return data, nil
}

func parseZeroExOrder(o ZeroExOrder) (*zeroExParsed, error) {
	if o.Direction != 0 && o.Direction != 1 {
		return nil, model.Reject(model.CodeInvalid, "invalid direction %d", o.Direction)
	}
	p := &zeroExParsed{direction: o.Direction}
	var err error
	if p.maker, err = parseAddress("maker", o.Maker); err != nil {
		return nil, err
	}
	if p.taker, err = parseAddress("taker", o.Taker); err != nil {
		return nil, err
	}
	if p.expiry, err = parseUint("expiry", o.Expiry); err != nil {
		return nil, err
	}
	if p.nonce, err = parseUint("nonce", o.Nonce); err != nil {
		return nil, err
	}
	if p.token, err = parseAddress("erc20Token", o.ERC20Token); err != nil {
		return nil, err
	}
	if p.amount, err = parseUint("erc20TokenAmount", o.ERC20TokenAmount); err != nil {
		return nil, err
	}
	if p.nft, err = parseAddress("erc721Token", o.ERC721Token); err != nil {
		return nil, err
	}
	if p.tokenID, err = parseUint("erc721TokenId", o.ERC721TokenID); err != nil {
		return nil, err
	}
	for _, f := range o.Fees {
		fee := zeroExParsedFee{}
		if fee.recipient, err = parseAddress("fee.recipient", f.Recipient); err != nil {
			return nil, err
		}
		if fee.amount, err = parseUint("fee.amount", f.Amount); err != nil {
			return nil, err
		}
		if fee.data, err = decodeHexField("fee.feeData", f.FeeData); err != nil {
			return nil, err
		}
		p.fees = append(p.fees, fee)
	}
	for _, prop := range o.ERC721TokenProperties {
		parsed := zeroExParsedProperty{}
		if parsed.validator, err = parseAddress("propertyValidator", prop.PropertyValidator); err != nil {
			return nil, err
		}
		if parsed.data, err = decodeHexField("propertyData", prop.PropertyData); err != nil {
			return nil, err
		}
		p.properties = append(p.properties, parsed)
	}
	return p, nil
}

func word(v *big.Int) []byte {
	return common.LeftPadBytes(v.Bytes(), 32)
}

func addressWord(a common.Address) []byte {
	return common.LeftPadBytes(a.Bytes(), 32)
}

func (p *zeroExParsed) structHash() []byte {
	feeHashes := make([]byte, 0, 32*len(p.fees))
	for _, fee := range p.fees {
		feeHashes = append(feeHashes, ethcrypto.Keccak256(
			zeroExFeeTypeHash,
			addressWord(fee.recipient),
			word(fee.amount),
			ethcrypto.Keccak256(fee.data),
		)...)
	}
	propertyHashes := make([]byte, 0, 32*len(p.properties))
	for _, prop := range p.properties {
		propertyHashes = append(propertyHashes, ethcrypto.Keccak256(
			zeroExPropertyTypeHash,
			addressWord(prop.validator),
			ethcrypto.Keccak256(prop.data),
		)...)
	}
	return ethcrypto.Keccak256(
		zeroExOrderTypeHash,
		word(big.NewInt(int64(p.direction))),
		addressWord(p.maker),
		addressWord(p.taker),
		word(p.expiry),
		word(p.nonce),
		addressWord(p.token),
		word(p.amount),
		ethcrypto.Keccak256(feeHashes),
		addressWord(p.nft),
		word(p.tokenID),
		ethcrypto.Keccak256(propertyHashes),
	)
}

// OrderHash returns the EIP-712 digest 0x uses as the order hash.
func (z *ZeroEx) OrderHash(o ZeroExOrder) (common.Hash, error) {
	p, err := parseZeroExOrder(o)
	if err != nil {
		return common.Hash{}, err
	}
	return common.BytesToHash(typedDataDigest(z.domainSep, p.structHash())), nil
}

// Canonicalize implements Canonicalizer.
func (z *ZeroEx) Canonicalize(raw model.RawOrder) (*model.Order, error) {
	var payload ZeroExOrder
	if err := json.Unmarshal(raw.Data, &payload); err != nil {
		return nil, model.Reject(model.CodeInvalid, "decode 0x order: %v", err)
	}
	p, err := parseZeroExOrder(payload)
	if err != nil {
		return nil, err
	}

	order := &model.Order{
		ID:           idFromHash(common.BytesToHash(typedDataDigest(z.domainSep, p.structHash()))),
		Kind:         model.KindZeroExV4,
		Maker:        p.maker,
		Taker:        p.taker,
		Contract:     p.nft,
		Quantity:     big.NewInt(1),
		ContractKind: model.ContractERC721,
		Operator:     z.cfg.Exchange,
		Nonce:        p.nonce,
		ValidTo:      clampTime(p.expiry),
		RawData:      append([]byte(nil), raw.Data...),
	}

	currency := p.token
	if currency == zeroExNativeToken {
		currency = model.NativeCurrency
	}
	if p.direction == 0 {
		order.Side = model.SideSell
	} else {
		order.Side = model.SideBuy
		if currency == model.NativeCurrency {
			return nil, model.Reject(model.CodeInvalid, "bids must be paid in an erc20 token")
		}
	}
	if !z.cfg.Currencies.Allowed(currency) {
		return nil, model.Reject(model.CodeUnsupportedPaymentToken, "currency %s", currency.Hex())
	}
	order.Currency = currency

	price := new(big.Int).Set(p.amount)
	for _, fee := range p.fees {
		price.Add(price, fee.amount)
	}
	order.Price = price
	order.Value = new(big.Int).Set(p.amount)
	for _, fee := range p.fees {
		order.FeeBreakdown = append(order.FeeBreakdown, model.FeeRecipient{
			Kind:      model.FeeKindMarketplace,
			Recipient: fee.recipient,
			Bps:       bps(fee.amount, price),
		})
	}
	order.FeeBps = feeTotal(order.FeeBreakdown)
	order.NormalizedValue = z.cfg.Currencies.Normalize(currency, price)

	switch {
	case len(p.properties) == 0:
		order.TokenID = p.tokenID
		order.TokenSet = &model.TokenSetSpec{Kind: model.TokenSetToken, Contract: p.nft, TokenID: p.tokenID}
	case order.Side == model.SideBuy && len(p.properties) == 1 &&
		p.properties[0].validator == (common.Address{}) && len(p.properties[0].data) == 0 &&
		p.tokenID.Sign() == 0:
		order.TokenSet = &model.TokenSetSpec{Kind: model.TokenSetContract, Contract: p.nft}
	default:
		return nil, model.Reject(model.CodeInvalid, "unsupported token properties")
	}

	sig, err := zeroExSignatureBytes(payload.Signature)
	if err != nil {
		return nil, err
	}
	order.Signature = sig
	return order, nil
}

// zeroExSignatureBytes packs r || s || v, or returns nil when no signature was supplied.
func zeroExSignatureBytes(sig ZeroExSignature) ([]byte, error) {
	if sig.R == "" && sig.S == "" {
		return nil, nil
	}
	r, err := hexutil.Decode(sig.R)
	if err != nil || len(r) != 32 {
		return nil, model.Reject(model.CodeInvalidSignature, "invalid r")
	}
	s, err := hexutil.Decode(sig.S)
	if err != nil || len(s) != 32 {
		return nil, model.Reject(model.CodeInvalidSignature, "invalid s")
	}
	if sig.V < 0 || sig.V > 255 {
		return nil, model.Reject(model.CodeInvalidSignature, "invalid v %d", sig.V)
	}
	out := make([]byte, 0, 65)
	out = append(out, r...)
	out = append(out, s...)
	return append(out, byte(sig.V)), nil
}

// VerifySignature checks the maker's EIP-712 or eth_sign signature.
func (z *ZeroEx) VerifySignature(order *model.Order) error {
	var payload struct {
		Signature ZeroExSignature `json:"signature"`
	}
	if err := json.Unmarshal(order.RawData, &payload); err != nil {
		return model.Reject(model.CodeInvalidSignature, "decode signature: %v", err)
	}
	digest := common.HexToHash(order.ID).Bytes()
	switch payload.Signature.SignatureType {
	case zeroExSignatureEIP712:
	case zeroExSignatureEthSign:
		digest = ethcrypto.Keccak256([]byte("\x19Ethereum Signed Message:\n32"), digest)
	default:
		return model.Reject(model.CodeInvalidSignature, "unsupported signature type %d", payload.Signature.SignatureType)
	}
	return checkSigner(digest, order.Signature, order.Maker)
}

// IsNativeSentinel reports whether token is 0x's native-currency placeholder.
func IsNativeSentinel(token common.Address) bool {
	return strings.EqualFold(token.Hex(), zeroExNativeToken.Hex())
}
