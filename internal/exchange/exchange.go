package exchange

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"orderScope/internal/model"
)

// Canonicalizer turns one protocol's raw order payload into a canonical order.
// Implementations are pure: chain state, time and storage are checked by the caller.
type Canonicalizer interface {
	Kind() model.OrderKind
	Persistence() model.Persistence
	Canonicalize(raw model.RawOrder) (*model.Order, error)
	VerifySignature(order *model.Order) error
}

// Registry dispatches raw orders to the canonicalizer registered for their kind.
type Registry struct {
	byKind map[model.OrderKind]Canonicalizer
}

func NewRegistry(canonicalizers ...Canonicalizer) *Registry {
	r := &Registry{byKind: make(map[model.OrderKind]Canonicalizer, len(canonicalizers))}
	for _, c := range canonicalizers {
		r.byKind[c.Kind()] = c
	}
	return r
}

// Get returns the canonicalizer for kind.
func (r *Registry) Get(kind model.OrderKind) (Canonicalizer, error) {
	c, ok := r.byKind[kind]
	if !ok {
		return nil, model.Reject(model.CodeInvalid, "unsupported order kind %q", kind)
	}
	return c, nil
}

// Kinds lists the registered kinds in a stable order.
func (r *Registry) Kinds() []model.OrderKind {
	kinds := make([]model.OrderKind, 0, len(r.byKind))
	for kind := range r.byKind {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Canonicalize looks up the kind and canonicalizes raw.
func (r *Registry) Canonicalize(raw model.RawOrder) (*model.Order, error) {
	c, err := r.Get(raw.Kind)
	if err != nil {
		return nil, err
	}
	return c.Canonicalize(raw)
}

// VerifySignature checks the order's signature with its protocol's scheme.
func (r *Registry) VerifySignature(order *model.Order) error {
	c, err := r.Get(order.Kind)
	if err != nil {
		return err
	}
	return c.VerifySignature(order)
}

// Currencies is the payment-token allow-list with each token's decimals.
type Currencies map[common.Address]uint8

// Allowed reports whether currency may be used for payment.
func (c Currencies) Allowed(currency common.Address) bool {
	_, ok := c[currency]
	return ok
}

// Normalize converts a raw amount into currency units.
func (c Currencies) Normalize(currency common.Address, amount *big.Int) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	decimals, ok := c[currency]
	if !ok {
		decimals = 18
	}
	return decimal.NewFromBigInt(amount, -int32(decimals))
}

// ParseCurrencies builds the allow-list from address=decimals pairs.
func ParseCurrencies(values map[string]string) (Currencies, error) {
	out := make(Currencies, len(values))
	for addr, raw := range values {
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("invalid currency address: %s", addr)
		}
		decimals := uint64(18)
		if strings.TrimSpace(raw) != "" {
			d, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
			if !ok || !d.IsUint64() || d.Uint64() > 36 {
				return nil, fmt.Errorf("invalid decimals for %s: %s", addr, raw)
			}
			decimals = d.Uint64()
		}
		out[common.HexToAddress(addr)] = uint8(decimals)
	}
	return out, nil
}

var bpsDenominator = big.NewInt(10000)

// bps returns part*10000/total, rounded down.
func bps(part, total *big.Int) int64 {
	if total == nil || total.Sign() == 0 || part == nil {
		return 0
	}
	out := new(big.Int).Mul(part, bpsDenominator)
	out.Quo(out, total)
	return out.Int64()
}

func parseAddress(field, value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, model.Reject(model.CodeInvalid, "invalid %s address %q", field, value)
	}
	return common.HexToAddress(value), nil
}

// parseUint accepts decimal or 0x-prefixed hex strings.
func parseUint(field, value string) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, model.Reject(model.CodeInvalid, "missing %s", field)
	}
	var (
		out *big.Int
		ok  bool
	)
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		out, ok = new(big.Int).SetString(value[2:], 16)
	} else {
		out, ok = new(big.Int).SetString(value, 10)
	}
	if !ok || out.Sign() < 0 || out.BitLen() > 256 {
		return nil, model.Reject(model.CodeInvalid, "invalid %s %q", field, value)
	}
	return out, nil
}

func parseBytes32(field, value string) (common.Hash, error) {
	data, err := hexutil.Decode(value)
	if err != nil || len(data) != 32 {
		return common.Hash{}, model.Reject(model.CodeInvalid, "invalid %s %q", field, value)
	}
	return common.BytesToHash(data), nil
}

// clampTime maps a uint256 timestamp onto uint64; values beyond range mean "never".
func clampTime(v *big.Int) uint64 {
	if v == nil || !v.IsUint64() {
		return 0
	}
	return v.Uint64()
}

// recoverSigner returns the address that produced sig over digest. Both 65-byte
// (r, s, v) and 64-byte EIP-2098 compact signatures are accepted.
func recoverSigner(digest []byte, sig []byte) (common.Address, error) {
	var full []byte
	switch len(sig) {
	case 65:
		full = make([]byte, 65)
		copy(full, sig)
		if full[64] >= 27 {
			full[64] -= 27
		}
	case 64:
		full = make([]byte, 65)
		copy(full[:32], sig[:32])
		copy(full[32:64], sig[32:64])
		full[64] = sig[32] >> 7
		full[32] &= 0x7f
	default:
		return common.Address{}, fmt.Errorf("unsupported signature length %d", len(sig))
	}
	pub, err := crypto.SigToPub(digest, full)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}

func typedDataDigest(domainSeparator, structHash []byte) []byte {
	return crypto.Keccak256([]byte{0x19, 0x01}, domainSeparator, structHash)
}

func checkSigner(digest []byte, sig []byte, maker common.Address) error {
	if len(sig) == 0 {
		return model.Reject(model.CodeInvalidSignature, "missing signature")
	}
	signer, err := recoverSigner(digest, sig)
	if err != nil {
		return model.Reject(model.CodeInvalidSignature, "%v", err)
	}
	if signer != maker {
		return model.Reject(model.CodeInvalidSignature, "recovered %s, maker %s", signer.Hex(), maker.Hex())
	}
	return nil
}

func feeTotal(fees []model.FeeRecipient) int64 {
	var total int64
	for _, fee := range fees {
		total += fee.Bps
	}
	return total
}

func idFromHash(h common.Hash) string {
	return strings.ToLower(h.Hex())
}
