package exchange

import (
	"crypto/ecdsa"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"orderScope/internal/model"
)

var (
	testSeaportExchange = common.HexToAddress("0x00000000000000ADc04C56Bf30aC9d3c0aAF14dC")
	testCollection      = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testWETH            = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	testFeeWallet       = common.HexToAddress("0x0000a26b00c1F0DF003000390027140000fAa719")
	zeroBytes32         = "0x0000000000000000000000000000000000000000000000000000000000000000"
)

func testCurrencies() Currencies {
	return Currencies{model.NativeCurrency: 18, testWETH: 18}
}

func newTestSeaport() *Seaport {
	return NewSeaport(SeaportConfig{
		ChainID:    1,
		Exchange:   testSeaportExchange,
		Conduits:   map[common.Hash]common.Address{OpenSeaConduitKey: common.HexToAddress("0x1E0049783F008A0085193E00003D00cd54003c71")},
		Currencies: testCurrencies(),
	})
}

func seaportListing(maker common.Address) SeaportOrder {
	return SeaportOrder{
		Offerer: maker.Hex(),
		Zone:    common.Address{}.Hex(),
		Offer: []SeaportItem{{
			ItemType: itemERC721, Token: testCollection.Hex(), IdentifierOrCriteria: "1",
			StartAmount: "1", EndAmount: "1",
		}},
		Consideration: []SeaportItem{
			{ItemType: itemNative, Token: common.Address{}.Hex(), IdentifierOrCriteria: "0",
				StartAmount: "975000000000000000", EndAmount: "975000000000000000", Recipient: maker.Hex()},
			{ItemType: itemNative, Token: common.Address{}.Hex(), IdentifierOrCriteria: "0",
				StartAmount: "25000000000000000", EndAmount: "25000000000000000", Recipient: testFeeWallet.Hex()},
		},
		OrderType:  0,
		StartTime:  "1700000000",
		EndTime:    "1800000000",
		ZoneHash:   zeroBytes32,
		Salt:       "12345",
		ConduitKey: OpenSeaConduitKey.Hex(),
		Counter:    "0",
	}
}

func signSeaport(t *testing.T, s *Seaport, key *ecdsa.PrivateKey, order *SeaportOrder) {
	t.Helper()
	hash, err := s.OrderHash(*order)
	if err != nil {
		t.Fatalf("order hash: %v", err)
	}
	digest, err := s.SignatureDigest(hash)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	sig, err := crypto.Sign(digest, key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	sig[64] += 27
	order.Signature = hexutil.Encode(sig)
}

func rawOrder(t *testing.T, kind model.OrderKind, payload interface{}) model.RawOrder {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return model.RawOrder{Kind: kind, Data: data}
}

func TestSeaportCanonicalizeListing(t *testing.T) {
	key, _ := crypto.GenerateKey()
	maker := crypto.PubkeyToAddress(key.PublicKey)
	s := newTestSeaport()

	payload := seaportListing(maker)
	signSeaport(t, s, key, &payload)

	order, err := s.Canonicalize(rawOrder(t, model.KindSeaport, payload))
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if order.Side != model.SideSell {
		t.Fatalf("unexpected side %s", order.Side)
	}
	if order.Price.String() != "1000000000000000000" || order.Value.String() != "975000000000000000" {
		t.Fatalf("unexpected price/value %s/%s", order.Price, order.Value)
	}
	if order.FeeBps != 250 || len(order.FeeBreakdown) != 1 || order.FeeBreakdown[0].Recipient != testFeeWallet {
		t.Fatalf("unexpected fees %+v", order.FeeBreakdown)
	}
	if order.TokenSet.Kind != model.TokenSetToken || order.TokenID.Int64() != 1 {
		t.Fatalf("unexpected token set %+v", order.TokenSet)
	}
	if order.Operator != common.HexToAddress("0x1E0049783F008A0085193E00003D00cd54003c71") {
		t.Fatalf("unexpected operator %s", order.Operator.Hex())
	}
	if order.NormalizedValue.String() != "1" {
		t.Fatalf("unexpected normalized value %s", order.NormalizedValue)
	}
	if err := s.VerifySignature(order); err != nil {
		t.Fatalf("verify signature: %v", err)
	}
}

func TestSeaportIDDeterministic(t *testing.T) {
	key, _ := crypto.GenerateKey()
	maker := crypto.PubkeyToAddress(key.PublicKey)
	s := newTestSeaport()

	payload := seaportListing(maker)
	signSeaport(t, s, key, &payload)

	first, err := s.Canonicalize(rawOrder(t, model.KindSeaport, payload))
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	second, err := s.Canonicalize(rawOrder(t, model.KindSeaport, payload))
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("ids differ: %s != %s", first.ID, second.ID)
	}

	// extra fields and formatting are not part of the order identity
	var generic map[string]interface{}
	data, _ := json.Marshal(payload)
	_ = json.Unmarshal(data, &generic)
	generic["padding"] = "00000000000000000000"
	generic["source"] = map[string]interface{}{"name": "somewhere"}
	padded, _ := json.MarshalIndent(generic, "", "    ")
	third, err := s.Canonicalize(model.RawOrder{Kind: model.KindSeaport, Data: padded})
	if err != nil {
		t.Fatalf("canonicalize padded: %v", err)
	}
	if third.ID != first.ID {
		t.Fatalf("padding changed id: %s != %s", third.ID, first.ID)
	}

	payload.Salt = "12346"
	other, err := s.Canonicalize(rawOrder(t, model.KindSeaport, payload))
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if other.ID == first.ID {
		t.Fatalf("salt change kept id %s", other.ID)
	}
}

func TestSeaportRejections(t *testing.T) {
	key, _ := crypto.GenerateKey()
	maker := crypto.PubkeyToAddress(key.PublicKey)
	s := newTestSeaport()

	cases := []struct {
		name   string
		mutate func(*SeaportOrder)
		want   model.Code
	}{
		{"dutch auction", func(o *SeaportOrder) { o.Consideration[0].EndAmount = "1" }, model.CodeInvalid},
		{"bad currency", func(o *SeaportOrder) {
			for i := range o.Consideration {
				o.Consideration[i].ItemType = itemERC20
				o.Consideration[i].Token = "0x2222222222222222222222222222222222222222"
			}
		}, model.CodeUnsupportedPaymentToken},
		{"unknown conduit", func(o *SeaportOrder) {
			o.ConduitKey = "0x0000000000000000000000000000000000000000000000000000000000000001"
		}, model.CodeInvalid},
		{"bad offerer", func(o *SeaportOrder) { o.Offerer = "nope" }, model.CodeInvalid},
	}
	for _, tc := range cases {
		payload := seaportListing(maker)
		tc.mutate(&payload)
		_, err := s.Canonicalize(rawOrder(t, model.KindSeaport, payload))
		if got := model.CodeOf(err); got != tc.want {
			t.Fatalf("%s: got %s want %s (%v)", tc.name, got, tc.want, err)
		}
	}
}

func TestSeaportWrongSigner(t *testing.T) {
	key, _ := crypto.GenerateKey()
	other, _ := crypto.GenerateKey()
	maker := crypto.PubkeyToAddress(key.PublicKey)
	s := newTestSeaport()

	payload := seaportListing(maker)
	signSeaport(t, s, other, &payload)
	order, err := s.Canonicalize(rawOrder(t, model.KindSeaport, payload))
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if got := model.CodeOf(s.VerifySignature(order)); got != model.CodeInvalidSignature {
		t.Fatalf("unexpected code %s", got)
	}
}

func TestSeaportCollectionBid(t *testing.T) {
	key, _ := crypto.GenerateKey()
	maker := crypto.PubkeyToAddress(key.PublicKey)
	s := newTestSeaport()

	payload := SeaportOrder{
		Offerer: maker.Hex(),
		Zone:    common.Address{}.Hex(),
		Offer: []SeaportItem{{
			ItemType: itemERC20, Token: testWETH.Hex(), IdentifierOrCriteria: "0",
			StartAmount: "1000000000000000000", EndAmount: "1000000000000000000",
		}},
		Consideration: []SeaportItem{
			{ItemType: itemERC721WithCriteria, Token: testCollection.Hex(), IdentifierOrCriteria: "0",
				StartAmount: "1", EndAmount: "1", Recipient: maker.Hex()},
			{ItemType: itemERC20, Token: testWETH.Hex(), IdentifierOrCriteria: "0",
				StartAmount: "50000000000000000", EndAmount: "50000000000000000", Recipient: testFeeWallet.Hex()},
		},
		StartTime:  "1700000000",
		EndTime:    "0xffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff",
		ZoneHash:   zeroBytes32,
		Salt:       "0x1",
		ConduitKey: zeroBytes32,
		Counter:    "3",
	}
	signSeaport(t, s, key, &payload)

	order, err := s.Canonicalize(rawOrder(t, model.KindSeaport, payload))
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if order.Side != model.SideBuy || order.Currency != testWETH {
		t.Fatalf("unexpected side/currency %s/%s", order.Side, order.Currency.Hex())
	}
	if order.TokenSet.Kind != model.TokenSetContract {
		t.Fatalf("unexpected token set kind %s", order.TokenSet.Kind)
	}
	if order.Value.Cmp(big.NewInt(950000000000000000)) != 0 {
		t.Fatalf("unexpected value %s", order.Value)
	}
	if order.ValidTo != 0 {
		t.Fatalf("expected open-ended validity, got %d", order.ValidTo)
	}
	if order.Operator != testSeaportExchange {
		t.Fatalf("zero conduit key should approve the exchange, got %s", order.Operator.Hex())
	}
	if order.Nonce.Int64() != 3 {
		t.Fatalf("unexpected counter %s", order.Nonce)
	}
	if err := s.VerifySignature(order); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestRecoverCompactSignature(t *testing.T) {
	key, _ := crypto.GenerateKey()
	digest := crypto.Keccak256([]byte("digest"))
	sig, err := crypto.Sign(digest, key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	compact := make([]byte, 64)
	copy(compact, sig[:64])
	compact[32] |= sig[64] << 7

	signer, err := recoverSigner(digest, compact)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if signer != crypto.PubkeyToAddress(key.PublicKey) {
		t.Fatalf("unexpected signer %s", signer.Hex())
	}
}
