package exchange

import (
	"crypto/ecdsa"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"orderScope/internal/model"
)

var testZeroExExchange = common.HexToAddress("0xDef1C0ded9bec7F1a1670819833240f027b25EfF")

func newTestZeroEx() *ZeroEx {
	return NewZeroEx(ZeroExConfig{ChainID: 1, Exchange: testZeroExExchange, Currencies: testCurrencies()})
}

func zeroExListing(maker common.Address) ZeroExOrder {
	return ZeroExOrder{
		Direction:        0,
		Maker:            maker.Hex(),
		Taker:            common.Address{}.Hex(),
		Expiry:           "1800000000",
		Nonce:            "100",
		ERC20Token:       zeroExNativeToken.Hex(),
		ERC20TokenAmount: "900000000000000000",
		Fees: []ZeroExFee{{
			Recipient: testFeeWallet.Hex(), Amount: "100000000000000000", FeeData: "0x",
		}},
		ERC721Token:   testCollection.Hex(),
		ERC721TokenID: "7",
	}
}

func signZeroEx(t *testing.T, z *ZeroEx, key *ecdsa.PrivateKey, order *ZeroExOrder, sigType int) {
	t.Helper()
	hash, err := z.OrderHash(*order)
	if err != nil {
		t.Fatalf("order hash: %v", err)
	}
	digest := hash.Bytes()
	if sigType == zeroExSignatureEthSign {
		digest = crypto.Keccak256([]byte("\x19Ethereum Signed Message:\n32"), digest)
	}
	sig, err := crypto.Sign(digest, key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	order.Signature = ZeroExSignature{
		SignatureType: sigType,
		V:             int(sig[64]) + 27,
		R:             hexutil.Encode(sig[:32]),
		S:             hexutil.Encode(sig[32:64]),
	}
}

func TestZeroExCanonicalizeListing(t *testing.T) {
	key, _ := crypto.GenerateKey()
	maker := crypto.PubkeyToAddress(key.PublicKey)
	z := newTestZeroEx()

	payload := zeroExListing(maker)
	signZeroEx(t, z, key, &payload, zeroExSignatureEIP712)

	order, err := z.Canonicalize(rawOrder(t, model.KindZeroExV4, payload))
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if order.Currency != model.NativeCurrency {
		t.Fatalf("native sentinel not mapped: %s", order.Currency.Hex())
	}
	if order.Price.String() != "1000000000000000000" || order.Value.String() != "900000000000000000" {
		t.Fatalf("unexpected price/value %s/%s", order.Price, order.Value)
	}
	if order.FeeBps != 1000 {
		t.Fatalf("unexpected fee bps %d", order.FeeBps)
	}
	if order.Nonce.Int64() != 100 || order.ValidTo != 1800000000 {
		t.Fatalf("unexpected nonce/expiry %s/%d", order.Nonce, order.ValidTo)
	}
	if err := z.VerifySignature(order); err != nil {
		t.Fatalf("verify: %v", err)
	}

	again, err := z.Canonicalize(rawOrder(t, model.KindZeroExV4, payload))
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if again.ID != order.ID {
		t.Fatalf("ids differ: %s != %s", again.ID, order.ID)
	}

	// the signature is not part of the identity
	signZeroEx(t, z, key, &payload, zeroExSignatureEthSign)
	resigned, err := z.Canonicalize(rawOrder(t, model.KindZeroExV4, payload))
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if resigned.ID != order.ID {
		t.Fatalf("signature changed id")
	}
	if err := z.VerifySignature(resigned); err != nil {
		t.Fatalf("verify eth_sign: %v", err)
	}
}

func TestZeroExCollectionBid(t *testing.T) {
	key, _ := crypto.GenerateKey()
	maker := crypto.PubkeyToAddress(key.PublicKey)
	z := newTestZeroEx()

	payload := zeroExListing(maker)
	payload.Direction = 1
	payload.ERC20Token = testWETH.Hex()
	payload.ERC721TokenID = "0"
	payload.ERC721TokenProperties = []ZeroExProperty{{PropertyValidator: common.Address{}.Hex(), PropertyData: "0x"}}
	signZeroEx(t, z, key, &payload, zeroExSignatureEIP712)

	order, err := z.Canonicalize(rawOrder(t, model.KindZeroExV4, payload))
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if order.Side != model.SideBuy || order.TokenSet.Kind != model.TokenSetContract {
		t.Fatalf("unexpected side/token set %s/%s", order.Side, order.TokenSet.Kind)
	}
	if order.TokenID != nil {
		t.Fatalf("collection bid should not carry a token id")
	}

	payload.ERC20Token = zeroExNativeToken.Hex()
	if _, err := z.Canonicalize(rawOrder(t, model.KindZeroExV4, payload)); model.CodeOf(err) != model.CodeInvalid {
		t.Fatalf("native bids must be rejected, got %v", err)
	}
}

func TestZeroExTamperedOrder(t *testing.T) {
	key, _ := crypto.GenerateKey()
	maker := crypto.PubkeyToAddress(key.PublicKey)
	z := newTestZeroEx()

	payload := zeroExListing(maker)
	signZeroEx(t, z, key, &payload, zeroExSignatureEIP712)
	payload.ERC20TokenAmount = "1"

	order, err := z.Canonicalize(rawOrder(t, model.KindZeroExV4, payload))
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if got := model.CodeOf(z.VerifySignature(order)); got != model.CodeInvalidSignature {
		t.Fatalf("unexpected code %s", got)
	}
}
