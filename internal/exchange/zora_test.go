package exchange

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"orderScope/internal/model"
)

func TestZoraListingIdentity(t *testing.T) {
	z := NewZora(ZoraConfig{
		Exchange:       common.HexToAddress("0x6170B3C3A54C3d8c854934cBC314eD479b2B29A3"),
		TransferHelper: common.HexToAddress("0x909e9efE4D87d1a6018C2065aE642b6D0447bc91"),
		Currencies:     testCurrencies(),
	})
	seller := common.HexToAddress("0x3333333333333333333333333333333333333333")
	ask := ZoraAsk{
		TokenContract: testCollection.Hex(),
		TokenID:       "9",
		Seller:        seller.Hex(),
		AskCurrency:   common.Address{}.Hex(),
		AskPrice:      "1000",
		State:         ZoraStateActive,
	}
	raw := rawOrder(t, model.KindZoraV3, ask)
	raw.Source = &model.OrderingKey{BlockNumber: 5, LogIndex: 2}

	first, err := z.Canonicalize(raw)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	ask.AskPrice = "2000"
	repriced := rawOrder(t, model.KindZoraV3, ask)
	repriced.Source = &model.OrderingKey{BlockNumber: 6}
	second, err := z.Canonicalize(repriced)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("listing key should not depend on price")
	}
	if first.ID != ZoraOrderID(seller, testCollection, big.NewInt(9)) {
		t.Fatalf("unexpected id %s", first.ID)
	}
	if second.Price.Int64() != 2000 || second.Source.BlockNumber != 6 {
		t.Fatalf("unexpected repriced order %+v", second)
	}

	ask.State = ZoraStateCancelled
	cancelled := rawOrder(t, model.KindZoraV3, ask)
	cancelled.Source = &model.OrderingKey{BlockNumber: 7}
	third, err := z.Canonicalize(cancelled)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if third.FillabilityStatus != model.StatusCancelled {
		t.Fatalf("unexpected status %s", third.FillabilityStatus)
	}

	if _, err := z.Canonicalize(rawOrder(t, model.KindZoraV3, ask)); model.CodeOf(err) != model.CodeInvalid {
		t.Fatalf("missing ordering key should be invalid, got %v", err)
	}
}
