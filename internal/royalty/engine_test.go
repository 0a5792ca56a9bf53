package royalty

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"orderScope/internal/chain"
	"orderScope/internal/model"
)

var (
	taker      = common.HexToAddress("0x0000000000000000000000000000000000000a01")
	seller1    = common.HexToAddress("0x0000000000000000000000000000000000000a02")
	seller2    = common.HexToAddress("0x0000000000000000000000000000000000000a03")
	exchange   = common.HexToAddress("0x0000000000000000000000000000000000000e01")
	feeWallet  = common.HexToAddress("0x0000000000000000000000000000000000000f01")
	creator    = common.HexToAddress("0x0000000000000000000000000000000000000c01")
	cofounder  = common.HexToAddress("0x0000000000000000000000000000000000000c02")
	stranger   = common.HexToAddress("0x0000000000000000000000000000000000000d01")
	weth       = common.HexToAddress("0x0000000000000000000000000000000000000b01")
	collection = common.HexToAddress("0x0000000000000000000000000000000000000c0c")
)

func ether(milli int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(milli), big.NewInt(1_000_000_000_000_000))
}

func call(from, to common.Address, value *big.Int, calls ...chain.CallFrame) chain.CallFrame {
	return chain.CallFrame{Type: "CALL", From: from, To: to, Value: (*hexutil.Big)(value), Calls: calls}
}

type staticTraces struct {
	frame *chain.CallFrame
	err   error
}

func (s staticTraces) Trace(context.Context, string) (*chain.CallFrame, error) {
	return s.frame, s.err
}

type staticFills []model.FillEvent

func (s staticFills) FillsForTx(context.Context, string) ([]model.FillEvent, error) {
	return s, nil
}

type staticRecipients []model.RoyaltyRecipient

func (s staticRecipients) Royalties(context.Context, common.Address, *big.Int) ([]model.RoyaltyRecipient, error) {
	return s, nil
}

type memoryAttributions struct {
	mu    sync.Mutex
	saved map[string]*model.Attribution
}

func (m *memoryAttributions) SaveAttribution(_ context.Context, fillID string, a *model.Attribution) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saved == nil {
		m.saved = make(map[string]*model.Attribution)
	}
	if _, ok := m.saved[fillID]; ok {
		return false, nil
	}
	m.saved[fillID] = a
	return true, nil
}

func sweepFills() []model.FillEvent {
	return []model.FillEvent{
		{ID: "0xtx:1:0", OrderKind: model.KindSeaport, Contract: collection, TokenID: big.NewInt(1), Price: ether(1000), Maker: seller1, Taker: taker, TxHash: "0xtx"},
		{ID: "0xtx:2:0", OrderKind: model.KindSeaport, Contract: collection, TokenID: big.NewInt(2), Price: ether(3000), Maker: seller2, Taker: taker, TxHash: "0xtx"},
	}
}

func TestMarketplaceFeeSplitsAcrossProtocolVolume(t *testing.T) {
	trace := call(taker, exchange, ether(4000),
		call(exchange, seller1, ether(930)),
		call(exchange, seller2, ether(2790)),
		call(exchange, feeWallet, ether(80)),
		call(exchange, creator, ether(200)),
		// reverted transfers never count
		chain.CallFrame{Type: "CALL", From: exchange, To: feeWallet, Value: (*hexutil.Big)(ether(500)), Error: "execution reverted"},
	)
	store := &memoryAttributions{}
	engine := NewEngine(
		staticTraces{frame: &trace},
		staticFills(sweepFills()),
		staticRecipients{{Recipient: creator, Bps: 500}},
		store,
		Config{MarketplaceWallets: map[model.OrderKind][]common.Address{model.KindSeaport: {feeWallet}}},
		nil,
	)

	for _, fill := range sweepFills() {
		got, err := engine.Attribute(context.Background(), fill)
		if err != nil {
			t.Fatalf("attribute %s: %v", fill.ID, err)
		}
		if got.MarketplaceFeeBps != 200 {
			t.Fatalf("%s marketplace bps: got %d want 200", fill.ID, got.MarketplaceFeeBps)
		}
		if got.RoyaltyFeeBps != 500 {
			t.Fatalf("%s royalty bps: got %d want 500", fill.ID, got.RoyaltyFeeBps)
		}
		if !got.PaidFullRoyalty {
			t.Fatalf("%s expected full royalty paid", fill.ID)
		}
	}
	if len(store.saved) != 2 {
		t.Fatalf("expected 2 saved attributions, got %d", len(store.saved))
	}
}

func TestPartialRoyaltyAndCandidates(t *testing.T) {
	fill := model.FillEvent{ID: "0xtx:1:0", OrderKind: model.KindSeaport, Contract: collection, TokenID: big.NewInt(1), Price: ether(1000), Currency: weth, Maker: seller1, Taker: taker, TxHash: "0xtx"}
	// Paid in WETH to the seller, in ETH to the creator.
	trace := call(taker, exchange, ether(50),
		chain.CallFrame{Type: "CALL", From: exchange, To: weth, Logs: []chain.CallFrameLog{
			transferLog(weth, taker, seller1, ether(920)),
			transferLog(weth, taker, stranger, ether(30)),
		}},
		call(exchange, creator, ether(50)),
	)
	engine := NewEngine(
		staticTraces{frame: &trace},
		staticFills{fill},
		staticRecipients{{Recipient: creator, Bps: 500}, {Recipient: cofounder, Bps: 250}},
		&memoryAttributions{},
		Config{WrappedNative: weth},
		nil,
	)

	got, err := engine.Compute(context.Background(), fill)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if got.RoyaltyFeeBps != 500 {
		t.Fatalf("royalty bps: got %d want 500", got.RoyaltyFeeBps)
	}
	if got.PaidFullRoyalty {
		t.Fatalf("cofounder was not paid")
	}
	if len(got.PossibleMissingRoyalties) != 1 || got.PossibleMissingRoyalties[0].Recipient != stranger {
		t.Fatalf("unexpected candidates: %+v", got.PossibleMissingRoyalties)
	}
	if got.PossibleMissingRoyalties[0].Bps != 300 {
		t.Fatalf("candidate bps: got %d want 300", got.PossibleMissingRoyalties[0].Bps)
	}
}

func TestAttributionDiscardedWhenFeesReachPrice(t *testing.T) {
	fill := model.FillEvent{ID: "0xtx:1:0", OrderKind: model.KindSeaport, Contract: collection, Price: ether(1000), Maker: seller1, Taker: taker, TxHash: "0xtx"}
	trace := call(taker, exchange, ether(1000), call(exchange, feeWallet, ether(1000)))
	store := &memoryAttributions{}
	engine := NewEngine(staticTraces{frame: &trace}, staticFills{fill}, staticRecipients{}, store,
		Config{MarketplaceWallets: map[model.OrderKind][]common.Address{model.KindSeaport: {feeWallet}}}, nil)

	_, err := engine.Attribute(context.Background(), fill)
	if !errors.Is(err, model.ErrInvariantViolation) {
		t.Fatalf("expected invariant violation, got %v", err)
	}
	if len(store.saved) != 0 {
		t.Fatalf("nothing should be persisted")
	}
}

func TestAttributionWithoutTrace(t *testing.T) {
	fill := model.FillEvent{ID: "0xtx:1:0", OrderKind: model.KindSeaport, Contract: collection, Price: ether(1000), TxHash: "0xtx"}
	store := &memoryAttributions{}
	engine := NewEngine(staticTraces{err: model.ErrTraceUnavailable}, staticFills{fill}, staticRecipients{}, store, Config{}, nil)

	_, err := engine.Attribute(context.Background(), fill)
	if model.CodeOf(err) != model.CodeTraceUnavailable {
		t.Fatalf("expected trace-unavailable, got %v", err)
	}
	if len(store.saved) != 0 {
		t.Fatalf("nothing should be persisted")
	}
}

func TestOtherProtocolWalletIgnored(t *testing.T) {
	fill := model.FillEvent{ID: "0xtx:1:0", OrderKind: model.KindZeroExV4, Contract: collection, Price: ether(1000), Maker: seller1, Taker: taker, TxHash: "0xtx"}
	trace := call(taker, exchange, ether(1000), call(exchange, seller1, ether(975)), call(exchange, feeWallet, ether(25)))
	engine := NewEngine(staticTraces{frame: &trace}, staticFills{fill}, staticRecipients{}, &memoryAttributions{},
		Config{MarketplaceWallets: map[model.OrderKind][]common.Address{model.KindSeaport: {feeWallet}}}, nil)

	got, err := engine.Compute(context.Background(), fill)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if got.MarketplaceFeeBps != 0 || len(got.PossibleMissingRoyalties) != 0 {
		t.Fatalf("unexpected attribution: %+v", got)
	}
	if !got.PaidFullRoyalty {
		t.Fatalf("no registered royalties means full royalty paid")
	}
}
