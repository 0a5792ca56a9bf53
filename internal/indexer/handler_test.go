package indexer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"orderScope/internal/cancel"
	"orderScope/internal/exchange"
	"orderScope/internal/model"
	"orderScope/internal/storage/memory"
)

type scriptedDecoder map[uint64]*exchange.Event

func (d scriptedDecoder) Decode(log model.LogRecord) (*exchange.Event, error) {
	if log.Data == "bad" {
		return nil, errors.New("malformed")
	}
	ev, ok := d[log.LogIndex]
	if !ok {
		return nil, nil
	}
	ev.Log = log
	return ev, nil
}

type countingAttributor struct {
	calls []string
	err   error
}

func (a *countingAttributor) Attribute(_ context.Context, fill model.FillEvent) (*model.Attribution, error) {
	a.calls = append(a.calls, fill.ID)
	return &model.Attribution{}, a.err
}

type recordingListings struct {
	raws []model.RawOrder
}

func (l *recordingListings) Process(_ context.Context, raws []model.RawOrder) ([]model.OrderResult, error) {
	l.raws = append(l.raws, raws...)
	return []model.OrderResult{{Code: model.CodeSuccess}}, nil
}

var testMaker = common.HexToAddress("0x00000000000000000000000000000000000000aa")

func seedOrder(t *testing.T, store *memory.Store, id string, nonce int64) {
	t.Helper()
	o := &model.Order{
		ID:                id,
		Kind:              model.KindSeaport,
		Maker:             testMaker,
		Nonce:             big.NewInt(nonce),
		FillabilityStatus: model.StatusFillable,
	}
	if _, err := store.InsertOrders(context.Background(), []*model.Order{o}); err != nil {
		t.Fatalf("seed order: %v", err)
	}
}

func orderStatus(t *testing.T, store *memory.Store, id string) model.FillabilityStatus {
	t.Helper()
	o, err := store.GetOrder(context.Background(), id)
	if err != nil {
		t.Fatalf("get order %s: %v", id, err)
	}
	return o.FillabilityStatus
}

func logAt(index uint64) model.LogRecord {
	return model.LogRecord{
		ChainID:     1,
		BlockNumber: 100,
		TxHash:      fmt.Sprintf("0x%02x", index),
		LogIndex:    index,
		Topics:      []string{common.Hash{}.Hex()},
	}
}

func fill(id, orderID string, kind model.OrderKind) model.FillEvent {
	return model.FillEvent{ID: id, OrderID: orderID, OrderKind: kind, Price: big.NewInt(1)}
}

func TestHandlerAppliesEventsInOrder(t *testing.T) {
	store := memory.NewStore()
	seedOrder(t, store, "sold", 1)
	seedOrder(t, store, "pulled", 2)
	seedOrder(t, store, "stale", 3)
	seedOrder(t, store, "fresh", 20)

	decoder := scriptedDecoder{
		0: {Name: "OrderFulfilled", Fills: []model.FillEvent{fill("f1", "sold", model.KindSeaport)}},
		1: {Name: "OrderCancelled", CancelledID: "pulled"},
		2: {Name: "CounterIncremented", Cancellation: &model.NonceCancellation{Kind: model.KindSeaport, Maker: testMaker, MinNonce: big.NewInt(10)}},
		3: {Name: "Transfer", Fills: []model.FillEvent{fill("m1", "", model.KindMint)}},
		4: {Name: "AskCreated", Listing: &model.RawOrder{Kind: model.KindZoraV3}},
	}
	attributor := &countingAttributor{}
	listings := &recordingListings{}
	handler, err := NewHandler(HandlerConfig{
		Decoder:    decoder,
		Tracker:    cancel.NewTracker(store, nil, nil),
		Listings:   listings,
		Fills:      store,
		Attributor: attributor,
	})
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}

	bad := logAt(5)
	bad.Data = "bad"
	removed := logAt(0)
	removed.Removed = true
	logs := []model.LogRecord{logAt(0), logAt(1), logAt(2), logAt(3), logAt(4), bad, removed}
	if err := handler.PutLogBatch(context.Background(), logs); err != nil {
		t.Fatalf("put batch: %v", err)
	}

	want := map[string]model.FillabilityStatus{
		"sold":   model.StatusFilled,
		"pulled": model.StatusCancelled,
		"stale":  model.StatusCancelled,
		"fresh":  model.StatusFillable,
	}
	for id, status := range want {
		if got := orderStatus(t, store, id); got != status {
			t.Fatalf("order %s: got %s want %s", id, got, status)
		}
	}
	if len(attributor.calls) != 1 || attributor.calls[0] != "f1" {
		t.Fatalf("expected only the sale to be attributed, got %v", attributor.calls)
	}
	if len(listings.raws) != 1 || listings.raws[0].Kind != model.KindZoraV3 {
		t.Fatalf("expected one listing, got %+v", listings.raws)
	}
}

func TestHandlerAttributionFailureDoesNotFailBatch(t *testing.T) {
	store := memory.NewStore()
	seedOrder(t, store, "sold", 1)

	handler, err := NewHandler(HandlerConfig{
		Decoder: scriptedDecoder{
			0: {Name: "OrderFulfilled", Fills: []model.FillEvent{fill("f1", "sold", model.KindSeaport)}},
		},
		Tracker:    cancel.NewTracker(store, nil, nil),
		Fills:      store,
		Attributor: &countingAttributor{err: model.ErrTraceUnavailable},
	})
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	if err := handler.PutLogBatch(context.Background(), []model.LogRecord{logAt(0)}); err != nil {
		t.Fatalf("put batch: %v", err)
	}
	if got := orderStatus(t, store, "sold"); got != model.StatusFilled {
		t.Fatalf("expected filled, got %s", got)
	}
}

func TestHandlerRequiresDependencies(t *testing.T) {
	if _, err := NewHandler(HandlerConfig{}); err == nil {
		t.Fatalf("expected error for missing decoder")
	}
}
