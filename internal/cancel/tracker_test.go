package cancel

import (
	"context"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"orderScope/internal/model"
	"orderScope/internal/storage/memory"
)

type recordingNotifier struct {
	mu      sync.Mutex
	updates []model.OrderUpdate
}

func (n *recordingNotifier) Publish(_ context.Context, updates []model.OrderUpdate) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updates = append(n.updates, updates...)
	return nil
}

var maker = common.HexToAddress("0x00000000000000000000000000000000000000aa")

func seed(t *testing.T, store *memory.Store, orders ...*model.Order) {
	t.Helper()
	if _, err := store.InsertOrders(context.Background(), orders); err != nil {
		t.Fatalf("seed orders: %v", err)
	}
}

func order(id string, nonce int64, status model.FillabilityStatus) *model.Order {
	return &model.Order{
		ID:                id,
		Kind:              model.KindSeaport,
		Maker:             maker,
		Nonce:             big.NewInt(nonce),
		FillabilityStatus: status,
	}
}

func status(t *testing.T, store *memory.Store, id string) model.FillabilityStatus {
	t.Helper()
	o, err := store.GetOrder(context.Background(), id)
	if err != nil {
		t.Fatalf("get order %s: %v", id, err)
	}
	return o.FillabilityStatus
}

func TestBulkCancelRaisesMinNonce(t *testing.T) {
	store := memory.NewStore()
	seed(t, store,
		order("a", 3, model.StatusFillable),
		order("b", 9, model.StatusNoBalance),
		order("c", 10, model.StatusFillable),
		order("d", 2, model.StatusFilled),
	)
	notifier := &recordingNotifier{}
	tracker := NewTracker(store, notifier, nil)

	err := tracker.Apply(context.Background(), model.NonceCancellation{Kind: model.KindSeaport, Maker: maker, MinNonce: big.NewInt(10)}, "0xtx")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	want := map[string]model.FillabilityStatus{
		"a": model.StatusCancelled,
		"b": model.StatusCancelled,
		"c": model.StatusFillable,
		"d": model.StatusFilled,
	}
	for id, expected := range want {
		if got := status(t, store, id); got != expected {
			t.Fatalf("order %s: got %s want %s", id, got, expected)
		}
	}
	if len(notifier.updates) != 2 {
		t.Fatalf("expected 2 cancel updates, got %d", len(notifier.updates))
	}
	for _, u := range notifier.updates {
		if u.Trigger != model.TriggerCancel {
			t.Fatalf("unexpected trigger %s", u.Trigger)
		}
	}

	// A lower floor arriving late never lowers the recorded minimum.
	if err := tracker.Apply(context.Background(), model.NonceCancellation{Kind: model.KindSeaport, Maker: maker, MinNonce: big.NewInt(4)}, "0xold"); err != nil {
		t.Fatalf("apply stale: %v", err)
	}
	floor, _ := store.MinNonce(context.Background(), model.KindSeaport, maker)
	if floor.Int64() != 10 {
		t.Fatalf("min nonce: got %s want 10", floor)
	}
}

func TestCancelNonceAndOrder(t *testing.T) {
	store := memory.NewStore()
	seed(t, store,
		order("a", 7, model.StatusFillable),
		order("b", 8, model.StatusNoApproval),
	)
	tracker := NewTracker(store, nil, nil)

	if err := tracker.Apply(context.Background(), model.NonceCancellation{Kind: model.KindSeaport, Maker: maker, Nonce: big.NewInt(7)}, "0xtx"); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := status(t, store, "a"); got != model.StatusCancelled {
		t.Fatalf("order a: got %s", got)
	}
	cancelled, _ := store.IsNonceCancelled(context.Background(), model.KindSeaport, maker, big.NewInt(7))
	if !cancelled {
		t.Fatalf("nonce 7 should be recorded as cancelled")
	}

	if err := tracker.CancelOrder(context.Background(), "b", "0xtx"); err != nil {
		t.Fatalf("cancel order: %v", err)
	}
	if got := status(t, store, "b"); got != model.StatusCancelled {
		t.Fatalf("order b: got %s", got)
	}
}

func TestConsumeMarksFilled(t *testing.T) {
	store := memory.NewStore()
	seed(t, store, order("a", 5, model.StatusFillable), order("b", 6, model.StatusFillable))
	tracker := NewTracker(store, nil, nil)

	if err := tracker.Consume(context.Background(), model.NonceCancellation{Kind: model.KindSeaport, Maker: maker, Nonce: big.NewInt(5)}, "0xtx"); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if got := status(t, store, "a"); got != model.StatusFilled {
		t.Fatalf("order a: got %s", got)
	}
	if got := status(t, store, "b"); got != model.StatusFillable {
		t.Fatalf("order b: got %s", got)
	}
}
