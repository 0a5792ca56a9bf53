package nonce

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"orderScope/internal/model"
)

type fakeStore struct {
	max *big.Int
	min *big.Int
}

func (s fakeStore) MaxOrderNonce(context.Context, model.OrderKind, common.Address) (*big.Int, error) {
	return s.max, nil
}

func (s fakeStore) MinNonce(context.Context, model.OrderKind, common.Address) (*big.Int, error) {
	if s.min == nil {
		return new(big.Int), nil
	}
	return s.min, nil
}

func TestNextSkipsStoredAndReserved(t *testing.T) {
	maker := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	alloc := NewAllocator(NewLocalLocker(), fakeStore{max: big.NewInt(4)}, NewLocalReservations(), nil, Config{}, nil)

	first, err := alloc.Next(context.Background(), maker, model.KindZeroExV4)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if first.Int64() != 5 {
		t.Fatalf("first nonce: got %s want 5", first)
	}
	second, err := alloc.Next(context.Background(), maker, model.KindZeroExV4)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if second.Int64() != 6 {
		t.Fatalf("second nonce: got %s want 6", second)
	}
}

func TestNextRespectsMinNonce(t *testing.T) {
	maker := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	alloc := NewAllocator(NewLocalLocker(), fakeStore{max: big.NewInt(2), min: big.NewInt(10)}, NewLocalReservations(), nil, Config{}, nil)

	got, err := alloc.Next(context.Background(), maker, model.KindZeroExV4)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if got.Int64() != 10 {
		t.Fatalf("nonce: got %s want 10", got)
	}
}

type fixedCounter map[model.OrderKind]*big.Int

func (c fixedCounter) Counter(_ context.Context, kind model.OrderKind, _ common.Address) (*big.Int, bool, error) {
	v, ok := c[kind]
	return v, ok, nil
}

func TestNextUsesOnChainCounter(t *testing.T) {
	maker := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	reservations := NewLocalReservations()
	counters := fixedCounter{model.KindSeaport: big.NewInt(0)}
	alloc := NewAllocator(NewLocalLocker(), fakeStore{max: big.NewInt(0)}, reservations, counters, Config{}, nil)

	for i := 0; i < 2; i++ {
		got, err := alloc.Next(context.Background(), maker, model.KindSeaport)
		if err != nil {
			t.Fatalf("next %d: %v", i, err)
		}
		if got.Sign() != 0 {
			t.Fatalf("allocation %d: got %s want the counter 0", i, got)
		}
	}
	if r, _ := reservations.LastReserved(context.Background(), Key(maker, model.KindSeaport)); r != nil {
		t.Fatalf("counter nonces must not be reserved, got %s", r)
	}

	// Marketplaces without a counter still allocate past stored nonces.
	got, err := alloc.Next(context.Background(), maker, model.KindZeroExV4)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if got.Int64() != 1 {
		t.Fatalf("zeroex nonce: got %s want 1", got)
	}
}

func TestNextTimesOutOnHeldLock(t *testing.T) {
	maker := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	locker := NewLocalLocker()
	if _, ok, _ := locker.TryLock(context.Background(), Key(maker, model.KindSeaport), time.Minute); !ok {
		t.Fatalf("expected to take lock")
	}
	alloc := NewAllocator(locker, fakeStore{}, NewLocalReservations(), nil, Config{Wait: 120 * time.Millisecond}, nil)

	_, err := alloc.Next(context.Background(), maker, model.KindSeaport)
	if !errors.Is(err, ErrNoNonceAvailable) {
		t.Fatalf("expected ErrNoNonceAvailable, got %v", err)
	}

	// Other makers are not blocked.
	other := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	if _, err := alloc.Next(context.Background(), other, model.KindSeaport); err != nil {
		t.Fatalf("next for other maker: %v", err)
	}
}
