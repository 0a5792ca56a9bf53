package nonce

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"orderScope/internal/model"
)

// ErrNoNonceAvailable is returned when the per-maker lock could not be taken
// within the configured wait.
var ErrNoNonceAvailable = errors.New("no nonce available")

const (
	defaultWait    = 5 * time.Second
	defaultLockTTL = 30 * time.Second
	retryInterval  = 50 * time.Millisecond
)

// Locker is a keyed mutual-exclusion service.
type Locker interface {
	// TryLock acquires key without blocking. ok is false when another holder has it.
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Unlock(ctx context.Context, key, token string) error
}

// Store exposes the nonce state already committed for a maker.
type Store interface {
	MaxOrderNonce(ctx context.Context, kind model.OrderKind, maker common.Address) (*big.Int, error)
	MinNonce(ctx context.Context, kind model.OrderKind, maker common.Address) (*big.Int, error)
}

// Reservations remembers nonces handed out but not yet seen in a stored order.
type Reservations interface {
	LastReserved(ctx context.Context, key string) (*big.Int, error)
	Reserve(ctx context.Context, key string, nonce *big.Int) error
}

// CounterSource reads a protocol's on-chain counter, if it has one.
type CounterSource interface {
	Counter(ctx context.Context, kind model.OrderKind, maker common.Address) (*big.Int, bool, error)
}

type Config struct {
	Wait    time.Duration
	LockTTL time.Duration
}

// Allocator hands out the next free nonce per (maker, marketplace).
type Allocator struct {
	locker       Locker
	store        Store
	reservations Reservations
	counters     CounterSource
	wait         time.Duration
	ttl          time.Duration
	logger       *zap.Logger
}

func NewAllocator(locker Locker, store Store, reservations Reservations, counters CounterSource, cfg Config, logger *zap.Logger) *Allocator {
	if cfg.Wait <= 0 {
		cfg.Wait = defaultWait
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLockTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Allocator{
		locker:       locker,
		store:        store,
		reservations: reservations,
		counters:     counters,
		wait:         cfg.Wait,
		ttl:          cfg.LockTTL,
		logger:       logger,
	}
}

// Key is the lock and reservation key for a maker on a marketplace.
func Key(maker common.Address, marketplace model.OrderKind) string {
	return fmt.Sprintf("nonce:%s:%s", marketplace, maker.Hex())
}

// Next returns a nonce no stored or previously reserved order of the maker
// uses, and no lower than the maker's minimum nonce. Marketplaces with an
// on-chain counter get the counter itself: every live order shares it, so
// nothing is reserved.
func (a *Allocator) Next(ctx context.Context, maker common.Address, marketplace model.OrderKind) (*big.Int, error) {
	if a.counters != nil {
		counter, ok, err := a.counters.Counter(ctx, marketplace, maker)
		if err != nil {
			return nil, fmt.Errorf("get counter: %w", err)
		}
		if ok {
			return new(big.Int).Set(counter), nil
		}
	}

	key := Key(maker, marketplace)
	token, err := a.acquire(ctx, key)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := a.locker.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
			a.logger.Warn("release nonce lock failed", zap.String("key", key), zap.Error(err))
		}
	}()

	next := new(big.Int)
	bump := func(candidate *big.Int) {
		if candidate != nil && candidate.Cmp(next) > 0 {
			next.Set(candidate)
		}
	}

	maxNonce, err := a.store.MaxOrderNonce(ctx, marketplace, maker)
	if err != nil {
		return nil, fmt.Errorf("get max order nonce: %w", err)
	}
	if maxNonce != nil {
		bump(new(big.Int).Add(maxNonce, big.NewInt(1)))
	}
	reserved, err := a.reservations.LastReserved(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get reserved nonce: %w", err)
	}
	if reserved != nil {
		bump(new(big.Int).Add(reserved, big.NewInt(1)))
	}
	minNonce, err := a.store.MinNonce(ctx, marketplace, maker)
	if err != nil {
		return nil, fmt.Errorf("get min nonce: %w", err)
	}
	bump(minNonce)

	if err := a.reservations.Reserve(ctx, key, next); err != nil {
		return nil, fmt.Errorf("reserve nonce: %w", err)
	}
	return next, nil
}

func (a *Allocator) acquire(ctx context.Context, key string) (string, error) {
	deadline := time.NewTimer(a.wait)
	defer deadline.Stop()
	for {
		token, ok, err := a.locker.TryLock(ctx, key, a.ttl)
		if err != nil {
			return "", fmt.Errorf("lock %s: %w", key, err)
		}
		if ok {
			return token, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-deadline.C:
			return "", fmt.Errorf("%w: lock %s held", ErrNoNonceAvailable, key)
		case <-time.After(retryInterval):
		}
	}
}
