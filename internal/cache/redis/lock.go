package redis

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned by Acquire when another holder owns the lock.
var ErrLockHeld = errors.New("redis: lock held")

// unlockLua deletes the lock only if it still holds the caller's token.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// extendLua refreshes the ttl only while the caller still holds the lock.
const extendLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`

// LockManager implements keyed locks with SETNX and a conditional unlock.
type LockManager struct {
	rdb      *redis.Client
	unlockSc *redis.Script
	extendSc *redis.Script
}

func NewLockManager(c *Client) *LockManager {
	return &LockManager{rdb: c.rdb, unlockSc: redis.NewScript(unlockLua), extendSc: redis.NewScript(extendLua)}
}

func lockKey(key string) string {
	return "lock:" + key
}

// TryLock takes the lock without waiting.
func (lm *LockManager) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.New().String()
	ok, err := lm.rdb.SetNX(ctx, lockKey(key), token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Acquire takes the lock or returns ErrLockHeld, handing back its release func.
// The lock is kept alive every ttl/3 until released.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token, ok, err := lm.TryLock(ctx, key, ttl)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockHeld
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(ttl / 3)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				_ = lm.extendSc.Run(context.Background(), lm.rdb, []string{lockKey(key)}, token, ttl.Milliseconds()).Err()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = lm.Unlock(unlockCtx, key, token)
		})
	}, nil
}

func (lm *LockManager) Unlock(ctx context.Context, key, token string) error {
	if err := lm.unlockSc.Run(ctx, lm.rdb, []string{lockKey(key)}, token).Err(); err != nil {
		return fmt.Errorf("redis: release lock %s: %w", key, err)
	}
	return nil
}

// NonceReservations remembers the last nonce handed out per key.
type NonceReservations struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewNonceReservations(c *Client, ttl time.Duration) *NonceReservations {
	return &NonceReservations{rdb: c.rdb, ttl: ttl}
}

func reservationKey(key string) string {
	return "reserved:" + key
}

func (r *NonceReservations) LastReserved(ctx context.Context, key string) (*big.Int, error) {
	raw, err := r.rdb.Get(ctx, reservationKey(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis: get reservation %s: %w", key, err)
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("redis: invalid reservation %q for %s", raw, key)
	}
	return v, nil
}

func (r *NonceReservations) Reserve(ctx context.Context, key string, nonce *big.Int) error {
	if err := r.rdb.Set(ctx, reservationKey(key), nonce.String(), r.ttl).Err(); err != nil {
		return fmt.Errorf("redis: reserve %s: %w", key, err)
	}
	return nil
}
