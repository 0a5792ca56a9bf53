package nonce

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LocalLocker is an in-process Locker for single-instance deployments.
type LocalLocker struct {
	mu    sync.Mutex
	held  map[string]localLock
	clock func() time.Time
}

type localLock struct {
	token   string
	expires time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]localLock), clock: time.Now}
}

func (l *LocalLocker) TryLock(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock()
	if cur, ok := l.held[key]; ok && now.Before(cur.expires) {
		return "", false, nil
	}
	token := uuid.NewString()
	l.held[key] = localLock{token: token, expires: now.Add(ttl)}
	return token, true, nil
}

func (l *LocalLocker) Unlock(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, ok := l.held[key]; ok && cur.token == token {
		delete(l.held, key)
	}
	return nil
}

// LocalReservations keeps reserved nonces in memory.
type LocalReservations struct {
	mu   sync.Mutex
	last map[string]*big.Int
}

func NewLocalReservations() *LocalReservations {
	return &LocalReservations{last: make(map[string]*big.Int)}
}

func (r *LocalReservations) LastReserved(_ context.Context, key string) (*big.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.last[key]; ok {
		return new(big.Int).Set(v), nil
	}
	return nil, nil
}

func (r *LocalReservations) Reserve(_ context.Context, key string, nonce *big.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last[key] = new(big.Int).Set(nonce)
	return nil
}
