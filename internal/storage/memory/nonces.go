package memory

import (
	"context"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"orderScope/internal/model"
)

func (s *Store) MinNonce(_ context.Context, kind model.OrderKind, maker common.Address) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.minNonces[makerKey{kind, maker}]; ok {
		return new(big.Int).Set(v), nil
	}
	return new(big.Int), nil
}

func (s *Store) IsNonceCancelled(_ context.Context, kind model.OrderKind, maker common.Address, nonce *big.Int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.cancelled[makerKey{kind, maker}][nonce.String()]
	return ok, nil
}

func (s *Store) CancelOrder(_ context.Context, id string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok || o.FillabilityStatus.Terminal() {
		return nil, nil
	}
	o.FillabilityStatus = model.StatusCancelled
	return []string{id}, nil
}

func (s *Store) FillOrder(_ context.Context, id string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok || o.FillabilityStatus.Terminal() {
		return nil, nil
	}
	o.FillabilityStatus = model.StatusFilled
	return []string{id}, nil
}

func (s *Store) CancelNonce(_ context.Context, kind model.OrderKind, maker common.Address, nonce *big.Int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := makerKey{kind, maker}
	if s.cancelled[key] == nil {
		s.cancelled[key] = make(map[string]struct{})
	}
	s.cancelled[key][nonce.String()] = struct{}{}
	return s.setStatusLocked(kind, maker, model.StatusCancelled, func(o *model.Order) bool {
		return !o.FillabilityStatus.Terminal() && o.Nonce.Cmp(nonce) == 0
	}), nil
}

func (s *Store) BulkCancel(_ context.Context, kind model.OrderKind, maker common.Address, minNonce *big.Int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := makerKey{kind, maker}
	floor := new(big.Int).Set(minNonce)
	if cur, ok := s.minNonces[key]; ok && cur.Cmp(floor) > 0 {
		floor.Set(cur)
	}
	s.minNonces[key] = floor
	return s.setStatusLocked(kind, maker, model.StatusCancelled, func(o *model.Order) bool {
		return o.FillabilityStatus.Active() && o.Nonce.Cmp(floor) < 0
	}), nil
}

func (s *Store) FillNonce(_ context.Context, kind model.OrderKind, maker common.Address, nonce *big.Int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setStatusLocked(kind, maker, model.StatusFilled, func(o *model.Order) bool {
		return !o.FillabilityStatus.Terminal() && o.Nonce.Cmp(nonce) == 0
	}), nil
}

func (s *Store) setStatusLocked(kind model.OrderKind, maker common.Address, status model.FillabilityStatus, match func(*model.Order) bool) []string {
	var ids []string
	for id, o := range s.orders {
		if o.Kind != kind || o.Maker != maker || o.Nonce == nil || !match(o) {
			continue
		}
		o.FillabilityStatus = status
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
