// Package memory is an in-process implementation of the order book stores,
// used when no database is configured and in tests.
package memory

import (
	"context"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"orderScope/internal/model"
	"orderScope/internal/orderbook"
)

type makerKey struct {
	kind  model.OrderKind
	maker common.Address
}

type Store struct {
	mu             sync.Mutex
	orders         map[string]*model.Order
	tokenSets      map[string]model.TokenSet
	flags          map[common.Address]map[string]bool
	minNonces      map[makerKey]*big.Int
	cancelled      map[makerKey]map[string]struct{}
	fills          map[string]model.FillEvent
	attributions   map[string]*model.Attribution
	royalties      map[common.Address][]model.RoyaltyRecipient
	checkpoints    map[string]uint64
	insertFailures error
}

func NewStore() *Store {
	return &Store{
		orders:       make(map[string]*model.Order),
		tokenSets:    make(map[string]model.TokenSet),
		flags:        make(map[common.Address]map[string]bool),
		minNonces:    make(map[makerKey]*big.Int),
		cancelled:    make(map[makerKey]map[string]struct{}),
		fills:        make(map[string]model.FillEvent),
		attributions: make(map[string]*model.Attribution),
		royalties:    make(map[common.Address][]model.RoyaltyRecipient),
		checkpoints:  make(map[string]uint64),
	}
}

// FailInserts makes every following InsertOrders call fail with err.
func (s *Store) FailInserts(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertFailures = err
}

func cloneOrder(o *model.Order) *model.Order {
	cp := *o
	cp.FeeBreakdown = append([]model.FeeRecipient(nil), o.FeeBreakdown...)
	if o.Source != nil {
		src := *o.Source
		cp.Source = &src
	}
	return &cp
}

func (s *Store) OrderExists(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.orders[id]
	return ok, nil
}

// InsertOrders is all-or-nothing: nothing is written when it fails.
func (s *Store) InsertOrders(_ context.Context, orders []*model.Order) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertFailures != nil {
		return nil, s.insertFailures
	}
	var inserted []string
	for _, o := range orders {
		if _, ok := s.orders[o.ID]; ok {
			continue
		}
		if o.FillabilityStatus.Active() && s.nonceInvalidLocked(o) {
			o.FillabilityStatus = model.StatusCancelled
		}
		s.orders[o.ID] = cloneOrder(o)
		inserted = append(inserted, o.ID)
	}
	return inserted, nil
}

func (s *Store) nonceInvalidLocked(o *model.Order) bool {
	if o.Nonce == nil {
		return false
	}
	key := makerKey{o.Kind, o.Maker}
	if floor, ok := s.minNonces[key]; ok && o.Nonce.Cmp(floor) < 0 {
		return true
	}
	_, ok := s.cancelled[key][o.Nonce.String()]
	return ok
}

func (s *Store) ApplyStateOrder(_ context.Context, o *model.Order) (orderbook.Resolution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	resolution := orderbook.ResolveState(s.orders[o.ID], o)
	if resolution != orderbook.ResolutionRedundant {
		s.orders[o.ID] = cloneOrder(o)
	}
	return resolution, nil
}

func (s *Store) UpdateStatus(_ context.Context, id string, status model.FillabilityStatus, approval model.ApprovalStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok || o.FillabilityStatus.Terminal() {
		return false, nil
	}
	o.FillabilityStatus = status
	o.ApprovalStatus = approval
	return true, nil
}

func (s *Store) GetOrder(_ context.Context, id string) (*model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (s *Store) OrdersForRevalidation(_ context.Context, maker *common.Address, limit int) ([]*model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Order
	for _, o := range s.orders {
		if !o.FillabilityStatus.Active() {
			continue
		}
		if maker != nil && o.Maker != *maker {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) MaxOrderNonce(_ context.Context, kind model.OrderKind, maker common.Address) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var max *big.Int
	for _, o := range s.orders {
		if o.Kind != kind || o.Maker != maker || o.Nonce == nil {
			continue
		}
		if max == nil || o.Nonce.Cmp(max) > 0 {
			max = new(big.Int).Set(o.Nonce)
		}
	}
	return max, nil
}
