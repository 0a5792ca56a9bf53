package memory

import (
	"context"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"orderScope/internal/model"
)

func (s *Store) TokenSetExists(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tokenSets[id]
	return ok, nil
}

func (s *Store) SaveTokenSet(_ context.Context, set model.TokenSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokenSets[set.ID]; !ok {
		s.tokenSets[set.ID] = set
	}
	return nil
}

func (s *Store) NonFlaggedTokens(_ context.Context, contract common.Address) ([]*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []*big.Int
	for id, flagged := range s.flags[contract] {
		if flagged {
			continue
		}
		if v, ok := new(big.Int).SetString(id, 10); ok {
			ids = append(ids, v)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Cmp(ids[j]) < 0 })
	return ids, nil
}

func (s *Store) SetTokenFlag(_ context.Context, contract common.Address, tokenID *big.Int, flagged bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.flags[contract] == nil {
		s.flags[contract] = make(map[string]bool)
	}
	s.flags[contract][tokenID.String()] = flagged
	return nil
}

func (s *Store) SaveFills(_ context.Context, fills []model.FillEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range fills {
		if _, ok := s.fills[f.ID]; !ok {
			s.fills[f.ID] = f
		}
	}
	return nil
}

func (s *Store) SaveAttribution(_ context.Context, fillID string, a *model.Attribution) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.fills[fillID]; !ok {
		return false, nil
	}
	if _, done := s.attributions[fillID]; done {
		return false, nil
	}
	s.attributions[fillID] = a
	return true, nil
}

// Attribution returns the stored attribution of a fill, if any.
func (s *Store) Attribution(fillID string) (*model.Attribution, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attributions[fillID]
	return a, ok
}

func (s *Store) CollectionRoyalties(_ context.Context, contract common.Address) ([]model.RoyaltyRecipient, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.royalties[contract]
	return r, ok, nil
}

func (s *Store) SetCollectionRoyalties(_ context.Context, contract common.Address, recipients []model.RoyaltyRecipient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.royalties[contract] = recipients
	return nil
}

func (s *Store) LoadState(_ context.Context, name string) (uint64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.checkpoints[name]
	return v, ok, nil
}

func (s *Store) SaveState(_ context.Context, name string, block uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[name] = block
	return nil
}
