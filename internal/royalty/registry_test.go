package royalty

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"orderScope/internal/model"
)

type storedRoyalties map[common.Address][]model.RoyaltyRecipient

func (s storedRoyalties) CollectionRoyalties(_ context.Context, contract common.Address) ([]model.RoyaltyRecipient, bool, error) {
	r, ok := s[contract]
	return r, ok, nil
}

type eip2981 struct {
	recipient common.Address
	bps       int64
	err       error
}

func (e eip2981) RoyaltyInfo(_ context.Context, _ common.Address, _ *big.Int, salePrice *big.Int) (common.Address, *big.Int, error) {
	if e.err != nil {
		return common.Address{}, nil, e.err
	}
	amount := new(big.Int).Div(new(big.Int).Mul(salePrice, big.NewInt(e.bps)), big.NewInt(10000))
	return e.recipient, amount, nil
}

func TestRegistryPrefersStoredRoyalties(t *testing.T) {
	stored := storedRoyalties{collection: {{Recipient: cofounder, Bps: 250}}}
	registry := NewRegistry(stored, eip2981{recipient: creator, bps: 500}, nil)

	got, err := registry.Royalties(context.Background(), collection, big.NewInt(1))
	if err != nil {
		t.Fatalf("royalties: %v", err)
	}
	if len(got) != 1 || got[0].Recipient != cofounder {
		t.Fatalf("unexpected royalties: %+v", got)
	}
}

func TestRegistryFallsBackToEIP2981(t *testing.T) {
	registry := NewRegistry(storedRoyalties{}, eip2981{recipient: creator, bps: 750}, nil)

	got, err := registry.Royalties(context.Background(), collection, big.NewInt(1))
	if err != nil {
		t.Fatalf("royalties: %v", err)
	}
	if len(got) != 1 || got[0].Recipient != creator || got[0].Bps != 750 {
		t.Fatalf("unexpected royalties: %+v", got)
	}

	reverting := NewRegistry(storedRoyalties{}, eip2981{err: errors.New("execution reverted")}, nil)
	got, err = reverting.Royalties(context.Background(), collection, big.NewInt(1))
	if err != nil || len(got) != 0 {
		t.Fatalf("expected no royalties, got %+v %v", got, err)
	}
}
