package royalty

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"orderScope/internal/model"
)

// RoyaltyStore holds royalty recipients registered per collection.
type RoyaltyStore interface {
	// CollectionRoyalties reports ok=false when the collection has no record.
	CollectionRoyalties(ctx context.Context, contract common.Address) ([]model.RoyaltyRecipient, bool, error)
}

// RoyaltyInfoSource answers EIP-2981 royaltyInfo calls.
type RoyaltyInfoSource interface {
	RoyaltyInfo(ctx context.Context, contract common.Address, tokenID, salePrice *big.Int) (common.Address, *big.Int, error)
}

// Registry resolves the registered royalty recipients of a collection,
// preferring stored records over on-chain EIP-2981.
type Registry struct {
	store  RoyaltyStore
	chain  RoyaltyInfoSource
	logger *zap.Logger
}

func NewRegistry(store RoyaltyStore, chain RoyaltyInfoSource, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{store: store, chain: chain, logger: logger}
}

var referencePrice = big.NewInt(1_000_000_000_000_000_000)

func (r *Registry) Royalties(ctx context.Context, contract common.Address, tokenID *big.Int) ([]model.RoyaltyRecipient, error) {
	if r.store != nil {
		recipients, ok, err := r.store.CollectionRoyalties(ctx, contract)
		if err != nil {
			return nil, fmt.Errorf("get collection royalties %s: %w", contract.Hex(), err)
		}
		if ok {
			return recipients, nil
		}
	}
	if r.chain == nil || tokenID == nil {
		return nil, nil
	}

	recipient, amount, err := r.chain.RoyaltyInfo(ctx, contract, tokenID, referencePrice)
	if err != nil {
		// Collections without EIP-2981 revert here.
		r.logger.Debug("royaltyInfo unavailable", zap.String("contract", contract.Hex()), zap.Error(err))
		return nil, nil
	}
	if recipient == (common.Address{}) || amount == nil || amount.Sign() == 0 {
		return nil, nil
	}
	bps := new(big.Int).Div(new(big.Int).Mul(amount, big.NewInt(10000)), referencePrice)
	return []model.RoyaltyRecipient{{Recipient: recipient, Bps: bps.Int64()}}, nil
}
