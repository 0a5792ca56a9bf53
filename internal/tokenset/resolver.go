package tokenset

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"orderScope/internal/model"
)

// Store persists token sets. SaveTokenSet must be a no-op for an id that
// already exists.
type Store interface {
	TokenSetExists(ctx context.Context, id string) (bool, error)
	SaveTokenSet(ctx context.Context, set model.TokenSet) error
}

// FlagSource reports the tokens of a collection that are currently not flagged.
type FlagSource interface {
	NonFlaggedTokens(ctx context.Context, contract common.Address) ([]*big.Int, error)
}

// Resolver validates and persists the token set an order applies to.
type Resolver struct {
	store  Store
	flags  FlagSource
	logger *zap.Logger
}

func NewResolver(store Store, flags FlagSource, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{store: store, flags: flags, logger: logger}
}

func TokenID(contract common.Address, tokenID *big.Int) string {
	return fmt.Sprintf("token:%s:%s", strings.ToLower(contract.Hex()), tokenID.String())
}

func ContractID(contract common.Address) string {
	return "contract:" + strings.ToLower(contract.Hex())
}

func ListID(contract common.Address, root common.Hash) string {
	return fmt.Sprintf("list:%s:%s", strings.ToLower(contract.Hex()), strings.ToLower(root.Hex()))
}

func schemaHash(kind model.TokenSetKind, contract common.Address) common.Hash {
	return crypto.Keccak256Hash([]byte(string(kind) + ":" + strings.ToLower(contract.Hex())))
}

// Build derives and validates the token set for spec without persisting it.
func (r *Resolver) Build(ctx context.Context, spec *model.TokenSetSpec) (model.TokenSet, error) {
	if spec == nil {
		return model.TokenSet{}, model.Reject(model.CodeInvalidTokenSet, "missing token set")
	}
	set := model.TokenSet{Kind: spec.Kind, Contract: spec.Contract}
	switch spec.Kind {
	case model.TokenSetToken:
		if spec.TokenID == nil {
			return model.TokenSet{}, model.Reject(model.CodeInvalidTokenSet, "single-token set without token id")
		}
		set.ID = TokenID(spec.Contract, spec.TokenID)
		set.Items = []*big.Int{spec.TokenID}
	case model.TokenSetContract:
		set.ID = ContractID(spec.Contract)
		set.SchemaHash = schemaHash(spec.Kind, spec.Contract)
	case model.TokenSetList:
		root, ok := MerkleRoot(spec.TokenIDs)
		if !ok {
			return model.TokenSet{}, model.Reject(model.CodeInvalidTokenSet, "empty token list for root %s", spec.Root.Hex())
		}
		if root != spec.Root {
			return model.TokenSet{}, model.Reject(model.CodeInvalidTokenSet, "root mismatch: computed %s, claimed %s", root.Hex(), spec.Root.Hex())
		}
		set.ID = ListID(spec.Contract, root)
		set.Items = normalizeIDs(spec.TokenIDs)
	case model.TokenSetNonFlagged:
		if r.flags == nil {
			return model.TokenSet{}, model.Reject(model.CodeInvalidTokenSet, "no flag source for dynamic set")
		}
		members, err := r.flags.NonFlaggedTokens(ctx, spec.Contract)
		if err != nil {
			return model.TokenSet{}, fmt.Errorf("load non-flagged tokens: %w", err)
		}
		root, ok := MerkleRoot(members)
		if !ok || root != spec.Root {
			return model.TokenSet{}, model.Reject(model.CodeInvalidTokenSet, "non-flagged root for %s no longer matches %s", spec.Contract.Hex(), spec.Root.Hex())
		}
		set.ID = ListID(spec.Contract, root)
		set.SchemaHash = schemaHash(spec.Kind, spec.Contract)
		set.Items = normalizeIDs(members)
	default:
		return model.TokenSet{}, model.Reject(model.CodeInvalidTokenSet, "unknown token set kind %q", spec.Kind)
	}
	return set, nil
}

// Resolve builds the set and writes it once; later orders reuse the stored rows.
func (r *Resolver) Resolve(ctx context.Context, spec *model.TokenSetSpec) (model.TokenSet, error) {
	set, err := r.Build(ctx, spec)
	if err != nil {
		return model.TokenSet{}, err
	}
	exists, err := r.store.TokenSetExists(ctx, set.ID)
	if err != nil {
		return model.TokenSet{}, fmt.Errorf("check token set %s: %w", set.ID, err)
	}
	if exists {
		return set, nil
	}
	if err := r.store.SaveTokenSet(ctx, set); err != nil {
		return model.TokenSet{}, fmt.Errorf("save token set %s: %w", set.ID, err)
	}
	r.logger.Debug("token set created", zap.String("token_set_id", set.ID), zap.Int("items", len(set.Items)))
	return set, nil
}
