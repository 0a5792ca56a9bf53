package fillability

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"orderScope/internal/chain"
	"orderScope/internal/model"
)

// MaxListingSkew bounds how far in the future a listing may start.
const MaxListingSkew = 5 * time.Minute

// ChainState is the read-only chain view the verifier needs.
type ChainState interface {
	LatestTimestamp(ctx context.Context) (uint64, error)
	ContractKind(ctx context.Context, contract common.Address) (model.ContractKind, error)
	ERC721Owner(ctx context.Context, contract common.Address, tokenID *big.Int) (common.Address, error)
	ERC1155Balance(ctx context.Context, contract, owner common.Address, tokenID *big.Int) (*big.Int, error)
	IsApprovedForAll(ctx context.Context, contract, owner, operator common.Address) (bool, error)
	NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error)
	ERC20Balance(ctx context.Context, token, owner common.Address) (*big.Int, error)
	ERC20Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
}

// NonceStore exposes recorded cancellations.
type NonceStore interface {
	MinNonce(ctx context.Context, kind model.OrderKind, maker common.Address) (*big.Int, error)
	IsNonceCancelled(ctx context.Context, kind model.OrderKind, maker common.Address, nonce *big.Int) (bool, error)
}

// CounterSource reads a protocol's on-chain bulk-cancel counter, if it has one.
type CounterSource interface {
	Counter(ctx context.Context, kind model.OrderKind, maker common.Address) (*big.Int, bool, error)
}

// SignatureVerifier checks an order's signature with its protocol's scheme.
type SignatureVerifier interface {
	VerifySignature(order *model.Order) error
}

// Result is the fillability outcome for an order that was not rejected.
type Result struct {
	Status       model.FillabilityStatus
	Approval     model.ApprovalStatus
	ContractKind model.ContractKind
}

// Verifier evaluates fillability fresh for each order.
type Verifier struct {
	chain      ChainState
	nonces     NonceStore
	counters   CounterSource
	signatures SignatureVerifier
	logger     *zap.Logger
}

func NewVerifier(chainState ChainState, nonces NonceStore, counters CounterSource, signatures SignatureVerifier, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{
		chain:      chainState,
		nonces:     nonces,
		counters:   counters,
		signatures: signatures,
		logger:     logger,
	}
}

// Options tune a single evaluation.
type Options struct {
	// SkipSignature is set when re-checking orders whose signature was verified at insertion.
	SkipSignature bool
}

// Check runs signature, time window, nonce and balance/approval checks in that
// order. Rejections are returned as *model.Rejection; any other error means the
// order is not fillable for now.
func (v *Verifier) Check(ctx context.Context, order *model.Order, opts Options) (Result, error) {
	if !opts.SkipSignature && v.signatures != nil {
		if err := v.signatures.VerifySignature(order); err != nil {
			return Result{}, err
		}
	}

	now, err := v.chain.LatestTimestamp(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("get chain time: %w", err)
	}
	if order.Expired(now) {
		return Result{}, model.Reject(model.CodeExpired, "valid_to %d, chain time %d", order.ValidTo, now)
	}
	if order.ValidFrom > now+uint64(MaxListingSkew/time.Second) {
		return Result{}, model.Reject(model.CodeInvalidListingTime, "valid_from %d, chain time %d", order.ValidFrom, now)
	}

	if order.Kind.Persistence() == model.PersistenceSignature {
		if err := v.checkNonce(ctx, order); err != nil {
			return Result{}, err
		}
	}

	kind, err := v.chain.ContractKind(ctx, order.Contract)
	if err != nil {
		if errors.Is(err, chain.ErrUnknownContractKind) {
			return Result{}, model.Reject(model.CodeUnknownOrderKind, "contract %s", order.Contract.Hex())
		}
		return Result{}, fmt.Errorf("get contract kind %s: %w", order.Contract.Hex(), err)
	}
	if order.ContractKind != "" && order.ContractKind != kind {
		return Result{}, model.Reject(model.CodeInvalid, "order trades %s but contract is %s", order.ContractKind, kind)
	}

	var hasBalance, approved bool
	if order.Side == model.SideSell {
		hasBalance, approved, err = v.checkSell(ctx, order, kind)
	} else {
		hasBalance, approved, err = v.checkBuy(ctx, order)
	}
	if err != nil {
		return Result{}, err
	}
	return Result{Status: statusFor(hasBalance, approved), Approval: approvalFor(approved), ContractKind: kind}, nil
}

func (v *Verifier) checkNonce(ctx context.Context, order *model.Order) error {
	if order.Nonce == nil {
		return nil
	}
	if v.nonces != nil {
		minNonce, err := v.nonces.MinNonce(ctx, order.Kind, order.Maker)
		if err != nil {
			return fmt.Errorf("get min nonce: %w", err)
		}
		if minNonce != nil && order.Nonce.Cmp(minNonce) < 0 {
			return model.Reject(model.CodeCancelled, "nonce %s below min nonce %s", order.Nonce, minNonce)
		}
		cancelled, err := v.nonces.IsNonceCancelled(ctx, order.Kind, order.Maker, order.Nonce)
		if err != nil {
			return fmt.Errorf("get nonce cancellation: %w", err)
		}
		if cancelled {
			return model.Reject(model.CodeCancelled, "nonce %s cancelled", order.Nonce)
		}
	}
	if v.counters != nil {
		counter, ok, err := v.counters.Counter(ctx, order.Kind, order.Maker)
		if err != nil {
			return fmt.Errorf("get counter: %w", err)
		}
		if ok && counter.Cmp(order.Nonce) != 0 {
			return model.Reject(model.CodeCancelled, "counter %s, order nonce %s", counter, order.Nonce)
		}
	}
	return nil
}

func (v *Verifier) checkSell(ctx context.Context, order *model.Order, kind model.ContractKind) (bool, bool, error) {
	if order.TokenID == nil {
		return false, false, model.Reject(model.CodeInvalid, "listing without token id")
	}
	var hasBalance bool
	switch kind {
	case model.ContractERC721:
		owner, err := v.chain.ERC721Owner(ctx, order.Contract, order.TokenID)
		if err != nil {
			return false, false, fmt.Errorf("get owner: %w", err)
		}
		hasBalance = owner == order.Maker
	default:
		balance, err := v.chain.ERC1155Balance(ctx, order.Contract, order.Maker, order.TokenID)
		if err != nil {
			return false, false, fmt.Errorf("get erc1155 balance: %w", err)
		}
		hasBalance = balance.Cmp(quantity(order)) >= 0
	}
	approved, err := v.chain.IsApprovedForAll(ctx, order.Contract, order.Maker, order.Operator)
	if err != nil {
		return false, false, fmt.Errorf("get approval: %w", err)
	}
	return hasBalance, approved, nil
}

func (v *Verifier) checkBuy(ctx context.Context, order *model.Order) (bool, bool, error) {
	if order.Currency == model.NativeCurrency {
		balance, err := v.chain.NativeBalance(ctx, order.Maker)
		if err != nil {
			return false, false, fmt.Errorf("get native balance: %w", err)
		}
		return balance.Cmp(order.Price) >= 0, true, nil
	}
	balance, err := v.chain.ERC20Balance(ctx, order.Currency, order.Maker)
	if err != nil {
		return false, false, fmt.Errorf("get currency balance: %w", err)
	}
	allowance, err := v.chain.ERC20Allowance(ctx, order.Currency, order.Maker, order.Operator)
	if err != nil {
		return false, false, fmt.Errorf("get currency allowance: %w", err)
	}
	return balance.Cmp(order.Price) >= 0, allowance.Cmp(order.Price) >= 0, nil
}

func quantity(order *model.Order) *big.Int {
	if order.Quantity == nil || order.Quantity.Sign() == 0 {
		return big.NewInt(1)
	}
	return order.Quantity
}

func statusFor(hasBalance, approved bool) model.FillabilityStatus {
	switch {
	case hasBalance && approved:
		return model.StatusFillable
	case !hasBalance && !approved:
		return model.StatusNoBalanceNoApproval
	case !hasBalance:
		return model.StatusNoBalance
	default:
		return model.StatusNoApproval
	}
}

func approvalFor(approved bool) model.ApprovalStatus {
	if approved {
		return model.ApprovalApproved
	}
	return model.ApprovalNoApproval
}
