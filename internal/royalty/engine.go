package royalty

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"orderScope/internal/chain"
	"orderScope/internal/model"
)

// DefaultCandidateThresholdBps is the share of a fill's price below which an
// unclassified inflow is reported as a possible missing royalty.
const DefaultCandidateThresholdBps = 1000

// TraceSource returns a transaction's call trace.
type TraceSource interface {
	Trace(ctx context.Context, txHash string) (*chain.CallFrame, error)
}

// FillSource returns every fill of a transaction.
type FillSource interface {
	FillsForTx(ctx context.Context, txHash string) ([]model.FillEvent, error)
}

// RecipientSource returns the registered royalty recipients of a collection.
type RecipientSource interface {
	Royalties(ctx context.Context, contract common.Address, tokenID *big.Int) ([]model.RoyaltyRecipient, error)
}

// AttributionStore persists an attribution onto its fill, once.
type AttributionStore interface {
	SaveAttribution(ctx context.Context, fillID string, attribution *model.Attribution) (bool, error)
}

type Config struct {
	// MarketplaceWallets lists known fee wallets per protocol.
	MarketplaceWallets    map[model.OrderKind][]common.Address
	WrappedNative         common.Address
	CandidateThresholdBps int64
}

// Engine attributes the fees actually paid in a fill's transaction.
type Engine struct {
	traces     TraceSource
	fills      FillSource
	recipients RecipientSource
	store      AttributionStore
	wallets    map[common.Address]model.OrderKind
	wrapped    common.Address
	threshold  int64
	logger     *zap.Logger
}

func NewEngine(traces TraceSource, fills FillSource, recipients RecipientSource, store AttributionStore, cfg Config, logger *zap.Logger) *Engine {
	wallets := make(map[common.Address]model.OrderKind)
	for kind, addrs := range cfg.MarketplaceWallets {
		for _, addr := range addrs {
			wallets[addr] = kind
		}
	}
	threshold := cfg.CandidateThresholdBps
	if threshold <= 0 {
		threshold = DefaultCandidateThresholdBps
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		traces:     traces,
		fills:      fills,
		recipients: recipients,
		store:      store,
		wallets:    wallets,
		wrapped:    cfg.WrappedNative,
		threshold:  threshold,
		logger:     logger,
	}
}

// Attribute computes and persists the fee attribution of fill. It returns
// model.ErrTraceUnavailable when the trace cannot be fetched and
// model.ErrInvariantViolation when the fees add up to the whole price; in both
// cases nothing is persisted.
func (e *Engine) Attribute(ctx context.Context, fill model.FillEvent) (*model.Attribution, error) {
	attribution, err := e.Compute(ctx, fill)
	if err != nil {
		return nil, err
	}
	saved, err := e.store.SaveAttribution(ctx, fill.ID, attribution)
	if err != nil {
		return nil, fmt.Errorf("save attribution %s: %w", fill.ID, err)
	}
	if !saved {
		e.logger.Debug("fill already attributed", zap.String("fill_id", fill.ID))
	}
	return attribution, nil
}

// Compute derives the attribution without persisting it.
func (e *Engine) Compute(ctx context.Context, fill model.FillEvent) (*model.Attribution, error) {
	if fill.Price == nil || fill.Price.Sign() == 0 {
		return nil, fmt.Errorf("fill %s has no price", fill.ID)
	}
	trace, err := e.traces.Trace(ctx, fill.TxHash)
	if err != nil {
		return nil, err
	}
	txFills, err := e.fills.FillsForTx(ctx, fill.TxHash)
	if err != nil {
		return nil, fmt.Errorf("get fills for %s: %w", fill.TxHash, err)
	}

	collectionVolume := new(big.Int)
	protocolVolume := new(big.Int)
	counterparties := make(map[common.Address]struct{})
	for _, other := range txFills {
		if other.Price == nil {
			continue
		}
		if other.Contract == fill.Contract {
			collectionVolume.Add(collectionVolume, other.Price)
		}
		if other.OrderKind == fill.OrderKind {
			protocolVolume.Add(protocolVolume, other.Price)
		}
		counterparties[other.Maker] = struct{}{}
		counterparties[other.Taker] = struct{}{}
	}
	// The fill itself may be missing from the collector output, e.g. when the
	// decoder does not know its protocol.
	if collectionVolume.Sign() == 0 {
		collectionVolume.Set(fill.Price)
	}
	if protocolVolume.Sign() == 0 {
		protocolVolume.Set(fill.Price)
	}
	counterparties[fill.Maker] = struct{}{}
	counterparties[fill.Taker] = struct{}{}

	registered, err := e.recipients.Royalties(ctx, fill.Contract, fill.TokenID)
	if err != nil {
		return nil, fmt.Errorf("get royalty recipients: %w", err)
	}
	isRoyalty := make(map[common.Address]struct{}, len(registered))
	for _, r := range registered {
		isRoyalty[r.Recipient] = struct{}{}
	}

	diff := ComputeBalanceDiff(trace, fill.Currency, e.wrapped)
	addrs := make([]common.Address, 0, len(diff))
	for addr := range diff {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Hex() < addrs[j].Hex() })

	attribution := &model.Attribution{
		RoyaltyFeeBreakdown:     []model.FeeRecipient{},
		MarketplaceFeeBreakdown: []model.FeeRecipient{},
	}
	for _, addr := range addrs {
		inflow := diff.Inflow(addr)
		if inflow.Sign() == 0 {
			continue
		}
		if kind, ok := e.wallets[addr]; ok {
			if kind != fill.OrderKind {
				continue
			}
			bps := shareBps(inflow, protocolVolume)
			attribution.MarketplaceFeeBps += bps
			attribution.MarketplaceFeeBreakdown = append(attribution.MarketplaceFeeBreakdown, model.FeeRecipient{
				Kind: model.FeeKindMarketplace, Recipient: addr, Bps: bps, Source: string(kind),
			})
			continue
		}
		if _, ok := isRoyalty[addr]; ok {
			bps := shareBps(inflow, collectionVolume)
			attribution.RoyaltyFeeBps += bps
			attribution.RoyaltyFeeBreakdown = append(attribution.RoyaltyFeeBreakdown, model.FeeRecipient{
				Kind: model.FeeKindRoyalty, Recipient: addr, Bps: bps,
			})
			continue
		}
		if _, ok := counterparties[addr]; ok {
			continue
		}
		if share := shareBps(inflow, fill.Price); share < e.threshold {
			attribution.PossibleMissingRoyalties = append(attribution.PossibleMissingRoyalties, model.FeeRecipient{
				Kind: model.FeeKindRoyalty, Recipient: addr, Bps: share,
			})
		}
	}

	if total := attribution.TotalBps(); total >= 10000 {
		e.logger.Warn("discarding attribution",
			zap.String("fill_id", fill.ID),
			zap.String("tx_hash", fill.TxHash),
			zap.Int64("total_bps", total),
		)
		return nil, fmt.Errorf("%w: fill %s fees total %d bps", model.ErrInvariantViolation, fill.ID, total)
	}

	attribution.PaidFullRoyalty = true
	for _, r := range registered {
		if !containsRecipient(attribution.RoyaltyFeeBreakdown, r.Recipient) {
			attribution.PaidFullRoyalty = false
			break
		}
	}
	return attribution, nil
}

// AttributeTx attributes every fill of a transaction and returns the fills
// that were attributed.
func (e *Engine) AttributeTx(ctx context.Context, txHash string) ([]model.FillEvent, error) {
	fills, err := e.fills.FillsForTx(ctx, txHash)
	if err != nil {
		return nil, fmt.Errorf("get fills for %s: %w", txHash, err)
	}
	out := make([]model.FillEvent, 0, len(fills))
	for _, fill := range fills {
		attribution, err := e.Attribute(ctx, fill)
		if err != nil {
			e.logger.Warn("attribute fill failed", zap.String("fill_id", fill.ID), zap.Error(err))
			continue
		}
		fill.Attribution = attribution
		out = append(out, fill)
	}
	return out, nil
}

func shareBps(part, total *big.Int) int64 {
	if total.Sign() == 0 {
		return 0
	}
	return new(big.Int).Div(new(big.Int).Mul(part, big.NewInt(10000)), total).Int64()
}

func containsRecipient(fees []model.FeeRecipient, addr common.Address) bool {
	for _, fee := range fees {
		if fee.Recipient == addr {
			return true
		}
	}
	return false
}
