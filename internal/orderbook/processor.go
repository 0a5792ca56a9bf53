package orderbook

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"orderScope/internal/fillability"
	"orderScope/internal/model"
)

// DefaultConcurrency bounds per-batch order processing.
const DefaultConcurrency = 20

// Canonicalizer turns raw protocol payloads into canonical orders.
type Canonicalizer interface {
	Canonicalize(raw model.RawOrder) (*model.Order, error)
}

// TokenSetResolver resolves and persists an order's token set.
type TokenSetResolver interface {
	Resolve(ctx context.Context, spec *model.TokenSetSpec) (model.TokenSet, error)
}

// Verifier evaluates fillability of a freshly canonicalized order.
type Verifier interface {
	Check(ctx context.Context, order *model.Order, opts fillability.Options) (fillability.Result, error)
}

// OperatorFilter reports whether a collection blocks an operator.
type OperatorFilter interface {
	IsOperatorFiltered(ctx context.Context, collection, operator common.Address) (bool, error)
}

// ProcessorConfig wires a Processor.
type ProcessorConfig struct {
	Canonicalizer Canonicalizer
	TokenSets     TokenSetResolver
	Verifier      Verifier
	Filter        OperatorFilter
	Store         Store
	Notifier      Notifier
	Archive       Archiver
	Concurrency   int
	Logger        *zap.Logger
}

// Processor ingests batches of raw orders.
type Processor struct {
	canonicalizer Canonicalizer
	tokenSets     TokenSetResolver
	verifier      Verifier
	filter        OperatorFilter
	store         Store
	notifier      Notifier
	archive       Archiver
	concurrency   int
	logger        *zap.Logger
}

func NewProcessor(cfg ProcessorConfig) *Processor {
	p := &Processor{
		canonicalizer: cfg.Canonicalizer,
		tokenSets:     cfg.TokenSets,
		verifier:      cfg.Verifier,
		filter:        cfg.Filter,
		store:         cfg.Store,
		notifier:      cfg.Notifier,
		archive:       cfg.Archive,
		concurrency:   cfg.Concurrency,
		logger:        cfg.Logger,
	}
	if p.concurrency <= 0 {
		p.concurrency = DefaultConcurrency
	}
	if p.notifier == nil {
		p.notifier = NopNotifier{}
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	return p
}

// item carries one batch entry through the pipeline.
type item struct {
	index  int
	order  *model.Order
	result model.OrderResult
	// pending is set for signature-based orders awaiting the bulk insert.
	pending bool
	trigger model.Trigger
}

// Process runs every raw order through canonicalization, token set resolution
// and fillability checks, then inserts accepted signature-based orders in one
// transaction. Results are returned in input order, one per raw order.
func (p *Processor) Process(ctx context.Context, raws []model.RawOrder) ([]model.OrderResult, error) {
	items := make([]*item, len(raws))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, raw := range raws {
		raw := raw
		it := &item{index: i, result: model.OrderResult{Kind: raw.Kind}}
		items[i] = it
		g.Go(func() error {
			p.processOne(gctx, raw, it)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	updates := p.insertPending(ctx, items)

	for _, it := range items {
		if it.trigger != "" {
			updates = append(updates, model.OrderUpdate{OrderID: it.order.ID, Trigger: it.trigger, Context: string(it.trigger) + "-" + it.order.ID})
		}
	}
	if len(updates) > 0 {
		if err := p.notifier.Publish(ctx, updates); err != nil {
			p.logger.Warn("publish order updates failed", zap.Int("count", len(updates)), zap.Error(err))
		}
	}
	if p.archive != nil && len(raws) > 0 {
		if err := p.archive.ArchiveRawOrders(ctx, raws); err != nil {
			p.logger.Warn("archive raw orders failed", zap.Int("count", len(raws)), zap.Error(err))
		}
	}

	results := make([]model.OrderResult, len(items))
	for i, it := range items {
		results[i] = it.result
	}
	return results, nil
}

func (p *Processor) processOne(ctx context.Context, raw model.RawOrder, it *item) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("order processing panicked", zap.String("kind", string(raw.Kind)), zap.Any("panic", r))
			it.pending = false
			it.trigger = ""
			it.result.Code = model.CodeNotFillable
			it.result.Detail = fmt.Sprintf("panic: %v", r)
		}
	}()

	if err := p.evaluate(ctx, raw, it); err != nil {
		it.result.Code = model.CodeOf(err)
		it.result.Detail = err.Error()
		if it.result.Code == model.CodeNotFillable {
			p.logger.Warn("order not fillable", zap.String("kind", string(raw.Kind)), zap.String("id", it.result.ID), zap.Error(err))
		}
	}
}

func (p *Processor) evaluate(ctx context.Context, raw model.RawOrder, it *item) error {
	order, err := p.canonicalizer.Canonicalize(raw)
	if err != nil {
		return err
	}
	it.order = order
	it.result.ID = order.ID
	it.result.Kind = order.Kind

	stateBased := order.Kind.Persistence() == model.PersistenceState
	if !stateBased {
		exists, err := p.store.OrderExists(ctx, order.ID)
		if err != nil {
			return fmt.Errorf("check order exists: %w", err)
		}
		if exists {
			return model.Reject(model.CodeAlreadyExists, "order %s", order.ID)
		}
	}

	if p.filter != nil && order.Side == model.SideSell {
		filtered, err := p.filter.IsOperatorFiltered(ctx, order.Contract, order.Operator)
		if err != nil {
			return fmt.Errorf("check operator filter: %w", err)
		}
		if filtered {
			return model.Reject(model.CodeFiltered, "operator %s blocked by %s", order.Operator.Hex(), order.Contract.Hex())
		}
	}

	set, err := p.tokenSets.Resolve(ctx, order.TokenSet)
	if err != nil {
		return err
	}
	order.TokenSetID = set.ID

	// Closed state-based listings are recorded as-is.
	if !(stateBased && order.FillabilityStatus.Terminal()) {
		res, err := p.verifier.Check(ctx, order, fillability.Options{})
		if err != nil {
			return err
		}
		order.FillabilityStatus = res.Status
		order.ApprovalStatus = res.Approval
		order.ContractKind = res.ContractKind
	}
	it.result.Status = order.FillabilityStatus

	if !stateBased {
		it.pending = true
		return nil
	}

	resolution, err := p.store.ApplyStateOrder(ctx, order)
	if err != nil {
		return fmt.Errorf("apply listing state: %w", err)
	}
	switch resolution {
	case ResolutionRedundant:
		return model.Reject(model.CodeRedundant, "order %s already has newer state", order.ID)
	case ResolutionNew:
		it.trigger = model.TriggerNewOrder
	default:
		it.trigger = model.TriggerReprice
	}
	switch order.FillabilityStatus {
	case model.StatusCancelled:
		it.trigger = model.TriggerCancel
	case model.StatusFilled:
		it.trigger = model.TriggerSale
	}
	it.result.Code = model.CodeSuccess
	return nil
}

// insertPending bulk-inserts accepted signature-based orders and fixes up
// their results. Duplicates within the batch resolve to the first occurrence.
func (p *Processor) insertPending(ctx context.Context, items []*item) []model.OrderUpdate {
	var (
		orders  []*model.Order
		waiting []*item
		seen    = make(map[string]struct{})
	)
	for _, it := range items {
		if !it.pending {
			continue
		}
		if _, dup := seen[it.order.ID]; dup {
			it.pending = false
			it.result.Code = model.CodeAlreadyExists
			it.result.Detail = "duplicate in batch"
			continue
		}
		seen[it.order.ID] = struct{}{}
		orders = append(orders, it.order)
		waiting = append(waiting, it)
	}
	if len(orders) == 0 {
		return nil
	}

	inserted, err := p.store.InsertOrders(ctx, orders)
	if err != nil {
		p.logger.Error("insert orders failed", zap.Int("count", len(orders)), zap.Error(err))
		for _, it := range waiting {
			it.result.Code = model.CodeNotFillable
			it.result.Detail = err.Error()
		}
		return nil
	}

	ok := make(map[string]struct{}, len(inserted))
	for _, id := range inserted {
		ok[id] = struct{}{}
	}
	var updates []model.OrderUpdate
	for _, it := range waiting {
		if _, found := ok[it.order.ID]; !found {
			it.result.Code = model.CodeAlreadyExists
			continue
		}
		if it.order.FillabilityStatus == model.StatusCancelled && it.result.Status != model.StatusCancelled {
			it.result.Code = model.CodeCancelled
			it.result.Status = model.StatusCancelled
			it.result.Detail = "nonce invalidated before insert"
			continue
		}
		it.result.Code = model.CodeSuccess
		updates = append(updates, model.OrderUpdate{
			OrderID: it.order.ID,
			Trigger: model.TriggerNewOrder,
			Context: "new-order-" + it.order.ID,
		})
	}
	return updates
}

// Validate reports missing dependencies before the processor is used.
func (p *Processor) Validate() error {
	if p.store == nil || p.canonicalizer == nil || p.tokenSets == nil || p.verifier == nil {
		return errors.New("orderbook: store, canonicalizer, token set resolver and verifier are required")
	}
	return nil
}
