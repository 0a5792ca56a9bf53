package fillability

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"orderScope/internal/model"
)

// OrderStore is the subset of the order store revalidation uses.
type OrderStore interface {
	OrdersForRevalidation(ctx context.Context, maker *common.Address, limit int) ([]*model.Order, error)
	UpdateStatus(ctx context.Context, id string, status model.FillabilityStatus, approval model.ApprovalStatus) (bool, error)
}

// Notifier receives order updates.
type Notifier interface {
	Publish(ctx context.Context, updates []model.OrderUpdate) error
}

// Change records one status transition made by revalidation.
type Change struct {
	OrderID string
	From    model.FillabilityStatus
	To      model.FillabilityStatus
}

// Revalidator re-runs the verifier for stored, non-terminal orders.
type Revalidator struct {
	verifier    *Verifier
	store       OrderStore
	notifier    Notifier
	concurrency int
	logger      *zap.Logger
}

func NewRevalidator(verifier *Verifier, store OrderStore, notifier Notifier, concurrency int, logger *zap.Logger) *Revalidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if concurrency <= 0 {
		concurrency = 20
	}
	return &Revalidator{verifier: verifier, store: store, notifier: notifier, concurrency: concurrency, logger: logger}
}

// Revalidate checks up to limit orders (optionally of one maker) and persists
// every status that changed. Status may move back to fillable.
func (r *Revalidator) Revalidate(ctx context.Context, maker *common.Address, limit int) ([]Change, error) {
	orders, err := r.store.OrdersForRevalidation(ctx, maker, limit)
	if err != nil {
		return nil, fmt.Errorf("load orders: %w", err)
	}

	var (
		mu      sync.Mutex
		changes []Change
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, order := range orders {
		order := order
		if order.FillabilityStatus.Terminal() {
			continue
		}
		g.Go(func() error {
			status, approval, ok := r.evaluate(gctx, order)
			if !ok || (status == order.FillabilityStatus && approval == order.ApprovalStatus) {
				return nil
			}
			updated, err := r.store.UpdateStatus(gctx, order.ID, status, approval)
			if err != nil {
				r.logger.Warn("persist revalidated status failed", zap.String("order_id", order.ID), zap.Error(err))
				return nil
			}
			if !updated {
				return nil
			}
			mu.Lock()
			changes = append(changes, Change{OrderID: order.ID, From: order.FillabilityStatus, To: status})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(changes) > 0 && r.notifier != nil {
		updates := make([]model.OrderUpdate, 0, len(changes))
		for _, c := range changes {
			trigger := model.TriggerRevalidation
			if c.To == model.StatusCancelled {
				trigger = model.TriggerCancel
			}
			updates = append(updates, model.OrderUpdate{
				OrderID: c.OrderID,
				Trigger: trigger,
				Context: fmt.Sprintf("revalidate-%s-%s", c.From, c.To),
			})
		}
		if err := r.notifier.Publish(ctx, updates); err != nil {
			r.logger.Warn("publish revalidation updates failed", zap.Error(err))
		}
	}
	return changes, nil
}

func (r *Revalidator) evaluate(ctx context.Context, order *model.Order) (model.FillabilityStatus, model.ApprovalStatus, bool) {
	result, err := r.verifier.Check(ctx, order, Options{SkipSignature: true})
	switch model.CodeOf(err) {
	case model.CodeSuccess:
		return result.Status, result.Approval, true
	case model.CodeExpired:
		return model.StatusExpired, order.ApprovalStatus, true
	case model.CodeCancelled:
		return model.StatusCancelled, order.ApprovalStatus, true
	default:
		r.logger.Warn("revalidation skipped",
			zap.String("order_id", order.ID),
			zap.String("kind", string(order.Kind)),
			zap.Error(err),
		)
		return "", "", false
	}
}
