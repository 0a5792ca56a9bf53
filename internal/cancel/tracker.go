package cancel

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"orderScope/internal/model"
)

// Store records cancellations and applies them to stored orders. Every method
// returns the ids of orders whose status it changed.
type Store interface {
	// CancelOrder cancels one order unless it is already terminal.
	CancelOrder(ctx context.Context, id string) ([]string, error)
	// CancelNonce records a cancelled nonce and cancels active orders using it.
	CancelNonce(ctx context.Context, kind model.OrderKind, maker common.Address, nonce *big.Int) ([]string, error)
	// BulkCancel raises the maker's minimum nonce (never lowering it) and, in the
	// same transaction, cancels active orders below the new minimum.
	BulkCancel(ctx context.Context, kind model.OrderKind, maker common.Address, minNonce *big.Int) ([]string, error)
	// FillOrder marks one order filled unless it is already terminal.
	FillOrder(ctx context.Context, id string) ([]string, error)
	// FillNonce marks active orders using a consumed nonce as filled.
	FillNonce(ctx context.Context, kind model.OrderKind, maker common.Address, nonce *big.Int) ([]string, error)
}

// Notifier receives order updates.
type Notifier interface {
	Publish(ctx context.Context, updates []model.OrderUpdate) error
}

// Tracker applies cancellation events and nonce consumption.
type Tracker struct {
	store    Store
	notifier Notifier
	logger   *zap.Logger
}

func NewTracker(store Store, notifier Notifier, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{store: store, notifier: notifier, logger: logger}
}

// CancelOrder cancels a single order by id.
func (t *Tracker) CancelOrder(ctx context.Context, id, txHash string) error {
	ids, err := t.store.CancelOrder(ctx, id)
	if err != nil {
		return fmt.Errorf("cancel order %s: %w", id, err)
	}
	t.publish(ctx, ids, model.TriggerCancel, txHash)
	return nil
}

// FillOrder marks an order settled by a fill.
func (t *Tracker) FillOrder(ctx context.Context, id, txHash string) error {
	ids, err := t.store.FillOrder(ctx, id)
	if err != nil {
		return fmt.Errorf("fill order %s: %w", id, err)
	}
	t.publish(ctx, ids, model.TriggerSale, txHash)
	return nil
}

// Apply applies a per-nonce or bulk cancellation.
func (t *Tracker) Apply(ctx context.Context, c model.NonceCancellation, txHash string) error {
	var (
		ids []string
		err error
	)
	switch {
	case c.MinNonce != nil:
		ids, err = t.store.BulkCancel(ctx, c.Kind, c.Maker, c.MinNonce)
	case c.Nonce != nil:
		ids, err = t.store.CancelNonce(ctx, c.Kind, c.Maker, c.Nonce)
	default:
		return fmt.Errorf("cancellation for %s has neither nonce nor min nonce", c.Maker.Hex())
	}
	if err != nil {
		return fmt.Errorf("apply cancellation for %s: %w", c.Maker.Hex(), err)
	}
	if len(ids) > 0 {
		t.logger.Info("orders cancelled",
			zap.String("kind", string(c.Kind)),
			zap.String("maker", c.Maker.Hex()),
			zap.Int("count", len(ids)),
		)
	}
	t.publish(ctx, ids, model.TriggerCancel, txHash)
	return nil
}

// Consume marks orders that spent a nonce in a fill as filled.
func (t *Tracker) Consume(ctx context.Context, c model.NonceCancellation, txHash string) error {
	if c.Nonce == nil {
		return nil
	}
	ids, err := t.store.FillNonce(ctx, c.Kind, c.Maker, c.Nonce)
	if err != nil {
		return fmt.Errorf("consume nonce for %s: %w", c.Maker.Hex(), err)
	}
	t.publish(ctx, ids, model.TriggerSale, txHash)
	return nil
}

func (t *Tracker) publish(ctx context.Context, ids []string, trigger model.Trigger, txHash string) {
	if len(ids) == 0 || t.notifier == nil {
		return
	}
	updates := make([]model.OrderUpdate, 0, len(ids))
	for _, id := range ids {
		updates = append(updates, model.OrderUpdate{OrderID: id, Trigger: trigger, Context: fmt.Sprintf("%s-%s", trigger, txHash)})
	}
	if err := t.notifier.Publish(ctx, updates); err != nil {
		t.logger.Warn("publish order updates failed", zap.Int("count", len(updates)), zap.Error(err))
	}
}
