package orderbook

import (
	"context"

	"orderScope/internal/model"
)

// Store persists canonical orders.
type Store interface {
	OrderExists(ctx context.Context, id string) (bool, error)
	// InsertOrders writes the batch in one transaction. Rows whose id already
	// exists are skipped; the ids actually inserted are returned. Any other
	// failure leaves the store untouched. Nonces are re-checked against the
	// maker's floor and cancellations inside the write: an order invalidated
	// since it was verified is stored cancelled and its FillabilityStatus is
	// set to cancelled in place.
	InsertOrders(ctx context.Context, orders []*model.Order) ([]string, error)
	// ApplyStateOrder applies state-based listing state under a row lock,
	// using ResolveState to decide the outcome.
	ApplyStateOrder(ctx context.Context, order *model.Order) (Resolution, error)
	// UpdateStatus changes status fields of a non-terminal order.
	UpdateStatus(ctx context.Context, id string, status model.FillabilityStatus, approval model.ApprovalStatus) (bool, error)
}

// Notifier receives order updates for downstream cache recomputation.
type Notifier interface {
	Publish(ctx context.Context, updates []model.OrderUpdate) error
}

// NopNotifier drops updates.
type NopNotifier struct{}

func (NopNotifier) Publish(context.Context, []model.OrderUpdate) error { return nil }

// Archiver keeps raw payloads for replay and audit.
type Archiver interface {
	ArchiveRawOrders(ctx context.Context, raws []model.RawOrder) error
}
