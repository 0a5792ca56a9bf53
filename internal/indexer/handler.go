package indexer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"orderScope/internal/exchange"
	"orderScope/internal/model"
)

// EventDecoder turns a raw log into a protocol event; nil means not ours.
type EventDecoder interface {
	Decode(log model.LogRecord) (*exchange.Event, error)
}

// OrderTracker applies on-chain cancellations and fills to stored orders.
type OrderTracker interface {
	CancelOrder(ctx context.Context, id, txHash string) error
	FillOrder(ctx context.Context, id, txHash string) error
	Apply(ctx context.Context, c model.NonceCancellation, txHash string) error
	Consume(ctx context.Context, c model.NonceCancellation, txHash string) error
}

// ListingProcessor ingests state-based orders announced by events.
type ListingProcessor interface {
	Process(ctx context.Context, raws []model.RawOrder) ([]model.OrderResult, error)
}

// FillStore persists settlement events.
type FillStore interface {
	SaveFills(ctx context.Context, fills []model.FillEvent) error
}

// Attributor computes and stores the fee split of a fill.
type Attributor interface {
	Attribute(ctx context.Context, fill model.FillEvent) (*model.Attribution, error)
}

// HandlerConfig wires the handler. Attributor may be nil.
type HandlerConfig struct {
	Decoder    EventDecoder
	Tracker    OrderTracker
	Listings   ListingProcessor
	Fills      FillStore
	Attributor Attributor
	Logger     *zap.Logger
}

// Handler is a log sink that applies decoded exchange events to the order book.
type Handler struct {
	decoder    EventDecoder
	tracker    OrderTracker
	listings   ListingProcessor
	fills      FillStore
	attributor Attributor
	logger     *zap.Logger
}

func NewHandler(cfg HandlerConfig) (*Handler, error) {
	if cfg.Decoder == nil {
		return nil, fmt.Errorf("decoder is nil")
	}
	if cfg.Tracker == nil {
		return nil, fmt.Errorf("tracker is nil")
	}
	if cfg.Fills == nil {
		return nil, fmt.Errorf("fill store is nil")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		decoder:    cfg.Decoder,
		tracker:    cfg.Tracker,
		listings:   cfg.Listings,
		fills:      cfg.Fills,
		attributor: cfg.Attributor,
		logger:     logger,
	}, nil
}

// PutLogBatch implements storage.Storage. Logs are applied in the order given,
// which the runner keeps as block then log index order. Store errors abort the
// batch so the checkpoint is not advanced past it.
func (h *Handler) PutLogBatch(ctx context.Context, logs []model.LogRecord) error {
	var settled []model.FillEvent
	for _, log := range logs {
		if log.Removed {
			continue
		}
		ev, err := h.decoder.Decode(log)
		if err != nil {
			h.logger.Warn("decode log failed", zap.Error(err), zap.String("tx_hash", log.TxHash), zap.Uint64("log_index", log.LogIndex))
			continue
		}
		if ev == nil {
			continue
		}
		fills, err := h.apply(ctx, ev)
		if err != nil {
			return fmt.Errorf("apply %s at %s:%d: %w", ev.Name, log.TxHash, log.LogIndex, err)
		}
		settled = append(settled, fills...)
	}

	h.attribute(ctx, settled)
	return nil
}

func (h *Handler) apply(ctx context.Context, ev *exchange.Event) ([]model.FillEvent, error) {
	txHash := ev.Log.TxHash

	if ev.CancelledID != "" {
		if err := h.tracker.CancelOrder(ctx, ev.CancelledID, txHash); err != nil {
			return nil, err
		}
	}
	if ev.Cancellation != nil {
		if err := h.tracker.Apply(ctx, *ev.Cancellation, txHash); err != nil {
			return nil, err
		}
	}
	if ev.ConsumedNonce != nil {
		if err := h.tracker.Consume(ctx, *ev.ConsumedNonce, txHash); err != nil {
			return nil, err
		}
	}
	if ev.Listing != nil {
		if h.listings == nil {
			h.logger.Debug("listing ignored", zap.String("tx_hash", txHash))
		} else {
			results, err := h.listings.Process(ctx, []model.RawOrder{*ev.Listing})
			if err != nil {
				return nil, err
			}
			for _, res := range results {
				h.logger.Debug("listing processed", zap.String("id", res.ID), zap.String("code", string(res.Code)))
			}
		}
	}

	var fills []model.FillEvent
	for _, fill := range ev.Fills {
		if fill.OrderKind == model.KindMint {
			continue
		}
		fills = append(fills, fill)
	}
	if len(fills) == 0 {
		return nil, nil
	}
	if err := h.fills.SaveFills(ctx, fills); err != nil {
		return nil, fmt.Errorf("save fills: %w", err)
	}
	for _, fill := range fills {
		if fill.OrderID == "" {
			continue
		}
		if err := h.tracker.FillOrder(ctx, fill.OrderID, txHash); err != nil {
			return nil, err
		}
	}
	return fills, nil
}

// attribute runs after the whole batch is stored; failures leave the fill
// unattributed and are only logged.
func (h *Handler) attribute(ctx context.Context, fills []model.FillEvent) {
	if h.attributor == nil {
		return
	}
	for _, fill := range fills {
		if _, err := h.attributor.Attribute(ctx, fill); err != nil {
			h.logger.Warn("attribution failed",
				zap.Error(err),
				zap.String("fill_id", fill.ID),
				zap.String("code", string(model.CodeOf(err))),
			)
		}
	}
}
