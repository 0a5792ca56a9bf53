package settlement

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"orderScope/internal/exchange"
	"orderScope/internal/model"
)

const defaultCacheTTL = 24 * time.Hour

// LogSource returns a mined transaction's logs.
type LogSource interface {
	TransactionLogs(ctx context.Context, txHash common.Hash) ([]model.LogRecord, error)
}

// EventDecoder decodes exchange logs.
type EventDecoder interface {
	Decode(log model.LogRecord) (*exchange.Event, error)
}

// Cache stores JSON values shared across processes.
type Cache interface {
	GetJSON(ctx context.Context, key string, dst any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

// Collector recovers every fill settled in a transaction.
type Collector struct {
	logs    LogSource
	decoder EventDecoder
	cache   Cache
	ttl     time.Duration
	group   singleflight.Group
	logger  *zap.Logger
}

func NewCollector(logs LogSource, decoder EventDecoder, cache Cache, ttl time.Duration, logger *zap.Logger) *Collector {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{logs: logs, decoder: decoder, cache: cache, ttl: ttl, logger: logger}
}

func cacheKey(txHash string) string {
	return "fills:tx:" + strings.ToLower(txHash)
}

// FillsForTx returns the fills of txHash in log order, excluding mints.
func (c *Collector) FillsForTx(ctx context.Context, txHash string) ([]model.FillEvent, error) {
	key := cacheKey(txHash)
	if c.cache != nil {
		var cached []model.FillEvent
		ok, err := c.cache.GetJSON(ctx, key, &cached)
		if err != nil {
			c.logger.Warn("read fills cache failed", zap.String("tx_hash", txHash), zap.Error(err))
		} else if ok {
			return cached, nil
		}
	}

	ch := c.group.DoChan(key, func() (interface{}, error) {
		shared := context.WithoutCancel(ctx)
		fills, err := c.collect(shared, txHash)
		if err != nil {
			return nil, err
		}
		if c.cache != nil {
			if err := c.cache.SetJSON(shared, key, fills, c.ttl); err != nil {
				c.logger.Warn("write fills cache failed", zap.String("tx_hash", txHash), zap.Error(err))
			}
		}
		return fills, nil
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}
	return res.Val.([]model.FillEvent), nil
}

func (c *Collector) collect(ctx context.Context, txHash string) ([]model.FillEvent, error) {
	records, err := c.logs.TransactionLogs(ctx, common.HexToHash(txHash))
	if err != nil {
		return nil, fmt.Errorf("get transaction logs: %w", err)
	}

	fills := make([]model.FillEvent, 0)
	for _, record := range records {
		if record.Removed {
			continue
		}
		ev, err := c.decoder.Decode(record)
		if err != nil {
			c.logger.Warn("decode log failed",
				zap.String("tx_hash", txHash),
				zap.Uint64("log_index", record.LogIndex),
				zap.Error(err),
			)
			continue
		}
		if ev == nil {
			continue
		}
		for _, fill := range ev.Fills {
			if fill.OrderKind == model.KindMint {
				continue
			}
			fills = append(fills, fill)
		}
	}
	return fills, nil
}
