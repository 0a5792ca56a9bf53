package royalty

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"orderScope/internal/chain"
	"orderScope/internal/model"
)

// TraceFetcher fetches a transaction's call trace from a node.
type TraceFetcher interface {
	TraceTransaction(ctx context.Context, txHash common.Hash) (*chain.CallFrame, error)
}

// Cache stores JSON values shared across processes.
type Cache interface {
	GetJSON(ctx context.Context, key string, dst any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

// CachedTraces fetches each transaction's trace at most once.
type CachedTraces struct {
	fetcher TraceFetcher
	cache   Cache
	ttl     time.Duration
	group   singleflight.Group
	logger  *zap.Logger
}

func NewCachedTraces(fetcher TraceFetcher, cache Cache, ttl time.Duration, logger *zap.Logger) *CachedTraces {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedTraces{fetcher: fetcher, cache: cache, ttl: ttl, logger: logger}
}

// Trace returns the call trace of txHash. Fetch failures are reported as
// model.ErrTraceUnavailable.
func (t *CachedTraces) Trace(ctx context.Context, txHash string) (*chain.CallFrame, error) {
	key := "trace:" + strings.ToLower(txHash)
	if t.cache != nil {
		var frame chain.CallFrame
		ok, err := t.cache.GetJSON(ctx, key, &frame)
		if err != nil {
			t.logger.Warn("read trace cache failed", zap.String("tx_hash", txHash), zap.Error(err))
		} else if ok {
			return &frame, nil
		}
	}

	// The shared fetch outlives any single caller so a cancelled first
	// caller does not fail the others waiting on it.
	ch := t.group.DoChan(key, func() (interface{}, error) {
		shared := context.WithoutCancel(ctx)
		frame, err := t.fetcher.TraceTransaction(shared, common.HexToHash(txHash))
		if err != nil {
			return nil, err
		}
		if frame == nil {
			return nil, errors.New("empty trace")
		}
		if t.cache != nil {
			if err := t.cache.SetJSON(shared, key, frame, t.ttl); err != nil {
				t.logger.Warn("write trace cache failed", zap.String("tx_hash", txHash), zap.Error(err))
			}
		}
		return frame, nil
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, fmt.Errorf("%w: %s: %v", model.ErrTraceUnavailable, txHash, res.Err)
	}
	return res.Val.(*chain.CallFrame), nil
}
