package indexer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"orderScope/internal/chain"
	"orderScope/internal/model"
	"orderScope/internal/storage"
)

// ChainReader is the slice of the RPC client the runner needs.
type ChainReader interface {
	GetChainID(ctx context.Context) (*big.Int, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
}

// RunConfig holds runtime settings for the indexer.
type RunConfig struct {
	FromBlock    uint64
	ToBlock      uint64
	Addresses    []common.Address
	Topic0       []common.Hash
	BatchSize    uint64
	MaxRetries   int
	RetryBackoff time.Duration
	// Confirmations keeps the head this many blocks behind the chain tip.
	Confirmations uint64
	// Follow keeps polling for new blocks once the range is caught up.
	Follow       bool
	PollInterval time.Duration
}

// Runner streams logs from the chain and hands them to the sink in block order.
type Runner struct {
	cfg        RunConfig
	chain      ChainReader
	storage    storage.Storage
	logger     *zap.Logger
	seen       map[string]struct{}
	checkpoint Checkpointer
	retry      retryPolicy
}

// NewRunner builds a Runner with its dependencies. A nil checkpointer always starts at FromBlock.
func NewRunner(cfg RunConfig, chainClient ChainReader, storageSink storage.Storage, checkpoint Checkpointer, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:        cfg,
		chain:      chainClient,
		storage:    storageSink,
		logger:     logger,
		seen:       make(map[string]struct{}),
		checkpoint: checkpoint,
		retry:      newRetryPolicy(cfg.MaxRetries, cfg.RetryBackoff, logger),
	}
}

// Run executes the indexing loop.
func (r *Runner) Run(ctx context.Context) error {
	if r.chain == nil {
		return fmt.Errorf("chain client is nil")
	}
	if r.storage == nil {
		return fmt.Errorf("storage is nil")
	}
	if r.cfg.BatchSize == 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}
	if len(r.cfg.Addresses) == 0 {
		return fmt.Errorf("at least one address is required")
	}

	chainID, err := r.chain.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}
	if !chainID.IsUint64() {
		return fmt.Errorf("chain id does not fit in uint64: %s", chainID)
	}
	chainIDValue := chainID.Uint64()

	from := r.cfg.FromBlock
	if r.checkpoint != nil {
		last, ok, err := r.checkpoint.Load(ctx)
		if err != nil {
			return fmt.Errorf("load checkpoint: %w", err)
		}
		if ok && last >= from {
			from = last + 1
			r.logger.Info("resume from checkpoint", zap.Uint64("last_processed", last), zap.Uint64("from", from))
		}
	}

	for {
		to, err := r.head(ctx)
		if err != nil {
			return err
		}

		if from <= to {
			if err := r.sync(ctx, chainIDValue, from, to); err != nil {
				return err
			}
			from = to + 1
		} else if !r.cfg.Follow {
			r.logger.Info("nothing to sync", zap.Uint64("from", from), zap.Uint64("to", to))
		}

		if !r.cfg.Follow || r.cfg.ToBlock != 0 {
			return nil
		}

		interval := r.cfg.PollInterval
		if interval <= 0 {
			interval = 12 * time.Second
		}
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (r *Runner) head(ctx context.Context) (uint64, error) {
	if r.cfg.ToBlock != 0 {
		return r.cfg.ToBlock, nil
	}
	var latest uint64
	err := r.retry.do(ctx, "latest block", func(ctx context.Context) error {
		var err error
		latest, err = r.chain.LatestBlockNumber(ctx)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("get latest block: %w", err)
	}
	if latest < r.cfg.Confirmations {
		return 0, nil
	}
	return latest - r.cfg.Confirmations, nil
}

func (r *Runner) sync(ctx context.Context, chainID, from, to uint64) error {
	ranges, err := SplitRange(from, to, r.cfg.BatchSize)
	if err != nil {
		return err
	}
	clear(r.seen)

	for _, blockRange := range ranges {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		r.logger.Info("fetch logs", zap.Stringer("range", blockRange))

		logs, err := r.filterLogs(ctx, blockRange)
		if err != nil {
			return fmt.Errorf("filter logs: %w", err)
		}

		ingestedAt := time.Now().UTC()
		records := make([]model.LogRecord, 0, len(logs))
		for _, log := range logs {
			if r.isDuplicate(log) {
				continue
			}

			ts, err := r.blockTimestampWithRetry(ctx, log.BlockNumber)
			if err != nil {
				return fmt.Errorf("block timestamp %d: %w", log.BlockNumber, err)
			}
			records = append(records, chain.ToLogRecord(chainID, log, ts, ingestedAt))
		}

		if err := r.storage.PutLogBatch(ctx, records); err != nil {
			return fmt.Errorf("store logs: %w", err)
		}

		if r.checkpoint != nil {
			if err := r.checkpoint.Save(ctx, blockRange.To); err != nil {
				return fmt.Errorf("save checkpoint: %w", err)
			}
		}

		r.logger.Info("batch complete", zap.Int("logs", len(records)), zap.Stringer("range", blockRange))
	}

	return nil
}

// filterLogs fetches one batch. Ranges the provider refuses as too large are
// halved until they fit; results stay in block order.
func (r *Runner) filterLogs(ctx context.Context, blockRange BlockRange) ([]types.Log, error) {
	var logs []types.Log
	err := r.retry.do(ctx, "filter logs", func(ctx context.Context) error {
		var err error
		logs, err = r.chain.FilterLogs(ctx, blockRange.From, blockRange.To, r.cfg.Addresses, r.cfg.Topic0)
		return classifyFilterError(err)
	}, zap.Stringer("range", blockRange))
	if !errors.Is(err, errRangeTooLarge) {
		return logs, err
	}
	lo, hi, ok := blockRange.Split()
	if !ok {
		return nil, err
	}
	r.logger.Info("log range too large, splitting", zap.Stringer("range", blockRange))
	first, err := r.filterLogs(ctx, lo)
	if err != nil {
		return nil, err
	}
	second, err := r.filterLogs(ctx, hi)
	if err != nil {
		return nil, err
	}
	return append(first, second...), nil
}

func (r *Runner) blockTimestampWithRetry(ctx context.Context, blockNumber uint64) (uint64, error) {
	var ts uint64
	err := r.retry.do(ctx, "block timestamp", func(ctx context.Context) error {
		var err error
		ts, err = r.chain.BlockTimestamp(ctx, blockNumber)
		return err
	}, zap.Uint64("block_number", blockNumber))
	return ts, err
}

// isDuplicate drops logs repeated within one sync pass. Sinks still see
// replays after a restart.
func (r *Runner) isDuplicate(log types.Log) bool {
	id := fmt.Sprintf("%d:%s:%d", log.BlockNumber, log.TxHash.Hex(), log.Index)
	if _, ok := r.seen[id]; ok {
		return true
	}
	r.seen[id] = struct{}{}
	return false
}
