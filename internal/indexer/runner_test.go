package indexer

import (
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"orderScope/internal/model"
	"orderScope/internal/storage/memory"
)

type fakeChain struct {
	latest uint64
	logs   []types.Log
	calls  [][2]uint64
	// maxSpan rejects getLogs calls wider than this many blocks when set.
	maxSpan uint64
}

func (c *fakeChain) GetChainID(context.Context) (*big.Int, error) { return big.NewInt(1), nil }

func (c *fakeChain) LatestBlockNumber(context.Context) (uint64, error) { return c.latest, nil }

func (c *fakeChain) BlockTimestamp(_ context.Context, number uint64) (uint64, error) {
	return 1_700_000_000 + number, nil
}

func (c *fakeChain) FilterLogs(_ context.Context, from, to uint64, _ []common.Address, _ []common.Hash) ([]types.Log, error) {
	c.calls = append(c.calls, [2]uint64{from, to})
	if c.maxSpan > 0 && to-from+1 > c.maxSpan {
		return nil, errors.New("query returned more than 10000 results")
	}
	var out []types.Log
	for _, log := range c.logs {
		if log.BlockNumber >= from && log.BlockNumber <= to {
			out = append(out, log)
		}
	}
	return out, nil
}

type collectingSink struct {
	records []model.LogRecord
}

func (s *collectingSink) PutLogBatch(_ context.Context, logs []model.LogRecord) error {
	s.records = append(s.records, logs...)
	return nil
}

var exchangeAddr = common.HexToAddress("0x00000000000000ADc04C56Bf30aC9d3c0aAF14dC")

func TestRunnerResumesFromStateCheckpoint(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	if err := store.SaveState(ctx, "indexer", 103); err != nil {
		t.Fatalf("seed state: %v", err)
	}

	chain := &fakeChain{
		latest: 110,
		logs: []types.Log{
			{Address: exchangeAddr, BlockNumber: 102, TxHash: common.HexToHash("0x01"), Index: 0},
			{Address: exchangeAddr, BlockNumber: 105, TxHash: common.HexToHash("0x02"), Index: 3},
		},
	}
	sink := &collectingSink{}
	cfg := RunConfig{
		FromBlock:     100,
		Addresses:     []common.Address{exchangeAddr},
		BatchSize:     4,
		Confirmations: 2,
	}
	runner := NewRunner(cfg, chain, sink, NewStateCheckpoint(store, "indexer"), nil)
	if err := runner.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(sink.records) != 1 || sink.records[0].BlockNumber != 105 {
		t.Fatalf("expected only the log after the checkpoint, got %+v", sink.records)
	}
	if sink.records[0].Timestamp != 1_700_000_105 || sink.records[0].LogIndex != 3 {
		t.Fatalf("unexpected record %+v", sink.records[0])
	}
	if got := chain.calls[len(chain.calls)-1][1]; got != 108 {
		t.Fatalf("expected head 108 after confirmations, got %d", got)
	}
	last, ok, err := store.LoadState(ctx, "indexer")
	if err != nil || !ok || last != 108 {
		t.Fatalf("expected checkpoint 108, got %d %v %v", last, ok, err)
	}
}

func TestRunnerFollowStopsOnCancel(t *testing.T) {
	chain := &fakeChain{latest: 5}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	cfg := RunConfig{
		Addresses:    []common.Address{exchangeAddr},
		BatchSize:    10,
		Follow:       true,
		PollInterval: 5 * time.Millisecond,
	}
	runner := NewRunner(cfg, chain, &collectingSink{}, nil, nil)
	if err := runner.Run(ctx); err != context.DeadlineExceeded {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if len(chain.calls) != 1 {
		t.Fatalf("expected a single range fetch without new blocks, got %v", chain.calls)
	}
}

func TestCheckpointStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewCheckpointStore(filepath.Join(t.TempDir(), "state", "checkpoint.json"), true)
	if _, ok, err := store.Load(ctx); err != nil || ok {
		t.Fatalf("expected empty checkpoint, got %v %v", ok, err)
	}
	if err := store.Save(ctx, 42); err != nil {
		t.Fatalf("save: %v", err)
	}
	last, ok, err := store.Load(ctx)
	if err != nil || !ok || last != 42 {
		t.Fatalf("expected 42, got %d %v %v", last, ok, err)
	}
}

func TestRunnerSplitsOversizedRanges(t *testing.T) {
	chain := &fakeChain{
		latest:  107,
		maxSpan: 2,
		logs: []types.Log{
			{BlockNumber: 100, TxHash: common.HexToHash("0x01"), Index: 0},
			{BlockNumber: 103, TxHash: common.HexToHash("0x02"), Index: 0},
			{BlockNumber: 107, TxHash: common.HexToHash("0x03"), Index: 1},
		},
	}
	sink := &collectingSink{}
	runner := NewRunner(RunConfig{
		FromBlock:    100,
		ToBlock:      107,
		Addresses:    []common.Address{exchangeAddr},
		BatchSize:    8,
		MaxRetries:   3,
		RetryBackoff: time.Millisecond,
	}, chain, sink, nil, nil)

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	want := [][2]uint64{{100, 107}, {100, 103}, {100, 101}, {102, 103}, {104, 107}, {104, 105}, {106, 107}}
	if !reflect.DeepEqual(chain.calls, want) {
		t.Fatalf("getLogs calls: got %v want %v", chain.calls, want)
	}
	if len(sink.records) != 3 || sink.records[2].BlockNumber != 107 {
		t.Fatalf("unexpected records: %+v", sink.records)
	}
}
