package chain

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"orderScope/internal/model"
)

// ToLogRecord converts a go-ethereum log into the normalized record.
func ToLogRecord(chainID uint64, log types.Log, timestamp uint64, ingestedAt time.Time) model.LogRecord {
	topics := make([]string, 0, len(log.Topics))
	for _, topic := range log.Topics {
		topics = append(topics, topic.Hex())
	}

	return model.LogRecord{
		ChainID:     chainID,
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash.Hex(),
		TxHash:      log.TxHash.Hex(),
		TxIndex:     uint64(log.TxIndex),
		LogIndex:    uint64(log.Index),
		Address:     log.Address.Hex(),
		Topics:      topics,
		Data:        hexutil.Encode(log.Data),
		Removed:     log.Removed,
		Timestamp:   timestamp,
		IngestedAt:  ingestedAt.UTC().Format(time.RFC3339Nano),
	}
}

// TransactionLogs returns every log emitted by a mined transaction, in log index order.
func (c *Client) TransactionLogs(ctx context.Context, txHash common.Hash) ([]model.LogRecord, error) {
	receipt, err := c.ethClient.TransactionReceipt(ctx, txHash)
	if err != nil {
		return nil, fmt.Errorf("get receipt %s: %w", txHash.Hex(), err)
	}
	chainID, err := c.cachedChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("get chain id: %w", err)
	}
	ts, err := c.BlockTimestamp(ctx, receipt.BlockNumber.Uint64())
	if err != nil {
		return nil, fmt.Errorf("block timestamp %d: %w", receipt.BlockNumber.Uint64(), err)
	}

	now := time.Now().UTC()
	records := make([]model.LogRecord, 0, len(receipt.Logs))
	for _, log := range receipt.Logs {
		if log == nil {
			continue
		}
		records = append(records, ToLogRecord(chainID, *log, ts, now))
	}
	return records, nil
}
