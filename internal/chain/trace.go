package chain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// CallFrame is one frame of a callTracer result.
type CallFrame struct {
	Type    string         `json:"type"`
	From    common.Address `json:"from"`
	To      common.Address `json:"to"`
	Value   *hexutil.Big   `json:"value,omitempty"`
	Gas     hexutil.Uint64 `json:"gas"`
	GasUsed hexutil.Uint64 `json:"gasUsed"`
	Input   hexutil.Bytes  `json:"input,omitempty"`
	Output  hexutil.Bytes  `json:"output,omitempty"`
	Error   string         `json:"error,omitempty"`
	Calls   []CallFrame    `json:"calls,omitempty"`
	Logs    []CallFrameLog `json:"logs,omitempty"`
}

// CallFrameLog is a log emitted inside a frame (callTracer withLog).
type CallFrameLog struct {
	Address common.Address `json:"address"`
	Topics  []common.Hash  `json:"topics"`
	Data    hexutil.Bytes  `json:"data"`
}

// Reverted reports whether the frame's effects were rolled back.
func (f *CallFrame) Reverted() bool {
	return f.Error != ""
}

type traceConfig struct {
	Tracer       string          `json:"tracer"`
	TracerConfig map[string]bool `json:"tracerConfig"`
	Timeout      string          `json:"timeout,omitempty"`
}

// TraceTransaction fetches the full internal call tree of a transaction,
// including emitted logs.
func (c *Client) TraceTransaction(ctx context.Context, txHash common.Hash) (*CallFrame, error) {
	var frame CallFrame
	cfg := traceConfig{
		Tracer:       "callTracer",
		TracerConfig: map[string]bool{"withLog": true},
		Timeout:      "30s",
	}
	if err := c.rpcClient.CallContext(ctx, &frame, "debug_traceTransaction", txHash, cfg); err != nil {
		return nil, fmt.Errorf("trace transaction %s: %w", txHash.Hex(), err)
	}
	return &frame, nil
}
