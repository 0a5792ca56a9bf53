package exchange

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"orderScope/internal/model"
)

// DefaultOperatorFilterRegistry is the registry most collections that block
// marketplaces subscribe to.
var DefaultOperatorFilterRegistry = common.HexToAddress("0x000000000000AAeB6D7670E522A718067333cd4E")

// CounterReader reads Seaport's per-offerer counter.
type CounterReader interface {
	SeaportCounter(ctx context.Context, exchange, maker common.Address) (*big.Int, error)
}

// Counters exposes the on-chain bulk-cancel counters of the supported protocols.
type Counters struct {
	reader  CounterReader
	seaport common.Address
}

func NewCounters(reader CounterReader, seaportExchange common.Address) *Counters {
	return &Counters{reader: reader, seaport: seaportExchange}
}

// Counter returns ok=false for protocols without an on-chain counter.
func (c *Counters) Counter(ctx context.Context, kind model.OrderKind, maker common.Address) (*big.Int, bool, error) {
	if kind != model.KindSeaport || c.seaport == (common.Address{}) {
		return nil, false, nil
	}
	counter, err := c.reader.SeaportCounter(ctx, c.seaport, maker)
	if err != nil {
		return nil, false, err
	}
	return counter, true, nil
}

// FilterReader queries an operator-filter registry.
type FilterReader interface {
	IsOperatorFiltered(ctx context.Context, registry, collection, operator common.Address) (bool, error)
}

// OperatorFilter checks whether a collection blocks a settlement operator.
type OperatorFilter struct {
	reader   FilterReader
	registry common.Address
}

func NewOperatorFilter(reader FilterReader, registry common.Address) *OperatorFilter {
	if registry == (common.Address{}) {
		registry = DefaultOperatorFilterRegistry
	}
	return &OperatorFilter{reader: reader, registry: registry}
}

func (f *OperatorFilter) IsOperatorFiltered(ctx context.Context, collection, operator common.Address) (bool, error) {
	return f.reader.IsOperatorFiltered(ctx, f.registry, collection, operator)
}
