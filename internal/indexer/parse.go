package indexer

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ParseAddresses resolves --address values. Each entry is a hex address or
// the name of a configured exchange (matched case-insensitively). Duplicates
// collapse; the zero address is rejected.
func ParseAddresses(inputs []string, named map[string]common.Address) ([]common.Address, error) {
	addresses := make([]common.Address, 0, len(inputs))
	seen := make(map[common.Address]struct{}, len(inputs))
	for _, input := range inputs {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		var address common.Address
		switch {
		case common.IsHexAddress(input):
			address = common.HexToAddress(input)
		default:
			v, ok := named[strings.ToLower(input)]
			if !ok {
				return nil, fmt.Errorf("invalid address: %s", input)
			}
			address = v
		}
		if address == (common.Address{}) {
			return nil, fmt.Errorf("address %s resolves to the zero address", input)
		}
		if _, dup := seen[address]; dup {
			continue
		}
		seen[address] = struct{}{}
		addresses = append(addresses, address)
	}
	return addresses, nil
}

// ParseTopics narrows the watched topic0 set. Every entry must be one of the
// known event topics, since logs under any other topic cannot be decoded.
func ParseTopics(inputs []string, known []common.Hash) ([]common.Hash, error) {
	allowed := make(map[common.Hash]struct{}, len(known))
	for _, h := range known {
		allowed[h] = struct{}{}
	}
	topics := make([]common.Hash, 0, len(inputs))
	seen := make(map[common.Hash]struct{}, len(inputs))
	for _, input := range inputs {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		data, err := hexutil.Decode(input)
		if err != nil {
			return nil, fmt.Errorf("invalid topic0: %s", input)
		}
		if len(data) != common.HashLength {
			return nil, fmt.Errorf("invalid topic0 length: %s", input)
		}
		topic := common.BytesToHash(data)
		if _, ok := allowed[topic]; !ok {
			return nil, fmt.Errorf("topic0 %s is not a decoded exchange event", input)
		}
		if _, dup := seen[topic]; dup {
			continue
		}
		seen[topic] = struct{}{}
		topics = append(topics, topic)
	}
	return topics, nil
}
