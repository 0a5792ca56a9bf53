package config

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"orderScope/internal/model"
)

// Address parses an optional address setting; empty yields the zero address.
func Address(name, value string) (common.Address, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("invalid %s address: %s", name, value)
	}
	return common.HexToAddress(value), nil
}

// Conduits parses conduit key -> conduit address pairs.
func (p Protocols) Conduits() (map[common.Hash]common.Address, error) {
	out := make(map[common.Hash]common.Address, len(p.SeaportConduits))
	for key, addr := range p.SeaportConduits {
		if len(strings.TrimPrefix(key, "0x")) != 64 {
			return nil, fmt.Errorf("invalid conduit key: %s", key)
		}
		conduit, err := Address("conduit", addr)
		if err != nil {
			return nil, err
		}
		out[common.HexToHash(key)] = conduit
	}
	return out, nil
}

// Wallets parses the marketplace fee wallets of every order kind.
func (p Protocols) Wallets() (map[model.OrderKind][]common.Address, error) {
	out := make(map[model.OrderKind][]common.Address, len(p.FeeWallets))
	for kind, raw := range p.FeeWallets {
		fields := strings.FieldsFunc(raw, func(r rune) bool {
			return r == ',' || r == '|' || r == ' ' || r == '[' || r == ']'
		})
		for _, field := range fields {
			addr, err := Address("fee wallet", field)
			if err != nil {
				return nil, err
			}
			out[model.OrderKind(kind)] = append(out[model.OrderKind(kind)], addr)
		}
	}
	return out, nil
}
