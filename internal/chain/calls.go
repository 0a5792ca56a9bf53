package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"orderScope/internal/model"
)

var (
	interfaceERC721  = [4]byte{0x80, 0xac, 0x58, 0xcd}
	interfaceERC1155 = [4]byte{0xd9, 0xb6, 0x7a, 0x26}
)

// ErrUnknownContractKind is returned when a contract reports neither ERC721 nor ERC1155 support.
var ErrUnknownContractKind = errors.New("contract is neither erc721 nor erc1155")

func (c *Client) call(ctx context.Context, lazy *lazyABI, to common.Address, method string, args ...interface{}) ([]interface{}, error) {
	parsed, err := lazy.get()
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}
	return callMethod(ctx, c, parsed, to, method, args...)
}

type contractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

func callMethod(ctx context.Context, caller contractCaller, parsed abi.ABI, to common.Address, method string, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &to, Data: data}
	resp, err := caller.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}

// NativeBalance returns the native currency balance of owner at the chain head.
func (c *Client) NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	return c.ethClient.BalanceAt(ctx, owner, nil)
}

// ERC20Balance returns owner's balance of token.
func (c *Client) ERC20Balance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	values, err := c.call(ctx, erc20ABI, token, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return AsBigInt(values[0])
}

// ERC20Allowance returns how much spender may pull from owner.
func (c *Client) ERC20Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	values, err := c.call(ctx, erc20ABI, token, "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	return AsBigInt(values[0])
}

// ERC20Decimals returns the token's decimals.
func (c *Client) ERC20Decimals(ctx context.Context, token common.Address) (uint8, error) {
	values, err := c.call(ctx, erc20ABI, token, "decimals")
	if err != nil {
		return 0, err
	}
	return AsUint8(values[0])
}

// ERC721Owner returns the owner of an ERC721 token.
func (c *Client) ERC721Owner(ctx context.Context, contract common.Address, tokenID *big.Int) (common.Address, error) {
	values, err := c.call(ctx, erc721ABI, contract, "ownerOf", tokenID)
	if err != nil {
		return common.Address{}, err
	}
	return AsAddress(values[0])
}

// ERC1155Balance returns owner's balance of an ERC1155 token.
func (c *Client) ERC1155Balance(ctx context.Context, contract, owner common.Address, tokenID *big.Int) (*big.Int, error) {
	values, err := c.call(ctx, erc1155ABI, contract, "balanceOf", owner, tokenID)
	if err != nil {
		return nil, err
	}
	return AsBigInt(values[0])
}

// IsApprovedForAll reports whether operator may transfer owner's tokens of contract.
// The call is identical for ERC721 and ERC1155.
func (c *Client) IsApprovedForAll(ctx context.Context, contract, owner, operator common.Address) (bool, error) {
	values, err := c.call(ctx, erc721ABI, contract, "isApprovedForAll", owner, operator)
	if err != nil {
		return false, err
	}
	return AsBool(values[0])
}

// ContractKind resolves the token standard of contract through ERC165, caching the result.
func (c *Client) ContractKind(ctx context.Context, contract common.Address) (model.ContractKind, error) {
	c.mu.RLock()
	kind, ok := c.kindCache[contract]
	c.mu.RUnlock()
	if ok {
		return kind, nil
	}

	supports := func(id [4]byte) (bool, error) {
		values, err := c.call(ctx, erc721ABI, contract, "supportsInterface", id)
		if err != nil {
			return false, err
		}
		return AsBool(values[0])
	}

	is721, err := supports(interfaceERC721)
	if err != nil {
		return "", err
	}
	switch {
	case is721:
		kind = model.ContractERC721
	default:
		is1155, err := supports(interfaceERC1155)
		if err != nil {
			return "", err
		}
		if !is1155 {
			return "", ErrUnknownContractKind
		}
		kind = model.ContractERC1155
	}

	c.mu.Lock()
	c.kindCache[contract] = kind
	c.mu.Unlock()
	return kind, nil
}

// SeaportCounter returns the maker's current bulk-cancel counter on a Seaport exchange.
func (c *Client) SeaportCounter(ctx context.Context, exchange, maker common.Address) (*big.Int, error) {
	values, err := c.call(ctx, registryABI, exchange, "getCounter", maker)
	if err != nil {
		return nil, err
	}
	return AsBigInt(values[0])
}

// IsOperatorFiltered asks the operator-filter registry whether collection blocks operator.
// A registry without code at this address reports nothing as filtered.
func (c *Client) IsOperatorFiltered(ctx context.Context, registry, collection, operator common.Address) (bool, error) {
	code, err := c.ethClient.CodeAt(ctx, registry, nil)
	if err != nil {
		return false, fmt.Errorf("get registry code: %w", err)
	}
	if len(code) == 0 {
		return false, nil
	}
	values, err := c.call(ctx, registryABI, registry, "isOperatorFiltered", collection, operator)
	if err != nil {
		return false, err
	}
	return AsBool(values[0])
}

// RoyaltyInfo performs the EIP-2981 lookup for a sale of tokenID at salePrice.
func (c *Client) RoyaltyInfo(ctx context.Context, contract common.Address, tokenID, salePrice *big.Int) (common.Address, *big.Int, error) {
	values, err := c.call(ctx, erc721ABI, contract, "royaltyInfo", tokenID, salePrice)
	if err != nil {
		return common.Address{}, nil, err
	}
	if len(values) != 2 {
		return common.Address{}, nil, fmt.Errorf("unexpected royaltyInfo values: %d", len(values))
	}
	receiver, err := AsAddress(values[0])
	if err != nil {
		return common.Address{}, nil, err
	}
	amount, err := AsBigInt(values[1])
	if err != nil {
		return common.Address{}, nil, err
	}
	return receiver, amount, nil
}
