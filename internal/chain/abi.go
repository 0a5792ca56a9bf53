package chain

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const erc20ABIJSON = `[
  {"inputs": [{"name": "owner", "type": "address"}], "name": "balanceOf", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"name": "owner", "type": "address"}, {"name": "spender", "type": "address"}], "name": "allowance", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "decimals", "outputs": [{"type": "uint8"}], "stateMutability": "view", "type": "function"}
]`

const erc721ABIJSON = `[
  {"inputs": [{"name": "tokenId", "type": "uint256"}], "name": "ownerOf", "outputs": [{"type": "address"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"name": "owner", "type": "address"}, {"name": "operator", "type": "address"}], "name": "isApprovedForAll", "outputs": [{"type": "bool"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"name": "interfaceId", "type": "bytes4"}], "name": "supportsInterface", "outputs": [{"type": "bool"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"name": "tokenId", "type": "uint256"}, {"name": "salePrice", "type": "uint256"}], "name": "royaltyInfo", "outputs": [{"name": "receiver", "type": "address"}, {"name": "royaltyAmount", "type": "uint256"}], "stateMutability": "view", "type": "function"}
]`

const erc1155ABIJSON = `[
  {"inputs": [{"name": "account", "type": "address"}, {"name": "id", "type": "uint256"}], "name": "balanceOf", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"}
]`

const registryABIJSON = `[
  {"inputs": [{"name": "offerer", "type": "address"}], "name": "getCounter", "outputs": [{"name": "counter", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"name": "registrant", "type": "address"}, {"name": "operator", "type": "address"}], "name": "isOperatorFiltered", "outputs": [{"type": "bool"}], "stateMutability": "view", "type": "function"}
]`

type lazyABI struct {
	raw    string
	once   sync.Once
	parsed abi.ABI
	err    error
}

func (l *lazyABI) get() (abi.ABI, error) {
	l.once.Do(func() {
		l.parsed, l.err = abi.JSON(strings.NewReader(l.raw))
	})
	return l.parsed, l.err
}

var (
	erc20ABI    = &lazyABI{raw: erc20ABIJSON}
	erc721ABI   = &lazyABI{raw: erc721ABIJSON}
	erc1155ABI  = &lazyABI{raw: erc1155ABIJSON}
	registryABI = &lazyABI{raw: registryABIJSON}
)
