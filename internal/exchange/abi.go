package exchange

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const seaportEventsABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "bytes32", "name": "orderHash", "type": "bytes32"},
      {"indexed": true, "internalType": "address", "name": "offerer", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "zone", "type": "address"},
      {"indexed": false, "internalType": "address", "name": "recipient", "type": "address"},
      {"indexed": false, "internalType": "struct SpentItem[]", "name": "offer", "type": "tuple[]", "components": [
        {"internalType": "enum ItemType", "name": "itemType", "type": "uint8"},
        {"internalType": "address", "name": "token", "type": "address"},
        {"internalType": "uint256", "name": "identifier", "type": "uint256"},
        {"internalType": "uint256", "name": "amount", "type": "uint256"}
      ]},
      {"indexed": false, "internalType": "struct ReceivedItem[]", "name": "consideration", "type": "tuple[]", "components": [
        {"internalType": "enum ItemType", "name": "itemType", "type": "uint8"},
        {"internalType": "address", "name": "token", "type": "address"},
        {"internalType": "uint256", "name": "identifier", "type": "uint256"},
        {"internalType": "uint256", "name": "amount", "type": "uint256"},
        {"internalType": "address payable", "name": "recipient", "type": "address"}
      ]}
    ],
    "name": "OrderFulfilled",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "bytes32", "name": "orderHash", "type": "bytes32"},
      {"indexed": true, "internalType": "address", "name": "offerer", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "zone", "type": "address"}
    ],
    "name": "OrderCancelled",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "uint256", "name": "newCounter", "type": "uint256"},
      {"indexed": true, "internalType": "address", "name": "offerer", "type": "address"}
    ],
    "name": "CounterIncremented",
    "type": "event"
  }
]`

const zeroExEventsABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "enum LibNFTOrder.TradeDirection", "name": "direction", "type": "uint8"},
      {"indexed": false, "internalType": "address", "name": "maker", "type": "address"},
      {"indexed": false, "internalType": "address", "name": "taker", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "nonce", "type": "uint256"},
      {"indexed": false, "internalType": "contract IERC20TokenV06", "name": "erc20Token", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "erc20TokenAmount", "type": "uint256"},
      {"indexed": false, "internalType": "contract IERC721Token", "name": "erc721Token", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "erc721TokenId", "type": "uint256"},
      {"indexed": false, "internalType": "address", "name": "matcher", "type": "address"}
    ],
    "name": "ERC721OrderFilled",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "address", "name": "maker", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "nonce", "type": "uint256"}
    ],
    "name": "ERC721OrderCancelled",
    "type": "event"
  }
]`

const zoraAskComponents = `[
  {"internalType": "address", "name": "seller", "type": "address"},
  {"internalType": "address", "name": "sellerFundsRecipient", "type": "address"},
  {"internalType": "address", "name": "askCurrency", "type": "address"},
  {"internalType": "uint16", "name": "findersFeeBps", "type": "uint16"},
  {"internalType": "uint256", "name": "askPrice", "type": "uint256"}
]`

var zoraEventsABIJSON = `[
  {"anonymous": false, "name": "AskCreated", "type": "event", "inputs": [
    {"indexed": true, "name": "tokenContract", "type": "address"},
    {"indexed": true, "name": "tokenId", "type": "uint256"},
    {"indexed": false, "name": "ask", "type": "tuple", "components": ` + zoraAskComponents + `}
  ]},
  {"anonymous": false, "name": "AskPriceUpdated", "type": "event", "inputs": [
    {"indexed": true, "name": "tokenContract", "type": "address"},
    {"indexed": true, "name": "tokenId", "type": "uint256"},
    {"indexed": false, "name": "ask", "type": "tuple", "components": ` + zoraAskComponents + `}
  ]},
  {"anonymous": false, "name": "AskCanceled", "type": "event", "inputs": [
    {"indexed": true, "name": "tokenContract", "type": "address"},
    {"indexed": true, "name": "tokenId", "type": "uint256"},
    {"indexed": false, "name": "ask", "type": "tuple", "components": ` + zoraAskComponents + `}
  ]},
  {"anonymous": false, "name": "AskFilled", "type": "event", "inputs": [
    {"indexed": true, "name": "tokenContract", "type": "address"},
    {"indexed": true, "name": "tokenId", "type": "uint256"},
    {"indexed": true, "name": "buyer", "type": "address"},
    {"indexed": false, "name": "finder", "type": "address"},
    {"indexed": false, "name": "ask", "type": "tuple", "components": ` + zoraAskComponents + `}
  ]}
]`

const transferEventABIJSON = `[
  {"anonymous": false, "name": "Transfer", "type": "event", "inputs": [
    {"indexed": true, "name": "from", "type": "address"},
    {"indexed": true, "name": "to", "type": "address"},
    {"indexed": true, "name": "tokenId", "type": "uint256"}
  ]}
]`

var (
	seaportEventsABI     abi.ABI
	seaportEventsABIOnce sync.Once
	seaportEventsABIErr  error

	zeroExEventsABI     abi.ABI
	zeroExEventsABIOnce sync.Once
	zeroExEventsABIErr  error

	zoraEventsABI     abi.ABI
	zoraEventsABIOnce sync.Once
	zoraEventsABIErr  error

	transferEventABI     abi.ABI
	transferEventABIOnce sync.Once
	transferEventABIErr  error
)

// SeaportEventsABI returns the parsed Seaport event ABI.
func SeaportEventsABI() (abi.ABI, error) {
	seaportEventsABIOnce.Do(func() {
		seaportEventsABI, seaportEventsABIErr = abi.JSON(strings.NewReader(seaportEventsABIJSON))
	})
	return seaportEventsABI, seaportEventsABIErr
}

// ZeroExEventsABI returns the parsed 0x v4 ERC721 event ABI.
func ZeroExEventsABI() (abi.ABI, error) {
	zeroExEventsABIOnce.Do(func() {
		zeroExEventsABI, zeroExEventsABIErr = abi.JSON(strings.NewReader(zeroExEventsABIJSON))
	})
	return zeroExEventsABI, zeroExEventsABIErr
}

// ZoraEventsABI returns the parsed Zora v3 Asks event ABI.
func ZoraEventsABI() (abi.ABI, error) {
	zoraEventsABIOnce.Do(func() {
		zoraEventsABI, zoraEventsABIErr = abi.JSON(strings.NewReader(zoraEventsABIJSON))
	})
	return zoraEventsABI, zoraEventsABIErr
}

// TransferEventABI returns the ERC721 Transfer event ABI.
func TransferEventABI() (abi.ABI, error) {
	transferEventABIOnce.Do(func() {
		transferEventABI, transferEventABIErr = abi.JSON(strings.NewReader(transferEventABIJSON))
	})
	return transferEventABI, transferEventABIErr
}
