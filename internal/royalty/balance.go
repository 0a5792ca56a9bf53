package royalty

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"orderScope/internal/chain"
	"orderScope/internal/model"
)

var (
	transferTopic   = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
	depositTopic    = crypto.Keccak256Hash([]byte("Deposit(address,uint256)"))
	withdrawalTopic = crypto.Keccak256Hash([]byte("Withdrawal(address,uint256)"))
)

// BalanceDiff is a per-address net change of one currency ledger.
type BalanceDiff map[common.Address]*big.Int

func (d BalanceDiff) add(addr common.Address, amount *big.Int) {
	cur, ok := d[addr]
	if !ok {
		cur = new(big.Int)
		d[addr] = cur
	}
	cur.Add(cur, amount)
}

func (d BalanceDiff) move(from, to common.Address, amount *big.Int) {
	if amount == nil || amount.Sign() == 0 {
		return
	}
	d.add(from, new(big.Int).Neg(amount))
	d.add(to, amount)
}

// Inflow returns the positive net change of addr, or zero.
func (d BalanceDiff) Inflow(addr common.Address) *big.Int {
	cur, ok := d[addr]
	if !ok || cur.Sign() <= 0 {
		return new(big.Int)
	}
	return new(big.Int).Set(cur)
}

// ComputeBalanceDiff walks a call trace and nets every transfer of currency.
// When currency is native or its wrapped form, native value transfers and
// wrapped token transfers share one ledger. Reverted frames are skipped along
// with their subcalls.
func ComputeBalanceDiff(root *chain.CallFrame, currency, wrappedNative common.Address) BalanceDiff {
	diff := make(BalanceDiff)
	if root == nil {
		return diff
	}
	merged := currency == model.NativeCurrency || (wrappedNative != (common.Address{}) && currency == wrappedNative)
	token := currency
	if merged {
		token = wrappedNative
	}
	walk(root, diff, merged, token)
	return diff
}

func walk(frame *chain.CallFrame, diff BalanceDiff, native bool, token common.Address) {
	if frame.Reverted() {
		return
	}
	if native && frame.Value != nil && carriesValue(frame.Type) {
		diff.move(frame.From, frame.To, frame.Value.ToInt())
	}
	if token != (common.Address{}) {
		for _, log := range frame.Logs {
			applyTokenLog(diff, token, log, native)
		}
	}
	for i := range frame.Calls {
		walk(&frame.Calls[i], diff, native, token)
	}
}

func carriesValue(callType string) bool {
	switch callType {
	case "CALL", "CREATE", "CREATE2", "SELFDESTRUCT":
		return true
	default:
		return false
	}
}

func applyTokenLog(diff BalanceDiff, token common.Address, log chain.CallFrameLog, wrapped bool) {
	if log.Address != token || len(log.Topics) == 0 {
		return
	}
	amount := new(big.Int).SetBytes(log.Data)
	switch {
	case log.Topics[0] == transferTopic && len(log.Topics) == 3:
		diff.move(topicAddress(log.Topics[1]), topicAddress(log.Topics[2]), amount)
	case wrapped && log.Topics[0] == depositTopic && len(log.Topics) == 2:
		// Native value already moved into the token contract; credit the depositor.
		diff.move(token, topicAddress(log.Topics[1]), amount)
	case wrapped && log.Topics[0] == withdrawalTopic && len(log.Topics) == 2:
		diff.move(topicAddress(log.Topics[1]), token, amount)
	}
}

func topicAddress(topic common.Hash) common.Address {
	return common.BytesToAddress(topic.Bytes()[12:])
}
