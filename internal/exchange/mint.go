package exchange

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"orderScope/internal/model"
)

// MintDecoder recognises ERC721 mints (Transfer from the zero address) as
// synthetic fills so the settlement collector can tell them apart from sales.
type MintDecoder struct {
	eventTable
}

func NewMintDecoder() (*MintDecoder, error) {
	parsed, err := TransferEventABI()
	if err != nil {
		return nil, err
	}
	return &MintDecoder{eventTable: newEventTable(parsed, "Transfer")}, nil
}

// Decode implements Decoder. ERC20 transfers share the topic but carry one
// topic fewer and are ignored.
func (d *MintDecoder) Decode(log model.LogRecord) (*Event, error) {
	if len(log.Topics) != 4 {
		return nil, nil
	}
	var indexed struct {
		From    common.Address
		To      common.Address
		TokenId *big.Int
	}
	if err := d.parseTopics(&indexed, "Transfer", log); err != nil {
		return nil, err
	}
	if indexed.From != (common.Address{}) {
		return nil, nil
	}
	fill := newFill(log, model.KindMint, 0)
	fill.OrderSide = model.SideSell
	fill.Contract = common.HexToAddress(log.Address)
	fill.TokenID = indexed.TokenId
	fill.Amount = big.NewInt(1)
	fill.Price = new(big.Int)
	fill.Taker = indexed.To
	return &Event{Name: "Transfer", OrderKind: model.KindMint, Log: log, Fills: []model.FillEvent{fill}}, nil
}
