package exchange

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"orderScope/internal/model"
)

// ZeroExDecoder decodes 0x v4 ERC721 fill and cancel events.
type ZeroExDecoder struct {
	eventTable
	exchange common.Address
}

func NewZeroExDecoder(exchange common.Address) (*ZeroExDecoder, error) {
	parsed, err := ZeroExEventsABI()
	if err != nil {
		return nil, err
	}
	return &ZeroExDecoder{
		eventTable: newEventTable(parsed, "ERC721OrderFilled", "ERC721OrderCancelled"),
		exchange:   exchange,
	}, nil
}

// Decode implements Decoder.
func (d *ZeroExDecoder) Decode(log model.LogRecord) (*Event, error) {
	name, err := d.lookup(log)
	if err != nil {
		return nil, err
	}
	if !fromExchange(log, d.exchange) {
		return nil, nil
	}
	ev := &Event{Name: name, OrderKind: model.KindZeroExV4, Log: log}

	switch name {
	case "ERC721OrderFilled":
		var data struct {
			Direction        uint8
			Maker            common.Address
			Taker            common.Address
			Nonce            *big.Int
			Erc20Token       common.Address
			Erc20TokenAmount *big.Int
			Erc721Token      common.Address
			Erc721TokenId    *big.Int
			Matcher          common.Address
		}
		if err := d.unpack(&data, name, log); err != nil {
			return nil, err
		}
		currency := data.Erc20Token
		if currency == zeroExNativeToken {
			currency = model.NativeCurrency
		}
		fill := newFill(log, model.KindZeroExV4, 0)
		fill.OrderSide = model.SideSell
		if data.Direction == 1 {
			fill.OrderSide = model.SideBuy
		}
		fill.Contract = data.Erc721Token
		fill.TokenID = data.Erc721TokenId
		fill.Amount = big.NewInt(1)
		fill.Price = data.Erc20TokenAmount
		fill.Currency = currency
		fill.Maker = data.Maker
		fill.Taker = data.Taker
		ev.Fills = []model.FillEvent{fill}
		ev.ConsumedNonce = &model.NonceCancellation{Kind: model.KindZeroExV4, Maker: data.Maker, Nonce: data.Nonce}
	case "ERC721OrderCancelled":
		var data struct {
			Maker common.Address
			Nonce *big.Int
		}
		if err := d.unpack(&data, name, log); err != nil {
			return nil, err
		}
		ev.Cancellation = &model.NonceCancellation{Kind: model.KindZeroExV4, Maker: data.Maker, Nonce: data.Nonce}
	}
	return ev, nil
}
