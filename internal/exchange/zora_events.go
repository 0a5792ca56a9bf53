package exchange

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"orderScope/internal/model"
)

type zoraAskTuple struct {
	Seller               common.Address
	SellerFundsRecipient common.Address
	AskCurrency          common.Address
	FindersFeeBps        uint16
	AskPrice             *big.Int
}

// ZoraDecoder turns Zora v3 Asks module events into listing state and fills.
type ZoraDecoder struct {
	eventTable
	exchange common.Address
}

func NewZoraDecoder(exchange common.Address) (*ZoraDecoder, error) {
	parsed, err := ZoraEventsABI()
	if err != nil {
		return nil, err
	}
	return &ZoraDecoder{
		eventTable: newEventTable(parsed, "AskCreated", "AskPriceUpdated", "AskCanceled", "AskFilled"),
		exchange:   exchange,
	}, nil
}

// Decode implements Decoder.
func (d *ZoraDecoder) Decode(log model.LogRecord) (*Event, error) {
	name, err := d.lookup(log)
	if err != nil {
		return nil, err
	}
	if !fromExchange(log, d.exchange) {
		return nil, nil
	}
	ev := &Event{Name: name, OrderKind: model.KindZoraV3, Log: log}

	var indexed struct {
		TokenContract common.Address
		TokenId       *big.Int
		Buyer         common.Address
	}
	if err := d.parseTopics(&indexed, name, log); err != nil {
		return nil, err
	}
	var data struct {
		Finder common.Address
		Ask    zoraAskTuple
	}
	if err := d.unpack(&data, name, log); err != nil {
		return nil, err
	}

	state := ZoraStateActive
	switch name {
	case "AskCanceled":
		state = ZoraStateCancelled
	case "AskFilled":
		state = ZoraStateFilled
	}
	payload, err := json.Marshal(ZoraAsk{
		TokenContract:        indexed.TokenContract.Hex(),
		TokenID:              indexed.TokenId.String(),
		Seller:               data.Ask.Seller.Hex(),
		SellerFundsRecipient: data.Ask.SellerFundsRecipient.Hex(),
		AskCurrency:          data.Ask.AskCurrency.Hex(),
		FindersFeeBps:        int64(data.Ask.FindersFeeBps),
		AskPrice:             data.Ask.AskPrice.String(),
		State:                state,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal zora ask: %w", err)
	}
	ev.Listing = &model.RawOrder{
		Kind:   model.KindZoraV3,
		Data:   payload,
		Source: log.Position(),
		TxHash: log.TxHash,
	}

	if name == "AskFilled" {
		fill := newFill(log, model.KindZoraV3, 0)
		fill.OrderID = ZoraOrderID(data.Ask.Seller, indexed.TokenContract, indexed.TokenId)
		fill.OrderSide = model.SideSell
		fill.Contract = indexed.TokenContract
		fill.TokenID = indexed.TokenId
		fill.Amount = big.NewInt(1)
		fill.Price = data.Ask.AskPrice
		fill.Currency = data.Ask.AskCurrency
		fill.Maker = data.Ask.Seller
		fill.Taker = indexed.Buyer
		ev.Fills = []model.FillEvent{fill}
	}
	return ev, nil
}
