package exchange

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"orderScope/internal/model"
)

type seaportSpentItem struct {
	ItemType   uint8
	Token      common.Address
	Identifier *big.Int
	Amount     *big.Int
}

type seaportReceivedItem struct {
	ItemType   uint8
	Token      common.Address
	Identifier *big.Int
	Amount     *big.Int
	Recipient  common.Address
}

// SeaportDecoder decodes Seaport fulfilment and cancellation events.
type SeaportDecoder struct {
	eventTable
	exchange common.Address
}

func NewSeaportDecoder(exchange common.Address) (*SeaportDecoder, error) {
	parsed, err := SeaportEventsABI()
	if err != nil {
		return nil, err
	}
	return &SeaportDecoder{
		eventTable: newEventTable(parsed, "OrderFulfilled", "OrderCancelled", "CounterIncremented"),
		exchange:   exchange,
	}, nil
}

// Decode implements Decoder.
func (d *SeaportDecoder) Decode(log model.LogRecord) (*Event, error) {
	name, err := d.lookup(log)
	if err != nil {
		return nil, err
	}
	if !fromExchange(log, d.exchange) {
		return nil, nil
	}
	ev := &Event{Name: name, OrderKind: model.KindSeaport, Log: log}

	switch name {
	case "OrderFulfilled":
		var indexed struct {
			Offerer common.Address
			Zone    common.Address
		}
		if err := d.parseTopics(&indexed, name, log); err != nil {
			return nil, err
		}
		var data struct {
			OrderHash     [32]byte
			Recipient     common.Address
			Offer         []seaportSpentItem
			Consideration []seaportReceivedItem
		}
		if err := d.unpack(&data, name, log); err != nil {
			return nil, err
		}
		orderID := strings.ToLower(common.Hash(data.OrderHash).Hex())
		ev.Fills = seaportFills(log, orderID, indexed.Offerer, data.Recipient, data.Offer, data.Consideration)
	case "OrderCancelled":
		var indexed struct {
			Offerer common.Address
			Zone    common.Address
		}
		if err := d.parseTopics(&indexed, name, log); err != nil {
			return nil, err
		}
		var data struct {
			OrderHash [32]byte
		}
		if err := d.unpack(&data, name, log); err != nil {
			return nil, err
		}
		ev.CancelledID = strings.ToLower(common.Hash(data.OrderHash).Hex())
	case "CounterIncremented":
		var indexed struct {
			Offerer common.Address
		}
		if err := d.parseTopics(&indexed, name, log); err != nil {
			return nil, err
		}
		var data struct {
			NewCounter *big.Int
		}
		if err := d.unpack(&data, name, log); err != nil {
			return nil, err
		}
		ev.Cancellation = &model.NonceCancellation{
			Kind:     model.KindSeaport,
			Maker:    indexed.Offerer,
			MinNonce: data.NewCounter,
		}
	}
	return ev, nil
}

type seaportNFT struct {
	token  common.Address
	id     *big.Int
	amount *big.Int
}

func seaportFills(
	log model.LogRecord,
	orderID string,
	offerer common.Address,
	recipient common.Address,
	offer []seaportSpentItem,
	consideration []seaportReceivedItem,
) []model.FillEvent {
	var (
		side     model.Side
		nfts     []seaportNFT
		currency common.Address
		total    = new(big.Int)
		seen     bool
	)
	addPayment := func(itemType uint8, token common.Address, amount *big.Int) {
		if !isCurrencyItem(int(itemType)) {
			return
		}
		if !seen {
			currency, seen = token, true
		}
		if token == currency {
			total.Add(total, amount)
		}
	}

	for _, item := range offer {
		if isNFTItem(int(item.ItemType)) {
			nfts = append(nfts, seaportNFT{token: item.Token, id: item.Identifier, amount: item.Amount})
		}
	}
	if len(nfts) > 0 {
		side = model.SideSell
		for _, item := range consideration {
			addPayment(item.ItemType, item.Token, item.Amount)
		}
	} else {
		side = model.SideBuy
		for _, item := range consideration {
			if isNFTItem(int(item.ItemType)) && item.Recipient == offerer {
				nfts = append(nfts, seaportNFT{token: item.Token, id: item.Identifier, amount: item.Amount})
			}
		}
		for _, item := range offer {
			addPayment(item.ItemType, item.Token, item.Amount)
		}
	}
	if len(nfts) == 0 || !seen {
		return nil
	}

	share := new(big.Int).Quo(total, big.NewInt(int64(len(nfts))))
	fills := make([]model.FillEvent, 0, len(nfts))
	for i, nft := range nfts {
		fill := newFill(log, model.KindSeaport, uint64(i))
		fill.OrderID = orderID
		fill.OrderSide = side
		fill.Contract = nft.token
		fill.TokenID = nft.id
		fill.Amount = nft.amount
		fill.Price = new(big.Int).Set(share)
		fill.Currency = currency
		fill.Maker = offerer
		fill.Taker = recipient
		fills = append(fills, fill)
	}
	return fills
}
