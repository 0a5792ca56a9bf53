package exchange

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"orderScope/internal/model"
)

// Event is everything a single exchange log implies for the order book.
type Event struct {
	Name      string
	OrderKind model.OrderKind
	Log       model.LogRecord

	Fills []model.FillEvent
	// CancelledID is set when one order is cancelled by id.
	CancelledID string
	// Cancellation is a per-nonce or bulk (MinNonce) cancellation.
	Cancellation *model.NonceCancellation
	// ConsumedNonce is a nonce spent by a fill.
	ConsumedNonce *model.NonceCancellation
	// Listing is new state for a state-based order.
	Listing *model.RawOrder
}

// Decoder decodes one protocol's logs.
type Decoder interface {
	CanDecode(topic0 string) bool
	Decode(log model.LogRecord) (*Event, error)
	Topics() []common.Hash
}

// DecoderSet routes a log to the first decoder that understands it.
type DecoderSet struct {
	decoders []Decoder
}

func NewDecoderSet(decoders ...Decoder) *DecoderSet {
	return &DecoderSet{decoders: decoders}
}

// Decode returns nil without error when no decoder handles the log.
func (s *DecoderSet) Decode(log model.LogRecord) (*Event, error) {
	topic0 := log.Topic0()
	for _, d := range s.decoders {
		if !d.CanDecode(topic0) {
			continue
		}
		ev, err := d.Decode(log)
		if err != nil {
			return nil, err
		}
		if ev != nil {
			return ev, nil
		}
	}
	return nil, nil
}

// Topics lists every topic0 any decoder handles.
func (s *DecoderSet) Topics() []common.Hash {
	seen := make(map[common.Hash]struct{})
	var out []common.Hash
	for _, d := range s.decoders {
		for _, topic := range d.Topics() {
			if _, ok := seen[topic]; ok {
				continue
			}
			seen[topic] = struct{}{}
			out = append(out, topic)
		}
	}
	return out
}

type eventTable struct {
	parsed      abi.ABI
	topicToName map[string]string
}

func newEventTable(parsed abi.ABI, names ...string) eventTable {
	t := eventTable{parsed: parsed, topicToName: make(map[string]string, len(names))}
	for _, name := range names {
		t.topicToName[strings.ToLower(parsed.Events[name].ID.Hex())] = name
	}
	return t
}

func (t eventTable) CanDecode(topic0 string) bool {
	if topic0 == "" {
		return false
	}
	_, ok := t.topicToName[strings.ToLower(topic0)]
	return ok
}

func (t eventTable) Topics() []common.Hash {
	out := make([]common.Hash, 0, len(t.topicToName))
	for _, name := range t.parsed.Events {
		if _, ok := t.topicToName[strings.ToLower(name.ID.Hex())]; ok {
			out = append(out, name.ID)
		}
	}
	return out
}

func (t eventTable) lookup(log model.LogRecord) (string, error) {
	if len(log.Topics) == 0 {
		return "", fmt.Errorf("missing topics")
	}
	name, ok := t.topicToName[log.Topic0()]
	if !ok {
		return "", fmt.Errorf("unsupported topic0: %s", log.Topics[0])
	}
	return name, nil
}

func (t eventTable) unpack(out interface{}, name string, log model.LogRecord) error {
	event := t.parsed.Events[name]
	if len(event.Inputs.NonIndexed()) == 0 {
		return nil
	}
	data, err := hexutil.Decode(log.Data)
	if err != nil {
		return fmt.Errorf("invalid data: %w", err)
	}
	if err := t.parsed.UnpackIntoInterface(out, name, data); err != nil {
		return fmt.Errorf("unpack %s: %w", name, err)
	}
	return nil
}

func (t eventTable) parseTopics(out interface{}, name string, log model.LogRecord) error {
	event := t.parsed.Events[name]
	indexedTopics, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return err
	}
	if err := abi.ParseTopics(out, indexedArguments(event.Inputs), indexedTopics); err != nil {
		return fmt.Errorf("parse topics: %w", err)
	}
	return nil
}

func fromExchange(log model.LogRecord, exchange common.Address) bool {
	if exchange == (common.Address{}) {
		return true
	}
	return common.IsHexAddress(log.Address) && common.HexToAddress(log.Address) == exchange
}

func newFill(log model.LogRecord, kind model.OrderKind, batchIndex uint64) model.FillEvent {
	return model.FillEvent{
		ID:          model.FillID(log.TxHash, log.LogIndex, batchIndex),
		OrderKind:   kind,
		TxHash:      log.TxHash,
		BlockNumber: log.BlockNumber,
		LogIndex:    log.LogIndex,
		BatchIndex:  batchIndex,
		Timestamp:   log.Timestamp,
	}
}

func parseIndexedTopics(event abi.Event, topics []string) ([]common.Hash, error) {
	indexedCount := len(indexedArguments(event.Inputs))
	if len(topics) != indexedCount+1 {
		return nil, fmt.Errorf("expected %d topics, got %d", indexedCount+1, len(topics))
	}
	return parseTopicHashes(topics[1:])
}

func parseTopicHashes(topics []string) ([]common.Hash, error) {
	out := make([]common.Hash, 0, len(topics))
	for _, topic := range topics {
		data, err := hexutil.Decode(topic)
		if err != nil {
			return nil, fmt.Errorf("invalid topic: %w", err)
		}
		if len(data) > 32 {
			return nil, fmt.Errorf("topic length %d", len(data))
		}
		out = append(out, common.BytesToHash(data))
	}
	return out, nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}
