package model

// OrderingKey positions a state-based event in chain order.
type OrderingKey struct {
	BlockNumber uint64 `json:"block_number,omitempty"`
	LogIndex    uint64 `json:"log_index,omitempty"`
	Timestamp   uint64 `json:"timestamp,omitempty"`
	TxHash      string `json:"tx_hash,omitempty"`
}

// HasPosition reports whether the key carries a block/log position.
func (k *OrderingKey) HasPosition() bool {
	return k != nil && k.BlockNumber > 0
}

// Compare returns -1, 0 or 1. Block number and log index are compared when
// both keys carry them; otherwise the event timestamps are compared, which is
// coarser than chain order for events in the same second.
func (k *OrderingKey) Compare(other *OrderingKey) int {
	if k == nil && other == nil {
		return 0
	}
	if k == nil {
		return -1
	}
	if other == nil {
		return 1
	}
	if k.HasPosition() && other.HasPosition() {
		switch {
		case k.BlockNumber < other.BlockNumber:
			return -1
		case k.BlockNumber > other.BlockNumber:
			return 1
		case k.LogIndex < other.LogIndex:
			return -1
		case k.LogIndex > other.LogIndex:
			return 1
		default:
			return 0
		}
	}
	switch {
	case k.Timestamp < other.Timestamp:
		return -1
	case k.Timestamp > other.Timestamp:
		return 1
	default:
		return 0
	}
}
