package model

import "encoding/json"

// RawOrder is a protocol payload as delivered by an upstream producer.
type RawOrder struct {
	Kind   OrderKind       `json:"kind"`
	Data   json.RawMessage `json:"data"`
	Source *OrderingKey    `json:"source,omitempty"`
	TxHash string          `json:"tx_hash,omitempty"`
}
