package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// ContractEvent is the durable record of one observed contract log.
// (TxHash, LogIndex) is unique: re-observing the same log must not create a
// second record. Records are never deleted; they form the audit trail.
type ContractEvent struct {
	ID              string       `json:"id"`
	Kind            EventKind    `json:"kind"`
	ContractAddress string       `json:"contract_address"`
	TxHash          string       `json:"tx_hash"`
	BlockNumber     uint64       `json:"block_number"`
	LogIndex        uint64       `json:"log_index"`
	Payload         EventPayload `json:"-"`
	Processed       bool         `json:"processed"`
	ProcessNote     string       `json:"process_note,omitempty"`
	ProcessedAt     *time.Time   `json:"processed_at,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
}

// Key returns the natural identity of the underlying log.
func (e ContractEvent) Key() string {
	return fmt.Sprintf("%s:%d", e.TxHash, e.LogIndex)
}

// PayloadJSON encodes the typed payload for storage.
func (e ContractEvent) PayloadJSON() ([]byte, error) {
	if e.Payload == nil {
		return nil, fmt.Errorf("event %s has no payload", e.Key())
	}
	return json.Marshal(e.Payload)
}

// MarshalJSON includes the payload under a stable field name, for the
// JSONL audit export.
func (e ContractEvent) MarshalJSON() ([]byte, error) {
	type alias ContractEvent
	payload, err := e.PayloadJSON()
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		alias
		Payload json.RawMessage `json:"payload"`
	}{alias(e), payload})
}
