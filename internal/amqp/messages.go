package amqp

import (
	"encoding/json"
	"time"
)

// ChangeMessage tells the export worker that ledger records changed.
// It carries only identifiers; the worker fetches the current records
// from the store, so a stale message never exports stale data.
type ChangeMessage struct {
	Kind      string    `json:"kind"`
	OwnerID   string    `json:"owner_id"`
	CardID    string    `json:"card_id,omitempty"`
	IDs       []string  `json:"ids,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewChangeMessage(kind, ownerID, cardID string, ids []string) *ChangeMessage {
	return &ChangeMessage{
		Kind:      kind,
		OwnerID:   ownerID,
		CardID:    cardID,
		IDs:       ids,
		Timestamp: time.Now(),
	}
}

func (m *ChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ChangeMessageFromJSON(data []byte) (*ChangeMessage, error) {
	var msg ChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
