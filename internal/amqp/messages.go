package amqp

import (
	"encoding/json"
	"time"

	"ledger/internal/core"
)

// EntryChangedMessage announces one applied ledger mutation. It carries the
// entry as it was after the change (or just before, for deletions) so
// consumers can refresh without reading the ledger back.
type EntryChangedMessage struct {
	Op          string    `json:"op"`
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Kind        string    `json:"kind"`
	Amount      string    `json:"amount"`
	Date        string    `json:"date"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewEntryChangedMessage builds the wire message for a change.
func NewEntryChangedMessage(change core.EntryChange) *EntryChangedMessage {
	ts := change.At
	if ts.IsZero() {
		ts = time.Now()
	}
	return &EntryChangedMessage{
		Op:          string(change.Op),
		ID:          change.Entry.ID,
		Description: change.Entry.Description,
		Kind:        change.Entry.Kind.String(),
		Amount:      core.FormatAmount(change.Entry.Amount),
		Date:        change.Entry.Date.String(),
		Timestamp:   ts.UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *EntryChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// EntryChangedMessageFromJSON creates a message from JSON bytes
func EntryChangedMessageFromJSON(data []byte) (*EntryChangedMessage, error) {
	var msg EntryChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
