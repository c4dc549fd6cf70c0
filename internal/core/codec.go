package core

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// entryRecord is the persisted shape of an Entry. The slot holds a JSON
// array of these records; amount is a plain JSON number.
type entryRecord struct {
	ID          string      `json:"id"`
	Description string      `json:"description"`
	Amount      json.Number `json:"amount"`
	Kind        string      `json:"kind,omitempty"`
	// Type is the key used by the browser version of the tracker.
	Type string `json:"type,omitempty"`
	Date string `json:"date"`
}

// EncodeEntries serializes the whole collection for a storage slot.
func EncodeEntries(entries []Entry) ([]byte, error) {
	records := make([]entryRecord, len(entries))
	for i, e := range entries {
		records[i] = entryRecord{
			ID:          e.ID,
			Description: e.Description,
			Amount:      json.Number(e.Amount.StringFixed(2)),
			Kind:        e.Kind.String(),
			Date:        e.Date.String(),
		}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("encode entries: %w", err)
	}
	return data, nil
}

// DecodeEntries parses a slot payload. A blank payload or JSON null is an
// empty ledger. Any invalid record or duplicate id rejects the whole payload.
func DecodeEntries(data []byte) ([]Entry, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return []Entry{}, nil
	}

	var records []entryRecord
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("decode entries: %w", err)
	}

	entries := make([]Entry, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for i, r := range records {
		e, err := r.toEntry()
		if err != nil {
			return nil, fmt.Errorf("decode entry %d: %w", i, err)
		}
		if _, dup := seen[e.ID]; dup {
			return nil, fmt.Errorf("decode entry %d: duplicate id %q", i, e.ID)
		}
		seen[e.ID] = struct{}{}
		entries = append(entries, e)
	}
	return entries, nil
}

func (r entryRecord) toEntry() (Entry, error) {
	kind := r.Kind
	if kind == "" {
		kind = r.Type
	}
	k, err := ParseKind(kind)
	if err != nil {
		return Entry{}, err
	}
	amount, err := decimal.NewFromString(r.Amount.String())
	if err != nil {
		return Entry{}, ErrInvalidAmount
	}
	date, err := ParseDate(r.Date)
	if err != nil {
		return Entry{}, err
	}
	e := Entry{
		ID:          r.ID,
		Description: r.Description,
		Amount:      amount.Round(2),
		Kind:        k,
		Date:        date,
	}
	if err := e.Validate(); err != nil {
		return Entry{}, err
	}
	return e, nil
}
