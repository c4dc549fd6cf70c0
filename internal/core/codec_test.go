package core

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestEncodeDecodeEntries(t *testing.T) {
	in := []Entry{
		{ID: "1", Description: "Salary", Amount: decimal.RequireFromString("1000.00"), Kind: Income, Date: NewDate(2025, 5, 1)},
		{ID: "2", Description: "Groceries", Amount: decimal.RequireFromString("45.50"), Kind: Expense, Date: NewDate(2025, 5, 2)},
	}
	data, err := EncodeEntries(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	for _, want := range []string{`"kind":"income"`, `"amount":45.50`, `"date":"2025-05-02"`} {
		if !strings.Contains(string(data), want) {
			t.Fatalf("payload missing %s: %s", want, data)
		}
	}

	out, err := DecodeEntries(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("len = %d, want %d", len(out), len(in))
	}
	for i := range in {
		a, b := in[i], out[i]
		if a.ID != b.ID || a.Description != b.Description || a.Kind != b.Kind ||
			!a.Amount.Equal(b.Amount) || a.Date.String() != b.Date.String() {
			t.Fatalf("entry %d mismatch: %+v vs %+v", i, a, b)
		}
	}
}

func TestDecodeEntriesLegacyTypeKey(t *testing.T) {
	payload := `[{"id":"1717171717171","description":"Coffee","amount":3.5,"type":"expense","date":"2024-05-31"}]`
	out, err := DecodeEntries([]byte(payload))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 1 || out[0].Kind != Expense || FormatAmount(out[0].Amount) != "3.50" {
		t.Fatalf("unexpected entries: %+v", out)
	}
}

func TestDecodeEntriesEmpty(t *testing.T) {
	for _, payload := range []string{"", "  ", "null", "[]"} {
		out, err := DecodeEntries([]byte(payload))
		if err != nil || len(out) != 0 {
			t.Fatalf("%q: expected empty ledger, got %v (err=%v)", payload, out, err)
		}
	}
}

func TestDecodeEntriesRejectsCorruptPayload(t *testing.T) {
	cases := map[string]string{
		"not json":       `{{{`,
		"object":         `{"id":"1"}`,
		"zero amount":    `[{"id":"1","description":"x","amount":0,"kind":"income","date":"2025-01-01"}]`,
		"missing amount": `[{"id":"1","description":"x","kind":"income","date":"2025-01-01"}]`,
		"bad kind":       `[{"id":"1","description":"x","amount":1,"kind":"gift","date":"2025-01-01"}]`,
		"bad date":       `[{"id":"1","description":"x","amount":1,"kind":"income","date":"yesterday"}]`,
		"empty desc":     `[{"id":"1","description":"","amount":1,"kind":"income","date":"2025-01-01"}]`,
		"duplicate id": `[{"id":"1","description":"x","amount":1,"kind":"income","date":"2025-01-01"},` +
			`{"id":"1","description":"y","amount":2,"kind":"expense","date":"2025-01-01"}]`,
	}
	for name, payload := range cases {
		if _, err := DecodeEntries([]byte(payload)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}
