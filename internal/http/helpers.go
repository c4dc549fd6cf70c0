package http

import (
	"strings"

	"ledger/internal/core"
	"ledger/internal/ledger"
)

// sanitizeInput drops control characters other than tab and newlines and
// trims surrounding whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

type entryView struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
	Kind        string `json:"kind"`
	Date        string `json:"date"`
}

type totalsView struct {
	Income  string `json:"income"`
	Expense string `json:"expense"`
	Net     string `json:"net"`
}

type listView struct {
	Filter  string      `json:"filter"`
	Entries []entryView `json:"entries"`
	Totals  totalsView  `json:"totals"`
}

type mutationView struct {
	Entry   *entryView  `json:"entry,omitempty"`
	Entries []entryView `json:"entries"`
	Totals  totalsView  `json:"totals"`
	Warning string      `json:"warning,omitempty"`
}

func newEntryView(e core.Entry) entryView {
	return entryView{
		ID:          e.ID,
		Description: e.Description,
		Amount:      core.FormatAmount(e.Amount),
		Kind:        e.Kind.String(),
		Date:        e.Date.String(),
	}
}

func newEntryViews(entries []core.Entry) []entryView {
	views := make([]entryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, newEntryView(e))
	}
	return views
}

func newTotalsView(t core.Totals) totalsView {
	return totalsView{
		Income:  core.FormatAmount(t.Income),
		Expense: core.FormatAmount(t.Expense),
		Net:     core.FormatAmount(t.Net),
	}
}

func newListView(s ledger.Snapshot) listView {
	return listView{
		Filter:  string(s.Filter),
		Entries: newEntryViews(s.Entries),
		Totals:  newTotalsView(s.Totals),
	}
}
