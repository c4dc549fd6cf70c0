package core

import "github.com/shopspring/decimal"

// Totals are the aggregate sums derived from a ledger snapshot.
type Totals struct {
	Income  decimal.Decimal
	Expense decimal.Decimal
	Net     decimal.Decimal
}

// ComputeTotals folds entries into income, expense and net sums.
// Sums are unrounded; Net is always Income minus Expense.
func ComputeTotals(entries []Entry) Totals {
	income, expense := decimal.Zero, decimal.Zero
	for _, e := range entries {
		switch e.Kind {
		case Income:
			income = income.Add(e.Amount)
		case Expense:
			expense = expense.Add(e.Amount)
		}
	}
	return Totals{
		Income:  income,
		Expense: expense,
		Net:     income.Sub(expense),
	}
}
