package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Income  Kind = "income"
	Expense Kind = "expense"
)

const (
	FilterAll     Filter = "all"
	FilterIncome  Filter = "income"
	FilterExpense Filter = "expense"
)

type (
	// Kind classifies an entry as income or expense.
	Kind string

	// Filter selects which entries a listing returns.
	Filter string

	Date struct {
		time.Time
	}

	Entry struct {
		ID          string
		Description string
		Amount      decimal.Decimal
		Kind        Kind
		Date        Date
	}
)

var (
	ErrEmptyID          = errors.New("empty id")
	ErrEmptyDescription = errors.New("empty description")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidKind      = errors.New("invalid kind")
	ErrInvalidFilter    = errors.New("invalid filter")
	ErrInvalidDate      = errors.New("invalid date")
)

// ParseKind accepts "income" or "expense", case-insensitively.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case Income, Expense:
		return k, nil
	default:
		return "", ErrInvalidKind
	}
}

func (k Kind) Valid() bool {
	return k == Income || k == Expense
}

func (k Kind) String() string {
	return string(k)
}

// ParseFilter maps an empty selection to FilterAll.
func ParseFilter(s string) (Filter, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return FilterAll, nil
	}
	switch f := Filter(s); f {
	case FilterAll, FilterIncome, FilterExpense:
		return f, nil
	default:
		return "", ErrInvalidFilter
	}
}

// Matches reports whether an entry of kind k passes the filter.
func (f Filter) Matches(k Kind) bool {
	switch f {
	case FilterIncome:
		return k == Income
	case FilterExpense:
		return k == Expense
	default:
		return true
	}
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its UTC calendar day.
func DateOf(t time.Time) Date {
	y, m, d := t.UTC().Date()
	return NewDate(y, int(m), d)
}

// ParseDate parses an ISO 8601 calendar date (YYYY-MM-DD).
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	return d.Format(time.DateOnly)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// ValidateDescription rejects blank text. Length is not bounded.
func ValidateDescription(s string) error {
	if len(strings.TrimSpace(s)) == 0 {
		return ErrEmptyDescription
	}
	return nil
}

func (e Entry) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return ErrEmptyID
	}
	if err := ValidateDescription(e.Description); err != nil {
		return err
	}
	if !e.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !e.Kind.Valid() {
		return ErrInvalidKind
	}
	return e.Date.Validate()
}

// FilterEntries returns the entries passing f, in their original order.
// The result never aliases the input.
func FilterEntries(entries []Entry, f Filter) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if f.Matches(e.Kind) {
			out = append(out, e)
		}
	}
	return out
}
