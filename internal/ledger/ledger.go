package ledger

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	// DescriptionMaxLength bounds Entry.Description in characters.
	DescriptionMaxLength = 500

	// FutureDaysAllowed is how many days past today an entry may be dated.
	FutureDaysAllowed = 1

	// AmountScale is the number of decimal places an amount may carry. It
	// matches the scale of the stored columns.
	AmountScale = 2
)

var (
	ErrValidation = errors.New("validation failed")

	ErrInvalidAmount      = fmt.Errorf("%w: amount must be greater than zero with at most %d decimal places", ErrValidation, AmountScale)
	ErrInvalidKind        = fmt.Errorf("%w: kind must be Credit or Debit", ErrValidation)
	ErrInvalidDate        = fmt.Errorf("%w: date is required and cannot be in the future", ErrValidation)
	ErrInvalidDescription = fmt.Errorf("%w: description is required and must have at most %d characters", ErrValidation, DescriptionMaxLength)
	ErrInvalidTotals      = fmt.Errorf("%w: totals and entry count cannot be negative", ErrValidation)

	ErrEntryNotFound   = errors.New("entry not found")
	ErrBalanceNotFound = errors.New("daily balance not found")
)

// Kind carries the sign of an entry; amounts are always stored positive.
type Kind string

const (
	KindCredit Kind = "Credit"
	KindDebit  Kind = "Debit"
)

func (k Kind) Valid() bool {
	return k == KindCredit || k == KindDebit
}

// ParseKind accepts the wire names case-insensitively.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "credit":
		return KindCredit, nil
	case "debit":
		return KindDebit, nil
	}

	return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
}

// Day returns the calendar day of t as UTC midnight. The day is taken in t's
// own location, so 2024-01-15T23:30-03:00 stays on the 15th.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Entry is a single dated credit or debit. Values are never mutated after
// construction.
type Entry struct {
	ID          uuid.UUID
	Amount      decimal.Decimal
	Kind        Kind
	Date        time.Time
	Description string
	CreatedAt   time.Time
}

// NewEntry validates the input and returns a new entry with a fresh id.
// now is the creation instant and the reference for the future-date rule.
func NewEntry(amount decimal.Decimal, kind Kind, date time.Time, description string, now time.Time) (Entry, error) {
	if date.IsZero() || Day(date).After(Day(now).AddDate(0, 0, FutureDaysAllowed)) {
		return Entry{}, ErrInvalidDate
	}

	return RestoreEntry(uuid.New(), amount, kind, date, description, now.UTC())
}

// RestoreEntry rebuilds a persisted entry from its stored fields. It enforces
// the same invariants as NewEntry except the future-date rule, which only
// applies at creation time.
func RestoreEntry(id uuid.UUID, amount decimal.Decimal, kind Kind, date time.Time, description string, createdAt time.Time) (Entry, error) {
	if !amount.IsPositive() || !amount.Equal(amount.Round(AmountScale)) {
		return Entry{}, ErrInvalidAmount
	}

	if !kind.Valid() {
		return Entry{}, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}

	if date.IsZero() {
		return Entry{}, ErrInvalidDate
	}

	description = strings.TrimSpace(description)
	if description == "" || len([]rune(description)) > DescriptionMaxLength {
		return Entry{}, ErrInvalidDescription
	}

	return Entry{
		ID:          id,
		Amount:      amount,
		Kind:        kind,
		Date:        Day(date),
		Description: description,
		CreatedAt:   createdAt,
	}, nil
}

// SignedAmount is positive for credits and negative for debits.
func (e Entry) SignedAmount() decimal.Decimal {
	if e.Kind == KindDebit {
		return e.Amount.Neg()
	}

	return e.Amount
}

func (e Entry) OnDay(day time.Time) bool {
	return e.Date.Equal(Day(day))
}
