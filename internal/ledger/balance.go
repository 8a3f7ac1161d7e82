package ledger

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DailyBalance is the consolidated view of one calendar day. The balance
// itself is derived from the totals and never stored on its own.
type DailyBalance struct {
	Date         time.Time
	TotalCredits decimal.Decimal
	TotalDebits  decimal.Decimal
	EntryCount   int
	ProcessedAt  time.Time
}

// EmptyBalance is the explicit zero record for a day without entries.
func EmptyBalance(date time.Time) DailyBalance {
	return DailyBalance{
		Date:         Day(date),
		TotalCredits: decimal.Zero,
		TotalDebits:  decimal.Zero,
	}
}

// RestoreDailyBalance rebuilds a persisted balance.
func RestoreDailyBalance(date time.Time, credits, debits decimal.Decimal, count int, processedAt time.Time) (DailyBalance, error) {
	if credits.IsNegative() || debits.IsNegative() || count < 0 {
		return DailyBalance{}, ErrInvalidTotals
	}

	if date.IsZero() {
		return DailyBalance{}, ErrInvalidDate
	}

	return DailyBalance{
		Date:         Day(date),
		TotalCredits: credits,
		TotalDebits:  debits,
		EntryCount:   count,
		ProcessedAt:  processedAt,
	}, nil
}

// Aggregate sums the entries that fall on date. Entries of other days are
// skipped, so callers may pass a wider window.
func Aggregate(date time.Time, entries []Entry) DailyBalance {
	b := EmptyBalance(date)

	for _, e := range entries {
		if !e.OnDay(b.Date) {
			continue
		}

		switch e.Kind {
		case KindCredit:
			b.TotalCredits = b.TotalCredits.Add(e.Amount)
		case KindDebit:
			b.TotalDebits = b.TotalDebits.Add(e.Amount)
		default:
			continue
		}

		b.EntryCount++
	}

	return b
}

func (b DailyBalance) Balance() decimal.Decimal {
	return b.TotalCredits.Sub(b.TotalDebits)
}

// Equal compares the aggregate fields, ignoring ProcessedAt.
func (b DailyBalance) Equal(o DailyBalance) bool {
	return b.Date.Equal(o.Date) &&
		b.TotalCredits.Equal(o.TotalCredits) &&
		b.TotalDebits.Equal(o.TotalDebits) &&
		b.EntryCount == o.EntryCount
}

type balanceJSON struct {
	Date         string          `json:"date"`
	TotalCredits decimal.Decimal `json:"totalCredits"`
	TotalDebits  decimal.Decimal `json:"totalDebits"`
	Balance      decimal.Decimal `json:"balance"`
	EntryCount   int             `json:"entryCount"`
	ProcessedAt  time.Time       `json:"processedAt"`
}

func (b DailyBalance) MarshalJSON() ([]byte, error) {
	return json.Marshal(balanceJSON{
		Date:         b.Date.Format(time.DateOnly),
		TotalCredits: b.TotalCredits,
		TotalDebits:  b.TotalDebits,
		Balance:      b.Balance(),
		EntryCount:   b.EntryCount,
		ProcessedAt:  b.ProcessedAt,
	})
}

// UnmarshalJSON ignores the serialized balance and re-derives it from the
// totals.
func (b *DailyBalance) UnmarshalJSON(data []byte) error {
	var raw balanceJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	date, err := time.Parse(time.DateOnly, raw.Date)
	if err != nil {
		return fmt.Errorf("parsing balance date: %w", err)
	}

	restored, err := RestoreDailyBalance(date, raw.TotalCredits, raw.TotalDebits, raw.EntryCount, raw.ProcessedAt)
	if err != nil {
		return err
	}

	*b = restored

	return nil
}
