package consolidation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"cashflow-service/internal/ledger"
)

// MaxReportDays bounds the distance between the first and last day of a
// report.
const MaxReportDays = 90

var (
	ErrInvalidPeriod = fmt.Errorf("%w: start date cannot be after end date", ledger.ErrValidation)
	ErrPeriodTooLong = fmt.Errorf("%w: period cannot exceed %d days", ledger.ErrValidation, MaxReportDays)
)

type Summary struct {
	TotalCredits    decimal.Decimal `json:"totalCredits"`
	TotalDebits     decimal.Decimal `json:"totalDebits"`
	FinalBalance    decimal.Decimal `json:"finalBalance"`
	EntryCount      int             `json:"entryCount"`
	DaysWithEntries int             `json:"daysWithEntries"`
}

type Report struct {
	From    time.Time
	To      time.Time
	Days    []ledger.DailyBalance
	Summary Summary
}

// Service is the balance read path.
type Service struct {
	balances ledger.BalanceStore
	log      *logrus.Logger
}

func NewService(balances ledger.BalanceStore, log *logrus.Logger) *Service {
	return &Service{balances: balances, log: log}
}

// BalanceForDate never reports a missing day: a day that was never
// consolidated has a zero balance.
func (s *Service) BalanceForDate(ctx context.Context, date time.Time) (ledger.DailyBalance, error) {
	b, err := s.balances.Get(ctx, date)
	if errors.Is(err, ledger.ErrBalanceNotFound) {
		s.log.WithField("date", ledger.Day(date).Format(time.DateOnly)).Debug("no consolidated balance, returning zero")
		return ledger.EmptyBalance(date), nil
	}

	if err != nil {
		return ledger.DailyBalance{}, err
	}

	return b, nil
}

// Report lists every day of [from, to], filling days without a consolidated
// balance with zero records, and sums the period.
func (s *Service) Report(ctx context.Context, from, to time.Time) (Report, error) {
	from, to = ledger.Day(from), ledger.Day(to)

	if from.After(to) {
		return Report{}, ErrInvalidPeriod
	}

	if to.Sub(from) > MaxReportDays*24*time.Hour {
		return Report{}, ErrPeriodTooLong
	}

	stored, err := s.balances.Range(ctx, from, to)
	if err != nil {
		return Report{}, err
	}

	byDay := make(map[time.Time]ledger.DailyBalance, len(stored))
	for _, b := range stored {
		byDay[ledger.Day(b.Date)] = b
	}

	r := Report{
		From: from,
		To:   to,
		Summary: Summary{
			TotalCredits: decimal.Zero,
			TotalDebits:  decimal.Zero,
		},
	}

	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		b, ok := byDay[day]
		if !ok {
			b = ledger.EmptyBalance(day)
		}

		r.Days = append(r.Days, b)

		r.Summary.TotalCredits = r.Summary.TotalCredits.Add(b.TotalCredits)
		r.Summary.TotalDebits = r.Summary.TotalDebits.Add(b.TotalDebits)
		r.Summary.EntryCount += b.EntryCount

		if b.EntryCount > 0 {
			r.Summary.DaysWithEntries++
		}
	}

	r.Summary.FinalBalance = r.Summary.TotalCredits.Sub(r.Summary.TotalDebits)

	return r, nil
}
