package ledger_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cashflow-service/internal/ledger"
)

var now = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func mustEntry(t *testing.T, amount string, kind ledger.Kind, date time.Time) ledger.Entry {
	t.Helper()

	e, err := ledger.NewEntry(dec(amount), kind, date, "entry", now)
	require.NoError(t, err)

	return e
}

func TestNewEntry(t *testing.T) {
	type testCase struct {
		name        string
		amount      string
		kind        ledger.Kind
		date        time.Time
		description string
		wantErr     error
	}

	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	tests := []testCase{
		{name: "Credit", amount: "100", kind: ledger.KindCredit, date: day, description: "sale"},
		{name: "Debit", amount: "0.01", kind: ledger.KindDebit, date: day, description: "fee"},
		{name: "Tomorrow", amount: "1", kind: ledger.KindCredit, date: day.AddDate(0, 0, 1), description: "x"},
		{name: "ZeroAmount", amount: "0", kind: ledger.KindCredit, date: day, description: "x", wantErr: ledger.ErrInvalidAmount},
		{name: "TrailingZerosBeyondScale", amount: "10.500", kind: ledger.KindCredit, date: day, description: "x"},
		{name: "BelowSmallestUnit", amount: "0.001", kind: ledger.KindCredit, date: day, description: "x", wantErr: ledger.ErrInvalidAmount},
		{name: "MoreThanTwoDecimals", amount: "10.005", kind: ledger.KindCredit, date: day, description: "x", wantErr: ledger.ErrInvalidAmount},
		{name: "NegativeAmount", amount: "-5", kind: ledger.KindDebit, date: day, description: "x", wantErr: ledger.ErrInvalidAmount},
		{name: "UnknownKind", amount: "5", kind: ledger.Kind("Refund"), date: day, description: "x", wantErr: ledger.ErrInvalidKind},
		{name: "FarFuture", amount: "5", kind: ledger.KindCredit, date: day.AddDate(0, 0, 2), description: "x", wantErr: ledger.ErrInvalidDate},
		{name: "ZeroDate", amount: "5", kind: ledger.KindCredit, description: "x", wantErr: ledger.ErrInvalidDate},
		{name: "BlankDescription", amount: "5", kind: ledger.KindCredit, date: day, description: "   ", wantErr: ledger.ErrInvalidDescription},
		{name: "LongDescription", amount: "5", kind: ledger.KindCredit, date: day, description: strings.Repeat("a", 501), wantErr: ledger.ErrInvalidDescription},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ledger.NewEntry(dec(tt.amount), tt.kind, tt.date, tt.description, now)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.ErrorIs(t, err, ledger.ErrValidation)

				return
			}

			require.NoError(t, err)
			assert.NotEqual(t, uuid.Nil, got.ID)
			assert.True(t, got.Amount.Equal(dec(tt.amount)))
			assert.Equal(t, ledger.Day(tt.date), got.Date)
			assert.Equal(t, now, got.CreatedAt)
		})
	}
}

func TestDay(t *testing.T) {
	loc := time.FixedZone("BRT", -3*60*60)
	late := time.Date(2024, 1, 15, 23, 30, 0, 0, loc)

	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), ledger.Day(late))
}

func TestParseKind(t *testing.T) {
	k, err := ledger.ParseKind("credit")
	require.NoError(t, err)
	assert.Equal(t, ledger.KindCredit, k)

	k, err = ledger.ParseKind("Debit")
	require.NoError(t, err)
	assert.Equal(t, ledger.KindDebit, k)

	_, err = ledger.ParseKind("transfer")
	assert.ErrorIs(t, err, ledger.ErrInvalidKind)
}

func TestSignedAmount(t *testing.T) {
	day := ledger.Day(now)

	assert.True(t, mustEntry(t, "10", ledger.KindCredit, day).SignedAmount().Equal(dec("10")))
	assert.True(t, mustEntry(t, "10", ledger.KindDebit, day).SignedAmount().Equal(dec("-10")))
}

func TestAggregate(t *testing.T) {
	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	t.Run("sums credits and debits of the day", func(t *testing.T) {
		entries := []ledger.Entry{
			mustEntry(t, "100", ledger.KindCredit, day),
			mustEntry(t, "200", ledger.KindCredit, day),
			mustEntry(t, "50", ledger.KindDebit, day),
		}

		b := ledger.Aggregate(day, entries)

		assert.True(t, b.TotalCredits.Equal(dec("300")))
		assert.True(t, b.TotalDebits.Equal(dec("50")))
		assert.True(t, b.Balance().Equal(dec("250")))
		assert.Equal(t, 3, b.EntryCount)
	})

	t.Run("empty day yields explicit zero record", func(t *testing.T) {
		b := ledger.Aggregate(day, nil)

		assert.Equal(t, day, b.Date)
		assert.True(t, b.TotalCredits.IsZero())
		assert.True(t, b.TotalDebits.IsZero())
		assert.True(t, b.Balance().IsZero())
		assert.Equal(t, 0, b.EntryCount)
	})

	t.Run("ignores entries of other days", func(t *testing.T) {
		entries := []ledger.Entry{
			mustEntry(t, "100", ledger.KindCredit, day),
			mustEntry(t, "999", ledger.KindCredit, day.AddDate(0, 0, -1)),
			mustEntry(t, "999", ledger.KindDebit, day.AddDate(0, 0, 1)),
		}

		b := ledger.Aggregate(day, entries)

		assert.True(t, b.Balance().Equal(dec("100")))
		assert.Equal(t, 1, b.EntryCount)
	})

	t.Run("balance equals sum of signed amounts without drift", func(t *testing.T) {
		amounts := []string{"0.10", "0.20", "0.30", "1234.56", "0.01"}
		kinds := []ledger.Kind{ledger.KindCredit, ledger.KindDebit, ledger.KindCredit, ledger.KindCredit, ledger.KindDebit}

		var entries []ledger.Entry

		signed := decimal.Zero

		for i, a := range amounts {
			e := mustEntry(t, a, kinds[i], day)
			entries = append(entries, e)
			signed = signed.Add(e.SignedAmount())
		}

		b := ledger.Aggregate(day, entries)
		assert.True(t, b.Balance().Equal(signed), "balance %s, signed sum %s", b.Balance(), signed)
		assert.Equal(t, "1234.55", b.Balance().StringFixed(2))
	})
}

func TestDailyBalanceJSON(t *testing.T) {
	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	in, err := ledger.RestoreDailyBalance(day, dec("300"), dec("50"), 3, now)
	require.NoError(t, err)

	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"date":"2024-01-15"`)
	assert.Contains(t, string(data), `"balance":"250"`)

	var out ledger.DailyBalance
	require.NoError(t, json.Unmarshal(data, &out))
	assert.True(t, in.Equal(out))
}

func TestRestoreDailyBalance_RejectsNegativeTotals(t *testing.T) {
	_, err := ledger.RestoreDailyBalance(now, dec("-1"), decimal.Zero, 0, now)
	assert.ErrorIs(t, err, ledger.ErrInvalidTotals)

	_, err = ledger.RestoreDailyBalance(now, decimal.Zero, decimal.Zero, -1, now)
	assert.ErrorIs(t, err, ledger.ErrInvalidTotals)
}

func TestEntryCreatedEvent(t *testing.T) {
	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	entry := mustEntry(t, "150.75", ledger.KindDebit, day)
	evt := ledger.NewEntryCreatedEvent(entry)

	t.Run("wire format", func(t *testing.T) {
		data, err := json.Marshal(evt)
		require.NoError(t, err)

		var raw map[string]any
		require.NoError(t, json.Unmarshal(data, &raw))

		assert.Equal(t, entry.ID.String(), raw["entryId"])
		assert.Equal(t, "2024-01-15", raw["date"])
		assert.Equal(t, 150.75, raw["amount"])
		assert.Equal(t, "Debit", raw["kind"])
		assert.Equal(t, "entry", raw["description"])
		assert.Equal(t, "2024-01-15T10:30:00Z", raw["occurredAt"])
	})

	t.Run("decode", func(t *testing.T) {
		data, err := json.Marshal(evt)
		require.NoError(t, err)

		got, err := ledger.DecodeEntryCreatedEvent(data)
		require.NoError(t, err)
		assert.Equal(t, evt.EntryID, got.EntryID)
		assert.Equal(t, day, got.Date)
		assert.True(t, got.Amount.Equal(dec("150.75")))
		assert.Equal(t, ledger.KindDebit, got.Kind)
	})

	t.Run("rejects poison payloads", func(t *testing.T) {
		for _, body := range []string{
			"",
			"null",
			"{not json",
			`{"entryId":"","date":"2024-01-15","amount":1,"kind":"Credit"}`,
			`{"entryId":"` + uuid.NewString() + `","date":"15/01/2024","amount":1,"kind":"Credit"}`,
			`{"entryId":"` + uuid.NewString() + `","date":"2024-01-15","amount":0,"kind":"Credit"}`,
			`{"entryId":"` + uuid.NewString() + `","date":"2024-01-15","kind":"Credit"}`,
			`{"entryId":"` + uuid.NewString() + `","date":"2024-01-15","amount":1,"kind":"Other"}`,
		} {
			_, err := ledger.DecodeEntryCreatedEvent([]byte(body))
			assert.ErrorIs(t, err, ledger.ErrInvalidEvent, "body %q", body)
		}
	})
}
