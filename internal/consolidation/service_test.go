package consolidation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"cashflow-service/internal/ledger"
)

func balance(t *testing.T, date time.Time, credits, debits int64, count int) ledger.DailyBalance {
	t.Helper()

	b, err := ledger.RestoreDailyBalance(date, decimal.NewFromInt(credits), decimal.NewFromInt(debits), count, processed)
	require.NoError(t, err)

	return b
}

func TestService_BalanceForDate(t *testing.T) {
	type testCase struct {
		name      string
		setupMock func(m *ledger.MockBalanceStore)
		want      string
		wantErr   error
	}

	errDB := errors.New("too many connections")

	tests := []testCase{
		{
			name: "stored balance",
			setupMock: func(m *ledger.MockBalanceStore) {
				m.EXPECT().Get(gomock.Any(), day).Return(balance(t, day, 300, 50, 3), nil)
			},
			want: "250",
		},
		{
			name: "missing day is zero",
			setupMock: func(m *ledger.MockBalanceStore) {
				m.EXPECT().Get(gomock.Any(), day).Return(ledger.DailyBalance{}, ledger.ErrBalanceNotFound)
			},
			want: "0",
		},
		{
			name: "store failure",
			setupMock: func(m *ledger.MockBalanceStore) {
				m.EXPECT().Get(gomock.Any(), day).Return(ledger.DailyBalance{}, errDB)
			},
			wantErr: errDB,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			store := ledger.NewMockBalanceStore(ctrl)
			tt.setupMock(store)

			log, _ := test.NewNullLogger()
			got, err := NewService(store, log).BalanceForDate(context.Background(), day)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, day, got.Date)
			assert.Equal(t, tt.want, got.Balance().String())
		})
	}
}

func TestService_Report(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := ledger.NewMockBalanceStore(ctrl)
	log, _ := test.NewNullLogger()
	svc := NewService(store, log)

	from := day
	to := day.AddDate(0, 0, 3)

	store.EXPECT().Range(gomock.Any(), from, to).Return([]ledger.DailyBalance{
		balance(t, day, 300, 50, 3),
		balance(t, day.AddDate(0, 0, 2), 0, 20, 1),
	}, nil)

	r, err := svc.Report(context.Background(), from, to)
	require.NoError(t, err)

	require.Len(t, r.Days, 4, "every day of the period is present")
	for i, b := range r.Days {
		assert.Equal(t, day.AddDate(0, 0, i), b.Date)
	}

	assert.True(t, r.Days[1].Equal(ledger.EmptyBalance(day.AddDate(0, 0, 1))))
	assert.True(t, r.Days[3].Equal(ledger.EmptyBalance(to)))

	assert.Equal(t, "300", r.Summary.TotalCredits.String())
	assert.Equal(t, "70", r.Summary.TotalDebits.String())
	assert.Equal(t, "230", r.Summary.FinalBalance.String())
	assert.Equal(t, 4, r.Summary.EntryCount)
	assert.Equal(t, 2, r.Summary.DaysWithEntries)
}

func TestService_ReportRejectsBadPeriods(t *testing.T) {
	type testCase struct {
		name    string
		from    time.Time
		to      time.Time
		wantErr error
	}

	tests := []testCase{
		{name: "reversed", from: day, to: day.AddDate(0, 0, -1), wantErr: ErrInvalidPeriod},
		{name: "too long", from: day, to: day.AddDate(0, 0, MaxReportDays+1), wantErr: ErrPeriodTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			log, _ := test.NewNullLogger()

			_, err := NewService(ledger.NewMockBalanceStore(ctrl), log).Report(context.Background(), tt.from, tt.to)

			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, ledger.ErrValidation)
		})
	}
}

func TestService_ReportAcceptsLongestPeriod(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := ledger.NewMockBalanceStore(ctrl)
	log, _ := test.NewNullLogger()

	to := day.AddDate(0, 0, MaxReportDays)
	store.EXPECT().Range(gomock.Any(), day, to).Return(nil, nil)

	r, err := NewService(store, log).Report(context.Background(), day, to)
	require.NoError(t, err)
	assert.Len(t, r.Days, MaxReportDays+1)
	assert.True(t, r.Summary.FinalBalance.IsZero())
}
