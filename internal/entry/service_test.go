package entry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"cashflow-service/internal/ledger"
	"cashflow-service/internal/messaging"
	"cashflow-service/internal/resilience"
)

var now = time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)

type mocks struct {
	entries   *ledger.MockEntryStore
	publisher *MockPublisher
	hook      *test.Hook
}

func newService(t *testing.T) (*Service, mocks) {
	t.Helper()

	ctrl := gomock.NewController(t)
	log, hook := test.NewNullLogger()

	m := mocks{
		entries:   ledger.NewMockEntryStore(ctrl),
		publisher: NewMockPublisher(ctrl),
		hook:      hook,
	}

	s := NewService(m.entries, m.publisher, log)
	s.now = func() time.Time { return now }

	return s, m
}

func validParams() CreateParams {
	return CreateParams{
		Amount:      decimal.RequireFromString("150.75"),
		Kind:        ledger.KindCredit,
		Date:        time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		Description: "Invoice 42",
	}
}

func TestService_Create(t *testing.T) {
	type testCase struct {
		name          string
		params        func() CreateParams
		setupMock     func(m mocks)
		wantErr       error
		wantPublished bool
	}

	errDB := errors.New("duplicate key")

	tests := []testCase{
		{
			name:   "stores and publishes",
			params: validParams,
			setupMock: func(m mocks) {
				gomock.InOrder(
					m.entries.EXPECT().Add(gomock.Any(), gomock.Any()).Return(nil),
					m.publisher.EXPECT().Publish(gomock.Any(), gomock.AssignableToTypeOf(ledger.EntryCreatedEvent{})).
						DoAndReturn(func(_ context.Context, e messaging.Event) error {
							event := e.(ledger.EntryCreatedEvent)
							assert.Equal(t, "150.75", event.Amount.String())
							assert.Equal(t, now, event.OccurredAt)
							return nil
						}),
				)
			},
			wantPublished: true,
		},
		{
			name:   "publish failure keeps the entry",
			params: validParams,
			setupMock: func(m mocks) {
				m.entries.EXPECT().Add(gomock.Any(), gomock.Any()).Return(nil)
				m.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(resilience.ErrCircuitOpen)
			},
			wantPublished: false,
		},
		{
			name: "invalid amount is rejected before storing",
			params: func() CreateParams {
				p := validParams()
				p.Amount = decimal.Zero
				return p
			},
			setupMock: func(mocks) {},
			wantErr:   ledger.ErrValidation,
		},
		{
			name: "date too far ahead",
			params: func() CreateParams {
				p := validParams()
				p.Date = now.AddDate(0, 0, 2)
				return p
			},
			setupMock: func(mocks) {},
			wantErr:   ledger.ErrInvalidDate,
		},
		{
			name:   "store failure is not published",
			params: validParams,
			setupMock: func(m mocks) {
				m.entries.EXPECT().Add(gomock.Any(), gomock.Any()).Return(errDB)
			},
			wantErr: errDB,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, m := newService(t)
			tt.setupMock(m)

			got, err := s.Create(context.Background(), tt.params())

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantPublished, got.Published)
			assert.Equal(t, "Invoice 42", got.Entry.Description)
			assert.Equal(t, now, got.Entry.CreatedAt)
		})
	}
}

func TestService_CreateLogsUnpublishedEntry(t *testing.T) {
	s, m := newService(t)

	m.entries.EXPECT().Add(gomock.Any(), gomock.Any()).Return(nil)
	m.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(resilience.ErrUnavailable)

	got, err := s.Create(context.Background(), validParams())
	require.NoError(t, err)

	entry := m.hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, got.Entry.ID.String(), entry.Data["entry_id"])
	assert.ErrorIs(t, entry.Data[logrus.ErrorKey].(error), resilience.ErrUnavailable)
}

func TestService_List(t *testing.T) {
	type testCase struct {
		name       string
		page, size int
		wantOffset int
		wantPage   int
		wantSize   int
	}

	tests := []testCase{
		{name: "first page", page: 1, size: 20, wantOffset: 0, wantPage: 1, wantSize: 20},
		{name: "third page", page: 3, size: 10, wantOffset: 20, wantPage: 3, wantSize: 10},
		{name: "defaults", page: 0, size: 0, wantOffset: 0, wantPage: 1, wantSize: DefaultPageSize},
		{name: "size is capped", page: 2, size: 500, wantOffset: MaxPageSize, wantPage: 2, wantSize: MaxPageSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, m := newService(t)

			m.entries.EXPECT().Count(gomock.Any()).Return(int64(42), nil)
			m.entries.EXPECT().List(gomock.Any(), tt.wantOffset, tt.wantSize).Return(nil, nil)

			got, err := s.List(context.Background(), tt.page, tt.size)
			require.NoError(t, err)

			assert.Equal(t, int64(42), got.Total)
			assert.Equal(t, tt.wantPage, got.Page)
			assert.Equal(t, tt.wantSize, got.Size)
		})
	}
}

func TestService_Lookups(t *testing.T) {
	s, m := newService(t)
	ctx := context.Background()

	e, err := ledger.NewEntry(decimal.NewFromInt(10), ledger.KindDebit, now, "fee", now)
	require.NoError(t, err)

	m.entries.EXPECT().Get(gomock.Any(), e.ID).Return(e, nil)
	m.entries.EXPECT().EntriesForDate(gomock.Any(), now).Return([]ledger.Entry{e}, nil)

	got, err := s.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)

	day, err := s.ForDate(ctx, now)
	require.NoError(t, err)
	assert.Len(t, day, 1)
}
