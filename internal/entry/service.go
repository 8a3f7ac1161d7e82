package entry

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"cashflow-service/internal/ledger"
	"cashflow-service/internal/messaging"
)

//go:generate mockgen -source=service.go -destination=service_mock.go -package=entry

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Publisher sends integration events to the transport.
type Publisher interface {
	Publish(ctx context.Context, event messaging.Event) error
}

type CreateParams struct {
	Amount      decimal.Decimal
	Kind        ledger.Kind
	Date        time.Time
	Description string
}

// CreateResult reports whether the entry-created event left the process.
// An unpublished entry is still stored; the next event or a forced
// recalculation of its day picks it up.
type CreateResult struct {
	Entry     ledger.Entry
	Published bool
}

type Page struct {
	Items []ledger.Entry
	Total int64
	Page  int
	Size  int
}

type Service struct {
	entries   ledger.EntryStore
	publisher Publisher
	now       func() time.Time
	log       *logrus.Logger
}

func NewService(entries ledger.EntryStore, publisher Publisher, log *logrus.Logger) *Service {
	return &Service{
		entries:   entries,
		publisher: publisher,
		now:       time.Now,
		log:       log,
	}
}

// Create validates and stores an entry, then publishes EntryCreated once.
// Publish failures never fail or roll back the write.
func (s *Service) Create(ctx context.Context, p CreateParams) (CreateResult, error) {
	e, err := ledger.NewEntry(p.Amount, p.Kind, p.Date, p.Description, s.now())
	if err != nil {
		return CreateResult{}, err
	}

	if err := s.entries.Add(ctx, e); err != nil {
		return CreateResult{}, fmt.Errorf("storing entry: %w", err)
	}

	log := s.log.WithFields(logrus.Fields{
		"entry_id": e.ID.String(),
		"date":     e.Date.Format(time.DateOnly),
		"kind":     string(e.Kind),
	})

	if err := s.publisher.Publish(ctx, ledger.NewEntryCreatedEvent(e)); err != nil {
		log.WithError(err).Error("entry stored but EntryCreated was not published")
		return CreateResult{Entry: e, Published: false}, nil
	}

	log.Info("entry created")

	return CreateResult{Entry: e, Published: true}, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (ledger.Entry, error) {
	return s.entries.Get(ctx, id)
}

func (s *Service) ForDate(ctx context.Context, date time.Time) ([]ledger.Entry, error) {
	return s.entries.EntriesForDate(ctx, date)
}

// List pages through the ledger newest first. Out-of-range page and size
// values are clamped.
func (s *Service) List(ctx context.Context, page, size int) (Page, error) {
	if page < 1 {
		page = 1
	}

	if size < 1 {
		size = DefaultPageSize
	}

	size = min(size, MaxPageSize)

	total, err := s.entries.Count(ctx)
	if err != nil {
		return Page{}, fmt.Errorf("counting entries: %w", err)
	}

	items, err := s.entries.List(ctx, (page-1)*size, size)
	if err != nil {
		return Page{}, fmt.Errorf("listing entries: %w", err)
	}

	return Page{Items: items, Total: total, Page: page, Size: size}, nil
}
