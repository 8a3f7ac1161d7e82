package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"cashflow-service/internal/ledger"
	"cashflow-service/internal/model"
)

// EntryRepository is the authoritative ledger store.
type EntryRepository struct {
	db  *gorm.DB
	log *logrus.Logger
}

var _ ledger.EntryStore = (*EntryRepository)(nil)

func NewEntryRepository(db *gorm.DB, log *logrus.Logger) *EntryRepository {
	return &EntryRepository{
		db:  db,
		log: log,
	}
}

func (r *EntryRepository) Add(ctx context.Context, e ledger.Entry) error {
	row := model.EntryFromDomain(e)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert entry %s: %w", e.ID, err)
	}

	return nil
}

func (r *EntryRepository) Get(ctx context.Context, id uuid.UUID) (ledger.Entry, error) {
	var row model.Entry

	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ledger.Entry{}, ledger.ErrEntryNotFound
	}

	if err != nil {
		return ledger.Entry{}, fmt.Errorf("failed to get entry %s: %w", id, err)
	}

	return row.ToDomain()
}

// EntriesForDate scans the [day, day+1) window.
func (r *EntryRepository) EntriesForDate(ctx context.Context, date time.Time) ([]ledger.Entry, error) {
	day := ledger.Day(date)
	return r.window(ctx, day, day.AddDate(0, 0, 1))
}

// EntriesForPeriod returns the entries of every day from `from` to `to`,
// both inclusive.
func (r *EntryRepository) EntriesForPeriod(ctx context.Context, from, to time.Time) ([]ledger.Entry, error) {
	return r.window(ctx, ledger.Day(from), ledger.Day(to).AddDate(0, 0, 1))
}

func (r *EntryRepository) window(ctx context.Context, from, until time.Time) ([]ledger.Entry, error) {
	var rows []model.Entry

	err := r.db.WithContext(ctx).
		Where("date >= ? AND date < ?", from, until).
		Order("date, created_at, id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load entries from %s to %s: %w",
			from.Format(time.DateOnly), until.Format(time.DateOnly), err)
	}

	return toEntries(rows)
}

// List pages through the ledger newest first.
func (r *EntryRepository) List(ctx context.Context, offset, limit int) ([]ledger.Entry, error) {
	var rows []model.Entry

	err := r.db.WithContext(ctx).
		Order("created_at DESC, id").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}

	return toEntries(rows)
}

func (r *EntryRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Entry{}).Count(&count).Error
	return count, err
}

func toEntries(rows []model.Entry) ([]ledger.Entry, error) {
	entries := make([]ledger.Entry, 0, len(rows))

	for _, row := range rows {
		e, err := row.ToDomain()
		if err != nil {
			return nil, fmt.Errorf("corrupt entry row %s: %w", row.ID, err)
		}

		entries = append(entries, e)
	}

	return entries, nil
}
