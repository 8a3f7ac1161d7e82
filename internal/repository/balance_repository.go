package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"cashflow-service/internal/ledger"
	"cashflow-service/internal/model"
)

type BalanceRepository struct {
	db  *gorm.DB
	log *logrus.Logger
}

var _ ledger.BalanceStore = (*BalanceRepository)(nil)

func NewBalanceRepository(db *gorm.DB, log *logrus.Logger) *BalanceRepository {
	return &BalanceRepository{
		db:  db,
		log: log,
	}
}

// Upsert replaces the row of the balance's date wholesale.
func (r *BalanceRepository) Upsert(ctx context.Context, b ledger.DailyBalance) error {
	row := model.DailyBalanceFromDomain(b)

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"total_credits",
			"total_debits",
			"entry_count",
			"processed_at",
			"updated_at",
		}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to upsert balance %s: %w", b.Date.Format(time.DateOnly), err)
	}

	return nil
}

func (r *BalanceRepository) Get(ctx context.Context, date time.Time) (ledger.DailyBalance, error) {
	var row model.DailyBalance

	err := r.db.WithContext(ctx).Where("date = ?", ledger.Day(date)).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ledger.DailyBalance{}, ledger.ErrBalanceNotFound
	}

	if err != nil {
		return ledger.DailyBalance{}, fmt.Errorf("failed to get balance %s: %w", date.Format(time.DateOnly), err)
	}

	return row.ToDomain()
}

// Range returns the consolidated days between from and to inclusive, ordered
// by date. Days never consolidated are absent.
func (r *BalanceRepository) Range(ctx context.Context, from, to time.Time) ([]ledger.DailyBalance, error) {
	var rows []model.DailyBalance

	err := r.db.WithContext(ctx).
		Where("date >= ? AND date <= ?", ledger.Day(from), ledger.Day(to)).
		Order("date").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load balances: %w", err)
	}

	balances := make([]ledger.DailyBalance, 0, len(rows))

	for _, row := range rows {
		b, err := row.ToDomain()
		if err != nil {
			return nil, fmt.Errorf("corrupt balance row %d: %w", row.ID, err)
		}

		balances = append(balances, b)
	}

	return balances, nil
}
