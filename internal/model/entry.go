package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"cashflow-service/internal/ledger"
)

// Entry is the persisted ledger entry.
type Entry struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey"`
	Amount      decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	Kind        string          `gorm:"size:10;not null"`
	Date        time.Time       `gorm:"type:date;index:idx_ledger_entries_date;not null"`
	Description string          `gorm:"size:500;not null"`
	CreatedAt   time.Time       `gorm:"index:idx_ledger_entries_created_at;not null"`
}

// TableName specifies the table name
func (Entry) TableName() string {
	return "ledger_entries"
}

func EntryFromDomain(e ledger.Entry) Entry {
	return Entry{
		ID:          e.ID,
		Amount:      e.Amount,
		Kind:        string(e.Kind),
		Date:        ledger.Day(e.Date),
		Description: e.Description,
		CreatedAt:   e.CreatedAt,
	}
}

// ToDomain goes through the ledger invariants, so a corrupt row surfaces as
// a validation error instead of a bogus entry.
func (m Entry) ToDomain() (ledger.Entry, error) {
	return ledger.RestoreEntry(m.ID, m.Amount, ledger.Kind(m.Kind), m.Date, m.Description, m.CreatedAt)
}
