package model

import (
	"time"

	"github.com/shopspring/decimal"

	"cashflow-service/internal/ledger"
)

// DailyBalance is the consolidated row of one calendar day. It is replaced
// wholesale on every recomputation.
type DailyBalance struct {
	ID           uint            `gorm:"primarykey"`
	Date         time.Time       `gorm:"type:date;uniqueIndex:idx_daily_balances_date;not null"`
	TotalCredits decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	TotalDebits  decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	EntryCount   int             `gorm:"not null;default:0"`
	ProcessedAt  time.Time       `gorm:"not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TableName specifies the table name
func (DailyBalance) TableName() string {
	return "daily_balances"
}

func DailyBalanceFromDomain(b ledger.DailyBalance) DailyBalance {
	return DailyBalance{
		Date:         ledger.Day(b.Date),
		TotalCredits: b.TotalCredits,
		TotalDebits:  b.TotalDebits,
		EntryCount:   b.EntryCount,
		ProcessedAt:  b.ProcessedAt,
	}
}

func (m DailyBalance) ToDomain() (ledger.DailyBalance, error) {
	return ledger.RestoreDailyBalance(m.Date, m.TotalCredits, m.TotalDebits, m.EntryCount, m.ProcessedAt)
}
