package balance

import (
	"cashflow-service/internal/consolidation"
	"cashflow-service/internal/ledger"
)

type reportResponse struct {
	From    string                `json:"from"`
	To      string                `json:"to"`
	Days    []ledger.DailyBalance `json:"days"`
	Summary consolidation.Summary `json:"summary"`
}
