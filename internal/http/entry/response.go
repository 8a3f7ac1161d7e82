package entry

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"cashflow-service/internal/ledger"
)

type entryResponse struct {
	ID          uuid.UUID       `json:"id"`
	Amount      decimal.Decimal `json:"amount"`
	Kind        ledger.Kind     `json:"kind"`
	Date        string          `json:"date"`
	Description string          `json:"description"`
	CreatedAt   time.Time       `json:"createdAt"`
}

type createEntryResponse struct {
	entryResponse
	Published bool `json:"published"`
}

type pageResponse struct {
	Items []entryResponse `json:"items"`
	Total int64           `json:"total"`
	Page  int             `json:"page"`
	Size  int             `json:"size"`
}

func toResponse(e ledger.Entry) entryResponse {
	return entryResponse{
		ID:          e.ID,
		Amount:      e.Amount,
		Kind:        e.Kind,
		Date:        e.Date.Format(time.DateOnly),
		Description: e.Description,
		CreatedAt:   e.CreatedAt,
	}
}

func toResponseList(entries []ledger.Entry) []entryResponse {
	resp := make([]entryResponse, len(entries))
	for i, e := range entries {
		resp[i] = toResponse(e)
	}

	return resp
}
