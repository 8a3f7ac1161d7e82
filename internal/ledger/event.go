package ledger

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventTypeEntryCreated is the logical type of EntryCreatedEvent. Routing keys
// are derived from it, not from the Go type name.
const EventTypeEntryCreated = "EntryCreated"

var ErrInvalidEvent = errors.New("invalid event payload")

// EntryCreatedEvent is a snapshot of an entry at creation time.
type EntryCreatedEvent struct {
	EntryID     uuid.UUID
	Date        time.Time
	Amount      decimal.Decimal
	Kind        Kind
	Description string
	OccurredAt  time.Time
}

func NewEntryCreatedEvent(e Entry) EntryCreatedEvent {
	return EntryCreatedEvent{
		EntryID:     e.ID,
		Date:        e.Date,
		Amount:      e.Amount,
		Kind:        e.Kind,
		Description: e.Description,
		OccurredAt:  e.CreatedAt,
	}
}

func (EntryCreatedEvent) EventType() string {
	return EventTypeEntryCreated
}

type entryCreatedJSON struct {
	EntryID     string          `json:"entryId"`
	Date        string          `json:"date"`
	Amount      json.RawMessage `json:"amount"`
	Kind        string          `json:"kind"`
	Description string          `json:"description"`
	OccurredAt  time.Time       `json:"occurredAt"`
}

// MarshalJSON writes amount as a bare JSON number.
func (e EntryCreatedEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(entryCreatedJSON{
		EntryID:     e.EntryID.String(),
		Date:        e.Date.Format(time.DateOnly),
		Amount:      json.RawMessage(e.Amount.String()),
		Kind:        string(e.Kind),
		Description: e.Description,
		OccurredAt:  e.OccurredAt.UTC(),
	})
}

// DecodeEntryCreatedEvent parses and validates a wire payload. Any failure
// wraps ErrInvalidEvent, which marks the message as poison.
func DecodeEntryCreatedEvent(body []byte) (EntryCreatedEvent, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return EntryCreatedEvent{}, fmt.Errorf("%w: empty body", ErrInvalidEvent)
	}

	var raw entryCreatedJSON
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return EntryCreatedEvent{}, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}

	id, err := uuid.Parse(raw.EntryID)
	if err != nil || id == uuid.Nil {
		return EntryCreatedEvent{}, fmt.Errorf("%w: entryId %q", ErrInvalidEvent, raw.EntryID)
	}

	date, err := parseEventDate(raw.Date)
	if err != nil {
		return EntryCreatedEvent{}, fmt.Errorf("%w: date %q", ErrInvalidEvent, raw.Date)
	}

	var amount decimal.Decimal
	if len(raw.Amount) == 0 {
		return EntryCreatedEvent{}, fmt.Errorf("%w: amount missing", ErrInvalidEvent)
	}

	if err := amount.UnmarshalJSON(raw.Amount); err != nil || !amount.IsPositive() {
		return EntryCreatedEvent{}, fmt.Errorf("%w: amount %s", ErrInvalidEvent, raw.Amount)
	}

	kind, err := ParseKind(raw.Kind)
	if err != nil {
		return EntryCreatedEvent{}, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}

	return EntryCreatedEvent{
		EntryID:     id,
		Date:        date,
		Amount:      amount,
		Kind:        kind,
		Description: raw.Description,
		OccurredAt:  raw.OccurredAt,
	}, nil
}

// parseEventDate accepts a plain date and, for older producers, a full
// timestamp whose calendar day is used.
func parseEventDate(s string) (time.Time, error) {
	if d, err := time.Parse(time.DateOnly, s); err == nil {
		return d, nil
	}

	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}

	return Day(t), nil
}
