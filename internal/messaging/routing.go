package messaging

import "strings"

// Event is a message with a stable logical type.
type Event interface {
	EventType() string
}

// routingKeys maps logical event types to routing keys. The wire contract
// depends on this table, never on Go type names.
var routingKeys = map[string]string{
	"EntryCreated":        "entry.created",
	"BalanceRecalculated": "balance.recalculated",
}

// RoutingKey falls back to the lower-cased type for unmapped events.
func RoutingKey(eventType string) string {
	if key, ok := routingKeys[eventType]; ok {
		return key
	}

	return strings.ToLower(eventType)
}
