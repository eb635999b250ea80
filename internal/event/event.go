package event

import (
	"encoding/json"

	"github.com/trackerhq/tracker-core/internal/cache"
)

// Kind names a category of server-pushed change notification.
type Kind string

// Domain events: something in the household changed and cached queries
// covering it are now stale.
const (
	PantryUpdated    Kind = "pantry_updated"
	ReceiptConfirmed Kind = "receipt_confirmed"
	GoalUpdated      Kind = "goal_updated"
	BankSynced       Kind = "bank_synced"
	Notification     Kind = "notification"
)

// Protocol frames: emitted by the server for connection housekeeping.
// They carry no domain change and invalidate nothing.
const (
	Connected Kind = "connected"
	Ping      Kind = "ping"
	Ack       Kind = "ack"
)

// MapVersion identifies the invalidation table revision. The relay echoes it
// in the connected greeting so a client/server taxonomy mismatch is visible
// in logs instead of silently under-invalidating.
const MapVersion = 1

// Message is the wire frame pushed over the event channel. Events identify
// what changed, never what it changed to; clients re-fetch to learn the rest.
type Message struct {
	Event Kind           `json:"event"`
	Data  map[string]any `json:"data,omitempty"`
}

// Decode parses a raw frame. It returns ok=false for malformed JSON or a
// frame without an event field; such frames must be dropped without effect.
func Decode(raw []byte) (Message, bool) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, false
	}
	if msg.Event == "" {
		return Message{}, false
	}
	return msg, true
}

// invalidations is the authoritative table from event kind to the cache key
// patterns whose underlying data that event can affect. One event fans out to
// every query it touches: a confirmed receipt changes the receipt list, the
// pantry it stocked, the expiring-soon view, and the month's budget totals.
// Under-invalidation here is a correctness bug; over-invalidation only costs
// a redundant refetch.
var invalidations = map[Kind][]cache.Key{
	PantryUpdated: {
		cache.NewKey("pantry"),
		cache.NewKey("expiring"),
		cache.NewKey("shopping-list"),
	},
	ReceiptConfirmed: {
		cache.NewKey("receipts"),
		cache.NewKey("pantry"),
		cache.NewKey("expiring"),
		cache.NewKey("budget"),
	},
	GoalUpdated: {
		cache.NewKey("goals"),
	},
	BankSynced: {
		cache.NewKey("bank-transactions"),
		cache.NewKey("budget"),
	},
	Notification: {
		cache.NewKey("notifications"),
	},
	Connected: {},
	Ping:      {},
	Ack:       {},
}

// Invalidations returns the cache key patterns affected by kind. Unknown
// kinds return nil: the server is free to introduce new events before every
// client understands them.
func Invalidations(kind Kind) []cache.Key {
	return invalidations[kind]
}

// Known reports whether kind appears in the invalidation table, including
// protocol frames with empty invalidation sets.
func Known(kind Kind) bool {
	_, ok := invalidations[kind]
	return ok
}

// Kinds returns every kind in the invalidation table.
func Kinds() []Kind {
	out := make([]Kind, 0, len(invalidations))
	for k := range invalidations {
		out = append(out, k)
	}
	return out
}
