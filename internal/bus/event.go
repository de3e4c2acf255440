package bus

import "time"

// Event kinds published by the engine. Subscribers filter by namespace
// prefix, e.g. "message." receives every message lifecycle event.
const (
	KindMessageCreated   = "message.created"   // optimistic local insert, status pending
	KindMessageConfirmed = "message.confirmed" // remote append acknowledged
	KindMessageFailed    = "message.failed"    // publish retry budget exhausted
	KindMessageReceived  = "message.received"  // remote entry admitted
	KindConversation     = "conversation.updated"
	KindEngineStatus     = "engine.status_changed"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
