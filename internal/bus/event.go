package bus

import "time"

// Event kinds published by the core packages. Subscribers filter by
// prefix, e.g. "chat." for everything the sync core emits.
const (
	KindSnapshot     = "chat.snapshot"
	KindModeChanged  = "chat.mode_changed"
	KindSendRejected = "chat.send_rejected"
	KindNetChanged   = "net.changed"
)

// Event is a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
