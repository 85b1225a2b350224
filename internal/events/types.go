package events

import "errors"

// Errors returned by bus and receiver operations.
var (
	ErrBusClosed          = errors.New("events: bus is closed")
	ErrSubscriberExists   = errors.New("events: subscriber already exists")
	ErrSubscriberNotFound = errors.New("events: subscriber not found")
	ErrNilChannel         = errors.New("events: nil channel provided")
	ErrReceiverClosed     = errors.New("events: receiver is closed")
)

// DropPolicy defines how the bus handles values when a subscriber
// cannot keep up.
type DropPolicy int

const (
	// DropNew discards the incoming value when the subscriber channel
	// is full.
	DropNew DropPolicy = iota
	// DropOld overwrites the pending value so the subscriber always
	// sees the newest one.
	DropOld
)

// SubscriberStats tracks delivery counts for one subscriber.
type SubscriberStats struct {
	Sent    uint64
	Dropped uint64
}
