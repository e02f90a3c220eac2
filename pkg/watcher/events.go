package watcher

import (
	"math/big"

	"rampwatch/pkg/chain"
	"rampwatch/pkg/models"
)

// EventType defines the type of event being broadcast.
type EventType string

const (
	EventDonationsUpdated EventType = "donations_updated"
	EventRecordUpdated    EventType = "record_updated"
	EventWatchError       EventType = "watch_error"
)

// Event represents a state-mirror event.
type Event struct {
	Type EventType
	Data interface{}
}

// DonationsData carries the derived donation delta for the recipient.
type DonationsData struct {
	Delta   *big.Int
	Display string
}

// RecordData carries the account record projection for an address.
type RecordData struct {
	Address models.Address
	Record  models.AccountRecord
}

// WatchErrorData reports a subscription setup failure. Derived state stays at
// its last-known value; this is informational, not fatal.
type WatchErrorData struct {
	Kind chain.QueryKind
	Err  error
}

// Subscriber is a channel that receives events.
type Subscriber chan Event
