package chain

import (
	"context"
	"encoding/json"
	"sync"

	"rampwatch/pkg/models"
)

// QueryKind identifies which remote state stream a subscription observes.
type QueryKind string

const (
	// QuerySystemAccount streams system account state (balance) for an address.
	QuerySystemAccount QueryKind = "system-account"
	// QueryRampAccounts streams the fiat-ramps account record for an address.
	QueryRampAccounts QueryKind = "ramp-accounts"
)

// Update is one push from the remote source. Kind and Key identify the
// subscription the update was requested for, so callers can discard pushes
// tagged with a key that is no longer current.
type Update struct {
	Kind QueryKind
	Key  models.Address
	Raw  json.RawMessage
}

// UpdateFunc receives pushes for a subscription, in arrival order.
type UpdateFunc func(Update)

// Subscription is a live storage subscription handle. It is owned by the
// scope that requested it and must be released exactly once; Unsubscribe is
// idempotent so releasing on every exit path is safe.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// NewSubscription wraps a cancel function in a single-release handle.
func NewSubscription(cancel func()) *Subscription {
	return &Subscription{cancel: cancel}
}

// Unsubscribe releases the subscription. Safe to call more than once and on
// a nil handle.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}

// QueryService opens live subscriptions to remote state keyed by an address.
//
// Subscribe returns once the remote source acknowledged the subscription.
// An empty key is a no-op: no subscription is opened and a nil handle is
// returned without error.
type QueryService interface {
	Subscribe(ctx context.Context, kind QueryKind, key models.Address, fn UpdateFunc) (*Subscription, error)
}

// Submitter hands a signed transaction to the node and streams its lifecycle.
// The returned channel yields progress notifications and closes after exactly
// one terminal status.
type Submitter interface {
	Submit(ctx context.Context, from models.Address, module, call string, params []interface{}) (<-chan models.SubmitStatus, error)
}
