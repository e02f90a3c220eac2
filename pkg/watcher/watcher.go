package watcher

import (
	"context"
	"math/big"
	"sync"

	"github.com/rs/zerolog"

	"rampwatch/pkg/chain"
	"rampwatch/pkg/config"
	"rampwatch/pkg/models"
	"rampwatch/pkg/project"
)

// Watcher maintains a live mirror of the remote account state this client
// cares about: the recipient's balance and the active account's ramp record.
// It owns at most one subscription per query kind; changing the watched key
// releases the previous handle and opens a new one. Every open bumps a key
// token, and pushes or late setup resolutions carrying a superseded token are
// discarded, so stale updates can never reach derived state.
type Watcher struct {
	log       zerolog.Logger
	queries   chain.QueryService
	units     config.UnitsConfig
	recipient models.Address

	mu          sync.RWMutex
	subscribers []Subscriber
	epochs      map[chain.QueryKind]uint64
	handles     map[chain.QueryKind]*chain.Subscription
	account     models.Address
	donations   *big.Int
	record      models.AccountRecord
	recordKnown bool
	stopped     bool
}

// NewWatcher creates a watcher for the given recipient. The query service is
// injected; tests swap in a mock.
func NewWatcher(queries chain.QueryService, recipient models.Address, units config.UnitsConfig, log zerolog.Logger) *Watcher {
	return &Watcher{
		log:       log.With().Str("component", "watcher").Logger(),
		queries:   queries,
		units:     units,
		recipient: recipient,
		epochs:    make(map[chain.QueryKind]uint64),
		handles:   make(map[chain.QueryKind]*chain.Subscription),
	}
}

// Subscribe adds a new subscriber and returns a channel to receive events.
func (w *Watcher) Subscribe() Subscriber {
	w.mu.Lock()
	defer w.mu.Unlock()
	ch := make(Subscriber, 100)
	w.subscribers = append(w.subscribers, ch)
	return ch
}

// Unsubscribe removes a subscriber.
func (w *Watcher) Unsubscribe(ch Subscriber) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, sub := range w.subscribers {
		if sub == ch {
			w.subscribers = append(w.subscribers[:i], w.subscribers[i+1:]...)
			close(ch)
			break
		}
	}
}

func (w *Watcher) notify(event Event) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, sub := range w.subscribers {
		select {
		case sub <- event:
		default:
			// slow subscriber, drop
		}
	}
}

// Start opens the recipient balance watch. The recipient key is fixed for the
// watcher's lifetime.
func (w *Watcher) Start(ctx context.Context) {
	w.open(ctx, chain.QuerySystemAccount, w.recipient)
}

// SetAccount switches the ramp-record watch to the given address. An empty
// address releases the watch without opening a new one.
func (w *Watcher) SetAccount(ctx context.Context, addr models.Address) {
	w.mu.Lock()
	w.account = addr
	w.record = models.AccountRecord{}
	w.recordKnown = false
	w.mu.Unlock()
	w.open(ctx, chain.QueryRampAccounts, addr)
}

// Stop releases every live subscription. Handles are single-release, so a
// concurrent rekey cannot double-unsubscribe.
func (w *Watcher) Stop() {
	w.mu.Lock()
	w.stopped = true
	handles := w.handles
	w.handles = make(map[chain.QueryKind]*chain.Subscription)
	for kind := range w.epochs {
		w.epochs[kind]++
	}
	w.mu.Unlock()
	for _, h := range handles {
		h.Unsubscribe()
	}
}

// open rekeys the subscription for kind: the previous handle is released
// first, then the new subscription is established asynchronously. If setup
// resolves after a newer rekey (or Stop) superseded it, the fresh handle is
// released immediately instead of being kept.
func (w *Watcher) open(ctx context.Context, kind chain.QueryKind, key models.Address) {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.epochs[kind]++
	epoch := w.epochs[kind]
	prev := w.handles[kind]
	delete(w.handles, kind)
	w.mu.Unlock()

	prev.Unsubscribe()
	if key == "" {
		return
	}

	go func() {
		sub, err := w.queries.Subscribe(ctx, kind, key, func(u chain.Update) {
			w.apply(epoch, u)
		})
		if err != nil {
			// Setup failure is not fatal: derived state keeps its
			// last-known value.
			w.log.Warn().Err(err).Str("kind", string(kind)).Str("key", string(key)).Msg("subscription setup failed")
			w.notify(Event{Type: EventWatchError, Data: WatchErrorData{Kind: kind, Err: err}})
			return
		}

		w.mu.Lock()
		if w.stopped || w.epochs[kind] != epoch {
			w.mu.Unlock()
			sub.Unsubscribe()
			return
		}
		w.handles[kind] = sub
		w.mu.Unlock()
	}()
}

// apply projects one raw push into derived state, unless the push carries a
// superseded key token or a key that no longer matches the watch target.
func (w *Watcher) apply(epoch uint64, u chain.Update) {
	w.mu.Lock()
	if w.stopped || w.epochs[u.Kind] != epoch {
		w.mu.Unlock()
		return
	}

	switch u.Kind {
	case chain.QuerySystemAccount:
		if u.Key != w.recipient {
			w.mu.Unlock()
			return
		}
		obs, err := project.DecodeBalance(u.Raw)
		if err != nil {
			w.mu.Unlock()
			w.log.Warn().Err(err).Msg("discarding balance push")
			return
		}
		delta := project.DonationDelta(obs.Free, w.units.Baseline())
		w.donations = delta
		display := project.FormatUnits(delta, w.units.Decimals, w.units.Unit)
		w.mu.Unlock()
		w.notify(Event{Type: EventDonationsUpdated, Data: DonationsData{Delta: delta, Display: display}})

	case chain.QueryRampAccounts:
		if u.Key != w.account {
			w.mu.Unlock()
			return
		}
		rec, err := project.DecodeRecord(u.Raw)
		if err != nil {
			w.mu.Unlock()
			w.log.Warn().Err(err).Msg("discarding record push")
			return
		}
		w.record = rec
		w.recordKnown = true
		w.mu.Unlock()
		w.notify(Event{Type: EventRecordUpdated, Data: RecordData{Address: u.Key, Record: rec}})

	default:
		w.mu.Unlock()
	}
}

// Donations returns the last derived donation delta and its display form.
// The delta is nil until the first balance push arrives.
func (w *Watcher) Donations() (*big.Int, string) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.donations == nil {
		return nil, ""
	}
	return new(big.Int).Set(w.donations), project.FormatUnits(w.donations, w.units.Decimals, w.units.Unit)
}

// Record returns the active account's record projection and whether any push
// has arrived for the current key yet.
func (w *Watcher) Record() (models.AccountRecord, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.record, w.recordKnown
}

// Registered reports whether the active account has a present ramp record.
func (w *Watcher) Registered() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return project.Registered(w.record)
}

// Account returns the address the ramp-record watch currently targets.
func (w *Watcher) Account() models.Address {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.account
}

// Recipient returns the fixed recipient address.
func (w *Watcher) Recipient() models.Address {
	return w.recipient
}
