package watcher

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rampwatch/pkg/chain"
	"rampwatch/pkg/config"
	"rampwatch/pkg/models"
	"rampwatch/pkg/project"
)

const (
	testRecipient = models.Address("5Recipient")
	testAccountA  = models.Address("5Alice")
	testAccountB  = models.Address("5Bob")
)

type fakeSub struct {
	kind     chain.QueryKind
	key      models.Address
	fn       chain.UpdateFunc
	released bool
}

type fakeQueries struct {
	mu   sync.Mutex
	subs []*fakeSub
	err  error
	gate chan struct{} // when non-nil, Subscribe blocks until closed
}

func (f *fakeQueries) Subscribe(ctx context.Context, kind chain.QueryKind, key models.Address, fn chain.UpdateFunc) (*chain.Subscription, error) {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if f.err != nil {
		return nil, f.err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	s := &fakeSub{kind: kind, key: key, fn: fn}
	f.subs = append(f.subs, s)
	return chain.NewSubscription(func() {
		f.mu.Lock()
		s.released = true
		f.mu.Unlock()
	}), nil
}

func (f *fakeQueries) sub(i int) *fakeSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.subs) {
		return nil
	}
	return f.subs[i]
}

func (f *fakeQueries) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *fakeQueries) releasedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.subs {
		if s.released {
			n++
		}
	}
	return n
}

func testUnits() config.UnitsConfig {
	return config.UnitsConfig{
		Unit:          config.DefaultUnit,
		Decimals:      config.DefaultDecimals,
		BaselineUnits: config.DefaultBaselineUnits,
	}
}

func newTestWatcher(queries chain.QueryService) *Watcher {
	return NewWatcher(queries, testRecipient, testUnits(), zerolog.Nop())
}

func balanceRaw(free *big.Int) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"data":{"free":"%s"}}`, free.String()))
}

func recordRaw(iban string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"iban":"%s"}`, project.EncodeIBAN(iban)))
}

func waitEvent(t *testing.T, ch Subscriber, want EventType) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			require.True(t, ok, "subscriber channel closed while waiting for %s", want)
			if ev.Type == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("no %s event within deadline", want)
		}
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	w := newTestWatcher(&fakeQueries{})

	ch := w.Subscribe()
	other := w.Subscribe()
	w.notify(Event{Type: EventDonationsUpdated})

	waitEvent(t, ch, EventDonationsUpdated)
	waitEvent(t, other, EventDonationsUpdated)

	w.Unsubscribe(ch)
	_, ok := <-ch
	assert.False(t, ok, "unsubscribed channel should be closed")
}

func TestBalanceProjection(t *testing.T) {
	fq := &fakeQueries{}
	w := newTestWatcher(fq)
	ch := w.Subscribe()

	w.Start(context.Background())
	require.Eventually(t, func() bool { return fq.count() == 1 }, time.Second, 5*time.Millisecond)

	sub := fq.sub(0)
	assert.Equal(t, chain.QuerySystemAccount, sub.kind)
	assert.Equal(t, testRecipient, sub.key)

	// baseline 1000 units plus 5 units of donations
	free := new(big.Int).Add(testUnits().Baseline(), big.NewInt(50000000000))
	sub.fn(chain.Update{Kind: chain.QuerySystemAccount, Key: testRecipient, Raw: balanceRaw(free)})

	ev := waitEvent(t, ch, EventDonationsUpdated)
	data := ev.Data.(DonationsData)
	assert.Equal(t, "50000000000", data.Delta.String())
	assert.Equal(t, "5 pEURO", data.Display)

	delta, display := w.Donations()
	assert.Equal(t, "50000000000", delta.String())
	assert.Equal(t, "5 pEURO", display)
}

func TestRecordProjection(t *testing.T) {
	fq := &fakeQueries{}
	w := newTestWatcher(fq)
	ch := w.Subscribe()

	w.SetAccount(context.Background(), testAccountA)
	require.Eventually(t, func() bool { return fq.count() == 1 }, time.Second, 5*time.Millisecond)

	_, known := w.Record()
	assert.False(t, known, "record is unknown before the first push")

	sub := fq.sub(0)
	sub.fn(chain.Update{Kind: chain.QueryRampAccounts, Key: testAccountA, Raw: recordRaw("CH2100000000000000000")})

	ev := waitEvent(t, ch, EventRecordUpdated)
	data := ev.Data.(RecordData)
	assert.True(t, data.Record.Present)
	assert.Equal(t, "CH2100000000000000000", data.Record.IBAN)
	assert.True(t, w.Registered())

	// an absent push is still a known answer
	sub.fn(chain.Update{Kind: chain.QueryRampAccounts, Key: testAccountA, Raw: json.RawMessage("null")})
	waitEvent(t, ch, EventRecordUpdated)
	rec, known := w.Record()
	assert.True(t, known)
	assert.False(t, rec.Present)
	assert.False(t, w.Registered())
}

func TestRekeyDiscardsStalePush(t *testing.T) {
	fq := &fakeQueries{}
	w := newTestWatcher(fq)

	w.SetAccount(context.Background(), testAccountA)
	require.Eventually(t, func() bool { return fq.count() == 1 }, time.Second, 5*time.Millisecond)
	old := fq.sub(0)

	w.SetAccount(context.Background(), testAccountB)
	require.Eventually(t, func() bool { return fq.count() == 2 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return fq.sub(0).released }, time.Second, 5*time.Millisecond)

	// a push from the superseded watch must not touch derived state
	old.fn(chain.Update{Kind: chain.QueryRampAccounts, Key: testAccountA, Raw: recordRaw("CH21")})
	_, known := w.Record()
	assert.False(t, known)
	assert.Equal(t, testAccountB, w.Account())

	// the live watch still applies
	fq.sub(1).fn(chain.Update{Kind: chain.QueryRampAccounts, Key: testAccountB, Raw: recordRaw("DE89")})
	rec, known := w.Record()
	assert.True(t, known)
	assert.Equal(t, "DE89", rec.IBAN)
}

func TestLateSetupResolutionReleased(t *testing.T) {
	gate := make(chan struct{})
	fq := &fakeQueries{gate: gate}
	w := newTestWatcher(fq)

	// both rekeys race their setup; only the newest may keep its handle
	w.SetAccount(context.Background(), testAccountA)
	w.SetAccount(context.Background(), testAccountB)
	close(gate)

	require.Eventually(t, func() bool { return fq.count() == 2 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return fq.releasedCount() == 1 }, time.Second, 5*time.Millisecond)

	fq.mu.Lock()
	defer fq.mu.Unlock()
	for _, s := range fq.subs {
		if s.key == testAccountA {
			assert.True(t, s.released, "superseded setup must be released on resolution")
		} else {
			assert.False(t, s.released, "live setup must be kept")
		}
	}
}

func TestStopReleasesWatches(t *testing.T) {
	fq := &fakeQueries{}
	w := newTestWatcher(fq)

	w.Start(context.Background())
	w.SetAccount(context.Background(), testAccountA)
	require.Eventually(t, func() bool { return fq.count() == 2 }, time.Second, 5*time.Millisecond)

	w.Stop()
	require.Eventually(t, func() bool { return fq.releasedCount() == 2 }, time.Second, 5*time.Millisecond)

	// pushes after Stop are ignored
	fq.sub(1).fn(chain.Update{Kind: chain.QueryRampAccounts, Key: testAccountA, Raw: recordRaw("CH21")})
	_, known := w.Record()
	assert.False(t, known)

	// and rekeys after Stop do not open anything
	w.SetAccount(context.Background(), testAccountB)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 2, fq.count())
}

func TestEmptyAccountReleasesOnly(t *testing.T) {
	fq := &fakeQueries{}
	w := newTestWatcher(fq)

	w.SetAccount(context.Background(), testAccountA)
	require.Eventually(t, func() bool { return fq.count() == 1 }, time.Second, 5*time.Millisecond)

	w.SetAccount(context.Background(), "")
	require.Eventually(t, func() bool { return fq.sub(0).released }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, fq.count())
}

func TestSetupErrorNotifies(t *testing.T) {
	fq := &fakeQueries{err: fmt.Errorf("node unreachable")}
	w := newTestWatcher(fq)
	ch := w.Subscribe()

	w.Start(context.Background())
	ev := waitEvent(t, ch, EventWatchError)
	data := ev.Data.(WatchErrorData)
	assert.Equal(t, chain.QuerySystemAccount, data.Kind)
	assert.ErrorContains(t, data.Err, "node unreachable")
}
