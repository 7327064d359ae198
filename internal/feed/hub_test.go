package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Veraticus/ledgerline/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// fakeLedger is a loader whose contents tests mutate between notifications.
type fakeLedger struct {
	txns map[model.Owner][]model.Transaction
	err  error
	mu   sync.Mutex
}

func (f *fakeLedger) add(owner model.Owner, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.txns == nil {
		f.txns = make(map[model.Owner][]model.Transaction)
	}
	f.txns[owner] = append(f.txns[owner], model.Transaction{ID: id, Owner: owner, Amount: decimal.NewFromInt(1)})
}

func (f *fakeLedger) load(_ context.Context, owner model.Owner) ([]model.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]model.Transaction(nil), f.txns[owner]...), nil
}

type recorder struct {
	calls [][]string
	mu    sync.Mutex
}

func (r *recorder) listen(txns []model.Transaction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, len(txns))
	for i, t := range txns {
		ids[i] = t.ID
	}
	r.calls = append(r.calls, ids)
}

func (r *recorder) snapshot() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.calls...)
}

var alice = model.AccountOwner("alice")

func TestHub_SubscribeDeliversInitialSnapshot(t *testing.T) {
	ledger := &fakeLedger{}
	ledger.add(alice, "t1")
	hub := NewHub(ledger.load)

	rec := &recorder{}
	unsubscribe, err := hub.Subscribe(context.Background(), alice, rec.listen)
	require.NoError(t, err)
	defer unsubscribe()

	assert.Equal(t, [][]string{{"t1"}}, rec.snapshot())
	assert.Equal(t, 1, hub.Subscribers(alice))
}

func TestHub_NotifyDeliversFullListInOrder(t *testing.T) {
	ledger := &fakeLedger{}
	hub := NewHub(ledger.load)
	ctx := context.Background()

	rec := &recorder{}
	unsubscribe, err := hub.Subscribe(ctx, alice, rec.listen)
	require.NoError(t, err)
	defer unsubscribe()

	ledger.add(alice, "t1")
	hub.Notify(ctx, alice)
	ledger.add(alice, "t2")
	hub.Notify(ctx, alice)

	assert.Equal(t, [][]string{{}, {"t1"}, {"t1", "t2"}}, rec.snapshot())
}

func TestHub_OwnersAreIsolated(t *testing.T) {
	ledger := &fakeLedger{}
	hub := NewHub(ledger.load)
	ctx := context.Background()
	bob := model.WorkspaceOwner("bob")

	aliceRec, bobRec := &recorder{}, &recorder{}
	_, err := hub.Subscribe(ctx, alice, aliceRec.listen)
	require.NoError(t, err)
	_, err = hub.Subscribe(ctx, bob, bobRec.listen)
	require.NoError(t, err)

	ledger.add(bob, "b1")
	hub.Notify(ctx, bob)

	assert.Len(t, aliceRec.snapshot(), 1)
	assert.Len(t, bobRec.snapshot(), 2)
}

func TestHub_UnsubscribeIsImmediate(t *testing.T) {
	ledger := &fakeLedger{}
	hub := NewHub(ledger.load)
	ctx := context.Background()

	rec := &recorder{}
	unsubscribe, err := hub.Subscribe(ctx, alice, rec.listen)
	require.NoError(t, err)

	unsubscribe()
	unsubscribe()

	ledger.add(alice, "t1")
	hub.Notify(ctx, alice)

	assert.Len(t, rec.snapshot(), 1, "no callbacks after unsubscribe")
	assert.Equal(t, 0, hub.Subscribers(alice))
}

func TestHub_UnsubscribeFromInsideListener(t *testing.T) {
	ledger := &fakeLedger{}
	hub := NewHub(ledger.load)
	ctx := context.Background()

	var (
		unsubscribe func()
		calls       int
	)
	unsubscribe, err := hub.Subscribe(ctx, alice, func([]model.Transaction) {
		calls++
		if unsubscribe != nil {
			unsubscribe()
		}
	})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		hub.Notify(ctx, alice)
		hub.Notify(ctx, alice)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("notify deadlocked when a listener unsubscribed itself")
	}
	assert.Equal(t, 2, calls)
}

func TestHub_ListenerMayNotify(t *testing.T) {
	ledger := &fakeLedger{}
	hub := NewHub(ledger.load)
	ctx := context.Background()

	rec := &recorder{}
	var wrote atomic.Bool
	unsubscribe, err := hub.Subscribe(ctx, alice, func(txns []model.Transaction) {
		rec.listen(txns)
		if len(txns) == 1 && wrote.CompareAndSwap(false, true) {
			ledger.add(alice, "t2")
			hub.Notify(ctx, alice)
		}
	})
	require.NoError(t, err)
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		ledger.add(alice, "t1")
		hub.Notify(ctx, alice)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("notify deadlocked when a listener wrote to the same owner")
	}
	assert.Equal(t, [][]string{{}, {"t1"}, {"t1", "t2"}}, rec.snapshot())
}

func TestHub_SubscribeFromInsideListener(t *testing.T) {
	ledger := &fakeLedger{}
	hub := NewHub(ledger.load)
	ctx := context.Background()

	inner := &recorder{}
	var once sync.Once
	_, err := hub.Subscribe(ctx, alice, func(txns []model.Transaction) {
		if len(txns) == 0 {
			return
		}
		once.Do(func() {
			_, err := hub.Subscribe(ctx, alice, inner.listen)
			assert.NoError(t, err)
		})
	})
	require.NoError(t, err)

	ledger.add(alice, "t1")
	hub.Notify(ctx, alice)
	ledger.add(alice, "t2")
	hub.Notify(ctx, alice)

	assert.Equal(t, [][]string{{"t1"}, {"t1", "t2"}}, inner.snapshot())
	assert.Equal(t, 2, hub.Subscribers(alice))
}

func TestHub_ConcurrentNotifiesNeverGoBackwards(t *testing.T) {
	ledger := &fakeLedger{}
	hub := NewHub(ledger.load)
	ctx := context.Background()

	rec := &recorder{}
	unsubscribe, err := hub.Subscribe(ctx, alice, rec.listen)
	require.NoError(t, err)
	defer unsubscribe()

	var g errgroup.Group
	for i := 0; i < 20; i++ {
		g.Go(func() error {
			ledger.add(alice, fmt.Sprintf("t%d", i))
			hub.Notify(ctx, alice)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	calls := rec.snapshot()
	require.Len(t, calls, 21)
	for i := 1; i < len(calls); i++ {
		assert.GreaterOrEqual(t, len(calls[i]), len(calls[i-1]), "delivery %d went backwards", i)
	}
	assert.Len(t, calls[len(calls)-1], 20)
}

func TestHub_SubscribeLoadError(t *testing.T) {
	boom := errors.New("store down")
	hub := NewHub((&fakeLedger{err: boom}).load)

	_, err := hub.Subscribe(context.Background(), alice, func([]model.Transaction) {})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, hub.Subscribers(alice))
}

type fakePublisher struct {
	owners []model.Owner
	err    error
}

func (p *fakePublisher) PublishChange(_ context.Context, owner model.Owner) error {
	p.owners = append(p.owners, owner)
	return p.err
}

func TestHub_ForwardsToPublisher(t *testing.T) {
	hub := NewHub((&fakeLedger{}).load)
	pub := &fakePublisher{err: errors.New("broker unreachable")}
	hub.SetPublisher(pub)

	// A failing publisher must not affect local delivery.
	hub.Notify(context.Background(), alice)
	hub.NotifyLocal(context.Background(), alice)

	assert.Equal(t, []model.Owner{alice}, pub.owners)
}
