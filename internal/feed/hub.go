// Package feed pushes an owner's full transaction list to subscribers after
// every committed write. Delivery for one owner is serialized so listeners
// observe lists in commit order.
package feed

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/Veraticus/ledgerline/internal/model"
)

// Listener receives the owner's complete current transaction list.
type Listener func([]model.Transaction)

// Loader reads the owner's current transaction list.
type Loader func(ctx context.Context, owner model.Owner) ([]model.Transaction, error)

// Publisher forwards change notifications to other processes.
type Publisher interface {
	PublishChange(ctx context.Context, owner model.Owner) error
}

type subscription struct {
	listener Listener
	active   atomic.Bool
}

// delivery is one snapshot bound for the subscribers registered when it was
// loaded.
type delivery struct {
	snapshot []model.Transaction
	subs     []*subscription
}

// ownerFeed serializes snapshot delivery for a single owner. Snapshots are
// loaded and queued under mu; listeners run outside it, one delivery at a
// time, on whichever goroutine found the queue idle.
type ownerFeed struct {
	subs       map[uint64]*subscription
	queue      []delivery
	mu         sync.Mutex
	delivering bool
}

// enqueueLocked queues d and reports whether the caller must drain.
func (f *ownerFeed) enqueueLocked(d delivery) bool {
	f.queue = append(f.queue, d)
	if f.delivering {
		return false
	}
	f.delivering = true
	return true
}

// drain runs queued deliveries until the queue is empty.
func (f *ownerFeed) drain() {
	for {
		f.mu.Lock()
		if len(f.queue) == 0 {
			f.delivering = false
			f.mu.Unlock()
			return
		}
		d := f.queue[0]
		f.queue[0] = delivery{}
		f.queue = f.queue[1:]
		f.mu.Unlock()

		for _, sub := range d.subs {
			if sub.active.Load() {
				sub.listener(d.snapshot)
			}
		}
	}
}

// Hub fans out transaction snapshots to in-process subscribers.
type Hub struct {
	load   Loader
	remote Publisher
	feeds  map[model.Owner]*ownerFeed
	mu     sync.Mutex
	nextID uint64
}

// NewHub returns a Hub that reads snapshots through load.
func NewHub(load Loader) *Hub {
	return &Hub{
		load:  load,
		feeds: make(map[model.Owner]*ownerFeed),
	}
}

// SetPublisher forwards every local notification to remote as well.
func (h *Hub) SetPublisher(remote Publisher) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remote = remote
}

// Subscribe registers listener for owner and queues the current list for
// it. When no other delivery for owner is under way the list arrives before
// Subscribe returns; otherwise it follows the deliveries already queued.
//
// The returned function stops further deliveries and is safe to call more
// than once, including from inside a listener. A callback already under way
// on another goroutine may still finish after it returns.
func (h *Hub) Subscribe(ctx context.Context, owner model.Owner, listener Listener) (func(), error) {
	sub := &subscription{listener: listener}
	sub.active.Store(true)

	h.mu.Lock()
	feed := h.feedLocked(owner)
	h.nextID++
	id := h.nextID
	h.mu.Unlock()

	feed.mu.Lock()
	snapshot, err := h.load(ctx, owner)
	if err != nil {
		feed.mu.Unlock()
		return nil, err
	}
	feed.subs[id] = sub
	mustDrain := feed.enqueueLocked(delivery{snapshot: snapshot, subs: []*subscription{sub}})
	feed.mu.Unlock()

	if mustDrain {
		feed.drain()
	}
	slog.Debug("Feed subscriber added", "owner", owner.String(), "id", id)

	return func() {
		if !sub.active.CompareAndSwap(true, false) {
			return
		}
		feed.mu.Lock()
		delete(feed.subs, id)
		feed.mu.Unlock()
	}, nil
}

// Notify delivers a fresh snapshot to the owner's subscribers and forwards
// the change to the remote publisher when one is set.
func (h *Hub) Notify(ctx context.Context, owner model.Owner) {
	h.NotifyLocal(ctx, owner)

	h.mu.Lock()
	remote := h.remote
	h.mu.Unlock()
	if remote == nil {
		return
	}
	if err := remote.PublishChange(ctx, owner); err != nil {
		slog.Warn("Failed to publish feed change", "owner", owner.String(), "error", err)
	}
}

// NotifyLocal delivers a fresh snapshot to in-process subscribers only.
// Called from inside a listener it queues the snapshot behind the current
// delivery and returns at once.
func (h *Hub) NotifyLocal(ctx context.Context, owner model.Owner) {
	h.mu.Lock()
	feed, ok := h.feeds[owner]
	h.mu.Unlock()
	if !ok {
		return
	}

	feed.mu.Lock()
	if len(feed.subs) == 0 {
		feed.mu.Unlock()
		return
	}
	snapshot, err := h.load(ctx, owner)
	if err != nil {
		feed.mu.Unlock()
		slog.Warn("Failed to load feed snapshot", "owner", owner.String(), "error", err)
		return
	}
	subs := make([]*subscription, 0, len(feed.subs))
	for _, sub := range feed.subs {
		subs = append(subs, sub)
	}
	mustDrain := feed.enqueueLocked(delivery{snapshot: snapshot, subs: subs})
	feed.mu.Unlock()

	if mustDrain {
		feed.drain()
	}
}

// Subscribers reports how many listeners are registered for owner.
func (h *Hub) Subscribers(owner model.Owner) int {
	h.mu.Lock()
	feed, ok := h.feeds[owner]
	h.mu.Unlock()
	if !ok {
		return 0
	}

	feed.mu.Lock()
	defer feed.mu.Unlock()
	n := 0
	for _, sub := range feed.subs {
		if sub.active.Load() {
			n++
		}
	}
	return n
}

func (h *Hub) feedLocked(owner model.Owner) *ownerFeed {
	feed, ok := h.feeds[owner]
	if !ok {
		feed = &ownerFeed{subs: make(map[uint64]*subscription)}
		h.feeds[owner] = feed
	}
	return feed
}
