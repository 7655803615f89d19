package notify

import (
	"context"
	"log/slog"
	"sync"

	"carteira/internal/core"
	"carteira/internal/ledger"
)

// Hub is the in-process subscription broker. It reads the post-commit
// state from the store and pushes one snapshot per matching event.
// Delivery is latest-wins: a slow subscriber sees the newest snapshot,
// never a partial one.
type Hub struct {
	store ledger.Store

	mu   sync.Mutex
	subs map[int]*subscriber
	next int
}

type subscriber struct {
	filter Filter
	ch     chan Snapshot
	done   chan struct{}
}

func NewHub(store ledger.Store) *Hub {
	return &Hub{
		store: store,
		subs:  make(map[int]*subscriber),
	}
}

// Subscribe registers a filter and returns the snapshot stream plus a
// cancel function. Cancelling (or ctx expiry) detaches the listener
// and closes the stream; a snapshot still being built for it is
// dropped, not delivered.
func (h *Hub) Subscribe(ctx context.Context, f Filter) (<-chan Snapshot, func()) {
	sub := &subscriber{
		filter: f,
		ch:     make(chan Snapshot, 1),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = sub
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[id]; !ok {
			return
		}
		delete(h.subs, id)
		close(sub.done)
		// Sends happen under h.mu and only to registered subscribers,
		// so no delivery can be in flight here.
		close(sub.ch)
	}

	if ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				cancel()
			case <-sub.done:
			}
		}()
	}

	return sub.ch, cancel
}

// Publish builds and delivers snapshots for every subscriber whose
// filter matches the event.
func (h *Hub) Publish(ctx context.Context, ev Event) {
	type match struct {
		id  int
		sub *subscriber
	}

	h.mu.Lock()
	matched := make([]match, 0, len(h.subs))
	for id, sub := range h.subs {
		if sub.filter.matches(ev) {
			matched = append(matched, match{id: id, sub: sub})
		}
	}
	h.mu.Unlock()

	for _, m := range matched {
		snap, err := h.snapshot(ctx, m.sub.filter, ev)
		if err != nil {
			slog.WarnContext(ctx, "Failed to build notification snapshot",
				"kind", string(ev.Kind), "owner_id", ev.OwnerID, "error", err)
			continue
		}
		h.deliver(m.id, m.sub, snap)
	}
}

// deliver sends under the hub lock so a concurrent cancel cannot close
// the channel mid-send. A subscriber that detached while the snapshot
// was being built is skipped.
func (h *Hub) deliver(id int, sub *subscriber, snap Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[id]; !ok {
		return
	}
	// Latest-wins: drop the stale buffered snapshot if the subscriber
	// has not drained it yet.
	select {
	case sub.ch <- snap:
	default:
		select {
		case <-sub.ch:
		default:
		}
		select {
		case sub.ch <- snap:
		default:
		}
	}
}

func (h *Hub) snapshot(ctx context.Context, f Filter, ev Event) (Snapshot, error) {
	snap := Snapshot{Event: ev}
	owner := f.OwnerID
	if owner == "" {
		owner = ev.OwnerID
	}

	kind := f.Kind
	if kind == "" {
		kind = ev.Kind
	}

	switch kind {
	case KindTransaction:
		from, to := f.From, f.To
		if from.IsZero() {
			from = core.NewDate(1, 1, 1)
		}
		if to.IsZero() {
			to = core.NewDate(9999, 12, 31)
		}
		ts, err := h.store.TransactionsByRange(ctx, owner, from, to)
		if err != nil {
			return snap, err
		}
		snap.Transactions = ts
	case KindCardExpense:
		cardID := f.CardID
		if cardID == "" {
			cardID = ev.CardID
		}
		es, err := h.store.CardExpensesByCycle(ctx, cardID, f.Cycle)
		if err != nil {
			return snap, err
		}
		snap.CardExpenses = es
	case KindCard:
		cs, err := h.store.CardsByOwner(ctx, owner)
		if err != nil {
			return snap, err
		}
		snap.Cards = cs
	case KindCategories:
		set, _, err := h.store.Categories(ctx, owner)
		if err != nil {
			return snap, err
		}
		snap.Categories = set
	}
	return snap, nil
}
