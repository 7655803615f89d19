package notify

import (
	"context"
	"runtime"
	"testing"
	"time"

	"carteira/internal/core"
	"carteira/internal/ledger"
)

func seedTransaction(t *testing.T, store ledger.Store, id, owner string, date core.Date) {
	t.Helper()
	record := core.Transaction{
		ID: id, OwnerID: owner, Type: core.Expense,
		Date: date, Description: "Mercado",
		Amount: core.Money{Cents: 5000}, Category: "Alimentação",
	}
	if err := store.Apply(context.Background(), ledger.Batch{ledger.PutTransaction{Record: record}}); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func receive(t *testing.T, ch <-chan Snapshot) Snapshot {
	t.Helper()
	select {
	case snap := <-ch:
		return snap
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered")
		return Snapshot{}
	}
}

func TestHubDeliversTransactionSnapshot(t *testing.T) {
	store := ledger.NewMemoryStore()
	hub := NewHub(store)
	ctx := context.Background()

	ch, cancel := hub.Subscribe(ctx, Filter{OwnerID: "ana", Kind: KindTransaction})
	defer cancel()

	seedTransaction(t, store, "t1", "ana", core.NewDate(2024, 3, 10))
	hub.Publish(ctx, Event{Kind: KindTransaction, OwnerID: "ana", IDs: []string{"t1"}})

	snap := receive(t, ch)
	if len(snap.Transactions) != 1 || snap.Transactions[0].ID != "t1" {
		t.Errorf("snapshot transactions = %+v, want t1", snap.Transactions)
	}
}

func TestHubFiltersByOwnerAndKind(t *testing.T) {
	store := ledger.NewMemoryStore()
	hub := NewHub(store)
	ctx := context.Background()

	ch, cancel := hub.Subscribe(ctx, Filter{OwnerID: "ana", Kind: KindTransaction})
	defer cancel()

	hub.Publish(ctx, Event{Kind: KindTransaction, OwnerID: "bruno", IDs: []string{"x"}})
	hub.Publish(ctx, Event{Kind: KindCard, OwnerID: "ana"})

	select {
	case snap := <-ch:
		t.Errorf("unexpected snapshot: %+v", snap.Event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubLatestWins(t *testing.T) {
	store := ledger.NewMemoryStore()
	hub := NewHub(store)
	ctx := context.Background()

	ch, cancel := hub.Subscribe(ctx, Filter{OwnerID: "ana", Kind: KindTransaction})
	defer cancel()

	// Publish twice without draining: the buffered snapshot is replaced.
	seedTransaction(t, store, "t1", "ana", core.NewDate(2024, 3, 10))
	hub.Publish(ctx, Event{Kind: KindTransaction, OwnerID: "ana", IDs: []string{"t1"}})
	seedTransaction(t, store, "t2", "ana", core.NewDate(2024, 3, 11))
	hub.Publish(ctx, Event{Kind: KindTransaction, OwnerID: "ana", IDs: []string{"t2"}})

	snap := receive(t, ch)
	if len(snap.Transactions) != 2 {
		t.Errorf("snapshot has %d transactions, want 2 (latest state)", len(snap.Transactions))
	}
	if got := snap.Event.IDs; len(got) != 1 || got[0] != "t2" {
		t.Errorf("buffered event = %v, want the newest one", got)
	}

	select {
	case extra := <-ch:
		t.Errorf("stale snapshot still buffered: %+v", extra.Event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubCancelClosesStream(t *testing.T) {
	store := ledger.NewMemoryStore()
	hub := NewHub(store)

	ch, cancel := hub.Subscribe(context.Background(), Filter{OwnerID: "ana"})
	cancel()

	if _, ok := <-ch; ok {
		t.Error("stream still open after cancel")
	}

	// Publishing after cancel must not panic or deliver.
	hub.Publish(context.Background(), Event{Kind: KindTransaction, OwnerID: "ana"})
}

// gatedStore blocks the range read until released, holding a Publish
// inside its snapshot build.
type gatedStore struct {
	ledger.Store
	entered  chan struct{}
	released chan struct{}
}

func (g *gatedStore) TransactionsByRange(ctx context.Context, ownerID string, from, to core.Date) ([]core.Transaction, error) {
	close(g.entered)
	<-g.released
	return g.Store.TransactionsByRange(ctx, ownerID, from, to)
}

func TestHubCancelDuringPublish(t *testing.T) {
	store := ledger.NewMemoryStore()
	seedTransaction(t, store, "t1", "ana", core.NewDate(2024, 3, 10))
	gated := &gatedStore{
		Store:    store,
		entered:  make(chan struct{}),
		released: make(chan struct{}),
	}
	hub := NewHub(gated)

	_, cancel := hub.Subscribe(context.Background(), Filter{OwnerID: "ana", Kind: KindTransaction})

	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Publish(context.Background(), Event{Kind: KindTransaction, OwnerID: "ana", IDs: []string{"t1"}})
	}()

	// Cancel while the publish is blocked building the snapshot. The
	// delivery must be dropped, not sent on the closed stream.
	<-gated.entered
	cancel()
	close(gated.released)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish did not return")
	}
}

func TestHubManualCancelReleasesWatcher(t *testing.T) {
	store := ledger.NewMemoryStore()
	hub := NewHub(store)

	before := runtime.NumGoroutine()
	ctx, release := context.WithCancel(context.Background())
	defer release()

	_, cancel := hub.Subscribe(ctx, Filter{OwnerID: "ana"})
	cancel()

	deadline := time.Now().Add(time.Second)
	for runtime.NumGoroutine() > before {
		if time.Now().After(deadline) {
			t.Fatal("context watcher still running after manual cancel")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestMultiSkipsNil(t *testing.T) {
	store := ledger.NewMemoryStore()
	hub := NewHub(store)

	multi := Multi(nil, hub, nil)
	ch, cancel := hub.Subscribe(context.Background(), Filter{OwnerID: "ana", Kind: KindTransaction})
	defer cancel()

	seedTransaction(t, store, "t1", "ana", core.NewDate(2024, 3, 10))
	multi.Publish(context.Background(), Event{Kind: KindTransaction, OwnerID: "ana", IDs: []string{"t1"}})

	snap := receive(t, ch)
	if len(snap.Transactions) != 1 {
		t.Errorf("snapshot transactions = %d, want 1", len(snap.Transactions))
	}
}
