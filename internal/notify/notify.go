// Package notify turns committed ledger mutations into a subscription
// stream. Subscribers register a filter and receive full-state
// snapshots after every matching commit; cancelling a subscription
// simply detaches the listener.
package notify

import (
	"context"

	"carteira/internal/core"
)

type Kind string

const (
	KindTransaction Kind = "transaction"
	KindCardExpense Kind = "card_expense"
	KindCard        Kind = "card"
	KindCategories  Kind = "categories"
)

// Event describes one committed mutation. IDs lists the records the
// batch touched.
type Event struct {
	Kind    Kind
	OwnerID string
	CardID  string
	IDs     []string
}

// Publisher receives events after a batch commits. Implementations
// must not block the caller for long; engine writes are synchronous.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

type multiPublisher []Publisher

func (m multiPublisher) Publish(ctx context.Context, ev Event) {
	for _, p := range m {
		p.Publish(ctx, ev)
	}
}

// Multi fans one event out to several publishers, ignoring nils.
func Multi(ps ...Publisher) Publisher {
	var out multiPublisher
	for _, p := range ps {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

// Filter selects which events a subscriber cares about and scopes the
// snapshot built for it. OwnerID is required; Kind narrows to one
// record kind; CardID/Cycle scope card-expense snapshots; From/To
// scope transaction snapshots.
type Filter struct {
	OwnerID string
	Kind    Kind
	From    core.Date
	To      core.Date
	CardID  string
	Cycle   core.Cycle
}

// Snapshot is the post-commit state matching a subscriber's filter.
// Only the fields relevant to the filter's kind are populated.
type Snapshot struct {
	Event        Event
	Transactions []core.Transaction
	CardExpenses []core.CardExpense
	Cards        []core.CreditCard
	Categories   core.CategorySet
}

func (f Filter) matches(ev Event) bool {
	if f.OwnerID != "" && ev.OwnerID != "" && f.OwnerID != ev.OwnerID {
		return false
	}
	if f.Kind != "" && f.Kind != ev.Kind {
		return false
	}
	if f.CardID != "" && ev.CardID != "" && f.CardID != ev.CardID {
		return false
	}
	return true
}
