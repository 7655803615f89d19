// Package ledger is the record store behind the engines. It persists
// transactions, card expenses, credit cards and per-owner category
// sets, and commits every multi-record mutation through a single
// all-or-nothing batch.
package ledger

import (
	"context"

	"carteira/internal/core"
)

// Op is one step of a Batch. The concrete types below are the only
// implementations.
type Op interface {
	isOp()
}

type (
	PutTransaction struct {
		Record core.Transaction
	}

	DeleteTransaction struct {
		ID string
	}

	PutCardExpense struct {
		Record core.CardExpense
	}

	DeleteCardExpense struct {
		ID string
	}

	PutCard struct {
		Record core.CreditCard
	}

	PutCategories struct {
		OwnerID string
		Set     core.CategorySet
	}
)

func (PutTransaction) isOp()    {}
func (DeleteTransaction) isOp() {}
func (PutCardExpense) isOp()    {}
func (DeleteCardExpense) isOp() {}
func (PutCard) isOp()           {}
func (PutCategories) isOp()     {}

// Batch is an ordered set of operations committed atomically.
type Batch []Op

// Store is the persistence port. Apply is the only commit path for
// mutations touching more than one record: it either fully commits or
// fully aborts, and a concurrent reader never observes a partially
// applied batch.
//
// Reads that encounter malformed raw rows (an unparseable date) skip
// and log them rather than failing the whole query.
type Store interface {
	// Transactions
	Transaction(ctx context.Context, id string) (core.Transaction, error)
	TransactionsBySeries(ctx context.Context, seriesID string) ([]core.Transaction, error)
	TransactionsByRange(ctx context.Context, ownerID string, from, to core.Date) ([]core.Transaction, error)
	TransactionsByCategory(ctx context.Context, ownerID string, typ core.TransactionType, category string) ([]core.Transaction, error)

	// Card expenses
	CardExpense(ctx context.Context, id string) (core.CardExpense, error)
	CardExpensesBySeries(ctx context.Context, seriesID string) ([]core.CardExpense, error)
	CardExpensesByCycle(ctx context.Context, cardID string, cycle core.Cycle) ([]core.CardExpense, error)

	// Cards
	Card(ctx context.Context, id string) (core.CreditCard, error)
	CardsByOwner(ctx context.Context, ownerID string) ([]core.CreditCard, error)

	// Categories. The second return reports whether the owner's set has
	// been initialized yet.
	Categories(ctx context.Context, ownerID string) (core.CategorySet, bool, error)

	// Aggregation
	MonthOverview(ctx context.Context, ownerID string, year, month int) (core.MonthOverview, error)

	// Apply commits a batch atomically.
	Apply(ctx context.Context, batch Batch) error

	Close() error
}
