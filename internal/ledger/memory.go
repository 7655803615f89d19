package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"carteira/internal/core"
)

// MemoryStore is a mutex-guarded in-memory Store. It backs the memory
// data backend and the engine tests.
type MemoryStore struct {
	mu           sync.RWMutex
	transactions map[string]core.Transaction
	cardExpenses map[string]core.CardExpense
	cards        map[string]core.CreditCard
	categories   map[string]core.CategorySet
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		transactions: make(map[string]core.Transaction),
		cardExpenses: make(map[string]core.CardExpense),
		cards:        make(map[string]core.CreditCard),
		categories:   make(map[string]core.CategorySet),
	}
}

func (s *MemoryStore) Transaction(_ context.Context, id string) (core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.transactions[id]
	if !ok {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	return t, nil
}

func (s *MemoryStore) TransactionsBySeries(_ context.Context, seriesID string) ([]core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Transaction
	for _, t := range s.transactions {
		if t.SeriesID == seriesID {
			out = append(out, t)
		}
	}
	sortTransactions(out)
	return out, nil
}

func (s *MemoryStore) TransactionsByRange(_ context.Context, ownerID string, from, to core.Date) ([]core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Transaction
	for _, t := range s.transactions {
		if t.OwnerID != ownerID {
			continue
		}
		if t.Date.OnOrAfter(from) && to.OnOrAfter(t.Date) {
			out = append(out, t)
		}
	}
	sortTransactions(out)
	return out, nil
}

func (s *MemoryStore) TransactionsByCategory(_ context.Context, ownerID string, typ core.TransactionType, category string) ([]core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Transaction
	for _, t := range s.transactions {
		if t.OwnerID == ownerID && t.Type == typ && t.Category == category {
			out = append(out, t)
		}
	}
	sortTransactions(out)
	return out, nil
}

func (s *MemoryStore) CardExpense(_ context.Context, id string) (core.CardExpense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.cardExpenses[id]
	if !ok {
		return core.CardExpense{}, fmt.Errorf("card expense %s: %w", id, core.ErrNotFound)
	}
	return e, nil
}

func (s *MemoryStore) CardExpensesBySeries(_ context.Context, seriesID string) ([]core.CardExpense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.CardExpense
	for _, e := range s.cardExpenses {
		if e.SeriesID == seriesID {
			out = append(out, e)
		}
	}
	sortCardExpenses(out)
	return out, nil
}

// CardExpensesByCycle lists a card's expenses in one billing cycle. A
// zero cycle matches every cycle of the card.
func (s *MemoryStore) CardExpensesByCycle(_ context.Context, cardID string, cycle core.Cycle) ([]core.CardExpense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.CardExpense
	for _, e := range s.cardExpenses {
		if e.CardID == cardID && (cycle.IsZero() || e.Cycle == cycle) {
			out = append(out, e)
		}
	}
	sortCardExpenses(out)
	return out, nil
}

func (s *MemoryStore) Card(_ context.Context, id string) (core.CreditCard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cards[id]
	if !ok {
		return core.CreditCard{}, fmt.Errorf("card %s: %w", id, core.ErrNotFound)
	}
	return c, nil
}

func (s *MemoryStore) CardsByOwner(_ context.Context, ownerID string) ([]core.CreditCard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.CreditCard
	for _, c := range s.cards {
		if c.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) Categories(_ context.Context, ownerID string) (core.CategorySet, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.categories[ownerID]
	if !ok {
		return core.CategorySet{}, false, nil
	}
	return set.Clone(), true, nil
}

func (s *MemoryStore) MonthOverview(_ context.Context, ownerID string, year, month int) (core.MonthOverview, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	overview := core.MonthOverview{Year: year, Month: month}
	byCategory := make(map[string]int64)
	for _, t := range s.transactions {
		if t.OwnerID != ownerID || t.Date.Year() != year || int(t.Date.Time.Month()) != month {
			continue
		}
		switch t.Type {
		case core.Income:
			overview.Income.Cents += t.Amount.Cents
			if t.Paid {
				overview.SettledIncome.Cents += t.Amount.Cents
			}
		case core.Expense:
			overview.Expenses.Cents += t.Amount.Cents
			if t.Paid {
				overview.SettledExpenses.Cents += t.Amount.Cents
			}
			byCategory[t.Category] += t.Amount.Cents
		}
	}
	names := make([]string, 0, len(byCategory))
	for name := range byCategory {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		overview.ByCategory = append(overview.ByCategory, core.CategoryAmount{
			Name:   name,
			Amount: core.Money{Cents: byCategory[name]},
		})
	}
	return overview, nil
}

// Apply validates the whole batch against a staged copy before touching
// live state, so a failing op leaves nothing applied.
func (s *MemoryStore) Apply(_ context.Context, batch Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := stagedState{
		transactions: cloneMap(s.transactions),
		cardExpenses: cloneMap(s.cardExpenses),
		cards:        cloneMap(s.cards),
		categories:   cloneMap(s.categories),
	}

	for i, op := range batch {
		if err := staged.apply(op); err != nil {
			return fmt.Errorf("%w: op %d: %v", core.ErrAtomicity, i, err)
		}
	}

	s.transactions = staged.transactions
	s.cardExpenses = staged.cardExpenses
	s.cards = staged.cards
	s.categories = staged.categories
	return nil
}

func (s *MemoryStore) Close() error { return nil }

type stagedState struct {
	transactions map[string]core.Transaction
	cardExpenses map[string]core.CardExpense
	cards        map[string]core.CreditCard
	categories   map[string]core.CategorySet
}

func (st *stagedState) apply(op Op) error {
	switch o := op.(type) {
	case PutTransaction:
		if err := o.Record.Validate(); err != nil {
			return err
		}
		if o.Record.ID == "" {
			return fmt.Errorf("transaction missing id")
		}
		st.transactions[o.Record.ID] = o.Record
	case DeleteTransaction:
		if _, ok := st.transactions[o.ID]; !ok {
			return fmt.Errorf("transaction %s: %w", o.ID, core.ErrNotFound)
		}
		delete(st.transactions, o.ID)
	case PutCardExpense:
		if err := o.Record.Validate(); err != nil {
			return err
		}
		if o.Record.ID == "" {
			return fmt.Errorf("card expense missing id")
		}
		st.cardExpenses[o.Record.ID] = o.Record
	case DeleteCardExpense:
		if _, ok := st.cardExpenses[o.ID]; !ok {
			return fmt.Errorf("card expense %s: %w", o.ID, core.ErrNotFound)
		}
		delete(st.cardExpenses, o.ID)
	case PutCard:
		if err := o.Record.Validate(); err != nil {
			return err
		}
		if o.Record.ID == "" {
			return fmt.Errorf("card missing id")
		}
		st.cards[o.Record.ID] = o.Record
	case PutCategories:
		if strings.TrimSpace(o.OwnerID) == "" {
			return core.ErrNoOwner
		}
		st.categories[o.OwnerID] = o.Set.Clone()
	default:
		return fmt.Errorf("unknown op %T", op)
	}
	return nil
}

func cloneMap[V any](in map[string]V) map[string]V {
	out := make(map[string]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func sortTransactions(ts []core.Transaction) {
	sort.Slice(ts, func(i, j int) bool {
		if !ts[i].Date.Equal(ts[j].Date.Time) {
			return ts[i].Date.Before(ts[j].Date.Time)
		}
		return ts[i].ID < ts[j].ID
	})
}

func sortCardExpenses(es []core.CardExpense) {
	sort.Slice(es, func(i, j int) bool {
		if !es[i].Date.Equal(es[j].Date.Time) {
			return es[i].Date.Before(es[j].Date.Time)
		}
		return es[i].ID < es[j].ID
	})
}
