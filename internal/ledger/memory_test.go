package ledger

import (
	"context"
	"errors"
	"testing"

	"carteira/internal/core"
)

func testTransaction(id, owner string, date core.Date) core.Transaction {
	return core.Transaction{
		ID:          id,
		OwnerID:     owner,
		Type:        core.Expense,
		Date:        date,
		Description: "teste",
		Amount:      core.Money{Cents: 1000},
		Category:    "Moradia",
	}
}

func TestMemoryStoreApplyAndQuery(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	batch := Batch{
		PutTransaction{Record: testTransaction("t1", "ana", core.NewDate(2024, 1, 10))},
		PutTransaction{Record: testTransaction("t2", "ana", core.NewDate(2024, 2, 10))},
		PutTransaction{Record: testTransaction("t3", "bia", core.NewDate(2024, 1, 20))},
	}
	if err := store.Apply(ctx, batch); err != nil {
		t.Fatalf("apply: %v", err)
	}

	got, err := store.TransactionsByRange(ctx, "ana", core.NewDate(2024, 1, 1), core.NewDate(2024, 12, 31))
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(got))
	}
	if got[0].ID != "t1" || got[1].ID != "t2" {
		t.Fatalf("expected date order t1,t2; got %s,%s", got[0].ID, got[1].ID)
	}

	if _, err := store.Transaction(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreApplyAllOrNothing(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	bad := testTransaction("t2", "ana", core.NewDate(2024, 2, 10))
	bad.Amount = core.Money{} // invalid, fails mid-batch

	batch := Batch{
		PutTransaction{Record: testTransaction("t1", "ana", core.NewDate(2024, 1, 10))},
		PutTransaction{Record: bad},
	}
	err := store.Apply(ctx, batch)
	if !errors.Is(err, core.ErrAtomicity) {
		t.Fatalf("expected ErrAtomicity, got %v", err)
	}

	// The valid first op must not be visible.
	if _, err := store.Transaction(ctx, "t1"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("partial apply leaked: %v", err)
	}
}

func TestMemoryStoreDeleteMissingAborts(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Apply(ctx, Batch{
		PutTransaction{Record: testTransaction("t1", "ana", core.NewDate(2024, 1, 10))},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	err := store.Apply(ctx, Batch{
		DeleteTransaction{ID: "t1"},
		DeleteTransaction{ID: "ghost"},
	})
	if !errors.Is(err, core.ErrAtomicity) {
		t.Fatalf("expected ErrAtomicity, got %v", err)
	}
	// t1 must still exist: the batch aborted as a whole.
	if _, err := store.Transaction(ctx, "t1"); err != nil {
		t.Fatalf("t1 should survive aborted batch: %v", err)
	}
}

func TestMemoryStoreCardExpensesByCycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	mkExpense := func(id string, date core.Date, cycle core.Cycle, billed bool) core.CardExpense {
		return core.CardExpense{
			ID: id, CardID: "c1", Date: date, Description: "compra",
			Amount: core.Money{Cents: 500}, Category: "Lazer",
			Billed: billed, Cycle: cycle,
		}
	}
	march := core.Cycle{Year: 2024, Month: 3}
	april := core.Cycle{Year: 2024, Month: 4}
	if err := store.Apply(ctx, Batch{
		PutCardExpense{Record: mkExpense("e1", core.NewDate(2024, 3, 1), march, false)},
		PutCardExpense{Record: mkExpense("e2", core.NewDate(2024, 3, 2), march, true)},
		PutCardExpense{Record: mkExpense("e3", core.NewDate(2024, 3, 15), april, false)},
	}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	got, err := store.CardExpensesByCycle(ctx, "c1", march)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 expenses in 2024-03, got %d", len(got))
	}
}

func TestMemoryStoreMonthOverview(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	salary := testTransaction("t1", "ana", core.NewDate(2024, 5, 5))
	salary.Type = core.Income
	salary.Category = "Salário"
	salary.Amount = core.Money{Cents: 300000}
	salary.Paid = true

	rent := testTransaction("t2", "ana", core.NewDate(2024, 5, 10))
	rent.Amount = core.Money{Cents: 120000}

	market := testTransaction("t3", "ana", core.NewDate(2024, 5, 12))
	market.Category = "Alimentação"
	market.Amount = core.Money{Cents: 40000}
	market.Paid = true

	other := testTransaction("t4", "ana", core.NewDate(2024, 6, 1))

	if err := store.Apply(ctx, Batch{
		PutTransaction{Record: salary},
		PutTransaction{Record: rent},
		PutTransaction{Record: market},
		PutTransaction{Record: other},
	}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	o, err := store.MonthOverview(ctx, "ana", 2024, 5)
	if err != nil {
		t.Fatalf("overview: %v", err)
	}
	if o.Income.Cents != 300000 {
		t.Fatalf("income = %d", o.Income.Cents)
	}
	if o.Expenses.Cents != 160000 {
		t.Fatalf("expenses = %d", o.Expenses.Cents)
	}
	if o.SettledExpenses.Cents != 40000 {
		t.Fatalf("settled expenses = %d", o.SettledExpenses.Cents)
	}
	if o.Balance().Cents != 140000 {
		t.Fatalf("balance = %d", o.Balance().Cents)
	}
	if len(o.ByCategory) != 2 {
		t.Fatalf("expected 2 expense categories, got %d", len(o.ByCategory))
	}
}

func TestMemoryStoreCategories(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if _, ok, err := store.Categories(ctx, "ana"); err != nil || ok {
		t.Fatalf("expected uninitialized set, ok=%v err=%v", ok, err)
	}

	set := core.CategorySet{Income: []string{"Salário"}, Expense: []string{"Moradia"}}
	if err := store.Apply(ctx, Batch{PutCategories{OwnerID: "ana", Set: set}}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	got, ok, err := store.Categories(ctx, "ana")
	if err != nil || !ok {
		t.Fatalf("expected initialized set, ok=%v err=%v", ok, err)
	}
	if !got.Has(core.Expense, "moradia") {
		t.Fatal("lookup should be case-insensitive")
	}
	if got.Has(core.Income, "Moradia") {
		t.Fatal("type separation violated")
	}
}
