package cards

import (
	"context"
	"errors"
	"testing"

	"carteira/internal/core"
	"carteira/internal/ledger"
)

func newEngine(t *testing.T) (*Engine, *ledger.MemoryStore) {
	t.Helper()
	store := ledger.NewMemoryStore()
	return NewEngine(store, nil, nil), store
}

func createCard(t *testing.T, eng *Engine, owner string) core.CreditCard {
	t.Helper()
	card, err := eng.CreateCard(context.Background(), owner, CardRequest{
		Name:       "Nubank",
		Limit:      core.Money{Cents: 500000},
		ClosingDay: 10,
		DueDay:     17,
	})
	if err != nil {
		t.Fatalf("CreateCard: %v", err)
	}
	return card
}

func TestCreateCard(t *testing.T) {
	eng, _ := newEngine(t)
	card := createCard(t, eng, "ana")
	if card.ID == "" {
		t.Error("expected generated card id")
	}

	got, err := eng.Card(context.Background(), "ana", card.ID)
	if err != nil {
		t.Fatalf("Card: %v", err)
	}
	if got.Name != "Nubank" || got.ClosingDay != 10 || got.DueDay != 17 {
		t.Errorf("stored card = %+v", got)
	}

	if _, err := eng.Card(context.Background(), "bob", card.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound for foreign card, got %v", err)
	}
}

func TestCreateCardValidation(t *testing.T) {
	eng, _ := newEngine(t)
	tests := []struct {
		name string
		req  CardRequest
		want error
	}{
		{"empty name", CardRequest{Name: " ", ClosingDay: 10, DueDay: 17}, core.ErrEmptyCardName},
		{"closing day zero", CardRequest{Name: "Visa", ClosingDay: 0, DueDay: 17}, core.ErrInvalidDay},
		{"due day too large", CardRequest{Name: "Visa", ClosingDay: 10, DueDay: 32}, core.ErrInvalidDay},
		{"negative limit", CardRequest{Name: "Visa", Limit: core.Money{Cents: -1}, ClosingDay: 10, DueDay: 17}, core.ErrNegativeLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := eng.CreateCard(context.Background(), "ana", tt.req); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestAddExpenseCycleAssignment(t *testing.T) {
	eng, _ := newEngine(t)
	card := createCard(t, eng, "ana")
	ctx := context.Background()

	tests := []struct {
		name string
		date core.Date
		want string
	}{
		{"before closing day", core.NewDate(2024, 3, 5), "2024-03"},
		{"on closing day", core.NewDate(2024, 3, 10), "2024-03"},
		{"after closing day", core.NewDate(2024, 3, 15), "2024-04"},
		{"december rollover", core.NewDate(2024, 12, 20), "2025-01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := eng.AddExpense(ctx, "ana", card.ID, ExpenseRequest{
				Date:        tt.date,
				Description: "Mercado",
				Amount:      core.Money{Cents: 15000},
				Category:    "Alimentação",
			})
			if err != nil {
				t.Fatalf("AddExpense: %v", err)
			}
			if got := records[0].Cycle.String(); got != tt.want {
				t.Errorf("cycle = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestAddExpenseInstallments(t *testing.T) {
	eng, store := newEngine(t)
	card := createCard(t, eng, "ana")
	ctx := context.Background()

	records, err := eng.AddExpense(ctx, "ana", card.ID, ExpenseRequest{
		Date:        core.NewDate(2024, 1, 20),
		Description: "Notebook 4x",
		Amount:      core.Money{Cents: 100000},
		Category:    "Compras",
		Recurring:   true,
		Occurrences: 4,
	})
	if err != nil {
		t.Fatalf("AddExpense: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("expected 4 installments, got %d", len(records))
	}

	// Day 20 is past the closing day, so each installment lands in the
	// month after its purchase date.
	wantCycles := []string{"2024-02", "2024-03", "2024-04", "2024-05"}
	for i, r := range records {
		if got := r.Cycle.String(); got != wantCycles[i] {
			t.Errorf("installment %d cycle = %s, want %s", i+1, got, wantCycles[i])
		}
		if want := core.Installment(i+1, 4); r.Installment != want {
			t.Errorf("installment %d label = %q, want %q", i+1, r.Installment, want)
		}
		if r.SeriesID != records[0].SeriesID {
			t.Errorf("installment %d series id differs", i+1)
		}
	}

	stored, err := store.CardExpensesBySeries(ctx, records[0].SeriesID)
	if err != nil {
		t.Fatalf("CardExpensesBySeries: %v", err)
	}
	if len(stored) != 4 {
		t.Errorf("store has %d installments, want 4", len(stored))
	}
}

func TestCloseBill(t *testing.T) {
	eng, store := newEngine(t)
	card := createCard(t, eng, "ana")
	ctx := context.Background()

	for _, cents := range []int64{15000, 8000} {
		if _, err := eng.AddExpense(ctx, "ana", card.ID, ExpenseRequest{
			Date:        core.NewDate(2024, 3, 5),
			Description: "Compra",
			Amount:      core.Money{Cents: cents},
			Category:    "Compras",
		}); err != nil {
			t.Fatalf("AddExpense: %v", err)
		}
	}
	cycle := core.Cycle{Year: 2024, Month: 3}

	open, err := eng.OpenBalance(ctx, "ana", card.ID, cycle)
	if err != nil {
		t.Fatalf("OpenBalance: %v", err)
	}
	if open.Cents != 23000 {
		t.Errorf("open balance = %d, want 23000", open.Cents)
	}

	bill, err := eng.CloseBill(ctx, "ana", card.ID, cycle)
	if err != nil {
		t.Fatalf("CloseBill: %v", err)
	}
	if bill.Amount.Cents != 23000 {
		t.Errorf("bill amount = %d, want 23000", bill.Amount.Cents)
	}
	if bill.Category != core.CategoryCardBill {
		t.Errorf("bill category = %q, want %q", bill.Category, core.CategoryCardBill)
	}
	if got := bill.Date.String(); got != "2024-03-17" {
		t.Errorf("bill due date = %s, want 2024-03-17", got)
	}
	if !bill.Paid {
		t.Error("bill transaction not marked paid")
	}

	expenses, err := store.CardExpensesByCycle(ctx, card.ID, cycle)
	if err != nil {
		t.Fatalf("CardExpensesByCycle: %v", err)
	}
	for _, exp := range expenses {
		if !exp.Billed {
			t.Errorf("expense %s still unbilled after close", exp.ID)
		}
	}

	if _, err := store.Transaction(ctx, bill.ID); err != nil {
		t.Errorf("bill transaction not stored: %v", err)
	}

	open, err = eng.OpenBalance(ctx, "ana", card.ID, cycle)
	if err != nil {
		t.Fatalf("OpenBalance after close: %v", err)
	}
	if open.Cents != 0 {
		t.Errorf("open balance after close = %d, want 0", open.Cents)
	}
}

func TestCloseBillRejectsEmptyCycle(t *testing.T) {
	eng, _ := newEngine(t)
	card := createCard(t, eng, "ana")
	ctx := context.Background()
	cycle := core.Cycle{Year: 2024, Month: 3}

	if _, err := eng.CloseBill(ctx, "ana", card.ID, cycle); !errors.Is(err, core.ErrNoOpenBalance) {
		t.Errorf("expected ErrNoOpenBalance on empty cycle, got %v", err)
	}
}

func TestCloseBillTwice(t *testing.T) {
	eng, _ := newEngine(t)
	card := createCard(t, eng, "ana")
	ctx := context.Background()

	if _, err := eng.AddExpense(ctx, "ana", card.ID, ExpenseRequest{
		Date:        core.NewDate(2024, 3, 5),
		Description: "Compra",
		Amount:      core.Money{Cents: 5000},
		Category:    "Compras",
	}); err != nil {
		t.Fatalf("AddExpense: %v", err)
	}
	cycle := core.Cycle{Year: 2024, Month: 3}

	if _, err := eng.CloseBill(ctx, "ana", card.ID, cycle); err != nil {
		t.Fatalf("first CloseBill: %v", err)
	}
	if _, err := eng.CloseBill(ctx, "ana", card.ID, cycle); !errors.Is(err, core.ErrNoOpenBalance) {
		t.Errorf("expected ErrNoOpenBalance on second close, got %v", err)
	}
}

func TestCloseBillLateExpenseOpensAgain(t *testing.T) {
	eng, _ := newEngine(t)
	card := createCard(t, eng, "ana")
	ctx := context.Background()
	cycle := core.Cycle{Year: 2024, Month: 3}

	if _, err := eng.AddExpense(ctx, "ana", card.ID, ExpenseRequest{
		Date:        core.NewDate(2024, 3, 5),
		Description: "Compra",
		Amount:      core.Money{Cents: 5000},
		Category:    "Compras",
	}); err != nil {
		t.Fatalf("AddExpense: %v", err)
	}
	if _, err := eng.CloseBill(ctx, "ana", card.ID, cycle); err != nil {
		t.Fatalf("CloseBill: %v", err)
	}

	// A purchase recorded after the close, dated inside the cycle,
	// reopens the cycle with just that amount.
	if _, err := eng.AddExpense(ctx, "ana", card.ID, ExpenseRequest{
		Date:        core.NewDate(2024, 3, 8),
		Description: "Compra atrasada",
		Amount:      core.Money{Cents: 2000},
		Category:    "Compras",
	}); err != nil {
		t.Fatalf("AddExpense: %v", err)
	}

	open, err := eng.OpenBalance(ctx, "ana", card.ID, cycle)
	if err != nil {
		t.Fatalf("OpenBalance: %v", err)
	}
	if open.Cents != 2000 {
		t.Errorf("reopened balance = %d, want 2000", open.Cents)
	}

	bill, err := eng.CloseBill(ctx, "ana", card.ID, cycle)
	if err != nil {
		t.Fatalf("second CloseBill: %v", err)
	}
	if bill.Amount.Cents != 2000 {
		t.Errorf("second bill amount = %d, want 2000", bill.Amount.Cents)
	}
}
