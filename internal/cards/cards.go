// Package cards manages credit cards and their billing cycles. Every
// purchase is assigned a cycle when it is recorded; closing a bill
// freezes the cycle's purchases and settles them as one ledger
// transaction due on the card's due day.
package cards

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"carteira/internal/core"
	"carteira/internal/ledger"
	"carteira/internal/notify"
	"carteira/internal/series"
)

// Engine is the card and billing-cycle service.
type Engine struct {
	store  ledger.Store
	cats   series.CategorySource
	events notify.Publisher
}

func NewEngine(store ledger.Store, cats series.CategorySource, events notify.Publisher) *Engine {
	return &Engine{store: store, cats: cats, events: events}
}

// CardRequest is a create or update request for a credit card.
type CardRequest struct {
	Name       string
	Limit      core.Money
	ClosingDay int
	DueDay     int
}

// ExpenseRequest records a purchase on a card. A recurring request
// (installment purchase) expands into monthly occurrences, each
// assigned its own billing cycle from its own date.
type ExpenseRequest struct {
	Date        core.Date
	Description string
	Amount      core.Money
	Category    string
	Recurring   bool
	Occurrences int
}

// CreateCard registers a new card for the owner.
func (e *Engine) CreateCard(ctx context.Context, ownerID string, req CardRequest) (core.CreditCard, error) {
	if strings.TrimSpace(ownerID) == "" {
		return core.CreditCard{}, core.ErrNoOwner
	}
	card := core.CreditCard{
		ID:         series.NewRecordID(),
		OwnerID:    ownerID,
		Name:       strings.TrimSpace(req.Name),
		Limit:      req.Limit,
		ClosingDay: req.ClosingDay,
		DueDay:     req.DueDay,
	}
	if err := card.Validate(); err != nil {
		return core.CreditCard{}, err
	}
	if err := e.store.Apply(ctx, ledger.Batch{ledger.PutCard{Record: card}}); err != nil {
		return core.CreditCard{}, fmt.Errorf("persist card: %w", err)
	}
	slog.InfoContext(ctx, "Credit card created",
		"owner_id", ownerID, "card_id", card.ID, "closing_day", card.ClosingDay)
	e.publish(ctx, notify.Event{Kind: notify.KindCard, OwnerID: ownerID, CardID: card.ID, IDs: []string{card.ID}})
	return card, nil
}

// UpdateCard edits a card's name, limit or cycle days. Changing the
// closing day only affects purchases recorded afterwards; stored cycle
// assignments never move.
func (e *Engine) UpdateCard(ctx context.Context, ownerID, cardID string, req CardRequest) (core.CreditCard, error) {
	if strings.TrimSpace(ownerID) == "" {
		return core.CreditCard{}, core.ErrNoOwner
	}
	card, err := e.ownedCard(ctx, ownerID, cardID)
	if err != nil {
		return core.CreditCard{}, err
	}
	card.Name = strings.TrimSpace(req.Name)
	card.Limit = req.Limit
	card.ClosingDay = req.ClosingDay
	card.DueDay = req.DueDay
	if err := card.Validate(); err != nil {
		return core.CreditCard{}, err
	}
	if err := e.store.Apply(ctx, ledger.Batch{ledger.PutCard{Record: card}}); err != nil {
		return core.CreditCard{}, fmt.Errorf("update card: %w", err)
	}
	e.publish(ctx, notify.Event{Kind: notify.KindCard, OwnerID: ownerID, CardID: card.ID, IDs: []string{card.ID}})
	return card, nil
}

// Card returns one of the owner's cards by id.
func (e *Engine) Card(ctx context.Context, ownerID, cardID string) (core.CreditCard, error) {
	if strings.TrimSpace(ownerID) == "" {
		return core.CreditCard{}, core.ErrNoOwner
	}
	return e.ownedCard(ctx, ownerID, cardID)
}

// Cards lists the owner's cards.
func (e *Engine) Cards(ctx context.Context, ownerID string) ([]core.CreditCard, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, core.ErrNoOwner
	}
	return e.store.CardsByOwner(ctx, ownerID)
}

// AddExpense records a purchase (or installment series) on the card.
// Each record's billing cycle is computed from its own date and the
// card's current closing day, then stored for good.
func (e *Engine) AddExpense(ctx context.Context, ownerID, cardID string, req ExpenseRequest) ([]core.CardExpense, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, core.ErrNoOwner
	}
	card, err := e.ownedCard(ctx, ownerID, cardID)
	if err != nil {
		return nil, err
	}

	base := core.CardExpense{
		ID:          series.NewRecordID(),
		CardID:      card.ID,
		Date:        req.Date.Normalize(),
		Description: req.Description,
		Amount:      req.Amount,
		Category:    req.Category,
		Cycle:       core.CycleFor(req.Date.Normalize(), card.ClosingDay),
	}
	if err := base.Validate(); err != nil {
		return nil, err
	}
	if err := e.checkCategory(ctx, ownerID, req.Category); err != nil {
		return nil, err
	}

	var records []core.CardExpense
	if req.Recurring {
		n := series.NormalizeCount(req.Occurrences)
		seriesID := series.NewSeriesID()
		for _, occ := range series.Expand(base.Date, n) {
			exp := base
			exp.ID = series.NewRecordID()
			exp.Date = occ.Date
			exp.Cycle = core.CycleFor(occ.Date, card.ClosingDay)
			exp.SeriesID = seriesID
			exp.Installment = occ.Label
			records = append(records, exp)
		}
	} else {
		records = []core.CardExpense{base}
	}

	batch := make(ledger.Batch, len(records))
	for i, exp := range records {
		batch[i] = ledger.PutCardExpense{Record: exp}
	}
	if err := e.store.Apply(ctx, batch); err != nil {
		return nil, fmt.Errorf("persist card expenses: %w", err)
	}

	slog.InfoContext(ctx, "Card expenses recorded",
		"owner_id", ownerID, "card_id", card.ID, "count", len(records), "recurring", req.Recurring)
	e.publishExpenses(ctx, ownerID, card.ID, records)
	return records, nil
}

// ExpensesByCycle lists the card's purchases in one billing cycle.
func (e *Engine) ExpensesByCycle(ctx context.Context, ownerID, cardID string, cycle core.Cycle) ([]core.CardExpense, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, core.ErrNoOwner
	}
	card, err := e.ownedCard(ctx, ownerID, cardID)
	if err != nil {
		return nil, err
	}
	return e.store.CardExpensesByCycle(ctx, card.ID, cycle)
}

// OpenBalance sums the card's unbilled purchases in a cycle.
func (e *Engine) OpenBalance(ctx context.Context, ownerID, cardID string, cycle core.Cycle) (core.Money, error) {
	if strings.TrimSpace(ownerID) == "" {
		return core.Money{}, core.ErrNoOwner
	}
	card, err := e.ownedCard(ctx, ownerID, cardID)
	if err != nil {
		return core.Money{}, err
	}
	expenses, err := e.store.CardExpensesByCycle(ctx, card.ID, cycle)
	if err != nil {
		return core.Money{}, err
	}
	return openBalance(expenses), nil
}

// CloseBill settles a billing cycle: every unbilled purchase in the
// cycle is marked billed and a single ledger transaction for the total,
// categorized as the card bill, dated on the cycle's due day, and
// already marked paid, is written in the same atomic batch. Closing a cycle with no open
// balance is rejected, so a second close of the same cycle fails
// instead of writing a zero bill.
func (e *Engine) CloseBill(ctx context.Context, ownerID, cardID string, cycle core.Cycle) (core.Transaction, error) {
	if strings.TrimSpace(ownerID) == "" {
		return core.Transaction{}, core.ErrNoOwner
	}
	if err := cycle.Validate(); err != nil {
		return core.Transaction{}, err
	}
	card, err := e.ownedCard(ctx, ownerID, cardID)
	if err != nil {
		return core.Transaction{}, err
	}
	expenses, err := e.store.CardExpensesByCycle(ctx, card.ID, cycle)
	if err != nil {
		return core.Transaction{}, err
	}

	var (
		batch ledger.Batch
		ids   []string
	)
	total := core.Money{}
	for _, exp := range expenses {
		if exp.Billed {
			continue
		}
		total = total.Add(exp.Amount)
		exp.Billed = true
		batch = append(batch, ledger.PutCardExpense{Record: exp})
		ids = append(ids, exp.ID)
	}
	if total.Cents <= 0 {
		return core.Transaction{}, fmt.Errorf("cycle %s of card %s: %w", cycle, card.ID, core.ErrNoOpenBalance)
	}

	bill := core.Transaction{
		ID:          series.NewRecordID(),
		OwnerID:     ownerID,
		Type:        core.Expense,
		Date:        cycle.DueDate(card.DueDay),
		Description: fmt.Sprintf("Fatura %s %s", card.Name, cycle),
		Amount:      total,
		Category:    core.CategoryCardBill,
		Paid:        true,
	}
	if err := bill.Validate(); err != nil {
		return core.Transaction{}, err
	}
	batch = append(batch, ledger.PutTransaction{Record: bill})

	if err := e.store.Apply(ctx, batch); err != nil {
		return core.Transaction{}, fmt.Errorf("close bill: %w", err)
	}

	slog.InfoContext(ctx, "Billing cycle closed",
		"owner_id", ownerID, "card_id", card.ID, "cycle", cycle.String(),
		"expenses", len(ids), "total_cents", total.Cents)
	e.publish(ctx, notify.Event{Kind: notify.KindCardExpense, OwnerID: ownerID, CardID: card.ID, IDs: ids})
	e.publish(ctx, notify.Event{Kind: notify.KindTransaction, OwnerID: ownerID, IDs: []string{bill.ID}})
	return bill, nil
}

func openBalance(expenses []core.CardExpense) core.Money {
	total := core.Money{}
	for _, exp := range expenses {
		if !exp.Billed {
			total = total.Add(exp.Amount)
		}
	}
	return total
}

func (e *Engine) ownedCard(ctx context.Context, ownerID, cardID string) (core.CreditCard, error) {
	card, err := e.store.Card(ctx, cardID)
	if err != nil {
		return core.CreditCard{}, err
	}
	if card.OwnerID != ownerID {
		return core.CreditCard{}, fmt.Errorf("card %s: %w", cardID, core.ErrNotFound)
	}
	return card, nil
}

func (e *Engine) checkCategory(ctx context.Context, ownerID, name string) error {
	if e.cats == nil {
		return nil
	}
	ok, err := e.cats.Allowed(ctx, ownerID, core.Expense, name)
	if err != nil {
		return fmt.Errorf("check category: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %q", core.ErrUnknownCategory, name)
	}
	return nil
}

func (e *Engine) publishExpenses(ctx context.Context, ownerID, cardID string, records []core.CardExpense) {
	ids := make([]string, len(records))
	for i, exp := range records {
		ids[i] = exp.ID
	}
	e.publish(ctx, notify.Event{Kind: notify.KindCardExpense, OwnerID: ownerID, CardID: cardID, IDs: ids})
}

func (e *Engine) publish(ctx context.Context, ev notify.Event) {
	if e.events == nil {
		return
	}
	e.events.Publish(ctx, ev)
}
