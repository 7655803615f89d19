package series

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"carteira/internal/core"
	"carteira/internal/ledger"
	"carteira/internal/notify"
)

// CategorySource answers whether a category name is registered for an
// owner and transaction type. A nil source disables registry checks.
type CategorySource interface {
	Allowed(ctx context.Context, ownerID string, typ core.TransactionType, name string) (bool, error)
}

// Engine creates transactions (standalone or recurring) and applies
// scoped updates and deletes to transaction and card-expense series.
type Engine struct {
	store  ledger.Store
	cats   CategorySource
	events notify.Publisher
}

func NewEngine(store ledger.Store, cats CategorySource, events notify.Publisher) *Engine {
	return &Engine{store: store, cats: cats, events: events}
}

// TransactionRequest is a save request from the form layer.
type TransactionRequest struct {
	Type        core.TransactionType
	Date        core.Date
	Description string
	Amount      core.Money
	Category    string
	Paid        bool
	Recurring   bool
	Occurrences int
}

// Patch is a future-scoped field patch. Date, type, series id and
// installment label are immutable under this operation.
type Patch struct {
	Amount      *core.Money
	Description *string
	Category    *string
}

// SinglePatch targets exactly one record and may edit any field.
type SinglePatch struct {
	Type        *core.TransactionType
	Date        *core.Date
	Description *string
	Amount      *core.Money
	Category    *string
	Paid        *bool
}

func (p Patch) isEmpty() bool {
	return p.Amount == nil && p.Description == nil && p.Category == nil
}

// CreateTransactions validates and persists a save request. A
// non-recurring request yields one standalone record; a recurring one
// yields the full expanded series in a single atomic batch.
func (e *Engine) CreateTransactions(ctx context.Context, ownerID string, req TransactionRequest) ([]core.Transaction, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, core.ErrNoOwner
	}

	base := core.Transaction{
		ID:          NewRecordID(),
		OwnerID:     ownerID,
		Type:        req.Type,
		Date:        req.Date.Normalize(),
		Description: req.Description,
		Amount:      req.Amount,
		Category:    req.Category,
		Paid:        req.Paid,
	}
	if err := base.Validate(); err != nil {
		return nil, err
	}
	if err := e.checkCategory(ctx, ownerID, req.Type, req.Category); err != nil {
		return nil, err
	}

	var records []core.Transaction
	if req.Recurring {
		n := NormalizeCount(req.Occurrences)
		seriesID := NewSeriesID()
		for _, occ := range Expand(base.Date, n) {
			t := base
			t.ID = NewRecordID()
			t.Date = occ.Date
			t.SeriesID = seriesID
			t.Installment = occ.Label
			records = append(records, t)
		}
	} else {
		records = []core.Transaction{base}
	}

	batch := make(ledger.Batch, len(records))
	for i, t := range records {
		batch[i] = ledger.PutTransaction{Record: t}
	}
	if err := e.store.Apply(ctx, batch); err != nil {
		return nil, fmt.Errorf("persist transactions: %w", err)
	}

	slog.InfoContext(ctx, "Transactions created",
		"owner_id", ownerID, "count", len(records), "recurring", req.Recurring)
	e.publishTransactions(ctx, ownerID, records)
	return records, nil
}

// UpdateSingle edits one transaction by id. Any field may change.
func (e *Engine) UpdateSingle(ctx context.Context, ownerID, id string, patch SinglePatch) (core.Transaction, error) {
	if strings.TrimSpace(ownerID) == "" {
		return core.Transaction{}, core.ErrNoOwner
	}
	t, err := e.ownedTransaction(ctx, ownerID, id)
	if err != nil {
		return core.Transaction{}, err
	}

	if patch.Type != nil {
		t.Type = *patch.Type
	}
	if patch.Date != nil {
		t.Date = patch.Date.Normalize()
	}
	if patch.Description != nil {
		t.Description = *patch.Description
	}
	if patch.Amount != nil {
		t.Amount = *patch.Amount
	}
	if patch.Category != nil {
		t.Category = *patch.Category
	}
	if patch.Paid != nil {
		t.Paid = *patch.Paid
	}

	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if patch.Category != nil || patch.Type != nil {
		if err := e.checkCategory(ctx, ownerID, t.Type, t.Category); err != nil {
			return core.Transaction{}, err
		}
	}

	if err := e.store.Apply(ctx, ledger.Batch{ledger.PutTransaction{Record: t}}); err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	e.publishTransactions(ctx, ownerID, []core.Transaction{t})
	return t, nil
}

// UpdateFuture applies a field patch to every series member dated on
// or after the pivot (inclusive), in one atomic batch. Members before
// the pivot are untouched.
func (e *Engine) UpdateFuture(ctx context.Context, ownerID, seriesID string, from core.Date, patch Patch) (int, error) {
	if strings.TrimSpace(ownerID) == "" {
		return 0, core.ErrNoOwner
	}
	if patch.isEmpty() {
		return 0, nil
	}
	members, err := e.ownedSeries(ctx, ownerID, seriesID)
	if err != nil {
		return 0, err
	}
	if patch.Category != nil {
		if err := e.checkCategory(ctx, ownerID, members[0].Type, *patch.Category); err != nil {
			return 0, err
		}
	}

	var (
		batch   ledger.Batch
		updated []core.Transaction
	)
	for _, t := range members {
		if !t.Date.OnOrAfter(from) {
			continue
		}
		if patch.Amount != nil {
			t.Amount = *patch.Amount
		}
		if patch.Description != nil {
			t.Description = *patch.Description
		}
		if patch.Category != nil {
			t.Category = *patch.Category
		}
		if err := t.Validate(); err != nil {
			return 0, err
		}
		batch = append(batch, ledger.PutTransaction{Record: t})
		updated = append(updated, t)
	}
	if len(batch) == 0 {
		return 0, nil
	}
	if err := e.store.Apply(ctx, batch); err != nil {
		return 0, fmt.Errorf("update series: %w", err)
	}

	slog.InfoContext(ctx, "Series updated from pivot",
		"owner_id", ownerID, "series_id", seriesID, "from", from.String(), "updated", len(updated))
	e.publishTransactions(ctx, ownerID, updated)
	return len(updated), nil
}

// DeleteSingle removes one transaction by id.
func (e *Engine) DeleteSingle(ctx context.Context, ownerID, id string) error {
	if strings.TrimSpace(ownerID) == "" {
		return core.ErrNoOwner
	}
	t, err := e.ownedTransaction(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if err := e.store.Apply(ctx, ledger.Batch{ledger.DeleteTransaction{ID: t.ID}}); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	e.publishTransactions(ctx, ownerID, []core.Transaction{t})
	return nil
}

// DeleteFuture removes every series member dated on or after the
// pivot. Remaining installment labels are not renumbered; they are
// history markers, not live counters.
func (e *Engine) DeleteFuture(ctx context.Context, ownerID, seriesID string, from core.Date) (int, error) {
	if strings.TrimSpace(ownerID) == "" {
		return 0, core.ErrNoOwner
	}
	members, err := e.ownedSeries(ctx, ownerID, seriesID)
	if err != nil {
		return 0, err
	}

	var batch ledger.Batch
	var ids []string
	for _, t := range members {
		if t.Date.OnOrAfter(from) {
			batch = append(batch, ledger.DeleteTransaction{ID: t.ID})
			ids = append(ids, t.ID)
		}
	}
	if len(batch) == 0 {
		return 0, nil
	}
	if err := e.store.Apply(ctx, batch); err != nil {
		return 0, fmt.Errorf("delete series tail: %w", err)
	}

	slog.InfoContext(ctx, "Series tail deleted",
		"owner_id", ownerID, "series_id", seriesID, "from", from.String(), "deleted", len(ids))
	e.publish(ctx, notify.Event{Kind: notify.KindTransaction, OwnerID: ownerID, IDs: ids})
	return len(batch), nil
}

func (e *Engine) ownedTransaction(ctx context.Context, ownerID, id string) (core.Transaction, error) {
	t, err := e.store.Transaction(ctx, id)
	if err != nil {
		return core.Transaction{}, err
	}
	if t.OwnerID != ownerID {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	return t, nil
}

func (e *Engine) ownedSeries(ctx context.Context, ownerID, seriesID string) ([]core.Transaction, error) {
	members, err := e.store.TransactionsBySeries(ctx, seriesID)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 || members[0].OwnerID != ownerID {
		return nil, fmt.Errorf("series %s: %w", seriesID, core.ErrNotFound)
	}
	return members, nil
}

func (e *Engine) checkCategory(ctx context.Context, ownerID string, typ core.TransactionType, name string) error {
	if e.cats == nil {
		return nil
	}
	ok, err := e.cats.Allowed(ctx, ownerID, typ, name)
	if err != nil {
		return fmt.Errorf("check category: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %q (%s)", core.ErrUnknownCategory, name, typ)
	}
	return nil
}

func (e *Engine) publishTransactions(ctx context.Context, ownerID string, records []core.Transaction) {
	ids := make([]string, len(records))
	for i, t := range records {
		ids[i] = t.ID
	}
	e.publish(ctx, notify.Event{Kind: notify.KindTransaction, OwnerID: ownerID, IDs: ids})
}

func (e *Engine) publish(ctx context.Context, ev notify.Event) {
	if e.events == nil {
		return
	}
	e.events.Publish(ctx, ev)
}
