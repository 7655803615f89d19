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

// Card-expense series share the scoped-edit semantics of transaction
// series, with one extra rule: a billed expense belongs to a closed
// bill and is frozen, so scoped operations pass over it.

// UpdateSingleCardExpense edits one unbilled card expense by id.
func (e *Engine) UpdateSingleCardExpense(ctx context.Context, ownerID, id string, patch Patch) (core.CardExpense, error) {
	if strings.TrimSpace(ownerID) == "" {
		return core.CardExpense{}, core.ErrNoOwner
	}
	exp, card, err := e.ownedCardExpense(ctx, ownerID, id)
	if err != nil {
		return core.CardExpense{}, err
	}
	if exp.Billed {
		return core.CardExpense{}, fmt.Errorf("%w: %s", core.ErrExpenseBilled, id)
	}

	if patch.Amount != nil {
		exp.Amount = *patch.Amount
	}
	if patch.Description != nil {
		exp.Description = *patch.Description
	}
	if patch.Category != nil {
		if err := e.checkCategory(ctx, ownerID, core.Expense, *patch.Category); err != nil {
			return core.CardExpense{}, err
		}
		exp.Category = *patch.Category
	}
	if err := exp.Validate(); err != nil {
		return core.CardExpense{}, err
	}

	if err := e.store.Apply(ctx, ledger.Batch{ledger.PutCardExpense{Record: exp}}); err != nil {
		return core.CardExpense{}, fmt.Errorf("update card expense: %w", err)
	}
	e.publishCardExpenses(ctx, ownerID, card.ID, []string{exp.ID})
	return exp, nil
}

// UpdateFutureCardExpenses patches every unbilled series member dated
// on or after the pivot. Billed members are frozen and skipped.
func (e *Engine) UpdateFutureCardExpenses(ctx context.Context, ownerID, seriesID string, from core.Date, patch Patch) (int, error) {
	if strings.TrimSpace(ownerID) == "" {
		return 0, core.ErrNoOwner
	}
	if patch.isEmpty() {
		return 0, nil
	}
	members, card, err := e.ownedCardSeries(ctx, ownerID, seriesID)
	if err != nil {
		return 0, err
	}
	if patch.Category != nil {
		if err := e.checkCategory(ctx, ownerID, core.Expense, *patch.Category); err != nil {
			return 0, err
		}
	}

	var batch ledger.Batch
	var ids []string
	for _, exp := range members {
		if exp.Billed || !exp.Date.OnOrAfter(from) {
			continue
		}
		if patch.Amount != nil {
			exp.Amount = *patch.Amount
		}
		if patch.Description != nil {
			exp.Description = *patch.Description
		}
		if patch.Category != nil {
			exp.Category = *patch.Category
		}
		if err := exp.Validate(); err != nil {
			return 0, err
		}
		batch = append(batch, ledger.PutCardExpense{Record: exp})
		ids = append(ids, exp.ID)
	}
	if len(batch) == 0 {
		return 0, nil
	}
	if err := e.store.Apply(ctx, batch); err != nil {
		return 0, fmt.Errorf("update card expense series: %w", err)
	}

	slog.InfoContext(ctx, "Card expense series updated from pivot",
		"owner_id", ownerID, "series_id", seriesID, "from", from.String(), "updated", len(ids))
	e.publishCardExpenses(ctx, ownerID, card.ID, ids)
	return len(ids), nil
}

// DeleteSingleCardExpense removes one unbilled card expense by id.
func (e *Engine) DeleteSingleCardExpense(ctx context.Context, ownerID, id string) error {
	if strings.TrimSpace(ownerID) == "" {
		return core.ErrNoOwner
	}
	exp, card, err := e.ownedCardExpense(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if exp.Billed {
		return fmt.Errorf("%w: %s", core.ErrExpenseBilled, id)
	}
	if err := e.store.Apply(ctx, ledger.Batch{ledger.DeleteCardExpense{ID: exp.ID}}); err != nil {
		return fmt.Errorf("delete card expense: %w", err)
	}
	e.publishCardExpenses(ctx, ownerID, card.ID, []string{exp.ID})
	return nil
}

// DeleteFutureCardExpenses removes every unbilled series member dated
// on or after the pivot. Billed members stay as settled history.
func (e *Engine) DeleteFutureCardExpenses(ctx context.Context, ownerID, seriesID string, from core.Date) (int, error) {
	if strings.TrimSpace(ownerID) == "" {
		return 0, core.ErrNoOwner
	}
	members, card, err := e.ownedCardSeries(ctx, ownerID, seriesID)
	if err != nil {
		return 0, err
	}

	var batch ledger.Batch
	var ids []string
	for _, exp := range members {
		if exp.Billed || !exp.Date.OnOrAfter(from) {
			continue
		}
		batch = append(batch, ledger.DeleteCardExpense{ID: exp.ID})
		ids = append(ids, exp.ID)
	}
	if len(batch) == 0 {
		return 0, nil
	}
	if err := e.store.Apply(ctx, batch); err != nil {
		return 0, fmt.Errorf("delete card expense series tail: %w", err)
	}

	slog.InfoContext(ctx, "Card expense series tail deleted",
		"owner_id", ownerID, "series_id", seriesID, "from", from.String(), "deleted", len(ids))
	e.publishCardExpenses(ctx, ownerID, card.ID, ids)
	return len(ids), nil
}

func (e *Engine) ownedCardExpense(ctx context.Context, ownerID, id string) (core.CardExpense, core.CreditCard, error) {
	exp, err := e.store.CardExpense(ctx, id)
	if err != nil {
		return core.CardExpense{}, core.CreditCard{}, err
	}
	card, err := e.ownedCard(ctx, ownerID, exp.CardID)
	if err != nil {
		return core.CardExpense{}, core.CreditCard{}, fmt.Errorf("card expense %s: %w", id, core.ErrNotFound)
	}
	return exp, card, nil
}

func (e *Engine) ownedCardSeries(ctx context.Context, ownerID, seriesID string) ([]core.CardExpense, core.CreditCard, error) {
	members, err := e.store.CardExpensesBySeries(ctx, seriesID)
	if err != nil {
		return nil, core.CreditCard{}, err
	}
	if len(members) == 0 {
		return nil, core.CreditCard{}, fmt.Errorf("series %s: %w", seriesID, core.ErrNotFound)
	}
	card, err := e.ownedCard(ctx, ownerID, members[0].CardID)
	if err != nil {
		return nil, core.CreditCard{}, fmt.Errorf("series %s: %w", seriesID, core.ErrNotFound)
	}
	return members, card, nil
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

func (e *Engine) publishCardExpenses(ctx context.Context, ownerID, cardID string, ids []string) {
	e.publish(ctx, notify.Event{
		Kind:    notify.KindCardExpense,
		OwnerID: ownerID,
		CardID:  cardID,
		IDs:     ids,
	})
}
