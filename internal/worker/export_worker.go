// Package worker consumes ledger change messages and copies settled
// transactions to the export spreadsheet.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"carteira/internal/amqp"
	"carteira/internal/core"
	"carteira/internal/export"
	"carteira/internal/ledger"
	"carteira/internal/notify"
)

// ExportWorker exports paid transactions referenced by change messages.
// Exports are at-least-once: a transaction edited after export appears
// again as a new row, identified by its record id column.
type ExportWorker struct {
	store     ledger.Store
	writer    export.TransactionWriter
	batchSize int

	mu       sync.Mutex
	exported map[string]bool
	pending  map[string]bool
}

func NewExportWorker(store ledger.Store, writer export.TransactionWriter, batchSize int) *ExportWorker {
	return &ExportWorker{
		store:     store,
		writer:    writer,
		batchSize: batchSize,
		exported:  make(map[string]bool),
		pending:   make(map[string]bool),
	}
}

// HandleChangeMessage processes one change message from the queue.
// Only transaction changes matter for export; other kinds are acked
// and dropped. A failed append queues the id for the periodic retry
// pass instead of bouncing the message forever.
func (w *ExportWorker) HandleChangeMessage(ctx context.Context, msg *amqp.ChangeMessage) error {
	if msg.Kind != string(notify.KindTransaction) {
		return nil
	}

	slog.InfoContext(ctx, "Processing change message",
		"kind", msg.Kind, "owner_id", msg.OwnerID, "ids", len(msg.IDs))

	for _, id := range msg.IDs {
		if err := w.exportTransaction(ctx, id); err != nil {
			slog.ErrorContext(ctx, "Failed to export transaction, queued for retry",
				"id", id, "error", err)
			w.markPending(id)
		}
	}
	return nil
}

// ProcessPending retries queued export failures, at most batchSize per
// call. Run it on a ticker as the backup path for lost messages.
func (w *ExportWorker) ProcessPending(ctx context.Context) error {
	ids := w.takePending(w.batchSize)
	if len(ids) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Retrying pending exports", "count", len(ids))

	var failed int
	for _, id := range ids {
		if err := w.exportTransaction(ctx, id); err != nil {
			slog.ErrorContext(ctx, "Pending export failed again", "id", id, "error", err)
			w.markPending(id)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d pending exports failed", failed, len(ids))
	}
	return nil
}

// PendingCount reports how many ids are queued for retry.
func (w *ExportWorker) PendingCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

func (w *ExportWorker) exportTransaction(ctx context.Context, id string) error {
	t, err := w.store.Transaction(ctx, id)
	if err != nil {
		if isNotFound(err) {
			// Deleted since the message was published; nothing to export.
			w.forget(id)
			return nil
		}
		return fmt.Errorf("load transaction: %w", err)
	}

	if !t.Paid {
		return nil
	}
	if w.alreadyExported(id) {
		return nil
	}

	ref, err := w.writer.Append(ctx, t)
	if err != nil {
		return fmt.Errorf("append to sheet: %w", err)
	}

	w.markExported(id)
	slog.InfoContext(ctx, "Transaction exported",
		"id", id, "sheets_ref", ref, "amount_cents", t.Amount.Cents)
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, core.ErrNotFound)
}

func (w *ExportWorker) alreadyExported(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.exported[id]
}

func (w *ExportWorker) markExported(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.exported[id] = true
	delete(w.pending, id)
}

func (w *ExportWorker) markPending(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[id] = true
}

func (w *ExportWorker) forget(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.pending, id)
}

func (w *ExportWorker) takePending(limit int) []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	ids := make([]string, 0, limit)
	for id := range w.pending {
		if len(ids) == limit {
			break
		}
		ids = append(ids, id)
		delete(w.pending, id)
	}
	return ids
}
