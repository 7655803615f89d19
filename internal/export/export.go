// Package export defines the outbound port for copying settled ledger
// transactions to an external spreadsheet.
package export

import (
	"context"

	"carteira/internal/core"
)

// TransactionWriter appends one transaction row to the export target
// and returns a reference to the written row.
type TransactionWriter interface {
	Append(ctx context.Context, t core.Transaction) (rowRef string, err error)
}
