package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"carteira/internal/core"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists the ledger in a local SQLite database. Apply
// runs inside a single SQL transaction.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

const transactionColumns = "id, owner_id, type, date, description, amount_cents, category, paid, series_id, installment"

func (s *SQLiteStore) Transaction(ctx context.Context, id string) (core.Transaction, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE id = ?", id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

func (s *SQLiteStore) TransactionsBySeries(ctx context.Context, seriesID string) ([]core.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE series_id = ? ORDER BY date, id", seriesID)
	if err != nil {
		return nil, fmt.Errorf("query series transactions: %w", err)
	}
	defer rows.Close()
	return collectTransactions(ctx, rows)
}

func (s *SQLiteStore) TransactionsByRange(ctx context.Context, ownerID string, from, to core.Date) ([]core.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE owner_id = ? AND date >= ? AND date <= ? ORDER BY date, id",
		ownerID, from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("query transactions by range: %w", err)
	}
	defer rows.Close()
	return collectTransactions(ctx, rows)
}

func (s *SQLiteStore) TransactionsByCategory(ctx context.Context, ownerID string, typ core.TransactionType, category string) ([]core.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE owner_id = ? AND type = ? AND category = ? ORDER BY date, id",
		ownerID, string(typ), category)
	if err != nil {
		return nil, fmt.Errorf("query transactions by category: %w", err)
	}
	defer rows.Close()
	return collectTransactions(ctx, rows)
}

const cardExpenseColumns = "id, card_id, date, description, amount_cents, category, billed, cycle, series_id, installment"

func (s *SQLiteStore) CardExpense(ctx context.Context, id string) (core.CardExpense, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+cardExpenseColumns+" FROM card_expenses WHERE id = ?", id)
	e, err := scanCardExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.CardExpense{}, fmt.Errorf("card expense %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.CardExpense{}, fmt.Errorf("get card expense: %w", err)
	}
	return e, nil
}

func (s *SQLiteStore) CardExpensesBySeries(ctx context.Context, seriesID string) ([]core.CardExpense, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+cardExpenseColumns+" FROM card_expenses WHERE series_id = ? ORDER BY date, id", seriesID)
	if err != nil {
		return nil, fmt.Errorf("query series card expenses: %w", err)
	}
	defer rows.Close()
	return collectCardExpenses(ctx, rows)
}

// CardExpensesByCycle lists a card's expenses in one billing cycle. A
// zero cycle matches every cycle of the card.
func (s *SQLiteStore) CardExpensesByCycle(ctx context.Context, cardID string, cycle core.Cycle) ([]core.CardExpense, error) {
	query := "SELECT " + cardExpenseColumns + " FROM card_expenses WHERE card_id = ? ORDER BY date, id"
	args := []any{cardID}
	if !cycle.IsZero() {
		query = "SELECT " + cardExpenseColumns + " FROM card_expenses WHERE card_id = ? AND cycle = ? ORDER BY date, id"
		args = []any{cardID, cycle.String()}
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query card expenses by cycle: %w", err)
	}
	defer rows.Close()
	return collectCardExpenses(ctx, rows)
}

func (s *SQLiteStore) Card(ctx context.Context, id string) (core.CreditCard, error) {
	var c core.CreditCard
	err := s.db.QueryRowContext(ctx,
		"SELECT id, owner_id, name, limit_cents, closing_day, due_day FROM credit_cards WHERE id = ?", id).
		Scan(&c.ID, &c.OwnerID, &c.Name, &c.Limit.Cents, &c.ClosingDay, &c.DueDay)
	if errors.Is(err, sql.ErrNoRows) {
		return core.CreditCard{}, fmt.Errorf("card %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.CreditCard{}, fmt.Errorf("get card: %w", err)
	}
	return c, nil
}

func (s *SQLiteStore) CardsByOwner(ctx context.Context, ownerID string) ([]core.CreditCard, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, owner_id, name, limit_cents, closing_day, due_day FROM credit_cards WHERE owner_id = ? ORDER BY name", ownerID)
	if err != nil {
		return nil, fmt.Errorf("query cards: %w", err)
	}
	defer rows.Close()

	var out []core.CreditCard
	for rows.Next() {
		var c core.CreditCard
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.Name, &c.Limit.Cents, &c.ClosingDay, &c.DueDay); err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Categories(ctx context.Context, ownerID string) (core.CategorySet, bool, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT type, name FROM categories WHERE owner_id = ? ORDER BY name", ownerID)
	if err != nil {
		return core.CategorySet{}, false, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	var set core.CategorySet
	found := false
	for rows.Next() {
		var typ, name string
		if err := rows.Scan(&typ, &name); err != nil {
			return core.CategorySet{}, false, fmt.Errorf("scan category: %w", err)
		}
		found = true
		switch core.TransactionType(typ) {
		case core.Income:
			set.Income = append(set.Income, name)
		case core.Expense:
			set.Expense = append(set.Expense, name)
		default:
			slog.WarnContext(ctx, "Skipping category row with unknown type",
				"owner_id", ownerID, "type", typ, "name", name)
		}
	}
	return set, found, rows.Err()
}

func (s *SQLiteStore) MonthOverview(ctx context.Context, ownerID string, year, month int) (core.MonthOverview, error) {
	overview := core.MonthOverview{Year: year, Month: month}
	prefix := fmt.Sprintf("%04d-%02d", year, month)

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN type = 'income' THEN amount_cents ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN type = 'expense' THEN amount_cents ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN type = 'income' AND paid = 1 THEN amount_cents ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN type = 'expense' AND paid = 1 THEN amount_cents ELSE 0 END), 0)
		FROM transactions WHERE owner_id = ? AND substr(date, 1, 7) = ?`,
		ownerID, prefix).
		Scan(&overview.Income.Cents, &overview.Expenses.Cents,
			&overview.SettledIncome.Cents, &overview.SettledExpenses.Cents)
	if err != nil {
		return overview, fmt.Errorf("month totals: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT category, SUM(amount_cents) FROM transactions
		WHERE owner_id = ? AND type = 'expense' AND substr(date, 1, 7) = ?
		GROUP BY category ORDER BY category`,
		ownerID, prefix)
	if err != nil {
		return overview, fmt.Errorf("category sums: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ca core.CategoryAmount
		if err := rows.Scan(&ca.Name, &ca.Amount.Cents); err != nil {
			return overview, fmt.Errorf("scan category sum: %w", err)
		}
		overview.ByCategory = append(overview.ByCategory, ca)
	}
	return overview, rows.Err()
}

// Apply commits the batch in one SQL transaction.
func (s *SQLiteStore) Apply(ctx context.Context, batch Batch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", core.ErrAtomicity, err)
	}
	defer tx.Rollback()

	for i, op := range batch {
		if err := applyOp(ctx, tx, op); err != nil {
			return fmt.Errorf("%w: op %d: %v", core.ErrAtomicity, i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", core.ErrAtomicity, err)
	}
	return nil
}

func applyOp(ctx context.Context, tx *sql.Tx, op Op) error {
	switch o := op.(type) {
	case PutTransaction:
		if err := o.Record.Validate(); err != nil {
			return err
		}
		t := o.Record
		_, err := tx.ExecContext(ctx, `
			INSERT INTO transactions (id, owner_id, type, date, description, amount_cents, category, paid, series_id, installment)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				owner_id = excluded.owner_id, type = excluded.type, date = excluded.date,
				description = excluded.description, amount_cents = excluded.amount_cents,
				category = excluded.category, paid = excluded.paid,
				series_id = excluded.series_id, installment = excluded.installment`,
			t.ID, t.OwnerID, string(t.Type), t.Date.String(), t.Description,
			t.Amount.Cents, t.Category, boolToInt(t.Paid), t.SeriesID, t.Installment)
		return err
	case DeleteTransaction:
		return execDelete(ctx, tx, "DELETE FROM transactions WHERE id = ?", o.ID, "transaction")
	case PutCardExpense:
		if err := o.Record.Validate(); err != nil {
			return err
		}
		e := o.Record
		_, err := tx.ExecContext(ctx, `
			INSERT INTO card_expenses (id, card_id, date, description, amount_cents, category, billed, cycle, series_id, installment)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				card_id = excluded.card_id, date = excluded.date, description = excluded.description,
				amount_cents = excluded.amount_cents, category = excluded.category,
				billed = excluded.billed, cycle = excluded.cycle,
				series_id = excluded.series_id, installment = excluded.installment`,
			e.ID, e.CardID, e.Date.String(), e.Description, e.Amount.Cents,
			e.Category, boolToInt(e.Billed), e.Cycle.String(), e.SeriesID, e.Installment)
		return err
	case DeleteCardExpense:
		return execDelete(ctx, tx, "DELETE FROM card_expenses WHERE id = ?", o.ID, "card expense")
	case PutCard:
		if err := o.Record.Validate(); err != nil {
			return err
		}
		c := o.Record
		_, err := tx.ExecContext(ctx, `
			INSERT INTO credit_cards (id, owner_id, name, limit_cents, closing_day, due_day)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				owner_id = excluded.owner_id, name = excluded.name, limit_cents = excluded.limit_cents,
				closing_day = excluded.closing_day, due_day = excluded.due_day`,
			c.ID, c.OwnerID, c.Name, c.Limit.Cents, c.ClosingDay, c.DueDay)
		return err
	case PutCategories:
		if o.OwnerID == "" {
			return core.ErrNoOwner
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM categories WHERE owner_id = ?", o.OwnerID); err != nil {
			return err
		}
		for _, name := range o.Set.Income {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO categories (owner_id, type, name) VALUES (?, 'income', ?)", o.OwnerID, name); err != nil {
				return err
			}
		}
		for _, name := range o.Set.Expense {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO categories (owner_id, type, name) VALUES (?, 'expense', ?)", o.OwnerID, name); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown op %T", op)
	}
}

func execDelete(ctx context.Context, tx *sql.Tx, query, id, kind string) error {
	res, err := tx.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, core.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var (
		t    core.Transaction
		typ  string
		date string
		paid int
	)
	err := row.Scan(&t.ID, &t.OwnerID, &typ, &date, &t.Description,
		&t.Amount.Cents, &t.Category, &paid, &t.SeriesID, &t.Installment)
	if err != nil {
		return core.Transaction{}, err
	}
	t.Type = core.TransactionType(typ)
	t.Paid = paid != 0
	t.Date, err = core.ParseDate(date)
	if err != nil {
		return core.Transaction{}, err
	}
	return t, nil
}

// collectTransactions drops rows whose date cannot be parsed: a read
// that finds N raw rows and M valid ones returns M.
func collectTransactions(ctx context.Context, rows *sql.Rows) ([]core.Transaction, error) {
	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			if errors.Is(err, core.ErrInvalidDate) {
				slog.WarnContext(ctx, "Skipping transaction row with malformed date", "error", err)
				continue
			}
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanCardExpense(row rowScanner) (core.CardExpense, error) {
	var (
		e      core.CardExpense
		date   string
		billed int
		cycle  string
	)
	err := row.Scan(&e.ID, &e.CardID, &date, &e.Description, &e.Amount.Cents,
		&e.Category, &billed, &cycle, &e.SeriesID, &e.Installment)
	if err != nil {
		return core.CardExpense{}, err
	}
	e.Billed = billed != 0
	e.Date, err = core.ParseDate(date)
	if err != nil {
		return core.CardExpense{}, err
	}
	e.Cycle, err = core.ParseCycle(cycle)
	if err != nil {
		return core.CardExpense{}, err
	}
	return e, nil
}

func collectCardExpenses(ctx context.Context, rows *sql.Rows) ([]core.CardExpense, error) {
	var out []core.CardExpense
	for rows.Next() {
		e, err := scanCardExpense(rows)
		if err != nil {
			if errors.Is(err, core.ErrInvalidDate) || errors.Is(err, core.ErrInvalidCycle) {
				slog.WarnContext(ctx, "Skipping card expense row with malformed date or cycle", "error", err)
				continue
			}
			return nil, fmt.Errorf("scan card expense: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
