package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

// CategoryCardBill is the category given to the settlement transaction
// created when a card bill is closed.
const CategoryCardBill = "Fatura do Cartão"

type (
	TransactionType string

	// Date is a calendar date normalized to midnight UTC. Time-of-day is
	// never meaningful in the ledger.
	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// Transaction is a single income or expense record. A transaction is
	// either standalone (SeriesID empty) or a member of a recurring
	// series, in which case Installment carries its "k/n" position.
	Transaction struct {
		ID          string
		OwnerID     string
		Type        TransactionType
		Date        Date
		Description string
		Amount      Money
		Category    string
		Paid        bool
		SeriesID    string
		Installment string
	}

	// CardExpense is a purchase on a credit card. Cycle is assigned once
	// at creation from the purchase date and the card's closing day;
	// once Billed is set the record is frozen.
	CardExpense struct {
		ID          string
		CardID      string
		Date        Date
		Description string
		Amount      Money
		Category    string
		Billed      bool
		Cycle       Cycle
		SeriesID    string
		Installment string
	}

	CreditCard struct {
		ID         string
		OwnerID    string
		Name       string
		Limit      Money
		ClosingDay int
		DueDay     int
	}
)

var (
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyCategory    = errors.New("empty category")
	ErrInvalidType      = errors.New("invalid transaction type")
	ErrEmptyCardName    = errors.New("empty card name")
	ErrInvalidDay       = errors.New("day out of range")
	ErrNegativeLimit    = errors.New("negative card limit")
)

// NewDate creates a Date at midnight UTC.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

// Normalize drops any time-of-day component, keeping the calendar date.
func (d Date) Normalize() Date {
	y, m, day := d.Date()
	return NewDate(y, int(m), day)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return fmt.Errorf("%w: zero date", ErrInvalidDate)
	}
	return nil
}

// AddMonths returns the date k calendar months later, clamping the day
// to the last day of the target month (Jan 31 + 1 month = Feb 28/29).
func (d Date) AddMonths(k int) Date {
	y, m, day := d.Date()
	target := time.Date(y, m+time.Month(k), 1, 0, 0, 0, 0, time.UTC)
	last := target.AddDate(0, 1, -1).Day()
	if day > last {
		day = last
	}
	return NewDate(target.Year(), int(target.Month()), day)
}

// OnOrAfter reports whether d falls on or after other, at day granularity.
func (d Date) OnOrAfter(other Date) bool {
	return !d.Normalize().Time.Before(other.Normalize().Time)
}

func (d Date) String() string {
	return d.Format("2006-01-02")
}

func (t TransactionType) Validate() error {
	switch t {
	case Income, Expense:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidType, string(t))
	}
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Installment formats the "k/n" label for occurrence k (1-based) of n.
func Installment(k, n int) string {
	return fmt.Sprintf("%d/%d", k, n)
}

func (t Transaction) Validate() error {
	if err := t.Type.Validate(); err != nil {
		return err
	}
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(t.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrEmptyCategory
	}
	if t.SeriesID != "" && t.Installment == "" {
		return errors.New("series member missing installment label")
	}
	return nil
}

func (e CardExpense) Validate() error {
	if strings.TrimSpace(e.CardID) == "" {
		return errors.New("card expense missing card id")
	}
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(e.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(e.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(e.Category) == "" {
		return ErrEmptyCategory
	}
	if err := e.Cycle.Validate(); err != nil {
		return err
	}
	if e.SeriesID != "" && e.Installment == "" {
		return errors.New("series member missing installment label")
	}
	return nil
}

func (c CreditCard) Validate() error {
	if len(strings.TrimSpace(c.Name)) == 0 {
		return ErrEmptyCardName
	}
	if c.Limit.Cents < 0 {
		return ErrNegativeLimit
	}
	if c.ClosingDay < 1 || c.ClosingDay > 31 {
		return fmt.Errorf("%w: closing day %d", ErrInvalidDay, c.ClosingDay)
	}
	if c.DueDay < 1 || c.DueDay > 31 {
		return fmt.Errorf("%w: due day %d", ErrInvalidDay, c.DueDay)
	}
	return nil
}
