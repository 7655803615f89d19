package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidCycle = errors.New("invalid billing cycle")

// Cycle is the monthly billing bucket a card purchase rolls into,
// labeled "YYYY-MM".
type Cycle struct {
	Year  int
	Month int // 1-12
}

// CycleFor assigns the billing cycle for a purchase date given the
// card's closing day. Purchases after the closing day roll into the
// next month's cycle. The assignment is computed once at creation and
// stored; editing the card's closing day later never moves it.
func CycleFor(d Date, closingDay int) Cycle {
	c := Cycle{Year: d.Year(), Month: int(d.Time.Month())}
	if d.Day() > closingDay {
		return c.Next()
	}
	return c
}

// ParseCycle parses a "YYYY-MM" label.
func ParseCycle(s string) (Cycle, error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(s))
	if err != nil {
		return Cycle{}, fmt.Errorf("%w: %q", ErrInvalidCycle, s)
	}
	return Cycle{Year: t.Year(), Month: int(t.Month())}, nil
}

func (c Cycle) Validate() error {
	if c.Year < 1 || c.Month < 1 || c.Month > 12 {
		return fmt.Errorf("%w: %q", ErrInvalidCycle, c.String())
	}
	return nil
}

func (c Cycle) String() string {
	return fmt.Sprintf("%04d-%02d", c.Year, c.Month)
}

func (c Cycle) IsZero() bool {
	return c.Year == 0 && c.Month == 0
}

// Next returns the following month's cycle.
func (c Cycle) Next() Cycle {
	if c.Month == 12 {
		return Cycle{Year: c.Year + 1, Month: 1}
	}
	return Cycle{Year: c.Year, Month: c.Month + 1}
}

// DueDate places the card's due day inside the cycle's month, clamped
// to the month's last day.
func (c Cycle) DueDate(dueDay int) Date {
	first := time.Date(c.Year, time.Month(c.Month), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1).Day()
	if dueDay > last {
		dueDay = last
	}
	return NewDate(c.Year, c.Month, dueDay)
}
