package core

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string
	Amount Money
}

// MonthOverview is a compact summary for an owner's year+month: totals
// by transaction type plus a per-category breakdown of expenses.
// Projected includes unpaid transactions; Settled only paid ones.
type MonthOverview struct {
	Year            int
	Month           int // 1-12
	Income          Money
	Expenses        Money
	SettledIncome   Money
	SettledExpenses Money
	ByCategory      []CategoryAmount
}

// Balance is income minus expenses, ignoring the paid flag.
func (o MonthOverview) Balance() Money {
	return Money{Cents: o.Income.Cents - o.Expenses.Cents}
}
