package http

import (
	"fmt"
	"net/http"
	"strconv"

	"carteira/internal/core"
)

type categoryAmountResponse struct {
	Name        string `json:"name"`
	AmountCents int64  `json:"amount_cents"`
}

type overviewResponse struct {
	Year                 int                      `json:"year"`
	Month                int                      `json:"month"`
	IncomeCents          int64                    `json:"income_cents"`
	ExpensesCents        int64                    `json:"expenses_cents"`
	SettledIncomeCents   int64                    `json:"settled_income_cents"`
	SettledExpensesCents int64                    `json:"settled_expenses_cents"`
	BalanceCents         int64                    `json:"balance_cents"`
	ByCategory           []categoryAmountResponse `json:"by_category"`
}

func toOverviewResponse(o core.MonthOverview) overviewResponse {
	byCategory := make([]categoryAmountResponse, 0, len(o.ByCategory))
	for _, c := range o.ByCategory {
		byCategory = append(byCategory, categoryAmountResponse{Name: c.Name, AmountCents: c.Amount.Cents})
	}
	return overviewResponse{
		Year:                 o.Year,
		Month:                o.Month,
		IncomeCents:          o.Income.Cents,
		ExpensesCents:        o.Expenses.Cents,
		SettledIncomeCents:   o.SettledIncome.Cents,
		SettledExpensesCents: o.SettledExpenses.Cents,
		BalanceCents:         o.Balance().Cents,
		ByCategory:           byCategory,
	}
}

func (s *Server) handleMonthOverview(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)
	if owner == "" {
		writeEngineError(w, r, core.ErrNoOwner)
		return
	}

	year, err := strconv.Atoi(r.URL.Query().Get("year"))
	if err != nil || year < 1 {
		writeError(w, http.StatusBadRequest, "year must be a positive integer")
		return
	}
	month, err := strconv.Atoi(r.URL.Query().Get("month"))
	if err != nil || month < 1 || month > 12 {
		writeError(w, http.StatusBadRequest, "month must be between 1 and 12")
		return
	}

	key := fmt.Sprintf("%s|%04d-%02d", owner, year, month)
	if cached, ok := s.overviewCache.Get(key); ok {
		writeJSON(w, http.StatusOK, toOverviewResponse(cached))
		return
	}

	overview, err := s.store.MonthOverview(r.Context(), owner, year, month)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	s.overviewCache.Put(key, overview)
	writeJSON(w, http.StatusOK, toOverviewResponse(overview))
}
