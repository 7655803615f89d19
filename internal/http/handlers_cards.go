package http

import (
	"net/http"

	"carteira/internal/cards"
	"carteira/internal/core"
)

type cardPayload struct {
	Name       string `json:"name"`
	Limit      string `json:"limit"`
	ClosingDay int    `json:"closing_day"`
	DueDay     int    `json:"due_day"`
}

type cardResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	LimitCents int64  `json:"limit_cents"`
	ClosingDay int    `json:"closing_day"`
	DueDay     int    `json:"due_day"`
}

type cardExpensePayload struct {
	Date        string `json:"date"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
	Category    string `json:"category"`
	Recurring   bool   `json:"recurring"`
	Occurrences int    `json:"occurrences"`
}

type cardExpenseResponse struct {
	ID          string `json:"id"`
	CardID      string `json:"card_id"`
	Date        string `json:"date"`
	Description string `json:"description"`
	AmountCents int64  `json:"amount_cents"`
	Category    string `json:"category"`
	Billed      bool   `json:"billed"`
	Cycle       string `json:"cycle"`
	SeriesID    string `json:"series_id,omitempty"`
	Installment string `json:"installment,omitempty"`
}

func toCardResponse(c core.CreditCard) cardResponse {
	return cardResponse{
		ID:         c.ID,
		Name:       c.Name,
		LimitCents: c.Limit.Cents,
		ClosingDay: c.ClosingDay,
		DueDay:     c.DueDay,
	}
}

func toCardExpenseResponse(e core.CardExpense) cardExpenseResponse {
	return cardExpenseResponse{
		ID:          e.ID,
		CardID:      e.CardID,
		Date:        e.Date.String(),
		Description: e.Description,
		AmountCents: e.Amount.Cents,
		Category:    e.Category,
		Billed:      e.Billed,
		Cycle:       e.Cycle.String(),
		SeriesID:    e.SeriesID,
		Installment: e.Installment,
	}
}

func toCardExpenseResponses(es []core.CardExpense) []cardExpenseResponse {
	out := make([]cardExpenseResponse, 0, len(es))
	for _, e := range es {
		out = append(out, toCardExpenseResponse(e))
	}
	return out
}

func parseCardRequest(payload cardPayload) (cards.CardRequest, error) {
	limit := core.Money{}
	if payload.Limit != "" {
		parsed, err := parseAmount(payload.Limit)
		if err != nil {
			return cards.CardRequest{}, err
		}
		limit = parsed
	}
	return cards.CardRequest{
		Name:       payload.Name,
		Limit:      limit,
		ClosingDay: payload.ClosingDay,
		DueDay:     payload.DueDay,
	}, nil
}

// cycleParam reads the cycle= query parameter. An absent parameter
// yields the zero cycle, which readers treat as "every cycle".
func cycleParam(r *http.Request) (core.Cycle, error) {
	raw := r.URL.Query().Get("cycle")
	if raw == "" {
		return core.Cycle{}, nil
	}
	return core.ParseCycle(raw)
}

func (s *Server) handleCreateCard(w http.ResponseWriter, r *http.Request) {
	var payload cardPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req, err := parseCardRequest(payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	card, err := s.cards.CreateCard(r.Context(), ownerID(r), req)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCardResponse(card))
}

func (s *Server) handleListCards(w http.ResponseWriter, r *http.Request) {
	list, err := s.cards.Cards(r.Context(), ownerID(r))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	out := make([]cardResponse, 0, len(list))
	for _, c := range list {
		out = append(out, toCardResponse(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetCard(w http.ResponseWriter, r *http.Request) {
	card, err := s.cards.Card(r.Context(), ownerID(r), r.PathValue("id"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCardResponse(card))
}

func (s *Server) handleUpdateCard(w http.ResponseWriter, r *http.Request) {
	var payload cardPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req, err := parseCardRequest(payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	card, err := s.cards.UpdateCard(r.Context(), ownerID(r), r.PathValue("id"), req)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCardResponse(card))
}

func (s *Server) handleAddCardExpense(w http.ResponseWriter, r *http.Request) {
	var payload cardExpensePayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	date, err := core.ParseDate(payload.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := parseAmount(payload.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := s.cards.AddExpense(r.Context(), ownerID(r), r.PathValue("id"), cards.ExpenseRequest{
		Date:        date,
		Description: payload.Description,
		Amount:      amount,
		Category:    payload.Category,
		Recurring:   payload.Recurring,
		Occurrences: payload.Occurrences,
	})
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCardExpenseResponses(records))
}

func (s *Server) handleListCardExpenses(w http.ResponseWriter, r *http.Request) {
	cycle, err := cycleParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := s.cards.ExpensesByCycle(r.Context(), ownerID(r), r.PathValue("id"), cycle)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCardExpenseResponses(records))
}

func (s *Server) handleOpenBalance(w http.ResponseWriter, r *http.Request) {
	cycle, err := cycleParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	total, err := s.cards.OpenBalance(r.Context(), ownerID(r), r.PathValue("id"), cycle)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"cycle":       cycle.String(),
		"total_cents": total.Cents,
	})
}

func (s *Server) handleCloseBill(w http.ResponseWriter, r *http.Request) {
	cycle, err := cycleParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	owner := ownerID(r)
	bill, err := s.cards.CloseBill(r.Context(), owner, r.PathValue("id"), cycle)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	s.invalidateOwner(owner)
	writeJSON(w, http.StatusCreated, toTransactionResponse(bill))
}

func (s *Server) handleUpdateCardExpense(w http.ResponseWriter, r *http.Request) {
	var payload seriesPatchPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	patch, err := parseSeriesPatch(payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	record, err := s.series.UpdateSingleCardExpense(r.Context(), ownerID(r), r.PathValue("id"), patch)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCardExpenseResponse(record))
}

func (s *Server) handleDeleteCardExpense(w http.ResponseWriter, r *http.Request) {
	if err := s.series.DeleteSingleCardExpense(r.Context(), ownerID(r), r.PathValue("id")); err != nil {
		writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdateCardSeries(w http.ResponseWriter, r *http.Request) {
	var payload seriesPatchPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	patch, err := parseSeriesPatch(payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	from, err := seriesPivot(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "from: "+err.Error())
		return
	}

	updated, err := s.series.UpdateFutureCardExpenses(r.Context(), ownerID(r), r.PathValue("id"), from, patch)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": updated})
}

func (s *Server) handleDeleteCardSeries(w http.ResponseWriter, r *http.Request) {
	from, err := seriesPivot(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "from: "+err.Error())
		return
	}

	deleted, err := s.series.DeleteFutureCardExpenses(r.Context(), ownerID(r), r.PathValue("id"), from)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}
