package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"carteira/internal/core"
	"carteira/internal/series"
)

type transactionPayload struct {
	Type        string `json:"type"`
	Date        string `json:"date"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
	Category    string `json:"category"`
	Paid        bool   `json:"paid"`
	Recurring   bool   `json:"recurring"`
	Occurrences int    `json:"occurrences"`
}

type transactionPatchPayload struct {
	Type        *string `json:"type"`
	Date        *string `json:"date"`
	Description *string `json:"description"`
	Amount      *string `json:"amount"`
	Category    *string `json:"category"`
	Paid        *bool   `json:"paid"`
}

type seriesPatchPayload struct {
	Amount      *string `json:"amount"`
	Description *string `json:"description"`
	Category    *string `json:"category"`
}

type transactionResponse struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Date        string `json:"date"`
	Description string `json:"description"`
	AmountCents int64  `json:"amount_cents"`
	Category    string `json:"category"`
	Paid        bool   `json:"paid"`
	SeriesID    string `json:"series_id,omitempty"`
	Installment string `json:"installment,omitempty"`
}

func toTransactionResponse(t core.Transaction) transactionResponse {
	return transactionResponse{
		ID:          t.ID,
		Type:        string(t.Type),
		Date:        t.Date.String(),
		Description: t.Description,
		AmountCents: t.Amount.Cents,
		Category:    t.Category,
		Paid:        t.Paid,
		SeriesID:    t.SeriesID,
		Installment: t.Installment,
	}
}

func toTransactionResponses(ts []core.Transaction) []transactionResponse {
	out := make([]transactionResponse, 0, len(ts))
	for _, t := range ts {
		out = append(out, toTransactionResponse(t))
	}
	return out
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func parseAmount(s string) (core.Money, error) {
	cents, err := core.ParseDecimalToCents(s)
	if err != nil {
		return core.Money{}, err
	}
	return core.Money{Cents: cents}, nil
}

func (s *Server) invalidateOwner(owner string) {
	s.overviewCache.DeletePrefix(owner + "|")
	s.categoryCache.Delete(owner)
}

func (s *Server) handleCreateTransactions(w http.ResponseWriter, r *http.Request) {
	var payload transactionPayload
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

	owner := ownerID(r)
	records, err := s.series.CreateTransactions(r.Context(), owner, series.TransactionRequest{
		Type:        core.TransactionType(payload.Type),
		Date:        date,
		Description: payload.Description,
		Amount:      amount,
		Category:    payload.Category,
		Paid:        payload.Paid,
		Recurring:   payload.Recurring,
		Occurrences: payload.Occurrences,
	})
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	s.invalidateOwner(owner)
	writeJSON(w, http.StatusCreated, toTransactionResponses(records))
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)
	if owner == "" {
		writeEngineError(w, r, core.ErrNoOwner)
		return
	}

	from, err := core.ParseDate(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "from: "+err.Error())
		return
	}
	to, err := core.ParseDate(r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "to: "+err.Error())
		return
	}

	records, err := s.store.TransactionsByRange(r.Context(), owner, from, to)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionResponses(records))
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var payload transactionPatchPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	patch := series.SinglePatch{
		Description: payload.Description,
		Category:    payload.Category,
		Paid:        payload.Paid,
	}
	if payload.Type != nil {
		typ := core.TransactionType(*payload.Type)
		patch.Type = &typ
	}
	if payload.Date != nil {
		date, err := core.ParseDate(*payload.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		patch.Date = &date
	}
	if payload.Amount != nil {
		amount, err := parseAmount(*payload.Amount)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		patch.Amount = &amount
	}

	owner := ownerID(r)
	record, err := s.series.UpdateSingle(r.Context(), owner, r.PathValue("id"), patch)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	s.invalidateOwner(owner)
	writeJSON(w, http.StatusOK, toTransactionResponse(record))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)
	if err := s.series.DeleteSingle(r.Context(), owner, r.PathValue("id")); err != nil {
		writeEngineError(w, r, err)
		return
	}
	s.invalidateOwner(owner)
	w.WriteHeader(http.StatusNoContent)
}

// parseSeriesPatch converts a wire patch into an engine patch. Amount
// strings are parsed to cents here so engines only see typed values.
func parseSeriesPatch(payload seriesPatchPayload) (series.Patch, error) {
	patch := series.Patch{
		Description: payload.Description,
		Category:    payload.Category,
	}
	if payload.Amount != nil {
		amount, err := parseAmount(*payload.Amount)
		if err != nil {
			return series.Patch{}, err
		}
		patch.Amount = &amount
	}
	return patch, nil
}

// seriesPivot reads the from= query parameter for future-scoped series
// operations.
func seriesPivot(r *http.Request) (core.Date, error) {
	return core.ParseDate(r.URL.Query().Get("from"))
}

func (s *Server) handleUpdateSeries(w http.ResponseWriter, r *http.Request) {
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

	owner := ownerID(r)
	updated, err := s.series.UpdateFuture(r.Context(), owner, r.PathValue("id"), from, patch)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	s.invalidateOwner(owner)
	writeJSON(w, http.StatusOK, map[string]int{"updated": updated})
}

func (s *Server) handleDeleteSeries(w http.ResponseWriter, r *http.Request) {
	from, err := seriesPivot(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "from: "+err.Error())
		return
	}

	owner := ownerID(r)
	deleted, err := s.series.DeleteFuture(r.Context(), owner, r.PathValue("id"), from)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	s.invalidateOwner(owner)
	writeJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}
