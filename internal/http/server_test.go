package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"carteira/internal/cards"
	"carteira/internal/categories"
	"carteira/internal/ledger"
	"carteira/internal/series"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store := ledger.NewMemoryStore()
	reg := categories.NewRegistry(store, nil)
	se := series.NewEngine(store, reg, nil)
	ce := cards.NewEngine(store, reg, nil)
	srv := NewServer(":0", store, se, ce, reg)
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
	})
	return srv
}

func doRequest(t *testing.T, srv *Server, method, path, owner string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if owner != "" {
		req.Header.Set(ownerHeader, owner)
	}
	rec := httptest.NewRecorder()
	srv.Server.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := doRequest(t, srv, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", path, rec.Code)
		}
	}
}

func TestCreateTransactionRequiresOwner(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/transactions", "", transactionPayload{
		Type: "expense", Date: "2024-03-10", Description: "Mercado",
		Amount: "120.50", Category: "Alimentação",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestCreateAndListTransactions(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/transactions", "ana", transactionPayload{
		Type: "expense", Date: "2024-03-10", Description: "Mercado",
		Amount: "120.50", Category: "Alimentação", Paid: true,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status = %d, body %s", rec.Code, rec.Body.String())
	}
	created := decodeBody[[]transactionResponse](t, rec)
	if len(created) != 1 {
		t.Fatalf("created %d records, want 1", len(created))
	}
	if created[0].AmountCents != 12050 {
		t.Errorf("amount_cents = %d, want 12050", created[0].AmountCents)
	}

	rec = doRequest(t, srv, http.MethodGet, "/transactions?from=2024-03-01&to=2024-03-31", "ana", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status = %d", rec.Code)
	}
	listed := decodeBody[[]transactionResponse](t, rec)
	if len(listed) != 1 || listed[0].ID != created[0].ID {
		t.Errorf("listed = %+v, want the created record", listed)
	}

	rec = doRequest(t, srv, http.MethodGet, "/transactions?from=2024-03-01&to=2024-03-31", "bruno", nil)
	if got := decodeBody[[]transactionResponse](t, rec); len(got) != 0 {
		t.Errorf("other owner sees %d records, want 0", len(got))
	}
}

func TestRecurringSeriesLifecycle(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/transactions", "ana", transactionPayload{
		Type: "expense", Date: "2024-01-15", Description: "Academia",
		Amount: "99.90", Category: "Saúde", Recurring: true, Occurrences: 6,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status = %d, body %s", rec.Code, rec.Body.String())
	}
	created := decodeBody[[]transactionResponse](t, rec)
	if len(created) != 6 {
		t.Fatalf("created %d records, want 6", len(created))
	}
	seriesID := created[0].SeriesID
	if seriesID == "" {
		t.Fatal("series id missing on recurring records")
	}

	rec = doRequest(t, srv, http.MethodPatch, "/series/"+seriesID+"?from=2024-04-01", "ana",
		seriesPatchPayload{Amount: strPtr("119.90")})
	if rec.Code != http.StatusOK {
		t.Fatalf("update series: status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := decodeBody[map[string]int](t, rec); got["updated"] != 3 {
		t.Errorf("updated = %d, want 3", got["updated"])
	}

	rec = doRequest(t, srv, http.MethodDelete, "/series/"+seriesID+"?from=2024-05-01", "ana", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete series: status = %d", rec.Code)
	}
	if got := decodeBody[map[string]int](t, rec); got["deleted"] != 2 {
		t.Errorf("deleted = %d, want 2", got["deleted"])
	}

	rec = doRequest(t, srv, http.MethodGet, "/transactions?from=2024-01-01&to=2024-12-31", "ana", nil)
	if got := decodeBody[[]transactionResponse](t, rec); len(got) != 4 {
		t.Errorf("remaining records = %d, want 4", len(got))
	}
}

func TestUpdateTransactionNotFound(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPatch, "/transactions/ghost", "ana",
		transactionPatchPayload{Description: strPtr("Novo")})
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestUnknownCategoryRejected(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/transactions", "ana", transactionPayload{
		Type: "expense", Date: "2024-03-10", Description: "Mercado",
		Amount: "10.00", Category: "Inexistente",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400, body %s", rec.Code, rec.Body.String())
	}
}

func TestCardBillingFlow(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/cards", "ana", cardPayload{
		Name: "Nubank", Limit: "5000.00", ClosingDay: 10, DueDay: 17,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create card: status = %d, body %s", rec.Code, rec.Body.String())
	}
	card := decodeBody[cardResponse](t, rec)

	rec = doRequest(t, srv, http.MethodPost, "/cards/"+card.ID+"/expenses", "ana", cardExpensePayload{
		Date: "2024-03-05", Description: "Mercado", Amount: "230.00", Category: "Alimentação",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add expense: status = %d, body %s", rec.Code, rec.Body.String())
	}
	expenses := decodeBody[[]cardExpenseResponse](t, rec)
	if len(expenses) != 1 || expenses[0].Cycle != "2024-03" {
		t.Fatalf("expenses = %+v, want one record in cycle 2024-03", expenses)
	}

	rec = doRequest(t, srv, http.MethodGet, "/cards/"+card.ID+"/open-balance?cycle=2024-03", "ana", nil)
	balance := decodeBody[map[string]any](t, rec)
	if balance["total_cents"].(float64) != 23000 {
		t.Errorf("open balance = %v, want 23000", balance["total_cents"])
	}

	rec = doRequest(t, srv, http.MethodPost, "/cards/"+card.ID+"/close-bill?cycle=2024-03", "ana", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("close bill: status = %d, body %s", rec.Code, rec.Body.String())
	}
	bill := decodeBody[transactionResponse](t, rec)
	if bill.AmountCents != 23000 || bill.Date != "2024-03-17" {
		t.Errorf("bill = %+v, want 23000 cents due 2024-03-17", bill)
	}

	// Closing again conflicts: nothing left open in the cycle.
	rec = doRequest(t, srv, http.MethodPost, "/cards/"+card.ID+"/close-bill?cycle=2024-03", "ana", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("second close: status = %d, want 409", rec.Code)
	}

	// Billed purchases are frozen.
	rec = doRequest(t, srv, http.MethodPatch, "/card-expenses/"+expenses[0].ID, "ana",
		seriesPatchPayload{Description: strPtr("Outro")})
	if rec.Code != http.StatusConflict {
		t.Errorf("edit billed expense: status = %d, want 409", rec.Code)
	}
}

func TestCardNotVisibleToOtherOwner(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/cards", "ana", cardPayload{
		Name: "Nubank", ClosingDay: 10, DueDay: 17,
	})
	card := decodeBody[cardResponse](t, rec)

	rec = doRequest(t, srv, http.MethodGet, "/cards/"+card.ID, "bruno", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestCategoriesEndpoints(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/categories", "ana", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status = %d", rec.Code)
	}
	set := decodeBody[categorySetResponse](t, rec)
	if len(set.Expense) == 0 || len(set.Income) == 0 {
		t.Fatalf("default set is empty: %+v", set)
	}

	rec = doRequest(t, srv, http.MethodPost, "/categories", "ana",
		categoryPayload{Type: "expense", Name: "Pets"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add: status = %d, body %s", rec.Code, rec.Body.String())
	}

	// Duplicate add conflicts.
	rec = doRequest(t, srv, http.MethodPost, "/categories", "ana",
		categoryPayload{Type: "expense", Name: "pets"})
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate add: status = %d, want 409", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodPost, "/categories/rename", "ana",
		renamePayload{Type: "expense", OldName: "Pets", NewName: "Animais"})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("rename: status = %d, body %s", rec.Code, rec.Body.String())
	}

	// Defaults cannot be renamed or removed.
	rec = doRequest(t, srv, http.MethodPost, "/categories/rename", "ana",
		renamePayload{Type: "expense", OldName: "Moradia", NewName: "Casa"})
	if rec.Code != http.StatusConflict {
		t.Errorf("rename default: status = %d, want 409", rec.Code)
	}
	rec = doRequest(t, srv, http.MethodPost, "/categories/remove", "ana",
		categoryPayload{Type: "expense", Name: "Moradia"})
	if rec.Code != http.StatusConflict {
		t.Errorf("remove default: status = %d, want 409", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodGet, "/categories", "ana", nil)
	set = decodeBody[categorySetResponse](t, rec)
	if !contains(set.Expense, "Animais") || contains(set.Expense, "Pets") {
		t.Errorf("expense set after rename = %v", set.Expense)
	}
}

func TestMonthOverview(t *testing.T) {
	srv := newTestServer(t)

	seed := []transactionPayload{
		{Type: "income", Date: "2024-05-01", Description: "Salário", Amount: "5000.00", Category: "Salário", Paid: true},
		{Type: "expense", Date: "2024-05-10", Description: "Mercado", Amount: "800.00", Category: "Alimentação", Paid: true},
		{Type: "expense", Date: "2024-05-20", Description: "Cinema", Amount: "60.00", Category: "Lazer"},
	}
	for _, p := range seed {
		if rec := doRequest(t, srv, http.MethodPost, "/transactions", "ana", p); rec.Code != http.StatusCreated {
			t.Fatalf("seed %s: status = %d, body %s", p.Description, rec.Code, rec.Body.String())
		}
	}

	rec := doRequest(t, srv, http.MethodGet, "/overview?year=2024&month=5", "ana", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("overview: status = %d", rec.Code)
	}
	o := decodeBody[overviewResponse](t, rec)
	if o.IncomeCents != 500000 || o.ExpensesCents != 86000 {
		t.Errorf("income/expenses = %d/%d, want 500000/86000", o.IncomeCents, o.ExpensesCents)
	}
	if o.SettledExpensesCents != 80000 {
		t.Errorf("settled expenses = %d, want 80000", o.SettledExpensesCents)
	}
	if o.BalanceCents != 414000 {
		t.Errorf("balance = %d, want 414000", o.BalanceCents)
	}

	// A later write invalidates the cached overview.
	rec = doRequest(t, srv, http.MethodPost, "/transactions", "ana", transactionPayload{
		Type: "expense", Date: "2024-05-25", Description: "Farmácia",
		Amount: "40.00", Category: "Saúde", Paid: true,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("extra write: status = %d", rec.Code)
	}
	rec = doRequest(t, srv, http.MethodGet, "/overview?year=2024&month=5", "ana", nil)
	o = decodeBody[overviewResponse](t, rec)
	if o.ExpensesCents != 90000 {
		t.Errorf("expenses after write = %d, want 90000", o.ExpensesCents)
	}
}

func TestOverviewValidation(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/overview", "/overview?year=2024", "/overview?year=2024&month=13"} {
		rec := doRequest(t, srv, http.MethodGet, path, "ana", nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", path, rec.Code)
		}
	}
}

func TestTTLCache(t *testing.T) {
	c := newTTLCache[int](2, time.Hour)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3)

	if _, ok := c.Get("a"); ok {
		t.Error("oldest entry should have been evicted")
	}
	if v, ok := c.Get("c"); !ok || v != 3 {
		t.Errorf("Get(c) = %d,%v, want 3,true", v, ok)
	}

	c.Put("ana|2024-05", 4)
	c.DeletePrefix("ana|")
	if _, ok := c.Get("ana|2024-05"); ok {
		t.Error("DeletePrefix left the entry behind")
	}
}

func TestRateLimiter(t *testing.T) {
	rl := newRateLimiter()
	defer rl.stop()

	for i := 0; i < 60; i++ {
		if !rl.allow("10.0.0.1") {
			t.Fatalf("request %d refused before the limit", i+1)
		}
	}
	if rl.allow("10.0.0.1") {
		t.Error("request 61 allowed past the limit")
	}
	if !rl.allow("10.0.0.2") {
		t.Error("independent client refused")
	}
}

func strPtr(s string) *string { return &s }

func contains(list []string, name string) bool {
	for _, n := range list {
		if n == name {
			return true
		}
	}
	return false
}
