package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"rette/internal/services"
	"rette/internal/storage"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "rette.db"))
	if err != nil {
		t.Fatalf("open test repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	expenses := services.NewExpenseService(repo, nil)
	semesters := services.NewSemesterService(repo, expenses, nil, 0)
	srv := NewServer(":0", semesters, expenses, nil)
	t.Cleanup(func() {
		srv.rateLimiter.stop()
		close(srv.stopCacheCleanup)
	})
	return srv
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Server.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeSnapshot(t *testing.T, rec *httptest.ResponseRecorder) snapshotResponse {
	t.Helper()
	var resp snapshotResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode snapshot response: %v (body %s)", err, rec.Body.String())
	}
	return resp
}

func seedSnapshot(t *testing.T, srv *Server) snapshotResponse {
	t.Helper()
	rec := doJSON(t, srv, http.MethodPost, "/api/semesters", []semesterPayload{{
		TermID:       "2025-fall",
		Name:         "Fall 2025",
		TotalTuition: 3000,
		Installments: []installmentPayload{
			{Amount: 750}, {Amount: 750}, {Amount: 750}, {Amount: 750},
		},
	}})
	if rec.Code != http.StatusOK {
		t.Fatalf("seed sync returned %d: %s", rec.Code, rec.Body.String())
	}
	return decodeSnapshot(t, rec)
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := doJSON(t, srv, http.MethodGet, path, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s returned %d", path, rec.Code)
		}
	}
}

func TestSyncAndListRoundTrip(t *testing.T) {
	srv := newTestServer(t)
	synced := seedSnapshot(t, srv)

	if len(synced.Semesters) != 1 || len(synced.Semesters[0].Installments) != 4 {
		t.Fatalf("unexpected synced snapshot: %+v", synced)
	}
	for _, inst := range synced.Semesters[0].Installments {
		if inst.ID == 0 {
			t.Fatal("synced installments should carry assigned ids")
		}
		if inst.Amount != 750 {
			t.Fatalf("installment amount expected 750, got %v", inst.Amount)
		}
	}

	rec := doJSON(t, srv, http.MethodGet, "/api/semesters", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list returned %d: %s", rec.Code, rec.Body.String())
	}
	listed := decodeSnapshot(t, rec)
	if len(listed.Semesters) != 1 || listed.Semesters[0].TermID != "2025-fall" {
		t.Fatalf("unexpected listed snapshot: %+v", listed)
	}
}

func TestPayInstallmentCreatesExpense(t *testing.T) {
	srv := newTestServer(t)
	synced := seedSnapshot(t, srv)
	first := synced.Semesters[0].Installments[0]

	path := fmt.Sprintf("/api/semesters/2025-fall/installments/%d/pay", first.ID)
	rec := doJSON(t, srv, http.MethodPost, path, payRequest{Date: "2025-09-15"})
	if rec.Code != http.StatusOK {
		t.Fatalf("pay returned %d: %s", rec.Code, rec.Body.String())
	}

	after := decodeSnapshot(t, rec)
	paid := after.Semesters[0].Installments[0]
	if paid.Status != "paid" || paid.ExpenseID == 0 || paid.PaidDate != "2025-09-15" {
		t.Fatalf("unexpected paid installment: %+v", paid)
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/expenses", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list expenses returned %d", rec.Code)
	}
	var expenses expenseListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &expenses); err != nil {
		t.Fatalf("decode expenses: %v", err)
	}
	if len(expenses.Expenses) != 1 {
		t.Fatalf("expected one recorded expense, got %d", len(expenses.Expenses))
	}
	exp := expenses.Expenses[0]
	if exp.ID != paid.ExpenseID || exp.Amount != 750 || exp.Primary != "Istruzione" {
		t.Fatalf("unexpected expense: %+v", exp)
	}
}

func TestChangeCountBelowPaidFloorReturnsMinCount(t *testing.T) {
	srv := newTestServer(t)
	synced := seedSnapshot(t, srv)

	// Pay the first two installments; the floor becomes three.
	for _, inst := range synced.Semesters[0].Installments[:2] {
		path := fmt.Sprintf("/api/semesters/2025-fall/installments/%d/pay", inst.ID)
		if rec := doJSON(t, srv, http.MethodPost, path, nil); rec.Code != http.StatusOK {
			t.Fatalf("pay returned %d: %s", rec.Code, rec.Body.String())
		}
	}

	rec := doJSON(t, srv, http.MethodPost, "/api/semesters/2025-fall/installment-count", installmentCountRequest{Count: 2})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if resp.MinCount != 3 {
		t.Fatalf("expected min_count 3, got %d", resp.MinCount)
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/semesters/2025-fall/installment-count", installmentCountRequest{Count: 3})
	if rec.Code != http.StatusOK {
		t.Fatalf("count change to 3 returned %d: %s", rec.Code, rec.Body.String())
	}
	after := decodeSnapshot(t, rec)
	if len(after.Semesters[0].Installments) != 3 {
		t.Fatalf("expected 3 installments, got %d", len(after.Semesters[0].Installments))
	}
}

func TestUpdatePaidDateRequiresPaidInstallment(t *testing.T) {
	srv := newTestServer(t)
	synced := seedSnapshot(t, srv)
	first := synced.Semesters[0].Installments[0]

	path := fmt.Sprintf("/api/semesters/2025-fall/installments/%d/paid-date", first.ID)
	rec := doJSON(t, srv, http.MethodPut, path, paidDateRequest{Date: "2025-10-01"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for unpaid installment, got %d: %s", rec.Code, rec.Body.String())
	}

	payPath := fmt.Sprintf("/api/semesters/2025-fall/installments/%d/pay", first.ID)
	if rec := doJSON(t, srv, http.MethodPost, payPath, nil); rec.Code != http.StatusOK {
		t.Fatalf("pay returned %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodPut, path, paidDateRequest{Date: "2025-10-01"})
	if rec.Code != http.StatusOK {
		t.Fatalf("paid-date update returned %d: %s", rec.Code, rec.Body.String())
	}
	after := decodeSnapshot(t, rec)
	if after.Semesters[0].Installments[0].PaidDate != "2025-10-01" {
		t.Fatalf("paid date not updated: %+v", after.Semesters[0].Installments[0])
	}
}

func TestDeleteExpenseResetsInstallment(t *testing.T) {
	srv := newTestServer(t)
	synced := seedSnapshot(t, srv)
	first := synced.Semesters[0].Installments[0]

	payPath := fmt.Sprintf("/api/semesters/2025-fall/installments/%d/pay", first.ID)
	rec := doJSON(t, srv, http.MethodPost, payPath, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("pay returned %d: %s", rec.Code, rec.Body.String())
	}
	paid := decodeSnapshot(t, rec).Semesters[0].Installments[0]

	rec = doJSON(t, srv, http.MethodDelete, fmt.Sprintf("/api/expenses/%d", paid.ExpenseID), nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete expense returned %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/semesters", nil)
	after := decodeSnapshot(t, rec)
	inst := after.Semesters[0].Installments[0]
	if inst.Status != "unpaid" || inst.ExpenseID != 0 {
		t.Fatalf("installment should be reset after expense delete: %+v", inst)
	}
}

func TestUnknownTermReturnsNotFound(t *testing.T) {
	srv := newTestServer(t)
	seedSnapshot(t, srv)

	rec := doJSON(t, srv, http.MethodPost, "/api/semesters/2099-winter/installment-count", installmentCountRequest{Count: 2})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown term, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSyncRejectsInvalidPayload(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/semesters", []semesterPayload{{
		TermID:       "2025-fall",
		Name:         "Fall 2025",
		TotalTuition: -100,
		Installments: []installmentPayload{{Amount: 750}},
	}})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for negative tuition, got %d: %s", rec.Code, rec.Body.String())
	}

	req := httptest.NewRequest(http.MethodPost, "/api/semesters", bytes.NewReader([]byte("{not json")))
	recRaw := httptest.NewRecorder()
	srv.Server.Handler.ServeHTTP(recRaw, req)
	if recRaw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", recRaw.Code)
	}
}

func TestUsersAreIsolated(t *testing.T) {
	srv := newTestServer(t)
	seedSnapshot(t, srv)

	req := httptest.NewRequest(http.MethodGet, "/api/semesters", nil)
	req.Header.Set(headerUserID, "bob")
	rec := httptest.NewRecorder()
	srv.Server.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("list returned %d", rec.Code)
	}
	if resp := decodeSnapshot(t, rec); len(resp.Semesters) != 0 {
		t.Fatalf("bob should see no semesters, got %+v", resp.Semesters)
	}
}

func TestMutatingRequestsAreRateLimited(t *testing.T) {
	srv := newTestServer(t)

	var limited bool
	for i := 0; i < 70; i++ {
		rec := doJSON(t, srv, http.MethodPost, "/api/semesters", []semesterPayload{})
		if rec.Code == http.StatusTooManyRequests {
			limited = true
			if rec.Header().Get("Retry-After") != "60" {
				t.Fatalf("missing Retry-After header on 429")
			}
			break
		}
	}
	if !limited {
		t.Fatal("expected rate limiter to trip within 70 requests")
	}

	// Reads stay available.
	rec := doJSON(t, srv, http.MethodGet, "/api/semesters", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("read after rate limit returned %d", rec.Code)
	}
}
