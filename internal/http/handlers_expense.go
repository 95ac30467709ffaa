package http

import (
	"net/http"

	"rette/internal/core"
)

type expensePayload struct {
	ID          int64   `json:"id,omitempty"`
	Date        string  `json:"date"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Primary     string  `json:"primary"`
	Secondary   string  `json:"secondary"`
	Recurring   bool    `json:"recurring,omitempty"`
}

type expenseListResponse struct {
	Expenses []expensePayload `json:"expenses"`
}

func expenseToPayload(e core.Expense) expensePayload {
	return expensePayload{
		ID:          e.ID,
		Date:        e.Date.ISO(),
		Description: e.Description,
		Amount:      e.Amount.Float(),
		Primary:     e.Primary,
		Secondary:   e.Secondary,
		Recurring:   e.Recurring,
	}
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	userID := requestUser(r)

	var payload expensePayload
	if err := decodeBody(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	date, err := core.ParseDate(payload.Date)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, core.ErrInvalidDate.Error())
		return
	}

	expense := core.Expense{
		Date:        date,
		Description: sanitizeInput(payload.Description),
		Amount:      core.MoneyFromFloat(payload.Amount),
		Primary:     sanitizeInput(payload.Primary),
		Secondary:   sanitizeInput(payload.Secondary),
		Recurring:   payload.Recurring,
	}

	created, err := s.expenses.CreateExpense(r.Context(), userID, expense)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, expenseToPayload(created))
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	userID := requestUser(r)

	expenses, err := s.expenses.ListExpenses(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp := expenseListResponse{Expenses: make([]expensePayload, 0, len(expenses))}
	for _, e := range expenses {
		resp.Expenses = append(resp.Expenses, expenseToPayload(e))
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleDeleteExpense removes an expense; any installments pointing at it
// are reset to unpaid, so the cached snapshot is dropped too.
func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	userID := requestUser(r)
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.expenses.DeleteExpense(r.Context(), userID, id); err != nil {
		writeServiceError(w, r, err)
		return
	}

	s.snapshotCache.Delete(userID)
	w.WriteHeader(http.StatusNoContent)
}
