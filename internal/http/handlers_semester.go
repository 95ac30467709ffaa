package http

import (
	"fmt"
	"net/http"

	"rette/internal/core"
)

// Wire representation of a semester snapshot. Amounts travel as decimal
// euros and are re-rounded on the way in.
type installmentPayload struct {
	ID        int64   `json:"id,omitempty"`
	Amount    float64 `json:"amount"`
	Status    string  `json:"status"`
	ExpenseID int64   `json:"expense_id,omitempty"`
	PaidDate  string  `json:"paid_date,omitempty"`
}

type semesterPayload struct {
	TermID       string               `json:"term_id"`
	Name         string               `json:"name"`
	TotalTuition float64              `json:"total_tuition"`
	Installments []installmentPayload `json:"installments"`
}

type snapshotResponse struct {
	Semesters []semesterPayload `json:"semesters"`
}

func (p semesterPayload) toCore() (core.Semester, error) {
	sem := core.Semester{
		TermID:       sanitizeInput(p.TermID),
		Name:         sanitizeInput(p.Name),
		TotalTuition: core.MoneyFromFloat(p.TotalTuition),
		Installments: make([]core.Installment, 0, len(p.Installments)),
	}
	for i, ip := range p.Installments {
		status := core.PaymentStatus(ip.Status)
		if ip.Status == "" {
			status = core.StatusUnpaid
		}
		inst := core.Installment{
			ID:        ip.ID,
			Amount:    core.MoneyFromFloat(ip.Amount),
			Status:    status,
			ExpenseID: ip.ExpenseID,
		}
		if ip.PaidDate != "" {
			date, err := core.ParseDate(ip.PaidDate)
			if err != nil {
				return core.Semester{}, fmt.Errorf("installment %d: %w", i+1, core.ErrInvalidDate)
			}
			inst.PaidDate = date
		}
		sem.Installments = append(sem.Installments, inst)
	}
	return sem, nil
}

func semesterToPayload(s core.Semester) semesterPayload {
	p := semesterPayload{
		TermID:       s.TermID,
		Name:         s.Name,
		TotalTuition: s.TotalTuition.Float(),
		Installments: make([]installmentPayload, 0, len(s.Installments)),
	}
	for _, inst := range s.Installments {
		ip := installmentPayload{
			ID:        inst.ID,
			Amount:    inst.Amount.Float(),
			Status:    string(inst.Status),
			ExpenseID: inst.ExpenseID,
		}
		if !inst.PaidDate.IsEmpty() {
			ip.PaidDate = inst.PaidDate.ISO()
		}
		p.Installments = append(p.Installments, ip)
	}
	return p
}

func snapshotToResponse(semesters []core.Semester) snapshotResponse {
	resp := snapshotResponse{Semesters: make([]semesterPayload, 0, len(semesters))}
	for _, s := range semesters {
		resp.Semesters = append(resp.Semesters, semesterToPayload(s))
	}
	return resp
}

func (s *Server) handleListSemesters(w http.ResponseWriter, r *http.Request) {
	userID := requestUser(r)

	snapshot, err := s.cachedSnapshot(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshotToResponse(snapshot))
}

// handleSyncSemesters replaces the user's state with the posted snapshot.
func (s *Server) handleSyncSemesters(w http.ResponseWriter, r *http.Request) {
	userID := requestUser(r)

	var payloads []semesterPayload
	if err := decodeBody(w, r, &payloads); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	incoming := make([]core.Semester, 0, len(payloads))
	for _, p := range payloads {
		sem, err := p.toCore()
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		incoming = append(incoming, sem)
	}

	snapshot, err := s.semesters.Sync(r.Context(), userID, incoming)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	s.storeSnapshot(userID, snapshot)
	writeJSON(w, http.StatusOK, snapshotToResponse(snapshot))
}

type payRequest struct {
	Date string `json:"date,omitempty"`
}

// handlePayInstallment flips one installment to paid, recording the
// backing expense first.
func (s *Server) handlePayInstallment(w http.ResponseWriter, r *http.Request) {
	userID := requestUser(r)
	termID := r.PathValue("term")
	installmentID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req payRequest
	if r.ContentLength > 0 {
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "malformed request body")
			return
		}
	}

	var paidDate core.Date
	if req.Date != "" {
		paidDate, err = core.ParseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, core.ErrInvalidDate.Error())
			return
		}
	}

	snapshot, err := s.semesters.MarkInstallmentPaid(r.Context(), userID, termID, installmentID, paidDate)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	s.storeSnapshot(userID, snapshot)
	writeJSON(w, http.StatusOK, snapshotToResponse(snapshot))
}

type paidDateRequest struct {
	Date string `json:"date"`
}

func (s *Server) handleUpdatePaidDate(w http.ResponseWriter, r *http.Request) {
	userID := requestUser(r)
	termID := r.PathValue("term")
	installmentID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req paidDateRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	date, err := core.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, core.ErrInvalidDate.Error())
		return
	}

	snapshot, err := s.semesters.UpdatePaidDate(r.Context(), userID, termID, installmentID, date)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	s.storeSnapshot(userID, snapshot)
	writeJSON(w, http.StatusOK, snapshotToResponse(snapshot))
}

type installmentCountRequest struct {
	Count int `json:"count"`
}

func (s *Server) handleChangeInstallmentCount(w http.ResponseWriter, r *http.Request) {
	userID := requestUser(r)
	termID := r.PathValue("term")

	var req installmentCountRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	snapshot, err := s.semesters.ChangeInstallmentCount(r.Context(), userID, termID, req.Count)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	s.storeSnapshot(userID, snapshot)
	writeJSON(w, http.StatusOK, snapshotToResponse(snapshot))
}
