package core

import "fmt"

type (
	// SyncPlan is the ephemeral diff between a client-submitted snapshot and
	// the persisted semester list. Semesters absent from the snapshot are
	// deleted in full, unknown term ids are created, the rest are updated
	// in place.
	SyncPlan struct {
		DeleteTerms []string
		Create      []Semester
		Update      []SemesterUpdate
	}

	// SemesterUpdate describes the per-installment work for one surviving
	// semester. Installments listed in Keep are updated by id, preserving
	// their identity and therefore any expense back-references held
	// elsewhere; everything else in Incoming is inserted fresh.
	SemesterUpdate struct {
		Incoming           Semester
		DeleteInstallments []int64
		Keep               map[int64]bool
	}
)

// CountBelowPaidError rejects an installment-count change (or a snapshot)
// that would destroy an already-paid installment. MinCount is the smallest
// count the semester currently allows.
type CountBelowPaidError struct {
	TermID   string
	MinCount int
}

func (e *CountBelowPaidError) Error() string {
	return fmt.Sprintf("semester %s: installment count below paid floor, minimum is %d", e.TermID, e.MinCount)
}

// BuildSyncPlan partitions the incoming snapshot against existing state.
// It is a pure function of its inputs; applying the plan is the storage
// layer's job.
func BuildSyncPlan(existing, incoming []Semester) SyncPlan {
	incomingByTerm := make(map[string]Semester, len(incoming))
	for _, s := range incoming {
		incomingByTerm[s.TermID] = s
	}
	existingByTerm := make(map[string]Semester, len(existing))
	for _, s := range existing {
		existingByTerm[s.TermID] = s
	}

	var plan SyncPlan
	for _, s := range existing {
		if _, ok := incomingByTerm[s.TermID]; !ok {
			plan.DeleteTerms = append(plan.DeleteTerms, s.TermID)
		}
	}
	for _, s := range incoming {
		prev, ok := existingByTerm[s.TermID]
		if !ok {
			plan.Create = append(plan.Create, s)
			continue
		}
		plan.Update = append(plan.Update, diffInstallments(prev, s))
	}
	return plan
}

func diffInstallments(existing, incoming Semester) SemesterUpdate {
	incomingIDs := make(map[int64]bool, len(incoming.Installments))
	for _, inst := range incoming.Installments {
		if inst.ID != 0 {
			incomingIDs[inst.ID] = true
		}
	}

	upd := SemesterUpdate{
		Incoming: incoming,
		Keep:     make(map[int64]bool, len(existing.Installments)),
	}
	for _, inst := range existing.Installments {
		if incomingIDs[inst.ID] {
			upd.Keep[inst.ID] = true
		} else {
			upd.DeleteInstallments = append(upd.DeleteInstallments, inst.ID)
		}
	}
	return upd
}

// ValidateSync enforces the paid floor inside the engine: a snapshot whose
// diff would delete a persisted paid installment is rejected before any
// write. Deleting a whole semester is allowed; only shrinking a surviving
// semester's schedule past a paid installment is not.
func ValidateSync(existing, incoming []Semester) error {
	incomingByTerm := make(map[string]Semester, len(incoming))
	for _, s := range incoming {
		incomingByTerm[s.TermID] = s
	}

	for _, prev := range existing {
		next, ok := incomingByTerm[prev.TermID]
		if !ok {
			continue
		}
		kept := make(map[int64]bool, len(next.Installments))
		for _, inst := range next.Installments {
			if inst.ID != 0 {
				kept[inst.ID] = true
			}
		}
		for _, inst := range prev.Installments {
			if inst.Paid() && !kept[inst.ID] {
				return &CountBelowPaidError{
					TermID:   prev.TermID,
					MinCount: MinInstallmentCount(prev),
				}
			}
		}
	}
	return nil
}

// IsNoop reports whether applying the plan would touch nothing beyond
// in-place updates. Used only for logging; updates are always applied
// unconditionally.
func (p SyncPlan) IsNoop() bool {
	if len(p.DeleteTerms) > 0 || len(p.Create) > 0 {
		return false
	}
	for _, u := range p.Update {
		if len(u.DeleteInstallments) > 0 {
			return false
		}
		for _, inst := range u.Incoming.Installments {
			if inst.ID == 0 || !u.Keep[inst.ID] {
				return false
			}
		}
	}
	return true
}
