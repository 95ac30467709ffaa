package core

// MinInstallmentCount returns the smallest installment count the semester
// can be resized to: one past the last paid installment's sequence number,
// so a count change never deletes a recorded payment and always leaves an
// unpaid slot after the last payment. A semester with no paid installments
// can shrink to a single installment.
func MinInstallmentCount(s Semester) int {
	min := 1
	for idx, inst := range s.Installments {
		if inst.Paid() {
			min = idx + 2
		}
	}
	return min
}

// ResizeInstallments produces the snapshot for an installment-count change.
// Paid installments keep their identity and amount untouched; the tuition
// not yet covered by payments is re-divided evenly across the unpaid slots.
// Surviving unpaid installments keep their ids, new slots are created
// id-less so reconciliation inserts them.
//
// Returns a CountBelowPaidError when the requested count would drop a paid
// installment.
func ResizeInstallments(s Semester, count int) (Semester, error) {
	min := MinInstallmentCount(s)
	if count < min {
		return Semester{}, &CountBelowPaidError{TermID: s.TermID, MinCount: min}
	}

	resized := s
	resized.Installments = make([]Installment, 0, count)
	for idx := 0; idx < count && idx < len(s.Installments); idx++ {
		resized.Installments = append(resized.Installments, s.Installments[idx])
	}
	for len(resized.Installments) < count {
		resized.Installments = append(resized.Installments, Installment{Status: StatusUnpaid})
	}

	unpaid := 0
	for _, inst := range resized.Installments {
		if !inst.Paid() {
			unpaid++
		}
	}
	if unpaid == 0 {
		return resized, nil
	}

	remaining := Money{Cents: s.TotalTuition.Cents - resized.PaidTotal().Cents}
	if remaining.IsNegative() {
		// Payments already exceed the tuition total; new slots start at zero
		// rather than a negative amount.
		remaining = Money{}
	}
	share := SplitEvenly(remaining, unpaid)
	for idx := range resized.Installments {
		if !resized.Installments[idx].Paid() {
			resized.Installments[idx].Amount = share
		}
	}
	return resized, nil
}

// Normalize passes every monetary field of the snapshot through the
// canonical rounding so that persisted amounts are idempotent under
// re-rounding regardless of what the client computed.
func Normalize(semesters []Semester) []Semester {
	out := make([]Semester, len(semesters))
	for i, s := range semesters {
		out[i] = s
		out[i].TotalTuition = MoneyFromFloat(s.TotalTuition.Float())
		out[i].Installments = make([]Installment, len(s.Installments))
		for j, inst := range s.Installments {
			out[i].Installments[j] = inst
			out[i].Installments[j].Amount = MoneyFromFloat(inst.Amount.Float())
		}
	}
	return out
}
