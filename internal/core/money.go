// Package core holds the tuition-tracking domain: monetary amounts, semesters
// with their installment schedules, and the pure logic that diffs a client
// snapshot against persisted state.
//
// This file contains the canonical money representation. Amounts cross the
// API boundary as decimal floats and are normalized to cents before any
// calculation or persisted write.
package core

import "math"

// machineEpsilon is the gap between 1.0 and the next representable float64.
// Nudging by it before rounding keeps values that sit just under a half cent
// after repeated division (e.g. 1.005 stored as 1.00499999...) from rounding
// down.
var machineEpsilon = math.Nextafter(1, 2) - 1

// Money is a monetary amount in cents. Use cents for calculations to avoid
// floating-point precision issues; Float is for the API boundary only.
type Money struct {
	Cents int64
}

// MoneyFromFloat normalizes a floating monetary value to canonical cents.
//
// Idempotent under re-rounding: MoneyFromFloat(m.Float()) == m for every
// Money m within the representable range.
func MoneyFromFloat(x float64) Money {
	return Money{Cents: int64(math.Round((x + machineEpsilon) * 100))}
}

// Float returns the decimal value for the API boundary and display.
func (m Money) Float() float64 {
	return float64(m.Cents) / 100.0
}

// SplitEvenly returns the per-slot amount when total is divided across n
// slots, normalized to cents. Every slot receives the same amount; the
// division is not remainder-distributed.
func SplitEvenly(total Money, n int) Money {
	if n <= 0 {
		return Money{}
	}
	return MoneyFromFloat(total.Float() / float64(n))
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// IsNegative reports whether the amount is below zero. Tuition totals and
// installment amounts may be zero but never negative.
func (m Money) IsNegative() bool {
	return m.Cents < 0
}
