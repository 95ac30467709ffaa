package core

import "testing"

func TestMoneyFromFloat(t *testing.T) {
	cases := []struct {
		in    float64
		cents int64
	}{
		{0, 0},
		{1, 100},
		{1.23, 123},
		{0.01, 1},
		{1.005, 101}, // would round down without the epsilon nudge
		{7500, 750000},
		{11250.00, 1125000},
		{0.1 + 0.2, 30}, // classic binary drift
	}
	for _, tc := range cases {
		got := MoneyFromFloat(tc.in)
		if got.Cents != tc.cents {
			t.Fatalf("MoneyFromFloat(%v) expected %d cents, got %d", tc.in, tc.cents, got.Cents)
		}
	}
}

func TestMoneyFromFloatIdempotent(t *testing.T) {
	values := []float64{0, 0.01, 1.005, 3.333333333, 7500.0 / 4, 30000.0 / 7, 12345.67, 0.1 + 0.2}
	for _, v := range values {
		once := MoneyFromFloat(v)
		twice := MoneyFromFloat(once.Float())
		if once != twice {
			t.Fatalf("rounding %v not idempotent: first %d cents, second %d cents", v, once.Cents, twice.Cents)
		}
	}
}

func TestSplitEvenly(t *testing.T) {
	cases := []struct {
		total Money
		n     int
		want  int64
	}{
		{Money{Cents: 3000000}, 4, 750000},
		{Money{Cents: 2250000}, 2, 1125000},
		{Money{Cents: 1000000}, 3, 333333},
		{Money{Cents: 100}, 0, 0},
		{Money{}, 5, 0},
	}
	for _, tc := range cases {
		got := SplitEvenly(tc.total, tc.n)
		if got.Cents != tc.want {
			t.Fatalf("SplitEvenly(%d, %d) expected %d, got %d", tc.total.Cents, tc.n, tc.want, got.Cents)
		}
	}
}

func TestMoneyValidate(t *testing.T) {
	if err := (Money{Cents: 100}).Validate(); err != nil {
		t.Fatalf("positive amount should validate: %v", err)
	}
	if err := (Money{}).Validate(); err == nil {
		t.Fatal("zero amount should fail validation")
	}
	if err := (Money{Cents: -5}).Validate(); err == nil {
		t.Fatal("negative amount should fail validation")
	}
}
