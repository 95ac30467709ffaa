package core

import (
	"errors"
	"strings"
	"time"
)

const (
	StatusUnpaid PaymentStatus = "unpaid"
	StatusPaid   PaymentStatus = "paid"
)

// Tuition expenses always land in the same category pair.
const (
	TuitionPrimaryCategory   = "Istruzione"
	TuitionSecondaryCategory = "Retta"
)

const dateLayout = "2006-01-02"

type (
	PaymentStatus string

	Date struct {
		time.Time
	}

	// Installment is one scheduled partial payment of a semester's tuition.
	// Its ID is stable once created: reconciliation updates matching ids in
	// place so that expense back-references survive subsequent syncs.
	Installment struct {
		ID        int64
		Amount    Money
		Status    PaymentStatus
		ExpenseID int64 // linked expense record, 0 when unpaid
		PaidDate  Date  // mirrors the linked expense's date, zero when unpaid
	}

	// Semester is a billing term owning an ordered installment schedule.
	// Order is the payment sequence: installment 1 is due first.
	Semester struct {
		TermID       string
		Name         string
		TotalTuition Money
		Installments []Installment
	}

	Expense struct {
		ID          int64
		Date        Date
		Description string
		Amount      Money
		Primary     string // Primary category
		Secondary   string // Secondary category
		Recurring   bool
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidStatus    = errors.New("invalid payment status")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyPrimary     = errors.New("empty primary category")
	ErrEmptySecondary   = errors.New("empty secondary category")
	ErrEmptyTermID      = errors.New("empty term id")
	ErrEmptyName        = errors.New("empty semester name")
	ErrPaidUnlinked     = errors.New("paid installment has no linked expense")
	ErrUnpaidLinked     = errors.New("unpaid installment references an expense")
)

// NewDate creates a new Date from year, month, day.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// Today returns the current date truncated to day precision.
func Today() Date {
	now := time.Now()
	return NewDate(now.Year(), int(now.Month()), now.Day())
}

// ParseDate parses an ISO yyyy-mm-dd date. The empty string parses to the
// zero Date (meaning "not set").
func ParseDate(s string) (Date, error) {
	if strings.TrimSpace(s) == "" {
		return Date{}, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

// ISO renders the date as yyyy-mm-dd, or the empty string for the zero Date.
func (d Date) ISO() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

// IsEmpty returns true if the date is zero (optional dates).
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

func (s PaymentStatus) Validate() error {
	switch s {
	case StatusUnpaid, StatusPaid:
		return nil
	default:
		return ErrInvalidStatus
	}
}

// Paid reports whether the installment has been paid.
func (i Installment) Paid() bool {
	return i.Status == StatusPaid
}

// Validate checks the linkage invariant: a paid installment always carries
// its expense reference and payment date, an unpaid one never does.
func (i Installment) Validate() error {
	if err := i.Status.Validate(); err != nil {
		return err
	}
	if i.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	if i.Paid() {
		if i.ExpenseID == 0 || i.PaidDate.IsEmpty() {
			return ErrPaidUnlinked
		}
		return nil
	}
	if i.ExpenseID != 0 {
		return ErrUnpaidLinked
	}
	return nil
}

func (s Semester) Validate() error {
	if strings.TrimSpace(s.TermID) == "" {
		return ErrEmptyTermID
	}
	if strings.TrimSpace(s.Name) == "" {
		return ErrEmptyName
	}
	if len(s.Name) > 100 {
		return errors.New("semester name too long (max 100 characters)")
	}
	if s.TotalTuition.IsNegative() {
		return ErrInvalidAmount
	}
	for _, inst := range s.Installments {
		if err := inst.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// PaidTotal sums the amounts of all paid installments.
func (s Semester) PaidTotal() Money {
	var cents int64
	for _, inst := range s.Installments {
		if inst.Paid() {
			cents += inst.Amount.Cents
		}
	}
	return Money{Cents: cents}
}

// FindInstallment returns the installment with the given id and its
// 1-based sequence number, or nil when absent.
func (s Semester) FindInstallment(id int64) (*Installment, int) {
	for idx := range s.Installments {
		if s.Installments[idx].ID == id {
			return &s.Installments[idx], idx + 1
		}
	}
	return nil, 0
}

func (e Expense) Validate() error {
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(e.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(e.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(e.Primary) == "" {
		return ErrEmptyPrimary
	}
	if strings.TrimSpace(e.Secondary) == "" {
		return ErrEmptySecondary
	}
	return nil
}
