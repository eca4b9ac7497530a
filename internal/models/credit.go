package models

import (
	"time"
)

// CreditStatus is the closed credit lifecycle enumeration.
type CreditStatus string

const (
	CreditActive CreditStatus = "active"
	CreditRepaid CreditStatus = "repaid"
	CreditLate   CreditStatus = "late"
)

// InterestRate applied on grant: totalDue = principal x 1.2. The same rate
// doubles as the flat penalty applied to the remaining balance of an unpaid
// credit at each session opening.
const (
	InterestRateNum int64 = 12
	InterestRateDen int64 = 10
)

// Credit is an interest-bearing loan from the fund. Remaining only decreases
// through repayments and only increases through penalty reconductions.
// LastPenaltySessionID records the session whose opening sweep last penalized
// this credit, making the sweep idempotent per (credit, session).
type Credit struct {
	ID                   string       `json:"id" db:"id"`
	MemberID             string       `json:"member_id" db:"member_id"`
	Principal            int64        `json:"principal" db:"principal"`
	TotalDue             int64        `json:"total_due" db:"total_due"`
	Remaining            int64        `json:"remaining" db:"remaining"`
	PenaltyDue           int64        `json:"penalty_due" db:"penalty_due"`
	GrantedAt            time.Time    `json:"granted_at" db:"granted_at"`
	DueDate              time.Time    `json:"due_date" db:"due_date"`
	Status               CreditStatus `json:"status" db:"status"`
	LastPenaltySessionID *string      `json:"last_penalty_session_id,omitempty" db:"last_penalty_session_id"`
}

// RepaymentType classifies which part of the debt a payment reduces.
type RepaymentType string

const (
	RepaymentPrincipal RepaymentType = "principal"
	RepaymentPenalty   RepaymentType = "penalty"
)

// Repayment is one payment against a credit.
type Repayment struct {
	ID       string        `json:"id" db:"id"`
	CreditID string        `json:"credit_id" db:"credit_id"`
	Amount   int64         `json:"amount" db:"amount"`
	Type     RepaymentType `json:"type" db:"type"`
	Date     time.Time     `json:"date" db:"date"`
}

// DefaultDueDate returns the next August 31 strictly after the grant date.
func DefaultDueDate(granted time.Time) time.Time {
	due := time.Date(granted.Year(), time.August, 31, 0, 0, 0, 0, granted.Location())
	if !due.After(granted) {
		due = due.AddDate(1, 0, 0)
	}
	return due
}
