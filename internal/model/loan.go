package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type LoanStatus string

const (
	LoanActive LoanStatus = "active"
	LoanPaid   LoanStatus = "paid"
)

// Loan keeps a mutable outstanding balance, unlike shares and savings which
// are recomputed from history.
type Loan struct {
	ID                 int64           `json:"id"`
	MemberID           int64           `json:"member_id"`
	LoanNo             string          `json:"loan_no"`
	LoanType           string          `json:"loan_type"`
	Amount             decimal.Decimal `json:"amount"`
	InterestRate       decimal.Decimal `json:"interest_rate"`
	TermMonths         int             `json:"term_months"`
	MonthlyPayment     decimal.Decimal `json:"monthly_payment"`
	DateReleased       string          `json:"date_released"`
	DueDate            string          `json:"due_date"`
	OutstandingBalance decimal.Decimal `json:"outstanding_balance"`
	Status             LoanStatus      `json:"status"`
	Purpose            string          `json:"purpose"`
	EncodedBy          string          `json:"encoded_by"`
	CreatedAt          time.Time       `json:"created_at"`
	MemberUserID       string          `json:"user_id,omitempty"`
	MemberName         string          `json:"full_name,omitempty"`
}

// LoanPayment records the balance left right after the payment was applied.
type LoanPayment struct {
	ID               int64           `json:"id"`
	LoanID           int64           `json:"loan_id"`
	MemberID         int64           `json:"member_id"`
	PaymentDate      string          `json:"payment_date"`
	AmountPaid       decimal.Decimal `json:"amount_paid"`
	Principal        decimal.Decimal `json:"principal"`
	Interest         decimal.Decimal `json:"interest"`
	RemainingBalance decimal.Decimal `json:"remaining_balance"`
	ORNumber         string          `json:"or_number"`
	EncodedBy        string          `json:"encoded_by"`
	CreatedAt        time.Time       `json:"created_at"`
}
