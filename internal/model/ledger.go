package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Book names one of the two per-member running-balance ledgers. The value is
// also the table name.
type Book string

const (
	BookShares  Book = "shares"
	BookSavings Book = "savings"
)

func (b Book) Valid() bool {
	return b == BookShares || b == BookSavings
}

type Direction string

const (
	Deposit    Direction = "deposit"
	Withdrawal Direction = "withdrawal"
)

func (d Direction) Valid() bool {
	return d == Deposit || d == Withdrawal
}

// Signed returns amount as a positive delta for deposits and a negative delta
// for withdrawals.
func (d Direction) Signed(amount decimal.Decimal) decimal.Decimal {
	if d == Withdrawal {
		return amount.Neg()
	}
	return amount
}

// LedgerEntry is one immutable shares or savings posting. Balance is the
// running balance right after this posting.
type LedgerEntry struct {
	ID              int64           `json:"id"`
	MemberID        int64           `json:"member_id"`
	Book            Book            `json:"book"`
	TransactionDate string          `json:"transaction_date"`
	Type            Direction       `json:"type"`
	Description     string          `json:"description"`
	Amount          decimal.Decimal `json:"amount"`
	Balance         decimal.Decimal `json:"balance"`
	ORNumber        string          `json:"or_number"`
	EncodedBy       string          `json:"encoded_by"`
	CreatedAt       time.Time       `json:"created_at"`
	MemberUserID    string          `json:"user_id,omitempty"`
	MemberName      string          `json:"full_name,omitempty"`
}
