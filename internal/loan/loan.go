// Package loan issues loans and applies payments against them. Unlike shares
// and savings, a loan keeps a mutable outstanding balance that each payment
// reduces, and every payment stores the balance it left behind.
package loan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/climbs/internal/ident"
	"github.com/dukerupert/climbs/internal/metrics"
	"github.com/dukerupert/climbs/internal/model"
	"github.com/dukerupert/climbs/internal/store"
)

var (
	ErrNotFound       = errors.New("loan not found")
	ErrMemberNotFound = errors.New("member not found")
)

const dateLayout = "2006-01-02"

var hundred = decimal.NewFromInt(100)

// MonthlyPayment spreads principal plus flat interest evenly over the term,
// truncated to centavos.
func MonthlyPayment(principal, ratePercent decimal.Decimal, termMonths int) decimal.Decimal {
	total := principal.Mul(decimal.NewFromInt(1).Add(ratePercent.Div(hundred)))
	return total.Div(decimal.NewFromInt(int64(termMonths))).Truncate(2)
}

// DueDate is the release date plus termMonths calendar months. Days past the
// end of the target month roll into the next one, as time.AddDate does.
func DueDate(released time.Time, termMonths int) time.Time {
	return released.AddDate(0, termMonths, 0)
}

// Remaining applies a payment to an outstanding balance. The principal
// portion is what reduces the balance; when it is absent or zero the whole
// amount paid is applied. The result never goes below zero and reports
// whether the loan is now paid off.
func Remaining(outstanding, amountPaid decimal.Decimal, principal *decimal.Decimal) (decimal.Decimal, model.LoanStatus) {
	applied := amountPaid
	if principal != nil && !principal.IsZero() {
		applied = *principal
	}
	remaining := outstanding.Sub(applied)
	if !remaining.IsPositive() {
		return decimal.Zero, model.LoanPaid
	}
	return remaining, model.LoanActive
}

// Application is a request to issue a loan.
type Application struct {
	MemberID    int64
	LoanType    string
	Principal   decimal.Decimal
	RatePercent decimal.Decimal
	TermMonths  int
	ReleaseDate string // YYYY-MM-DD; today when empty
	Purpose     string
	RecordedBy  string
}

// Payment is a request to apply a payment to a loan.
type Payment struct {
	LoanID     int64
	AmountPaid decimal.Decimal
	Principal  *decimal.Decimal
	Interest   decimal.Decimal
	Date       string // YYYY-MM-DD; today when empty
	ORNumber   string
	RecordedBy string
}

type Engine struct {
	store  *store.LoanStore
	logger *slog.Logger
	now    func() time.Time
	newNo  func() string
}

func NewEngine(ls *store.LoanStore, logger *slog.Logger) *Engine {
	return &Engine{store: ls, logger: logger, now: time.Now, newNo: ident.LoanNo}
}

// Issue creates an active loan whose outstanding balance starts at the
// principal.
func (e *Engine) Issue(ctx context.Context, a Application) (*model.Loan, error) {
	if a.MemberID <= 0 {
		return nil, model.Invalid("Member is required.")
	}
	if !a.Principal.IsPositive() {
		return nil, model.Invalid("Amount must be greater than zero.")
	}
	if a.RatePercent.IsNegative() {
		return nil, model.Invalid("Interest rate cannot be negative.")
	}
	if a.TermMonths <= 0 {
		return nil, model.Invalid("Term must be at least one month.")
	}
	released := e.now()
	if a.ReleaseDate != "" {
		t, err := time.Parse(dateLayout, a.ReleaseDate)
		if err != nil {
			return nil, model.Invalid("Invalid release date.")
		}
		released = t
	}
	if a.LoanType == "" {
		a.LoanType = "regular"
	}
	if a.RecordedBy == "" {
		a.RecordedBy = "admin"
	}

	l, err := e.store.Create(ctx, &model.Loan{
		MemberID:           a.MemberID,
		LoanNo:             e.newNo(),
		LoanType:           a.LoanType,
		Amount:             a.Principal,
		InterestRate:       a.RatePercent,
		TermMonths:         a.TermMonths,
		MonthlyPayment:     MonthlyPayment(a.Principal, a.RatePercent, a.TermMonths),
		DateReleased:       released.Format(dateLayout),
		DueDate:            DueDate(released, a.TermMonths).Format(dateLayout),
		OutstandingBalance: a.Principal,
		Status:             model.LoanActive,
		Purpose:            a.Purpose,
		EncodedBy:          a.RecordedBy,
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrMemberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("issue loan: %w", err)
	}

	metrics.RecordLoanIssued()
	e.logger.Info("loan issued", "loan_no", l.LoanNo, "member_id", l.MemberID,
		"amount", l.Amount.String(), "monthly_payment", l.MonthlyPayment.StringFixed(2), "by", a.RecordedBy)
	return l, nil
}

// ApplyPayment records p against its loan and lowers the outstanding balance
// in one transaction. Payments on a loan already marked paid are still
// recorded; the balance stays at zero.
func (e *Engine) ApplyPayment(ctx context.Context, p Payment) (*model.Loan, *model.LoanPayment, error) {
	if !p.AmountPaid.IsPositive() {
		return nil, nil, model.Invalid("Amount paid must be greater than zero.")
	}
	if p.Principal != nil && p.Principal.IsNegative() {
		return nil, nil, model.Invalid("Principal cannot be negative.")
	}
	if p.Interest.IsNegative() {
		return nil, nil, model.Invalid("Interest cannot be negative.")
	}
	if p.Date == "" {
		p.Date = e.now().Format(dateLayout)
	} else if _, err := time.Parse(dateLayout, p.Date); err != nil {
		return nil, nil, model.Invalid("Invalid payment date.")
	}
	if p.RecordedBy == "" {
		p.RecordedBy = "admin"
	}

	l, payment, err := e.store.ApplyPayment(ctx, p.LoanID, func(l *model.Loan) (*model.LoanPayment, error) {
		remaining, status := Remaining(l.OutstandingBalance, p.AmountPaid, p.Principal)
		l.OutstandingBalance = remaining
		l.Status = status

		principal := decimal.Zero
		if p.Principal != nil {
			principal = *p.Principal
		}
		return &model.LoanPayment{
			PaymentDate:      p.Date,
			AmountPaid:       p.AmountPaid,
			Principal:        principal,
			Interest:         p.Interest,
			RemainingBalance: remaining,
			ORNumber:         p.ORNumber,
			EncodedBy:        p.RecordedBy,
		}, nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("apply loan payment: %w", err)
	}

	metrics.RecordLoanPayment(string(l.Status))
	e.logger.Info("loan payment applied", "loan_no", l.LoanNo, "amount_paid", p.AmountPaid.String(),
		"remaining", l.OutstandingBalance.String(), "status", l.Status, "by", p.RecordedBy)
	return l, payment, nil
}

// ForMember returns a member's loans, latest release first.
func (e *Engine) ForMember(ctx context.Context, memberID int64) ([]model.Loan, error) {
	return e.store.ListByMember(ctx, memberID)
}

// Payments returns the payments on one of the member's loans, latest first.
// A loan owned by someone else yields no rows.
func (e *Engine) Payments(ctx context.Context, loanID, memberID int64) ([]model.LoanPayment, error) {
	return e.store.ListPayments(ctx, loanID, memberID)
}

func (e *Engine) All(ctx context.Context) ([]model.Loan, error) {
	return e.store.ListAll(ctx)
}

// Outstanding returns the total balance and count of a member's active loans.
func (e *Engine) Outstanding(ctx context.Context, memberID int64) (decimal.Decimal, int, error) {
	return e.store.Outstanding(ctx, memberID)
}
