package store

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/climbs/internal/model"
)

func setupLoanTestDB(t *testing.T) (*LoanStore, *model.Member) {
	t.Helper()
	db := openTestDB(t)
	m := createMember(t, NewMemberStore(db), "u1")
	return NewLoanStore(db), m
}

func createLoan(t *testing.T, ls *LoanStore, memberID int64, loanNo, released string) *model.Loan {
	t.Helper()
	l, err := ls.Create(context.Background(), &model.Loan{
		MemberID:           memberID,
		LoanNo:             loanNo,
		LoanType:           "regular",
		Amount:             decimal.NewFromInt(12000),
		InterestRate:       decimal.NewFromInt(2),
		TermMonths:         12,
		MonthlyPayment:     decimal.NewFromInt(1020),
		DateReleased:       released,
		DueDate:            "2027-01-15",
		OutstandingBalance: decimal.NewFromInt(12000),
		Status:             model.LoanActive,
		EncodedBy:          "admin",
	})
	if err != nil {
		t.Fatalf("create loan: %v", err)
	}
	return l
}

func TestLoanCreate(t *testing.T) {
	ls, m := setupLoanTestDB(t)

	l := createLoan(t, ls, m.ID, "LN-1", "2026-01-15")
	if l.ID == 0 {
		t.Error("expected non-zero ID")
	}
	if l.MonthlyPayment.StringFixed(2) != "1020.00" {
		t.Errorf("monthly payment = %s, want 1020.00", l.MonthlyPayment.StringFixed(2))
	}
	if l.Status != model.LoanActive {
		t.Errorf("status = %q, want active", l.Status)
	}

	_, err := ls.Create(context.Background(), &model.Loan{MemberID: 999, LoanNo: "LN-2", TermMonths: 1})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown member: err = %v, want ErrNotFound", err)
	}
}

func TestLoanApplyPayment(t *testing.T) {
	ls, m := setupLoanTestDB(t)
	ctx := context.Background()
	l := createLoan(t, ls, m.ID, "LN-1", "2026-01-15")

	loan, payment, err := ls.ApplyPayment(ctx, l.ID, func(cur *model.Loan) (*model.LoanPayment, error) {
		cur.OutstandingBalance = cur.OutstandingBalance.Sub(decimal.NewFromInt(2000))
		return &model.LoanPayment{
			PaymentDate:      "2026-02-15",
			AmountPaid:       decimal.NewFromInt(2000),
			Principal:        decimal.NewFromInt(2000),
			RemainingBalance: cur.OutstandingBalance,
			ORNumber:         "OR-7",
			EncodedBy:        "admin",
		}, nil
	})
	if err != nil {
		t.Fatalf("apply payment: %v", err)
	}
	if !loan.OutstandingBalance.Equal(decimal.NewFromInt(10000)) {
		t.Errorf("outstanding = %s, want 10000", loan.OutstandingBalance)
	}
	if payment.MemberID != m.ID || payment.LoanID != l.ID || payment.ORNumber != "OR-7" {
		t.Errorf("payment = %+v", payment)
	}

	stored, _ := ls.GetByID(ctx, l.ID)
	if !stored.OutstandingBalance.Equal(decimal.NewFromInt(10000)) {
		t.Errorf("stored outstanding = %s, want 10000", stored.OutstandingBalance)
	}

	payments, err := ls.ListPayments(ctx, l.ID, m.ID)
	if err != nil {
		t.Fatalf("list payments: %v", err)
	}
	if len(payments) != 1 {
		t.Errorf("payments = %d, want 1", len(payments))
	}

	other, err := ls.ListPayments(ctx, l.ID, m.ID+1)
	if err != nil {
		t.Fatalf("list payments other member: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("other member sees %d payments, want 0", len(other))
	}
}

func TestLoanApplyPaymentNotFound(t *testing.T) {
	ls, _ := setupLoanTestDB(t)
	_, _, err := ls.ApplyPayment(context.Background(), 999, func(*model.Loan) (*model.LoanPayment, error) {
		t.Fatal("apply called for missing loan")
		return nil, nil
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestLoanListsAndOutstanding(t *testing.T) {
	ls, m := setupLoanTestDB(t)
	ctx := context.Background()

	createLoan(t, ls, m.ID, "LN-1", "2026-01-15")
	newer := createLoan(t, ls, m.ID, "LN-2", "2026-03-01")
	_, _, err := ls.ApplyPayment(ctx, newer.ID, func(cur *model.Loan) (*model.LoanPayment, error) {
		cur.OutstandingBalance = decimal.Zero
		cur.Status = model.LoanPaid
		return &model.LoanPayment{PaymentDate: "2026-03-02", AmountPaid: decimal.NewFromInt(12000),
			RemainingBalance: decimal.Zero, EncodedBy: "admin"}, nil
	})
	if err != nil {
		t.Fatalf("pay off: %v", err)
	}

	loans, err := ls.ListByMember(ctx, m.ID)
	if err != nil {
		t.Fatalf("list by member: %v", err)
	}
	if len(loans) != 2 || loans[0].LoanNo != "LN-2" {
		t.Errorf("loans = %+v, want LN-2 first", loans)
	}

	total, active, err := ls.Outstanding(ctx, m.ID)
	if err != nil {
		t.Fatalf("outstanding: %v", err)
	}
	if !total.Equal(decimal.NewFromInt(12000)) || active != 1 {
		t.Errorf("outstanding = %s across %d loans, want 12000 across 1", total, active)
	}

	byMember, err := ls.OutstandingByMember(ctx)
	if err != nil {
		t.Fatalf("outstanding by member: %v", err)
	}
	if got := byMember[m.ID]; !got.Outstanding.Equal(decimal.NewFromInt(12000)) || got.Active != 1 {
		t.Errorf("totals = %+v, want 12000 across 1", got)
	}

	all, err := ls.ListAll(ctx)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 || all[0].MemberUserID != "u1" {
		t.Errorf("all = %+v", all)
	}
}
