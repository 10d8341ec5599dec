package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/climbs/internal/database"
	"github.com/dukerupert/climbs/internal/model"
)

type LoanStore struct {
	db *sql.DB
}

func NewLoanStore(db *sql.DB) *LoanStore {
	return &LoanStore{db: db}
}

const loanCols = `id, member_id, loan_no, loan_type, amount, interest_rate, term_months, monthly_payment,
	date_released, due_date, outstanding_balance, status, purpose, encoded_by, created_at`

func scanLoan(scanner interface{ Scan(...any) error }, extra ...any) (*model.Loan, error) {
	var l model.Loan
	dest := []any{&l.ID, &l.MemberID, &l.LoanNo, &l.LoanType, &l.Amount, &l.InterestRate, &l.TermMonths,
		&l.MonthlyPayment, &l.DateReleased, &l.DueDate, &l.OutstandingBalance, &l.Status,
		text{&l.Purpose}, &l.EncodedBy, &l.CreatedAt}
	if err := scanner.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return &l, nil
}

const paymentCols = `id, loan_id, member_id, payment_date, amount_paid, principal, interest,
	remaining_balance, or_number, encoded_by, created_at`

func scanPayment(scanner interface{ Scan(...any) error }) (*model.LoanPayment, error) {
	var p model.LoanPayment
	err := scanner.Scan(&p.ID, &p.LoanID, &p.MemberID, &p.PaymentDate, &p.AmountPaid, &p.Principal,
		&p.Interest, &p.RemainingBalance, text{&p.ORNumber}, &p.EncodedBy, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create inserts a new loan. The member must exist.
func (s *LoanStore) Create(ctx context.Context, l *model.Loan) (*model.Loan, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM members WHERE id = ?)`, l.MemberID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check member: %w", err)
	}
	if !exists {
		return nil, ErrNotFound
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO loans (member_id, loan_no, loan_type, amount, interest_rate, term_months, monthly_payment,
		   date_released, due_date, outstanding_balance, status, purpose, encoded_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.MemberID, l.LoanNo, l.LoanType, l.Amount, l.InterestRate, l.TermMonths, l.MonthlyPayment.StringFixed(2),
		l.DateReleased, l.DueDate, l.OutstandingBalance, l.Status, nullIfEmpty(l.Purpose), l.EncodedBy,
	)
	if err != nil {
		return nil, fmt.Errorf("insert loan: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *LoanStore) GetByID(ctx context.Context, id int64) (*model.Loan, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+loanCols+` FROM loans WHERE id = ?`, id)
	l, err := scanLoan(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get loan: %w", err)
	}
	return l, nil
}

// ApplyPayment loads the loan, lets apply fill in the payment and mutate the
// loan's balance and status, then writes the payment row and the loan update
// in one transaction.
func (s *LoanStore) ApplyPayment(ctx context.Context, loanID int64, apply func(l *model.Loan) (*model.LoanPayment, error)) (*model.Loan, *model.LoanPayment, error) {
	var (
		loan    *model.Loan
		payment *model.LoanPayment
	)
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		l, err := scanLoan(tx.QueryRowContext(ctx, `SELECT `+loanCols+` FROM loans WHERE id = ?`, loanID))
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get loan: %w", err)
		}

		p, err := apply(l)
		if err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx,
			`INSERT INTO loan_payments (loan_id, member_id, payment_date, amount_paid, principal, interest,
			   remaining_balance, or_number, encoded_by)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			l.ID, l.MemberID, p.PaymentDate, p.AmountPaid, p.Principal, p.Interest,
			p.RemainingBalance, nullIfEmpty(p.ORNumber), p.EncodedBy,
		)
		if err != nil {
			return fmt.Errorf("insert loan payment: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE loans SET outstanding_balance = ?, status = ? WHERE id = ?`,
			l.OutstandingBalance, l.Status, l.ID,
		); err != nil {
			return fmt.Errorf("update loan balance: %w", err)
		}

		payment, err = scanPayment(tx.QueryRowContext(ctx, `SELECT `+paymentCols+` FROM loan_payments WHERE id = ?`, id))
		if err != nil {
			return fmt.Errorf("get loan payment: %w", err)
		}
		loan = l
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return loan, payment, nil
}

// ListByMember returns a member's loans, latest release first.
func (s *LoanStore) ListByMember(ctx context.Context, memberID int64) ([]model.Loan, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+loanCols+` FROM loans WHERE member_id = ? ORDER BY date_released DESC, id DESC`,
		memberID,
	)
	if err != nil {
		return nil, fmt.Errorf("list loans: %w", err)
	}
	defer rows.Close()

	var loans []model.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan loan: %w", err)
		}
		loans = append(loans, *l)
	}
	return loans, rows.Err()
}

// ListAll returns every loan with the borrower's user id and name.
func (s *LoanStore) ListAll(ctx context.Context) ([]model.Loan, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT l.id, l.member_id, l.loan_no, l.loan_type, l.amount, l.interest_rate, l.term_months,
		       l.monthly_payment, l.date_released, l.due_date, l.outstanding_balance, l.status,
		       l.purpose, l.encoded_by, l.created_at, m.user_id,
		       TRIM(COALESCE(m.first_name, '') || ' ' || COALESCE(m.middle_name || ' ', '') || COALESCE(m.last_name, ''))
		FROM loans l
		JOIN members m ON m.id = l.member_id
		ORDER BY l.date_released DESC, l.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list all loans: %w", err)
	}
	defer rows.Close()

	var loans []model.Loan
	for rows.Next() {
		var userID, name string
		l, err := scanLoan(rows, &userID, &name)
		if err != nil {
			return nil, fmt.Errorf("scan loan: %w", err)
		}
		l.MemberUserID = userID
		l.MemberName = name
		loans = append(loans, *l)
	}
	return loans, rows.Err()
}

// ListPayments returns the payments on a loan owned by memberID, latest first.
func (s *LoanStore) ListPayments(ctx context.Context, loanID, memberID int64) ([]model.LoanPayment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+paymentCols+` FROM loan_payments WHERE loan_id = ? AND member_id = ? ORDER BY payment_date DESC, id DESC`,
		loanID, memberID,
	)
	if err != nil {
		return nil, fmt.Errorf("list loan payments: %w", err)
	}
	defer rows.Close()

	var payments []model.LoanPayment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan loan payment: %w", err)
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}

// Outstanding returns the summed outstanding balance and count of a member's
// active loans.
func (s *LoanStore) Outstanding(ctx context.Context, memberID int64) (decimal.Decimal, int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT outstanding_balance FROM loans WHERE member_id = ? AND status = ?`,
		memberID, model.LoanActive,
	)
	if err != nil {
		return decimal.Zero, 0, fmt.Errorf("query outstanding loans: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	count := 0
	for rows.Next() {
		var bal decimal.Decimal
		if err := rows.Scan(&bal); err != nil {
			return decimal.Zero, 0, fmt.Errorf("scan outstanding balance: %w", err)
		}
		total = total.Add(bal)
		count++
	}
	return total, count, rows.Err()
}

// LoanTotals is the outstanding balance and count of a member's active loans.
type LoanTotals struct {
	Outstanding decimal.Decimal
	Active      int
}

// OutstandingByMember returns LoanTotals for every member with an active loan.
func (s *LoanStore) OutstandingByMember(ctx context.Context) (map[int64]LoanTotals, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT member_id, outstanding_balance FROM loans WHERE status = ?`, model.LoanActive)
	if err != nil {
		return nil, fmt.Errorf("query outstanding loans: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]LoanTotals)
	for rows.Next() {
		var memberID int64
		var bal decimal.Decimal
		if err := rows.Scan(&memberID, &bal); err != nil {
			return nil, fmt.Errorf("scan outstanding balance: %w", err)
		}
		t := out[memberID]
		t.Outstanding = t.Outstanding.Add(bal)
		t.Active++
		out[memberID] = t
	}
	return out, rows.Err()
}
