package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/climbs/internal/database"
	"github.com/dukerupert/climbs/internal/model"
)

// LedgerStore reads and appends shares and savings postings. Both books share
// one schema; the book names the table.
type LedgerStore struct {
	db *sql.DB
}

func NewLedgerStore(db *sql.DB) *LedgerStore {
	return &LedgerStore{db: db}
}

const ledgerCols = `id, member_id, transaction_date, type, description, amount, balance, or_number, encoded_by, created_at`

func scanLedgerEntry(book model.Book, scanner interface{ Scan(...any) error }, extra ...any) (*model.LedgerEntry, error) {
	e := model.LedgerEntry{Book: book}
	dest := []any{&e.ID, &e.MemberID, &e.TransactionDate, &e.Type, text{&e.Description},
		&e.Amount, &e.Balance, text{&e.ORNumber}, &e.EncodedBy, &e.CreatedAt}
	if err := scanner.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return &e, nil
}

func table(book model.Book) (string, error) {
	if !book.Valid() {
		return "", fmt.Errorf("unknown ledger book %q", book)
	}
	return string(book), nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// balance sums the signed history of a member's book.
func balance(ctx context.Context, q queryer, book model.Book, memberID int64) (decimal.Decimal, error) {
	tbl, err := table(book)
	if err != nil {
		return decimal.Zero, err
	}
	rows, err := q.QueryContext(ctx, `SELECT type, amount FROM `+tbl+` WHERE member_id = ?`, memberID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("query %s history: %w", tbl, err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var dir model.Direction
		var amount decimal.Decimal
		if err := rows.Scan(&dir, &amount); err != nil {
			return decimal.Zero, fmt.Errorf("scan %s row: %w", tbl, err)
		}
		total = total.Add(dir.Signed(amount))
	}
	return total, rows.Err()
}

// Balance returns the current balance of a member's book.
func (s *LedgerStore) Balance(ctx context.Context, book model.Book, memberID int64) (decimal.Decimal, error) {
	return balance(ctx, s.db, book, memberID)
}

// Post appends e to its book in one transaction. next receives the balance
// recomputed from history and returns the balance to stamp on the row, or an
// error to abort without writing. The member must exist.
func (s *LedgerStore) Post(ctx context.Context, e *model.LedgerEntry, next func(current decimal.Decimal) (decimal.Decimal, error)) (*model.LedgerEntry, error) {
	tbl, err := table(e.Book)
	if err != nil {
		return nil, err
	}

	var posted *model.LedgerEntry
	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM members WHERE id = ?)`, e.MemberID).Scan(&exists); err != nil {
			return fmt.Errorf("check member: %w", err)
		}
		if !exists {
			return ErrNotFound
		}

		current, err := balance(ctx, tx, e.Book, e.MemberID)
		if err != nil {
			return err
		}
		newBalance, err := next(current)
		if err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx,
			`INSERT INTO `+tbl+` (member_id, transaction_date, type, description, amount, balance, or_number, encoded_by)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			e.MemberID, e.TransactionDate, e.Type, nullIfEmpty(e.Description), e.Amount, newBalance,
			nullIfEmpty(e.ORNumber), e.EncodedBy,
		)
		if err != nil {
			return fmt.Errorf("insert %s entry: %w", tbl, err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}

		row := tx.QueryRowContext(ctx, `SELECT `+ledgerCols+` FROM `+tbl+` WHERE id = ?`, id)
		posted, err = scanLedgerEntry(e.Book, row)
		if err != nil {
			return fmt.Errorf("get %s entry: %w", tbl, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return posted, nil
}

// List returns a member's postings, most recently recorded first.
func (s *LedgerStore) List(ctx context.Context, book model.Book, memberID int64) ([]model.LedgerEntry, error) {
	tbl, err := table(book)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+ledgerCols+` FROM `+tbl+` WHERE member_id = ? ORDER BY id DESC`,
		memberID,
	)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", tbl, err)
	}
	defer rows.Close()

	var entries []model.LedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(book, rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s entry: %w", tbl, err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// ListAll returns every posting in a book with the member's user id and name,
// by transaction date, newest first.
func (s *LedgerStore) ListAll(ctx context.Context, book model.Book) ([]model.LedgerEntry, error) {
	tbl, err := table(book)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT l.id, l.member_id, l.transaction_date, l.type, l.description, l.amount, l.balance,
		       l.or_number, l.encoded_by, l.created_at, m.user_id,
		       TRIM(COALESCE(m.first_name, '') || ' ' || COALESCE(m.middle_name || ' ', '') || COALESCE(m.last_name, ''))
		FROM `+tbl+` l
		JOIN members m ON m.id = l.member_id
		ORDER BY l.transaction_date DESC, l.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list all %s: %w", tbl, err)
	}
	defer rows.Close()

	var entries []model.LedgerEntry
	for rows.Next() {
		var userID, name string
		e, err := scanLedgerEntry(book, rows, &userID, &name)
		if err != nil {
			return nil, fmt.Errorf("scan %s entry: %w", tbl, err)
		}
		e.MemberUserID = userID
		e.MemberName = name
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// Balances returns every member's current balance in a book, keyed by member
// id. Members with no postings are absent.
func (s *LedgerStore) Balances(ctx context.Context, book model.Book) (map[int64]decimal.Decimal, error) {
	tbl, err := table(book)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT member_id, type, amount FROM `+tbl)
	if err != nil {
		return nil, fmt.Errorf("query %s balances: %w", tbl, err)
	}
	defer rows.Close()

	out := make(map[int64]decimal.Decimal)
	for rows.Next() {
		var memberID int64
		var dir model.Direction
		var amount decimal.Decimal
		if err := rows.Scan(&memberID, &dir, &amount); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", tbl, err)
		}
		out[memberID] = out[memberID].Add(dir.Signed(amount))
	}
	return out, rows.Err()
}
