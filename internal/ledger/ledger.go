// Package ledger posts shares and savings transactions. A member's balance in
// either book is always the signed sum of its history; the balance stored on
// each row is a snapshot taken when the row was written.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/climbs/internal/metrics"
	"github.com/dukerupert/climbs/internal/model"
	"github.com/dukerupert/climbs/internal/store"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrMemberNotFound      = errors.New("member not found")
)

const dateLayout = "2006-01-02"

// Posting is a request to append one transaction to a member's book.
type Posting struct {
	MemberID    int64
	Book        model.Book
	Type        model.Direction
	Amount      decimal.Decimal
	Date        string // YYYY-MM-DD; today when empty
	Description string
	ORNumber    string
	RecordedBy  string
}

type Engine struct {
	store  *store.LedgerStore
	logger *slog.Logger
	now    func() time.Time
}

func NewEngine(ls *store.LedgerStore, logger *slog.Logger) *Engine {
	return &Engine{store: ls, logger: logger, now: time.Now}
}

// Record validates p and appends it. The balance is recomputed from history
// inside the write transaction; a withdrawal that would take it below zero
// fails with ErrInsufficientBalance and writes nothing.
func (e *Engine) Record(ctx context.Context, p Posting) (*model.LedgerEntry, error) {
	if err := e.validate(&p); err != nil {
		return nil, err
	}

	entry := &model.LedgerEntry{
		MemberID:        p.MemberID,
		Book:            p.Book,
		TransactionDate: p.Date,
		Type:            p.Type,
		Description:     p.Description,
		Amount:          p.Amount,
		ORNumber:        p.ORNumber,
		EncodedBy:       p.RecordedBy,
	}
	posted, err := e.store.Post(ctx, entry, func(current decimal.Decimal) (decimal.Decimal, error) {
		next := current.Add(p.Type.Signed(p.Amount))
		if next.IsNegative() {
			return decimal.Zero, ErrInsufficientBalance
		}
		return next, nil
	})
	switch {
	case errors.Is(err, ErrInsufficientBalance):
		metrics.RecordLedgerPosting(string(p.Book), string(p.Type), false)
		return nil, err
	case errors.Is(err, store.ErrNotFound):
		return nil, ErrMemberNotFound
	case err != nil:
		return nil, fmt.Errorf("post %s: %w", p.Book, err)
	}

	metrics.RecordLedgerPosting(string(p.Book), string(p.Type), true)
	e.logger.Info("ledger posting recorded",
		"book", p.Book, "member_id", p.MemberID, "type", p.Type,
		"amount", p.Amount.String(), "balance", posted.Balance.String(), "by", p.RecordedBy)
	return posted, nil
}

func (e *Engine) validate(p *Posting) error {
	if !p.Book.Valid() {
		return model.Invalid("Unknown ledger.")
	}
	if p.MemberID <= 0 {
		return model.Invalid("Member is required.")
	}
	if !p.Type.Valid() {
		return model.Invalid("Type must be deposit or withdrawal.")
	}
	if !p.Amount.IsPositive() {
		return model.Invalid("Amount must be greater than zero.")
	}
	if p.Date == "" {
		p.Date = e.now().Format(dateLayout)
	} else if _, err := time.Parse(dateLayout, p.Date); err != nil {
		return model.Invalid("Invalid transaction date.")
	}
	if p.RecordedBy == "" {
		p.RecordedBy = "admin"
	}
	return nil
}

// History returns a member's postings in one book, most recent first.
func (e *Engine) History(ctx context.Context, book model.Book, memberID int64) ([]model.LedgerEntry, error) {
	return e.store.List(ctx, book, memberID)
}

// All returns every posting in one book across members.
func (e *Engine) All(ctx context.Context, book model.Book) ([]model.LedgerEntry, error) {
	return e.store.ListAll(ctx, book)
}

// Balance returns a member's current balance in one book.
func (e *Engine) Balance(ctx context.Context, book model.Book, memberID int64) (decimal.Decimal, error) {
	return e.store.Balance(ctx, book, memberID)
}
