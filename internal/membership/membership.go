// Package membership runs the application workflow: registration, login
// gating on admission status, the application form, and the admin decisions
// on both.
package membership

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/climbs/internal/ident"
	"github.com/dukerupert/climbs/internal/metrics"
	"github.com/dukerupert/climbs/internal/model"
	"github.com/dukerupert/climbs/internal/store"
)

var (
	ErrUserIDTaken        = errors.New("user id already exists")
	ErrInvalidCredentials = errors.New("invalid user id or password")
	ErrPending            = errors.New("application pending approval")
	ErrRejected           = errors.New("application rejected")
	ErrFormLocked         = errors.New("application form already approved")
	ErrMemberNotFound     = errors.New("member not found")
	ErrWrongPassword      = errors.New("incorrect current password")
)

// Profile is a member record with the family listed on its form and its
// financial totals.
type Profile struct {
	*model.Member
	TotalShares      decimal.Decimal      `json:"total_shares"`
	TotalSavings     decimal.Decimal      `json:"total_savings"`
	TotalLoanBalance decimal.Decimal      `json:"total_loan_balance"`
	ActiveLoans      int                  `json:"active_loans"`
	FamilyMembers    []model.FamilyMember `json:"family_members"`
}

type Service struct {
	members    *store.MemberStore
	ledger     *store.LedgerStore
	loans      *store.LoanStore
	prefix     string
	bcryptCost int
	logger     *slog.Logger
	now        func() time.Time
}

func NewService(ms *store.MemberStore, ls *store.LedgerStore, lns *store.LoanStore, userIDPrefix string, logger *slog.Logger) *Service {
	return &Service{
		members:    ms,
		ledger:     ls,
		loans:      lns,
		prefix:     userIDPrefix,
		bcryptCost: bcrypt.DefaultCost,
		logger:     logger,
		now:        time.Now,
	}
}

// Register creates a pending applicant with an incomplete form.
func (s *Service) Register(ctx context.Context, userID, password string) (*model.Member, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" || password == "" {
		return nil, model.Invalid("Missing required fields.")
	}

	exists, err := s.members.UserIDExists(ctx, userID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrUserIDTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	m, err := s.members.Create(ctx, ident.ApplicationNo(), userID, string(hash))
	if errors.Is(err, store.ErrDuplicate) {
		// Lost a race with a concurrent registration for the same id.
		return nil, ErrUserIDTaken
	}
	if err != nil {
		return nil, err
	}

	metrics.RecordRegistration()
	s.logger.Info("member registered", "user_id", m.UserID, "application_no", m.ApplicationNo)
	return m, nil
}

// GenerateUserID proposes PREFIX-YYYY-NNNNN, numbering this year's
// registrations from 1. When that id is taken or the lookup fails it falls
// back to a random five-digit suffix. The id is a suggestion; Register
// enforces uniqueness.
func (s *Service) GenerateUserID(ctx context.Context) string {
	year := s.now().Year()
	n, err := s.members.CountRegisteredIn(ctx, year)
	if err != nil {
		s.logger.Error("count registrations", "error", err)
		return s.randomUserID(year)
	}
	candidate := fmt.Sprintf("%s-%d-%05d", s.prefix, year, n+1)
	exists, err := s.members.UserIDExists(ctx, candidate)
	if err != nil {
		s.logger.Error("check generated user id", "error", err)
		return s.randomUserID(year)
	}
	if exists {
		return s.randomUserID(year)
	}
	return candidate
}

func (s *Service) randomUserID(year int) string {
	return fmt.Sprintf("%s-%d-%05d", s.prefix, year, 10000+rand.IntN(90000))
}

// Login checks the password and the admission decision. Only approved
// members get through.
func (s *Service) Login(ctx context.Context, userID, password string) (*model.Member, error) {
	m, err := s.members.GetByUserID(ctx, strings.TrimSpace(userID))
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(m.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	switch m.Status {
	case model.MemberPending:
		return nil, ErrPending
	case model.MemberRejected:
		return nil, ErrRejected
	}
	return m, nil
}

// SubmitForm overwrites the member's application form and family list and
// marks the form submitted. A form the admin has approved cannot be
// resubmitted. Family entries without a name are dropped.
func (s *Service) SubmitForm(ctx context.Context, memberID int64, p model.MemberProfile, family []model.FamilyMember) error {
	kept := family[:0:0]
	for _, f := range family {
		f.Name = strings.TrimSpace(f.Name)
		if f.Name == "" {
			continue
		}
		kept = append(kept, f)
	}

	err := s.members.SubmitForm(ctx, memberID, p, kept, lockedWhenApproved)
	if errors.Is(err, store.ErrNotFound) {
		return ErrMemberNotFound
	}
	if err != nil {
		return err
	}
	s.logger.Info("application form submitted", "member_id", memberID, "family_members", len(kept))
	return nil
}

func lockedWhenApproved(status model.FormStatus) error {
	if status == model.FormApproved {
		return ErrFormLocked
	}
	return nil
}

// DecideForm approves a submitted form or sends it back to incomplete.
func (s *Service) DecideForm(ctx context.Context, memberID int64, action string) error {
	if action != "approve" && action != "reject" {
		return model.Invalid("Action must be approve or reject.")
	}
	m, err := s.members.GetByID(ctx, memberID)
	if err != nil {
		return err
	}
	if m == nil {
		return ErrMemberNotFound
	}
	if m.FormStatus != model.FormSubmitted {
		return model.Invalid("Application form is not awaiting review.")
	}

	if action == "approve" {
		err = s.members.ApproveForm(ctx, memberID)
	} else {
		err = s.members.RejectForm(ctx, memberID)
	}
	if errors.Is(err, store.ErrNotFound) {
		return ErrMemberNotFound
	}
	if err != nil {
		return err
	}
	s.logger.Info("application form decided", "member_id", memberID, "action", action)
	return nil
}

// DecideAdmission records an approve or reject decision on a member's
// application. A decision can be changed but never reverted to pending.
func (s *Service) DecideAdmission(ctx context.Context, memberID int64, status model.MemberStatus) error {
	if status != model.MemberApproved && status != model.MemberRejected {
		return model.Invalid("Status must be approved or rejected.")
	}
	err := s.members.SetAdmission(ctx, memberID, status)
	if errors.Is(err, store.ErrNotFound) {
		return ErrMemberNotFound
	}
	if err != nil {
		return err
	}
	s.logger.Info("admission decided", "member_id", memberID, "status", status)
	return nil
}

// UpdateProfile writes the personal fields present in updates, keyed by
// column name. It is refused once the form is approved.
func (s *Service) UpdateProfile(ctx context.Context, memberID int64, updates map[string]any) error {
	if len(updates) == 0 {
		return model.Invalid("No fields to update.")
	}
	err := s.members.UpdateProfile(ctx, memberID, updates, lockedWhenApproved)
	if errors.Is(err, store.ErrNotFound) {
		return ErrMemberNotFound
	}
	return err
}

func (s *Service) ChangePassword(ctx context.Context, memberID int64, current, next string) error {
	if next == "" {
		return model.Invalid("New password is required.")
	}
	m, err := s.members.GetByID(ctx, memberID)
	if err != nil {
		return err
	}
	if m == nil {
		return ErrMemberNotFound
	}
	if err := bcrypt.CompareHashAndPassword([]byte(m.PasswordHash), []byte(current)); err != nil {
		return ErrWrongPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.members.SetPassword(ctx, memberID, string(hash)); err != nil {
		return err
	}
	s.logger.Info("member password changed", "member_id", memberID)
	return nil
}

// UploadPhoto stores a data:image/ URI as the member's profile photo.
func (s *Service) UploadPhoto(ctx context.Context, memberID int64, photo string) error {
	if !strings.HasPrefix(photo, "data:image/") {
		return model.Invalid("Invalid image data.")
	}
	err := s.members.SetPhoto(ctx, memberID, photo)
	if errors.Is(err, store.ErrNotFound) {
		return ErrMemberNotFound
	}
	return err
}

// Dashboard returns the signed-in member's profile with totals and family.
func (s *Service) Dashboard(ctx context.Context, memberID int64) (*Profile, error) {
	return s.profile(ctx, memberID)
}

// Detail returns any member's full application for admin review.
func (s *Service) Detail(ctx context.Context, memberID int64) (*Profile, error) {
	return s.profile(ctx, memberID)
}

func (s *Service) profile(ctx context.Context, memberID int64) (*Profile, error) {
	m, err := s.members.GetByID(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrMemberNotFound
	}
	family, err := s.members.Family(ctx, memberID)
	if err != nil {
		return nil, err
	}
	shares, err := s.ledger.Balance(ctx, model.BookShares, memberID)
	if err != nil {
		return nil, err
	}
	savings, err := s.ledger.Balance(ctx, model.BookSavings, memberID)
	if err != nil {
		return nil, err
	}
	outstanding, active, err := s.loans.Outstanding(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if family == nil {
		family = []model.FamilyMember{}
	}
	return &Profile{
		Member:           m,
		TotalShares:      shares,
		TotalSavings:     savings,
		TotalLoanBalance: outstanding,
		ActiveLoans:      active,
		FamilyMembers:    family,
	}, nil
}

// List returns a summary row for every member, newest registration first.
func (s *Service) List(ctx context.Context) ([]model.MemberSummary, error) {
	members, err := s.members.List(ctx)
	if err != nil {
		return nil, err
	}
	shares, err := s.ledger.Balances(ctx, model.BookShares)
	if err != nil {
		return nil, err
	}
	savings, err := s.ledger.Balances(ctx, model.BookSavings)
	if err != nil {
		return nil, err
	}
	loans, err := s.loans.OutstandingByMember(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]model.MemberSummary, 0, len(members))
	for _, m := range members {
		out = append(out, model.MemberSummary{
			MemberID:        m.ID,
			ApplicationNo:   m.ApplicationNo,
			UserID:          m.UserID,
			FullName:        m.FullName(),
			Status:          m.Status,
			FormStatus:      m.FormStatus,
			SubmittedAt:     m.SubmittedAt,
			FormSubmittedAt: m.FormSubmittedAt,
			FormApprovedAt:  m.FormApprovedAt,
			SharesBalance:   shares[m.ID],
			SavingsBalance:  savings[m.ID],
			LoanBalance:     loans[m.ID].Outstanding,
			ActiveLoans:     loans[m.ID].Active,
		})
	}
	return out, nil
}
