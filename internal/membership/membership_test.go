package membership

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/climbs/internal/database"
	"github.com/dukerupert/climbs/internal/model"
	"github.com/dukerupert/climbs/internal/store"
)

type fixture struct {
	svc     *Service
	members *store.MemberStore
	ledger  *store.LedgerStore
	loans   *store.LoanStore
}

func setup(t *testing.T) fixture {
	t.Helper()
	db, err := database.Open(":memory:", 1)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	f := fixture{
		members: store.NewMemberStore(db),
		ledger:  store.NewLedgerStore(db),
		loans:   store.NewLoanStore(db),
	}
	f.svc = NewService(f.members, f.ledger, f.loans, "CESLA", slog.Default())
	f.svc.bcryptCost = bcrypt.MinCost
	f.svc.now = func() time.Time { return time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC) }
	return f
}

func register(t *testing.T, f fixture, userID, password string) *model.Member {
	t.Helper()
	m, err := f.svc.Register(context.Background(), userID, password)
	if err != nil {
		t.Fatalf("register %s: %v", userID, err)
	}
	return m
}

func TestRegisterApproveLogin(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	m := register(t, f, "u1", "p1")
	if m.Status != model.MemberPending || m.FormStatus != model.FormIncomplete {
		t.Errorf("new member status=%q form=%q", m.Status, m.FormStatus)
	}
	if !strings.HasPrefix(m.ApplicationNo, "APP-") {
		t.Errorf("application no = %q", m.ApplicationNo)
	}
	if m.PasswordHash == "p1" {
		t.Error("password stored in clear text")
	}

	if _, err := f.svc.Login(ctx, "u1", "p1"); !errors.Is(err, ErrPending) {
		t.Fatalf("pending login: err = %v, want ErrPending", err)
	}

	if err := f.svc.DecideAdmission(ctx, m.ID, model.MemberApproved); err != nil {
		t.Fatalf("approve: %v", err)
	}
	got, err := f.svc.Login(ctx, "u1", "p1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if got.ID != m.ID {
		t.Errorf("logged in as %d, want %d", got.ID, m.ID)
	}
}

func TestRegisterRejectsDuplicatesAndBlanks(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	register(t, f, "u1", "p1")

	if _, err := f.svc.Register(ctx, "u1", "other"); !errors.Is(err, ErrUserIDTaken) {
		t.Errorf("duplicate: err = %v, want ErrUserIDTaken", err)
	}
	var ve *model.ValidationError
	if _, err := f.svc.Register(ctx, "u2", ""); !errors.As(err, &ve) {
		t.Errorf("blank password: err = %v, want ValidationError", err)
	}
	if _, err := f.svc.Register(ctx, "  ", "p"); !errors.As(err, &ve) {
		t.Errorf("blank user id: err = %v, want ValidationError", err)
	}
}

func TestLoginFailures(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	m := register(t, f, "u1", "p1")

	if _, err := f.svc.Login(ctx, "u1", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password: err = %v", err)
	}
	if _, err := f.svc.Login(ctx, "nobody", "p1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown user: err = %v", err)
	}

	f.svc.DecideAdmission(ctx, m.ID, model.MemberRejected)
	if _, err := f.svc.Login(ctx, "u1", "p1"); !errors.Is(err, ErrRejected) {
		t.Errorf("rejected: err = %v, want ErrRejected", err)
	}
}

func TestDecideAdmissionRejectsPending(t *testing.T) {
	f := setup(t)
	m := register(t, f, "u1", "p1")

	var ve *model.ValidationError
	if err := f.svc.DecideAdmission(context.Background(), m.ID, model.MemberPending); !errors.As(err, &ve) {
		t.Errorf("err = %v, want ValidationError", err)
	}
	if err := f.svc.DecideAdmission(context.Background(), 999, model.MemberApproved); !errors.Is(err, ErrMemberNotFound) {
		t.Errorf("missing member: err = %v, want ErrMemberNotFound", err)
	}
}

func TestFormLifecycle(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	m := register(t, f, "u1", "p1")

	family := []model.FamilyMember{{Name: "Maria", Relation: "spouse"}, {Name: "  "}}
	if err := f.svc.SubmitForm(ctx, m.ID, model.MemberProfile{FirstName: "Juan"}, family); err != nil {
		t.Fatalf("submit: %v", err)
	}
	p, err := f.svc.Detail(ctx, m.ID)
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if p.FormStatus != model.FormSubmitted || p.FormSubmittedAt == nil {
		t.Errorf("after submit: %q %v", p.FormStatus, p.FormSubmittedAt)
	}
	if len(p.FamilyMembers) != 1 {
		t.Errorf("family = %+v, want unnamed entry dropped", p.FamilyMembers)
	}

	// Admin sends it back; the member resubmits; admin approves.
	if err := f.svc.DecideForm(ctx, m.ID, "reject"); err != nil {
		t.Fatalf("reject form: %v", err)
	}
	p, _ = f.svc.Detail(ctx, m.ID)
	if p.FormStatus != model.FormIncomplete || p.FormSubmittedAt != nil {
		t.Errorf("after reject: %q %v", p.FormStatus, p.FormSubmittedAt)
	}
	if err := f.svc.SubmitForm(ctx, m.ID, model.MemberProfile{FirstName: "Juan", LastName: "Cruz"}, nil); err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if err := f.svc.DecideForm(ctx, m.ID, "approve"); err != nil {
		t.Fatalf("approve form: %v", err)
	}

	err = f.svc.SubmitForm(ctx, m.ID, model.MemberProfile{FirstName: "Changed"}, nil)
	if !errors.Is(err, ErrFormLocked) {
		t.Fatalf("submit after approval: err = %v, want ErrFormLocked", err)
	}
	p, _ = f.svc.Detail(ctx, m.ID)
	if p.FirstName != "Juan" || p.FormStatus != model.FormApproved {
		t.Errorf("locked form mutated: first_name=%q form_status=%q", p.FirstName, p.FormStatus)
	}

	if err := f.svc.UpdateProfile(ctx, m.ID, map[string]any{"first_name": "X"}); !errors.Is(err, ErrFormLocked) {
		t.Errorf("update after approval: err = %v, want ErrFormLocked", err)
	}
}

func TestDecideFormRequiresSubmission(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	m := register(t, f, "u1", "p1")

	var ve *model.ValidationError
	if err := f.svc.DecideForm(ctx, m.ID, "approve"); !errors.As(err, &ve) {
		t.Errorf("approve incomplete: err = %v, want ValidationError", err)
	}
	if err := f.svc.DecideForm(ctx, m.ID, "archive"); !errors.As(err, &ve) {
		t.Errorf("unknown action: err = %v, want ValidationError", err)
	}
}

func TestChangePassword(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	m := register(t, f, "u1", "old")
	f.svc.DecideAdmission(ctx, m.ID, model.MemberApproved)

	if err := f.svc.ChangePassword(ctx, m.ID, "wrong", "new"); !errors.Is(err, ErrWrongPassword) {
		t.Fatalf("wrong current: err = %v, want ErrWrongPassword", err)
	}
	if err := f.svc.ChangePassword(ctx, m.ID, "old", "new"); err != nil {
		t.Fatalf("change: %v", err)
	}
	if _, err := f.svc.Login(ctx, "u1", "new"); err != nil {
		t.Errorf("login with new password: %v", err)
	}
}

func TestUploadPhoto(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	m := register(t, f, "u1", "p1")

	var ve *model.ValidationError
	if err := f.svc.UploadPhoto(ctx, m.ID, "https://example.com/me.png"); !errors.As(err, &ve) {
		t.Errorf("non data uri: err = %v, want ValidationError", err)
	}
	if err := f.svc.UploadPhoto(ctx, m.ID, "data:image/png;base64,AAAA"); err != nil {
		t.Fatalf("upload: %v", err)
	}
	p, _ := f.svc.Dashboard(ctx, m.ID)
	if p.ProfilePhoto != "data:image/png;base64,AAAA" {
		t.Errorf("photo = %q", p.ProfilePhoto)
	}
}

// Registration timestamps come from the database clock, so these tests run
// on the real year.
func TestGenerateUserID(t *testing.T) {
	f := setup(t)
	f.svc.now = time.Now
	ctx := context.Background()
	prefix := fmt.Sprintf("CESLA-%d-", time.Now().Year())

	first := f.svc.GenerateUserID(ctx)
	if first != prefix+"00001" {
		t.Errorf("first id = %q, want %s00001", first, prefix)
	}

	register(t, f, first, "p1")
	register(t, f, "hand-picked", "p2")
	third := f.svc.GenerateUserID(ctx)
	if third != prefix+"00003" {
		t.Errorf("third id = %q, want %s00003", third, prefix)
	}
}

func TestGenerateUserIDFallsBackOnCollision(t *testing.T) {
	f := setup(t)
	f.svc.now = time.Now
	ctx := context.Background()
	prefix := fmt.Sprintf("CESLA-%d-", time.Now().Year())

	register(t, f, "someone-else", "p")
	register(t, f, prefix+"00003", "p")

	got := f.svc.GenerateUserID(ctx)
	if got == prefix+"00003" {
		t.Fatal("generated a taken id")
	}
	if !strings.HasPrefix(got, prefix) || len(got) != len(prefix)+5 {
		t.Errorf("fallback id = %q", got)
	}
}

func TestDashboardTotals(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	m := register(t, f, "u1", "p1")

	for _, e := range []model.LedgerEntry{
		{MemberID: m.ID, Book: model.BookShares, Type: model.Deposit, Amount: decimal.NewFromInt(500)},
		{MemberID: m.ID, Book: model.BookSavings, Type: model.Deposit, Amount: decimal.NewFromInt(80)},
	} {
		e.TransactionDate = "2026-06-01"
		e.EncodedBy = "admin"
		if _, err := f.ledger.Post(ctx, &e, func(cur decimal.Decimal) (decimal.Decimal, error) {
			return cur.Add(e.Amount), nil
		}); err != nil {
			t.Fatalf("post: %v", err)
		}
	}
	if _, err := f.loans.Create(ctx, &model.Loan{MemberID: m.ID, LoanNo: "LN-1", LoanType: "regular",
		Amount: decimal.NewFromInt(3000), TermMonths: 3, MonthlyPayment: decimal.NewFromInt(1000),
		DateReleased: "2026-06-01", DueDate: "2026-09-01", OutstandingBalance: decimal.NewFromInt(3000),
		Status: model.LoanActive, EncodedBy: "admin"}); err != nil {
		t.Fatalf("create loan: %v", err)
	}

	p, err := f.svc.Dashboard(ctx, m.ID)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if !p.TotalShares.Equal(decimal.NewFromInt(500)) || !p.TotalSavings.Equal(decimal.NewFromInt(80)) {
		t.Errorf("shares=%s savings=%s", p.TotalShares, p.TotalSavings)
	}
	if !p.TotalLoanBalance.Equal(decimal.NewFromInt(3000)) || p.ActiveLoans != 1 {
		t.Errorf("loans=%s active=%d", p.TotalLoanBalance, p.ActiveLoans)
	}

	list, err := f.svc.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || !list[0].SharesBalance.Equal(decimal.NewFromInt(500)) || list[0].ActiveLoans != 1 {
		t.Errorf("summary = %+v", list)
	}

	if _, err := f.svc.Dashboard(ctx, 999); !errors.Is(err, ErrMemberNotFound) {
		t.Errorf("missing member: err = %v, want ErrMemberNotFound", err)
	}
}
