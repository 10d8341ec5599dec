package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/climbs/internal/admin"
	"github.com/dukerupert/climbs/internal/auth"
	"github.com/dukerupert/climbs/internal/ledger"
	"github.com/dukerupert/climbs/internal/loan"
	"github.com/dukerupert/climbs/internal/membership"
	"github.com/dukerupert/climbs/internal/middleware"
	"github.com/dukerupert/climbs/internal/model"
	"github.com/dukerupert/climbs/internal/store"
)

// AdminHandler serves the cooperative office: admissions, form review,
// shares and savings postings, and loans.
type AdminHandler struct {
	admins   *admin.Service
	members  *membership.Service
	ledger   *ledger.Engine
	loans    *loan.Engine
	sessions *store.SessionStore
	cookies  Cookies
	logger   *slog.Logger
}

func NewAdminHandler(as *admin.Service, ms *membership.Service, le *ledger.Engine, lns *loan.Engine, ss *store.SessionStore, cookies Cookies, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		admins:   as,
		members:  ms,
		ledger:   le,
		loans:    lns,
		sessions: ss,
		cookies:  cookies,
		logger:   logger,
	}
}

func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, "admin login", err)
		return
	}
	a, err := h.admins.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, h.logger, "admin login", err)
		return
	}
	sess, err := h.sessions.CreateForAdmin(r.Context(), a.ID, h.cookies.TTL)
	if err != nil {
		writeError(w, h.logger, "create admin session", err)
		return
	}
	h.cookies.set(w, r, middleware.AdminCookie, sess.Token)
	writeOK(w, nil)
}

func (h *AdminHandler) Logout(w http.ResponseWriter, r *http.Request) {
	endSession(r.Context(), w, r, h.sessions, h.cookies, middleware.AdminCookie, h.logger)
	writeOK(w, nil)
}

// Members lists every member with balances, newest registration first.
func (h *AdminHandler) Members(w http.ResponseWriter, r *http.Request) {
	list, err := h.members.List(r.Context())
	writeList(w, h.logger, "list members", list, err)
}

func (h *AdminHandler) Member(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(r, "id")
	if !ok {
		writeJSON(w, http.StatusOK, map[string]string{"error": "Not found."})
		return
	}
	p, err := h.members.Detail(r.Context(), id)
	if errors.Is(err, membership.ErrMemberNotFound) {
		writeJSON(w, http.StatusOK, map[string]string{"error": "Not found."})
		return
	}
	writeObject(w, h.logger, "member detail", p, err)
}

func (h *AdminHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     int64  `json:"id" validate:"required"`
		Status string `json:"status" validate:"required"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, "update status", err)
		return
	}
	if err := h.members.DecideAdmission(r.Context(), req.ID, model.MemberStatus(req.Status)); err != nil {
		writeError(w, h.logger, "update status", err)
		return
	}
	writeOK(w, nil)
}

func (h *AdminHandler) ApproveForm(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     int64  `json:"id" validate:"required"`
		Action string `json:"action" validate:"required"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, "decide form", err)
		return
	}
	if err := h.members.DecideForm(r.Context(), req.ID, req.Action); err != nil {
		writeError(w, h.logger, "decide form", err)
		return
	}
	writeOK(w, nil)
}

type postingRequest struct {
	MemberID        int64       `json:"member_id" validate:"required"`
	TransactionDate string      `json:"transaction_date"`
	Type            string      `json:"type" validate:"required,oneof=deposit withdrawal"`
	Description     string      `json:"description"`
	Amount          formDecimal `json:"amount"`
	ORNumber        string      `json:"or_number"`
}

func (h *AdminHandler) AddShares(w http.ResponseWriter, r *http.Request) {
	h.post(w, r, model.BookShares, "Insufficient share balance.")
}

func (h *AdminHandler) AddSavings(w http.ResponseWriter, r *http.Request) {
	h.post(w, r, model.BookSavings, "Insufficient savings balance.")
}

func (h *AdminHandler) post(w http.ResponseWriter, r *http.Request, book model.Book, insufficient string) {
	var req postingRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, "record "+string(book), err)
		return
	}
	entry, err := h.ledger.Record(r.Context(), ledger.Posting{
		MemberID:    req.MemberID,
		Book:        book,
		Type:        model.Direction(req.Type),
		Amount:      req.Amount.Decimal,
		Date:        req.TransactionDate,
		Description: req.Description,
		ORNumber:    req.ORNumber,
		RecordedBy:  auth.CallerFrom(r.Context()).RecordedBy(),
	})
	if errors.Is(err, ledger.ErrInsufficientBalance) {
		writeFail(w, insufficient)
		return
	}
	if err != nil {
		writeError(w, h.logger, "record "+string(book), err)
		return
	}
	writeOK(w, map[string]any{"newBalance": entry.Balance})
}

func (h *AdminHandler) AllShares(w http.ResponseWriter, r *http.Request) {
	entries, err := h.ledger.All(r.Context(), model.BookShares)
	writeList(w, h.logger, "list all shares", entries, err)
}

func (h *AdminHandler) AllSavings(w http.ResponseWriter, r *http.Request) {
	entries, err := h.ledger.All(r.Context(), model.BookSavings)
	writeList(w, h.logger, "list all savings", entries, err)
}

func (h *AdminHandler) AllLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := h.loans.All(r.Context())
	writeList(w, h.logger, "list all loans", loans, err)
}

type loanRequest struct {
	MemberID     int64       `json:"member_id" validate:"required"`
	LoanType     string      `json:"loan_type"`
	Amount       formDecimal `json:"amount"`
	InterestRate formDecimal `json:"interest_rate"`
	TermMonths   formInt     `json:"term_months"`
	DateReleased string      `json:"date_released"`
	Purpose      string      `json:"purpose"`
}

func (h *AdminHandler) AddLoan(w http.ResponseWriter, r *http.Request) {
	var req loanRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, "issue loan", err)
		return
	}
	l, err := h.loans.Issue(r.Context(), loan.Application{
		MemberID:    req.MemberID,
		LoanType:    req.LoanType,
		Principal:   req.Amount.Decimal,
		RatePercent: req.InterestRate.Decimal,
		TermMonths:  int(req.TermMonths),
		ReleaseDate: req.DateReleased,
		Purpose:     req.Purpose,
		RecordedBy:  auth.CallerFrom(r.Context()).RecordedBy(),
	})
	if err != nil {
		writeError(w, h.logger, "issue loan", err)
		return
	}
	writeOK(w, map[string]any{
		"loanNo":         l.LoanNo,
		"monthlyPayment": l.MonthlyPayment.StringFixed(2),
		"dueDate":        l.DueDate,
	})
}

type loanPaymentRequest struct {
	LoanID      int64        `json:"loan_id" validate:"required"`
	PaymentDate string       `json:"payment_date"`
	AmountPaid  formDecimal  `json:"amount_paid"`
	Principal   *formDecimal `json:"principal"`
	Interest    formDecimal  `json:"interest"`
	ORNumber    string       `json:"or_number"`
}

func (h *AdminHandler) AddLoanPayment(w http.ResponseWriter, r *http.Request) {
	var req loanPaymentRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, "apply loan payment", err)
		return
	}
	l, _, err := h.loans.ApplyPayment(r.Context(), loan.Payment{
		LoanID:     req.LoanID,
		AmountPaid: req.AmountPaid.Decimal,
		Principal:  req.Principal.ptr(),
		Interest:   req.Interest.Decimal,
		Date:       req.PaymentDate,
		ORNumber:   req.ORNumber,
		RecordedBy: auth.CallerFrom(r.Context()).RecordedBy(),
	})
	if err != nil {
		writeError(w, h.logger, "apply loan payment", err)
		return
	}
	writeOK(w, map[string]any{
		"remainingBalance": l.OutstandingBalance,
		"status":           l.Status,
	})
}
