package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/dukerupert/climbs/internal/auth"
	"github.com/dukerupert/climbs/internal/ledger"
	"github.com/dukerupert/climbs/internal/loan"
	"github.com/dukerupert/climbs/internal/membership"
	"github.com/dukerupert/climbs/internal/middleware"
	"github.com/dukerupert/climbs/internal/model"
	"github.com/dukerupert/climbs/internal/store"
)

// MembershipHandler serves registration, member login and the member
// dashboard.
type MembershipHandler struct {
	members  *membership.Service
	ledger   *ledger.Engine
	loans    *loan.Engine
	sessions *store.SessionStore
	cookies  Cookies
	logger   *slog.Logger
}

func NewMembershipHandler(ms *membership.Service, le *ledger.Engine, lns *loan.Engine, ss *store.SessionStore, cookies Cookies, logger *slog.Logger) *MembershipHandler {
	return &MembershipHandler{
		members:  ms,
		ledger:   le,
		loans:    lns,
		sessions: ss,
		cookies:  cookies,
		logger:   logger,
	}
}

type credentialsRequest struct {
	UserID   string `json:"userId" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (h *MembershipHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, "register", err)
		return
	}
	if _, err := h.members.Register(r.Context(), req.UserID, req.Password); err != nil {
		writeError(w, h.logger, "register", err)
		return
	}
	writeOK(w, nil)
}

func (h *MembershipHandler) GenerateUserID(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"userId": h.members.GenerateUserID(r.Context())})
}

func (h *MembershipHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, "member login", err)
		return
	}

	m, err := h.members.Login(r.Context(), strings.TrimSpace(req.UserID), req.Password)
	if errors.Is(err, membership.ErrPending) {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "pending": true})
		return
	}
	if err != nil {
		writeError(w, h.logger, "member login", err)
		return
	}

	sess, err := h.sessions.CreateForMember(r.Context(), m.ID, h.cookies.TTL)
	if err != nil {
		writeError(w, h.logger, "create member session", err)
		return
	}
	h.cookies.set(w, r, middleware.MemberCookie, sess.Token)
	writeOK(w, nil)
}

func (h *MembershipHandler) Logout(w http.ResponseWriter, r *http.Request) {
	endSession(r.Context(), w, r, h.sessions, h.cookies, middleware.MemberCookie, h.logger)
	writeOK(w, nil)
}

func (h *MembershipHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	p, err := h.members.Dashboard(r.Context(), auth.MemberID(r.Context()))
	if errors.Is(err, membership.ErrMemberNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not found."})
		return
	}
	writeObject(w, h.logger, "member dashboard", p, err)
}

func (h *MembershipHandler) Shares(w http.ResponseWriter, r *http.Request) {
	entries, err := h.ledger.History(r.Context(), model.BookShares, auth.MemberID(r.Context()))
	writeList(w, h.logger, "member shares", entries, err)
}

func (h *MembershipHandler) Savings(w http.ResponseWriter, r *http.Request) {
	entries, err := h.ledger.History(r.Context(), model.BookSavings, auth.MemberID(r.Context()))
	writeList(w, h.logger, "member savings", entries, err)
}

func (h *MembershipHandler) Loans(w http.ResponseWriter, r *http.Request) {
	loans, err := h.loans.ForMember(r.Context(), auth.MemberID(r.Context()))
	writeList(w, h.logger, "member loans", loans, err)
}

// LoanPayments lists payments on one of the caller's own loans.
func (h *MembershipHandler) LoanPayments(w http.ResponseWriter, r *http.Request) {
	loanID, ok := parseIDParam(r, "loanId")
	if !ok {
		writeJSON(w, http.StatusOK, []model.LoanPayment{})
		return
	}
	payments, err := h.loans.Payments(r.Context(), loanID, auth.MemberID(r.Context()))
	writeList(w, h.logger, "member loan payments", payments, err)
}

type familyMemberRequest struct {
	Name       string  `json:"name"`
	Relation   string  `json:"relation"`
	Age        formInt `json:"age"`
	Occupation string  `json:"occupation"`
}

type applicationFormRequest struct {
	Title              string                `json:"title"`
	FirstName          string                `json:"firstName"`
	MiddleName         string                `json:"middleName"`
	LastName           string                `json:"lastName"`
	Suffix             string                `json:"suffix"`
	Gender             string                `json:"gender"`
	Birthdate          string                `json:"birthdate"`
	PlaceOfBirth       string                `json:"placeOfBirth"`
	Nationality        string                `json:"nationality"`
	Religion           string                `json:"religion"`
	CivilStatus        string                `json:"civilStatus"`
	Dependents         formInt               `json:"dependents"`
	SSSNumber          string                `json:"sssNumber"`
	TINNumber          string                `json:"tinNumber"`
	PresentAddress     string                `json:"presentAddress"`
	ZipCode1           string                `json:"zipCode1"`
	PermanentAddress   string                `json:"permanentAddress"`
	ZipCode2           string                `json:"zipCode2"`
	StayYears          formInt               `json:"stayYears"`
	StayMonths         formInt               `json:"stayMonths"`
	EmployerName       string                `json:"employerName"`
	OfficeAddress      string                `json:"officeAddress"`
	EmploymentType     string                `json:"employmentType"`
	Position           string                `json:"position"`
	MonthlyIncome      formDecimal           `json:"monthlyIncome"`
	BusinessName       string                `json:"businessName"`
	SelfBusinessNature string                `json:"selfBusinessNature"`
	AssetSize          formDecimal           `json:"assetSize"`
	SelfMonthlyIncome  formDecimal           `json:"selfMonthlyIncome"`
	UnemployedType     string                `json:"unemployedType"`
	ReferredBy         string                `json:"referredBy"`
	FamilyMembers      []familyMemberRequest `json:"familyMembers"`
}

func (req *applicationFormRequest) profile() model.MemberProfile {
	return model.MemberProfile{
		Title:              req.Title,
		FirstName:          req.FirstName,
		MiddleName:         req.MiddleName,
		LastName:           req.LastName,
		Suffix:             req.Suffix,
		Gender:             req.Gender,
		Birthdate:          req.Birthdate,
		PlaceOfBirth:       req.PlaceOfBirth,
		Nationality:        req.Nationality,
		Religion:           req.Religion,
		CivilStatus:        req.CivilStatus,
		Dependents:         int(req.Dependents),
		SSSNumber:          req.SSSNumber,
		TINNumber:          req.TINNumber,
		PresentAddress:     req.PresentAddress,
		ZipCode1:           req.ZipCode1,
		PermanentAddress:   req.PermanentAddress,
		ZipCode2:           req.ZipCode2,
		StayYears:          int(req.StayYears),
		StayMonths:         int(req.StayMonths),
		EmployerName:       req.EmployerName,
		OfficeAddress:      req.OfficeAddress,
		EmploymentType:     req.EmploymentType,
		Position:           req.Position,
		MonthlyIncome:      req.MonthlyIncome.Decimal,
		BusinessName:       req.BusinessName,
		SelfBusinessNature: req.SelfBusinessNature,
		AssetSize:          req.AssetSize.Decimal,
		SelfMonthlyIncome:  req.SelfMonthlyIncome.Decimal,
		UnemployedType:     req.UnemployedType,
		ReferredBy:         req.ReferredBy,
	}
}

func (req *applicationFormRequest) family() []model.FamilyMember {
	out := make([]model.FamilyMember, 0, len(req.FamilyMembers))
	for _, f := range req.FamilyMembers {
		fm := model.FamilyMember{Name: f.Name, Relation: f.Relation, Occupation: f.Occupation}
		if f.Age > 0 {
			age := int(f.Age)
			fm.Age = &age
		}
		out = append(out, fm)
	}
	return out
}

func (h *MembershipHandler) SubmitForm(w http.ResponseWriter, r *http.Request) {
	var req applicationFormRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, "submit form", err)
		return
	}
	if err := h.members.SubmitForm(r.Context(), auth.MemberID(r.Context()), req.profile(), req.family()); err != nil {
		writeError(w, h.logger, "submit form", err)
		return
	}
	writeOK(w, nil)
}

// profileFields maps the dashboard's field names to member columns.
var profileFields = map[string]string{
	"firstName":    "first_name",
	"middleName":   "middle_name",
	"lastName":     "last_name",
	"suffix":       "suffix",
	"birthdate":    "birthdate",
	"placeOfBirth": "place_of_birth",
	"gender":       "gender",
	"nationality":  "nationality",
	"religion":     "religion",
	"civilStatus":  "civil_status",
	"dependents":   "dependents",
	"sssNumber":    "sss_number",
	"tinNumber":    "tin_number",
}

// Update edits personal fields. Unknown keys are ignored; values must be
// scalars.
func (h *MembershipHandler) Update(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := decode(r, &body); err != nil {
		writeError(w, h.logger, "update profile", err)
		return
	}
	updates := make(map[string]any, len(body))
	for key, v := range body {
		col, ok := profileFields[key]
		if !ok {
			continue
		}
		val, ok := profileValue(col, v)
		if !ok {
			writeFail(w, "Invalid "+key+".")
			return
		}
		updates[col] = val
	}
	if err := h.members.UpdateProfile(r.Context(), auth.MemberID(r.Context()), updates); err != nil {
		writeError(w, h.logger, "update profile", err)
		return
	}
	writeOK(w, nil)
}

// profileValue coerces a JSON scalar to what the column stores. dependents
// is a non-null integer; every other editable column is text.
func profileValue(col string, v any) (any, bool) {
	if col == "dependents" {
		switch v := v.(type) {
		case nil:
			return 0, true
		case float64:
			return int(v), true
		case string:
			if strings.TrimSpace(v) == "" {
				return 0, true
			}
			n, err := strconv.Atoi(strings.TrimSpace(v))
			return n, err == nil
		}
		return nil, false
	}
	switch v := v.(type) {
	case nil:
		return nil, true
	case string:
		return strings.TrimSpace(v), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	}
	return nil, false
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (h *MembershipHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, "change password", err)
		return
	}
	if err := h.members.ChangePassword(r.Context(), auth.MemberID(r.Context()), req.CurrentPassword, req.NewPassword); err != nil {
		writeError(w, h.logger, "change password", err)
		return
	}
	writeOK(w, nil)
}

func (h *MembershipHandler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Photo string `json:"photo" validate:"required"`
	}
	if err := decode(r, &req); err != nil {
		writeFail(w, "Invalid image data.")
		return
	}
	if err := h.members.UploadPhoto(r.Context(), auth.MemberID(r.Context()), req.Photo); err != nil {
		writeError(w, h.logger, "upload photo", err)
		return
	}
	writeOK(w, nil)
}
