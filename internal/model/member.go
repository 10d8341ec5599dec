package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type MemberStatus string

const (
	MemberPending  MemberStatus = "pending"
	MemberApproved MemberStatus = "approved"
	MemberRejected MemberStatus = "rejected"
)

type FormStatus string

const (
	FormIncomplete FormStatus = "incomplete"
	FormSubmitted  FormStatus = "submitted"
	FormApproved   FormStatus = "approved"
)

// Member is a cooperative applicant or member. PasswordHash never leaves the
// server.
type Member struct {
	ID            int64        `json:"id"`
	ApplicationNo string       `json:"application_no"`
	UserID        string       `json:"user_id"`
	PasswordHash  string       `json:"-"`
	Status        MemberStatus `json:"status"`
	FormStatus    FormStatus   `json:"form_status"`
	MemberProfile
	ProfilePhoto    string     `json:"profile_photo,omitempty"`
	SubmittedAt     time.Time  `json:"submitted_at"`
	ApprovedAt      *time.Time `json:"approved_at"`
	RejectedAt      *time.Time `json:"rejected_at"`
	FormSubmittedAt *time.Time `json:"form_submitted_at"`
	FormApprovedAt  *time.Time `json:"form_approved_at"`
}

// FullName joins first, middle and last names, skipping empty parts.
func (m *Member) FullName() string {
	name := ""
	for _, part := range []string{m.FirstName, m.MiddleName, m.LastName} {
		if part == "" {
			continue
		}
		if name != "" {
			name += " "
		}
		name += part
	}
	return name
}

// MemberProfile is the membership application form.
type MemberProfile struct {
	Title              string          `json:"title"`
	FirstName          string          `json:"first_name"`
	MiddleName         string          `json:"middle_name"`
	LastName           string          `json:"last_name"`
	Suffix             string          `json:"suffix"`
	Gender             string          `json:"gender"`
	Birthdate          string          `json:"birthdate"`
	PlaceOfBirth       string          `json:"place_of_birth"`
	Nationality        string          `json:"nationality"`
	Religion           string          `json:"religion"`
	CivilStatus        string          `json:"civil_status"`
	Dependents         int             `json:"dependents"`
	SSSNumber          string          `json:"sss_number"`
	TINNumber          string          `json:"tin_number"`
	PresentAddress     string          `json:"present_address"`
	ZipCode1           string          `json:"zip_code1"`
	PermanentAddress   string          `json:"permanent_address"`
	ZipCode2           string          `json:"zip_code2"`
	StayYears          int             `json:"stay_years"`
	StayMonths         int             `json:"stay_months"`
	EmployerName       string          `json:"employer_name"`
	OfficeAddress      string          `json:"office_address"`
	EmploymentType     string          `json:"employment_type"`
	Position           string          `json:"position"`
	MonthlyIncome      decimal.Decimal `json:"monthly_income"`
	BusinessName       string          `json:"business_name"`
	SelfBusinessNature string          `json:"self_business_nature"`
	AssetSize          decimal.Decimal `json:"asset_size"`
	SelfMonthlyIncome  decimal.Decimal `json:"self_monthly_income"`
	UnemployedType     string          `json:"unemployed_type"`
	ReferredBy         string          `json:"referred_by"`
}

// MemberSummary is the financial snapshot shown on dashboards and the admin
// member list.
type MemberSummary struct {
	MemberID        int64           `json:"id"`
	ApplicationNo   string          `json:"application_no"`
	UserID          string          `json:"user_id"`
	FullName        string          `json:"full_name"`
	Status          MemberStatus    `json:"status"`
	FormStatus      FormStatus      `json:"form_status"`
	SubmittedAt     time.Time       `json:"submitted_at"`
	FormSubmittedAt *time.Time      `json:"form_submitted_at"`
	FormApprovedAt  *time.Time      `json:"form_approved_at"`
	SharesBalance   decimal.Decimal `json:"total_shares"`
	SavingsBalance  decimal.Decimal `json:"total_savings"`
	LoanBalance     decimal.Decimal `json:"total_loan_balance"`
	ActiveLoans     int             `json:"active_loans"`
}
