package store

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/dukerupert/climbs/internal/database"
	"github.com/dukerupert/climbs/internal/model"
)

type MemberStore struct {
	db *sql.DB
}

func NewMemberStore(db *sql.DB) *MemberStore {
	return &MemberStore{db: db}
}

const memberCols = `id, application_no, user_id, password, status, form_status,
	title, first_name, middle_name, last_name, suffix, gender, birthdate, place_of_birth,
	nationality, religion, civil_status, dependents, sss_number, tin_number,
	present_address, zip_code1, permanent_address, zip_code2, stay_years, stay_months,
	employer_name, office_address, employment_type, position, monthly_income,
	business_name, self_business_nature, asset_size, self_monthly_income,
	unemployed_type, referred_by, profile_photo,
	submitted_at, approved_at, rejected_at, form_submitted_at, form_approved_at`

func scanMember(scanner interface{ Scan(...any) error }) (*model.Member, error) {
	var m model.Member
	p := &m.MemberProfile
	err := scanner.Scan(
		&m.ID, &m.ApplicationNo, &m.UserID, &m.PasswordHash, &m.Status, &m.FormStatus,
		text{&p.Title}, text{&p.FirstName}, text{&p.MiddleName}, text{&p.LastName}, text{&p.Suffix},
		text{&p.Gender}, text{&p.Birthdate}, text{&p.PlaceOfBirth},
		text{&p.Nationality}, text{&p.Religion}, text{&p.CivilStatus}, &p.Dependents,
		text{&p.SSSNumber}, text{&p.TINNumber},
		text{&p.PresentAddress}, text{&p.ZipCode1}, text{&p.PermanentAddress}, text{&p.ZipCode2},
		&p.StayYears, &p.StayMonths,
		text{&p.EmployerName}, text{&p.OfficeAddress}, text{&p.EmploymentType}, text{&p.Position},
		&p.MonthlyIncome,
		text{&p.BusinessName}, text{&p.SelfBusinessNature}, &p.AssetSize, &p.SelfMonthlyIncome,
		text{&p.UnemployedType}, text{&p.ReferredBy}, text{&m.ProfilePhoto},
		&m.SubmittedAt, nullTime{&m.ApprovedAt}, nullTime{&m.RejectedAt},
		nullTime{&m.FormSubmittedAt}, nullTime{&m.FormApprovedAt},
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *MemberStore) Create(ctx context.Context, applicationNo, userID, passwordHash string) (*model.Member, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO members (application_no, user_id, password, status, form_status) VALUES (?, ?, ?, ?, ?)`,
		applicationNo, userID, passwordHash, model.MemberPending, model.FormIncomplete,
	)
	if isUniqueViolation(err) {
		return nil, ErrDuplicate
	}
	if err != nil {
		return nil, fmt.Errorf("insert member: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *MemberStore) GetByID(ctx context.Context, id int64) (*model.Member, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+memberCols+` FROM members WHERE id = ?`, id)
	m, err := scanMember(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	return m, nil
}

func (s *MemberStore) GetByUserID(ctx context.Context, userID string) (*model.Member, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+memberCols+` FROM members WHERE user_id = ?`, userID)
	m, err := scanMember(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get member by user id: %w", err)
	}
	return m, nil
}

func (s *MemberStore) UserIDExists(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM members WHERE user_id = ?)`, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check user id: %w", err)
	}
	return exists, nil
}

// CountRegisteredIn returns how many members registered in the given year.
func (s *MemberStore) CountRegisteredIn(ctx context.Context, year int) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM members WHERE strftime('%Y', submitted_at) = ?`,
		strconv.Itoa(year),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count members in year: %w", err)
	}
	return n, nil
}

// List returns all members, newest registration first.
func (s *MemberStore) List(ctx context.Context) ([]model.Member, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+memberCols+` FROM members ORDER BY submitted_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []model.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

// SubmitForm overwrites the profile, replaces the family set and marks the
// form submitted in one transaction. guard sees the current form status and
// may veto the submission.
func (s *MemberStore) SubmitForm(ctx context.Context, id int64, p model.MemberProfile, family []model.FamilyMember, guard func(model.FormStatus) error) error {
	return database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var status model.FormStatus
		err := tx.QueryRowContext(ctx, `SELECT form_status FROM members WHERE id = ?`, id).Scan(&status)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get form status: %w", err)
		}
		if err := guard(status); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE members SET
				title = ?, first_name = ?, middle_name = ?, last_name = ?, suffix = ?,
				gender = ?, birthdate = ?, place_of_birth = ?, nationality = ?, religion = ?,
				civil_status = ?, dependents = ?, sss_number = ?, tin_number = ?,
				present_address = ?, zip_code1 = ?, permanent_address = ?, zip_code2 = ?,
				stay_years = ?, stay_months = ?,
				employer_name = ?, office_address = ?, employment_type = ?, position = ?, monthly_income = ?,
				business_name = ?, self_business_nature = ?, asset_size = ?, self_monthly_income = ?,
				unemployed_type = ?, referred_by = ?,
				form_status = ?, form_submitted_at = CURRENT_TIMESTAMP
			WHERE id = ?`,
			nullIfEmpty(p.Title), nullIfEmpty(p.FirstName), nullIfEmpty(p.MiddleName), nullIfEmpty(p.LastName), nullIfEmpty(p.Suffix),
			nullIfEmpty(p.Gender), nullIfEmpty(p.Birthdate), nullIfEmpty(p.PlaceOfBirth), nullIfEmpty(p.Nationality), nullIfEmpty(p.Religion),
			nullIfEmpty(p.CivilStatus), p.Dependents, nullIfEmpty(p.SSSNumber), nullIfEmpty(p.TINNumber),
			nullIfEmpty(p.PresentAddress), nullIfEmpty(p.ZipCode1), nullIfEmpty(p.PermanentAddress), nullIfEmpty(p.ZipCode2),
			p.StayYears, p.StayMonths,
			nullIfEmpty(p.EmployerName), nullIfEmpty(p.OfficeAddress), nullIfEmpty(p.EmploymentType), nullIfEmpty(p.Position), p.MonthlyIncome,
			nullIfEmpty(p.BusinessName), nullIfEmpty(p.SelfBusinessNature), p.AssetSize, p.SelfMonthlyIncome,
			nullIfEmpty(p.UnemployedType), nullIfEmpty(p.ReferredBy),
			model.FormSubmitted, id,
		)
		if err != nil {
			return fmt.Errorf("update profile: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM family_members WHERE member_id = ?`, id); err != nil {
			return fmt.Errorf("delete family members: %w", err)
		}
		for _, f := range family {
			var age any
			if f.Age != nil {
				age = *f.Age
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO family_members (member_id, name, relation, age, occupation) VALUES (?, ?, ?, ?, ?)`,
				id, f.Name, nullIfEmpty(f.Relation), age, nullIfEmpty(f.Occupation),
			); err != nil {
				return fmt.Errorf("insert family member %q: %w", f.Name, err)
			}
		}
		return nil
	})
}

// ApproveForm locks the application form.
func (s *MemberStore) ApproveForm(ctx context.Context, id int64) error {
	return s.execOne(ctx, "approve form",
		`UPDATE members SET form_status = ?, form_approved_at = CURRENT_TIMESTAMP WHERE id = ?`,
		model.FormApproved, id,
	)
}

// RejectForm sends the form back to incomplete and clears the submission time.
func (s *MemberStore) RejectForm(ctx context.Context, id int64) error {
	return s.execOne(ctx, "reject form",
		`UPDATE members SET form_status = ?, form_submitted_at = NULL WHERE id = ?`,
		model.FormIncomplete, id,
	)
}

// SetAdmission records an approved or rejected admission decision.
func (s *MemberStore) SetAdmission(ctx context.Context, id int64, status model.MemberStatus) error {
	col := "rejected_at"
	if status == model.MemberApproved {
		col = "approved_at"
	}
	return s.execOne(ctx, "set admission",
		`UPDATE members SET status = ?, `+col+` = CURRENT_TIMESTAMP WHERE id = ?`,
		status, id,
	)
}

// profileColumns are the members columns UpdateProfile may write.
var profileColumns = map[string]bool{
	"first_name": true, "middle_name": true, "last_name": true, "suffix": true,
	"birthdate": true, "place_of_birth": true, "gender": true, "nationality": true,
	"religion": true, "civil_status": true, "dependents": true,
	"sss_number": true, "tin_number": true,
}

// UpdateProfile writes a partial set of personal fields. guard sees the
// current form status and may veto the update.
func (s *MemberStore) UpdateProfile(ctx context.Context, id int64, updates map[string]any, guard func(model.FormStatus) error) error {
	if len(updates) == 0 {
		return nil
	}
	cols := make([]string, 0, len(updates))
	for col := range updates {
		if !profileColumns[col] {
			return fmt.Errorf("update profile: column %q not allowed", col)
		}
		cols = append(cols, col)
	}
	// Stable statement text for identical field sets.
	slices.Sort(cols)

	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, col := range cols {
		sets[i] = col + " = ?"
		args = append(args, updates[col])
	}
	args = append(args, id)

	return database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var status model.FormStatus
		err := tx.QueryRowContext(ctx, `SELECT form_status FROM members WHERE id = ?`, id).Scan(&status)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get form status: %w", err)
		}
		if err := guard(status); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE members SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...); err != nil {
			return fmt.Errorf("update profile: %w", err)
		}
		return nil
	})
}

func (s *MemberStore) SetPassword(ctx context.Context, id int64, passwordHash string) error {
	return s.execOne(ctx, "set password", `UPDATE members SET password = ? WHERE id = ?`, passwordHash, id)
}

func (s *MemberStore) SetPhoto(ctx context.Context, id int64, photo string) error {
	return s.execOne(ctx, "set photo", `UPDATE members SET profile_photo = ? WHERE id = ?`, photo, id)
}

// Family returns the family members listed on a member's form.
func (s *MemberStore) Family(ctx context.Context, memberID int64) ([]model.FamilyMember, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, member_id, name, relation, age, occupation FROM family_members WHERE member_id = ? ORDER BY id`,
		memberID,
	)
	if err != nil {
		return nil, fmt.Errorf("list family members: %w", err)
	}
	defer rows.Close()

	var family []model.FamilyMember
	for rows.Next() {
		var f model.FamilyMember
		var age sql.NullInt64
		if err := rows.Scan(&f.ID, &f.MemberID, &f.Name, text{&f.Relation}, &age, text{&f.Occupation}); err != nil {
			return nil, fmt.Errorf("scan family member: %w", err)
		}
		if age.Valid {
			a := int(age.Int64)
			f.Age = &a
		}
		family = append(family, f)
	}
	return family, rows.Err()
}

// execOne runs a single-row UPDATE and reports ErrNotFound when nothing matched.
func (s *MemberStore) execOne(ctx context.Context, op, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
