package model

// FamilyMember is a household entry on a member's application form. The set
// is replaced wholesale on every form submission.
type FamilyMember struct {
	ID         int64  `json:"id"`
	MemberID   int64  `json:"member_id"`
	Name       string `json:"name"`
	Relation   string `json:"relation"`
	Age        *int   `json:"age"`
	Occupation string `json:"occupation"`
}
