package models

import (
	"regexp"
	"time"
)

// AccessCodePattern matches a valid 5-digit access code.
var AccessCodePattern = regexp.MustCompile(`^[0-9]{5}$`)

// Student is a registered member identified by a 5-digit access code.
// The code is the student-facing identity and never changes.
type Student struct {
	ID                   string     `db:"id" json:"id"`
	AccessCode           string     `db:"access_code" json:"access_code"`
	FullName             string     `db:"full_name" json:"full_name"`
	Email                string     `db:"email" json:"email"`
	Phone                string     `db:"phone" json:"phone"`
	Institution          string     `db:"institution" json:"institution"`
	Career               string     `db:"career" json:"career"`
	PlanID               *string    `db:"plan_id" json:"plan_id,omitempty"`
	PlanStartsAt         *time.Time `db:"plan_starts_at" json:"plan_starts_at,omitempty"`
	PlanEndsAt           *time.Time `db:"plan_ends_at" json:"plan_ends_at,omitempty"`
	MinutesUsed          int        `db:"minutes_used" json:"minutes_used"`
	CertificateSubmitted bool       `db:"certificate_submitted" json:"certificate_submitted"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updated_at"`
}

// HasActivePlan reports whether the student holds a plan that has not
// expired at the given instant.
func (s *Student) HasActivePlan(now time.Time) bool {
	if s.PlanID == nil || s.PlanEndsAt == nil {
		return false
	}
	return s.PlanEndsAt.After(now)
}

// StudentFilter scopes staff listing queries.
type StudentFilter struct {
	Search    string
	HasPlan   *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
