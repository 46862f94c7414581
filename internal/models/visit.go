package models

import "time"

// AttendanceState is the derived check-in status of a student.
type AttendanceState string

const (
	StateCheckedIn  AttendanceState = "CHECKED_IN"
	StateCheckedOut AttendanceState = "CHECKED_OUT"
)

// Visit is one contiguous check-in to check-out interval. CheckedOutAt
// stays null while the visit is open; at most one open visit may exist
// per access code.
type Visit struct {
	ID           string     `db:"id" json:"id"`
	AccessCode   string     `db:"access_code" json:"access_code"`
	CheckedInAt  time.Time  `db:"checked_in_at" json:"checked_in_at"`
	CheckedOutAt *time.Time `db:"checked_out_at" json:"checked_out_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// Open reports whether the visit has not been closed yet.
func (v *Visit) Open() bool {
	return v.CheckedOutAt == nil
}

// Duration returns the visit length, using now for open visits.
func (v *Visit) Duration(now time.Time) time.Duration {
	end := now
	if v.CheckedOutAt != nil {
		end = *v.CheckedOutAt
	}
	return end.Sub(v.CheckedInAt)
}

// ToggleResult reports the outcome of a check action.
type ToggleResult struct {
	State   AttendanceState `json:"state"`
	VisitID string          `json:"visit_id"`
}

// AttendanceStatus reports the current state for a status query.
type AttendanceStatus struct {
	State        AttendanceState `json:"state"`
	Elapsed      *time.Duration  `json:"-"`
	ElapsedMin   int             `json:"elapsed_minutes"`
	PlanID       *string         `json:"plan_id,omitempty"`
	PlanEndsAt   *time.Time      `json:"plan_ends_at,omitempty"`
	MinutesUsed  int             `json:"minutes_used"`
	StudentName  string          `json:"student_name"`
}

// VisitFilter scopes visit report queries.
type VisitFilter struct {
	AccessCode string
	From       *time.Time
	To         *time.Time
	Page       int
	PageSize   int
}
