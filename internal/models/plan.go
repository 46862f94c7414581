package models

import "time"

// PlanTier is the presentation label derived from price percentile.
type PlanTier string

const (
	TierPremium PlanTier = "premium"
	TierPopular PlanTier = "popular"
	TierBasic   PlanTier = "basic"
)

// Plan is a purchasable membership tier. Plans are defined by
// administrators and never mutated through this API.
type Plan struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Price        float64   `db:"price" json:"price"`
	DurationDays int       `db:"duration_days" json:"duration_days"`
	Description  *string   `db:"description" json:"description,omitempty"`
	AllowedDays  *string   `db:"allowed_days" json:"allowed_days,omitempty"`
	StartHour    *int      `db:"start_hour" json:"start_hour,omitempty"`
	EndHour      *int      `db:"end_hour" json:"end_hour,omitempty"`
	Active       bool      `db:"active" json:"active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// PlanListing is a plan decorated with its tier label for display.
type PlanListing struct {
	Plan
	Tier PlanTier `json:"tier"`
}
