package models

import "time"

// PaymentStatus is the lifecycle state of a payment record. Transitions
// are monotonic: pending may become confirmed or failed, nothing else.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentConfirmed PaymentStatus = "confirmed"
	PaymentFailed    PaymentStatus = "failed"
)

// PaymentMethod distinguishes hosted-checkout from front-desk payments.
type PaymentMethod string

const (
	MethodGateway  PaymentMethod = "gateway"
	MethodInPerson PaymentMethod = "in_person"
)

// Valid reports whether the method is a supported value.
func (m PaymentMethod) Valid() bool {
	return m == MethodGateway || m == MethodInPerson
}

// PaymentRecord tracks one plan purchase from request to confirmation.
// ExternalRef is set once a gateway preference exists and correlates
// asynchronous notifications back to this record.
type PaymentRecord struct {
	ID            string        `db:"id" json:"id"`
	AccessCode    string        `db:"access_code" json:"access_code"`
	PlanID        string        `db:"plan_id" json:"plan_id"`
	Amount        float64       `db:"amount" json:"amount"`
	Method        PaymentMethod `db:"method" json:"method"`
	Status        PaymentStatus `db:"status" json:"status"`
	ExternalRef   *string       `db:"external_ref" json:"external_ref,omitempty"`
	FailureReason *string       `db:"failure_reason" json:"failure_reason,omitempty"`
	ConfirmedBy   *string       `db:"confirmed_by" json:"confirmed_by,omitempty"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	ConfirmedAt   *time.Time    `db:"confirmed_at" json:"confirmed_at,omitempty"`
}

// Terminal reports whether the record can no longer change status.
func (p *PaymentRecord) Terminal() bool {
	return p.Status == PaymentConfirmed || p.Status == PaymentFailed
}
