package leads

import "time"

// Lead is a patient service request.
//
// Assignment invariant: AssignedProviderID is set if and only if Status is
// DELIVERED or CLAIMED. A lead has at most one assigned provider at any time.
//
// PriceCents is fixed at creation and never mutated afterwards. Outcome
// fields are provider-reported and may change after assignment without
// touching Status.
type Lead struct {
	ID string `json:"id" db:"id"`

	Name  string `json:"name" db:"name"`
	Phone string `json:"phone" db:"phone"`
	Email string `json:"email,omitempty" db:"email"`

	Address string `json:"address,omitempty" db:"address"`
	City    string `json:"city,omitempty" db:"city"`
	State   string `json:"state" db:"state"`
	Zip     string `json:"zip" db:"zip"`

	Urgency Urgency `json:"urgency" db:"urgency"`
	Notes   string  `json:"notes,omitempty" db:"notes"`

	PriceCents int64 `json:"price_cents" db:"price_cents"`

	Status Status `json:"status" db:"status"`

	AssignedProviderID string     `json:"assigned_provider_id,omitempty" db:"assigned_provider_id"`
	AssignedAt         *time.Time `json:"assigned_at,omitempty" db:"assigned_at"`

	// Settlement references for reconciliation. Populated only by a claim.
	ClaimTxnID       string `json:"-" db:"claim_txn_id"`
	ClaimAmountCents int64  `json:"-" db:"claim_amount_cents"`

	Outcome Outcome `json:"outcome"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Outcome holds provider-reported follow-up detail. Mutable only by the
// assigned provider, only after assignment.
type Outcome struct {
	FirstContactAt *time.Time `json:"first_contact_at,omitempty" db:"first_contact_at"`
	LastContactAt  *time.Time `json:"last_contact_at,omitempty" db:"last_contact_at"`
	CallAttempts   int        `json:"call_attempts" db:"call_attempts"`
	Code           string     `json:"outcome_code,omitempty" db:"outcome_code"`
	CompletedAt    *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

type Status string

const (
	// StatusOpen is the initial state: unassigned and claimable.
	StatusOpen Status = "OPEN"
	// StatusDelivered means the routing engine auto-assigned the lead at
	// creation time. A DELIVERED lead is still claimable by a different
	// provider; only CLAIMED is terminal for claim purposes.
	StatusDelivered Status = "DELIVERED"
	// StatusClaimed means a provider won the race-to-claim and a settlement
	// attempt (paid or trial) completed.
	StatusClaimed Status = "CLAIMED"
)

// Claimable reports whether a lead in this status may still be claimed.
func (s Status) Claimable() bool {
	return s == StatusOpen || s == StatusDelivered
}

// Assigned reports whether the status implies an assigned provider.
func (s Status) Assigned() bool {
	return s == StatusDelivered || s == StatusClaimed
}

type Urgency string

const (
	UrgencyStandard Urgency = "STANDARD"
	UrgencyStat     Urgency = "STAT"
)

func ValidUrgency(u Urgency) bool {
	return u == UrgencyStandard || u == UrgencyStat
}
