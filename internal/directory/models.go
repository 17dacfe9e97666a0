package directory

import "time"

// Provider is a service vendor able to receive routed leads and compete for
// open ones.
//
// Claim eligibility invariant: a provider may only be the target of a claim
// when EligibleForClaim is true AND it either holds a complete payment
// instrument reference or has an active, unexpired trial.
//
// LeadCredits is decremented only by the routing engine, via a conditional
// decrement inside a transaction; every decrement writes a CreditLedger row.
type Provider struct {
	ID string `json:"id" db:"id"`

	Name  string `json:"name" db:"name"`
	Email string `json:"email" db:"email"`
	Phone string `json:"phone,omitempty" db:"phone"`

	Coverage Coverage `json:"coverage"`

	LeadCredits      int64 `json:"lead_credits" db:"lead_credits"`
	EligibleForClaim bool  `json:"eligible_for_claim" db:"eligible_for_claim"`

	Trial Trial `json:"trial"`

	// Billing references into the payment gateway. Both are required together
	// for a usable instrument.
	BillingCustomerRef string `json:"-" db:"billing_customer_ref"`
	PaymentMethodRef   string `json:"-" db:"payment_method_ref"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Coverage is the set of areas a provider has declared it serves. An explicit
// zip list is authoritative when present; state/city rows and the nationwide
// flag widen the match progressively.
type Coverage struct {
	Zips       []string `json:"zips,omitempty"`
	Areas      []Area   `json:"areas,omitempty"`
	Nationwide bool     `json:"nationwide"`
}

type Area struct {
	State string `json:"state"`
	City  string `json:"city,omitempty"`
}

// Trial is a time-boxed window in which a provider may claim leads at zero
// charge, without a stored payment instrument.
type Trial struct {
	Status    TrialStatus `json:"status" db:"trial_status"`
	StartedAt *time.Time  `json:"started_at,omitempty" db:"trial_started_at"`
	ExpiresAt *time.Time  `json:"expires_at,omitempty" db:"trial_expires_at"`
}

type TrialStatus string

const (
	TrialNone    TrialStatus = "NONE"
	TrialActive  TrialStatus = "ACTIVE"
	TrialExpired TrialStatus = "EXPIRED"
)

// HasInstrument reports whether the provider holds a complete payment
// instrument reference.
func (p Provider) HasInstrument() bool {
	return p.BillingCustomerRef != "" && p.PaymentMethodRef != ""
}

// TrialActiveAt reports whether the trial entitles zero-charge claims at the
// given instant.
func (p Provider) TrialActiveAt(now time.Time) bool {
	return p.Trial.Status == TrialActive && p.Trial.ExpiresAt != nil && p.Trial.ExpiresAt.After(now)
}

// TrialLapsedAt reports whether the trial is marked ACTIVE but its expiry has
// passed, meaning the stored status must be flipped to EXPIRED.
func (p Provider) TrialLapsedAt(now time.Time) bool {
	return p.Trial.Status == TrialActive && p.Trial.ExpiresAt != nil && !p.Trial.ExpiresAt.After(now)
}

// Covers reports whether the provider's declared coverage matches a location.
// Zip list wins when present; otherwise state/city rows, then nationwide.
func (p Provider) Covers(zip, state, city string) bool {
	for _, z := range p.Coverage.Zips {
		if z == zip {
			return true
		}
	}
	for _, a := range p.Coverage.Areas {
		if a.State != state {
			continue
		}
		if a.City == "" || a.City == city {
			return true
		}
	}
	return p.Coverage.Nationwide
}

// CreditLedger is an immutable append-only record of lead-credit movement.
// Any change to a provider's LeadCredits must have a corresponding entry.
type CreditLedger struct {
	ID         string `json:"id" db:"id"`
	ProviderID string `json:"provider_id" db:"provider_id"`

	// Delta is signed: grants positive, routing debits negative.
	Delta int64 `json:"delta" db:"delta"`

	Reason CreditReason `json:"reason" db:"reason"`

	// LeadID links routing debits to the delivered lead.
	LeadID string `json:"lead_id,omitempty" db:"lead_id"`
	// Actor records who granted credits for admin grants.
	Actor string `json:"actor,omitempty" db:"actor"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type CreditReason string

const (
	CreditReasonRoutedLead CreditReason = "routed_lead"
	CreditReasonAdminGrant CreditReason = "admin_grant"
	CreditReasonPurchase   CreditReason = "purchase"
)
