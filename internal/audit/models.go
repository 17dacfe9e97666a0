package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - Reconciliation events must carry gateway_txn_id, lead_id, provider_id
//   and amount_cents; they are the paper trail for manual refunds when a
//   charge succeeded but the claim failed to commit.
// - Actor and ip capture are best-effort; do not block critical flows on
//   audit failures.
//
// Storage recommendation (Postgres):
// - Table audit_events with an INSERT-only policy.
// - Optional: trigger to prevent UPDATE/DELETE.
// - Optional: partition by time for retention.

type Event struct {
	ID string `json:"id" db:"id"`

	// Type indicates the business category of the audit record.
	Type EventType `json:"type" db:"type"`

	// Target identifiers (optional, depending on the event type).
	LeadID     string `json:"lead_id,omitempty" db:"lead_id"`
	ProviderID string `json:"provider_id,omitempty" db:"provider_id"`

	// Settlement detail for claim and reconciliation events.
	GatewayTxnID string `json:"gateway_txn_id,omitempty" db:"gateway_txn_id"`
	AmountCents  int64  `json:"amount_cents,omitempty" db:"amount_cents"`

	// ActorUserID is the authenticated user causing the event (if applicable).
	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	ActorRole   string `json:"actor_role,omitempty" db:"actor_role"`

	// IPAddress should capture the original client IP when available.
	IPAddress string `json:"ip_address,omitempty" db:"ip_address"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	// EventTypeClaimSettled records a finished claim (paid or trial).
	EventTypeClaimSettled EventType = "claim_settled"
	// EventTypeReconciliationRequired records a charge whose claim did not
	// commit. Ops must refund or manually complete using the gateway txn id.
	EventTypeReconciliationRequired EventType = "reconciliation_required"
	// EventTypeTrialExpired records a trial discovered lapsed at claim time.
	EventTypeTrialExpired EventType = "trial_expired"
	// EventTypeLeadReopened records the explicit administrative reversion of
	// a lead to OPEN.
	EventTypeLeadReopened EventType = "lead_reopened"
	// EventTypeCreditsGranted records an admin credit grant.
	EventTypeCreditsGranted EventType = "credits_granted"
)
