package reporting

import "time"

// Common filtering inputs.

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// FunnelSummaryRequest requests aggregated lead funnel metrics.

type FunnelSummaryRequest struct {
	Range TimeRange `json:"range"`
	// State optionally narrows the funnel to one state.
	State string `json:"state,omitempty"`
}

type FunnelSummary struct {
	State string `json:"state,omitempty"`

	TotalLeads     int `json:"total_leads"`
	OpenLeads      int `json:"open_leads"`
	DeliveredLeads int `json:"delivered_leads"`
	ClaimedLeads   int `json:"claimed_leads"`

	StatLeads     int `json:"stat_leads"`
	StandardLeads int `json:"standard_leads"`

	TrialClaims int `json:"trial_claims"`
	PaidClaims  int `json:"paid_claims"`

	// ClaimRate is claimed / total for the window.
	ClaimRate float64 `json:"claim_rate"`
}

// RevenueSummaryRequest requests claim revenue for a window. Revenue is
// derived from immutable claim settlement fields on the lead rows.

type RevenueSummaryRequest struct {
	Range TimeRange `json:"range"`
}

type RevenueSummary struct {
	GrossRevenueCents int64 `json:"gross_revenue_cents"`

	PaidClaims  int `json:"paid_claims"`
	TrialClaims int `json:"trial_claims"`

	AverageClaimCents int64 `json:"average_claim_cents"`
}

// ProviderActivityRequest captures one provider's funnel and spend.

type ProviderActivityRequest struct {
	ProviderID string    `json:"provider_id"`
	Range      TimeRange `json:"range"`
}

type ProviderActivity struct {
	ProviderID string `json:"provider_id"`

	LeadsAssigned int `json:"leads_assigned"`
	LeadsClaimed  int `json:"leads_claimed"`

	SpendCents int64 `json:"spend_cents"`

	CreditsUsed    int64 `json:"credits_used"`
	CreditsGranted int64 `json:"credits_granted"`
}
