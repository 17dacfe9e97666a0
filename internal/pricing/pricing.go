package pricing

import "leadmarket-platform/internal/leads"

// Lead prices are a pure function of the urgency tier. The same function is
// used at intake (to stamp the lead's price) and at claim time (to compute
// the charge), so the two can never disagree.
//
// Amounts are integer cents. STAT must never price below STANDARD.

const (
	standardCents int64 = 2500
	statCents     int64 = 4500
)

// PriceFor returns the price in cents for a lead of the given urgency.
// Unknown urgencies fall back to the STANDARD tier; intake validation
// rejects them before a lead is ever created.
func PriceFor(u leads.Urgency) int64 {
	switch u {
	case leads.UrgencyStat:
		return statCents
	case leads.UrgencyStandard:
		return standardCents
	default:
		return standardCents
	}
}
