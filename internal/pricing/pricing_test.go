package pricing

import (
	"testing"

	"leadmarket-platform/internal/leads"
)

func TestPriceFor_Deterministic(t *testing.T) {
	for _, u := range []leads.Urgency{leads.UrgencyStandard, leads.UrgencyStat} {
		a := PriceFor(u)
		b := PriceFor(u)
		if a != b {
			t.Fatalf("price for %s not stable: %d vs %d", u, a, b)
		}
		if a <= 0 {
			t.Fatalf("price for %s must be positive, got %d", u, a)
		}
	}
}

func TestPriceFor_StatAtLeastStandard(t *testing.T) {
	if PriceFor(leads.UrgencyStat) < PriceFor(leads.UrgencyStandard) {
		t.Fatalf("STAT must not price below STANDARD")
	}
}

func TestPriceFor_UnknownFallsBackToStandard(t *testing.T) {
	if got := PriceFor(leads.Urgency("BOGUS")); got != PriceFor(leads.UrgencyStandard) {
		t.Fatalf("unknown urgency should fall back to STANDARD, got %d", got)
	}
}
