package reporting

import (
	"context"
	"sync"
	"time"

	"leadmarket-platform/internal/directory"
	"leadmarket-platform/internal/leads"
)

// MemoryRepo is a simple in-memory reporting repository for tests and early
// development.

type MemoryRepo struct {
	mu sync.Mutex

	Leads   []leads.Lead
	Ledgers []directory.CreditLedger
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) ListLeads(ctx context.Context, from, to time.Time, state string) ([]leads.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]leads.Lead, 0)
	for _, l := range r.Leads {
		if !inRange(l.CreatedAt, from, to) {
			continue
		}
		if state != "" && l.State != state {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (r *MemoryRepo) ListLeadsByProvider(ctx context.Context, providerID string, from, to time.Time) ([]leads.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]leads.Lead, 0)
	for _, l := range r.Leads {
		if l.AssignedProviderID != providerID {
			continue
		}
		if !inRange(l.CreatedAt, from, to) {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (r *MemoryRepo) ListCreditLedger(ctx context.Context, providerID string, from, to time.Time) ([]directory.CreditLedger, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]directory.CreditLedger, 0)
	for _, e := range r.Ledgers {
		if e.ProviderID != providerID {
			continue
		}
		if !inRange(e.CreatedAt, from, to) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func inRange(t, from, to time.Time) bool {
	if t.IsZero() {
		return true
	}
	return !t.Before(from) && t.Before(to)
}
