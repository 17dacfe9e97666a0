package routing

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"leadmarket-platform/internal/directory"
	"leadmarket-platform/internal/leads"
)

// MemoryStore implements Store over the in-memory repos. Useful for tests.
// A single mutex stands in for the row locks the SQL store takes.
type MemoryStore struct {
	mu        sync.Mutex
	Leads     *leads.MemoryRepo
	Providers *directory.MemoryRepo
}

func NewMemoryStore(l *leads.MemoryRepo, p *directory.MemoryRepo) *MemoryStore {
	return &MemoryStore{Leads: l, Providers: p}
}

func (s *MemoryStore) FindCandidate(ctx context.Context, zip, state, city string) (directory.Provider, bool, error) {
	all := s.Providers.All()
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})

	rank := func(p directory.Provider) int {
		for _, z := range p.Coverage.Zips {
			if z == zip {
				return 0
			}
		}
		for _, a := range p.Coverage.Areas {
			if a.State == state && (a.City == "" || a.City == city) {
				return 1
			}
		}
		if p.Coverage.Nationwide {
			return 2
		}
		return -1
	}

	best := directory.Provider{}
	bestRank := -1
	for _, p := range all {
		r := rank(p)
		if r < 0 {
			continue
		}
		if bestRank == -1 || r < bestRank {
			best = p
			bestRank = r
		}
	}
	if bestRank == -1 {
		return directory.Provider{}, false, nil
	}
	return best, true, nil
}

func (s *MemoryStore) Deliver(ctx context.Context, leadID, providerID string, at time.Time) (DeliverReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.Providers.GetByID(ctx, providerID)
	if err != nil {
		return DeliverReceipt{}, err
	}
	l, err := s.Leads.GetByID(ctx, leadID)
	if err != nil {
		return DeliverReceipt{}, err
	}
	if l.Status != leads.StatusOpen {
		return DeliverReceipt{}, fmt.Errorf("%w: %s", ErrLeadNotOpen, leadID)
	}

	var receipt DeliverReceipt
	if p.LeadCredits > 0 {
		p.LeadCredits--
		receipt.CreditDebited = true
		receipt.CreditsRemaining = p.LeadCredits
		s.Providers.Put(p)
	}

	l.Status = leads.StatusDelivered
	l.AssignedProviderID = providerID
	assignedAt := at
	l.AssignedAt = &assignedAt
	l.UpdatedAt = at
	s.Leads.Put(l)
	return receipt, nil
}
