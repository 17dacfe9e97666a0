package directory

import (
	"context"
	"sync"
)

// MemoryRepo is an in-memory provider store useful for tests.
// It is not intended for production use.
type MemoryRepo struct {
	mu sync.Mutex
	m  map[string]Provider
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{m: make(map[string]Provider)} }

func (r *MemoryRepo) Put(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[p.ID] = p
}

func (r *MemoryRepo) GetByID(ctx context.Context, id string) (Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.m[id]
	if !ok {
		return Provider{}, ErrNotFound
	}
	return p, nil
}

func (r *MemoryRepo) GrantCredits(ctx context.Context, providerID string, n int64, reason CreditReason, actor string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.m[providerID]
	if !ok {
		return 0, ErrNotFound
	}
	p.LeadCredits += n
	r.m[providerID] = p
	return p.LeadCredits, nil
}

func (r *MemoryRepo) MarkTrialExpired(ctx context.Context, providerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.m[providerID]
	if !ok {
		return ErrNotFound
	}
	if p.Trial.Status == TrialActive {
		p.Trial.Status = TrialExpired
		r.m[providerID] = p
	}
	return nil
}

// All returns a snapshot of every provider, in insertion-independent map
// order. Callers needing determinism must sort.
func (r *MemoryRepo) All() []Provider {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Provider, 0, len(r.m))
	for _, p := range r.m {
		out = append(out, p)
	}
	return out
}
