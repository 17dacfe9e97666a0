package leads

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory lead store useful for tests.
// It is not intended for production use.
type MemoryRepo struct {
	mu sync.Mutex
	m  map[string]Lead
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{m: make(map[string]Lead)} }

func (r *MemoryRepo) Create(ctx context.Context, l Lead) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[l.ID] = l
	return nil
}

func (r *MemoryRepo) GetByID(ctx context.Context, id string) (Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.m[id]
	if !ok {
		return Lead{}, ErrNotFound
	}
	return l, nil
}

// Put replaces a lead unconditionally. Test setup helper.
func (r *MemoryRepo) Put(l Lead) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[l.ID] = l
}

func (r *MemoryRepo) ListOpenByZips(ctx context.Context, zips []string, limit int) ([]Lead, error) {
	zipSet := make(map[string]struct{}, len(zips))
	for _, z := range zips {
		zipSet[z] = struct{}{}
	}
	return r.listOpen(func(l Lead) bool {
		_, ok := zipSet[l.Zip]
		return ok
	}, limit), nil
}

func (r *MemoryRepo) ListOpen(ctx context.Context, limit int) ([]Lead, error) {
	return r.listOpen(func(Lead) bool { return true }, limit), nil
}

func (r *MemoryRepo) listOpen(match func(Lead) bool, limit int) []Lead {
	if limit <= 0 {
		limit = 100
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Lead
	for _, l := range r.m {
		if l.Status == StatusOpen && match(l) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r *MemoryRepo) UpdateOutcome(ctx context.Context, leadID, providerID string, p OutcomePatch, now time.Time) (Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.m[leadID]
	if !ok {
		return Lead{}, ErrNotFound
	}
	if l.AssignedProviderID != providerID {
		return Lead{}, ErrNotAssignee
	}
	if p.FirstContactAt != nil {
		l.Outcome.FirstContactAt = p.FirstContactAt
	}
	if p.LastContactAt != nil {
		l.Outcome.LastContactAt = p.LastContactAt
	}
	if p.CallAttempts != nil {
		l.Outcome.CallAttempts = *p.CallAttempts
	}
	if p.Code != nil {
		l.Outcome.Code = *p.Code
	}
	if p.CompletedAt != nil {
		l.Outcome.CompletedAt = p.CompletedAt
	}
	l.UpdatedAt = now
	r.m[leadID] = l
	return l, nil
}

func (r *MemoryRepo) Reopen(ctx context.Context, leadID string, now time.Time) (Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.m[leadID]
	if !ok {
		return Lead{}, ErrNotFound
	}
	l.Status = StatusOpen
	l.AssignedProviderID = ""
	l.AssignedAt = nil
	l.UpdatedAt = now
	r.m[leadID] = l
	return l, nil
}
