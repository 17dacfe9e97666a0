package claim

import (
	"context"
	"errors"
	"sync"
	"time"

	"leadmarket-platform/internal/directory"
	"leadmarket-platform/internal/leads"
)

// MemoryStore implements Store over the in-memory repos. A single mutex
// serializes whole claim attempts the way the SQL store's row locks do, so
// the exactly-once property holds under concurrent test load.
type MemoryStore struct {
	mu        sync.Mutex
	Leads     *leads.MemoryRepo
	Providers *directory.MemoryRepo

	// FinalizeErr, when set, fails every Finalize. Simulates a commit
	// failure after the gateway charge.
	FinalizeErr error
}

func NewMemoryStore(l *leads.MemoryRepo, p *directory.MemoryRepo) *MemoryStore {
	return &MemoryStore{Leads: l, Providers: p}
}

func (s *MemoryStore) WithClaimLock(ctx context.Context, leadID, providerID string, fn func(ctx context.Context, tx Tx, l leads.Lead, p directory.Provider) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, err := s.Leads.GetByID(ctx, leadID)
	if err != nil {
		if errors.Is(err, leads.ErrNotFound) {
			return ErrLeadNotFound
		}
		return err
	}
	p, err := s.Providers.GetByID(ctx, providerID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return ErrProviderNotFound
		}
		return err
	}

	t := &memTx{store: s}
	if err := fn(ctx, t, l, p); err != nil {
		// Staged writes are discarded, mirroring a rollback.
		return err
	}
	if t.staged != nil {
		s.Leads.Put(*t.staged)
	}
	return nil
}

type memTx struct {
	store  *MemoryStore
	staged *leads.Lead
}

func (t *memTx) Finalize(ctx context.Context, leadID, providerID, gatewayTxnID string, amountCents int64, at time.Time) error {
	if t.store.FinalizeErr != nil {
		return t.store.FinalizeErr
	}
	l, err := t.store.Leads.GetByID(ctx, leadID)
	if err != nil {
		if errors.Is(err, leads.ErrNotFound) {
			return ErrLeadNotFound
		}
		return err
	}
	if !l.Status.Claimable() {
		return ErrAlreadyClaimed
	}
	l.Status = leads.StatusClaimed
	l.AssignedProviderID = providerID
	assignedAt := at
	l.AssignedAt = &assignedAt
	l.ClaimTxnID = gatewayTxnID
	l.ClaimAmountCents = amountCents
	l.UpdatedAt = at
	t.staged = &l
	return nil
}
