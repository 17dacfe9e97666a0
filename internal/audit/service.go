package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.
type Repository interface {
	Insert(ctx context.Context, e Event) error
	ListByLead(ctx context.Context, leadID string) ([]Event, error)
	ListByType(ctx context.Context, t EventType, limit int) ([]Event, error)
}

var ErrInvalidEvent = errors.New("audit: invalid event")

// Service appends audit events. Callers decide whether a failed append is
// fatal; the settlement path treats reconciliation events as fatal, everything
// else is best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

// Append stamps id and created_at and persists the event.
func (s *Service) Append(ctx context.Context, e Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Insert(ctx, e)
}

// LogClaimSettled records a finished claim. amountCents and gatewayTxnID are
// zero/empty for trial claims.
func (s *Service) LogClaimSettled(ctx context.Context, leadID, providerID, gatewayTxnID string, amountCents int64) error {
	return s.Append(ctx, Event{
		Type:         EventTypeClaimSettled,
		LeadID:       leadID,
		ProviderID:   providerID,
		GatewayTxnID: gatewayTxnID,
		AmountCents:  amountCents,
		Message:      "claim settled",
	})
}

// LogReconciliationRequired records a charge whose claim failed to commit.
// The gateway txn id is the handle ops uses to refund.
func (s *Service) LogReconciliationRequired(ctx context.Context, leadID, providerID, gatewayTxnID string, amountCents int64, cause string) error {
	return s.Append(ctx, Event{
		Type:         EventTypeReconciliationRequired,
		LeadID:       leadID,
		ProviderID:   providerID,
		GatewayTxnID: gatewayTxnID,
		AmountCents:  amountCents,
		Message:      cause,
	})
}

// LogTrialExpired records a trial found lapsed during a claim attempt.
func (s *Service) LogTrialExpired(ctx context.Context, providerID string) error {
	return s.Append(ctx, Event{
		Type:       EventTypeTrialExpired,
		ProviderID: providerID,
		Message:    "trial lapsed at claim time",
	})
}

// LogLeadReopened records an administrative reversion of a lead to OPEN.
func (s *Service) LogLeadReopened(ctx context.Context, leadID, actorUserID, actorRole, ip string) error {
	return s.Append(ctx, Event{
		Type:        EventTypeLeadReopened,
		LeadID:      leadID,
		ActorUserID: actorUserID,
		ActorRole:   actorRole,
		IPAddress:   ip,
		Message:     "lead reopened by admin",
	})
}

// LogCreditsGranted records an admin credit grant. The delta rides in
// amount_cents for lack of a dedicated column.
func (s *Service) LogCreditsGranted(ctx context.Context, providerID string, delta int64, actorUserID, actorRole string) error {
	return s.Append(ctx, Event{
		Type:        EventTypeCreditsGranted,
		ProviderID:  providerID,
		AmountCents: delta,
		ActorUserID: actorUserID,
		ActorRole:   actorRole,
		Message:     "lead credits granted",
	})
}
