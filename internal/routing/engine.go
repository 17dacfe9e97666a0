package routing

import (
	"context"
	"errors"
	"time"

	"leadmarket-platform/internal/directory"
	"leadmarket-platform/internal/leads"
	"leadmarket-platform/internal/notify"
	"leadmarket-platform/pkg/logger"
)

// Engine auto-assigns a freshly created lead to at most one provider.
//
// Selection order:
//  1) explicit zip coverage match
//  2) state/city coverage match
//  3) nationwide providers
//
// Ties within a bucket break on oldest provider first. The ordering is
// deterministic for a fixed directory snapshot: the same lead always routes
// to the same provider or always comes back unserved.
//
// Delivery semantics:
// - candidate with credit: lead DELIVERED, credit decremented by exactly one
//   (with a ledger entry), provider notified of the new lead
// - candidate without credit: lead still DELIVERED, no decrement, provider
//   notified that a top-up is required. Once delivered, that provider owns
//   the opportunity even without credit.
// - no candidate: lead stays OPEN, the operations channel is alerted, and
//   the lead remains eligible for the race-to-claim indefinitely.
type Engine struct {
	store      Store
	dispatcher notify.Dispatcher
	clock      func() time.Time
}

// Store is the persistence contract for routing. Deliver must be atomic:
// the lead transition, the conditional credit decrement and the ledger entry
// commit together or not at all.
type Store interface {
	FindCandidate(ctx context.Context, zip, state, city string) (directory.Provider, bool, error)
	Deliver(ctx context.Context, leadID, providerID string, at time.Time) (DeliverReceipt, error)
}

type DeliverReceipt struct {
	CreditDebited    bool
	CreditsRemaining int64
}

// Outcome is the routing result reported back to intake.
type Outcome string

const (
	OutcomeDelivered      Outcome = "delivered"
	OutcomePendingCredits Outcome = "pending_credits"
	OutcomeUnserved       Outcome = "unserved"
)

type Assignment struct {
	Outcome    Outcome
	ProviderID string
}

var errNotConfigured = errors.New("routing: store not configured")

func NewEngine(store Store, dispatcher notify.Dispatcher) *Engine {
	if dispatcher == nil {
		dispatcher = notify.Nop{}
	}
	return &Engine{store: store, dispatcher: dispatcher, clock: time.Now}
}

// AutoAssign routes a newly created lead. The lead row already exists and is
// OPEN; a routing failure leaves it OPEN and discoverable.
func (e *Engine) AutoAssign(ctx context.Context, lead leads.Lead) (Assignment, error) {
	if e.store == nil {
		return Assignment{}, errNotConfigured
	}
	log := logger.From(ctx)

	candidate, ok, err := e.store.FindCandidate(ctx, lead.Zip, lead.State, lead.City)
	if err != nil {
		return Assignment{}, err
	}
	if !ok {
		d := e.dispatcher
		notify.Dispatch(log, "admin_unserved_lead", func(ctx context.Context) error {
			return d.NotifyAdminUnservedLead(ctx, lead)
		})
		return Assignment{Outcome: OutcomeUnserved}, nil
	}

	receipt, err := e.store.Deliver(ctx, lead.ID, candidate.ID, e.clock().UTC())
	if err != nil {
		return Assignment{}, err
	}

	d := e.dispatcher
	if receipt.CreditDebited {
		log.Info("lead delivered",
			"lead_id", lead.ID,
			"provider_id", candidate.ID,
			"credits_remaining", receipt.CreditsRemaining,
		)
		notify.Dispatch(log, "provider_new_lead", func(ctx context.Context) error {
			return d.NotifyProviderOfLead(ctx, candidate, lead, 0)
		})
		return Assignment{Outcome: OutcomeDelivered, ProviderID: candidate.ID}, nil
	}

	log.Info("lead delivered without credit",
		"lead_id", lead.ID,
		"provider_id", candidate.ID,
	)
	notify.Dispatch(log, "provider_low_credits", func(ctx context.Context) error {
		return d.NotifyProviderLowCredits(ctx, candidate, lead)
	})
	return Assignment{Outcome: OutcomePendingCredits, ProviderID: candidate.ID}, nil
}
