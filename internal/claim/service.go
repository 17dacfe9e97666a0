package claim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"leadmarket-platform/internal/audit"
	"leadmarket-platform/internal/directory"
	"leadmarket-platform/internal/leads"
	"leadmarket-platform/internal/notify"
	"leadmarket-platform/internal/payments"
	"leadmarket-platform/pkg/logger"
)

// Store opens the exclusive claim scope: the lead row and the provider row
// locked inside one transaction. fn returning an error rolls everything back.
//
// Lock order is lead first, then provider, so competing claims for one lead
// serialize on the lead row before touching anything else.
type Store interface {
	WithClaimLock(ctx context.Context, leadID, providerID string, fn func(ctx context.Context, tx Tx, l leads.Lead, p directory.Provider) error) error
}

// Tx is the transaction handle passed to the claim closure.
type Tx interface {
	// Finalize moves the lead to CLAIMED with the settlement references.
	// Fails with ErrAlreadyClaimed if the lead stopped being claimable.
	Finalize(ctx context.Context, leadID, providerID, gatewayTxnID string, amountCents int64, at time.Time) error
}

// ProviderDirectory is the subset of the provider repository the claim
// engine needs outside the locked transaction.
type ProviderDirectory interface {
	GetByID(ctx context.Context, id string) (directory.Provider, error)
	MarkTrialExpired(ctx context.Context, providerID string) error
}

// Result describes a settled claim.
type Result struct {
	Lead     leads.Lead
	Provider directory.Provider

	// ChargeAmountCents is what the provider actually paid. Zero for trial
	// claims.
	ChargeAmountCents int64
	IsTrial           bool
}

// Service is the claim engine. One provider wins a lead; the winner pays
// (or rides an active trial) inside the same transaction that flips the
// lead to CLAIMED.
type Service struct {
	store      Store
	providers  ProviderDirectory
	gateway    payments.Gateway
	auditor    *audit.Service
	dispatcher notify.Dispatcher
	guard      Guard
	clock      func() time.Time
}

func NewService(store Store, providers ProviderDirectory, gateway payments.Gateway, auditor *audit.Service, dispatcher notify.Dispatcher) *Service {
	if dispatcher == nil {
		dispatcher = notify.Nop{}
	}
	return &Service{
		store:      store,
		providers:  providers,
		gateway:    gateway,
		auditor:    auditor,
		dispatcher: dispatcher,
		clock:      time.Now,
	}
}

// SetGuard installs an optional pre-transaction duplicate-attempt guard.
func (s *Service) SetGuard(g Guard) { s.guard = g }

// ClaimExclusive attempts to win the lead for the provider.
//
// Exactly-once: at most one claim ever succeeds per lead, under any
// concurrency, enforced by the locked transaction. Losers observe
// ErrAlreadyClaimed. A payment decline aborts the whole claim; the lead
// stays claimable and the loser may retry after fixing their instrument.
func (s *Service) ClaimExclusive(ctx context.Context, leadID, providerID string) (Result, error) {
	log := logger.From(ctx)
	now := s.clock().UTC()

	// Trial bookkeeping runs before, and independent of, the claim
	// transaction: a lapsed trial must read EXPIRED afterwards even when the
	// claim itself fails or rolls back.
	pre, err := s.providers.GetByID(ctx, providerID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return Result{}, ErrProviderNotFound
		}
		return Result{}, err
	}
	if pre.TrialLapsedAt(now) {
		if err := s.providers.MarkTrialExpired(ctx, providerID); err != nil {
			return Result{}, fmt.Errorf("expiring lapsed trial: %w", err)
		}
		if err := s.auditor.LogTrialExpired(ctx, providerID); err != nil {
			log.Error("failed to audit trial expiry", "provider_id", providerID, "err", err)
		}
	}

	if s.guard != nil {
		release, ok, err := s.guard.Acquire(ctx, leadID, providerID)
		switch {
		case err != nil:
			// Guard outage must not take claiming down with it.
			log.Warn("claim guard unavailable", "lead_id", leadID, "err", err)
		case !ok:
			return Result{}, ErrClaimInProgress
		default:
			defer release()
		}
	}

	var res Result
	var chargedTxnID string
	var chargedCents int64

	err = s.store.WithClaimLock(ctx, leadID, providerID, func(ctx context.Context, tx Tx, l leads.Lead, p directory.Provider) error {
		if !l.Status.Claimable() {
			return ErrAlreadyClaimed
		}
		if !p.EligibleForClaim {
			return ErrNotEligible
		}

		var amount int64
		var txnID string
		switch {
		case p.TrialActiveAt(now):
			res.IsTrial = true
		case p.HasInstrument():
			amount = l.PriceCents
			charge, err := s.gateway.AuthorizeAndCapture(ctx, payments.ChargeRequest{
				CustomerRef:   p.BillingCustomerRef,
				InstrumentRef: p.PaymentMethodRef,
				AmountCents:   amount,
				LeadID:        l.ID,
				ProviderID:    p.ID,
			})
			if err != nil {
				if payments.IsDeclined(err) {
					return fmt.Errorf("%w: %w", ErrPaymentDeclined, err)
				}
				// Charge outcome unknown. Fail closed: the claim never
				// proceeds on a maybe-charge.
				log.Error("charge outcome unknown, aborting claim",
					"lead_id", l.ID, "provider_id", p.ID, "err", err)
				return fmt.Errorf("%w: %w", ErrPaymentDeclined, err)
			}
			txnID = charge.GatewayTxnID
			chargedTxnID = txnID
			chargedCents = amount
		default:
			return ErrNotEligible
		}

		if err := tx.Finalize(ctx, l.ID, p.ID, txnID, amount, now); err != nil {
			return err
		}

		l.Status = leads.StatusClaimed
		l.AssignedProviderID = p.ID
		at := now
		l.AssignedAt = &at
		l.ClaimTxnID = txnID
		l.ClaimAmountCents = amount
		l.UpdatedAt = now
		res.Lead = l
		res.Provider = p
		res.ChargeAmountCents = amount
		return nil
	})
	if err != nil {
		if chargedTxnID != "" {
			// Money moved but the claim did not commit. Leave a refund
			// handle for ops; this path is the one that must never be
			// silent.
			log.Error("claim failed after successful charge",
				"lead_id", leadID, "provider_id", providerID,
				"gateway_txn_id", chargedTxnID, "amount_cents", chargedCents,
				"err", err)
			if aerr := s.auditor.LogReconciliationRequired(ctx, leadID, providerID, chargedTxnID, chargedCents, err.Error()); aerr != nil {
				log.Error("failed to record reconciliation event",
					"lead_id", leadID, "gateway_txn_id", chargedTxnID, "err", aerr)
			}
		}
		return Result{}, err
	}

	if aerr := s.auditor.LogClaimSettled(ctx, leadID, providerID, res.Lead.ClaimTxnID, res.ChargeAmountCents); aerr != nil {
		log.Error("failed to audit settled claim", "lead_id", leadID, "err", aerr)
	}

	log.Info("lead claimed",
		"lead_id", leadID,
		"provider_id", providerID,
		"amount_cents", res.ChargeAmountCents,
		"trial", res.IsTrial,
	)

	d := s.dispatcher
	winner, won, amount := res.Provider, res.Lead, res.ChargeAmountCents
	notify.Dispatch(log, "provider_claimed_lead", func(ctx context.Context) error {
		return d.NotifyProviderOfLead(ctx, winner, won, amount)
	})
	return res, nil
}
