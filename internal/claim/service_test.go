package claim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"leadmarket-platform/internal/audit"
	"leadmarket-platform/internal/directory"
	"leadmarket-platform/internal/leads"
	"leadmarket-platform/internal/notify"
	"leadmarket-platform/internal/payments"
)

func fixedClock() time.Time {
	return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
}

type stubGateway struct {
	mu    sync.Mutex
	calls int
	reqs  []payments.ChargeRequest
	err   error
}

func (g *stubGateway) Name() string { return "stub" }

func (g *stubGateway) AuthorizeAndCapture(ctx context.Context, req payments.ChargeRequest) (payments.ChargeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.reqs = append(g.reqs, req)
	if g.err != nil {
		return payments.ChargeResult{}, g.err
	}
	return payments.ChargeResult{GatewayTxnID: fmt.Sprintf("pi_%03d", g.calls)}, nil
}

func (g *stubGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type fixture struct {
	svc       *Service
	store     *MemoryStore
	gateway   *stubGateway
	auditRepo *audit.MemoryRepo
	rec       *notify.Recorder
}

func newFixture() *fixture {
	store := NewMemoryStore(leads.NewMemoryRepo(), directory.NewMemoryRepo())
	gw := &stubGateway{}
	auditRepo := audit.NewMemoryRepo()
	rec := notify.NewRecorder()
	svc := NewService(store, store.Providers, gw, audit.NewService(auditRepo), rec)
	svc.clock = fixedClock
	return &fixture{svc: svc, store: store, gateway: gw, auditRepo: auditRepo, rec: rec}
}

func openLead(id string, priceCents int64) leads.Lead {
	return leads.Lead{
		ID:         id,
		Name:       "Pat Doe",
		Phone:      "5551230000",
		State:      "CA",
		Zip:        "90210",
		Urgency:    leads.UrgencyStat,
		PriceCents: priceCents,
		Status:     leads.StatusOpen,
		CreatedAt:  fixedClock().Add(-time.Hour),
	}
}

func paidProvider(id string) directory.Provider {
	return directory.Provider{
		ID:                 id,
		Name:               "Acme Home Care",
		Email:              "ops@acme.test",
		EligibleForClaim:   true,
		BillingCustomerRef: "cus_" + id,
		PaymentMethodRef:   "pm_" + id,
	}
}

func trialProvider(id string, expires time.Time) directory.Provider {
	exp := expires
	start := expires.Add(-14 * 24 * time.Hour)
	return directory.Provider{
		ID:               id,
		Name:             "Fresh Start Care",
		Email:            "ops@fresh.test",
		EligibleForClaim: true,
		Trial:            directory.Trial{Status: directory.TrialActive, StartedAt: &start, ExpiresAt: &exp},
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestClaimExclusive_PaidClaim(t *testing.T) {
	f := newFixture()
	f.store.Providers.Put(paidProvider("prov-1"))
	f.store.Leads.Put(openLead("lead-1", 4500))

	res, err := f.svc.ClaimExclusive(context.Background(), "lead-1", "prov-1")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.IsTrial {
		t.Fatalf("paid claim reported as trial")
	}
	if res.ChargeAmountCents != 4500 {
		t.Fatalf("expected charge 4500, got %d", res.ChargeAmountCents)
	}
	if res.Lead.Status != leads.StatusClaimed || res.Lead.ClaimTxnID == "" {
		t.Fatalf("expected CLAIMED with txn id, got %+v", res.Lead)
	}

	got, _ := f.store.Leads.GetByID(context.Background(), "lead-1")
	if got.Status != leads.StatusClaimed || got.AssignedProviderID != "prov-1" {
		t.Fatalf("claim not persisted: %+v", got)
	}
	if got.ClaimAmountCents != 4500 {
		t.Fatalf("expected persisted amount 4500, got %d", got.ClaimAmountCents)
	}

	if f.gateway.callCount() != 1 {
		t.Fatalf("expected exactly one charge, got %d", f.gateway.callCount())
	}
	req := f.gateway.reqs[0]
	if req.AmountCents != 4500 || req.LeadID != "lead-1" || req.CustomerRef != "cus_prov-1" {
		t.Fatalf("unexpected charge request: %+v", req)
	}

	settled, _ := f.auditRepo.ListByType(context.Background(), audit.EventTypeClaimSettled, 10)
	if len(settled) != 1 || settled[0].AmountCents != 4500 {
		t.Fatalf("expected one settled audit event, got %+v", settled)
	}

	waitFor(t, func() bool {
		n, _, _ := f.rec.Counts()
		return n == 1
	})
	if f.rec.ProviderLeads[0].ChargeCents != 4500 {
		t.Fatalf("notification must carry the charge amount")
	}
}

func TestClaimExclusive_ExactlyOneWinner(t *testing.T) {
	f := newFixture()
	const n = 25
	for i := 0; i < n; i++ {
		f.store.Providers.Put(paidProvider(fmt.Sprintf("prov-%02d", i)))
	}
	f.store.Leads.Put(openLead("lead-1", 2500))

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.ClaimExclusive(context.Background(), "lead-1", fmt.Sprintf("prov-%02d", i))
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, ErrAlreadyClaimed):
		default:
			t.Fatalf("unexpected err: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
	if f.gateway.callCount() != 1 {
		t.Fatalf("losers must never be charged: %d charges", f.gateway.callCount())
	}

	got, _ := f.store.Leads.GetByID(context.Background(), "lead-1")
	if got.Status != leads.StatusClaimed {
		t.Fatalf("expected CLAIMED, got %s", got.Status)
	}
}

func TestClaimExclusive_DeclineLeavesLeadClaimable(t *testing.T) {
	f := newFixture()
	f.gateway.err = &payments.DeclinedError{Code: "insufficient_funds", Reason: "card declined"}
	f.store.Providers.Put(paidProvider("prov-1"))
	f.store.Leads.Put(openLead("lead-1", 4500))

	_, err := f.svc.ClaimExclusive(context.Background(), "lead-1", "prov-1")
	if !errors.Is(err, ErrPaymentDeclined) {
		t.Fatalf("expected ErrPaymentDeclined, got %v", err)
	}
	var d *payments.DeclinedError
	if !errors.As(err, &d) || d.Code != "insufficient_funds" {
		t.Fatalf("decline detail must survive wrapping, got %v", err)
	}

	got, _ := f.store.Leads.GetByID(context.Background(), "lead-1")
	if got.Status != leads.StatusOpen || got.AssignedProviderID != "" || got.ClaimTxnID != "" {
		t.Fatalf("declined claim must leave the lead untouched: %+v", got)
	}

	// Retry after the provider fixes their card.
	f.gateway.err = nil
	if _, err := f.svc.ClaimExclusive(context.Background(), "lead-1", "prov-1"); err != nil {
		t.Fatalf("retry after decline should succeed: %v", err)
	}
}

func TestClaimExclusive_GatewayOutageFailsClosed(t *testing.T) {
	f := newFixture()
	f.gateway.err = errors.New("connection reset")
	f.store.Providers.Put(paidProvider("prov-1"))
	f.store.Leads.Put(openLead("lead-1", 4500))

	_, err := f.svc.ClaimExclusive(context.Background(), "lead-1", "prov-1")
	if !errors.Is(err, ErrPaymentDeclined) {
		t.Fatalf("unknown charge outcome must fail closed, got %v", err)
	}
	got, _ := f.store.Leads.GetByID(context.Background(), "lead-1")
	if got.Status != leads.StatusOpen {
		t.Fatalf("lead must stay claimable, got %s", got.Status)
	}
}

func TestClaimExclusive_TrialSkipsGateway(t *testing.T) {
	f := newFixture()
	f.store.Providers.Put(trialProvider("prov-1", fixedClock().Add(24*time.Hour)))
	f.store.Leads.Put(openLead("lead-1", 4500))

	res, err := f.svc.ClaimExclusive(context.Background(), "lead-1", "prov-1")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !res.IsTrial || res.ChargeAmountCents != 0 {
		t.Fatalf("expected free trial claim, got %+v", res)
	}
	if f.gateway.callCount() != 0 {
		t.Fatalf("trial claim must never touch the gateway")
	}

	got, _ := f.store.Leads.GetByID(context.Background(), "lead-1")
	if got.Status != leads.StatusClaimed || got.ClaimTxnID != "" || got.ClaimAmountCents != 0 {
		t.Fatalf("unexpected trial settlement: %+v", got)
	}
}

func TestClaimExclusive_LapsedTrialWithoutInstrument(t *testing.T) {
	f := newFixture()
	f.store.Providers.Put(trialProvider("prov-1", fixedClock().Add(-time.Minute)))
	f.store.Leads.Put(openLead("lead-1", 4500))

	_, err := f.svc.ClaimExclusive(context.Background(), "lead-1", "prov-1")
	if !errors.Is(err, ErrNotEligible) {
		t.Fatalf("expected ErrNotEligible, got %v", err)
	}

	// The trial flip persists even though the claim failed.
	p, _ := f.store.Providers.GetByID(context.Background(), "prov-1")
	if p.Trial.Status != directory.TrialExpired {
		t.Fatalf("lapsed trial must read EXPIRED after a failed claim, got %s", p.Trial.Status)
	}
	evs, _ := f.auditRepo.ListByType(context.Background(), audit.EventTypeTrialExpired, 10)
	if len(evs) != 1 {
		t.Fatalf("expected trial expiry audit event")
	}
}

func TestClaimExclusive_LapsedTrialFallsBackToInstrument(t *testing.T) {
	f := newFixture()
	p := trialProvider("prov-1", fixedClock().Add(-time.Minute))
	p.BillingCustomerRef = "cus_prov-1"
	p.PaymentMethodRef = "pm_prov-1"
	f.store.Providers.Put(p)
	f.store.Leads.Put(openLead("lead-1", 2500))

	res, err := f.svc.ClaimExclusive(context.Background(), "lead-1", "prov-1")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.IsTrial || res.ChargeAmountCents != 2500 {
		t.Fatalf("lapsed trial with instrument must pay full price, got %+v", res)
	}
}

func TestClaimExclusive_NotEligible(t *testing.T) {
	f := newFixture()
	p := paidProvider("prov-1")
	p.EligibleForClaim = false
	f.store.Providers.Put(p)
	f.store.Leads.Put(openLead("lead-1", 4500))

	if _, err := f.svc.ClaimExclusive(context.Background(), "lead-1", "prov-1"); !errors.Is(err, ErrNotEligible) {
		t.Fatalf("expected ErrNotEligible, got %v", err)
	}
	if f.gateway.callCount() != 0 {
		t.Fatalf("ineligible provider must never be charged")
	}
}

func TestClaimExclusive_NotFound(t *testing.T) {
	f := newFixture()
	f.store.Providers.Put(paidProvider("prov-1"))

	if _, err := f.svc.ClaimExclusive(context.Background(), "lead-x", "prov-1"); !errors.Is(err, ErrLeadNotFound) {
		t.Fatalf("expected ErrLeadNotFound, got %v", err)
	}
	if _, err := f.svc.ClaimExclusive(context.Background(), "lead-x", "prov-x"); !errors.Is(err, ErrProviderNotFound) {
		t.Fatalf("expected ErrProviderNotFound, got %v", err)
	}
}

func TestClaimExclusive_DeliveredLeadStillClaimable(t *testing.T) {
	f := newFixture()
	f.store.Providers.Put(paidProvider("prov-1"))
	f.store.Providers.Put(paidProvider("prov-2"))

	l := openLead("lead-1", 4500)
	l.Status = leads.StatusDelivered
	l.AssignedProviderID = "prov-1"
	at := fixedClock().Add(-30 * time.Minute)
	l.AssignedAt = &at
	f.store.Leads.Put(l)

	res, err := f.svc.ClaimExclusive(context.Background(), "lead-1", "prov-2")
	if err != nil {
		t.Fatalf("DELIVERED lead must remain claimable: %v", err)
	}
	if res.Lead.AssignedProviderID != "prov-2" {
		t.Fatalf("claim must reassign the lead, got %q", res.Lead.AssignedProviderID)
	}
}

func TestClaimExclusive_CommitFailureAfterChargeRecordsReconciliation(t *testing.T) {
	f := newFixture()
	f.store.FinalizeErr = errors.New("write failed")
	f.store.Providers.Put(paidProvider("prov-1"))
	f.store.Leads.Put(openLead("lead-1", 4500))

	_, err := f.svc.ClaimExclusive(context.Background(), "lead-1", "prov-1")
	if err == nil {
		t.Fatalf("expected error")
	}

	evs, _ := f.auditRepo.ListByType(context.Background(), audit.EventTypeReconciliationRequired, 10)
	if len(evs) != 1 {
		t.Fatalf("expected one reconciliation event, got %d", len(evs))
	}
	e := evs[0]
	if e.GatewayTxnID == "" || e.AmountCents != 4500 || e.LeadID != "lead-1" || e.ProviderID != "prov-1" {
		t.Fatalf("reconciliation event must carry the refund handle: %+v", e)
	}

	got, _ := f.store.Leads.GetByID(context.Background(), "lead-1")
	if got.Status != leads.StatusOpen {
		t.Fatalf("failed claim must roll back, got %s", got.Status)
	}
}
