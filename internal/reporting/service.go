package reporting

import (
	"context"
	"errors"
	"time"

	"leadmarket-platform/internal/directory"
	"leadmarket-platform/internal/leads"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting.
//
// Implementations should query immutable sources when possible (claim
// settlement fields, credit ledger, audit events).

type Repository interface {
	ListLeads(ctx context.Context, from, to time.Time, state string) ([]leads.Lead, error)
	ListLeadsByProvider(ctx context.Context, providerID string, from, to time.Time) ([]leads.Lead, error)
	ListCreditLedger(ctx context.Context, providerID string, from, to time.Time) ([]directory.CreditLedger, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) FunnelSummary(ctx context.Context, req FunnelSummaryRequest) (FunnelSummary, error) {
	if err := s.check(req.Range); err != nil {
		return FunnelSummary{}, err
	}

	rows, err := s.repo.ListLeads(ctx, req.Range.From, req.Range.To, req.State)
	if err != nil {
		return FunnelSummary{}, err
	}

	out := FunnelSummary{State: req.State}
	for _, l := range rows {
		out.TotalLeads++
		switch l.Status {
		case leads.StatusOpen:
			out.OpenLeads++
		case leads.StatusDelivered:
			out.DeliveredLeads++
		case leads.StatusClaimed:
			out.ClaimedLeads++
			if l.ClaimAmountCents > 0 {
				out.PaidClaims++
			} else {
				out.TrialClaims++
			}
		}
		switch l.Urgency {
		case leads.UrgencyStat:
			out.StatLeads++
		case leads.UrgencyStandard:
			out.StandardLeads++
		}
	}
	if out.TotalLeads > 0 {
		out.ClaimRate = float64(out.ClaimedLeads) / float64(out.TotalLeads)
	}
	return out, nil
}

func (s *Service) RevenueSummary(ctx context.Context, req RevenueSummaryRequest) (RevenueSummary, error) {
	if err := s.check(req.Range); err != nil {
		return RevenueSummary{}, err
	}

	rows, err := s.repo.ListLeads(ctx, req.Range.From, req.Range.To, "")
	if err != nil {
		return RevenueSummary{}, err
	}

	var out RevenueSummary
	for _, l := range rows {
		if l.Status != leads.StatusClaimed {
			continue
		}
		if l.ClaimAmountCents > 0 {
			out.PaidClaims++
			out.GrossRevenueCents += l.ClaimAmountCents
		} else {
			out.TrialClaims++
		}
	}
	if out.PaidClaims > 0 {
		out.AverageClaimCents = out.GrossRevenueCents / int64(out.PaidClaims)
	}
	return out, nil
}

func (s *Service) ProviderActivity(ctx context.Context, req ProviderActivityRequest) (ProviderActivity, error) {
	if req.ProviderID == "" {
		return ProviderActivity{}, ErrInvalidRequest
	}
	if err := s.check(req.Range); err != nil {
		return ProviderActivity{}, err
	}

	rows, err := s.repo.ListLeadsByProvider(ctx, req.ProviderID, req.Range.From, req.Range.To)
	if err != nil {
		return ProviderActivity{}, err
	}
	ledger, err := s.repo.ListCreditLedger(ctx, req.ProviderID, req.Range.From, req.Range.To)
	if err != nil {
		return ProviderActivity{}, err
	}

	out := ProviderActivity{ProviderID: req.ProviderID}
	for _, l := range rows {
		out.LeadsAssigned++
		if l.Status == leads.StatusClaimed {
			out.LeadsClaimed++
			out.SpendCents += l.ClaimAmountCents
		}
	}
	for _, e := range ledger {
		if e.Delta < 0 {
			out.CreditsUsed += -e.Delta
		} else {
			out.CreditsGranted += e.Delta
		}
	}
	return out, nil
}

func (s *Service) check(r TimeRange) error {
	if r.From.IsZero() || r.To.IsZero() || !r.To.After(r.From) {
		return ErrInvalidRequest
	}
	if s.repo == nil {
		return errors.New("reporting: repository not configured")
	}
	return nil
}
