package intake

import (
	"context"
	"time"

	"leadmarket-platform/internal/leads"
	"leadmarket-platform/internal/pricing"
	"leadmarket-platform/internal/routing"
	"leadmarket-platform/pkg/logger"

	"github.com/google/uuid"
)

// LeadCreator persists a new lead row.
type LeadCreator interface {
	Create(ctx context.Context, l leads.Lead) error
}

// Router auto-assigns a freshly created lead.
type Router interface {
	AutoAssign(ctx context.Context, l leads.Lead) (routing.Assignment, error)
}

// Service turns a public submission into an OPEN lead and hands it to the
// routing engine.
type Service struct {
	repo   LeadCreator
	router Router
	clock  func() time.Time
}

func NewService(repo LeadCreator, router Router) *Service {
	return &Service{repo: repo, router: router, clock: time.Now}
}

// Receipt is what the public form gets back. It never exposes provider
// identity or pricing internals beyond the lead's own record.
type Receipt struct {
	Lead    leads.Lead      `json:"lead"`
	Routing routing.Outcome `json:"routing"`
}

// Submit validates, prices and persists the lead, then routes it.
//
// The lead row commits before routing runs: a routing engine failure never
// loses the submission, it just leaves the lead OPEN for the race-to-claim.
func (s *Service) Submit(ctx context.Context, sub Submission) (Receipt, error) {
	if err := sub.Validate(); err != nil {
		return Receipt{}, err
	}

	now := s.clock().UTC()
	l := leads.Lead{
		ID:         uuid.NewString(),
		Name:       sub.Name,
		Phone:      sub.Phone,
		Email:      sub.Email,
		Address:    sub.Address,
		City:       sub.City,
		State:      sub.State,
		Zip:        sub.Zip,
		Urgency:    sub.Urgency,
		Notes:      sub.Notes,
		PriceCents: pricing.PriceFor(sub.Urgency),
		Status:     leads.StatusOpen,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Create(ctx, l); err != nil {
		return Receipt{}, err
	}

	log := logger.From(ctx)
	log.Info("lead received",
		"lead_id", l.ID,
		"zip", l.Zip,
		"urgency", l.Urgency,
		"price_cents", l.PriceCents,
	)

	a, err := s.router.AutoAssign(ctx, l)
	if err != nil {
		// The submission is already safe. Report it unserved and let ops
		// pick it up; the lead stays OPEN and claimable.
		log.Error("routing failed, lead left open", "lead_id", l.ID, "err", err)
		return Receipt{Lead: l, Routing: routing.OutcomeUnserved}, nil
	}

	if a.Outcome != routing.OutcomeUnserved {
		refreshed := l
		refreshed.Status = leads.StatusDelivered
		refreshed.AssignedProviderID = a.ProviderID
		assignedAt := now
		refreshed.AssignedAt = &assignedAt
		return Receipt{Lead: refreshed, Routing: a.Outcome}, nil
	}
	return Receipt{Lead: l, Routing: a.Outcome}, nil
}
