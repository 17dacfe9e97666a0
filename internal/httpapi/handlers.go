package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"leadmarket-platform/internal/auth"
	"leadmarket-platform/internal/claim"
	"leadmarket-platform/internal/directory"
	"leadmarket-platform/internal/intake"
	"leadmarket-platform/internal/leads"
	"leadmarket-platform/internal/payments"
	"leadmarket-platform/internal/rbac"
	"leadmarket-platform/internal/reporting"

	"github.com/gin-gonic/gin"
)

// LeadStore is the lead persistence surface the handlers need. Satisfied by
// both the SQL and in-memory repositories.
type LeadStore interface {
	GetByID(ctx context.Context, id string) (leads.Lead, error)
	ListOpenByZips(ctx context.Context, zips []string, limit int) ([]leads.Lead, error)
	ListOpen(ctx context.Context, limit int) ([]leads.Lead, error)
	UpdateOutcome(ctx context.Context, leadID, providerID string, p leads.OutcomePatch, now time.Time) (leads.Lead, error)
	Reopen(ctx context.Context, leadID string, now time.Time) (leads.Lead, error)
}

type ProviderStore interface {
	GetByID(ctx context.Context, id string) (directory.Provider, error)
	GrantCredits(ctx context.Context, providerID string, n int64, reason directory.CreditReason, actor string) (int64, error)
}

type Submitter interface {
	Submit(ctx context.Context, sub intake.Submission) (intake.Receipt, error)
}

type Claimer interface {
	ClaimExclusive(ctx context.Context, leadID, providerID string) (claim.Result, error)
}

type Auditor interface {
	LogLeadReopened(ctx context.Context, leadID, actorUserID, actorRole, ip string) error
	LogCreditsGranted(ctx context.Context, providerID string, delta int64, actorUserID, actorRole string) error
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth *auth.Manager
	// TokenServiceKey authenticates the identity service calling Token.
	TokenServiceKey string

	Intake    Submitter
	Claims    Claimer
	Leads     LeadStore
	Providers ProviderStore
	Reporting *reporting.Service
	Audit     Auditor

	// Cache is the optional open-leads list cache. Nil disables caching.
	Cache *LeadCache

	Metrics *Metrics

	Clock func() time.Time
}

func (h Handlers) now() time.Time {
	if h.Clock != nil {
		return h.Clock().UTC()
	}
	return time.Now().UTC()
}

// --- Auth ---

type tokenRequest struct {
	UserID     string `json:"user_id"`
	ProviderID string `json:"provider_id"`
	Role       string `json:"role"`
}

// Token exchanges a verified login for a JWT pair. Credential verification
// lives in the identity service, which authenticates here with a shared key.
func (h Handlers) Token(c *gin.Context) {
	if h.Auth == nil || h.TokenServiceKey == "" {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	if c.GetHeader("X-Service-Key") != h.TokenServiceKey {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid service key"})
		return
	}
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id and role required"})
		return
	}
	if req.Role == rbac.RoleProvider && req.ProviderID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "provider_id required for provider role"})
		return
	}
	pair, err := h.Auth.IssuePair(h.now(), req.UserID, req.ProviderID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Public intake ---

// SubmitLead accepts a public lead submission. No auth; this is the form
// endpoint.
func (h Handlers) SubmitLead(c *gin.Context) {
	var sub intake.Submission
	if err := c.ShouldBindJSON(&sub); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	r, err := h.Intake.Submit(c.Request.Context(), sub)
	if err != nil {
		var verrs intake.ValidationErrors
		if errors.As(err, &verrs) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": verrs})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "submission failed"})
		return
	}
	h.Metrics.LeadSubmitted(string(r.Routing))
	if h.Cache != nil {
		h.Cache.Invalidate(c.Request.Context())
	}
	c.JSON(http.StatusCreated, r)
}

// --- Provider surface ---

// ListOpenLeads returns claimable leads matching the caller's coverage.
// Nationwide providers see the full open list, served through the cache.
func (h Handlers) ListOpenLeads(c *gin.Context) {
	ctx := c.Request.Context()
	providerID, err := auth.ProviderID(ctx)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "provider_id required"})
		return
	}

	p, err := h.Providers.GetByID(ctx, providerID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "provider not found"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}

	var out []leads.Lead
	if p.Coverage.Nationwide {
		out, err = h.openLeadsCached(ctx)
	} else if len(p.Coverage.Zips) > 0 {
		out, err = h.Leads.ListOpenByZips(ctx, p.Coverage.Zips, 100)
	} else {
		// Area-only coverage has no zip list to filter on; serve the open
		// list and let the provider judge.
		out, err = h.openLeadsCached(ctx)
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "listing failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"leads": out})
}

func (h Handlers) openLeadsCached(ctx context.Context) ([]leads.Lead, error) {
	if h.Cache == nil {
		return h.Leads.ListOpen(ctx, 100)
	}
	return h.Cache.OpenLeads(ctx, func(ctx context.Context) ([]leads.Lead, error) {
		return h.Leads.ListOpen(ctx, 100)
	})
}

// GetLead returns one lead. Contact details are only shown to the assigned
// provider; anyone may look at an unassigned lead.
func (h Handlers) GetLead(c *gin.Context) {
	ctx := c.Request.Context()
	providerID, err := auth.ProviderID(ctx)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "provider_id required"})
		return
	}

	l, err := h.Leads.GetByID(ctx, c.Param("lead_id"))
	if err != nil {
		if errors.Is(err, leads.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "lead not found"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	if l.AssignedProviderID != "" && l.AssignedProviderID != providerID {
		// Do not leak other providers' pipeline.
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "lead not found"})
		return
	}
	c.JSON(http.StatusOK, l)
}

// ClaimLead runs the exclusive claim for the authenticated provider.
//
// Status mapping:
//
//	404 lead/provider not found
//	409 already claimed, or a duplicate attempt in flight
//	422 provider not eligible
//	402 payment declined
func (h Handlers) ClaimLead(c *gin.Context) {
	ctx := c.Request.Context()
	providerID, err := auth.ProviderID(ctx)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "provider_id required"})
		return
	}

	res, err := h.Claims.ClaimExclusive(ctx, c.Param("lead_id"), providerID)
	if err != nil {
		h.Metrics.ClaimAttempt(claimOutcomeLabel(err))
		switch {
		case errors.Is(err, claim.ErrLeadNotFound), errors.Is(err, claim.ErrProviderNotFound):
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "lead not found"})
		case errors.Is(err, claim.ErrAlreadyClaimed):
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "lead already claimed"})
		case errors.Is(err, claim.ErrClaimInProgress):
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "claim already in progress"})
		case errors.Is(err, claim.ErrNotEligible):
			c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": "not eligible to claim"})
		case errors.Is(err, claim.ErrPaymentDeclined):
			body := gin.H{"error": "payment declined"}
			var d *payments.DeclinedError
			if errors.As(err, &d) && d.Code != "" {
				body["decline_code"] = d.Code
			}
			c.AbortWithStatusJSON(http.StatusPaymentRequired, body)
		default:
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "claim failed"})
		}
		return
	}

	h.Metrics.ClaimAttempt("won")
	if h.Cache != nil {
		h.Cache.Invalidate(ctx)
	}
	c.JSON(http.StatusOK, gin.H{
		"lead":         res.Lead,
		"amount_cents": res.ChargeAmountCents,
		"trial":        res.IsTrial,
	})
}

func claimOutcomeLabel(err error) string {
	switch {
	case errors.Is(err, claim.ErrAlreadyClaimed):
		return "already_claimed"
	case errors.Is(err, claim.ErrNotEligible):
		return "not_eligible"
	case errors.Is(err, claim.ErrPaymentDeclined):
		return "payment_declined"
	case errors.Is(err, claim.ErrLeadNotFound), errors.Is(err, claim.ErrProviderNotFound):
		return "not_found"
	case errors.Is(err, claim.ErrClaimInProgress):
		return "in_progress"
	default:
		return "error"
	}
}

type outcomeRequest struct {
	FirstContactAt *time.Time `json:"first_contact_at"`
	LastContactAt  *time.Time `json:"last_contact_at"`
	CallAttempts   *int       `json:"call_attempts"`
	OutcomeCode    *string    `json:"outcome_code"`
	CompletedAt    *time.Time `json:"completed_at"`
}

// UpdateOutcome records provider-reported follow-up on an assigned lead.
func (h Handlers) UpdateOutcome(c *gin.Context) {
	ctx := c.Request.Context()
	providerID, err := auth.ProviderID(ctx)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "provider_id required"})
		return
	}

	var req outcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	l, err := h.Leads.UpdateOutcome(ctx, c.Param("lead_id"), providerID, leads.OutcomePatch{
		FirstContactAt: req.FirstContactAt,
		LastContactAt:  req.LastContactAt,
		CallAttempts:   req.CallAttempts,
		Code:           req.OutcomeCode,
		CompletedAt:    req.CompletedAt,
	}, h.now())
	if err != nil {
		switch {
		case errors.Is(err, leads.ErrNotFound):
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "lead not found"})
		case errors.Is(err, leads.ErrNotAssignee):
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "lead not assigned to you"})
		default:
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		}
		return
	}
	c.JSON(http.StatusOK, l)
}

// --- Admin surface ---

func (h Handlers) AdminFunnel(c *gin.Context) {
	req, ok := h.rangeFromQuery(c)
	if !ok {
		return
	}
	out, err := h.Reporting.FunnelSummary(c.Request.Context(), reporting.FunnelSummaryRequest{
		Range: req,
		State: c.Query("state"),
	})
	if err != nil {
		h.reportingError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) AdminRevenue(c *gin.Context) {
	req, ok := h.rangeFromQuery(c)
	if !ok {
		return
	}
	out, err := h.Reporting.RevenueSummary(c.Request.Context(), reporting.RevenueSummaryRequest{Range: req})
	if err != nil {
		h.reportingError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) AdminProviderActivity(c *gin.Context) {
	req, ok := h.rangeFromQuery(c)
	if !ok {
		return
	}
	out, err := h.Reporting.ProviderActivity(c.Request.Context(), reporting.ProviderActivityRequest{
		ProviderID: c.Param("provider_id"),
		Range:      req,
	})
	if err != nil {
		h.reportingError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// AdminReopenLead reverts a lead to OPEN. This is the only OPEN-reverting
// transition; every use is audited with the acting admin.
func (h Handlers) AdminReopenLead(c *gin.Context) {
	ctx := c.Request.Context()
	leadID := c.Param("lead_id")

	l, err := h.Leads.Reopen(ctx, leadID, h.now())
	if err != nil {
		if errors.Is(err, leads.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "lead not found"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reopen failed"})
		return
	}

	userID, _ := auth.UserID(ctx)
	role, _ := auth.Role(ctx)
	if h.Audit != nil {
		_ = h.Audit.LogLeadReopened(ctx, leadID, userID, role, c.ClientIP())
	}
	if h.Cache != nil {
		h.Cache.Invalidate(ctx)
	}
	c.JSON(http.StatusOK, l)
}

type grantCreditsRequest struct {
	Credits int64 `json:"credits"`
}

func (h Handlers) AdminGrantCredits(c *gin.Context) {
	ctx := c.Request.Context()
	providerID := c.Param("provider_id")

	var req grantCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.Credits <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "credits must be positive"})
		return
	}

	userID, _ := auth.UserID(ctx)
	role, _ := auth.Role(ctx)

	remaining, err := h.Providers.GrantCredits(ctx, providerID, req.Credits, directory.CreditReasonAdminGrant, userID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "provider not found"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "grant failed"})
		return
	}
	if h.Audit != nil {
		_ = h.Audit.LogCreditsGranted(ctx, providerID, req.Credits, userID, role)
	}
	c.JSON(http.StatusOK, gin.H{"provider_id": providerID, "lead_credits": remaining})
}

// --- helpers ---

func (h Handlers) rangeFromQuery(c *gin.Context) (reporting.TimeRange, bool) {
	from, err1 := time.Parse(time.RFC3339, c.Query("from"))
	to, err2 := time.Parse(time.RFC3339, c.Query("to"))
	if err1 != nil || err2 != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from and to must be RFC3339 timestamps"})
		return reporting.TimeRange{}, false
	}
	return reporting.TimeRange{From: from, To: to}, true
}

func (h Handlers) reportingError(c *gin.Context, err error) {
	if errors.Is(err, reporting.ErrInvalidRequest) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting failed"})
}
