package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"leadmarket-platform/internal/audit"
	"leadmarket-platform/internal/auth"
	"leadmarket-platform/internal/claim"
	"leadmarket-platform/internal/config"
	"leadmarket-platform/internal/directory"
	"leadmarket-platform/internal/intake"
	"leadmarket-platform/internal/leads"
	"leadmarket-platform/internal/notify"
	"leadmarket-platform/internal/payments"
	"leadmarket-platform/internal/rbac"
	"leadmarket-platform/internal/reporting"
	"leadmarket-platform/internal/routing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gatewayStub struct {
	err   error
	calls int
}

func (g *gatewayStub) Name() string { return "stub" }

func (g *gatewayStub) AuthorizeAndCapture(ctx context.Context, req payments.ChargeRequest) (payments.ChargeResult, error) {
	g.calls++
	if g.err != nil {
		return payments.ChargeResult{}, g.err
	}
	return payments.ChargeResult{GatewayTxnID: fmt.Sprintf("pi_%d", g.calls)}, nil
}

type testEnv struct {
	router    *gin.Engine
	leads     *leads.MemoryRepo
	providers *directory.MemoryRepo
	gateway   *gatewayStub
	auditRepo *audit.MemoryRepo
	manager   *auth.Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	leadRepo := leads.NewMemoryRepo()
	provRepo := directory.NewMemoryRepo()
	gw := &gatewayStub{}
	auditRepo := audit.NewMemoryRepo()
	auditor := audit.NewService(auditRepo)

	manager, err := auth.NewManager(config.AuthConfig{
		JWTSecret:       "test-secret",
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 24 * time.Hour,
	})
	require.NoError(t, err)

	h := Handlers{
		Auth:            manager,
		TokenServiceKey: "svc-key",
		Intake:          intake.NewService(leadRepo, routing.NewEngine(routing.NewMemoryStore(leadRepo, provRepo), notify.Nop{})),
		Claims:          claim.NewService(claim.NewMemoryStore(leadRepo, provRepo), provRepo, gw, auditor, notify.Nop{}),
		Leads:           leadRepo,
		Providers:       provRepo,
		Reporting:       reporting.NewService(reporting.NewMemoryRepo()),
		Audit:           auditor,
	}

	r := gin.New()
	authMW := auth.RequireAccessToken(manager)

	r.POST("/v1/leads", h.SubmitLead)
	r.POST("/v1/auth/token", h.Token)

	provider := r.Group("/v1/provider", authMW, rbac.RequireProvider(), rbac.RequireAnyRole(rbac.RoleProvider))
	provider.GET("/leads", h.ListOpenLeads)
	provider.GET("/leads/:lead_id", h.GetLead)
	provider.POST("/leads/:lead_id/claim", h.ClaimLead)
	provider.PATCH("/leads/:lead_id/outcome", h.UpdateOutcome)

	admin := r.Group("/v1/admin", authMW, rbac.RequireAnyRole(rbac.RoleAdmin))
	admin.POST("/providers/:provider_id/credits", h.AdminGrantCredits)
	admin.POST("/leads/:lead_id/reopen", h.AdminReopenLead)
	admin.GET("/stats/funnel", h.AdminFunnel)

	return &testEnv{
		router:    r,
		leads:     leadRepo,
		providers: provRepo,
		gateway:   gw,
		auditRepo: auditRepo,
		manager:   manager,
	}
}

func (e *testEnv) token(t *testing.T, providerID, role string) string {
	t.Helper()
	pair, err := e.manager.IssuePair(time.Now(), "user-1", providerID, role)
	require.NoError(t, err)
	return pair.AccessToken
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func claimableProvider(id string) directory.Provider {
	return directory.Provider{
		ID:                 id,
		Name:               "Acme Home Care",
		Email:              "ops@acme.test",
		EligibleForClaim:   true,
		LeadCredits:        3,
		Coverage:           directory.Coverage{Zips: []string{"90210"}},
		BillingCustomerRef: "cus_" + id,
		PaymentMethodRef:   "pm_" + id,
	}
}

func submission() map[string]any {
	return map[string]any{
		"name":    "Pat Doe",
		"phone":   "555-123-0000",
		"state":   "CA",
		"zip":     "90210",
		"urgency": "STAT",
	}
}

func TestSubmitLead_CreatedAndRouted(t *testing.T) {
	e := newTestEnv(t)
	e.providers.Put(claimableProvider("prov-1"))

	w := e.do(t, http.MethodPost, "/v1/leads", "", submission())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Lead    leads.Lead `json:"lead"`
		Routing string     `json:"routing"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "delivered", resp.Routing)
	assert.Equal(t, int64(4500), resp.Lead.PriceCents)
	assert.Equal(t, "prov-1", resp.Lead.AssignedProviderID)
}

func TestSubmitLead_ValidationErrorsListFields(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodPost, "/v1/leads", "", map[string]any{
		"name": "x", "phone": "1", "state": "California", "zip": "ab", "urgency": "WHENEVER",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "fields")
	assert.Contains(t, w.Body.String(), "urgency")
}

func TestClaimLead_FullFlow(t *testing.T) {
	e := newTestEnv(t)
	e.providers.Put(claimableProvider("prov-1"))
	e.providers.Put(claimableProvider("prov-2"))

	// Submit routes to prov-1 (zip match); prov-2 then claims it away.
	w := e.do(t, http.MethodPost, "/v1/leads", "", submission())
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		Lead leads.Lead `json:"lead"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	tok2 := e.token(t, "prov-2", rbac.RoleProvider)
	w = e.do(t, http.MethodPost, "/v1/provider/leads/"+created.Lead.ID+"/claim", tok2, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var claimed struct {
		Lead        leads.Lead `json:"lead"`
		AmountCents int64      `json:"amount_cents"`
		Trial       bool       `json:"trial"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &claimed))
	assert.Equal(t, leads.StatusClaimed, claimed.Lead.Status)
	assert.Equal(t, int64(4500), claimed.AmountCents)
	assert.False(t, claimed.Trial)

	// A second claim must lose with 409.
	tok1 := e.token(t, "prov-1", rbac.RoleProvider)
	w = e.do(t, http.MethodPost, "/v1/provider/leads/"+created.Lead.ID+"/claim", tok1, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestClaimLead_StatusMapping(t *testing.T) {
	e := newTestEnv(t)

	ineligible := claimableProvider("prov-ineligible")
	ineligible.EligibleForClaim = false
	e.providers.Put(ineligible)
	e.providers.Put(claimableProvider("prov-1"))

	l := leads.Lead{ID: "lead-1", Name: "Pat", Phone: "5551230000", State: "CA", Zip: "90210",
		Urgency: leads.UrgencyStat, PriceCents: 4500, Status: leads.StatusOpen}
	e.leads.Put(l)

	tok := e.token(t, "prov-1", rbac.RoleProvider)

	// 404 unknown lead
	w := e.do(t, http.MethodPost, "/v1/provider/leads/nope/claim", tok, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// 422 ineligible
	w = e.do(t, http.MethodPost, "/v1/provider/leads/lead-1/claim", e.token(t, "prov-ineligible", rbac.RoleProvider), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	// 402 decline with code
	e.gateway.err = &payments.DeclinedError{Code: "insufficient_funds", Reason: "card declined"}
	w = e.do(t, http.MethodPost, "/v1/provider/leads/lead-1/claim", tok, nil)
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Contains(t, w.Body.String(), "insufficient_funds")

	// Lead is still claimable after the decline.
	e.gateway.err = nil
	w = e.do(t, http.MethodPost, "/v1/provider/leads/lead-1/claim", tok, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUpdateOutcome_AssigneeOnly(t *testing.T) {
	e := newTestEnv(t)
	e.providers.Put(claimableProvider("prov-1"))
	e.providers.Put(claimableProvider("prov-2"))

	l := leads.Lead{ID: "lead-1", Name: "Pat", Phone: "5551230000", State: "CA", Zip: "90210",
		Urgency: leads.UrgencyStandard, PriceCents: 2500, Status: leads.StatusClaimed, AssignedProviderID: "prov-1"}
	e.leads.Put(l)

	attempts := 2
	body := map[string]any{"call_attempts": attempts, "outcome_code": "contacted"}

	w := e.do(t, http.MethodPatch, "/v1/provider/leads/lead-1/outcome", e.token(t, "prov-2", rbac.RoleProvider), body)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(t, http.MethodPatch, "/v1/provider/leads/lead-1/outcome", e.token(t, "prov-1", rbac.RoleProvider), body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	got, err := e.leads.GetByID(context.Background(), "lead-1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Outcome.CallAttempts)
	assert.Equal(t, "contacted", got.Outcome.Code)
}

func TestProviderRoutes_RequireProviderToken(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodGet, "/v1/provider/leads", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Admin token carries no provider_id.
	w = e.do(t, http.MethodGet, "/v1/provider/leads", e.token(t, "", rbac.RoleAdmin), nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminGrantCredits_AuditsAndUpdatesBalance(t *testing.T) {
	e := newTestEnv(t)
	e.providers.Put(claimableProvider("prov-1"))

	tok := e.token(t, "", rbac.RoleAdmin)
	w := e.do(t, http.MethodPost, "/v1/admin/providers/prov-1/credits", tok, map[string]any{"credits": 10})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"lead_credits":13`)

	evs, err := e.auditRepo.ListByType(context.Background(), audit.EventTypeCreditsGranted, 10)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, "prov-1", evs[0].ProviderID)

	// Provider tokens cannot grant credits.
	w = e.do(t, http.MethodPost, "/v1/admin/providers/prov-1/credits", e.token(t, "prov-1", rbac.RoleProvider), map[string]any{"credits": 1})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdminReopenLead_Audited(t *testing.T) {
	e := newTestEnv(t)
	l := leads.Lead{ID: "lead-1", Name: "Pat", Phone: "5551230000", State: "CA", Zip: "90210",
		Urgency: leads.UrgencyStandard, PriceCents: 2500, Status: leads.StatusClaimed, AssignedProviderID: "prov-1"}
	e.leads.Put(l)

	w := e.do(t, http.MethodPost, "/v1/admin/leads/lead-1/reopen", e.token(t, "", rbac.RoleAdmin), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	got, err := e.leads.GetByID(context.Background(), "lead-1")
	require.NoError(t, err)
	assert.Equal(t, leads.StatusOpen, got.Status)
	assert.Empty(t, got.AssignedProviderID)

	evs, err := e.auditRepo.ListByType(context.Background(), audit.EventTypeLeadReopened, 10)
	require.NoError(t, err)
	require.Len(t, evs, 1)
}

func TestToken_RequiresServiceKey(t *testing.T) {
	e := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/token", bytes.NewBufferString(`{"user_id":"u","role":"admin"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/v1/auth/token", bytes.NewBufferString(`{"user_id":"u","role":"admin"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Service-Key", "svc-key")
	w = httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "access_token")
}

func TestListOpenLeads_FiltersByCoverage(t *testing.T) {
	e := newTestEnv(t)
	e.providers.Put(claimableProvider("prov-1"))

	e.leads.Put(leads.Lead{ID: "in-zip", Name: "A", Phone: "5551230000", State: "CA", Zip: "90210",
		Urgency: leads.UrgencyStandard, PriceCents: 2500, Status: leads.StatusOpen})
	e.leads.Put(leads.Lead{ID: "out-of-zip", Name: "B", Phone: "5551230001", State: "NY", Zip: "10001",
		Urgency: leads.UrgencyStandard, PriceCents: 2500, Status: leads.StatusOpen})

	w := e.do(t, http.MethodGet, "/v1/provider/leads", e.token(t, "prov-1", rbac.RoleProvider), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "in-zip")
	assert.NotContains(t, w.Body.String(), "out-of-zip")
}
