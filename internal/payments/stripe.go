package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// StripeClient charges stored instruments via the PaymentIntents API with
// confirm=true and off_session=true (merchant-initiated, no user present).
//
// Only the claim-time charge lives here. Checkout sessions for subscriptions
// and credit packs are handled by the billing system, not this service.
type StripeClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewStripeClient(apiKey, baseURL string, timeout time.Duration) *StripeClient {
	if baseURL == "" {
		baseURL = "https://api.stripe.com"
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &StripeClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *StripeClient) Name() string { return "stripe" }

type paymentIntentResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type stripeErrorResponse struct {
	Error struct {
		Type        string `json:"type"`
		Code        string `json:"code"`
		DeclineCode string `json:"decline_code"`
		Message     string `json:"message"`
	} `json:"error"`
}

func (c *StripeClient) AuthorizeAndCapture(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	if err := req.validate(); err != nil {
		return ChargeResult{}, err
	}

	form := url.Values{}
	form.Set("amount", strconv.FormatInt(req.AmountCents, 10))
	form.Set("currency", "usd")
	form.Set("customer", req.CustomerRef)
	form.Set("payment_method", req.InstrumentRef)
	form.Set("confirm", "true")
	form.Set("off_session", "true")
	form.Set("metadata[lead_id]", req.LeadID)
	form.Set("metadata[provider_id]", req.ProviderID)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/payment_intents", strings.NewReader(form.Encode()))
	if err != nil {
		return ChargeResult{}, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return ChargeResult{}, fmt.Errorf("stripe request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return ChargeResult{}, fmt.Errorf("stripe response read failed: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var pi paymentIntentResponse
		if err := json.Unmarshal(body, &pi); err != nil {
			return ChargeResult{}, fmt.Errorf("stripe response decode failed: %w", err)
		}
		if pi.Status != "succeeded" {
			// Anything short of an immediate capture (requires_action etc.)
			// cannot complete an off-session claim charge.
			return ChargeResult{}, &DeclinedError{Code: pi.Status, Reason: "charge did not complete: " + pi.Status}
		}
		return ChargeResult{GatewayTxnID: pi.ID}, nil
	}

	var se stripeErrorResponse
	if err := json.Unmarshal(body, &se); err == nil && se.Error.Type == "card_error" {
		code := se.Error.DeclineCode
		if code == "" {
			code = se.Error.Code
		}
		return ChargeResult{}, &DeclinedError{Code: code, Reason: se.Error.Message}
	}
	return ChargeResult{}, fmt.Errorf("stripe charge failed with status %d", resp.StatusCode)
}
