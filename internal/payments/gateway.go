package payments

import (
	"context"
	"errors"
	"fmt"
)

// Gateway authorizes and captures a charge against a stored payment
// instrument in one call.
//
// Rules:
// - No gateway SDK/API calls outside this package.
// - A decline is returned as *DeclinedError so callers can surface the
//   gateway's reason; any other error means the charge outcome is unknown
//   and callers must fail closed (never assume success).
type Gateway interface {
	Name() string
	AuthorizeAndCapture(ctx context.Context, req ChargeRequest) (ChargeResult, error)
}

// ChargeRequest identifies the instrument and tags the charge with the lead
// and provider for later reconciliation.
type ChargeRequest struct {
	CustomerRef   string `json:"customer_ref"`
	InstrumentRef string `json:"instrument_ref"`

	AmountCents int64 `json:"amount_cents"`

	LeadID     string `json:"lead_id"`
	ProviderID string `json:"provider_id"`
}

type ChargeResult struct {
	// GatewayTxnID is the gateway's identifier for the captured charge.
	// It must be persisted alongside the claim for refund/reconciliation.
	GatewayTxnID string `json:"gateway_txn_id"`
}

// DeclinedError is an explicit gateway decline, carrying the gateway's code
// and human-readable reason.
type DeclinedError struct {
	Code   string
	Reason string
}

func (e *DeclinedError) Error() string {
	if e.Reason == "" {
		return "payment declined"
	}
	return fmt.Sprintf("payment declined: %s", e.Reason)
}

// IsDeclined reports whether err is an explicit gateway decline.
func IsDeclined(err error) bool {
	var d *DeclinedError
	return errors.As(err, &d)
}

func (r ChargeRequest) validate() error {
	if r.CustomerRef == "" || r.InstrumentRef == "" {
		return errors.New("payments: customer and instrument refs are required")
	}
	if r.AmountCents <= 0 {
		return errors.New("payments: amount must be positive")
	}
	if r.LeadID == "" || r.ProviderID == "" {
		return errors.New("payments: lead and provider ids are required")
	}
	return nil
}
