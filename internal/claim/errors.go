package claim

import "errors"

// Claim failures callers are expected to branch on. The HTTP layer maps
// these to response codes; everything else is an internal error.
var (
	ErrLeadNotFound     = errors.New("claim: lead not found")
	ErrProviderNotFound = errors.New("claim: provider not found")
	ErrAlreadyClaimed   = errors.New("claim: lead already claimed")
	ErrNotEligible      = errors.New("claim: provider not eligible to claim")
	ErrPaymentDeclined  = errors.New("claim: payment declined")
	ErrClaimInProgress  = errors.New("claim: claim attempt already in progress")
)
