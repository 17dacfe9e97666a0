package directory

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"leadmarket-platform/pkg/utils"

	"github.com/google/uuid"
)

// NOTE: This repository assumes the following tables exist:
//
//   providers (
//     id, name, email, phone, nationwide, lead_credits, eligible_for_claim,
//     trial_status, trial_started_at, trial_expires_at,
//     billing_customer_ref, payment_method_ref, created_at, updated_at
//   )
//   provider_zips  (provider_id, zip)
//   provider_areas (provider_id, state, city)
//   lead_credit_ledger (id, provider_id, delta, reason, lead_id, actor, created_at)
//
// Routing-time credit debits are NOT performed here; they belong to the
// routing store, which owns the enclosing transaction. This repository covers
// reads, admin credit grants and trial bookkeeping.

var ErrNotFound = errors.New("provider not found")

type Repository struct {
	db    *sql.DB
	clock func() time.Time
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, clock: time.Now}
}

const providerColumns = `
id, name, email, phone, nationwide, lead_credits, eligible_for_claim,
trial_status, trial_started_at, trial_expires_at,
billing_customer_ref, payment_method_ref, created_at, updated_at
`

func (r *Repository) GetByID(ctx context.Context, id string) (Provider, error) {
	q := `SELECT ` + providerColumns + ` FROM providers WHERE id = $1`
	p, err := ScanProvider(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		return Provider{}, err
	}
	if err := r.loadCoverage(ctx, &p); err != nil {
		return Provider{}, err
	}
	return p, nil
}

func (r *Repository) loadCoverage(ctx context.Context, p *Provider) error {
	rows, err := r.db.QueryContext(ctx, `SELECT zip FROM provider_zips WHERE provider_id = $1 ORDER BY zip`, p.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var z string
		if err := rows.Scan(&z); err != nil {
			return err
		}
		p.Coverage.Zips = append(p.Coverage.Zips, z)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	areaRows, err := r.db.QueryContext(ctx, `SELECT state, city FROM provider_areas WHERE provider_id = $1 ORDER BY state, city`, p.ID)
	if err != nil {
		return err
	}
	defer areaRows.Close()
	for areaRows.Next() {
		var a Area
		var city sql.NullString
		if err := areaRows.Scan(&a.State, &city); err != nil {
			return err
		}
		a.City = city.String
		p.Coverage.Areas = append(p.Coverage.Areas, a)
	}
	return areaRows.Err()
}

// GrantCredits adds credits to a provider and appends the matching ledger
// entry in one transaction. Used by the admin grant endpoint; credit-pack
// purchases land here too via the billing webhook (external).
func (r *Repository) GrantCredits(ctx context.Context, providerID string, n int64, reason CreditReason, actor string) (int64, error) {
	if n <= 0 {
		return 0, errors.New("credit grant must be positive")
	}
	now := r.clock().UTC()
	var remaining int64
	err := utils.WithTx(ctx, r.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		const q = `
UPDATE providers SET lead_credits = lead_credits + $2, updated_at = $3
WHERE id = $1
RETURNING lead_credits
`
		if err := tx.QueryRowContext(ctx, q, providerID, n, now).Scan(&remaining); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		return InsertCreditLedger(ctx, tx, CreditLedger{
			ID:         uuid.NewString(),
			ProviderID: providerID,
			Delta:      n,
			Reason:     reason,
			Actor:      actor,
			CreatedAt:  now,
		})
	})
	return remaining, err
}

// MarkTrialExpired flips an ACTIVE trial to EXPIRED. It deliberately runs as
// its own statement so the flip survives a later claim failure.
func (r *Repository) MarkTrialExpired(ctx context.Context, providerID string) error {
	const q = `
UPDATE providers SET trial_status = $2, updated_at = $3
WHERE id = $1 AND trial_status = $4
`
	_, err := r.db.ExecContext(ctx, q, providerID, TrialExpired, r.clock().UTC(), TrialActive)
	return err
}

// InsertCreditLedger appends a ledger row inside the caller's transaction.
func InsertCreditLedger(ctx context.Context, tx *sql.Tx, e CreditLedger) error {
	const q = `
INSERT INTO lead_credit_ledger (id, provider_id, delta, reason, lead_id, actor, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`
	_, err := tx.ExecContext(ctx, q, e.ID, e.ProviderID, e.Delta, e.Reason, e.LeadID, e.Actor, e.CreatedAt)
	return err
}

// ScanProvider scans a provider row (without coverage). Exported for the
// routing and claim stores which run provider queries inside their own
// transactions.
func ScanProvider(row interface{ Scan(dest ...any) error }) (Provider, error) {
	var p Provider
	var phone, custRef, pmRef sql.NullString
	var trialStarted, trialExpires sql.NullTime
	err := row.Scan(
		&p.ID, &p.Name, &p.Email, &phone, &p.Coverage.Nationwide,
		&p.LeadCredits, &p.EligibleForClaim,
		&p.Trial.Status, &trialStarted, &trialExpires,
		&custRef, &pmRef, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Provider{}, ErrNotFound
		}
		return Provider{}, err
	}
	p.Phone = phone.String
	p.BillingCustomerRef = custRef.String
	p.PaymentMethodRef = pmRef.String
	if trialStarted.Valid {
		t := trialStarted.Time
		p.Trial.StartedAt = &t
	}
	if trialExpires.Valid {
		t := trialExpires.Time
		p.Trial.ExpiresAt = &t
	}
	return p, nil
}

// ProviderColumns exposes the select list for the routing and claim stores.
func ProviderColumns() string { return providerColumns }
