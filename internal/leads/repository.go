package leads

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// NOTE: This repository assumes the following table exists:
//
//   leads (
//     id, name, phone, email, address, city, state, zip,
//     urgency, notes, price_cents, status,
//     assigned_provider_id, assigned_at, claim_txn_id, claim_amount_cents,
//     first_contact_at, last_contact_at, call_attempts, outcome_code, completed_at,
//     created_at, updated_at
//   )
//
// Status transitions (OPEN -> DELIVERED, OPEN/DELIVERED -> CLAIMED) are NOT
// performed here; they belong to the routing and claim stores which own the
// enclosing transactions. This repository covers creation, reads, outcome
// updates and the explicit administrative reopen.

var (
	ErrNotFound     = errors.New("lead not found")
	ErrNotAssignee  = errors.New("lead not assigned to this provider")
	ErrNotClaimable = errors.New("lead is not claimable")
)

const leadColumns = `
id, name, phone, email, address, city, state, zip,
urgency, notes, price_cents, status,
assigned_provider_id, assigned_at, claim_txn_id, claim_amount_cents,
first_contact_at, last_contact_at, call_attempts, outcome_code, completed_at,
created_at, updated_at
`

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository { return &Repository{db: db} }

func (r *Repository) Create(ctx context.Context, l Lead) error {
	const q = `
INSERT INTO leads (
  id, name, phone, email, address, city, state, zip,
  urgency, notes, price_cents, status,
  call_attempts, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
`
	_, err := r.db.ExecContext(ctx, q,
		l.ID, l.Name, l.Phone, l.Email, l.Address, l.City, l.State, l.Zip,
		l.Urgency, l.Notes, l.PriceCents, l.Status,
		l.Outcome.CallAttempts, l.CreatedAt, l.UpdatedAt,
	)
	return err
}

func (r *Repository) GetByID(ctx context.Context, id string) (Lead, error) {
	q := `SELECT ` + leadColumns + ` FROM leads WHERE id = $1`
	return scanLead(r.db.QueryRowContext(ctx, q, id))
}

// ListOpenByZips returns claimable leads whose zip is in the given set,
// oldest first. Used to populate a provider's "available leads" view.
func (r *Repository) ListOpenByZips(ctx context.Context, zips []string, limit int) ([]Lead, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT ` + leadColumns + `
FROM leads
WHERE status = $1 AND zip = ANY($2)
ORDER BY created_at, id
LIMIT $3`
	rows, err := r.db.QueryContext(ctx, q, StatusOpen, zips, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLeads(rows)
}

// ListOpen returns claimable leads regardless of geography, oldest first.
// Used for nationwide providers and the admin dashboard.
func (r *Repository) ListOpen(ctx context.Context, limit int) ([]Lead, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT ` + leadColumns + `
FROM leads
WHERE status = $1
ORDER BY created_at, id
LIMIT $2`
	rows, err := r.db.QueryContext(ctx, q, StatusOpen, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLeads(rows)
}

// OutcomePatch carries provider-reported follow-up fields. Nil members are
// left untouched.
type OutcomePatch struct {
	FirstContactAt *time.Time
	LastContactAt  *time.Time
	CallAttempts   *int
	Code           *string
	CompletedAt    *time.Time
}

// UpdateOutcome mutates outcome fields for the assigned provider only.
// Status is never changed here.
func (r *Repository) UpdateOutcome(ctx context.Context, leadID, providerID string, p OutcomePatch, now time.Time) (Lead, error) {
	q := `
UPDATE leads SET
  first_contact_at = COALESCE($3, first_contact_at),
  last_contact_at  = COALESCE($4, last_contact_at),
  call_attempts    = COALESCE($5, call_attempts),
  outcome_code     = COALESCE($6, outcome_code),
  completed_at     = COALESCE($7, completed_at),
  updated_at       = $8
WHERE id = $1 AND assigned_provider_id = $2
RETURNING ` + leadColumns
	l, err := scanLead(r.db.QueryRowContext(ctx, q,
		leadID, providerID,
		p.FirstContactAt, p.LastContactAt, p.CallAttempts, p.Code, p.CompletedAt,
		now,
	))
	if errors.Is(err, ErrNotFound) {
		// Distinguish "no such lead" from "assigned to someone else".
		if _, getErr := r.GetByID(ctx, leadID); getErr == nil {
			return Lead{}, ErrNotAssignee
		}
		return Lead{}, ErrNotFound
	}
	return l, err
}

// Reopen reverts a lead to OPEN and clears its assignment. This is the only
// OPEN-reverting transition in the system and is reserved for explicit
// administrative action; callers must audit it.
func (r *Repository) Reopen(ctx context.Context, leadID string, now time.Time) (Lead, error) {
	q := `
UPDATE leads SET
  status = $2,
  assigned_provider_id = NULL,
  assigned_at = NULL,
  updated_at = $3
WHERE id = $1
RETURNING ` + leadColumns
	return scanLead(r.db.QueryRowContext(ctx, q, leadID, StatusOpen, now))
}

// ScanLead scans a full lead row. Exported for the claim store which runs
// lead queries inside its own transaction.
func ScanLead(row interface{ Scan(dest ...any) error }) (Lead, error) {
	return scanLead(row)
}

// LeadColumns exposes the select list for the claim store.
func LeadColumns() string { return leadColumns }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLead(row rowScanner) (Lead, error) {
	var l Lead
	var email, address, city, notes, assignedProvider, claimTxnID, outcomeCode sql.NullString
	var assignedAt, firstContactAt, lastContactAt, completedAt sql.NullTime
	err := row.Scan(
		&l.ID, &l.Name, &l.Phone, &email, &address, &city, &l.State, &l.Zip,
		&l.Urgency, &notes, &l.PriceCents, &l.Status,
		&assignedProvider, &assignedAt, &claimTxnID, &l.ClaimAmountCents,
		&firstContactAt, &lastContactAt, &l.Outcome.CallAttempts, &outcomeCode, &completedAt,
		&l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Lead{}, ErrNotFound
		}
		return Lead{}, err
	}
	l.Email = email.String
	l.Address = address.String
	l.City = city.String
	l.Notes = notes.String
	l.AssignedProviderID = assignedProvider.String
	l.ClaimTxnID = claimTxnID.String
	l.Outcome.Code = outcomeCode.String
	if assignedAt.Valid {
		t := assignedAt.Time
		l.AssignedAt = &t
	}
	if firstContactAt.Valid {
		t := firstContactAt.Time
		l.Outcome.FirstContactAt = &t
	}
	if lastContactAt.Valid {
		t := lastContactAt.Time
		l.Outcome.LastContactAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		l.Outcome.CompletedAt = &t
	}
	return l, nil
}

type sqlRows interface {
	rowScanner
	Next() bool
	Err() error
}

func collectLeads(rows sqlRows) ([]Lead, error) {
	var out []Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
