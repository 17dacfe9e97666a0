package reporting

import (
	"context"
	"database/sql"
	"time"

	"leadmarket-platform/internal/directory"
	"leadmarket-platform/internal/leads"
)

// SQLRepo reads reporting rows from Postgres. Aggregation happens in the
// service so the memory and SQL paths produce identical numbers.
type SQLRepo struct {
	db *sql.DB
}

func NewSQLRepo(db *sql.DB) *SQLRepo { return &SQLRepo{db: db} }

func (r *SQLRepo) ListLeads(ctx context.Context, from, to time.Time, state string) ([]leads.Lead, error) {
	q := `SELECT ` + leads.LeadColumns() + `
FROM leads
WHERE created_at >= $1 AND created_at < $2 AND ($3 = '' OR state = $3)
ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, q, from, to, state)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLeads(rows)
}

func (r *SQLRepo) ListLeadsByProvider(ctx context.Context, providerID string, from, to time.Time) ([]leads.Lead, error) {
	q := `SELECT ` + leads.LeadColumns() + `
FROM leads
WHERE assigned_provider_id = $1 AND created_at >= $2 AND created_at < $3
ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, q, providerID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLeads(rows)
}

func (r *SQLRepo) ListCreditLedger(ctx context.Context, providerID string, from, to time.Time) ([]directory.CreditLedger, error) {
	const q = `
SELECT id, provider_id, delta, reason, lead_id, actor, created_at
FROM lead_credit_ledger
WHERE provider_id = $1 AND created_at >= $2 AND created_at < $3
ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, q, providerID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []directory.CreditLedger
	for rows.Next() {
		var e directory.CreditLedger
		var leadID, actor sql.NullString
		if err := rows.Scan(&e.ID, &e.ProviderID, &e.Delta, &e.Reason, &leadID, &actor, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.LeadID = leadID.String
		e.Actor = actor.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func collectLeads(rows *sql.Rows) ([]leads.Lead, error) {
	var out []leads.Lead
	for rows.Next() {
		l, err := leads.ScanLead(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
