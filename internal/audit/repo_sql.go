package audit

import (
	"context"
	"database/sql"
)

// SQLRepo persists audit events in Postgres.
//
// Assumed table:
//
//	audit_events(id, type, lead_id, provider_id, gateway_txn_id, amount_cents,
//	             actor_user_id, actor_role, ip_address, message, metadata,
//	             created_at)
//
// INSERT-only by policy; no UPDATE or DELETE statements exist here.
type SQLRepo struct {
	db *sql.DB
}

func NewSQLRepo(db *sql.DB) *SQLRepo { return &SQLRepo{db: db} }

const eventColumns = `id, type, lead_id, provider_id, gateway_txn_id, amount_cents, actor_user_id, actor_role, ip_address, message, metadata, created_at`

func (r *SQLRepo) Insert(ctx context.Context, e Event) error {
	const q = `
INSERT INTO audit_events (` + eventColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID, e.Type, e.LeadID, e.ProviderID, e.GatewayTxnID, e.AmountCents,
		e.ActorUserID, e.ActorRole, e.IPAddress, e.Message, e.Metadata, e.CreatedAt,
	)
	return err
}

func (r *SQLRepo) ListByLead(ctx context.Context, leadID string) ([]Event, error) {
	const q = `SELECT ` + eventColumns + ` FROM audit_events WHERE lead_id = $1 ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, q, leadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

func (r *SQLRepo) ListByType(ctx context.Context, t EventType, limit int) ([]Event, error) {
	const q = `SELECT ` + eventColumns + ` FROM audit_events WHERE type = $1 ORDER BY created_at DESC LIMIT $2`
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, q, t, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

func collectEvents(rows *sql.Rows) ([]Event, error) {
	var out []Event
	for rows.Next() {
		var e Event
		var leadID, providerID, txnID, actorID, actorRole, ip, msg, meta sql.NullString
		if err := rows.Scan(
			&e.ID, &e.Type, &leadID, &providerID, &txnID, &e.AmountCents,
			&actorID, &actorRole, &ip, &msg, &meta, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		e.LeadID = leadID.String
		e.ProviderID = providerID.String
		e.GatewayTxnID = txnID.String
		e.ActorUserID = actorID.String
		e.ActorRole = actorRole.String
		e.IPAddress = ip.String
		e.Message = msg.String
		e.Metadata = meta.String
		out = append(out, e)
	}
	return out, rows.Err()
}
