package claim

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"leadmarket-platform/internal/directory"
	"leadmarket-platform/internal/leads"
	"leadmarket-platform/pkg/utils"
)

// SQLStore implements Store against Postgres with SELECT ... FOR UPDATE row
// locks. The provider row is held across the gateway charge so no second
// charge for the same lead can start until this one settles or rolls back.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore { return &SQLStore{db: db} }

func (s *SQLStore) WithClaimLock(ctx context.Context, leadID, providerID string, fn func(ctx context.Context, tx Tx, l leads.Lead, p directory.Provider) error) error {
	return utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		l, err := leads.ScanLead(tx.QueryRowContext(ctx,
			`SELECT `+leads.LeadColumns()+` FROM leads WHERE id = $1 FOR UPDATE`, leadID))
		if err != nil {
			if errors.Is(err, leads.ErrNotFound) {
				return ErrLeadNotFound
			}
			return err
		}

		p, err := directory.ScanProvider(tx.QueryRowContext(ctx,
			`SELECT `+directory.ProviderColumns()+` FROM providers WHERE id = $1 FOR UPDATE`, providerID))
		if err != nil {
			if errors.Is(err, directory.ErrNotFound) {
				return ErrProviderNotFound
			}
			return err
		}

		return fn(ctx, sqlTx{tx: tx}, l, p)
	})
}

type sqlTx struct {
	tx *sql.Tx
}

// Finalize applies the CLAIMED transition. The status guard is redundant
// under the lead row lock but keeps the statement safe on its own.
func (t sqlTx) Finalize(ctx context.Context, leadID, providerID, gatewayTxnID string, amountCents int64, at time.Time) error {
	const q = `
UPDATE leads SET
  status = $2,
  assigned_provider_id = $3,
  assigned_at = $4,
  claim_txn_id = $5,
  claim_amount_cents = $6,
  updated_at = $4
WHERE id = $1 AND status IN ($7, $8)
`
	txn := sql.NullString{String: gatewayTxnID, Valid: gatewayTxnID != ""}
	res, err := t.tx.ExecContext(ctx, q,
		leadID, leads.StatusClaimed, providerID, at, txn, amountCents,
		leads.StatusOpen, leads.StatusDelivered,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAlreadyClaimed
	}
	return nil
}
