package routing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"leadmarket-platform/internal/directory"
	"leadmarket-platform/internal/leads"
	"leadmarket-platform/pkg/utils"

	"github.com/google/uuid"
)

// SQLStore implements Store against Postgres.
//
// Deliver serializes on the provider row (FOR UPDATE) and guards the lead
// transition with WHERE status = 'OPEN', so a routing attempt that loses a
// race with a concurrent claim fails cleanly instead of double-assigning.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore { return &SQLStore{db: db} }

var ErrLeadNotOpen = errors.New("routing: lead is no longer open")

// FindCandidate picks the single best-ranked eligible provider for a
// location. Ranking: zip match, then state/city area match, then nationwide;
// oldest provider wins inside a bucket so the choice is stable for a fixed
// snapshot.
func (s *SQLStore) FindCandidate(ctx context.Context, zip, state, city string) (directory.Provider, bool, error) {
	q := `
SELECT ` + directory.ProviderColumns() + `
FROM providers p
WHERE EXISTS (SELECT 1 FROM provider_zips z WHERE z.provider_id = p.id AND z.zip = $1)
   OR EXISTS (SELECT 1 FROM provider_areas a WHERE a.provider_id = p.id AND a.state = $2 AND (a.city IS NULL OR a.city = '' OR a.city = $3))
   OR p.nationwide
ORDER BY
  CASE
    WHEN EXISTS (SELECT 1 FROM provider_zips z WHERE z.provider_id = p.id AND z.zip = $1) THEN 0
    WHEN EXISTS (SELECT 1 FROM provider_areas a WHERE a.provider_id = p.id AND a.state = $2 AND (a.city IS NULL OR a.city = '' OR a.city = $3)) THEN 1
    ELSE 2
  END,
  p.created_at, p.id
LIMIT 1
`
	p, err := directory.ScanProvider(s.db.QueryRowContext(ctx, q, zip, state, city))
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return directory.Provider{}, false, nil
		}
		return directory.Provider{}, false, err
	}
	return p, true, nil
}

// Deliver marks the lead DELIVERED and, when the provider still has credit,
// decrements the balance by exactly one and appends the ledger entry — all
// in one transaction.
func (s *SQLStore) Deliver(ctx context.Context, leadID, providerID string, at time.Time) (DeliverReceipt, error) {
	var receipt DeliverReceipt
	err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		// Serialize credit movement per provider.
		var locked string
		if err := tx.QueryRowContext(ctx, `SELECT id FROM providers WHERE id = $1 FOR UPDATE`, providerID).Scan(&locked); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return directory.ErrNotFound
			}
			return err
		}

		// Conditional decrement; zero rows means the balance was already empty.
		const debitQ = `
UPDATE providers SET lead_credits = lead_credits - 1, updated_at = $2
WHERE id = $1 AND lead_credits > 0
RETURNING lead_credits
`
		err := tx.QueryRowContext(ctx, debitQ, providerID, at).Scan(&receipt.CreditsRemaining)
		switch {
		case err == nil:
			receipt.CreditDebited = true
			if err := directory.InsertCreditLedger(ctx, tx, directory.CreditLedger{
				ID:         uuid.NewString(),
				ProviderID: providerID,
				Delta:      -1,
				Reason:     directory.CreditReasonRoutedLead,
				LeadID:     leadID,
				CreatedAt:  at,
			}); err != nil {
				return err
			}
		case errors.Is(err, sql.ErrNoRows):
			receipt.CreditDebited = false
		default:
			return err
		}

		const leadQ = `
UPDATE leads SET status = $2, assigned_provider_id = $3, assigned_at = $4, updated_at = $4
WHERE id = $1 AND status = $5
`
		res, err := tx.ExecContext(ctx, leadQ, leadID, leads.StatusDelivered, providerID, at, leads.StatusOpen)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", ErrLeadNotOpen, leadID)
		}
		return nil
	})
	if err != nil {
		return DeliverReceipt{}, err
	}
	return receipt, nil
}
