package calls

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"callgate/pkg/utils"
)

// PostgresStore persists calls in two tables:
// - calls: one row per call, status mutated only by Transition.
// - call_events: append-only (call_id, event_id) pairs with a unique
//   constraint; the conflict-free insert is the idempotency gate.
//
// Schema assumption: UNIQUE (call_id, event_id) on call_events.
type PostgresStore struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, clock: time.Now}
}

func (s *PostgresStore) Create(ctx context.Context, c Call) error {
	const q = `
INSERT INTO calls (
  id, source, destination, dial_instruction, status,
  status_callback_url, status_callback_method,
  voice_url, voice_method,
  external_sid, account_sid, account_auth_token, api_version,
  direction, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16
)
ON CONFLICT (id) DO NOTHING
`
	res, err := s.db.ExecContext(ctx, q,
		c.ID,
		c.Source,
		c.Destination,
		c.DialInstruction,
		c.Status,
		c.StatusCallbackURL,
		c.StatusCallbackMethod,
		c.VoiceURL,
		c.VoiceMethod,
		c.ExternalSID,
		c.AccountSID,
		c.AccountAuthToken,
		c.APIVersion,
		c.Direction,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrDuplicateID
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Call, error) {
	const q = `
SELECT id, source, destination, dial_instruction, status,
       status_callback_url, status_callback_method,
       voice_url, voice_method,
       external_sid, account_sid, account_auth_token, api_version,
       direction, created_at, updated_at
FROM calls
WHERE id = $1
`
	return scanCall(s.db.QueryRowContext(ctx, q, id))
}

func (s *PostgresStore) Transition(ctx context.Context, id string, expected, next CallStatus, eventID string) (Call, error) {
	if !CanTransition(expected, next) {
		return Call{}, ErrInvalidTransition
	}

	now := s.clock().UTC()
	var out Call

	err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		// Idempotency gate first: a replayed event id must not win the CAS.
		const insEvent = `
INSERT INTO call_events (call_id, event_id, applied_at)
VALUES ($1,$2,$3)
ON CONFLICT (call_id, event_id) DO NOTHING
`
		res, err := tx.ExecContext(ctx, insEvent, id, eventID, now)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrStaleTransition
		}

		// Compare-and-set on status. GREATEST keeps updated_at monotone
		// even if the DB clock stepped backwards between transitions.
		const upd = `
UPDATE calls
SET status = $1,
    updated_at = GREATEST(updated_at, $2)
WHERE id = $3 AND status = $4
RETURNING id, source, destination, dial_instruction, status,
          status_callback_url, status_callback_method,
          voice_url, voice_method,
          external_sid, account_sid, account_auth_token, api_version,
          direction, created_at, updated_at
`
		out, err = scanCall(tx.QueryRowContext(ctx, upd, next, now, id, expected))
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				// Distinguish unknown id from a lost race; the extra
				// lookup only runs on the failure path.
				if _, gerr := getCallTx(ctx, tx, id); errors.Is(gerr, ErrNotFound) {
					return ErrNotFound
				}
				return ErrStaleTransition
			}
			return err
		}
		return nil
	})
	if err != nil {
		return Call{}, err
	}
	return out, nil
}

func getCallTx(ctx context.Context, tx *sql.Tx, id string) (Call, error) {
	const q = `
SELECT id, source, destination, dial_instruction, status,
       status_callback_url, status_callback_method,
       voice_url, voice_method,
       external_sid, account_sid, account_auth_token, api_version,
       direction, created_at, updated_at
FROM calls
WHERE id = $1
`
	return scanCall(tx.QueryRowContext(ctx, q, id))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner) (Call, error) {
	var c Call
	err := row.Scan(
		&c.ID,
		&c.Source,
		&c.Destination,
		&c.DialInstruction,
		&c.Status,
		&c.StatusCallbackURL,
		&c.StatusCallbackMethod,
		&c.VoiceURL,
		&c.VoiceMethod,
		&c.ExternalSID,
		&c.AccountSID,
		&c.AccountAuthToken,
		&c.APIVersion,
		&c.Direction,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Call{}, ErrNotFound
		}
		return Call{}, err
	}
	return c, nil
}
