// CLAUDE:SUMMARY Revisioned mark-set rows — upsert with higher-revision-wins, stale writes rejected.
package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/bakharlabs/blurshield/dbopen"
)

// ErrRevisionConflict is returned when an incoming revision does not beat
// the stored one. The caller gets the stored payload back to resync from.
var ErrRevisionConflict = errors.New("store: revision conflict")

// MarkSet is one revisioned payload per (account, document identity). Marks
// holds the serialized mark array exactly as the device sent it; the hub
// never interprets individual marks.
type MarkSet struct {
	AccountID string `json:"-"`
	Identity  string `json:"identity"`
	Revision  int64  `json:"revision"`
	Marks     []byte `json:"marks"`
	UpdatedAt int64  `json:"updated_at"`
}

// GetMarkSet retrieves the stored set for an identity. Returns nil, nil when
// the account has no row for it.
func (s *Store) GetMarkSet(ctx context.Context, accountID, identity string) (*MarkSet, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT account_id, identity, revision, marks, updated_at
		FROM mark_sets WHERE account_id = ? AND identity = ?`, accountID, identity)

	ms := &MarkSet{}
	var marks string
	err := row.Scan(&ms.AccountID, &ms.Identity, &ms.Revision, &marks, &ms.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ms.Marks = []byte(marks)
	return ms, nil
}

// PutMarkSet stores a payload under the conflict rule: a higher revision
// always wins, including an empty mark array (deletions survive). revision 0
// means the device does not track revisions and takes stored+1. A revision
// at or below the stored one returns ErrRevisionConflict with the stored set
// so the device can resync.
func (s *Store) PutMarkSet(ctx context.Context, accountID, identity string, revision int64, marks []byte) (*MarkSet, error) {
	if len(marks) == 0 {
		marks = []byte("[]")
	}

	var result *MarkSet
	err := dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		var stored int64
		err := tx.QueryRowContext(ctx, `
			SELECT revision FROM mark_sets
			WHERE account_id = ? AND identity = ?`, accountID, identity).Scan(&stored)
		if err != nil && err != sql.ErrNoRows {
			return err
		}

		if revision == 0 {
			revision = stored + 1
		} else if revision <= stored {
			return ErrRevisionConflict
		}

		now := time.Now().UnixMilli()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO mark_sets (account_id, identity, revision, marks, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(account_id, identity) DO UPDATE SET
				revision = excluded.revision,
				marks = excluded.marks,
				updated_at = excluded.updated_at`,
			accountID, identity, revision, string(marks), now)
		if err != nil {
			return err
		}
		result = &MarkSet{
			AccountID: accountID,
			Identity:  identity,
			Revision:  revision,
			Marks:     marks,
			UpdatedAt: now,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListIdentities returns the identities an account has sets for, most
// recently updated first.
func (s *Store) ListIdentities(ctx context.Context, accountID string, limit int) ([]string, error) {
	query := `
		SELECT identity FROM mark_sets
		WHERE account_id = ?
		ORDER BY updated_at DESC`
	args := []any{accountID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var identities []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		identities = append(identities, id)
	}
	return identities, rows.Err()
}

// DeleteMarkSet removes an identity's row entirely.
func (s *Store) DeleteMarkSet(ctx context.Context, accountID, identity string) error {
	_, err := s.DB.ExecContext(ctx, `
		DELETE FROM mark_sets WHERE account_id = ? AND identity = ?`, accountID, identity)
	return err
}
