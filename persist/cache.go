package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bakharlabs/blurshield/dbopen"
	"github.com/bakharlabs/blurshield/mark"
)

// CacheSchema is the local cache's table. The updated_at column doubles as
// the external-change signal the watch detector polls.
const CacheSchema = `
CREATE TABLE IF NOT EXISTS mark_sets (
	identity   TEXT PRIMARY KEY,
	payload    BLOB NOT NULL,
	revision   INTEGER NOT NULL DEFAULT 0,
	updated_at INTEGER NOT NULL
);
`

// Cache is the fast local tier, consulted first on every load and written on
// every mutation as the crash/reload shadow copy.
type Cache struct {
	db *sql.DB
}

// OpenCache opens (or creates) the cache database at path.
func OpenCache(path string) (*Cache, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(CacheSchema))
	if err != nil {
		return nil, fmt.Errorf("%w: open cache: %w", ErrPersistenceFailed, err)
	}
	return &Cache{db: db}, nil
}

// NewCache wraps an existing connection (tests, mirror-swapped handles).
// The schema must already be applied or applyable.
func NewCache(db *sql.DB) (*Cache, error) {
	if _, err := db.Exec(CacheSchema); err != nil {
		return nil, fmt.Errorf("%w: cache schema: %w", ErrPersistenceFailed, err)
	}
	return &Cache{db: db}, nil
}

// DB exposes the underlying handle for the watch detector.
func (c *Cache) DB() *sql.DB { return c.db }

// Close closes the underlying database.
func (c *Cache) Close() error { return c.db.Close() }

// Load returns the stored mark set for identity; a missing row is an empty
// set, not an error.
func (c *Cache) Load(ctx context.Context, identity string) ([]*mark.Mark, error) {
	var payload []byte
	err := c.db.QueryRowContext(ctx,
		`SELECT payload FROM mark_sets WHERE identity = ?`, identity,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: cache load: %w", ErrPersistenceFailed, err)
	}
	marks, err := mark.Unmarshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: cache load: %w", ErrPersistenceFailed, err)
	}
	return marks, nil
}

// Save stores the full mark set for identity, replacing what was there.
func (c *Cache) Save(ctx context.Context, identity string, marks []*mark.Mark) error {
	payload, err := mark.Marshal(marks)
	if err != nil {
		return fmt.Errorf("%w: cache save: %w", ErrPersistenceFailed, err)
	}
	_, err = dbopen.Exec(ctx, c.db, `
		INSERT INTO mark_sets (identity, payload, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(identity) DO UPDATE SET
			payload = excluded.payload,
			revision = revision + 1,
			updated_at = excluded.updated_at`,
		identity, payload, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("%w: cache save: %w", ErrPersistenceFailed, err)
	}
	return nil
}

// Delete drops the stored set for identity.
func (c *Cache) Delete(ctx context.Context, identity string) error {
	if _, err := dbopen.Exec(ctx, c.db,
		`DELETE FROM mark_sets WHERE identity = ?`, identity); err != nil {
		return fmt.Errorf("%w: cache delete: %w", ErrPersistenceFailed, err)
	}
	return nil
}

// Identities lists every identity with a stored set, most recently written
// first.
func (c *Cache) Identities(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT identity FROM mark_sets ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("%w: cache list: %w", ErrPersistenceFailed, err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: cache list: %w", ErrPersistenceFailed, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
