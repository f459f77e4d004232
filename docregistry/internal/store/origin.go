// CLAUDE:SUMMARY Origin row CRUD — upsert, activation expression, EMA restoration health, pass reports.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

// Origin is one per-origin policy row.
type Origin struct {
	Origin         string  `json:"origin"`
	ActivationExpr string  `json:"activation_expr"`
	SuccessRate    float64 `json:"success_rate"`
	TotalPasses    int     `json:"total_passes"`
	TotalRestored  int     `json:"total_restored"`
	TotalDead      int     `json:"total_dead"`
	LastPassAt     int64   `json:"last_pass_at"`
	CreatedAt      int64   `json:"created_at"`
	UpdatedAt      int64   `json:"updated_at"`
}

// PassReport is one recorded restoration pass that lost or failed marks.
type PassReport struct {
	ID         string   `json:"id"`
	Origin     string   `json:"origin"`
	Applied    int      `json:"applied"`
	Present    int      `json:"present"`
	Failed     int      `json:"failed"`
	Dead       int      `json:"dead"`
	DeadIDs    []string `json:"dead_ids"`
	DurationMS int64    `json:"duration_ms"`
	CreatedAt  int64    `json:"created_at"`
}

// EnsureOrigin inserts an origin row if it does not exist yet.
func (s *Store) EnsureOrigin(ctx context.Context, origin string) error {
	now := time.Now().UnixMilli()
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO origins (origin, created_at, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(origin) DO NOTHING`,
		origin, now, now)
	return err
}

// GetOrigin retrieves an origin row. Returns nil, nil when absent.
func (s *Store) GetOrigin(ctx context.Context, origin string) (*Origin, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT origin, activation_expr, success_rate, total_passes,
		       total_restored, total_dead, last_pass_at, created_at, updated_at
		FROM origins WHERE origin = ?`, origin)

	o := &Origin{}
	err := row.Scan(&o.Origin, &o.ActivationExpr, &o.SuccessRate, &o.TotalPasses,
		&o.TotalRestored, &o.TotalDead, &o.LastPassAt, &o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

// SetActivation stores the activation expression for an origin, creating the
// row if needed. Empty expression means "always activate".
func (s *Store) SetActivation(ctx context.Context, origin, expression string) error {
	if err := s.EnsureOrigin(ctx, origin); err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	_, err := s.DB.ExecContext(ctx, `
		UPDATE origins SET activation_expr = ?, updated_at = ?
		WHERE origin = ?`, expression, now, origin)
	return err
}

// RecordPass folds one restoration pass into the origin's running stats.
// rate is the pass's own success ratio in [0,1]; the stored success_rate is
// an exponential moving average with alpha=0.1 so one bad reload does not
// sink an otherwise healthy origin.
func (s *Store) RecordPass(ctx context.Context, origin string, restored, dead int, rate float64) error {
	if err := s.EnsureOrigin(ctx, origin); err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	_, err := s.DB.ExecContext(ctx, `
		UPDATE origins SET
			success_rate = MAX(0.0, MIN(1.0, success_rate * 0.9 + ? * 0.1)),
			total_passes = total_passes + 1,
			total_restored = total_restored + ?,
			total_dead = total_dead + ?,
			last_pass_at = ?,
			updated_at = ?
		WHERE origin = ?`,
		rate, restored, dead, now, now, origin)
	return err
}

// ListOrigins returns origin rows ordered by success rate, best first.
func (s *Store) ListOrigins(ctx context.Context, limit int) ([]*Origin, error) {
	query := `
		SELECT origin, activation_expr, success_rate, total_passes,
		       total_restored, total_dead, last_pass_at, created_at, updated_at
		FROM origins
		ORDER BY success_rate DESC, total_passes DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOrigins(rows)
}

// DegradedOrigins returns origins whose success rate fell below threshold
// after at least minPasses restoration passes.
func (s *Store) DegradedOrigins(ctx context.Context, threshold float64, minPasses int) ([]*Origin, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT origin, activation_expr, success_rate, total_passes,
		       total_restored, total_dead, last_pass_at, created_at, updated_at
		FROM origins
		WHERE success_rate < ? AND total_passes >= ?
		ORDER BY success_rate ASC`, threshold, minPasses)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOrigins(rows)
}

// DeleteOrigin removes an origin row. Cascades to pass reports.
func (s *Store) DeleteOrigin(ctx context.Context, origin string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM origins WHERE origin = ?`, origin)
	return err
}

// InsertPassReport records a lossy pass for later inspection.
func (s *Store) InsertPassReport(ctx context.Context, r *PassReport) error {
	deadIDs, _ := json.Marshal(r.DeadIDs)
	if r.CreatedAt == 0 {
		r.CreatedAt = time.Now().UnixMilli()
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO pass_reports (id, origin, applied, present, failed, dead, dead_ids, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Origin, r.Applied, r.Present, r.Failed, r.Dead,
		string(deadIDs), r.DurationMS, r.CreatedAt)
	return err
}

// RecentReports returns the newest pass reports for an origin.
func (s *Store) RecentReports(ctx context.Context, origin string, limit int) ([]*PassReport, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, origin, applied, present, failed, dead, dead_ids, duration_ms, created_at
		FROM pass_reports
		WHERE origin = ?
		ORDER BY created_at DESC
		LIMIT ?`, origin, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []*PassReport
	for rows.Next() {
		r := &PassReport{}
		var deadIDs string
		if err := rows.Scan(&r.ID, &r.Origin, &r.Applied, &r.Present, &r.Failed,
			&r.Dead, &deadIDs, &r.DurationMS, &r.CreatedAt); err != nil {
			return nil, err
		}
		json.Unmarshal([]byte(deadIDs), &r.DeadIDs)
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// CountOrigins returns the number of tracked origins.
func (s *Store) CountOrigins(ctx context.Context) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM origins`).Scan(&n)
	return n, err
}

// CountReports returns the number of stored pass reports.
func (s *Store) CountReports(ctx context.Context) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM pass_reports`).Scan(&n)
	return n, err
}

func scanOrigins(rows *sql.Rows) ([]*Origin, error) {
	var origins []*Origin
	for rows.Next() {
		o := &Origin{}
		if err := rows.Scan(&o.Origin, &o.ActivationExpr, &o.SuccessRate, &o.TotalPasses,
			&o.TotalRestored, &o.TotalDead, &o.LastPassAt, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		origins = append(origins, o)
	}
	return origins, rows.Err()
}
