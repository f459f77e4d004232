package store

// Schema contains the complete DDL for the docregistry tables.
const Schema = `
-- Per-origin policy and restoration health. One row per scheme://host.
CREATE TABLE IF NOT EXISTS origins (
    origin          TEXT PRIMARY KEY,
    activation_expr TEXT NOT NULL DEFAULT '',
    success_rate    REAL NOT NULL DEFAULT 1.0,
    total_passes    INTEGER NOT NULL DEFAULT 0,
    total_restored  INTEGER NOT NULL DEFAULT 0,
    total_dead      INTEGER NOT NULL DEFAULT 0,
    last_pass_at    INTEGER NOT NULL DEFAULT 0,
    created_at      INTEGER NOT NULL,
    updated_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_origins_success ON origins(success_rate DESC);

-- Pass reports: one row per restoration pass that lost or failed marks.
CREATE TABLE IF NOT EXISTS pass_reports (
    id              TEXT PRIMARY KEY,
    origin          TEXT NOT NULL REFERENCES origins(origin) ON DELETE CASCADE,
    applied         INTEGER NOT NULL DEFAULT 0,
    present         INTEGER NOT NULL DEFAULT 0,
    failed          INTEGER NOT NULL DEFAULT 0,
    dead            INTEGER NOT NULL DEFAULT 0,
    dead_ids        TEXT NOT NULL DEFAULT '[]',
    duration_ms     INTEGER NOT NULL DEFAULT 0,
    created_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pass_reports_origin ON pass_reports(origin);
CREATE INDEX IF NOT EXISTS idx_pass_reports_time ON pass_reports(created_at DESC);
`
