package store

// Schema contains the complete DDL for the hub tables. The rate_limits and
// maintenance tables feed the middleware stack; everything else is account
// and mark-set state.
const Schema = `
-- Accounts: one row per enrolled user, bcrypt-hashed secret
CREATE TABLE IF NOT EXISTS accounts (
    id          TEXT PRIMARY KEY,
    email       TEXT NOT NULL UNIQUE,
    secret_hash TEXT NOT NULL,
    tier        TEXT NOT NULL DEFAULT 'free',
    created_at  INTEGER NOT NULL
);

-- Devices: enrolled clients of an account, each with its own secret
CREATE TABLE IF NOT EXISTS devices (
    id          TEXT PRIMARY KEY,
    account_id  TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
    name        TEXT NOT NULL DEFAULT '',
    secret_hash TEXT NOT NULL,
    last_seen   INTEGER NOT NULL DEFAULT 0,
    created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_devices_account ON devices(account_id);

-- Mark sets: one revisioned payload per (account, document identity)
CREATE TABLE IF NOT EXISTS mark_sets (
    account_id  TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
    identity    TEXT NOT NULL,
    revision    INTEGER NOT NULL DEFAULT 0,
    marks       TEXT NOT NULL DEFAULT '[]',
    updated_at  INTEGER NOT NULL,
    PRIMARY KEY (account_id, identity)
);
CREATE INDEX IF NOT EXISTS idx_mark_sets_updated ON mark_sets(updated_at DESC);

-- Per-endpoint rate limiting rules (read by the RateLimiter middleware)
CREATE TABLE IF NOT EXISTS rate_limits (
    endpoint       TEXT PRIMARY KEY,
    max_requests   INTEGER NOT NULL DEFAULT 60,
    window_seconds INTEGER NOT NULL DEFAULT 60,
    enabled        INTEGER NOT NULL DEFAULT 1
);

-- Global maintenance flag (read by the Maintenance middleware)
CREATE TABLE IF NOT EXISTS maintenance (
    id      INTEGER PRIMARY KEY CHECK (id = 1),
    active  INTEGER NOT NULL DEFAULT 0,
    message TEXT NOT NULL DEFAULT 'Maintenance in progress, please retry shortly.'
);

INSERT OR IGNORE INTO maintenance (id, active, message)
VALUES (1, 0, 'Maintenance in progress, please retry shortly.');
`
